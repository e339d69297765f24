package runner

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("runner: invalid configuration")

// Config controls the host tick loop.
type Config struct {
	// Template is the stored definition every agent is cloned from.
	Template     string        `mapstructure:"template" json:"template" yaml:"template"`
	TickInterval time.Duration `mapstructure:"tick_interval" json:"tick_interval" yaml:"tick_interval"`
	// Agents is the number of clones spawned at start.
	Agents int `mapstructure:"agents" json:"agents" yaml:"agents"`
	// Workers bounds how many agent shards are ticked concurrently.
	Workers          int  `mapstructure:"workers" json:"workers" yaml:"workers"`
	DespawnOnFailure bool `mapstructure:"despawn_on_failure" json:"despawn_on_failure" yaml:"despawn_on_failure"`
	RestartOnSuccess bool `mapstructure:"restart_on_success" json:"restart_on_success" yaml:"restart_on_success"`
	// MaxTicks stops Run after that many ticks; 0 runs until cancelled.
	MaxTicks uint64 `mapstructure:"max_ticks" json:"max_ticks" yaml:"max_ticks"`
}

func DefaultConfig() Config {
	return Config{
		Template:         "main",
		TickInterval:     100 * time.Millisecond,
		Agents:           1,
		Workers:          4,
		DespawnOnFailure: true,
		RestartOnSuccess: false,
	}
}

func (c Config) Validate() error {
	switch {
	case c.TickInterval <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("tick_interval must be positive"))
	case c.Agents < 0:
		return errors.Join(ErrInvalidConfig, errors.New("agents must be >= 0"))
	case c.Workers < 0:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be >= 0"))
	}
	return nil
}
