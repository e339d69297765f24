package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/core/observability/metrics"
	"github.com/zeusync/behaviour/internal/runner"
	"github.com/zeusync/behaviour/internal/server"
	"github.com/zeusync/behaviour/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. BEHAVIOUR_RUNNER_AGENTS.
const EnvPrefix = "BEHAVIOUR"

var ErrValidationFailed = errors.New("config validation failed")

// Config is the full process configuration.
type Config struct {
	Log     log.Config     `mapstructure:"log" json:"log" yaml:"log"`
	Store   store.Config   `mapstructure:"store" json:"store" yaml:"store"`
	Runner  runner.Config  `mapstructure:"runner" json:"runner" yaml:"runner"`
	Policy  PolicyConfig   `mapstructure:"policy" json:"policy" yaml:"policy"`
	Server  server.Config  `mapstructure:"server" json:"server" yaml:"server"`
	Metrics metrics.Config `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
}

// PolicyConfig is the textual form of bt.Policy.
type PolicyConfig struct {
	EmptySequencer       string `mapstructure:"empty_sequencer" json:"empty_sequencer" yaml:"empty_sequencer"`
	EmptySelector        string `mapstructure:"empty_selector" json:"empty_selector" yaml:"empty_selector"`
	OverwriteSingleChild bool   `mapstructure:"overwrite_single_child" json:"overwrite_single_child" yaml:"overwrite_single_child"`
}

// Policy converts the section into a bt.Policy.
func (p PolicyConfig) Policy() (bt.Policy, error) {
	seq, err := bt.ParseState(p.EmptySequencer)
	if err != nil {
		return bt.Policy{}, fmt.Errorf("policy.empty_sequencer: %w", err)
	}
	sel, err := bt.ParseState(p.EmptySelector)
	if err != nil {
		return bt.Policy{}, fmt.Errorf("policy.empty_selector: %w", err)
	}
	return bt.Policy{EmptySequencer: seq, EmptySelector: sel, OverwriteSingleChild: p.OverwriteSingleChild}, nil
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	def := bt.DefaultPolicy()
	return &Config{
		Log:    log.Config{Level: "info", Encoding: "console"},
		Store:  store.DefaultConfig(),
		Runner: runner.DefaultConfig(),
		Policy: PolicyConfig{
			EmptySequencer:       def.EmptySequencer.String(),
			EmptySelector:        def.EmptySelector.String(),
			OverwriteSingleChild: def.OverwriteSingleChild,
		},
		Server:  server.DefaultConfig(),
		Metrics: metrics.DefaultConfig(),
	}
}

// Load reads path (YAML or JSON, optional when empty) on top of the defaults
// and applies BEHAVIOUR_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Runner.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Policy.Policy(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Store.Format) {
	case "", "yaml", "json":
	default:
		errs = append(errs, fmt.Errorf("store.format: unsupported %q", c.Store.Format))
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required when the server is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}

// setDefaults registers every key so env overrides work without a file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("log.output_paths", d.Log.OutputPaths)

	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.format", d.Store.Format)

	v.SetDefault("runner.template", d.Runner.Template)
	v.SetDefault("runner.tick_interval", d.Runner.TickInterval)
	v.SetDefault("runner.agents", d.Runner.Agents)
	v.SetDefault("runner.workers", d.Runner.Workers)
	v.SetDefault("runner.despawn_on_failure", d.Runner.DespawnOnFailure)
	v.SetDefault("runner.restart_on_success", d.Runner.RestartOnSuccess)
	v.SetDefault("runner.max_ticks", d.Runner.MaxTicks)

	v.SetDefault("policy.empty_sequencer", d.Policy.EmptySequencer)
	v.SetDefault("policy.empty_selector", d.Policy.EmptySelector)
	v.SetDefault("policy.overwrite_single_child", d.Policy.OverwriteSingleChild)

	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_clients", d.Server.MaxClients)
	v.SetDefault("server.token", d.Server.Token)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.runtime", d.Metrics.Runtime)
}
