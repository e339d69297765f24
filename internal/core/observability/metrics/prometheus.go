package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the Prometheus collector.
type Config struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	// Runtime adds the Go runtime and process collectors.
	Runtime bool `mapstructure:"runtime" json:"runtime" yaml:"runtime"`
}

// DefaultConfig returns the defaults used when the section is absent.
func DefaultConfig() Config {
	return Config{Enabled: true, Namespace: "behaviour"}
}

// Collector is a Recorder backed by a private Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	ticks        *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	agents       prometheus.Gauge
	spawned      *prometheus.CounterVec
	despawned    *prometheus.CounterVec
	settled      *prometheus.CounterVec
}

// New builds and registers the collector metrics.
func New(cfg Config) (*Collector, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultConfig().Namespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "ticks_total",
				Help:      "Agent ticks by tree and resulting state.",
			},
			[]string{"tree", "state"},
		),
		tickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "tick_duration_seconds",
				Help:      "Time spent in a single agent tick.",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"tree"},
		),
		agents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "agents",
				Help:      "Live agents.",
			},
		),
		spawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "agents_spawned_total",
				Help:      "Agents spawned by tree.",
			},
			[]string{"tree"},
		),
		despawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "agents_despawned_total",
				Help:      "Agents despawned by tree and reason.",
			},
			[]string{"tree", "reason"},
		),
		settled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "trees_settled_total",
				Help:      "Trees that reached a terminal state.",
			},
			[]string{"tree", "state"},
		),
	}

	cs := []prometheus.Collector{c.ticks, c.tickDuration, c.agents, c.spawned, c.despawned, c.settled}
	if cfg.Runtime {
		cs = append(cs,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	for _, col := range cs {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) ObserveTick(tree, state string, elapsed time.Duration) {
	c.ticks.WithLabelValues(tree, state).Inc()
	c.tickDuration.WithLabelValues(tree).Observe(elapsed.Seconds())
}

func (c *Collector) SetAgents(n int) { c.agents.Set(float64(n)) }

func (c *Collector) AgentSpawned(tree string) { c.spawned.WithLabelValues(tree).Inc() }

func (c *Collector) AgentDespawned(tree, reason string) {
	c.despawned.WithLabelValues(tree, reason).Inc()
}

func (c *Collector) TreeSettled(tree, state string) {
	c.settled.WithLabelValues(tree, state).Inc()
}

// Registry exposes the underlying registry for extra collectors and tests.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
