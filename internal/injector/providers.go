package injector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/wire"

	"github.com/zeusync/behaviour/internal/config"
	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/core/observability/metrics"
	"github.com/zeusync/behaviour/internal/runner"
	"github.com/zeusync/behaviour/internal/server"
	"github.com/zeusync/behaviour/internal/store"
)

// ProviderSet is the full provider graph of the host process.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideEventBus,
	ProvideStore,
	wire.Bind(new(store.WatchableStore), new(*store.FileStore)),
	ProvideRegistry,
	ProvidePolicy,
	ProvideTemplate,
	ProvideCollector,
	ProvideRecorder,
	ProvideRunner,
	wire.Bind(new(server.Inspector), new(*runner.Runner)),
	ProvideServer,
	wire.Struct(new(App), "*"),
)

// App is the assembled host.
type App struct {
	Config   *config.Config
	Logger   log.Log
	Events   bus.EventBus
	Store    store.WatchableStore
	Registry *bt.Registry
	Runner   *runner.Runner
	Metrics  *metrics.Collector
	// Server is nil when disabled.
	Server *server.Server
}

func ProvideLogger(cfg *config.Config) log.Log {
	return log.NewWithConfig(cfg.Log)
}

func ProvideEventBus() bus.EventBus {
	return bus.New()
}

func ProvideStore(cfg *config.Config, logger log.Log) (*store.FileStore, error) {
	return store.NewFileStore(cfg.Store, logger)
}

func ProvideRegistry(logger log.Log) *bt.Registry {
	return bt.NewDefaultRegistry(bt.WithActionLogger(logger.Named("action")))
}

func ProvidePolicy(cfg *config.Config) (bt.Policy, error) {
	return cfg.Policy.Policy()
}

// ProvideTemplate loads the configured template definition.
func ProvideTemplate(cfg *config.Config, s store.WatchableStore, registry *bt.Registry, policy bt.Policy, logger log.Log) (*bt.Tree, error) {
	return LoadTree(context.Background(), s, cfg.Runner.Template, registry, policy, logger)
}

// LoadTree reads name from s and builds it with the given registry and policy.
func LoadTree(ctx context.Context, s store.Store, name string, registry *bt.Registry, policy bt.Policy, logger log.Log) (*bt.Tree, error) {
	def, err := s.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %q: %w", name, err)
	}
	return bt.FromDefinition(def, bt.WithRegistry(registry), bt.WithPolicy(policy), bt.WithLogger(logger))
}

func ProvideCollector(cfg *config.Config) (*metrics.Collector, error) {
	return metrics.New(cfg.Metrics)
}

// ProvideRecorder returns the collector, or a no-op recorder when metrics are
// disabled.
func ProvideRecorder(cfg *config.Config, c *metrics.Collector) metrics.Recorder {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return c
}

func ProvideRunner(cfg *config.Config, template *bt.Tree, logger log.Log, events bus.EventBus, recorder metrics.Recorder) (*runner.Runner, error) {
	return runner.New(template, cfg.Runner, logger, events, recorder)
}

// ProvideServer builds the inspection server when enabled. The cleanup stops
// it.
func ProvideServer(cfg *config.Config, inspector server.Inspector, events bus.EventBus, c *metrics.Collector, logger log.Log) (*server.Server, func(), error) {
	if !cfg.Server.Enabled {
		return nil, func() {}, nil
	}
	var exporter metrics.Exporter = metrics.Nop{}
	if cfg.Metrics.Enabled {
		exporter = c
	}
	srv, err := server.NewServer(cfg.Server, inspector, events, exporter, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := srv.Close(); err != nil && !errors.Is(err, server.ErrServerNotRunning) {
			logger.Warn("server close failed", log.Error(err))
		}
	}
	return srv, cleanup, nil
}

// Run starts the server when present, hot-reloads the template from the store
// and ticks until ctx is done or the runner stops on its own.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = a.Server.Stop(stopCtx)
		}()
	}

	policy, err := a.Config.Policy.Policy()
	if err != nil {
		return err
	}
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		err := a.Store.Watch(ctx, func(name string) {
			if name != a.Config.Runner.Template {
				return
			}
			tree, err := LoadTree(ctx, a.Store, name, a.Registry, policy, a.Logger)
			if err != nil {
				a.Logger.Warn("template reload failed", log.String("tree", name), log.Error(err))
				return
			}
			_ = a.Runner.SetTemplate(tree)
		})
		if err != nil {
			a.Logger.Warn("store watch stopped", log.Error(err))
		}
	}()

	err = a.Runner.Run(ctx)
	cancel()
	<-watched
	_ = a.Logger.Sync()
	return err
}
