package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/core/observability/metrics"
	"github.com/zeusync/behaviour/pkg/concurrent"
)

// Event types published by the runner.
const (
	EventAgentSpawned   = "runner.agent.spawned"
	EventAgentDespawned = "runner.agent.despawned"
	EventAgentRestarted = "runner.agent.restarted"
	EventTick           = "runner.tick"
)

// Despawn reasons.
const (
	ReasonFailure = "failure"
	ReasonManual  = "manual"
)

var ErrNoTemplate = errors.New("runner: no template tree")

type AgentEvent struct {
	Agent  string `json:"agent"`
	Tree   string `json:"tree"`
	Reason string `json:"reason,omitempty"`
}

// TickReport summarises one Tick.
type TickReport struct {
	Tick      uint64   `json:"tick"`
	Running   int      `json:"running"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Despawned []string `json:"despawned,omitempty"`
	Restarted []string `json:"restarted,omitempty"`
}

// Runner hosts agents cloned from a template tree and ticks them. Each agent's
// tree is driven by one goroutine at a time; different agents tick in
// parallel.
type Runner struct {
	cfg     Config
	logger  log.Log
	events  bus.EventBus
	metrics metrics.Recorder

	mu       sync.RWMutex
	template *bt.Tree
	agents   map[string]*Agent
	order    []string

	tickMu sync.Mutex
	ticks  atomic.Uint64
}

// New creates a runner. A nil bus or recorder disables that output.
func New(template *bt.Tree, cfg Config, logger log.Log, events bus.EventBus, recorder metrics.Recorder) (*Runner, error) {
	if template == nil {
		return nil, ErrNoTemplate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	// the template is shared by concurrent clones and must not grow a lazy root
	template.Root()
	return &Runner{
		cfg:      cfg,
		logger:   logger.Named("runner"),
		events:   events,
		metrics:  recorder,
		template: template,
		agents:   make(map[string]*Agent),
	}, nil
}

func (r *Runner) Config() Config { return r.cfg }

// Ticks is the number of completed Tick calls.
func (r *Runner) Ticks() uint64 { return r.ticks.Load() }

// Template returns the tree new agents are cloned from.
func (r *Runner) Template() *bt.Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.template
}

// SetTemplate swaps the template for future spawns. Live agents keep their
// own trees.
func (r *Runner) SetTemplate(t *bt.Tree) error {
	if t == nil {
		return ErrNoTemplate
	}
	t.Root()
	r.mu.Lock()
	r.template = t
	r.mu.Unlock()
	r.logger.Info("template replaced", log.String("tree", t.Name()), log.Int("nodes", t.Len()))
	return nil
}

// Spawn clones the template n times and returns the new agent ids.
func (r *Runner) Spawn(n int) []string {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	ids := make([]string, 0, n)
	spawned := make([]*Agent, 0, n)
	for i := 0; i < n; i++ {
		tree := r.template.Clone()
		tree.SetEventBus(r.events)
		a := &Agent{
			id:      uuid.NewString(),
			spawned: time.Now(),
			tree:    tree,
			state:   tree.State(),
		}
		r.agents[a.id] = a
		r.order = append(r.order, a.id)
		ids = append(ids, a.id)
		spawned = append(spawned, a)
	}
	live := len(r.agents)
	r.mu.Unlock()

	r.metrics.SetAgents(live)
	for _, a := range spawned {
		r.metrics.AgentSpawned(a.tree.Name())
		r.logger.Info("agent spawned", log.String("agent_id", a.id), log.String("tree", a.tree.Name()))
		r.publish(EventAgentSpawned, AgentEvent{Agent: a.id, Tree: a.tree.Name()})
	}
	return ids
}

// Despawn removes an agent, stopping any active actions.
func (r *Runner) Despawn(id string) bool {
	return r.despawn(id, ReasonManual)
}

func (r *Runner) despawn(id, reason string) bool {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
		for i, v := range r.order {
			if v == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	live := len(r.agents)
	r.mu.Unlock()
	if !ok {
		return false
	}

	a.reset()
	r.metrics.SetAgents(live)
	r.metrics.AgentDespawned(a.tree.Name(), reason)
	r.logger.Info("agent despawned",
		log.String("agent_id", id), log.String("tree", a.tree.Name()), log.String("reason", reason))
	r.publish(EventAgentDespawned, AgentEvent{Agent: id, Tree: a.tree.Name(), Reason: reason})
	return true
}

// Len is the number of live agents.
func (r *Runner) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Tick updates every live agent once. Agents are sharded over at most
// Workers goroutines; each shard ticks its agents in order. Failure and
// Success outcomes are then handled per the despawn and restart settings.
func (r *Runner) Tick(ctx context.Context) (TickReport, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	agents := r.live()
	results := make([]bt.State, len(agents))
	index := make(map[*Agent]int, len(agents))
	for i, a := range agents {
		index[a] = i
	}

	err := concurrent.ForEach(ctx, shard(agents, r.cfg.Workers), r.cfg.Workers, func(ctx context.Context, bucket []*Agent) error {
		for _, a := range bucket {
			if err := ctx.Err(); err != nil {
				return err
			}
			prev, cur, elapsed := a.tick()
			results[index[a]] = cur
			name := a.tree.Name()
			r.metrics.ObserveTick(name, cur.String(), elapsed)
			if !prev.Terminal() && cur.Terminal() {
				r.metrics.TreeSettled(name, cur.String())
				r.logger.WithContext(log.ContextWithAgentID(ctx, a.id)).
					Debug("agent settled", log.String("tree", name), log.String("state", cur.String()))
			}
		}
		return nil
	})
	if err != nil {
		return TickReport{}, fmt.Errorf("tick aborted: %w", err)
	}

	report := TickReport{Tick: r.ticks.Add(1)}
	for i, a := range agents {
		switch results[i] {
		case bt.StateRunning:
			report.Running++
		case bt.StateSuccess:
			report.Succeeded++
			if r.cfg.RestartOnSuccess {
				a.reset()
				report.Restarted = append(report.Restarted, a.id)
				r.publish(EventAgentRestarted, AgentEvent{Agent: a.id, Tree: a.tree.Name()})
			}
		case bt.StateFailure:
			report.Failed++
			if r.cfg.DespawnOnFailure && r.despawn(a.id, ReasonFailure) {
				report.Despawned = append(report.Despawned, a.id)
			}
		}
	}
	r.publish(EventTick, report)
	return report, nil
}

// Run spawns the configured agents when none are live, then ticks every
// TickInterval until ctx is done, MaxTicks is reached, or no agent is left.
func (r *Runner) Run(ctx context.Context) error {
	if r.Len() == 0 {
		r.Spawn(r.cfg.Agents)
	}
	r.logger.Info("runner started",
		log.Int("agents", r.Len()), log.Duration("interval", r.cfg.TickInterval), log.Int("workers", r.cfg.Workers))

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if r.Len() == 0 {
			r.logger.Info("runner stopped: no agents left", log.Uint64("ticks", r.Ticks()))
			return nil
		}
		if r.cfg.MaxTicks > 0 && r.Ticks() >= r.cfg.MaxTicks {
			r.logger.Info("runner stopped: tick limit reached", log.Uint64("ticks", r.Ticks()))
			return nil
		}
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped", log.Uint64("ticks", r.Ticks()))
			return nil
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("tick failed", log.Error(err))
				return err
			}
		}
	}
}

// Snapshot copies the state of every live agent in spawn order.
func (r *Runner) Snapshot() []AgentSnapshot {
	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return concurrent.ParallelMap(r.live(), workers, (*Agent).snapshot)
}

// Agent returns the snapshot of one agent.
func (r *Runner) Agent(id string) (AgentSnapshot, bool) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return AgentSnapshot{}, false
	}
	return a.snapshot(), true
}

func (r *Runner) live() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

func (r *Runner) publish(eventType string, data any) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(bus.NewEvent(eventType, "runner", data)); err != nil {
		r.logger.Warn("event handler failed", log.String("event", eventType), log.Error(err))
	}
}
