package runner

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/behaviour/internal/core/bt"
)

// Agent is one clone of the template ticked by the runner. Its tree is only
// touched while mu is held, so snapshots read a settled tick.
type Agent struct {
	id      string
	spawned time.Time

	mu    sync.Mutex
	tree  *bt.Tree
	ticks uint64
	state bt.State
}

func (a *Agent) ID() string { return a.id }

// AgentSnapshot is a read-after-tick copy of an agent.
type AgentSnapshot struct {
	ID         string         `json:"id"`
	Tree       string         `json:"tree"`
	Ticks      uint64         `json:"ticks"`
	State      bt.State       `json:"state"`
	Spawned    time.Time      `json:"spawned"`
	Blackboard map[string]any `json:"blackboard"`
}

func (a *Agent) tick() (prev, cur bt.State, elapsed time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	prev = a.state
	cur = a.tree.Update()
	elapsed = time.Since(start)
	a.ticks++
	a.state = cur
	return prev, cur, elapsed
}

func (a *Agent) reset() {
	a.mu.Lock()
	a.tree.Reset()
	a.state = a.tree.State()
	a.mu.Unlock()
}

func (a *Agent) snapshot() AgentSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AgentSnapshot{
		ID:         a.id,
		Tree:       a.tree.Name(),
		Ticks:      a.ticks,
		State:      a.state,
		Spawned:    a.spawned,
		Blackboard: a.tree.Blackboard().Snapshot(),
	}
}

// shard distributes agents over n buckets by id hash so an agent always lands
// on the same worker.
func shard(agents []*Agent, n int) [][]*Agent {
	if n <= 1 || len(agents) <= 1 {
		if len(agents) == 0 {
			return nil
		}
		return [][]*Agent{agents}
	}
	buckets := make([][]*Agent, n)
	for _, a := range agents {
		idx := xxhash.Sum64String(a.id) % uint64(n)
		buckets[idx] = append(buckets[idx], a)
	}
	out := buckets[:0]
	for _, b := range buckets {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}
