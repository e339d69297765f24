package bt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scripted replays a fixed list of states and repeats the last one.
type scripted struct {
	states []State
	next   int
	starts int
	stops  int
	ticks  int
}

func (s *scripted) Start(*Blackboard) { s.starts++ }

func (s *scripted) Update(*Blackboard) State {
	s.ticks++
	if len(s.states) == 0 {
		return StateSuccess
	}
	st := s.states[min(s.next, len(s.states)-1)]
	s.next++
	return st
}

func (s *scripted) Stop(*Blackboard) { s.stops++ }

// script registers a fresh action variant that replays states and returns the
// instance the first node built from it will use.
func script(t *testing.T, r *Registry, name string, states ...State) *scripted {
	t.Helper()
	first := &scripted{states: states}
	built := false
	require.NoError(t, r.RegisterAction(name, func(map[string]any) (Action, error) {
		if !built {
			built = true
			return first, nil
		}
		return &scripted{states: states}, nil
	}))
	return first
}

func mustNode(t *testing.T, tr *Tree, variant string, params map[string]any) *Node {
	t.Helper()
	n, err := tr.CreateNode(variant, params)
	require.NoError(t, err)
	return n
}

func attach(t *testing.T, tr *Tree, parent *Node, children ...*Node) {
	t.Helper()
	for _, c := range children {
		require.NoError(t, tr.AddChild(parent, c))
	}
}

func tickN(tr *Tree, n int) []State {
	out := make([]State, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tr.Update())
	}
	return out
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}
