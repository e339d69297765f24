package editor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/store"
)

func newSession(t *testing.T, name string) (*Session, *store.FileStore) {
	t.Helper()
	s, err := store.NewFileStore(store.Config{Dir: t.TempDir()}, log.NewNop())
	require.NoError(t, err)
	sess, err := Open(context.Background(), s, bt.NewDefaultRegistry(), name, log.NewNop())
	require.NoError(t, err)
	return sess, s
}

func TestOpenCreatesAndPersistsRoot(t *testing.T) {
	sess, s := newSession(t, "guard")
	def, err := s.Load(context.Background(), "guard")
	require.NoError(t, err)
	require.Equal(t, sess.Tree().Root().ID(), def.Root)
}

func TestEditsArePersisted(t *testing.T) {
	ctx := context.Background()
	sess, s := newSession(t, "guard")
	root := sess.Tree().Root().ID()

	seq, err := sess.Create(ctx, "Sequencer", nil, map[string]any{"x": 10})
	require.NoError(t, err)
	first, err := sess.Create(ctx, "Succeed", nil, nil)
	require.NoError(t, err)
	second, err := sess.Create(ctx, "Succeed", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, root, seq))
	require.NoError(t, sess.Connect(ctx, seq, first))
	require.NoError(t, sess.Connect(ctx, seq, second))

	reopened, err := Open(ctx, s, bt.NewDefaultRegistry(), "guard", nil)
	require.NoError(t, err)
	tr := reopened.Tree()
	require.Equal(t, 4, tr.Len())
	n, ok := tr.Find(seq)
	require.True(t, ok)
	require.Len(t, tr.GetChildren(n), 2)
	// one child per tick: the first leaf leaves the sequencer running
	require.Equal(t, bt.StateRunning, tr.Update())
	require.Equal(t, bt.StateSuccess, tr.Update())
}

func TestDeleteDetachesFirst(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, "guard")

	a, err := sess.Create(ctx, "Sequencer", nil, nil)
	require.NoError(t, err)
	b, err := sess.Create(ctx, "Selector", nil, nil)
	require.NoError(t, err)
	leaf, err := sess.Create(ctx, "Succeed", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, a, leaf))
	require.NoError(t, sess.Connect(ctx, a, leaf))
	require.NoError(t, sess.Connect(ctx, b, leaf))

	require.NoError(t, sess.Delete(ctx, leaf))
	_, ok := sess.Tree().Find(leaf)
	require.False(t, ok)
	na, _ := sess.Tree().Find(a)
	require.Empty(t, sess.Tree().GetChildren(na))
}

func TestDeleteKeepsChildrenDetached(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, "guard")
	inv, err := sess.Create(ctx, "Inverter", nil, nil)
	require.NoError(t, err)
	leaf, err := sess.Create(ctx, "Fail", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, inv, leaf))

	require.NoError(t, sess.Delete(ctx, inv))
	n, ok := sess.Tree().Find(leaf)
	require.True(t, ok)
	require.Empty(t, sess.Tree().Parents(n))
}

func TestDisconnectAndMove(t *testing.T) {
	ctx := context.Background()
	sess, s := newSession(t, "guard")
	root := sess.Tree().Root().ID()
	leaf, err := sess.Create(ctx, "Succeed", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, root, leaf))
	require.NoError(t, sess.Disconnect(ctx, root, leaf))
	require.NoError(t, sess.Move(ctx, leaf, map[string]any{"x": 3, "y": 4}))

	def, err := s.Load(ctx, "guard")
	require.NoError(t, err)
	require.Empty(t, def.Nodes[0].Child)
	for _, rec := range def.Nodes {
		if rec.ID == leaf {
			require.Equal(t, 3, rec.Meta["x"])
		}
	}
}

func TestEditorErrors(t *testing.T) {
	ctx := context.Background()
	sess, _ := newSession(t, "guard")
	_, err := sess.Create(ctx, "Nope", nil, nil)
	require.ErrorIs(t, err, bt.ErrUnknownVariant)
	require.ErrorIs(t, sess.Connect(ctx, "missing", sess.Tree().Root().ID()), ErrNodeNotFound)
	require.ErrorIs(t, sess.Delete(ctx, "missing"), ErrNodeNotFound)

	a, err := sess.Create(ctx, "Sequencer", nil, nil)
	require.NoError(t, err)
	b, err := sess.Create(ctx, "Sequencer", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, a, b))
	require.ErrorIs(t, sess.Connect(ctx, b, a), bt.ErrCycle)
}

func TestPolicyGovernsConnect(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewFileStore(store.Config{Dir: t.TempDir()}, log.NewNop())
	require.NoError(t, err)
	policy := bt.DefaultPolicy()
	policy.OverwriteSingleChild = false
	sess, err := Open(ctx, s, bt.NewDefaultRegistry(), "guard", log.NewNop(), bt.WithPolicy(policy))
	require.NoError(t, err)

	root := sess.Tree().Root().ID()
	a, err := sess.Create(ctx, "Succeed", nil, nil)
	require.NoError(t, err)
	b, err := sess.Create(ctx, "Fail", nil, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, root, a))
	require.ErrorIs(t, sess.Connect(ctx, root, b), bt.ErrChildOccupied)

	def, err := s.Load(ctx, "guard")
	require.NoError(t, err)
	for _, rec := range def.Nodes {
		if rec.ID == root {
			require.Equal(t, a, rec.Child)
		}
	}

	// the default policy overwrites the slot
	sess, err = Open(ctx, s, bt.NewDefaultRegistry(), "guard", log.NewNop())
	require.NoError(t, err)
	require.NoError(t, sess.Connect(ctx, root, b))
}
