package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/store"
)

var ErrNodeNotFound = errors.New("editor: node not found")

// Session edits one stored tree. Every successful change is written back
// through the store before the call returns.
type Session struct {
	store  store.Store
	tree   *bt.Tree
	logger log.Log
}

// Open loads name from s, or starts an empty tree with a fresh root when
// nothing is stored under that name yet. extra options are applied last, so a
// bt.WithPolicy there governs every structural edit of the session.
func Open(ctx context.Context, s store.Store, registry *bt.Registry, name string, logger log.Log, extra ...bt.Option) (*Session, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	opts := append([]bt.Option{bt.WithRegistry(registry), bt.WithLogger(logger)}, extra...)

	var tree *bt.Tree
	def, err := s.Load(ctx, name)
	switch {
	case err == nil:
		tree, err = bt.FromDefinition(def, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
	case errors.Is(err, store.ErrNotFound):
		tree = bt.New(name, opts...)
		tree.Root()
		logger.Info("new tree", log.String("tree", name))
	default:
		return nil, err
	}

	sess := &Session{store: s, tree: tree, logger: logger.Named("editor")}
	if err := sess.persist(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Tree exposes the edited tree for read access.
func (s *Session) Tree() *bt.Tree { return s.tree }

// Create adds a detached node and returns its id.
func (s *Session) Create(ctx context.Context, variant string, params, meta map[string]any) (string, error) {
	n, err := s.tree.CreateNode(variant, params)
	if err != nil {
		return "", err
	}
	if meta != nil {
		n.SetMeta(meta)
	}
	return n.ID(), s.persist(ctx)
}

// Connect attaches child under parent.
func (s *Session) Connect(ctx context.Context, parentID, childID string) error {
	parent, child, err := s.pair(parentID, childID)
	if err != nil {
		return err
	}
	if err := s.tree.AddChild(parent, child); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Disconnect detaches child from parent.
func (s *Session) Disconnect(ctx context.Context, parentID, childID string) error {
	parent, child, err := s.pair(parentID, childID)
	if err != nil {
		return err
	}
	s.tree.RemoveChild(parent, child)
	return s.persist(ctx)
}

// Delete detaches the node from every parent, then removes it. Its own
// children stay in the tree, detached.
func (s *Session) Delete(ctx context.Context, id string) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	for _, p := range s.tree.Parents(n) {
		// a composite may list the node more than once
		for contains(s.tree.GetChildren(p), n) {
			s.tree.RemoveChild(p, n)
		}
	}
	if err := s.tree.DeleteNode(n); err != nil {
		return err
	}
	return s.persist(ctx)
}

// Move replaces the presentation metadata of a node.
func (s *Session) Move(ctx context.Context, id string, meta map[string]any) error {
	n, err := s.node(id)
	if err != nil {
		return err
	}
	n.SetMeta(meta)
	return s.persist(ctx)
}

func (s *Session) node(id string) (*bt.Node, error) {
	n, ok := s.tree.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

func (s *Session) pair(parentID, childID string) (*bt.Node, *bt.Node, error) {
	parent, err := s.node(parentID)
	if err != nil {
		return nil, nil, err
	}
	child, err := s.node(childID)
	if err != nil {
		return nil, nil, err
	}
	return parent, child, nil
}

func (s *Session) persist(ctx context.Context) error {
	written, err := s.store.Save(ctx, s.tree.Definition())
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", s.tree.Name(), err)
	}
	if written {
		s.logger.Debug("tree persisted", log.String("tree", s.tree.Name()), log.Int("nodes", s.tree.Len()))
	}
	return nil
}

func contains(nodes []*bt.Node, n *bt.Node) bool {
	for _, c := range nodes {
		if c == n {
			return true
		}
	}
	return false
}
