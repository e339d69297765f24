package bt

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/behaviour/internal/core/events/bus"
	"github.com/zeusync/behaviour/internal/core/observability/log"
)

// Tree owns an arena of nodes, the root reference and the blackboard shared
// by every node of this instance. A Tree is not safe for concurrent use:
// structural edits and Update must come from one goroutine at a time.
type Tree struct {
	name       string
	root       string
	nodes      []*Node
	index      map[string]*Node
	blackboard *Blackboard
	treeState  State

	registry *Registry
	policy   Policy
	events   bus.EventBus
	logger   log.Log
}

type Option func(*Tree)

func WithRegistry(r *Registry) Option {
	return func(t *Tree) { t.registry = r }
}

func WithPolicy(p Policy) Option {
	return func(t *Tree) { t.policy = p }
}

func WithEventBus(b bus.EventBus) Option {
	return func(t *Tree) { t.events = b }
}

func WithLogger(l log.Log) Option {
	return func(t *Tree) { t.logger = l }
}

func WithBlackboard(bb *Blackboard) Option {
	return func(t *Tree) { t.blackboard = bb }
}

// New creates an empty tree. The root node is created on first touch.
func New(name string, opts ...Option) *Tree {
	t := &Tree{
		name:      name,
		index:     make(map[string]*Node),
		treeState: StateRunning,
		policy:    DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		t.registry = NewDefaultRegistry()
	}
	if t.blackboard == nil {
		t.blackboard = NewBlackboard()
	}
	if t.logger == nil {
		t.logger = log.NewNop()
	}
	return t
}

func (t *Tree) Name() string            { return t.name }
func (t *Tree) Blackboard() *Blackboard { return t.blackboard }
func (t *Tree) Registry() *Registry     { return t.registry }
func (t *Tree) Policy() Policy          { return t.policy }

// State is the last observed top-level state.
func (t *Tree) State() State { return t.treeState }

// SetEventBus attaches (or with nil detaches) the notification bus.
func (t *Tree) SetEventBus(b bus.EventBus) { t.events = b }

// Root returns the root node, creating it if the tree has none.
func (t *Tree) Root() *Node {
	if n, ok := t.index[t.root]; ok && t.root != "" {
		return n
	}
	n, err := t.registry.build(uuid.NewString(), "Root", nil)
	if err != nil {
		// Root has no params; build cannot fail for it.
		panic(err)
	}
	t.insert(n)
	t.root = n.id
	t.logger.Debug("root node created", log.String("tree", t.name), log.String("node", n.id))
	return n
}

// Nodes returns every owned node in creation order.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Len is the number of owned nodes, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Find resolves an id owned by this tree.
func (t *Tree) Find(id string) (*Node, bool) {
	n, ok := t.index[id]
	return n, ok
}

// Owns reports whether n is an entry of this tree's arena.
func (t *Tree) Owns(n *Node) bool {
	if n == nil {
		return false
	}
	owned, ok := t.index[n.id]
	return ok && owned == n
}

// CreateNode instantiates variant with a fresh id and appends it to the arena.
// Creating a Root while one exists is rejected.
func (t *Tree) CreateNode(variant string, params map[string]any) (*Node, error) {
	if variant == "Root" {
		if _, ok := t.index[t.root]; ok {
			return nil, fmt.Errorf("%w: tree %s already has a root", ErrInvalidParam, t.name)
		}
	}
	n, err := t.registry.build(uuid.NewString(), variant, params)
	if err != nil {
		t.logger.Warn("create node rejected", log.String("tree", t.name), log.String("variant", variant), log.Error(err))
		return nil, err
	}
	t.insert(n)
	if n.kind == KindRoot {
		t.root = n.id
	}
	t.emit(EventNodeCreated, NodeEvent{Tree: t.name, Node: n.id, Variant: n.variant})
	return n, nil
}

// DeleteNode removes n from the arena. Callers detach n from its parents
// first; a node still referenced is rejected with ErrNodeReferenced.
// Deleting the root clears the root reference.
func (t *Tree) DeleteNode(n *Node) error {
	if !t.Owns(n) {
		return ErrForeignNode
	}
	if parents := t.Parents(n); len(parents) > 0 {
		t.logger.Warn("delete of referenced node rejected",
			log.String("tree", t.name), log.String("node", n.id), log.Int("parents", len(parents)))
		return fmt.Errorf("%w: %s has %d parent(s)", ErrNodeReferenced, n.id, len(parents))
	}
	for i, c := range t.nodes {
		if c == n {
			t.nodes = append(t.nodes[:i], t.nodes[i+1:]...)
			break
		}
	}
	delete(t.index, n.id)
	if t.root == n.id {
		t.root = ""
	}
	t.emit(EventNodeDeleted, NodeEvent{Tree: t.name, Node: n.id, Variant: n.variant})
	return nil
}

// AddChild attaches child under parent. Decorator and Root overwrite their
// single slot (see Policy.OverwriteSingleChild); Composite appends; Action
// parents are left untouched.
func (t *Tree) AddChild(parent, child *Node) error {
	if !t.Owns(parent) || !t.Owns(child) {
		return ErrForeignNode
	}
	if parent.kind == KindAction {
		return nil
	}
	if child.kind == KindRoot || child == parent || t.reachable(child, parent) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, parent.id, child.id)
	}

	switch parent.kind {
	case KindRoot, KindDecorator:
		if parent.child != "" && parent.child != child.id && !t.policy.OverwriteSingleChild {
			return fmt.Errorf("%w: %s", ErrChildOccupied, parent.id)
		}
		parent.child = child.id
	case KindComposite:
		parent.children = append(parent.children, child.id)
	}
	t.emit(EventChildAdded, EdgeEvent{Tree: t.name, Parent: parent.id, Child: child.id})
	return nil
}

// RemoveChild detaches child from parent. Decorator and Root clear their slot
// only when it holds child; Composite drops the first matching entry. An
// active child subtree is aborted.
func (t *Tree) RemoveChild(parent, child *Node) {
	if parent == nil || child == nil {
		return
	}
	removed := false
	switch parent.kind {
	case KindRoot, KindDecorator:
		if parent.child == child.id {
			parent.child = ""
			removed = true
		}
	case KindComposite:
		for i, id := range parent.children {
			if id == child.id {
				parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
				if parent.cursor > i {
					parent.cursor--
				}
				if i < len(parent.results) {
					parent.results = append(parent.results[:i:i], parent.results[i+1:]...)
				}
				removed = true
				break
			}
		}
	}
	if !removed {
		return
	}
	// a detached activation is stopped so re-attaching starts it afresh
	if child.started {
		t.abort(child, t.blackboard)
	}
	t.emit(EventChildRemoved, EdgeEvent{Tree: t.name, Parent: parent.id, Child: child.id})
}

// GetChildren returns parent's children in evaluation order. The slice is a
// copy; ids that do not resolve are skipped.
func (t *Tree) GetChildren(parent *Node) []*Node {
	if parent == nil {
		return nil
	}
	ids := parent.edges()
	out := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := t.index[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Parents lists every node referencing n.
func (t *Tree) Parents(n *Node) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, p := range t.nodes {
		if p.references(n.id) {
			out = append(out, p)
		}
	}
	return out
}

// Traverse walks the tree depth-first from the root. Returning false from fn
// skips the subtree of that node.
func (t *Tree) Traverse(fn func(n *Node, depth int) bool) {
	onPath := make(map[string]bool)
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		if onPath[n.id] {
			return
		}
		if !fn(n, depth) {
			return
		}
		onPath[n.id] = true
		for _, c := range t.GetChildren(n) {
			walk(c, depth+1)
		}
		delete(onPath, n.id)
	}
	walk(t.Root(), 0)
}

func (t *Tree) insert(n *Node) {
	t.nodes = append(t.nodes, n)
	t.index[n.id] = n
}

// reachable reports whether target is from or one of its descendants.
func (t *Tree) reachable(from, target *Node) bool {
	seen := make(map[string]bool)
	stack := []string{from.id}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target.id {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if n, ok := t.index[id]; ok {
			stack = append(stack, n.edges()...)
		}
	}
	return false
}

func (t *Tree) emit(eventType string, data any) {
	if t.events == nil {
		return
	}
	if err := t.events.Publish(bus.NewEvent(eventType, t.name, data)); err != nil {
		t.logger.Warn("event handler failed", log.String("event", eventType), log.Error(err))
	}
}
