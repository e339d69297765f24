package bt

// Kind is the closed set of node shapes the update dispatcher matches on.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindRoot
	KindAction
	KindDecorator
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindAction:
		return "action"
	case KindDecorator:
		return "decorator"
	case KindComposite:
		return "composite"
	default:
		return "invalid"
	}
}

// DecoratorKind selects how a decorator maps its child's state.
type DecoratorKind uint8

const (
	DecoratorPassthrough DecoratorKind = iota
	DecoratorInverter
	DecoratorSucceeder
	DecoratorFailer
	DecoratorRepeat
	DecoratorRetry
	DecoratorUntilFailure
)

// CompositePolicy selects how a composite combines its children.
type CompositePolicy uint8

const (
	PolicySequencer CompositePolicy = iota
	PolicySelector
	PolicyParallel
)

// Node is one entry of a tree's arena. Edges are ids into the same arena, so a
// Node never points at another Node. Configuration is fixed at creation;
// everything below the runtime marker is transient and reset by Clone/Reset.
type Node struct {
	id      string
	kind    Kind
	variant string
	params  map[string]any
	meta    map[string]any

	decorator DecoratorKind
	policy    CompositePolicy
	// limit is Repeat times, Retry/UntilFailure max attempts.
	limit int
	// flag is Repeat stop_on_failure, Parallel "one" policy.
	flag bool

	child    string
	children []string

	// runtime
	action  Action
	state   State
	started bool
	cursor  int
	count   int
	results []State
}

func (n *Node) ID() string      { return n.id }
func (n *Node) Kind() Kind      { return n.kind }
func (n *Node) Variant() string { return n.variant }
func (n *Node) State() State    { return n.state }
func (n *Node) Started() bool   { return n.started }

// Cursor is the index of the composite child currently being evaluated.
func (n *Node) Cursor() int { return n.cursor }

// Params returns a copy of the variant configuration.
func (n *Node) Params() map[string]any { return copyParams(n.params) }

// Meta returns a copy of the opaque presentation metadata.
func (n *Node) Meta() map[string]any { return copyParams(n.meta) }

// SetMeta replaces the presentation metadata. The engine never reads it.
func (n *Node) SetMeta(meta map[string]any) { n.meta = copyParams(meta) }

// Action exposes the leaf behaviour of an action node, nil otherwise.
func (n *Node) Action() Action { return n.action }

// duplicate copies configuration under a new id with fresh runtime state.
// Edges are left for the caller to remap.
func (n *Node) duplicate(id string) *Node {
	return &Node{
		id:        id,
		kind:      n.kind,
		variant:   n.variant,
		params:    copyParams(n.params),
		meta:      copyParams(n.meta),
		decorator: n.decorator,
		policy:    n.policy,
		limit:     n.limit,
		flag:      n.flag,
	}
}

func (n *Node) resetRuntime() {
	n.state = StateRunning
	n.started = false
	n.cursor = 0
	n.count = 0
	n.results = nil
}

// edges lists the ids this node points at, in order.
func (n *Node) edges() []string {
	switch n.kind {
	case KindRoot, KindDecorator:
		if n.child == "" {
			return nil
		}
		return []string{n.child}
	case KindComposite:
		return n.children
	default:
		return nil
	}
}

func (n *Node) references(id string) bool {
	switch n.kind {
	case KindRoot, KindDecorator:
		return n.child == id
	case KindComposite:
		for _, c := range n.children {
			if c == id {
				return true
			}
		}
	}
	return false
}
