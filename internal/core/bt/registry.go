package bt

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeusync/behaviour/internal/core/observability/log"
)

// ActionFactory builds a fresh Action from node params. It is called once per
// node instance, including every clone.
type ActionFactory func(params map[string]any) (Action, error)

type variantSpec struct {
	kind      Kind
	decorator DecoratorKind
	policy    CompositePolicy
}

// structural variants are part of the engine and cannot be re-registered.
var structural = map[string]variantSpec{
	"Root":         {kind: KindRoot},
	"Sequencer":    {kind: KindComposite, policy: PolicySequencer},
	"Selector":     {kind: KindComposite, policy: PolicySelector},
	"Parallel":     {kind: KindComposite, policy: PolicyParallel},
	"Passthrough":  {kind: KindDecorator, decorator: DecoratorPassthrough},
	"Inverter":     {kind: KindDecorator, decorator: DecoratorInverter},
	"Succeeder":    {kind: KindDecorator, decorator: DecoratorSucceeder},
	"Failer":       {kind: KindDecorator, decorator: DecoratorFailer},
	"Repeat":       {kind: KindDecorator, decorator: DecoratorRepeat},
	"Retry":        {kind: KindDecorator, decorator: DecoratorRetry},
	"UntilFailure": {kind: KindDecorator, decorator: DecoratorUntilFailure},
}

// Registry is the catalogue of constructible variants: the fixed structural
// ones plus named action factories.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]ActionFactory
	logger  log.Log
	clock   func() time.Time
}

type RegistryOption func(*Registry)

// WithClock overrides the time source handed to time-based actions.
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

// WithActionLogger sets the logger handed to logging actions.
func WithActionLogger(logger log.Log) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry returns a registry holding only the structural variants.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		actions: make(map[string]ActionFactory),
		logger:  log.NewNop(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultRegistry returns a registry with the builtin actions.
func NewDefaultRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	RegisterBuiltins(r)
	return r
}

func (r *Registry) Logger() log.Log         { return r.logger }
func (r *Registry) Clock() func() time.Time { return r.clock }

// RegisterAction binds name to an action factory, replacing an earlier binding.
func (r *Registry) RegisterAction(name string, factory ActionFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: empty action name or nil factory", ErrInvalidParam)
	}
	if _, ok := structural[name]; ok {
		return fmt.Errorf("%w: %s is a structural variant", ErrInvalidParam, name)
	}
	r.mu.Lock()
	r.actions[name] = factory
	r.mu.Unlock()
	return nil
}

// Kind reports the node kind a variant name resolves to.
func (r *Registry) Kind(variant string) (Kind, bool) {
	if spec, ok := structural[variant]; ok {
		return spec.kind, true
	}
	r.mu.RLock()
	_, ok := r.actions[variant]
	r.mu.RUnlock()
	if ok {
		return KindAction, true
	}
	return KindInvalid, false
}

// Variants lists every constructible variant, sorted.
func (r *Registry) Variants() []string {
	r.mu.RLock()
	out := make([]string, 0, len(structural)+len(r.actions))
	for name := range r.actions {
		out = append(out, name)
	}
	r.mu.RUnlock()
	for name := range structural {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// build constructs a configured node for variant with the given id.
func (r *Registry) build(id, variant string, params map[string]any) (*Node, error) {
	n := &Node{id: id, variant: variant, params: copyParams(params)}
	if spec, ok := structural[variant]; ok {
		n.kind = spec.kind
		n.decorator = spec.decorator
		n.policy = spec.policy
		if err := configure(n); err != nil {
			return nil, err
		}
		return n, nil
	}

	r.mu.RLock()
	factory, ok := r.actions[variant]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	action, err := factory(n.params)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", variant, err)
	}
	n.kind = KindAction
	n.action = action
	return n, nil
}

// configure parses structural params into typed fields.
func configure(n *Node) error {
	switch n.kind {
	case KindDecorator:
		switch n.decorator {
		case DecoratorRepeat:
			n.limit, _ = intParam(n.params, "times", 0)
			n.flag = boolParam(n.params, "stop_on_failure", false)
		case DecoratorRetry, DecoratorUntilFailure:
			n.limit, _ = intParam(n.params, "max", 0)
		}
		if n.limit < 0 {
			return fmt.Errorf("%w: %s limit must be >= 0", ErrInvalidParam, n.variant)
		}
	case KindComposite:
		if n.policy == PolicyParallel {
			policy, _ := n.params["policy"].(string)
			switch strings.ToLower(policy) {
			case "", "all":
				n.flag = false
			case "one", "any":
				n.flag = true
			default:
				return fmt.Errorf("%w: unknown parallel policy %q", ErrInvalidParam, policy)
			}
		}
	}
	return nil
}
