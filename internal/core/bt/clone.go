package bt

import (
	"github.com/google/uuid"

	"github.com/zeusync/behaviour/internal/core/observability/log"
)

// Clone duplicates the arena under fresh ids and remaps every edge 1:1.
// Actions are rebuilt from their factories, the blackboard is copied by value
// and every node starts Running and not started. The clone shares the
// registry, policy and logger (all read-only) but no bus.
func (t *Tree) Clone() *Tree {
	t.Root()

	c := &Tree{
		name:       t.name,
		index:      make(map[string]*Node, len(t.nodes)),
		nodes:      make([]*Node, 0, len(t.nodes)),
		blackboard: t.blackboard.Clone(),
		treeState:  StateRunning,
		registry:   t.registry,
		policy:     t.policy,
		logger:     t.logger,
	}

	remap := make(map[string]string, len(t.nodes))
	for _, n := range t.nodes {
		remap[n.id] = uuid.NewString()
	}

	for _, n := range t.nodes {
		cn := n.duplicate(remap[n.id])
		if n.kind == KindAction {
			rebuilt, err := t.registry.build(cn.id, n.variant, n.params)
			if err != nil {
				// The variant was constructible when n was created; a factory
				// removed or changed since then leaves the leaf failing.
				t.logger.Error("clone could not rebuild action",
					log.String("tree", t.name), log.String("variant", n.variant), log.Error(err))
			} else {
				cn.action = rebuilt.action
			}
		}
		if n.child != "" {
			cn.child = remap[n.child]
		}
		if len(n.children) > 0 {
			cn.children = make([]string, 0, len(n.children))
			for _, id := range n.children {
				if mapped, ok := remap[id]; ok {
					cn.children = append(cn.children, mapped)
				}
			}
		}
		c.insert(cn)
	}
	c.root = remap[t.root]
	return c
}
