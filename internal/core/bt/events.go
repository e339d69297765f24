package bt

// Event types published on the tree's bus.
const (
	EventNodeCreated  = "bt.node.created"
	EventNodeDeleted  = "bt.node.deleted"
	EventChildAdded   = "bt.child.added"
	EventChildRemoved = "bt.child.removed"
	EventTreeSettled  = "bt.tree.settled"
)

type NodeEvent struct {
	Tree    string `json:"tree"`
	Node    string `json:"node"`
	Variant string `json:"variant"`
}

type EdgeEvent struct {
	Tree   string `json:"tree"`
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

type TreeEvent struct {
	Tree  string `json:"tree"`
	State State  `json:"state"`
}
