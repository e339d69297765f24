package bt

// Policy holds the conventions that are configurable rather than fixed.
type Policy struct {
	// EmptySequencer is the result of a Sequencer with no children.
	EmptySequencer State
	// EmptySelector is the result of a Selector with no children.
	EmptySelector State
	// OverwriteSingleChild lets AddChild replace the child of a Decorator or
	// Root. When false AddChild on an occupied slot returns ErrChildOccupied.
	OverwriteSingleChild bool
}

// DefaultPolicy is the vacuous-truth convention with overwrite on.
func DefaultPolicy() Policy {
	return Policy{
		EmptySequencer:       StateSuccess,
		EmptySelector:        StateFailure,
		OverwriteSingleChild: true,
	}
}
