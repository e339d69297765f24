package bt

import "fmt"

// State is the outcome of a node update. Running is the zero value and the
// only state that persists across ticks.
type State int

const (
	StateRunning State = iota
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is Success or Failure.
func (s State) Terminal() bool { return s == StateSuccess || s == StateFailure }

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "running", "Running":
		return StateRunning, nil
	case "success", "Success":
		return StateSuccess, nil
	case "failure", "Failure":
		return StateFailure, nil
	default:
		return StateRunning, fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
