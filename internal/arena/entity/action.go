package entity

import "fmt"

// Move is the translation intent of a single tick.
type Move uint8

const (
	MoveNone Move = iota
	MoveForward
	MoveBackward
)

func (m Move) String() string {
	switch m {
	case MoveForward:
		return "forward"
	case MoveBackward:
		return "backward"
	default:
		return "none"
	}
}

// ParseMove maps the wire strings used by decision code. The empty string
// means no movement.
func ParseMove(s string) (Move, error) {
	switch s {
	case "":
		return MoveNone, nil
	case "forward":
		return MoveForward, nil
	case "backward":
		return MoveBackward, nil
	default:
		return MoveNone, fmt.Errorf("unknown move %q", s)
	}
}

// Action is what one tank wants to do during one tick.
type Action struct {
	Move   Move
	Rotate int
	Shoot  bool
	Taunt  string
}

// Noop is substituted whenever an agent fails to decide.
var Noop = Action{}

func (a Action) IsNoop() bool {
	return a == Noop
}
