package sandbox

import (
	"errors"
	"fmt"
)

// Agent-level failure classes. Match them with errors.Is on the error
// returned from Decide.
var (
	ErrAgentTimeout       = errors.New("agent timed out")
	ErrAgentRuntime       = errors.New("agent runtime error")
	ErrAgentInvalidAction = errors.New("agent returned an invalid action")
)

var (
	errDeadline    = errors.New("think budget exceeded")
	errAbandoned   = errors.New("runtime did not yield after interrupt; call abandoned")
	errStillBusy   = errors.New("previous call still running")
	errNoThink     = errors.New("decision code does not define a think function")
	errPanicInside = errors.New("interpreter panic")
)

// FailureKind is the executor's failure taxonomy.
type FailureKind uint8

const (
	FailureTimeout FailureKind = iota + 1
	FailureRuntime
	FailureInvalidAction
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureRuntime:
		return "runtime_error"
	case FailureInvalidAction:
		return "invalid_action"
	default:
		return fmt.Sprintf("failure(%d)", uint8(k))
	}
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureTimeout:
		return ErrAgentTimeout
	case FailureRuntime:
		return ErrAgentRuntime
	default:
		return ErrAgentInvalidAction
	}
}

// Failure is the error returned for a failed decision. The agent's action
// for that tick is a no-op.
type Failure struct {
	Kind  FailureKind
	Agent string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", f.Agent, f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	return []error{f.Kind.sentinel(), f.Err}
}

func fail(kind FailureKind, agent string, err error) *Failure {
	return &Failure{Kind: kind, Agent: agent, Err: err}
}
