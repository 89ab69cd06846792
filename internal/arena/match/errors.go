package match

import (
	"errors"

	"github.com/zeusync/arena/internal/arena/config"
)

// Controller-level errors. They are returned synchronously and leave the
// match unchanged.
var (
	ErrDuplicateName      = errors.New("agent name already registered")
	ErrInsufficientAgents = errors.New("at least two agents are required")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrMatchNotIdle       = errors.New("match is not idle")
	ErrMatchNotRunning    = errors.New("match is not running")
	ErrInvalidMatchConfig = config.ErrInvalidMatchConfig
	ErrInvalidSnapshot    = errors.New("invalid snapshot")
)
