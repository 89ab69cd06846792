package telemetry

import (
	"fmt"
	"time"
)

// Kind classifies a debug event.
type Kind uint8

const (
	KindMove Kind = iota
	KindRotate
	KindShoot
	KindDamage
	KindHit
	KindSuccessfulHit
	KindDestroyed
	KindTimeout
	KindRuntimeError
	KindInvalidAction
)

var kindNames = [...]string{
	KindMove:          "move",
	KindRotate:        "rotate",
	KindShoot:         "shoot",
	KindDamage:        "damage",
	KindHit:           "hit",
	KindSuccessfulHit: "successful_hit",
	KindDestroyed:     "destroyed",
	KindTimeout:       "timeout",
	KindRuntimeError:  "runtime_error",
	KindInvalidAction: "invalid_action",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown event kind %d", uint8(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

// Event is one entry of an agent's debug log.
type Event struct {
	Time time.Time      `json:"ts"`
	Tick uint64         `json:"tick"`
	Kind Kind           `json:"event"`
	Data map[string]any `json:"data,omitempty"`
}

// LogEntry is one line of the match-wide battle log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}
