package entity

import "fmt"

// Phase is the match lifecycle state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseRoundEnd
	PhaseFinished
)

var phaseNames = [...]string{
	PhaseIdle:     "idle",
	PhaseRunning:  "running",
	PhaseRoundEnd: "round_end",
	PhaseFinished: "finished",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("unknown phase %d", uint8(p))
	}
	return []byte(phaseNames[p]), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	for i, name := range phaseNames {
		if name == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// RoundEndReason says why a round stopped.
type RoundEndReason string

const (
	RoundEndLastStanding RoundEndReason = "last_standing"
	RoundEndTimeLimit    RoundEndReason = "time_limit"
)

// RoundResult is recorded once per finished round.
type RoundResult struct {
	Round     int            `json:"round"`
	Reason    RoundEndReason `json:"reason"`
	EndTick   uint64         `json:"end_tick"`
	Scores    map[string]int `json:"scores"`
	Survivors []string       `json:"survivors"`
}
