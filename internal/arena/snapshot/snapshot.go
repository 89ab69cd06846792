package snapshot

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/arena/internal/arena/entity"
)

const Version = 1

// Tank is the externally visible state of one tank.
type Tank struct {
	Name       string  `json:"name"`
	Color      string  `json:"color"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Angle      float64 `json:"angle"`
	Health     int     `json:"health"`
	Alive      bool    `json:"alive"`
	Score      int     `json:"score"`
	RoundScore int     `json:"round_score"`
	Kills      int     `json:"kills"`
}

// Bullet is the externally visible state of one bullet.
type Bullet struct {
	ID        uint64  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VelocityX float64 `json:"velocity_x"`
	VelocityY float64 `json:"velocity_y"`
	Owner     string  `json:"owner"`
	Age       int     `json:"age"`
}

// Snapshot is an immutable, point-in-time copy of a match. Values handed out
// by the controller are shared between readers and must not be modified.
type Snapshot struct {
	Version        int                  `json:"version"`
	MatchID        string               `json:"match_id"`
	Tick           uint64               `json:"tick"`
	Phase          entity.Phase         `json:"phase"`
	Paused         bool                 `json:"paused"`
	Round          int                  `json:"round_number"`
	RoundStartTick uint64               `json:"round_start_tick"`
	MaxRounds      int                  `json:"max_rounds"`
	RoundTime      float64              `json:"round_time"`
	ThinkTimeout   float64              `json:"think_timeout"`
	TimeRemaining  float64              `json:"time_remaining"`
	ArenaWidth     float64              `json:"arena_width"`
	ArenaHeight    float64              `json:"arena_height"`
	Tanks          []Tank               `json:"tanks"`
	Bullets        []Bullet             `json:"bullets"`
	Scores         map[string]int       `json:"scores"`
	Rounds         []entity.RoundResult `json:"rounds"`
}

// Running reports whether the match is in progress (running or between
// rounds).
func (s *Snapshot) Running() bool {
	return s.Phase == entity.PhaseRunning || s.Phase == entity.PhaseRoundEnd
}

// Tank finds a tank by name.
func (s *Snapshot) Tank(name string) (Tank, bool) {
	for _, t := range s.Tanks {
		if t.Name == name {
			return t, true
		}
	}
	return Tank{}, false
}

// Digest hashes the canonical JSON form. Two snapshots with the same digest
// carry the same observable state.
func (s *Snapshot) Digest() uint64 {
	raw, err := json.Marshal(s)
	if err != nil {
		return 0
	}
	return xxhash.Sum64(raw)
}
