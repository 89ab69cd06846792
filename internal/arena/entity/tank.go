package entity

import (
	"math"

	"github.com/zeusync/arena/internal/core/physics"
)

// Tank is one agent-controlled body. The tick loop is its only writer.
type Tank struct {
	Name   string
	Color  string
	Source string

	Pos    physics.Vec2
	Angle  float64
	Health int
	Alive  bool

	Score      int
	RoundScore int
	Kills      int

	lastShotTick int64
}

// NewTank places a fresh tank. Scores start at zero and the gun is ready.
func NewTank(name, color, source string, pos physics.Vec2, angle float64) *Tank {
	t := &Tank{
		Name:   name,
		Color:  color,
		Source: source,
	}
	t.ResetForRound(pos, angle)
	return t
}

func (t *Tank) X() float64      { return t.Pos.Xv }
func (t *Tank) Y() float64      { return t.Pos.Yv }
func (t *Tank) Radius() float64 { return TankRadius }

// Heading is the unit vector the tank faces.
func (t *Tank) Heading() physics.Vec2 {
	return physics.FromHeading(t.Angle)
}

// Drive displaces the tank by TankSpeed along (or against) its heading and
// clamps it into bounds. It reports whether a move was attempted.
func (t *Tank) Drive(m Move, bounds physics.Bounds) bool {
	if !t.Alive {
		return false
	}
	var step float64
	switch m {
	case MoveForward:
		step = TankSpeed
	case MoveBackward:
		step = -TankSpeed
	default:
		return false
	}
	t.Pos = bounds.ClampCircle(t.Pos.Add(t.Heading().Scale(step)), TankRadius)
	return true
}

// Turn rotates by RotationSpeed in the sign of dir. Zero is ignored.
func (t *Tank) Turn(dir int) bool {
	if !t.Alive || dir == 0 {
		return false
	}
	if dir > 0 {
		dir = 1
	} else {
		dir = -1
	}
	t.Angle = physics.NormalizeAngle(t.Angle + float64(dir)*RotationSpeed)
	return true
}

// Place moves the tank and folds it back into bounds; used by overlap
// separation.
func (t *Tank) Place(p physics.Vec2, bounds physics.Bounds) {
	t.Pos = bounds.ClampCircle(p, TankRadius)
}

// CanFire reports whether the cooldown has elapsed at tick.
func (t *Tank) CanFire(tick uint64) bool {
	return t.Alive && int64(tick)-t.lastShotTick >= ShotCooldownTicks
}

// Fire spawns a bullet in front of the tank if the cooldown allows it.
func (t *Tank) Fire(tick, id uint64) (*Bullet, bool) {
	if !t.CanFire(tick) {
		return nil, false
	}
	dir := t.Heading()
	t.lastShotTick = int64(tick)
	return &Bullet{
		ID:        id,
		Owner:     t.Name,
		Pos:       t.Pos.Add(dir.Scale(MuzzleOffset)),
		Vel:       dir.Scale(BulletSpeed),
		SpawnTick: tick,
		Active:    true,
	}, true
}

// TakeDamage subtracts health, never below zero. destroyed is true only on
// the hit that kills the tank.
func (t *Tank) TakeDamage(n int) (destroyed bool) {
	if !t.Alive || n <= 0 {
		return false
	}
	t.Health -= n
	if t.Health <= 0 {
		t.Health = 0
		t.Alive = false
		return true
	}
	return false
}

// Award adds points to both the round and the cumulative score.
func (t *Tank) Award(points int) {
	t.Score += points
	t.RoundScore += points
}

// ResetForRound restores per-round state and keeps cumulative scores.
func (t *Tank) ResetForRound(pos physics.Vec2, angle float64) {
	t.Pos = pos
	t.Angle = physics.NormalizeAngle(angle)
	t.Health = MaxHealth
	t.Alive = true
	t.RoundScore = 0
	t.lastShotTick = math.MinInt64 / 2
}

// ResetScores zeroes everything a new match starts without.
func (t *Tank) ResetScores() {
	t.Score = 0
	t.RoundScore = 0
	t.Kills = 0
}

// Restore overwrites the combat state, used when a match is rebuilt from a
// snapshot.
func (t *Tank) Restore(pos physics.Vec2, angle float64, health int, alive bool, score, roundScore, kills int) {
	t.Pos = pos
	t.Angle = physics.NormalizeAngle(angle)
	t.Health = max(0, min(MaxHealth, health))
	t.Alive = alive && t.Health > 0
	t.Score = score
	t.RoundScore = roundScore
	t.Kills = kills
	t.lastShotTick = math.MinInt64 / 2
}
