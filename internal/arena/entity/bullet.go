package entity

import "github.com/zeusync/arena/internal/core/physics"

// Bullet is a projectile. Owner is a tank name, looked up on hit; the
// bullet does not keep the tank alive.
type Bullet struct {
	ID        uint64
	Owner     string
	Pos       physics.Vec2
	Vel       physics.Vec2
	SpawnTick uint64
	Age       int
	Active    bool
}

func (b *Bullet) X() float64 { return b.Pos.Xv }
func (b *Bullet) Y() float64 { return b.Pos.Yv }

// Advance moves the bullet one tick along its velocity.
func (b *Bullet) Advance() {
	b.Pos = b.Pos.Add(b.Vel)
	b.Age++
}

// Expired reports whether the bullet has outlived BulletLifetimeTicks.
func (b *Bullet) Expired() bool {
	return b.Age >= BulletLifetimeTicks
}
