package entity

// Fixed combat and movement constants. Distances are arena units, speeds
// are per tick, times are in ticks of a 60 Hz loop.
const (
	TankSize   = 20.0
	TankRadius = TankSize / 2

	TankSpeed     = 2.0
	RotationSpeed = 3.0

	BulletSize          = 4.0
	BulletSpeed         = 5.0
	BulletLifetimeTicks = 120
	// MuzzleOffset keeps a fresh bullet clear of its own hull.
	MuzzleOffset = TankRadius + 5

	ShotCooldownTicks = 30

	MaxHealth    = 100
	DamagePerHit = 25
	HitPoints    = 10
	KillBonus    = 50
)
