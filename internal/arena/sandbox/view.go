package sandbox

// TankView is what decision code sees of a tank.
type TankView struct {
	Name   string
	X      float64
	Y      float64
	Angle  float64
	Health int
	Alive  bool
}

// BulletView is what decision code sees of a bullet.
type BulletView struct {
	X         float64
	Y         float64
	VelocityX float64
	VelocityY float64
	Owner     string
}

// View is the read-only world as seen by one tank on one tick.
type View struct {
	Self        TankView
	Others      []TankView
	Bullets     []BulletView
	ArenaWidth  float64
	ArenaHeight float64
}

// toJS builds a fresh mapping for the interpreter. The interpreter wraps Go
// maps by reference, so every call gets its own copy and an agent can only
// scribble on its private argument.
func (v View) toJS() map[string]any {
	others := make([]any, len(v.Others))
	for i, o := range v.Others {
		others[i] = o.toJS()
	}
	bullets := make([]any, len(v.Bullets))
	for i, b := range v.Bullets {
		bullets[i] = map[string]any{
			"x":          b.X,
			"y":          b.Y,
			"velocity_x": b.VelocityX,
			"velocity_y": b.VelocityY,
			"owner":      b.Owner,
		}
	}
	return map[string]any{
		"my_tank":      v.Self.toJS(),
		"other_tanks":  others,
		"bullets":      bullets,
		"arena_width":  v.ArenaWidth,
		"arena_height": v.ArenaHeight,
	}
}

func (t TankView) toJS() map[string]any {
	return map[string]any{
		"x":      t.X,
		"y":      t.Y,
		"angle":  t.Angle,
		"health": t.Health,
		"alive":  t.Alive,
		"name":   t.Name,
	}
}
