package physics

import "math"

// Vec2 is a plain 2D vector.
type Vec2 struct{ Xv, Yv float64 }

func (v Vec2) X() float64 { return v.Xv }
func (v Vec2) Y() float64 { return v.Yv }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.Xv + o.Xv, v.Yv + o.Yv} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.Xv - o.Xv, v.Yv - o.Yv} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.Xv * k, v.Yv * k} }
func (v Vec2) Len() float64 { return math.Hypot(v.Xv, v.Yv) }
func (v Vec2) DistanceTo(o Vec2) float64 { return Distance2(v.Xv, v.Yv, o.Xv, o.Yv) }

// FromHeading returns the unit vector for a heading in degrees. 0° points
// along +X and angles grow towards +Y (screen coordinates).
func FromHeading(deg float64) Vec2 {
	rad := deg * math.Pi / 180
	return Vec2{math.Cos(rad), math.Sin(rad)}
}

// Distance2 computes Euclidean distance between two 2D points.
func Distance2(x1, y1, x2, y2 float64) float64 { return math.Hypot(x2-x1, y2-y1) }

// Distance2V computes distance from two Vector2.
func Distance2V(a, b Vector2) float64 { return math.Hypot(b.X()-a.X(), b.Y()-a.Y()) }

// NormalizeAngle folds any angle in degrees into [0, 360).
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Overlaps reports whether two circles touch or intersect.
func Overlaps(a, b Circle) bool {
	return Distance2V(a, b) <= a.Radius()+b.Radius()
}

// PointInCircle reports whether p lies within radius r of c (inclusive).
func PointInCircle(p, c Vector2, r float64) bool {
	return Distance2V(p, c) <= r
}

// Bounds is an axis-aligned rectangle anchored at the origin.
type Bounds struct {
	Width  float64
	Height float64
}

// Contains reports whether p is inside the rectangle, edges included.
func (b Bounds) Contains(p Vector2) bool {
	return p.X() >= 0 && p.X() <= b.Width && p.Y() >= 0 && p.Y() <= b.Height
}

// ClampCircle pulls a circle's center back inside the rectangle so the whole
// circle fits.
func (b Bounds) ClampCircle(p Vec2, radius float64) Vec2 {
	return Vec2{
		Clamp(p.Xv, radius, b.Width-radius),
		Clamp(p.Yv, radius, b.Height-radius),
	}
}

// FitsCircle reports whether a circle of the given radius at p lies fully
// inside the rectangle.
func (b Bounds) FitsCircle(p Vec2, radius float64) bool {
	return p.Xv >= radius && p.Xv <= b.Width-radius && p.Yv >= radius && p.Yv <= b.Height-radius
}

// Separate pushes a and b apart along the line between their centers so they
// end up exactly minDist apart, each moving half the overlap. Coincident
// centers are split along the given fallback heading. ok is false when the
// two were already far enough apart.
func Separate(a, b Vec2, minDist, fallbackDeg float64) (na, nb Vec2, ok bool) {
	d := b.Sub(a)
	dist := d.Len()
	if dist >= minDist {
		return a, b, false
	}
	var n Vec2
	if dist == 0 {
		n = FromHeading(fallbackDeg)
	} else {
		n = d.Scale(1 / dist)
	}
	shift := n.Scale((minDist - dist) / 2)
	return a.Sub(shift), b.Add(shift), true
}
