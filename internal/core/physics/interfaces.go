package physics

// Lightweight 2D geometry shared by the arena entities and the tick loop.
// Everything here is a pure function of its inputs.

// Vector2 is anything with a 2D position.
type Vector2 interface {
	X() float64
	Y() float64
}

// Circle is a body with a center and a radius, used for hit and overlap tests.
type Circle interface {
	Vector2
	Radius() float64
}
