package scape

// Obstacle is a pipe pair scrolling left with a passable gap between GapTop
// and GapBottom.
type Obstacle struct {
	ID        int
	X         float64
	Width     float64
	GapTop    float64
	GapBottom float64
	Passed    bool

	speed float64
}

func (o *Obstacle) Advance(dt float64) {
	o.X -= o.speed * dt
}

func (o *Obstacle) Offscreen() bool {
	return o.X+o.Width < 0
}

// CollidesWith treats the pipes as two half-planes clipped to the obstacle's
// columns. Corner clipping is not detected.
func (o *Obstacle) CollidesWith(b *Bird) bool {
	if b.Y-b.Radius < o.GapTop || b.Y+b.Radius > o.GapBottom {
		if b.X+b.Radius > o.X && b.X-b.Radius < o.X+o.Width {
			return true
		}
	}
	return false
}
