package scape

type DeathCause string

const (
	CauseNone        DeathCause = ""
	CauseOutOfBounds DeathCause = "out_of_bounds"
	CauseCollision   DeathCause = "collision"
)

// Bird is one policy-controlled agent. X is fixed for the whole generation;
// only vertical motion is simulated.
type Bird struct {
	X        float64
	Y        float64
	Velocity float64
	Radius   float64

	Fitness float64
	Score   int
	Alive   bool

	Cause  DeathCause
	DiedAt int

	gravity      float64
	jumpVelocity float64
}

func newBird(cfg Config) *Bird {
	return &Bird{
		X:            cfg.BirdX,
		Y:            cfg.BirdStartY,
		Radius:       cfg.BirdRadius,
		Alive:        true,
		gravity:      cfg.Gravity,
		jumpVelocity: cfg.JumpVelocity,
	}
}

// Jump replaces the current velocity with the upward jump impulse.
func (b *Bird) Jump() {
	if !b.Alive {
		return
	}
	b.Velocity = b.jumpVelocity
}

// Integrate advances vertical motion by one semi-implicit Euler step.
func (b *Bird) Integrate(dt float64) {
	b.Velocity += b.gravity * dt
	b.Y += b.Velocity * dt
}

func (b *Bird) OutOfBounds(worldHeight float64) bool {
	return b.Y-b.Radius < 0 || b.Y+b.Radius > worldHeight
}

func (b *Bird) kill(cause DeathCause, penalty float64, tick int) {
	b.Alive = false
	b.Cause = cause
	b.DiedAt = tick
	b.Fitness -= penalty
}
