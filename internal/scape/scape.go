package scape

import (
	"context"
	"errors"
)

var (
	ErrConfig = errors.New("invalid scape config")
	ErrPolicy = errors.New("policy evaluation failed")
)

// Observation is the per-tick input handed to a policy: the bird's vertical
// position followed by its absolute vertical distance to the closest
// obstacle's gap top and gap bottom.
type Observation [3]float64

// Policy maps an observation to an action signal. The runner jumps when the
// returned value exceeds Config.JumpThreshold.
type Policy interface {
	Evaluate(obs Observation) (float64, error)
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(obs Observation) (float64, error)

func (f PolicyFunc) Evaluate(obs Observation) (float64, error) {
	return f(obs)
}

// GenerationScape scores a whole population in one shared world. The returned
// result holds one record per policy, in input order.
type GenerationScape interface {
	Name() string
	EvaluateGeneration(ctx context.Context, policies []Policy) (GenerationResult, error)
}

// Observer receives a read-only frame after every tick.
type Observer interface {
	OnTick(frame Frame)
}

type ObserverFunc func(frame Frame)

func (f ObserverFunc) OnTick(frame Frame) {
	f(frame)
}
