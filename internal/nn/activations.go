package nn

import (
	"errors"
	"fmt"
	"math"
)

var ErrActivationNotFound = errors.New("activation not found")

type ActivationFunc func(x float64) float64

// Neuron sums are clamped to this magnitude before activation so a runaway
// recurrent loop cannot produce Inf or NaN.
const sumLimit = 1000.0

var activations = map[string]ActivationFunc{
	"identity": func(x float64) float64 { return x },
	"relu":     func(x float64) float64 { return math.Max(0, x) },
	"tanh":     math.Tanh,
	"sigmoid":  func(x float64) float64 { return 1 / (1 + math.Exp(-x)) },
	"sin":      math.Sin,
	"gaussian": func(x float64) float64 {
		x = clamp(x, 10)
		return math.Exp(-x * x)
	},
	"abs": math.Abs,
}

// DefaultActivations are the activations mutation operators may pick from.
// "abs" is accepted in stored genomes but never introduced by mutation.
var DefaultActivations = []string{"tanh", "sigmoid", "relu", "sin", "gaussian", "identity"}

func GetActivation(name string) (ActivationFunc, error) {
	fn, ok := activations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrActivationNotFound, name)
	}
	return fn, nil
}

func clamp(x, limit float64) float64 {
	switch {
	case x > limit:
		return limit
	case x < -limit:
		return -limit
	}
	return x
}
