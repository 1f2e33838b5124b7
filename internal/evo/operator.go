package evo

import (
	"context"
	"fmt"
	"math/rand"

	"flapneat/internal/model"
)

// Operator derives a child genome. Apply must not modify its argument.
type Operator interface {
	Name() string
	Apply(ctx context.Context, genome model.Genome) (model.Genome, error)
}

// WeightedMutation pairs an operator with its relative selection weight.
type WeightedMutation struct {
	Operator Operator
	Weight   float64
}

// DefaultMutationPolicy favours weight changes; topology grows slowly.
func DefaultMutationPolicy(rng *rand.Rand) []WeightedMutation {
	return []WeightedMutation{
		{Operator: &PerturbWeightsProportional{Rand: rng, MaxDelta: 1}, Weight: 0.55},
		{Operator: &PerturbRandomWeight{Rand: rng, MaxDelta: 0.5}, Weight: 0.15},
		{Operator: &PerturbRandomBias{Rand: rng, MaxDelta: 0.5}, Weight: 0.15},
		{Operator: &AddRandomSynapse{Rand: rng, MaxAbsWeight: 1}, Weight: 0.05},
		{Operator: &AddRandomNeuron{Rand: rng}, Weight: 0.05},
		{Operator: &ChangeRandomActivation{Rand: rng}, Weight: 0.05},
	}
}

func validatePolicy(policy []WeightedMutation) error {
	if len(policy) == 0 {
		return fmt.Errorf("mutation policy is required")
	}
	total := 0.0
	for i, item := range policy {
		if item.Operator == nil {
			return fmt.Errorf("mutation policy entry %d has no operator", i)
		}
		if item.Weight < 0 {
			return fmt.Errorf("mutation policy entry %d (%s) has negative weight", i, item.Operator.Name())
		}
		total += item.Weight
	}
	if total == 0 {
		return fmt.Errorf("mutation policy needs at least one positive weight")
	}
	return nil
}

// chooseOperator draws an operator with probability proportional to its
// weight. Zero-weight entries are never chosen.
func chooseOperator(rng *rand.Rand, policy []WeightedMutation) Operator {
	total := 0.0
	for _, item := range policy {
		total += item.Weight
	}
	pick := rng.Float64() * total
	var last Operator
	for _, item := range policy {
		if item.Weight <= 0 {
			continue
		}
		last = item.Operator
		if pick < item.Weight {
			return item.Operator
		}
		pick -= item.Weight
	}
	return last
}
