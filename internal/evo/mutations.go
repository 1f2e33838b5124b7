package evo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"flapneat/internal/genotype"
	"flapneat/internal/model"
	"flapneat/internal/nn"
)

var (
	ErrNoSynapses       = errors.New("genome has no synapses")
	ErrNoNeurons        = errors.New("genome has no neurons")
	ErrSynapseExists    = errors.New("synapse already exists")
	ErrNoMutationChoice = errors.New("no mutation choice available")

	errNoRand = errors.New("random source is required")
)

// genomeIndex answers the membership questions operators ask while picking
// a mutation site.
type genomeIndex struct {
	neurons  map[string]int
	synapses map[string]struct{}
	links    map[[2]string]struct{}
	inputs   map[string]struct{}
}

func indexGenome(g model.Genome) genomeIndex {
	idx := genomeIndex{
		neurons:  make(map[string]int, len(g.Neurons)),
		synapses: make(map[string]struct{}, len(g.Synapses)),
		links:    make(map[[2]string]struct{}, len(g.Synapses)),
		inputs:   make(map[string]struct{}, len(g.InputNeuronIDs)),
	}
	for i, n := range g.Neurons {
		idx.neurons[n.ID] = i
	}
	for _, s := range g.Synapses {
		idx.synapses[s.ID] = struct{}{}
		idx.links[[2]string{s.From, s.To}] = struct{}{}
	}
	for _, id := range g.InputNeuronIDs {
		idx.inputs[id] = struct{}{}
	}
	return idx
}

// hidden returns the positions of every neuron that is not an input.
func (idx genomeIndex) hidden(g model.Genome) []int {
	out := make([]int, 0, len(g.Neurons))
	for i, n := range g.Neurons {
		if _, in := idx.inputs[n.ID]; !in {
			out = append(out, i)
		}
	}
	return out
}

func (idx genomeIndex) newSynapseID(rng *rand.Rand) string {
	for {
		id := fmt.Sprintf("srand-%d", rng.Int63())
		if _, taken := idx.synapses[id]; !taken {
			idx.synapses[id] = struct{}{}
			return id
		}
	}
}

func (idx genomeIndex) newNeuronID(rng *rand.Rand) string {
	for {
		id := fmt.Sprintf("nrand-%d", rng.Int63())
		if _, taken := idx.neurons[id]; !taken {
			idx.neurons[id] = -1
			return id
		}
	}
}

// jitter draws uniformly from [-limit, limit].
func jitter(rng *rand.Rand, limit float64) float64 {
	return (rng.Float64()*2 - 1) * limit
}

func checkMagnitude(name string, v float64) error {
	if !(v > 0) {
		return fmt.Errorf("%s must be > 0, got %v", name, v)
	}
	return nil
}

func pickActivations(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return nn.DefaultActivations
}

// PerturbRandomWeight shifts one random synapse weight by up to MaxDelta.
type PerturbRandomWeight struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomWeight) Name() string { return "perturb_random_weight" }

func (o *PerturbRandomWeight) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	switch {
	case len(genome.Synapses) == 0:
		return model.Genome{}, ErrNoSynapses
	case o.Rand == nil:
		return model.Genome{}, errNoRand
	}
	if err := checkMagnitude("max delta", o.MaxDelta); err != nil {
		return model.Genome{}, err
	}
	child := genotype.CloneGenome(genome)
	child.Synapses[o.Rand.Intn(len(child.Synapses))].Weight += jitter(o.Rand, o.MaxDelta)
	return child, nil
}

// PerturbWeightsProportional visits every synapse and shifts each with
// probability 1/sqrt(n). When the draw leaves every weight alone, one random
// synapse is shifted instead.
type PerturbWeightsProportional struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbWeightsProportional) Name() string { return "perturb_weights_proportional" }

func (o *PerturbWeightsProportional) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	switch {
	case len(genome.Synapses) == 0:
		return model.Genome{}, ErrNoSynapses
	case o.Rand == nil:
		return model.Genome{}, errNoRand
	}
	if err := checkMagnitude("max delta", o.MaxDelta); err != nil {
		return model.Genome{}, err
	}
	child := genotype.CloneGenome(genome)
	p := 1 / math.Sqrt(float64(len(child.Synapses)))
	touched := false
	for i := range child.Synapses {
		if o.Rand.Float64() < p {
			child.Synapses[i].Weight += jitter(o.Rand, o.MaxDelta)
			touched = true
		}
	}
	if !touched {
		child.Synapses[o.Rand.Intn(len(child.Synapses))].Weight += jitter(o.Rand, o.MaxDelta)
	}
	return child, nil
}

// PerturbRandomBias shifts the bias of one non-input neuron.
type PerturbRandomBias struct {
	Rand     *rand.Rand
	MaxDelta float64
}

func (o *PerturbRandomBias) Name() string { return "perturb_random_bias" }

func (o *PerturbRandomBias) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o.Rand == nil {
		return model.Genome{}, errNoRand
	}
	if err := checkMagnitude("max delta", o.MaxDelta); err != nil {
		return model.Genome{}, err
	}
	sites := indexGenome(genome).hidden(genome)
	if len(sites) == 0 {
		return model.Genome{}, ErrNoNeurons
	}
	child := genotype.CloneGenome(genome)
	child.Neurons[sites[o.Rand.Intn(len(sites))]].Bias += jitter(o.Rand, o.MaxDelta)
	return child, nil
}

// ChangeRandomActivation gives one non-input neuron a different activation.
type ChangeRandomActivation struct {
	Rand        *rand.Rand
	Activations []string
}

func (o *ChangeRandomActivation) Name() string { return "change_random_activation" }

func (o *ChangeRandomActivation) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o.Rand == nil {
		return model.Genome{}, errNoRand
	}
	sites := indexGenome(genome).hidden(genome)
	if len(sites) == 0 {
		return model.Genome{}, ErrNoNeurons
	}
	site := sites[o.Rand.Intn(len(sites))]

	var choices []string
	for _, name := range pickActivations(o.Activations) {
		if name != "" && name != genome.Neurons[site].Activation {
			choices = append(choices, name)
		}
	}
	if len(choices) == 0 {
		return model.Genome{}, ErrNoMutationChoice
	}
	child := genotype.CloneGenome(genome)
	child.Neurons[site].Activation = choices[o.Rand.Intn(len(choices))]
	return child, nil
}

// AddRandomSynapse connects a pair of neurons that has no synapse yet. Inputs
// never receive synapses. A link that does not point forward in neuron order
// is marked recurrent, since it reads the previous tick's value.
type AddRandomSynapse struct {
	Rand         *rand.Rand
	MaxAbsWeight float64
}

func (o *AddRandomSynapse) Name() string { return "add_random_synapse" }

func (o *AddRandomSynapse) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	switch {
	case o.Rand == nil:
		return model.Genome{}, errNoRand
	case len(genome.Neurons) == 0:
		return model.Genome{}, ErrNoNeurons
	}
	if err := checkMagnitude("max abs weight", o.MaxAbsWeight); err != nil {
		return model.Genome{}, err
	}

	idx := indexGenome(genome)
	var open [][2]int
	for _, to := range idx.hidden(genome) {
		for from := range genome.Neurons {
			if _, linked := idx.links[[2]string{genome.Neurons[from].ID, genome.Neurons[to].ID}]; !linked {
				open = append(open, [2]int{from, to})
			}
		}
	}
	if len(open) == 0 {
		return model.Genome{}, ErrSynapseExists
	}
	pick := open[o.Rand.Intn(len(open))]

	child := genotype.CloneGenome(genome)
	child.Synapses = append(child.Synapses, model.Synapse{
		ID:        idx.newSynapseID(o.Rand),
		From:      genome.Neurons[pick[0]].ID,
		To:        genome.Neurons[pick[1]].ID,
		Weight:    jitter(o.Rand, o.MaxAbsWeight),
		Enabled:   true,
		Recurrent: pick[0] >= pick[1],
	})
	return child, nil
}

// AddRandomNeuron disables an enabled synapse a->b and routes it through a
// new hidden neuron h, inserted just before b: a->h carries weight 1 and
// h->b keeps the old weight.
type AddRandomNeuron struct {
	Rand        *rand.Rand
	Activations []string
}

func (o *AddRandomNeuron) Name() string { return "add_random_neuron" }

func (o *AddRandomNeuron) Apply(_ context.Context, genome model.Genome) (model.Genome, error) {
	if o.Rand == nil {
		return model.Genome{}, errNoRand
	}
	var enabled []int
	for i, s := range genome.Synapses {
		if s.Enabled {
			enabled = append(enabled, i)
		}
	}
	if len(enabled) == 0 {
		return model.Genome{}, ErrNoSynapses
	}
	activations := pickActivations(o.Activations)

	idx := indexGenome(genome)
	at := enabled[o.Rand.Intn(len(enabled))]
	split := genome.Synapses[at]
	target, ok := idx.neurons[split.To]
	if !ok {
		return model.Genome{}, fmt.Errorf("synapse %s targets unknown neuron %s", split.ID, split.To)
	}
	hidden := model.Neuron{
		ID:         idx.newNeuronID(o.Rand),
		Activation: activations[o.Rand.Intn(len(activations))],
	}

	child := genotype.CloneGenome(genome)
	child.Synapses[at].Enabled = false
	child.Neurons = append(child.Neurons[:target], append([]model.Neuron{hidden}, child.Neurons[target:]...)...)
	child.Synapses = append(child.Synapses,
		model.Synapse{
			ID:        idx.newSynapseID(o.Rand),
			From:      split.From,
			To:        hidden.ID,
			Weight:    1,
			Enabled:   true,
			Recurrent: split.Recurrent,
		},
		model.Synapse{
			ID:      idx.newSynapseID(o.Rand),
			From:    hidden.ID,
			To:      split.To,
			Weight:  split.Weight,
			Enabled: true,
		},
	)
	return child, nil
}
