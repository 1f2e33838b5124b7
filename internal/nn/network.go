package nn

import (
	"fmt"

	"flapneat/internal/model"
)

type node struct {
	id       string
	bias     float64
	activate ActivationFunc
	inputs   []link
	fixed    bool
}

type link struct {
	from   int
	weight float64
}

// Network is a compiled genome. Neurons are evaluated in genome order each
// pass; a synapse from a neuron later in that order reads the value it had on
// the previous pass, which is how recurrent connections carry memory.
type Network struct {
	id      string
	nodes   []node
	values  []float64
	inputs  []int
	outputs []int
}

func NewNetwork(genome model.Genome) (*Network, error) {
	if len(genome.InputNeuronIDs) == 0 {
		return nil, fmt.Errorf("genome %s has no input neurons", genome.ID)
	}
	if len(genome.OutputNeuronIDs) == 0 {
		return nil, fmt.Errorf("genome %s has no output neurons", genome.ID)
	}

	index := make(map[string]int, len(genome.Neurons))
	nodes := make([]node, len(genome.Neurons))
	for i, neuron := range genome.Neurons {
		fn, err := GetActivation(neuron.Activation)
		if err != nil {
			return nil, fmt.Errorf("neuron %s: %w", neuron.ID, err)
		}
		if _, dup := index[neuron.ID]; dup {
			return nil, fmt.Errorf("genome %s has duplicate neuron %s", genome.ID, neuron.ID)
		}
		index[neuron.ID] = i
		nodes[i] = node{id: neuron.ID, bias: neuron.Bias, activate: fn}
	}

	lookup := func(ids []string) ([]int, error) {
		out := make([]int, len(ids))
		for i, id := range ids {
			pos, ok := index[id]
			if !ok {
				return nil, fmt.Errorf("genome %s references unknown neuron %s", genome.ID, id)
			}
			out[i] = pos
		}
		return out, nil
	}
	inputs, err := lookup(genome.InputNeuronIDs)
	if err != nil {
		return nil, err
	}
	outputs, err := lookup(genome.OutputNeuronIDs)
	if err != nil {
		return nil, err
	}
	for _, pos := range inputs {
		nodes[pos].fixed = true
	}

	for _, synapse := range genome.Synapses {
		if !synapse.Enabled {
			continue
		}
		from, ok := index[synapse.From]
		if !ok {
			return nil, fmt.Errorf("synapse %s: unknown source %s", synapse.ID, synapse.From)
		}
		to, ok := index[synapse.To]
		if !ok {
			return nil, fmt.Errorf("synapse %s: unknown target %s", synapse.ID, synapse.To)
		}
		nodes[to].inputs = append(nodes[to].inputs, link{from: from, weight: synapse.Weight})
	}

	return &Network{
		id:      genome.ID,
		nodes:   nodes,
		values:  make([]float64, len(nodes)),
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

// Activate runs one pass and returns the output neuron values in
// OutputNeuronIDs order.
func (n *Network) Activate(in []float64) ([]float64, error) {
	if len(in) != len(n.inputs) {
		return nil, fmt.Errorf("genome %s: expected %d inputs, got %d", n.id, len(n.inputs), len(in))
	}
	for i, pos := range n.inputs {
		n.values[pos] = in[i]
	}
	for i := range n.nodes {
		nd := &n.nodes[i]
		if nd.fixed {
			continue
		}
		sum := nd.bias
		for _, l := range nd.inputs {
			sum += n.values[l.from] * l.weight
		}
		n.values[i] = nd.activate(clamp(sum, sumLimit))
	}

	out := make([]float64, len(n.outputs))
	for i, pos := range n.outputs {
		out[i] = n.values[pos]
	}
	return out, nil
}

// Reset clears remembered neuron values.
func (n *Network) Reset() {
	clear(n.values)
}
