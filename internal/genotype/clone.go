package genotype

import "flapneat/internal/model"

func CloneGenome(g model.Genome) model.Genome {
	out := g
	out.Neurons = append([]model.Neuron(nil), g.Neurons...)
	out.Synapses = append([]model.Synapse(nil), g.Synapses...)
	out.InputNeuronIDs = append([]string(nil), g.InputNeuronIDs...)
	out.OutputNeuronIDs = append([]string(nil), g.OutputNeuronIDs...)
	return out
}

// CloneAs copies g under a new id and generation.
func CloneAs(g model.Genome, id string, generation int) model.Genome {
	out := CloneGenome(g)
	out.ID = id
	out.Generation = generation
	return out
}
