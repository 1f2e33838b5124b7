package agent

import (
	"fmt"

	"flapneat/internal/model"
	"flapneat/internal/nn"
	"flapneat/internal/scape"
)

// Cortex drives one bird from a genome. It feeds the three observation values
// to the genome's input neurons, scaled by inputScale, and returns the first
// output neuron as the action signal.
type Cortex struct {
	id         string
	genomeID   string
	network    *nn.Network
	inputScale float64
	inputs     []float64
}

func NewCortex(id string, genome model.Genome, inputScale float64) (*Cortex, error) {
	if id == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if len(genome.InputNeuronIDs) != len(scape.Observation{}) {
		return nil, fmt.Errorf("genome %s needs %d input neurons, has %d", genome.ID, len(scape.Observation{}), len(genome.InputNeuronIDs))
	}
	if len(genome.OutputNeuronIDs) == 0 {
		return nil, fmt.Errorf("output neuron ids are required")
	}
	if inputScale == 0 {
		inputScale = 1
	}
	network, err := nn.NewNetwork(genome)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}

	return &Cortex{
		id:         id,
		genomeID:   genome.ID,
		network:    network,
		inputScale: inputScale,
		inputs:     make([]float64, len(scape.Observation{})),
	}, nil
}

func (c *Cortex) ID() string {
	return c.id
}

func (c *Cortex) GenomeID() string {
	return c.genomeID
}

func (c *Cortex) Evaluate(obs scape.Observation) (float64, error) {
	for i, v := range obs {
		c.inputs[i] = v * c.inputScale
	}
	out, err := c.network.Activate(c.inputs)
	if err != nil {
		return 0, fmt.Errorf("agent %s: %w", c.id, err)
	}
	return out[0], nil
}

// Reset clears recurrent state before the cortex is reused in a new generation.
func (c *Cortex) Reset() {
	c.network.Reset()
}

// Policies wraps genomes as engine policies, one cortex per genome in order.
func Policies(genomes []model.Genome, inputScale float64) ([]scape.Policy, error) {
	policies := make([]scape.Policy, 0, len(genomes))
	for i, genome := range genomes {
		id := genome.ID
		if id == "" {
			id = fmt.Sprintf("agent-%d", i)
		}
		cortex, err := NewCortex(id, genome, inputScale)
		if err != nil {
			return nil, err
		}
		policies = append(policies, cortex)
	}
	return policies, nil
}
