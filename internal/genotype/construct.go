package genotype

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"flapneat/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

// Neuron ids of the flappy course interface: the three observation inputs
// and the single jump output.
const (
	InputY       = "y"
	InputDTop    = "d_top"
	InputDBottom = "d_bottom"
	OutputJump   = "jump"
)

var (
	FlappyInputNeuronIDs  = []string{InputY, InputDTop, InputDBottom}
	FlappyOutputNeuronIDs = []string{OutputJump}
)

// SeedGenome builds a minimal dense genome: every input wired straight to a
// sigmoid jump neuron with weights and bias drawn from [-1, 1].
func SeedGenome(rng *rand.Rand, id string) (model.Genome, error) {
	if strings.TrimSpace(id) == "" {
		return model.Genome{}, fmt.Errorf("genome id is required")
	}
	rng = ensureRNG(rng)

	genome := model.Genome{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: CurrentSchemaVersion,
			CodecVersion:  CurrentCodecVersion,
		},
		ID:              id,
		InputNeuronIDs:  append([]string(nil), FlappyInputNeuronIDs...),
		OutputNeuronIDs: append([]string(nil), FlappyOutputNeuronIDs...),
	}
	for _, input := range FlappyInputNeuronIDs {
		genome.Neurons = append(genome.Neurons, model.Neuron{ID: input, Activation: "identity"})
	}
	for _, output := range FlappyOutputNeuronIDs {
		genome.Neurons = append(genome.Neurons, model.Neuron{
			ID:         output,
			Activation: "sigmoid",
			Bias:       randomCentered(rng),
		})
		for _, input := range FlappyInputNeuronIDs {
			genome.Synapses = append(genome.Synapses, model.Synapse{
				ID:      fmt.Sprintf("%s:in:%s", output, input),
				From:    input,
				To:      output,
				Weight:  randomCentered(rng),
				Enabled: true,
			})
		}
	}
	return genome, nil
}

// SeedPopulation builds size seed genomes with ids prefix-0 .. prefix-(size-1).
func SeedPopulation(rng *rand.Rand, prefix string, size int) ([]model.Genome, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	rng = ensureRNG(rng)
	population := make([]model.Genome, 0, size)
	for i := 0; i < size; i++ {
		genome, err := SeedGenome(rng, fmt.Sprintf("%s-%d", prefix, i))
		if err != nil {
			return nil, err
		}
		population = append(population, genome)
	}
	return population, nil
}

func randomCentered(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}

func ensureRNG(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
