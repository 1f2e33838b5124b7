package genotype

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"slices"

	"flapneat/internal/model"
)

// Fingerprint hashes the topology of a genome: neuron ids with their
// activations and the enabled state of every link. Weights and biases are
// left out, so a weight-only mutation keeps its parent's fingerprint.
func Fingerprint(genome model.Genome) string {
	parts := make([]string, 0, len(genome.Neurons)+len(genome.Synapses))
	for _, n := range genome.Neurons {
		parts = append(parts, "n "+n.ID+" "+n.Activation)
	}
	for _, s := range genome.Synapses {
		parts = append(parts, fmt.Sprintf("s %s %s %t", s.From, s.To, s.Enabled))
	}
	slices.Sort(parts)

	h := sha256.New()
	for _, p := range parts {
		_, _ = io.WriteString(h, p+"\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
