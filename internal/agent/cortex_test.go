package agent

import (
	"context"
	"testing"

	"flapneat/internal/model"
	"flapneat/internal/scape"
)

// centeringGenome outputs sigmoid(8*(d_top - d_bottom)): above 0.5 exactly
// when the bird sits below the middle of the gap.
func centeringGenome() model.Genome {
	return model.Genome{
		ID: "centering",
		Neurons: []model.Neuron{
			{ID: "y", Activation: "identity"},
			{ID: "d_top", Activation: "identity"},
			{ID: "d_bottom", Activation: "identity"},
			{ID: "jump", Activation: "sigmoid"},
		},
		Synapses: []model.Synapse{
			{ID: "s1", From: "d_top", To: "jump", Weight: 8, Enabled: true},
			{ID: "s2", From: "d_bottom", To: "jump", Weight: -8, Enabled: true},
		},
		InputNeuronIDs:  []string{"y", "d_top", "d_bottom"},
		OutputNeuronIDs: []string{"jump"},
	}
}

func TestCortexEvaluate(t *testing.T) {
	cortex, err := NewCortex("a1", centeringGenome(), 1.0/600)
	if err != nil {
		t.Fatalf("new cortex: %v", err)
	}
	below, err := cortex.Evaluate(scape.Observation{320, 70, 50})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if below <= 0.5 {
		t.Fatalf("expected jump below center, got %f", below)
	}
	above, err := cortex.Evaluate(scape.Observation{300, 50, 70})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if above >= 0.5 {
		t.Fatalf("expected no jump above center, got %f", above)
	}
}

func TestNewCortexValidation(t *testing.T) {
	if _, err := NewCortex("", centeringGenome(), 1); err == nil {
		t.Fatal("expected id error")
	}
	twoInputs := centeringGenome()
	twoInputs.InputNeuronIDs = twoInputs.InputNeuronIDs[:2]
	if _, err := NewCortex("a", twoInputs, 1); err == nil {
		t.Fatal("expected input width error")
	}
	noOutputs := centeringGenome()
	noOutputs.OutputNeuronIDs = nil
	if _, err := NewCortex("a", noOutputs, 1); err == nil {
		t.Fatal("expected output error")
	}
}

func TestPoliciesDriveFlappyGeneration(t *testing.T) {
	cfg := scape.DefaultConfig()
	cfg.GapTopMin = 250
	cfg.GapTopMax = 251
	cfg.BirdStartY = 310
	cfg.JumpVelocity = -20
	cfg.MaxTicks = 100

	policies, err := Policies([]model.Genome{centeringGenome(), centeringGenome()}, 1.0/cfg.WorldHeight)
	if err != nil {
		t.Fatalf("policies: %v", err)
	}
	s, err := scape.NewFlappyScape(cfg, 1)
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}
	result, err := s.EvaluateGeneration(context.Background(), policies)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, a := range result.Agents {
		if !a.Alive || a.Score != 1 {
			t.Fatalf("expected surviving bird with one pass, got %+v", a)
		}
	}
}
