package storage

import (
	"context"
	"testing"

	"flapneat/internal/model"
)

func versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func fixtureGenome(id string) model.Genome {
	return model.Genome{
		VersionedRecord: versioned(),
		ID:              id,
		Neurons: []model.Neuron{
			{ID: "y", Activation: "identity"},
			{ID: "jump", Activation: "sigmoid", Bias: 0.5},
		},
		Synapses: []model.Synapse{
			{ID: "s1", From: "y", To: "jump", Weight: 1.25, Enabled: true},
		},
		InputNeuronIDs:  []string{"y"},
		OutputNeuronIDs: []string{"jump"},
	}
}

// exerciseStore runs the behavior every backend must share against an
// initialized store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	older := model.RunRecord{VersionedRecord: versioned(), ID: "run-a", Seed: 1, CreatedAtUTC: "2026-01-01T00:00:00Z"}
	newer := model.RunRecord{VersionedRecord: versioned(), ID: "run-b", Seed: 2, CreatedAtUTC: "2026-02-01T00:00:00Z", BestScore: 4}
	for _, run := range []model.RunRecord{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run: %v", err)
		}
	}
	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Fatalf("expected newest-first runs, got %+v", runs)
	}
	run, ok, err := store.GetRun(ctx, "run-b")
	if err != nil || !ok || run.BestScore != 4 {
		t.Fatalf("get run: ok=%v err=%v run=%+v", ok, err, run)
	}

	if err := store.SaveGenome(ctx, fixtureGenome("g1")); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	genome, ok, err := store.GetGenome(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("get genome: ok=%v err=%v", ok, err)
	}
	if len(genome.Synapses) != 1 || genome.Synapses[0].Weight != 1.25 {
		t.Fatalf("unexpected genome: %+v", genome)
	}
	if _, ok, err := store.GetGenome(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing genome, ok=%v err=%v", ok, err)
	}

	if err := store.SaveFitnessHistory(ctx, "run-b", []float64{1, 2.5, 3}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-b")
	if err != nil || !ok || len(history) != 3 || history[1] != 2.5 {
		t.Fatalf("get history: ok=%v err=%v history=%v", ok, err, history)
	}

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 1, BestFitness: 3.2, MeanFitness: 1.1, MinFitness: -1.8, Ticks: 16, EndReason: "roster_empty", CourseSeed: 2},
		{Generation: 2, BestFitness: 8.4, MeanFitness: 2.3, MinFitness: -1.6, BestScore: 1, Ticks: 90, EndReason: "roster_empty", CourseSeed: 3},
	}
	if err := store.SaveGenerationDiagnostics(ctx, "run-b", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	loadedDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-b")
	if err != nil || !ok || len(loadedDiagnostics) != 2 || loadedDiagnostics[1] != diagnostics[1] {
		t.Fatalf("get diagnostics: ok=%v err=%v diagnostics=%+v", ok, err, loadedDiagnostics)
	}

	top := []model.TopGenomeRecord{{Rank: 1, Fitness: 8.4, Score: 1, Genome: fixtureGenome("g1")}}
	if err := store.SaveTopGenomes(ctx, "run-b", top); err != nil {
		t.Fatalf("save top genomes: %v", err)
	}
	loadedTop, ok, err := store.GetTopGenomes(ctx, "run-b")
	if err != nil || !ok || len(loadedTop) != 1 || loadedTop[0].Genome.ID != "g1" {
		t.Fatalf("get top genomes: ok=%v err=%v top=%+v", ok, err, loadedTop)
	}

	lineage := []model.LineageRecord{{VersionedRecord: versioned(), GenomeID: "g1", Generation: 0, Operation: "seed"}}
	if err := store.SaveLineage(ctx, "run-b", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	loadedLineage, ok, err := store.GetLineage(ctx, "run-b")
	if err != nil || !ok || len(loadedLineage) != 1 || loadedLineage[0].Operation != "seed" {
		t.Fatalf("get lineage: ok=%v err=%v lineage=%+v", ok, err, loadedLineage)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err = store.ListRuns(ctx)
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected no runs after reset, got %d err=%v", len(runs), err)
	}
	if _, ok, _ := store.GetLineage(ctx, "run-b"); ok {
		t.Fatal("expected lineage cleared by reset")
	}
	if err := store.SaveRun(ctx, older); err != nil {
		t.Fatalf("store must stay usable after reset: %v", err)
	}
}
