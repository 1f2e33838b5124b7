package platform

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"flapneat/internal/evo"
	"flapneat/internal/genotype"
	"flapneat/internal/model"
	"flapneat/internal/scape"
	"flapneat/internal/storage"
)

func newTestPolis(t *testing.T) *Polis {
	t.Helper()
	p := NewPolis(Config{
		Store: storage.NewMemoryStore(),
		Now:   func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p
}

func shortEngine() scape.Config {
	cfg := scape.DefaultConfig()
	cfg.MaxTicks = 60
	return cfg
}

func evolutionConfig(t *testing.T, runID string, seed int64, population int) EvolutionConfig {
	t.Helper()
	initial, err := genotype.SeedPopulation(rand.New(rand.NewSource(seed)), "flap", population)
	if err != nil {
		t.Fatalf("seed population: %v", err)
	}
	return EvolutionConfig{
		RunID:          runID,
		Engine:         shortEngine(),
		PopulationSize: population,
		Generations:    3,
		EliteCount:     2,
		Seed:           seed,
		InputScale:     1.0 / 600,
		TopCount:       3,
		MutationPolicy: evo.DefaultMutationPolicy(rand.New(rand.NewSource(seed + 1))),
		Initial:        initial,
	}
}

func TestPolisRequiresInit(t *testing.T) {
	p := NewPolis(Config{Store: storage.NewMemoryStore()})
	_, err := p.RunEvolution(context.Background(), evolutionConfig(t, "r", 1, 4))
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := NewPolis(Config{}).Init(context.Background()); err == nil {
		t.Fatal("expected missing store error")
	}
}

func TestPolisRunEvolutionPersistsRun(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)

	var seen []model.GenerationDiagnostics
	cfg := evolutionConfig(t, "run-a", 7, 6)
	cfg.OnGeneration = func(d model.GenerationDiagnostics) { seen = append(seen, d) }

	result, err := p.RunEvolution(ctx, cfg)
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if result.RunID != "run-a" || len(result.BestByGeneration) != 3 {
		t.Fatalf("unexpected result: id=%s history=%v", result.RunID, result.BestByGeneration)
	}
	if len(seen) != 3 || seen[0].CourseSeed != 7 || seen[2].CourseSeed != 9 {
		t.Fatalf("unexpected generation callbacks: %+v", seen)
	}
	if len(result.TopFinal) != 3 || result.BestFinalFitness != result.TopFinal[0].Fitness {
		t.Fatalf("unexpected top genomes: %+v", result.TopFinal)
	}
	if result.CreatedAtUTC != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %q", result.CreatedAtUTC)
	}
	if len(p.ActiveRuns()) != 0 {
		t.Fatalf("expected run to be unregistered, got %v", p.ActiveRuns())
	}

	store := p.Store()
	run, ok, err := store.GetRun(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if run.PopulationSize != 6 || run.Generations != 3 || run.StopReason != evo.StopGenerations {
		t.Fatalf("unexpected run record: %+v", run)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-a")
	if err != nil || !ok || len(history) != 3 {
		t.Fatalf("get history: %v ok=%v err=%v", history, ok, err)
	}
	diagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-a")
	if err != nil || !ok || len(diagnostics) != 3 {
		t.Fatalf("get diagnostics: %v ok=%v err=%v", diagnostics, ok, err)
	}
	top, ok, err := store.GetTopGenomes(ctx, "run-a")
	if err != nil || !ok || len(top) != 3 || top[0].Rank != 1 {
		t.Fatalf("get top genomes: %+v ok=%v err=%v", top, ok, err)
	}
	if _, ok, err := store.GetGenome(ctx, top[0].Genome.ID); err != nil || !ok {
		t.Fatalf("expected top genome persisted: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.GetGenome(ctx, result.Champion.Genome.ID); err != nil || !ok {
		t.Fatalf("expected champion persisted: ok=%v err=%v", ok, err)
	}
	lineage, ok, err := store.GetLineage(ctx, "run-a")
	if err != nil || !ok || len(lineage) != 6*3 {
		t.Fatalf("get lineage: len=%d ok=%v err=%v", len(lineage), ok, err)
	}
}

func TestPolisRunEvolutionIsDeterministic(t *testing.T) {
	a, err := newTestPolis(t).RunEvolution(context.Background(), evolutionConfig(t, "a", 3, 5))
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := newTestPolis(t).RunEvolution(context.Background(), evolutionConfig(t, "b", 3, 5))
	if err != nil {
		t.Fatalf("run b: %v", err)
	}
	for i := range a.BestByGeneration {
		if a.BestByGeneration[i] != b.BestByGeneration[i] {
			t.Fatalf("generation %d differs: %f vs %f", i, a.BestByGeneration[i], b.BestByGeneration[i])
		}
	}
}

func TestPolisRunEvolutionRejectsPopulationMismatch(t *testing.T) {
	cfg := evolutionConfig(t, "r", 1, 4)
	cfg.PopulationSize = 5
	if _, err := newTestPolis(t).RunEvolution(context.Background(), cfg); err == nil {
		t.Fatal("expected population mismatch error")
	}
}

func TestPolisRunEvolutionHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestPolis(t).RunEvolution(ctx, evolutionConfig(t, "r", 1, 4))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestPolisStopRunUnknown(t *testing.T) {
	if err := newTestPolis(t).StopRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestPolisReplayStoredGenomes(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	result, err := p.RunEvolution(ctx, evolutionConfig(t, "run-r", 11, 4))
	if err != nil {
		t.Fatalf("run evolution: %v", err)
	}

	var frames int
	replay, err := p.Replay(ctx, ReplayConfig{
		GenomeIDs:  []string{result.TopFinal[0].Genome.ID},
		Engine:     shortEngine(),
		CourseSeed: 11,
		InputScale: 1.0 / 600,
		Observer:   scape.ObserverFunc(func(scape.Frame) { frames++ }),
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replay.Agents) != 1 || replay.Ticks == 0 || frames != replay.Ticks {
		t.Fatalf("unexpected replay: agents=%d ticks=%d frames=%d", len(replay.Agents), replay.Ticks, frames)
	}

	again, err := p.Replay(ctx, ReplayConfig{
		GenomeIDs:  []string{result.TopFinal[0].Genome.ID},
		Engine:     shortEngine(),
		CourseSeed: 11,
		InputScale: 1.0 / 600,
	})
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if again.Agents[0].Fitness != replay.Agents[0].Fitness {
		t.Fatalf("replay must be reproducible: %f vs %f", again.Agents[0].Fitness, replay.Agents[0].Fitness)
	}
}

func TestPolisReplayMissingGenome(t *testing.T) {
	_, err := newTestPolis(t).Replay(context.Background(), ReplayConfig{
		GenomeIDs: []string{"nope"},
		Engine:    shortEngine(),
	})
	if !errors.Is(err, ErrGenomeNotFound) {
		t.Fatalf("expected ErrGenomeNotFound, got %v", err)
	}
}

func TestPolisResetClearsRuns(t *testing.T) {
	ctx := context.Background()
	p := newTestPolis(t)
	if _, err := p.RunEvolution(ctx, evolutionConfig(t, "run-x", 2, 3)); err != nil {
		t.Fatalf("run evolution: %v", err)
	}
	if err := p.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err := p.Store().ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after reset, got %d", len(runs))
	}
}
