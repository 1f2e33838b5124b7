package flapneat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flapneat/internal/model"
	"flapneat/internal/scape"
	"flapneat/internal/stats"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:     "memory",
		BenchmarksDir: filepath.Join(base, "benchmarks"),
		ExportsDir:    filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client, base
}

func shortRun(runID string, seed int64) RunRequest {
	return RunRequest{
		RunID:       runID,
		Population:  6,
		Generations: 3,
		Seed:        seed,
		MaxTicks:    80,
		Workers:     2,
	}
}

func TestClientRunRunsAndExport(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)

	var generations []model.GenerationDiagnostics
	req := shortRun("", 42)
	req.OnGeneration = func(d model.GenerationDiagnostics) { generations = append(generations, d) }
	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" || summary.ChampionID == "" {
		t.Fatalf("expected run and champion ids: %+v", summary)
	}
	if len(summary.BestByGeneration) != 3 || len(generations) != 3 {
		t.Fatalf("unexpected generation history: %v callbacks=%d", summary.BestByGeneration, len(generations))
	}
	if summary.StopReason != "generations" {
		t.Fatalf("unexpected stop reason %q", summary.StopReason)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].EliteCount != 1 {
		t.Fatalf("unexpected runs list: %+v", runs)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("expected export of %s, got %s", summary.RunID, exported.RunID)
	}
	for _, name := range []string{"config.json", "fitness_history.json", "generation_diagnostics.csv", "top_genomes.json", "lineage.json"} {
		if _, err := os.Stat(filepath.Join(base, "exports", summary.RunID, name)); err != nil {
			t.Fatalf("expected exported %s: %v", name, err)
		}
	}
}

func TestClientQueriesByRunIDAndLatest(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	if _, err := client.Run(ctx, shortRun("first", 1)); err != nil {
		t.Fatalf("run first: %v", err)
	}
	second, err := client.Run(ctx, shortRun("second", 2))
	if err != nil {
		t.Fatalf("run second: %v", err)
	}

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if len(history) != 3 || history[2] != second.BestByGeneration[2] {
		t.Fatalf("expected latest run history, got %v", history)
	}

	diagnostics, err := client.Diagnostics(ctx, DiagnosticsRequest{RunID: "first", Limit: 2})
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if len(diagnostics) != 2 || diagnostics[0].Generation != 1 || diagnostics[0].CourseSeed != 1 {
		t.Fatalf("unexpected diagnostics: %+v", diagnostics)
	}

	top, err := client.TopGenomes(ctx, TopGenomesRequest{RunID: "second", Limit: 2})
	if err != nil {
		t.Fatalf("top genomes: %v", err)
	}
	if len(top) != 2 || top[0].Rank != 1 || top[0].Fitness < top[1].Fitness {
		t.Fatalf("unexpected top genomes: %+v", top)
	}

	lineage, err := client.Lineage(ctx, LineageRequest{RunID: "second", Limit: 4})
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) != 4 || lineage[0].Operation != "seed" {
		t.Fatalf("unexpected lineage: %+v", lineage)
	}
}

func TestClientQueryArgumentErrors(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	if _, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected run id and latest to conflict")
	}
	if _, err := client.Lineage(ctx, LineageRequest{}); err == nil {
		t.Fatal("expected missing run id error")
	}
	if _, err := client.TopGenomes(ctx, TopGenomesRequest{RunID: "x", Limit: -1}); err == nil {
		t.Fatal("expected negative limit error")
	}
	if _, err := client.Diagnostics(ctx, DiagnosticsRequest{Latest: true}); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("expected ErrNoRuns, got %v", err)
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export without run error")
	}
	if _, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestClientRunRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	bad := shortRun("bad", 1)
	bad.Selection = "roulette"
	if _, err := client.Run(ctx, bad); err == nil {
		t.Fatal("expected unsupported selection error")
	}

	engine := scape.DefaultConfig()
	engine.GapHeight = 0
	bad = shortRun("bad", 1)
	bad.Engine = &engine
	if _, err := client.Run(ctx, bad); !errors.Is(err, scape.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	bad = shortRun("bad", 1)
	bad.EliteCount = 10
	if _, err := client.Run(ctx, bad); err == nil {
		t.Fatal("expected elite count error")
	}
}

func TestClientReplayLatestRun(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	summary, err := client.Run(ctx, shortRun("replayed", 9))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var ticks int
	replay, err := client.Replay(ctx, ReplayRequest{
		Latest:   true,
		Count:    2,
		Observer: scape.ObserverFunc(func(scape.Frame) { ticks++ }),
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.RunID != summary.RunID || replay.CourseSeed != 9 {
		t.Fatalf("unexpected replay summary: %+v", replay)
	}
	if len(replay.GenomeIDs) != 2 || len(replay.Result.Agents) != 2 {
		t.Fatalf("expected two replayed genomes, got %v", replay.GenomeIDs)
	}
	if ticks != replay.Result.Ticks || replay.Result.Ticks > 80 {
		t.Fatalf("unexpected replay ticks: observed=%d result=%d", ticks, replay.Result.Ticks)
	}

	seed := int64(9)
	byID, err := client.Replay(ctx, ReplayRequest{
		GenomeIDs:  replay.GenomeIDs[:1],
		CourseSeed: &seed,
		MaxTicks:   80,
	})
	if err != nil {
		t.Fatalf("replay by id: %v", err)
	}
	if len(byID.Result.Agents) != 1 {
		t.Fatalf("expected one agent, got %d", len(byID.Result.Agents))
	}

	if _, err := client.Replay(ctx, ReplayRequest{}); err == nil {
		t.Fatal("expected replay without genomes to fail")
	}
}

func TestClientResetClearsIndexAndStore(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	if _, err := client.Run(ctx, shortRun("gone", 5)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty run index, got %+v", runs)
	}
	if _, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "gone"}); err == nil {
		t.Fatal("expected fitness history to be cleared")
	}
}

// hover jumps once the bird sinks more than 20 units below the gap centre,
// which is enough to fly the default course indefinitely.
func hover() scape.Policy {
	return scape.PolicyFunc(func(obs scape.Observation) (float64, error) {
		if obs[1]-obs[2] > 40 {
			return 1, nil
		}
		return 0, nil
	})
}

func TestDefaultTickBudgetEndsHoveringGeneration(t *testing.T) {
	engine := engineConfig(nil, 0, 0)
	if engine.MaxTicks != DefaultMaxTicks {
		t.Fatalf("expected default budget %d, got %d", DefaultMaxTicks, engine.MaxTicks)
	}
	flappy, err := scape.NewFlappyScape(engine, 1)
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := flappy.EvaluateGeneration(ctx, []scape.Policy{hover()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Reason != scape.EndTickLimit || result.Ticks != DefaultMaxTicks {
		t.Fatalf("expected tick_limit after %d ticks, got %s after %d", DefaultMaxTicks, result.Reason, result.Ticks)
	}
	if !result.Agents[0].Alive || result.Agents[0].Score == 0 {
		t.Fatalf("expected a live bird that passed obstacles: %+v", result.Agents[0])
	}
}

func TestEngineConfigTickBudget(t *testing.T) {
	budgeted := scape.DefaultConfig()
	budgeted.MaxTicks = 300
	cases := []struct {
		name     string
		base     *scape.Config
		maxTicks int
		want     int
	}{
		{name: "default", want: DefaultMaxTicks},
		{name: "request", maxTicks: 120, want: 120},
		{name: "engine", base: &budgeted, want: 300},
		{name: "request over engine", base: &budgeted, maxTicks: 40, want: 40},
		{name: "unbounded", base: &budgeted, maxTicks: -1, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := engineConfig(tc.base, tc.maxTicks, 0)
			if cfg.MaxTicks != tc.want {
				t.Fatalf("max ticks=%d want %d", cfg.MaxTicks, tc.want)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("engine config invalid: %v", err)
			}
		})
	}
}

func TestClientRunRecordsDefaultTickBudget(t *testing.T) {
	ctx := context.Background()
	client, base := newTestClient(t)
	summary, err := client.Run(ctx, RunRequest{RunID: "budget", Population: 4, Generations: 1, Seed: 1})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.StopReason != "generations" {
		t.Fatalf("unexpected stop reason %q", summary.StopReason)
	}
	cfg, ok, err := stats.ReadRunConfig(filepath.Join(base, "benchmarks"), "budget")
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%v err=%v", ok, err)
	}
	if cfg.Engine.MaxTicks != DefaultMaxTicks {
		t.Fatalf("expected recorded budget %d, got %d", DefaultMaxTicks, cfg.Engine.MaxTicks)
	}
}
