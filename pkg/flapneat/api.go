package flapneat

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"flapneat/internal/evo"
	"flapneat/internal/genotype"
	"flapneat/internal/model"
	"flapneat/internal/platform"
	"flapneat/internal/scape"
	"flapneat/internal/stats"
	"flapneat/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "flapneat.db"

	defaultPopulation  = 50
	defaultGenerations = 50
	defaultTopCount    = 5
)

// DefaultMaxTicks bounds each generation of a run unless the request or its
// engine config sets a budget. A population that learns to hover would
// otherwise never finish a generation.
const DefaultMaxTicks = 5000

var (
	ErrNoRuns   = errors.New("no runs available")
	ErrNotFound = errors.New("not found")
)

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
}

type Client struct {
	store storage.Store
	polis *platform.Polis

	benchmarksDir string
	exportsDir    string
}

type RunRequest struct {
	// RunID defaults to flappy-<seed>-<unix nanos>.
	RunID       string
	Population  int
	Generations int
	Seed        int64
	EliteCount  int
	Selection   string
	FitnessGoal float64
	FixedCourse bool
	// InputScale multiplies every observation before it reaches a genome.
	// Zero means 1/world height.
	InputScale float64
	TopCount   int
	// Engine overrides scape.DefaultConfig when set.
	Engine *scape.Config
	// MaxTicks overrides the engine's tick budget. Zero keeps the engine
	// value, or DefaultMaxTicks when that is unset too; a negative value
	// removes the budget.
	MaxTicks int
	Workers  int

	Observer     scape.Observer
	OnGeneration func(model.GenerationDiagnostics)
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
	BestScore        int
	StopReason       string
	ChampionID       string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string  `json:"run_id"`
	CreatedAtUTC     string  `json:"created_at_utc"`
	Seed             int64   `json:"seed"`
	Population       int     `json:"population_size"`
	Generations      int     `json:"generations"`
	EliteCount       int     `json:"elite_count"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	BestScore        int     `json:"best_score"`
	StopReason       string  `json:"stop_reason"`
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

// RunQuery selects one run, by id or as the latest indexed run, and caps the
// number of records returned. A zero Limit returns everything.
type RunQuery struct {
	RunID  string
	Latest bool
	Limit  int
}

type (
	LineageRequest        = RunQuery
	FitnessHistoryRequest = RunQuery
	DiagnosticsRequest    = RunQuery
	TopGenomesRequest     = RunQuery
)

// ReplayRequest plays genomes through a single generation. Without explicit
// GenomeIDs the top Count genomes of the selected run are used, on that run's
// engine config and first course unless CourseSeed is set.
type ReplayRequest struct {
	RunID      string
	Latest     bool
	GenomeIDs  []string
	Count      int
	CourseSeed *int64
	MaxTicks   int
	Observer   scape.Observer
}

type ReplaySummary struct {
	RunID      string
	CourseSeed int64
	GenomeIDs  []string
	Result     scape.GenerationResult
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	if c.polis != nil {
		c.polis.Stop()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Reset clears the store and the run index. Artifact directories stay on disk.
func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	if err := p.Reset(ctx); err != nil {
		return err
	}
	return stats.ClearRunIndex(c.benchmarksDir)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Population <= 0 {
		req.Population = defaultPopulation
	}
	if req.Generations <= 0 {
		req.Generations = defaultGenerations
	}
	if req.EliteCount <= 0 {
		req.EliteCount = req.Population / 5
		if req.EliteCount < 1 {
			req.EliteCount = 1
		}
	}
	if req.EliteCount > req.Population {
		return RunSummary{}, fmt.Errorf("elite count %d exceeds population %d", req.EliteCount, req.Population)
	}
	if req.Selection == "" {
		req.Selection = "elite"
	}
	if req.TopCount <= 0 {
		req.TopCount = defaultTopCount
	}
	if req.FitnessGoal < 0 {
		return RunSummary{}, errors.New("fitness goal must be >= 0")
	}
	selector, err := evo.SelectorFromName(req.Selection)
	if err != nil {
		return RunSummary{}, err
	}
	engine := engineConfig(req.Engine, req.MaxTicks, req.Workers)
	if err := engine.Validate(); err != nil {
		return RunSummary{}, err
	}
	if req.InputScale == 0 {
		req.InputScale = 1 / engine.WorldHeight
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-%d-%d", scape.FlappyName, req.Seed, now.UnixNano())
	}

	initial, err := genotype.SeedPopulation(rand.New(rand.NewSource(req.Seed)), "flap", req.Population)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := p.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:          runID,
		Engine:         engine,
		FixedCourse:    req.FixedCourse,
		PopulationSize: req.Population,
		Generations:    req.Generations,
		EliteCount:     req.EliteCount,
		Seed:           req.Seed,
		FitnessGoal:    req.FitnessGoal,
		InputScale:     req.InputScale,
		TopCount:       req.TopCount,
		MutationPolicy: evo.DefaultMutationPolicy(rand.New(rand.NewSource(req.Seed + 1000))),
		Selector:       selector,
		Initial:        initial,
		Observer:       req.Observer,
		OnGeneration:   req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Seed:           req.Seed,
			PopulationSize: req.Population,
			Generations:    req.Generations,
			EliteCount:     req.EliteCount,
			Selection:      req.Selection,
			FitnessGoal:    req.FitnessGoal,
			FixedCourse:    req.FixedCourse,
			InputScale:     req.InputScale,
			Engine:         engine,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      result.BestFinalFitness,
		BestScore:             result.BestScore,
		StopReason:            result.StopReason,
		TopGenomes:            platform.ToModelTopGenomes(result.TopFinal),
		Lineage:               result.Lineage,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            runID,
		PopulationSize:   req.Population,
		Generations:      len(result.BestByGeneration),
		Seed:             req.Seed,
		EliteCount:       req.EliteCount,
		FinalBestFitness: result.BestFinalFitness,
		BestScore:        result.BestScore,
		StopReason:       result.StopReason,
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFinalFitness,
		BestScore:        result.BestScore,
		StopReason:       result.StopReason,
		ChampionID:       result.Champion.Genome.ID,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			Generations:      e.Generations,
			EliteCount:       e.EliteCount,
			FinalBestFitness: e.FinalBestFitness,
			BestScore:        e.BestScore,
			StopReason:       e.StopReason,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]model.LineageRecord, error) {
	return queryRun(ctx, c, req, "lineage", c.store.GetLineage, nil)
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	return queryRun(ctx, c, req, "fitness history", c.store.GetFitnessHistory, nil)
}

// Diagnostics falls back to the run's CSV artifact when the store does not
// hold the run.
func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	return queryRun(ctx, c, req, "diagnostics", c.store.GetGenerationDiagnostics, func(runID string) ([]model.GenerationDiagnostics, bool, error) {
		return stats.ReadDiagnosticsCSV(c.benchmarksDir, runID)
	})
}

// TopGenomes falls back to the run's top_genomes.json artifact.
func (c *Client) TopGenomes(ctx context.Context, req TopGenomesRequest) ([]model.TopGenomeRecord, error) {
	return queryRun(ctx, c, req, "top genomes", c.store.GetTopGenomes, c.topGenomesArtifact)
}

func (c *Client) topGenomesArtifact(runID string) ([]model.TopGenomeRecord, bool, error) {
	return stats.ReadTopGenomes(c.benchmarksDir, runID)
}

// queryRun resolves the run, loads records from the store and then from
// fallback, and applies the limit. The returned slice is never shared.
func queryRun[T any](
	ctx context.Context,
	c *Client,
	q RunQuery,
	what string,
	load func(context.Context, string) ([]T, bool, error),
	fallback func(string) ([]T, bool, error),
) ([]T, error) {
	if q.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(q.RunID, q.Latest, what)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	records, ok, err := load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok && fallback != nil {
		if records, ok, err = fallback(runID); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s for run %s", ErrNotFound, what, runID)
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return append([]T(nil), records...), nil
}

func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplaySummary, error) {
	if req.Count < 0 {
		return ReplaySummary{}, errors.New("count must be >= 0")
	}
	if req.Count == 0 {
		req.Count = 1
	}
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return ReplaySummary{}, err
	}

	cfg := platform.ReplayConfig{
		Engine:     scape.DefaultConfig(),
		InputScale: 1 / scape.DefaultConfig().WorldHeight,
		Observer:   req.Observer,
	}
	var runID string
	if req.RunID != "" || req.Latest {
		runID, err = c.resolveRunID(req.RunID, req.Latest, "replay")
		if err != nil {
			return ReplaySummary{}, err
		}
		runCfg, ok, err := stats.ReadRunConfig(c.benchmarksDir, runID)
		if err != nil {
			return ReplaySummary{}, err
		}
		if ok {
			cfg.Engine = runCfg.Engine
			cfg.InputScale = runCfg.InputScale
			cfg.CourseSeed = runCfg.Seed
		}
	}
	if req.CourseSeed != nil {
		cfg.CourseSeed = *req.CourseSeed
	}
	if req.MaxTicks > 0 {
		cfg.Engine.MaxTicks = req.MaxTicks
	}

	var ids []string
	switch {
	case len(req.GenomeIDs) > 0:
		cfg.GenomeIDs = append([]string(nil), req.GenomeIDs...)
		ids = cfg.GenomeIDs
	case runID != "":
		top, err := c.TopGenomes(ctx, RunQuery{RunID: runID, Limit: req.Count})
		if err != nil {
			return ReplaySummary{}, err
		}
		for _, record := range top {
			cfg.Genomes = append(cfg.Genomes, record.Genome)
			ids = append(ids, record.Genome.ID)
		}
	default:
		return ReplaySummary{}, errors.New("replay requires genome ids, run id or latest")
	}

	result, err := p.Replay(ctx, cfg)
	if err != nil {
		return ReplaySummary{}, err
	}
	return ReplaySummary{
		RunID:      runID,
		CourseSeed: cfg.CourseSeed,
		GenomeIDs:  ids,
		Result:     result,
	}, nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if latest {
		id, ok, err := stats.LatestRunID(c.benchmarksDir)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrNoRuns
		}
		return id, nil
	}
	if runID == "" {
		return "", fmt.Errorf("%s requires run id or latest", what)
	}
	return runID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func engineConfig(base *scape.Config, maxTicks, workers int) scape.Config {
	cfg := scape.DefaultConfig()
	if base != nil {
		cfg = *base
	}
	switch {
	case maxTicks > 0:
		cfg.MaxTicks = maxTicks
	case maxTicks < 0:
		cfg.MaxTicks = 0
	case cfg.MaxTicks == 0:
		cfg.MaxTicks = DefaultMaxTicks
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	return cfg
}
