package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"flapneat/internal/agent"
	"flapneat/internal/evo"
	"flapneat/internal/genotype"
	"flapneat/internal/model"
	"flapneat/internal/scape"
	"flapneat/internal/storage"
)

var (
	ErrNotInitialized = errors.New("polis is not initialized")
	ErrRunActive      = errors.New("run already active")
	ErrRunNotFound    = errors.New("run not active")
	ErrGenomeNotFound = errors.New("genome not found")
)

const defaultTopCount = 5

type Config struct {
	Store storage.Store
	// Now stamps persisted runs. Defaults to time.Now.
	Now func() time.Time
}

type EvolutionConfig struct {
	RunID          string
	Engine         scape.Config
	FixedCourse    bool
	PopulationSize int
	Generations    int
	EliteCount     int
	Seed           int64
	FitnessGoal    float64
	InputScale     float64
	TopCount       int
	MutationPolicy []evo.WeightedMutation
	Selector       evo.Selector
	Initial        []model.Genome
	Observer       scape.Observer
	OnGeneration   func(model.GenerationDiagnostics)
}

type EvolutionResult struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	BestFinalFitness      float64
	BestScore             int
	StopReason            string
	Champion              evo.ScoredGenome
	TopFinal              []evo.ScoredGenome
	Lineage               []model.LineageRecord
	CreatedAtUTC          string
}

type ReplayConfig struct {
	// GenomeIDs are loaded from the store; Genomes are used as given.
	// Both may be set; loaded genomes come first.
	GenomeIDs  []string
	Genomes    []model.Genome
	Engine     scape.Config
	CourseSeed int64
	InputScale float64
	Observer   scape.Observer
}

// Polis owns the store and tracks in-flight evolution runs.
type Polis struct {
	store storage.Store
	now   func() time.Time

	mu      sync.RWMutex
	started bool
	runs    map[string]context.CancelFunc
}

func NewPolis(cfg Config) *Polis {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Polis{
		store: cfg.Store,
		now:   now,
		runs:  make(map[string]context.CancelFunc),
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	p.started = true
	return nil
}

// Reset stops active runs and clears every persisted record.
func (p *Polis) Reset(ctx context.Context) error {
	if err := p.Init(ctx); err != nil {
		return err
	}
	p.Stop()
	return p.store.Reset(ctx)
}

// Stop cancels every active run. The polis stays initialized.
func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.runs {
		cancel()
		delete(p.runs, id)
	}
}

func (p *Polis) StopRun(runID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	cancel()
	delete(p.runs, runID)
	return nil
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.runs))
	for id := range p.runs {
		out = append(out, id)
	}
	return out
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if len(cfg.Initial) != cfg.PopulationSize {
		return EvolutionResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(cfg.Initial), cfg.PopulationSize)
	}
	if cfg.EliteCount <= 0 {
		cfg.EliteCount = 1
	}
	if cfg.TopCount <= 0 {
		cfg.TopCount = defaultTopCount
	}
	if err := p.ensureStarted(); err != nil {
		return EvolutionResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("flappy-%d", cfg.Seed)
	}
	runCtx, err := p.registerRun(ctx, runID)
	if err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRun(runID)

	course, err := scape.NewFlappyScape(cfg.Engine, cfg.Seed)
	if err != nil {
		return EvolutionResult{}, err
	}
	course.FixedCourse = cfg.FixedCourse
	course.Observer = cfg.Observer

	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Scape:          course,
		MutationPolicy: cfg.MutationPolicy,
		Selector:       cfg.Selector,
		PopulationSize: cfg.PopulationSize,
		EliteCount:     cfg.EliteCount,
		Generations:    cfg.Generations,
		Seed:           cfg.Seed,
		FitnessGoal:    cfg.FitnessGoal,
		InputScale:     cfg.InputScale,
		OnGeneration:   cfg.OnGeneration,
	})
	if err != nil {
		return EvolutionResult{}, err
	}

	result, err := monitor.Run(runCtx, cfg.Initial)
	if err != nil {
		return EvolutionResult{}, err
	}

	topCount := cfg.TopCount
	if topCount > len(result.FinalPopulation) {
		topCount = len(result.FinalPopulation)
	}
	topFinal := append([]evo.ScoredGenome(nil), result.FinalPopulation[:topCount]...)
	bestFinal := 0.0
	if len(topFinal) > 0 {
		bestFinal = topFinal[0].Fitness
	}

	out := EvolutionResult{
		RunID:                 runID,
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		BestFinalFitness:      bestFinal,
		BestScore:             result.BestScore,
		StopReason:            result.StopReason,
		Champion:              result.Champion,
		TopFinal:              topFinal,
		Lineage:               result.Lineage,
		CreatedAtUTC:          p.now().UTC().Format(time.RFC3339Nano),
	}
	if err := p.persist(ctx, cfg, out); err != nil {
		return EvolutionResult{}, err
	}
	return out, nil
}

func (p *Polis) persist(ctx context.Context, cfg EvolutionConfig, result EvolutionResult) error {
	runID := result.RunID
	for _, scored := range append([]evo.ScoredGenome{result.Champion}, result.TopFinal...) {
		if err := p.store.SaveGenome(ctx, scored.Genome); err != nil {
			return fmt.Errorf("save genome %s: %w", scored.Genome.ID, err)
		}
	}
	if err := p.store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, runID, result.GenerationDiagnostics); err != nil {
		return err
	}
	if err := p.store.SaveTopGenomes(ctx, runID, ToModelTopGenomes(result.TopFinal)); err != nil {
		return err
	}
	if err := p.store.SaveLineage(ctx, runID, result.Lineage); err != nil {
		return err
	}
	return p.store.SaveRun(ctx, model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:               runID,
		Seed:             cfg.Seed,
		PopulationSize:   cfg.PopulationSize,
		Generations:      len(result.BestByGeneration),
		FinalBestFitness: result.BestFinalFitness,
		BestScore:        result.BestScore,
		StopReason:       result.StopReason,
		CreatedAtUTC:     result.CreatedAtUTC,
	})
}

// Replay plays stored or supplied genomes through one generation on a fixed
// course seed. Birds share the course exactly as they would during a run.
func (p *Polis) Replay(ctx context.Context, cfg ReplayConfig) (scape.GenerationResult, error) {
	if err := p.ensureStarted(); err != nil {
		return scape.GenerationResult{}, err
	}

	genomes := make([]model.Genome, 0, len(cfg.GenomeIDs)+len(cfg.Genomes))
	for _, id := range cfg.GenomeIDs {
		genome, ok, err := p.store.GetGenome(ctx, id)
		if err != nil {
			return scape.GenerationResult{}, err
		}
		if !ok {
			return scape.GenerationResult{}, fmt.Errorf("%w: %s", ErrGenomeNotFound, id)
		}
		genomes = append(genomes, genome)
	}
	genomes = append(genomes, cfg.Genomes...)
	if len(genomes) == 0 {
		return scape.GenerationResult{}, fmt.Errorf("replay requires at least one genome")
	}

	policies, err := agent.Policies(genomes, cfg.InputScale)
	if err != nil {
		return scape.GenerationResult{}, err
	}
	runner, err := scape.NewGenerationRunner(cfg.Engine, scape.NewSession(), policies, rand.New(rand.NewSource(cfg.CourseSeed)))
	if err != nil {
		return scape.GenerationResult{}, err
	}
	return runner.Run(ctx, cfg.Observer)
}

func ToModelTopGenomes(top []evo.ScoredGenome) []model.TopGenomeRecord {
	out := make([]model.TopGenomeRecord, 0, len(top))
	for i, scored := range top {
		out = append(out, model.TopGenomeRecord{
			Rank:    i + 1,
			Fitness: scored.Fitness,
			Score:   scored.Score,
			Genome:  genotype.CloneGenome(scored.Genome),
		})
	}
	return out
}

func (p *Polis) ensureStarted() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		return ErrNotInitialized
	}
	return nil
}

func (p *Polis) registerRun(ctx context.Context, runID string) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.runs[runID] = cancel
	return runCtx, nil
}

func (p *Polis) unregisterRun(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.runs[runID]; ok {
		cancel()
		delete(p.runs, runID)
	}
}
