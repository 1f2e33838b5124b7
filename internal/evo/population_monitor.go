package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"flapneat/internal/agent"
	"flapneat/internal/genotype"
	"flapneat/internal/model"
	"flapneat/internal/scape"
)

const (
	StopGenerations = "generations"
	StopFitnessGoal = "fitness_goal"
)

type ScoredGenome struct {
	Genome  model.Genome
	Fitness float64
	Score   int
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       []ScoredGenome
	// Champion is the fittest genome seen in any generation.
	Champion   ScoredGenome
	BestScore  int
	StopReason string
	Lineage    []model.LineageRecord
}

type MonitorConfig struct {
	Scape          scape.GenerationScape
	MutationPolicy []WeightedMutation
	Selector       Selector
	PopulationSize int
	EliteCount     int
	Generations    int
	Seed           int64
	// FitnessGoal stops the run once a generation's best fitness reaches it.
	// Zero disables the goal.
	FitnessGoal  float64
	InputScale   float64
	OnGeneration func(model.GenerationDiagnostics)
}

type PopulationMonitor struct {
	cfg MonitorConfig
	rng *rand.Rand
}

// courseSeeder is implemented by scapes whose course depends on a seed.
type courseSeeder interface {
	CourseSeed() int64
}

var ErrMonitorConfig = errors.New("invalid monitor config")

func (c MonitorConfig) validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.Scape == nil, "scape is required"},
		{c.PopulationSize <= 0, "population size must be > 0"},
		{c.EliteCount <= 0 || c.EliteCount > c.PopulationSize, "elite count must be in [1, population size]"},
		{c.Generations <= 0, "generations must be > 0"},
		{c.FitnessGoal < 0, "fitness goal must be >= 0"},
	}
	for _, check := range checks {
		if check.bad {
			return fmt.Errorf("%w: %s", ErrMonitorConfig, check.msg)
		}
	}
	if err := validatePolicy(c.MutationPolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrMonitorConfig, err)
	}
	return nil
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Selector == nil {
		cfg.Selector = EliteSelector{}
	}
	return &PopulationMonitor{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (m *PopulationMonitor) Run(ctx context.Context, initial []model.Genome) (RunResult, error) {
	if len(initial) != m.cfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(initial), m.cfg.PopulationSize)
	}

	population := make([]model.Genome, len(initial))
	copy(population, initial)

	bestHistory := make([]float64, 0, m.cfg.Generations)
	diagnostics := make([]model.GenerationDiagnostics, 0, m.cfg.Generations)
	lineage := make([]model.LineageRecord, 0, len(initial)*(m.cfg.Generations+1))
	for _, genome := range population {
		lineage = append(lineage, lineageRecord(genome, "", 0, "seed"))
	}

	var (
		scored   []ScoredGenome
		champion ScoredGenome
		stop     = StopGenerations
	)
	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		var courseSeed int64
		if seeder, ok := m.cfg.Scape.(courseSeeder); ok {
			courseSeed = seeder.CourseSeed()
		}
		result, err := m.evaluatePopulation(ctx, population)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen+1, err)
		}
		scored = rankPopulation(population, result)

		bestHistory = append(bestHistory, scored[0].Fitness)
		if gen == 0 || scored[0].Fitness > champion.Fitness {
			champion = scored[0]
		}
		diag := summarizeGeneration(scored, gen+1, result, courseSeed)
		diagnostics = append(diagnostics, diag)
		if m.cfg.OnGeneration != nil {
			m.cfg.OnGeneration(diag)
		}

		if m.cfg.FitnessGoal > 0 && scored[0].Fitness >= m.cfg.FitnessGoal {
			stop = StopFitnessGoal
			break
		}
		if gen == m.cfg.Generations-1 {
			break
		}

		var generationLineage []model.LineageRecord
		population, generationLineage, err = m.nextGeneration(ctx, scored, gen)
		if err != nil {
			return RunResult{}, err
		}
		lineage = append(lineage, generationLineage...)
	}

	bestScore := 0
	for _, d := range diagnostics {
		if d.BestScore > bestScore {
			bestScore = d.BestScore
		}
	}
	return RunResult{
		BestByGeneration:      bestHistory,
		GenerationDiagnostics: diagnostics,
		FinalPopulation:       scored,
		Champion:              champion,
		BestScore:             bestScore,
		StopReason:            stop,
		Lineage:               lineage,
	}, nil
}

// evaluatePopulation plays the whole population through one shared
// generation; the birds of a generation interact through the course.
func (m *PopulationMonitor) evaluatePopulation(ctx context.Context, population []model.Genome) (scape.GenerationResult, error) {
	policies, err := agent.Policies(population, m.cfg.InputScale)
	if err != nil {
		return scape.GenerationResult{}, err
	}
	result, err := m.cfg.Scape.EvaluateGeneration(ctx, policies)
	if err != nil {
		return scape.GenerationResult{}, err
	}
	if len(result.Agents) != len(population) {
		return scape.GenerationResult{}, fmt.Errorf("scape returned %d agent records for %d genomes", len(result.Agents), len(population))
	}
	return result, nil
}

func rankPopulation(population []model.Genome, result scape.GenerationResult) []ScoredGenome {
	scored := make([]ScoredGenome, len(population))
	for i, genome := range population {
		scored[i] = ScoredGenome{
			Genome:  genome,
			Fitness: result.Agents[i].Fitness,
			Score:   result.Agents[i].Score,
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Fitness > scored[j].Fitness
	})
	return scored
}

func summarizeGeneration(scored []ScoredGenome, generation int, result scape.GenerationResult, courseSeed int64) model.GenerationDiagnostics {
	if len(scored) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	minFitness := scored[0].Fitness
	bestScore := 0
	for _, item := range scored {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
		if item.Score > bestScore {
			bestScore = item.Score
		}
	}
	return model.GenerationDiagnostics{
		Generation:  generation,
		BestFitness: scored[0].Fitness,
		MeanFitness: total / float64(len(scored)),
		MinFitness:  minFitness,
		BestScore:   bestScore,
		Ticks:       result.Ticks,
		EndReason:   string(result.Reason),
		CourseSeed:  courseSeed,
	}
}

func (m *PopulationMonitor) nextGeneration(ctx context.Context, ranked []ScoredGenome, generation int) ([]model.Genome, []model.LineageRecord, error) {
	next := make([]model.Genome, 0, m.cfg.PopulationSize)
	lineage := make([]model.LineageRecord, 0, m.cfg.PopulationSize)
	nextGeneration := generation + 1

	for i := 0; i < m.cfg.EliteCount; i++ {
		elite := genotype.CloneGenome(ranked[i].Genome)
		next = append(next, elite)
		lineage = append(lineage, lineageRecord(elite, ranked[i].Genome.ID, nextGeneration, "elite_clone"))
	}

	for len(next) < m.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		parent, err := m.cfg.Selector.PickParent(m.rng, ranked, m.cfg.EliteCount)
		if err != nil {
			return nil, nil, err
		}
		child, record, err := m.mutateFromParent(ctx, parent, generation, len(next))
		if err != nil {
			return nil, nil, err
		}
		next = append(next, child)
		lineage = append(lineage, record)
	}
	return next, lineage, nil
}

// maxMutationAttempts bounds how many operators are tried when the chosen
// one has nothing to act on.
const maxMutationAttempts = 8

func (m *PopulationMonitor) mutateFromParent(ctx context.Context, parent model.Genome, generation, nextIndex int) (model.Genome, model.LineageRecord, error) {
	child := genotype.CloneAs(parent, fmt.Sprintf("%s-g%d-i%d", rootID(parent.ID), generation+1, nextIndex), generation+1)

	attempted := make([]string, 0, 1)
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		operator := chooseOperator(m.rng, m.cfg.MutationPolicy)
		mutated, err := operator.Apply(ctx, child)
		if err != nil {
			if isNoChoice(err) {
				attempted = append(attempted, "noop("+operator.Name()+")")
				continue
			}
			return model.Genome{}, model.LineageRecord{}, fmt.Errorf("%s: %w", operator.Name(), err)
		}
		return mutated, lineageRecord(mutated, parent.ID, generation+1, operator.Name()), nil
	}
	return child, lineageRecord(child, parent.ID, generation+1, strings.Join(attempted, "+")), nil
}

func isNoChoice(err error) bool {
	return errors.Is(err, ErrNoSynapses) ||
		errors.Is(err, ErrNoNeurons) ||
		errors.Is(err, ErrSynapseExists) ||
		errors.Is(err, ErrNoMutationChoice)
}

// rootID strips generation suffixes so ids do not grow with every offspring.
func rootID(id string) string {
	i := strings.LastIndex(id, "-g")
	if i <= 0 {
		return id
	}
	var generation, index int
	if _, err := fmt.Sscanf(id[i:], "-g%d-i%d", &generation, &index); err != nil {
		return id
	}
	return id[:i]
}

func lineageRecord(genome model.Genome, parentID string, generation int, operation string) model.LineageRecord {
	return model.LineageRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: genotype.CurrentSchemaVersion,
			CodecVersion:  genotype.CurrentCodecVersion,
		},
		GenomeID:    genome.ID,
		ParentID:    parentID,
		Generation:  generation,
		Operation:   operation,
		Fingerprint: genotype.Fingerprint(genome),
	}
}
