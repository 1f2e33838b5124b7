package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"flapneat/internal/genotype"
	"flapneat/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type artifactKey struct {
	runID string
	kind  Kind
}

// MemoryStore keeps runs and genomes as values and per-run artifacts as
// encoded payloads, so callers never share memory with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	ready     bool
	runs      map[string]model.RunRecord
	genomes   map[string]model.Genome
	artifacts map[artifactKey][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
	s.ready = true
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return errNotInitialized
	}
	s.clear()
	return nil
}

func (s *MemoryStore) clear() {
	s.runs = map[string]model.RunRecord{}
	s.genomes = map[string]model.Genome{}
	s.artifacts = map[artifactKey][]byte{}
}

func (s *MemoryStore) write(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return errNotInitialized
	}
	fn()
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	return s.write(func() { s.runs[run.ID] = run })
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUTC != out[j].CreatedAtUTC {
			return out[i].CreatedAtUTC > out[j].CreatedAtUTC
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) SaveGenome(_ context.Context, genome model.Genome) error {
	return s.write(func() { s.genomes[genome.ID] = genotype.CloneGenome(genome) })
}

func (s *MemoryStore) GetGenome(_ context.Context, id string) (model.Genome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	genome, ok := s.genomes[id]
	if !ok {
		return model.Genome{}, false, nil
	}
	return genotype.CloneGenome(genome), true, nil
}

func (s *MemoryStore) putArtifact(_ context.Context, runID string, kind Kind, payload []byte) error {
	return s.write(func() { s.artifacts[artifactKey{runID, kind}] = payload })
}

func (s *MemoryStore) getArtifact(_ context.Context, runID string, kind Kind) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.artifacts[artifactKey{runID, kind}]
	return payload, ok, nil
}

func (s *MemoryStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	return saveArtifact(ctx, s, runID, KindFitnessHistory, history)
}

func (s *MemoryStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	return loadArtifact[[]float64](ctx, s, runID, KindFitnessHistory)
}

func (s *MemoryStore) SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	return saveArtifact(ctx, s, runID, KindDiagnostics, diagnostics)
}

func (s *MemoryStore) GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	return loadArtifact[[]model.GenerationDiagnostics](ctx, s, runID, KindDiagnostics)
}

func (s *MemoryStore) SaveTopGenomes(ctx context.Context, runID string, top []model.TopGenomeRecord) error {
	return saveArtifact(ctx, s, runID, KindTopGenomes, top)
}

func (s *MemoryStore) GetTopGenomes(ctx context.Context, runID string) ([]model.TopGenomeRecord, bool, error) {
	return loadArtifact[[]model.TopGenomeRecord](ctx, s, runID, KindTopGenomes)
}

func (s *MemoryStore) SaveLineage(ctx context.Context, runID string, lineage []model.LineageRecord) error {
	return saveArtifact(ctx, s, runID, KindLineage, lineage)
}

func (s *MemoryStore) GetLineage(ctx context.Context, runID string) ([]model.LineageRecord, bool, error) {
	return loadArtifact[[]model.LineageRecord](ctx, s, runID, KindLineage)
}
