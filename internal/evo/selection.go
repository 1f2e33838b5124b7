package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"flapneat/internal/model"
)

var ErrSelection = errors.New("selection")

// Selector chooses a parent from a population ranked best first.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error)
}

var selectors = map[string]func() Selector{
	"elite":      func() Selector { return EliteSelector{} },
	"tournament": func() Selector { return TournamentSelector{} },
}

// SelectorFromName resolves a selection strategy. An empty name means elite.
func SelectorFromName(name string) (Selector, error) {
	if name == "" {
		name = "elite"
	}
	build, ok := selectors[name]
	if !ok {
		known := make([]string, 0, len(selectors))
		for k := range selectors {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w: unknown selector %q (want one of %s)", ErrSelection, name, strings.Join(known, ", "))
	}
	return build(), nil
}

func checkSelection(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) error {
	if rng == nil {
		return fmt.Errorf("%w: random source is required", ErrSelection)
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return fmt.Errorf("%w: elite count %d outside [1, %d]", ErrSelection, eliteCount, len(ranked))
	}
	return nil
}

// EliteSelector draws uniformly from the elite.
type EliteSelector struct{}

func (EliteSelector) Name() string { return "elite" }

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error) {
	if err := checkSelection(rng, ranked, eliteCount); err != nil {
		return model.Genome{}, err
	}
	return ranked[rng.Intn(eliteCount)].Genome, nil
}

// TournamentSelector draws Size contestants from the best Pool genomes and
// keeps the best ranked one. Pool defaults to twice the elite and never falls
// below it; Size defaults to 3.
type TournamentSelector struct {
	Pool int
	Size int
}

func (TournamentSelector) Name() string { return "tournament" }

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredGenome, eliteCount int) (model.Genome, error) {
	if err := checkSelection(rng, ranked, eliteCount); err != nil {
		return model.Genome{}, err
	}
	pool := s.Pool
	if pool <= 0 {
		pool = 2 * eliteCount
	}
	pool = min(max(pool, eliteCount), len(ranked))
	size := s.Size
	if size <= 0 {
		size = 3
	}
	size = min(size, pool)

	// ranked is sorted best first, so the lowest drawn index wins.
	winner := pool
	for i := 0; i < size; i++ {
		winner = min(winner, rng.Intn(pool))
	}
	return ranked[winner].Genome, nil
}
