package scape

import "sync"

// Session holds the telemetry that outlives a single generation: the
// generation counter and the best fitness and score seen so far. Create one
// per evolution run and share it across the runners of that run.
type Session struct {
	mu          sync.RWMutex
	generation  int
	bestFitness float64
	bestScore   int
}

func NewSession() *Session {
	return &Session{}
}

// BeginGeneration advances the generation counter and returns the new
// 1-based generation index.
func (s *Session) BeginGeneration() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	return s.generation
}

func (s *Session) Generation() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) BestFitness() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestFitness
}

func (s *Session) BestScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestScore
}

func (s *Session) observeFitness(fitness float64) {
	s.mu.Lock()
	if fitness > s.bestFitness {
		s.bestFitness = fitness
	}
	s.mu.Unlock()
}

func (s *Session) observeScore(score int) {
	s.mu.Lock()
	if score > s.bestScore {
		s.bestScore = score
	}
	s.mu.Unlock()
}
