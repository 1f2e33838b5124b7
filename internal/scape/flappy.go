package scape

import (
	"context"
	"math/rand"
)

const FlappyName = "flappy"

// FlappyScape runs one generation per EvaluateGeneration call on a shared
// Session. Each generation gets its own course, seeded from Seed plus the
// number of generations already run unless FixedCourse is set.
type FlappyScape struct {
	Config      Config
	Seed        int64
	FixedCourse bool
	Session     *Session
	Observer    Observer
}

func NewFlappyScape(cfg Config, seed int64) (*FlappyScape, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FlappyScape{
		Config:  cfg,
		Seed:    seed,
		Session: NewSession(),
	}, nil
}

func (s *FlappyScape) Name() string {
	return FlappyName
}

// CourseSeed is the seed of the next generation's course.
func (s *FlappyScape) CourseSeed() int64 {
	if s.FixedCourse {
		return s.Seed
	}
	return s.Seed + int64(s.session().Generation())
}

func (s *FlappyScape) EvaluateGeneration(ctx context.Context, policies []Policy) (GenerationResult, error) {
	rng := rand.New(rand.NewSource(s.CourseSeed()))
	runner, err := NewGenerationRunner(s.Config, s.session(), policies, rng)
	if err != nil {
		return GenerationResult{}, err
	}
	return runner.Run(ctx, s.Observer)
}

func (s *FlappyScape) session() *Session {
	if s.Session == nil {
		s.Session = NewSession()
	}
	return s.Session
}
