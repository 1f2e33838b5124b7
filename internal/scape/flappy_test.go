package scape

import (
	"context"
	"testing"
)

func TestFlappyScapeSessionTelemetryAcrossGenerations(t *testing.T) {
	cfg := fixedGapConfig()
	cfg.MaxTicks = 100
	s, err := NewFlappyScape(cfg, 4)
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}

	first, err := s.EvaluateGeneration(context.Background(), []Policy{centering()})
	if err != nil {
		t.Fatalf("first generation: %v", err)
	}
	if first.Generation != 1 || first.BestScore != 1 {
		t.Fatalf("unexpected first generation result: gen=%d best_score=%d", first.Generation, first.BestScore)
	}

	second, err := s.EvaluateGeneration(context.Background(), []Policy{neverJump()})
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if second.Generation != 2 {
		t.Fatalf("expected generation 2, got %d", second.Generation)
	}
	if second.BestFitness != first.BestFitness || second.BestScore != first.BestScore {
		t.Fatalf("best-ever telemetry must not reset: first=(%f,%d) second=(%f,%d)",
			first.BestFitness, first.BestScore, second.BestFitness, second.BestScore)
	}
	if second.Agents[0].Fitness >= first.Agents[0].Fitness {
		t.Fatalf("expected weaker second generation, got %f vs %f", second.Agents[0].Fitness, first.Agents[0].Fitness)
	}
	if s.Session.Generation() != 2 {
		t.Fatalf("expected session generation 2, got %d", s.Session.Generation())
	}
}

func TestFlappyScapeCourseSeed(t *testing.T) {
	s, err := NewFlappyScape(DefaultConfig(), 10)
	if err != nil {
		t.Fatalf("new scape: %v", err)
	}
	if s.CourseSeed() != 10 {
		t.Fatalf("expected first course seed 10, got %d", s.CourseSeed())
	}
	s.Session.BeginGeneration()
	if s.CourseSeed() != 11 {
		t.Fatalf("expected second course seed 11, got %d", s.CourseSeed())
	}
	s.FixedCourse = true
	if s.CourseSeed() != 10 {
		t.Fatalf("expected fixed course seed 10, got %d", s.CourseSeed())
	}
}

func TestNewFlappyScapeRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GapHeight = -1
	if _, err := NewFlappyScape(cfg, 1); err == nil {
		t.Fatal("expected config error")
	}
}
