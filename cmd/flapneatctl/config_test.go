package main

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"flapneat/internal/scape"
)

func writeConfig(t *testing.T, payload map[string]any) string {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	path := filepath.Join(t.TempDir(), "run_config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRunRequestFromConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"run_id":       "cfg",
		"population":   30,
		"generations":  12,
		"seed":         77,
		"elite_count":  4,
		"selection":    "tournament",
		"fitness_goal": 250.5,
		"fixed_course": true,
		"input_scale":  0.01,
		"top_count":    3,
		"max_ticks":    900,
		"workers":      2,
		"unknown_key":  "ignored",
		"engine": map[string]any{
			"gap_height":    140,
			"gravity":       18.5,
			"gap_top_min":   100,
			"gap_top_max":   400,
			"jump_velocity": -45,
		},
	})

	req, err := loadRunRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if req.RunID != "cfg" || req.Population != 30 || req.Generations != 12 || req.Seed != 77 {
		t.Fatalf("unexpected run fields: %+v", req)
	}
	if req.EliteCount != 4 || req.Selection != "tournament" || req.FitnessGoal != 250.5 || !req.FixedCourse {
		t.Fatalf("unexpected evolution fields: %+v", req)
	}
	if req.InputScale != 0.01 || req.TopCount != 3 || req.MaxTicks != 900 || req.Workers != 2 {
		t.Fatalf("unexpected tuning fields: %+v", req)
	}
	if req.Engine == nil {
		t.Fatal("expected engine override")
	}
	want := scape.DefaultConfig()
	want.GapHeight = 140
	want.Gravity = 18.5
	want.GapTopMin = 100
	want.GapTopMax = 400
	want.JumpVelocity = -45
	if *req.Engine != want {
		t.Fatalf("unexpected engine: %+v", *req.Engine)
	}
}

func TestLoadRunRequestFromConfigErrors(t *testing.T) {
	if _, err := loadRunRequestFromConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected missing file error")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadRunRequestFromConfig(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRunFlagsOverrideConfigOnlyWhenSet(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"population":  30,
		"generations": 12,
		"seed":        77,
	})

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	opts := addRunFlags(fs)
	if err := fs.Parse([]string{"--config", path, "--seed", "5", "--fixed-course"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, err := opts.request(fs)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Population != 30 || req.Generations != 12 {
		t.Fatalf("config values must survive unset flags: %+v", req)
	}
	if req.Seed != 5 || !req.FixedCourse {
		t.Fatalf("set flags must override config: %+v", req)
	}
	if req.Selection != "" {
		t.Fatalf("unset selection flag must not apply its default, got %q", req.Selection)
	}
}

func TestRunFlagsWithoutConfigUseDefaults(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	opts := addRunFlags(fs)
	if err := fs.Parse([]string{"--pop", "8"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	req, err := opts.request(fs)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Population != 8 || req.Generations != 50 || req.Seed != 1 || req.Selection != "elite" || req.TopCount != 5 {
		t.Fatalf("unexpected defaults: %+v", req)
	}
}
