package main

import (
	"encoding/json"
	"os"

	"flapneat/internal/scape"
	flapapi "flapneat/pkg/flapneat"
)

// loadRunRequestFromConfig reads a run config JSON file. Unknown keys are
// ignored; an "engine" object overrides individual engine constants on top of
// the defaults.
func loadRunRequestFromConfig(path string) (flapapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return flapapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return flapapi.RunRequest{}, err
	}

	var req flapapi.RunRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt(raw["population"]); ok {
		req.Population = v
	}
	if v, ok := asInt(raw["generations"]); ok {
		req.Generations = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["elite_count"]); ok {
		req.EliteCount = v
	}
	if v, ok := asString(raw["selection"]); ok {
		req.Selection = v
	}
	if v, ok := asFloat64(raw["fitness_goal"]); ok {
		req.FitnessGoal = v
	}
	if v, ok := asBool(raw["fixed_course"]); ok {
		req.FixedCourse = v
	}
	if v, ok := asFloat64(raw["input_scale"]); ok {
		req.InputScale = v
	}
	if v, ok := asInt(raw["top_count"]); ok {
		req.TopCount = v
	}
	if v, ok := asInt(raw["max_ticks"]); ok {
		req.MaxTicks = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if engineMap, ok := raw["engine"].(map[string]any); ok {
		engine := engineFromMap(engineMap)
		req.Engine = &engine
	}
	return req, nil
}

func engineFromMap(raw map[string]any) scape.Config {
	cfg := scape.DefaultConfig()
	floats := map[string]*float64{
		"world_width":           &cfg.WorldWidth,
		"world_height":          &cfg.WorldHeight,
		"gap_height":            &cfg.GapHeight,
		"obstacle_width":        &cfg.ObstacleWidth,
		"obstacle_speed":        &cfg.ObstacleSpeed,
		"bird_x":                &cfg.BirdX,
		"bird_start_y":          &cfg.BirdStartY,
		"bird_radius":           &cfg.BirdRadius,
		"gravity":               &cfg.Gravity,
		"jump_velocity":         &cfg.JumpVelocity,
		"timestep":              &cfg.Timestep,
		"jump_threshold":        &cfg.JumpThreshold,
		"survival_bonus":        &cfg.SurvivalBonus,
		"pass_bonus":            &cfg.PassBonus,
		"out_of_bounds_penalty": &cfg.OutOfBoundsPenalty,
		"collision_penalty":     &cfg.CollisionPenalty,
	}
	for key, dst := range floats {
		if v, ok := asFloat64(raw[key]); ok {
			*dst = v
		}
	}
	ints := map[string]*int{
		"gap_top_min": &cfg.GapTopMin,
		"gap_top_max": &cfg.GapTopMax,
		"max_ticks":   &cfg.MaxTicks,
		"workers":     &cfg.Workers,
	}
	for key, dst := range ints {
		if v, ok := asInt(raw[key]); ok {
			*dst = v
		}
	}
	return cfg
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags applies the flags named in set to req.
func overrideFromFlags(req *flapapi.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "pop":
			req.Population = v.(int)
		case "gens":
			req.Generations = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "elite":
			req.EliteCount = v.(int)
		case "selection":
			req.Selection = v.(string)
		case "fitness-goal":
			req.FitnessGoal = v.(float64)
		case "fixed-course":
			req.FixedCourse = v.(bool)
		case "input-scale":
			req.InputScale = v.(float64)
		case "top":
			req.TopCount = v.(int)
		case "max-ticks":
			req.MaxTicks = v.(int)
		case "workers":
			req.Workers = v.(int)
		}
	}
}
