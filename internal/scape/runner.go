package scape

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

type State int

const (
	StateRunning State = iota
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type EndReason string

const (
	EndRosterEmpty EndReason = "roster_empty"
	EndTickLimit   EndReason = "tick_limit"
	EndPolicyError EndReason = "policy_error"
)

// AgentRecord is the finalized outcome of one policy's bird.
type AgentRecord struct {
	Index         int        `json:"index"`
	Fitness       float64    `json:"fitness"`
	Score         int        `json:"score"`
	Alive         bool       `json:"alive"`
	Cause         DeathCause `json:"cause,omitempty"`
	DiedAt        int        `json:"died_at,omitempty"`
	TicksSurvived int        `json:"ticks_survived"`
}

type GenerationResult struct {
	Generation      int           `json:"generation"`
	Ticks           int           `json:"ticks"`
	Reason          EndReason     `json:"reason"`
	ObstaclesPassed int           `json:"obstacles_passed"`
	BestFitness     float64       `json:"best_fitness"`
	BestScore       int           `json:"best_score"`
	Agents          []AgentRecord `json:"agents"`
}

// Fitness returns the final fitness of every policy in input order.
func (r GenerationResult) Fitness() []float64 {
	out := make([]float64, len(r.Agents))
	for i, a := range r.Agents {
		out[i] = a.Fitness
	}
	return out
}

// GenerationRunner simulates one generation. Birds live in a fixed arena
// indexed by policy; the active roster is an index list rebuilt after each
// pass so no slice is mutated while it is being traversed.
type GenerationRunner struct {
	cfg        Config
	session    *Session
	generation int

	policies []Policy
	birds    []*Bird
	active   []int
	scratch  []int
	errs     []error

	track  *ObstacleTrack
	tick   int
	passed int
	state  State
	reason EndReason
}

func NewGenerationRunner(cfg Config, session *Session, policies []Policy, rng *rand.Rand) (*GenerationRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("%w: at least one policy is required", ErrConfig)
	}
	for i, p := range policies {
		if p == nil {
			return nil, fmt.Errorf("%w: policy %d is nil", ErrConfig, i)
		}
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrConfig)
	}
	if session == nil {
		session = NewSession()
	}

	r := &GenerationRunner{
		cfg:        cfg,
		session:    session,
		generation: session.BeginGeneration(),
		policies:   append([]Policy(nil), policies...),
		birds:      make([]*Bird, len(policies)),
		active:     make([]int, len(policies)),
		scratch:    make([]int, 0, len(policies)),
		errs:       make([]error, 0, len(policies)),
		track:      NewObstacleTrack(cfg, rng),
		state:      StateRunning,
	}
	for i := range policies {
		r.birds[i] = newBird(cfg)
		r.active[i] = i
	}
	r.track.Initialize()
	return r, nil
}

func (r *GenerationRunner) State() State          { return r.state }
func (r *GenerationRunner) Reason() EndReason     { return r.reason }
func (r *GenerationRunner) Tick() int             { return r.tick }
func (r *GenerationRunner) Generation() int       { return r.generation }
func (r *GenerationRunner) Alive() int            { return len(r.active) }
func (r *GenerationRunner) Track() *ObstacleTrack { return r.track }

// Step runs one tick. It is a no-op once the generation has ended.
func (r *GenerationRunner) Step() error {
	if r.state != StateRunning {
		return nil
	}
	r.tick++
	cfg := r.cfg
	closest := r.track.Closest()

	r.think(closest)
	for _, err := range r.errs {
		if err != nil {
			return r.fail(err)
		}
	}

	next := r.scratch[:0]
	for _, idx := range r.active {
		b := r.birds[idx]
		r.session.observeFitness(b.Fitness)
		if b.OutOfBounds(cfg.WorldHeight) {
			b.kill(CauseOutOfBounds, cfg.OutOfBoundsPenalty, r.tick)
			continue
		}
		next = append(next, idx)
	}
	r.swapRoster(next)

	r.track.Tick(cfg.Timestep)

	next = r.scratch[:0]
	for _, idx := range r.active {
		b := r.birds[idx]
		if r.collides(b) {
			b.kill(CauseCollision, cfg.CollisionPenalty, r.tick)
			continue
		}
		next = append(next, idx)
	}
	r.swapRoster(next)

	if len(r.active) == 0 {
		r.end(EndRosterEmpty)
		return nil
	}

	lead := r.birds[r.active[0]]
	if r.track.MaybeSpawnNext(lead.X, lead.Radius) {
		r.passed++
		for _, idx := range r.active {
			b := r.birds[idx]
			b.Fitness += cfg.PassBonus
			b.Score++
			r.session.observeScore(b.Score)
			r.session.observeFitness(b.Fitness)
		}
	}

	if cfg.MaxTicks > 0 && r.tick >= cfg.MaxTicks {
		r.end(EndTickLimit)
	}
	return nil
}

// Run steps until the generation ends. The context is checked between ticks
// only; a tick is never interrupted.
func (r *GenerationRunner) Run(ctx context.Context, observer Observer) (GenerationResult, error) {
	for r.state == StateRunning {
		if err := ctx.Err(); err != nil {
			return GenerationResult{}, err
		}
		if err := r.Step(); err != nil {
			return GenerationResult{}, err
		}
		if observer != nil {
			observer.OnTick(r.Frame())
		}
	}
	return r.Result(), nil
}

// Result snapshots every policy's record. Fitness values are final once the
// runner has ended.
func (r *GenerationRunner) Result() GenerationResult {
	agents := make([]AgentRecord, len(r.birds))
	for i, b := range r.birds {
		survived := r.tick
		if !b.Alive {
			survived = b.DiedAt
		}
		agents[i] = AgentRecord{
			Index:         i,
			Fitness:       b.Fitness,
			Score:         b.Score,
			Alive:         b.Alive,
			Cause:         b.Cause,
			DiedAt:        b.DiedAt,
			TicksSurvived: survived,
		}
	}
	return GenerationResult{
		Generation:      r.generation,
		Ticks:           r.tick,
		Reason:          r.reason,
		ObstaclesPassed: r.passed,
		BestFitness:     r.session.BestFitness(),
		BestScore:       r.session.BestScore(),
		Agents:          agents,
	}
}

// think rewards, queries and moves every active bird. Birds are independent
// here, so with Workers > 1 the roster is split into contiguous chunks; all
// roster and track mutation happens afterwards in roster order.
func (r *GenerationRunner) think(closest *Obstacle) {
	r.errs = r.errs[:0]
	for range r.active {
		r.errs = append(r.errs, nil)
	}

	workers := r.cfg.Workers
	if workers > len(r.active) {
		workers = len(r.active)
	}
	if workers <= 1 {
		for i, idx := range r.active {
			if err := r.moveBird(idx, closest); err != nil {
				r.errs[i] = err
				return
			}
		}
		return
	}

	chunk := (len(r.active) + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < len(r.active); start += chunk {
		end := start + chunk
		if end > len(r.active) {
			end = len(r.active)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				r.errs[i] = r.moveBird(r.active[i], closest)
			}
		}(start, end)
	}
	wg.Wait()
}

func (r *GenerationRunner) moveBird(idx int, closest *Obstacle) error {
	cfg := r.cfg
	b := r.birds[idx]
	b.Fitness += cfg.SurvivalBonus

	obs := Observation{
		b.Y,
		math.Abs(b.Y - closest.GapTop),
		math.Abs(b.Y - closest.GapBottom),
	}
	action, err := r.policies[idx].Evaluate(obs)
	if err != nil {
		return fmt.Errorf("%w: policy %d at tick %d: %w", ErrPolicy, idx, r.tick, err)
	}
	if math.IsNaN(action) || math.IsInf(action, 0) {
		return fmt.Errorf("%w: policy %d at tick %d returned non-numeric action %v", ErrPolicy, idx, r.tick, action)
	}
	if action > cfg.JumpThreshold {
		b.Jump()
	}
	b.Integrate(cfg.Timestep)
	return nil
}

func (r *GenerationRunner) collides(b *Bird) bool {
	for _, o := range r.track.Obstacles() {
		if o.CollidesWith(b) {
			return true
		}
	}
	return false
}

func (r *GenerationRunner) swapRoster(next []int) {
	r.scratch = r.active[:0]
	r.active = next
}

func (r *GenerationRunner) end(reason EndReason) {
	r.state = StateEnded
	r.reason = reason
}

func (r *GenerationRunner) fail(err error) error {
	r.end(EndPolicyError)
	return err
}
