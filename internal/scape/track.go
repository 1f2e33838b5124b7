package scape

import "math/rand"

// ObstacleTrack owns the live obstacles in creation order. Exactly one live
// obstacle is unpassed at any time; that one is the closest.
type ObstacleTrack struct {
	cfg       Config
	rng       *rand.Rand
	obstacles []*Obstacle
	nextID    int
}

func NewObstacleTrack(cfg Config, rng *rand.Rand) *ObstacleTrack {
	return &ObstacleTrack{cfg: cfg, rng: rng}
}

// Initialize discards any live obstacles and creates the first one.
func (t *ObstacleTrack) Initialize() {
	t.obstacles = t.obstacles[:0]
	t.nextID = 0
	t.spawn()
}

func (t *ObstacleTrack) spawn() *Obstacle {
	gapTop := float64(t.cfg.GapTopMin + t.rng.Intn(t.cfg.GapTopMax-t.cfg.GapTopMin))
	o := &Obstacle{
		ID:        t.nextID,
		X:         t.cfg.WorldWidth + t.cfg.ObstacleWidth,
		Width:     t.cfg.ObstacleWidth,
		GapTop:    gapTop,
		GapBottom: gapTop + t.cfg.GapHeight,
		speed:     t.cfg.ObstacleSpeed,
	}
	t.nextID++
	t.obstacles = append(t.obstacles, o)
	return o
}

// Tick advances every obstacle and drops the ones that left the screen.
func (t *ObstacleTrack) Tick(dt float64) {
	live := t.obstacles[:0]
	for _, o := range t.obstacles {
		o.Advance(dt)
		if o.Offscreen() {
			continue
		}
		live = append(live, o)
	}
	for i := len(live); i < len(t.obstacles); i++ {
		t.obstacles[i] = nil
	}
	t.obstacles = live
}

// Closest returns the earliest-created live obstacle not yet passed. It panics
// when none exists: that can only happen if the spawn rule is broken.
func (t *ObstacleTrack) Closest() *Obstacle {
	for _, o := range t.obstacles {
		if !o.Passed {
			return o
		}
	}
	panic("scape: obstacle track has no unpassed obstacle")
}

// MaybeSpawnNext marks the closest obstacle passed and spawns its successor
// once the leading bird has fully cleared it. It reports whether a pass was
// recognised; each obstacle can be passed at most once.
func (t *ObstacleTrack) MaybeSpawnNext(leadX, leadRadius float64) bool {
	closest := t.Closest()
	if closest.X+closest.Width >= leadX-leadRadius {
		return false
	}
	closest.Passed = true
	t.spawn()
	return true
}

// Obstacles returns the live obstacles in creation order. Callers must not
// mutate them.
func (t *ObstacleTrack) Obstacles() []*Obstacle {
	return t.obstacles
}

func (t *ObstacleTrack) Len() int {
	return len(t.obstacles)
}
