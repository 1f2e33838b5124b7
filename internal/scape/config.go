package scape

import (
	"fmt"
	"math"
)

// Config carries every physics, course, and reward constant of the flappy
// course. DefaultConfig reproduces the tuned values; callers may override
// fields but should keep the reward proportions.
type Config struct {
	WorldWidth  float64 `json:"world_width"`
	WorldHeight float64 `json:"world_height"`

	GapHeight     float64 `json:"gap_height"`
	GapTopMin     int     `json:"gap_top_min"`
	GapTopMax     int     `json:"gap_top_max"`
	ObstacleWidth float64 `json:"obstacle_width"`
	ObstacleSpeed float64 `json:"obstacle_speed"`

	BirdX        float64 `json:"bird_x"`
	BirdStartY   float64 `json:"bird_start_y"`
	BirdRadius   float64 `json:"bird_radius"`
	Gravity      float64 `json:"gravity"`
	JumpVelocity float64 `json:"jump_velocity"`
	Timestep     float64 `json:"timestep"`

	JumpThreshold      float64 `json:"jump_threshold"`
	SurvivalBonus      float64 `json:"survival_bonus"`
	PassBonus          float64 `json:"pass_bonus"`
	OutOfBoundsPenalty float64 `json:"out_of_bounds_penalty"`
	CollisionPenalty   float64 `json:"collision_penalty"`

	// MaxTicks ends a generation early once reached. Zero disables the limit.
	MaxTicks int `json:"max_ticks"`
	// Workers evaluates policies on that many goroutines within a tick. Each
	// policy must then be safe to call concurrently with the others.
	Workers int `json:"workers"`
}

func DefaultConfig() Config {
	const worldHeight = 600
	return Config{
		WorldWidth:  600,
		WorldHeight: worldHeight,

		GapHeight:     120,
		GapTopMin:     worldHeight / 4,
		GapTopMax:     3 * worldHeight / 4,
		ObstacleWidth: 50,
		// 8 units per tick at the default timestep.
		ObstacleSpeed: 24,

		BirdX:        100,
		BirdStartY:   100,
		BirdRadius:   20,
		Gravity:      20,
		JumpVelocity: -50,
		Timestep:     1.0 / 3.0,

		JumpThreshold:      0.5,
		SurvivalBonus:      0.2,
		PassBonus:          5,
		OutOfBoundsPenalty: 2,
		CollisionPenalty:   1,
	}
}

func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"world width", c.WorldWidth},
		{"world height", c.WorldHeight},
		{"gap height", c.GapHeight},
		{"obstacle width", c.ObstacleWidth},
		{"obstacle speed", c.ObstacleSpeed},
		{"bird radius", c.BirdRadius},
		{"timestep", c.Timestep},
	}
	for _, p := range positive {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrConfig, p.name, p.value)
		}
	}
	if !(c.Gravity > 0) || math.IsInf(c.Gravity, 0) {
		return fmt.Errorf("%w: gravity must be > 0, got %v", ErrConfig, c.Gravity)
	}
	if c.JumpVelocity >= 0 {
		return fmt.Errorf("%w: jump velocity must be < 0 (upward), got %v", ErrConfig, c.JumpVelocity)
	}
	if c.GapTopMin < 0 || c.GapTopMax <= c.GapTopMin {
		return fmt.Errorf("%w: gap top range must satisfy 0 <= min < max, got [%d, %d)", ErrConfig, c.GapTopMin, c.GapTopMax)
	}
	if float64(c.GapTopMax-1)+c.GapHeight > c.WorldHeight {
		return fmt.Errorf("%w: gap range [%d, %d) with height %v exceeds world height %v", ErrConfig, c.GapTopMin, c.GapTopMax, c.GapHeight, c.WorldHeight)
	}
	if c.BirdStartY-c.BirdRadius < 0 || c.BirdStartY+c.BirdRadius > c.WorldHeight {
		return fmt.Errorf("%w: bird start %v with radius %v is out of bounds", ErrConfig, c.BirdStartY, c.BirdRadius)
	}
	clearance := c.BirdX - c.BirdRadius
	if clearance <= 0 {
		return fmt.Errorf("%w: bird x %v must exceed radius %v", ErrConfig, c.BirdX, c.BirdRadius)
	}
	// An obstacle must be recognised as passed before it can scroll offscreen,
	// otherwise the track would run out of unpassed obstacles.
	if c.ObstacleSpeed*c.Timestep >= clearance {
		return fmt.Errorf("%w: obstacle step %v per tick must be below bird clearance %v", ErrConfig, c.ObstacleSpeed*c.Timestep, clearance)
	}
	if c.SurvivalBonus < 0 || c.PassBonus < 0 || c.OutOfBoundsPenalty < 0 || c.CollisionPenalty < 0 {
		return fmt.Errorf("%w: rewards and penalties are magnitudes and must be >= 0", ErrConfig)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("%w: max ticks must be >= 0, got %d", ErrConfig, c.MaxTicks)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrConfig, c.Workers)
	}
	return nil
}
