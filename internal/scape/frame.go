package scape

type BirdView struct {
	Index   int
	X       float64
	Y       float64
	Radius  float64
	Score   int
	Fitness float64
}

type ObstacleView struct {
	ID        int
	X         float64
	Width     float64
	GapTop    float64
	GapBottom float64
	Passed    bool
}

// Frame is a copy of the visible world after a tick, for presentation only.
type Frame struct {
	Generation  int
	Tick        int
	WorldWidth  float64
	WorldHeight float64
	Birds       []BirdView
	Obstacles   []ObstacleView
	ClosestID   int
	BestFitness float64
	BestScore   int
	LeaderScore int
	Ended       bool
}

func (r *GenerationRunner) Frame() Frame {
	frame := Frame{
		Generation:  r.generation,
		Tick:        r.tick,
		WorldWidth:  r.cfg.WorldWidth,
		WorldHeight: r.cfg.WorldHeight,
		Birds:       make([]BirdView, 0, len(r.active)),
		Obstacles:   make([]ObstacleView, 0, r.track.Len()),
		ClosestID:   -1,
		BestFitness: r.session.BestFitness(),
		BestScore:   r.session.BestScore(),
		Ended:       r.state == StateEnded,
	}
	for _, idx := range r.active {
		b := r.birds[idx]
		frame.Birds = append(frame.Birds, BirdView{
			Index:   idx,
			X:       b.X,
			Y:       b.Y,
			Radius:  b.Radius,
			Score:   b.Score,
			Fitness: b.Fitness,
		})
	}
	if len(frame.Birds) > 0 {
		frame.LeaderScore = frame.Birds[0].Score
	}
	for _, o := range r.track.Obstacles() {
		if frame.ClosestID < 0 && !o.Passed {
			frame.ClosestID = o.ID
		}
		frame.Obstacles = append(frame.Obstacles, ObstacleView{
			ID:        o.ID,
			X:         o.X,
			Width:     o.Width,
			GapTop:    o.GapTop,
			GapBottom: o.GapBottom,
			Passed:    o.Passed,
		})
	}
	return frame
}
