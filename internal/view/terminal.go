package view

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"flapneat/internal/scape"
)

const (
	hudRows      = 1
	minDelay     = 0
	maxDelay     = 500 * time.Millisecond
	delayStep    = 10 * time.Millisecond
	defaultDelay = 30 * time.Millisecond
)

const (
	pipeRune    = '█'
	birdRune    = 'o'
	leaderRune  = '@'
	crowdedRune = '*'
)

var (
	styleDefault = tcell.StyleDefault.Background(tcell.ColorBlack)
	styleHUD     = styleDefault.Foreground(tcell.ColorBlack).Background(tcell.NewRGBColor(200, 200, 200))
	stylePipe    = styleDefault.Foreground(tcell.ColorGreen)
	styleClosest = styleDefault.Foreground(tcell.ColorYellow)
	stylePassed  = styleDefault.Foreground(tcell.NewRGBColor(60, 60, 60))
	styleBird    = styleDefault.Foreground(tcell.ColorWhite)
	styleLeader  = styleDefault.Foreground(tcell.ColorRed)
)

// Terminal draws engine frames onto a tcell screen. It is a scape.Observer;
// frames arrive on the simulation goroutine and are drawn synchronously,
// followed by an optional delay so a human can follow the generation.
type Terminal struct {
	screen tcell.Screen

	mu     sync.Mutex
	delay  time.Duration
	paused bool

	quit     chan struct{}
	quitOnce sync.Once
	unpause  chan struct{}
}

func NewTerminal(screen tcell.Screen, delay time.Duration) *Terminal {
	if delay < 0 {
		delay = defaultDelay
	}
	return &Terminal{
		screen:  screen,
		delay:   delay,
		quit:    make(chan struct{}),
		unpause: make(chan struct{}, 1),
	}
}

// Open initialises a real terminal screen.
func Open(delay time.Duration) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()
	return NewTerminal(screen, delay), nil
}

// Done is closed once the user asks to quit.
func (t *Terminal) Done() <-chan struct{} {
	return t.quit
}

func (t *Terminal) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// Listen polls screen events until the screen is finalised. Run it on its
// own goroutine.
func (t *Terminal) Listen() {
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		t.HandleEvent(ev)
	}
}

// HandleEvent applies one input event. q, Esc and Ctrl-C quit; + and - change
// the frame delay; space toggles pause.
func (t *Terminal) HandleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			t.stop()
			return
		case tcell.KeyRune:
		default:
			return
		}
		switch ev.Rune() {
		case 'q':
			t.stop()
		case '+':
			t.adjustDelay(-delayStep)
		case '-':
			t.adjustDelay(delayStep)
		case ' ':
			t.togglePause()
		}
	case *tcell.EventResize:
		t.screen.Sync()
	}
}

func (t *Terminal) OnTick(frame scape.Frame) {
	t.Draw(frame)
	t.wait()
}

// Draw renders one frame. The top row is the HUD; the rest of the screen is
// the world scaled to fit.
func (t *Terminal) Draw(frame scape.Frame) {
	t.screen.Clear()
	width, height := t.screen.Size()
	if width <= 0 || height <= hudRows {
		t.screen.Show()
		return
	}
	grid := newProjection(frame, width, height-hudRows)

	for _, o := range frame.Obstacles {
		style := stylePipe
		switch {
		case o.ID == frame.ClosestID:
			style = styleClosest
		case o.Passed:
			style = stylePassed
		}
		t.drawObstacle(grid, o, style)
	}

	occupied := make(map[[2]int]int, len(frame.Birds))
	for _, b := range frame.Birds {
		occupied[grid.cell(b.X, b.Y)]++
	}
	for i, b := range frame.Birds {
		cell := grid.cell(b.X, b.Y)
		r, style := birdRune, styleBird
		if occupied[cell] > 1 {
			r = crowdedRune
		}
		if i == 0 {
			r, style = leaderRune, styleLeader
		}
		t.screen.SetContent(cell[0], cell[1]+hudRows, r, nil, style)
	}

	t.drawHUD(frame, width)
	t.screen.Show()
}

func (t *Terminal) drawObstacle(grid projection, o scape.ObstacleView, style tcell.Style) {
	left := grid.col(o.X)
	right := grid.col(o.X + o.Width)
	if right < 0 || left >= grid.width {
		return
	}
	gapTop := grid.row(o.GapTop)
	gapBottom := grid.row(o.GapBottom)
	for x := max(left, 0); x <= min(right, grid.width-1); x++ {
		for y := 0; y < grid.height; y++ {
			if y >= gapTop && y <= gapBottom {
				continue
			}
			t.screen.SetContent(x, y+hudRows, pipeRune, nil, style)
		}
	}
}

func (t *Terminal) drawHUD(frame scape.Frame, width int) {
	status := ""
	if t.isPaused() {
		status = " [paused]"
	}
	text := fmt.Sprintf(" gen %d  tick %d  alive %d  score %d  best %d  fitness %.1f%s ",
		frame.Generation, frame.Tick, len(frame.Birds), frame.LeaderScore, frame.BestScore, frame.BestFitness, status)
	x := 0
	for _, r := range text {
		if x >= width {
			break
		}
		t.screen.SetContent(x, 0, r, nil, styleHUD)
		x++
	}
	for ; x < width; x++ {
		t.screen.SetContent(x, 0, ' ', nil, styleHUD)
	}
}

// Close restores the terminal. Listen returns once the screen is finalised.
func (t *Terminal) Close() {
	t.stop()
	t.screen.Fini()
}

func (t *Terminal) wait() {
	for t.isPaused() {
		select {
		case <-t.quit:
			return
		case <-t.unpause:
		}
	}
	delay := t.Delay()
	if delay <= 0 {
		return
	}
	select {
	case <-t.quit:
	case <-time.After(delay):
	}
}

func (t *Terminal) stop() {
	t.quitOnce.Do(func() { close(t.quit) })
}

func (t *Terminal) adjustDelay(step time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = min(max(t.delay+step, minDelay), maxDelay)
}

func (t *Terminal) togglePause() {
	t.mu.Lock()
	t.paused = !t.paused
	resumed := !t.paused
	t.mu.Unlock()
	if resumed {
		select {
		case t.unpause <- struct{}{}:
		default:
		}
	}
}

func (t *Terminal) isPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// projection maps world coordinates onto screen cells.
type projection struct {
	width, height int
	sx, sy        float64
}

func newProjection(frame scape.Frame, width, height int) projection {
	return projection{
		width:  width,
		height: height,
		sx:     float64(width) / frame.WorldWidth,
		sy:     float64(height) / frame.WorldHeight,
	}
}

func (p projection) col(x float64) int {
	return int(x * p.sx)
}

func (p projection) row(y float64) int {
	r := int(y * p.sy)
	return min(max(r, 0), p.height-1)
}

func (p projection) cell(x, y float64) [2]int {
	return [2]int{min(max(p.col(x), 0), p.width-1), p.row(y)}
}
