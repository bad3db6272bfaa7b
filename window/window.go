// Package window hosts the particle field in a desktop window. Ebitengine
// calls Update once per display refresh, which drives the frame loop.
package window

import (
	"errors"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	field "github.com/esimov/pixel-particles/particle-field"
)

// ErrClosed is returned by Update once the user pressed Escape or the frame
// limit was reached.
var ErrClosed = errors.New("window closed")

// cursor reports the pointer position in canvas coordinates.
type cursor func() (x, y int)

// Game adapts a field.Loop to ebiten.Game.
type Game struct {
	loop          *field.Loop
	width, height int
	cursor        cursor
	lastX, lastY  int
	seen          bool
	cmds          []field.DrawCommand
	background    color.Color
	events        <-chan field.PointerEvent
	limit         int64
}

// New creates a game over loop drawn on a width x height canvas.
func New(loop *field.Loop, width, height int) *Game {
	return &Game{
		loop:       loop,
		width:      width,
		height:     height,
		cursor:     ebiten.CursorPosition,
		background: color.Black,
	}
}

// Listen makes the game apply pointer updates from ch before the cursor at
// every frame.
func (g *Game) Listen(ch <-chan field.PointerEvent) { g.events = ch }

// Limit closes the window after n frames. Zero runs until Escape.
func (g *Game) Limit(n int64) { g.limit = n }

// Run opens the window and blocks until it is closed.
func Run(g *Game, title string) error {
	ebiten.SetWindowSize(g.width, g.height)
	ebiten.SetWindowTitle(title)
	err := ebiten.RunGame(g)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Update feeds the cursor into the loop when it moved and runs one frame.
func (g *Game) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) {
		return ErrClosed
	}
	return g.step()
}

func (g *Game) step() error {
	if g.limit > 0 && g.loop.Frame() >= g.limit {
		return ErrClosed
	}
	for drained := false; !drained; {
		select {
		case ev := <-g.events:
			g.loop.Feed(ev)
		default:
			drained = true
		}
	}
	// The first sample only sets the baseline: ebiten reports (0, 0) until the
	// cursor enters the window.
	x, y := g.cursor()
	if g.seen && (x != g.lastX || y != g.lastY) {
		g.loop.Feed(field.PointerEvent{X: float64(x), Y: float64(y)})
	}
	g.lastX, g.lastY, g.seen = x, y, true
	g.cmds = g.loop.Tick()
	return nil
}

// Draw paints the last frame as filled circles.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(g.background)
	for _, c := range g.cmds {
		vector.DrawFilledCircle(screen, float32(c.X), float32(c.Y), float32(c.Radius), c.Color.RGBA(), true)
	}
}

// Layout keeps the logical screen at the canvas size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height
}
