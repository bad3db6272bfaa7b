package terminal

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nsf/termbox-go"
	"go.uber.org/zap"

	field "github.com/esimov/pixel-particles/particle-field"
)

// ErrQuit is returned by Poll when the user asks to leave.
var ErrQuit = errors.New("terminal: quit requested")

// Terminal rasterizes particle frames into a termbox cell buffer and turns
// mouse events into pointer updates.
type Terminal struct {
	width, height float64 // canvas size

	backbuf  []termbox.Cell
	bbw, bbh int
	palette  *palette
	events   chan field.PointerEvent
	logger   *zap.Logger
}

// New creates a terminal surface for a canvas of the given size.
func New(width, height float64, logger *zap.Logger) *Terminal {
	return &Terminal{
		width:   width,
		height:  height,
		palette: newPalette(),
		events:  make(chan field.PointerEvent, 64),
		logger:  logger,
	}
}

// Open initializes termbox. Close must be called afterwards.
func (t *Terminal) Open() error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("initializing termbox: %w", err)
	}
	termbox.SetInputMode(termbox.InputEsc | termbox.InputMouse)
	termbox.SetOutputMode(termbox.Output256)
	t.reallocBackBuffer(termbox.Size())
	return nil
}

// Close restores the terminal.
func (t *Terminal) Close() {
	termbox.Close()
}

// Events returns the pointer updates produced by Poll.
func (t *Terminal) Events() <-chan field.PointerEvent {
	return t.events
}

// Poll reads terminal input until ctx is done or the user presses Esc, q or
// Ctrl+C, in which case ErrQuit is returned.
func (t *Terminal) Poll(ctx context.Context) error {
	stop := context.AfterFunc(ctx, termbox.Interrupt)
	defer stop()

	for {
		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			if ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC || ev.Ch == 'q' {
				return ErrQuit
			}
		case termbox.EventMouse:
			cols, rows := termbox.Size()
			x, y := cellToCanvas(ev.MouseX, ev.MouseY, cols, rows, t.width, t.height)
			t.logger.Debug("pointer", zap.Int("col", ev.MouseX), zap.Int("row", ev.MouseY),
				zap.Float64("x", x), zap.Float64("y", y))
			select {
			case t.events <- field.PointerEvent{X: x, Y: y}:
			default:
				// The loop is behind; the next event carries a fresher position.
			}
		case termbox.EventResize:
			t.logger.Debug("resize", zap.Int("cols", ev.Width), zap.Int("rows", ev.Height))
		case termbox.EventError:
			return fmt.Errorf("polling terminal: %w", ev.Err)
		case termbox.EventInterrupt:
			return ctx.Err()
		}
	}
}

// Render draws one frame. It implements field.Renderer.
func (t *Terminal) Render(cmds []field.DrawCommand) error {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	if w, h := termbox.Size(); w != t.bbw || h != t.bbh {
		t.reallocBackBuffer(w, h)
	}
	t.rasterize(cmds)
	copy(termbox.CellBuffer(), t.backbuf)
	return termbox.Flush()
}

func (t *Terminal) rasterize(cmds []field.DrawCommand) {
	for i := range t.backbuf {
		t.backbuf[i] = termbox.Cell{Ch: ' ', Fg: termbox.ColorDefault, Bg: termbox.ColorDefault}
	}
	for _, c := range cmds {
		col, row, ok := canvasToCell(c.X, c.Y, t.bbw, t.bbh, t.width, t.height)
		if !ok {
			continue
		}
		pc := t.palette.lookup(c.Color)
		t.backbuf[t.bbw*row+col] = termbox.Cell{Ch: pc.ch, Fg: pc.fg, Bg: termbox.ColorDefault}
	}
}

func (t *Terminal) reallocBackBuffer(w, h int) {
	t.bbw, t.bbh = w, h
	t.backbuf = make([]termbox.Cell, w*h)
}

// canvasToCell maps a canvas point onto a cols x rows terminal.
func canvasToCell(x, y float64, cols, rows int, width, height float64) (col, row int, ok bool) {
	if cols <= 0 || rows <= 0 || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	col = int(math.Floor(x / width * float64(cols)))
	row = int(math.Floor(y / height * float64(rows)))
	if col < 0 || col >= cols || row < 0 || row >= rows {
		return 0, 0, false
	}
	return col, row, true
}

// cellToCanvas maps the centre of a terminal cell back to canvas space.
func cellToCanvas(col, row, cols, rows int, width, height float64) (x, y float64) {
	if cols <= 0 || rows <= 0 {
		return 0, 0
	}
	x = (float64(col) + 0.5) * width / float64(cols)
	y = (float64(row) + 0.5) * height / float64(rows)
	return x, y
}
