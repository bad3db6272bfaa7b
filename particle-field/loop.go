package field

import (
	"context"
	"time"
)

// Renderer consumes the draw commands of a frame. The previous frame is
// implicitly cleared before the new batch is drawn.
type Renderer interface {
	Render(cmds []DrawCommand) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(cmds []DrawCommand) error

// Render calls fn(cmds).
func (fn RendererFunc) Render(cmds []DrawCommand) error { return fn(cmds) }

// Scheduler blocks until the host is ready for the next frame.
type Scheduler interface {
	Wait(ctx context.Context) error
}

// Ticker schedules frames at a fixed rate.
type Ticker struct {
	t *time.Ticker
}

// NewTicker returns a scheduler firing fps times per second.
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	return &Ticker{t: time.NewTicker(time.Second / time.Duration(fps))}
}

// Wait blocks until the next tick or until ctx is done.
func (t *Ticker) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.t.C:
		return nil
	}
}

// Stop releases the underlying ticker.
func (t *Ticker) Stop() { t.t.Stop() }

// FrameStats describes a completed frame.
type FrameStats struct {
	Frame     int64
	Particles int
	StepStats
	Duration time.Duration
}

// Loop drives a Field one frame at a time. A Loop is not safe for concurrent
// use: Feed, Tick and Run must all be called from the same goroutine.
type Loop struct {
	field    *Field
	pointer  Pointer
	cmds     []DrawCommand
	frame    int64
	observer func(FrameStats)
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithObserver registers fn to be called after every frame.
func WithObserver(fn func(FrameStats)) LoopOption {
	return func(l *Loop) { l.observer = fn }
}

// NewLoop creates a frame loop over f.
func NewLoop(f *Field, opts ...LoopOption) *Loop {
	l := &Loop{
		field: f,
		cmds:  make([]DrawCommand, 0, f.Len()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Field returns the simulated field.
func (l *Loop) Field() *Field { return l.field }

// Pointer returns the current pointer state.
func (l *Loop) Pointer() Pointer { return l.pointer }

// Frame returns the number of completed frames.
func (l *Loop) Frame() int64 { return l.frame }

// Feed records a pointer update for the next frame.
func (l *Loop) Feed(ev PointerEvent) {
	l.pointer.MoveTo(ev.X, ev.Y)
}

// Tick runs one frame: a simulation step followed by the draw emission. The
// returned slice is reused by the next Tick. The moved flag is cleared here and
// nowhere else.
func (l *Loop) Tick() []DrawCommand {
	start := time.Now()

	stats := l.field.Step(l.pointer)
	l.cmds = l.field.Draw(l.cmds[:0])
	l.pointer.Moved = false
	l.frame++

	if l.observer != nil {
		l.observer(FrameStats{
			Frame:     l.frame,
			Particles: l.field.Len(),
			StepStats: stats,
			Duration:  time.Since(start),
		})
	}
	return l.cmds
}

// Run ticks the loop whenever sched fires and hands every frame to r. Pointer
// updates waiting on events are applied at frame boundaries only. Run returns
// when ctx is done, or with the first scheduler or renderer error.
func (l *Loop) Run(ctx context.Context, sched Scheduler, r Renderer, events <-chan PointerEvent) error {
	for {
		if err := sched.Wait(ctx); err != nil {
			return err
		}
		l.drain(events)
		if err := r.Render(l.Tick()); err != nil {
			return err
		}
	}
}

func (l *Loop) drain(events <-chan PointerEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.Feed(ev)
		default:
			return
		}
	}
}
