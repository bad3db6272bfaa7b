package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/esimov/pixel-particles/config"
	"github.com/esimov/pixel-particles/detector"
	"github.com/esimov/pixel-particles/logger"
	field "github.com/esimov/pixel-particles/particle-field"
	"github.com/esimov/pixel-particles/telemetry"
	"github.com/esimov/pixel-particles/terminal"
	"github.com/esimov/pixel-particles/websocket"
	"github.com/esimov/pixel-particles/window"
)

// errFrameLimit stops a run after the requested number of frames.
var errFrameLimit = errors.New("frame limit reached")

func newRunCmd(a *app) *cobra.Command {
	var frames int64

	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Run the particle field",
		Long: `Sample the image into particles and animate them. The pointer pushes the
particles away and they drift back to their place once it leaves.

Renderers:
  terminal   draw in the terminal, the mouse is the pointer
  window     open a desktop window
  websocket  serve a browser client and stream the frames to it
  none       simulate without drawing, useful with --telemetry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, a, args[0], frames)
		},
	}
	addFieldFlags(cmd)
	cmd.Flags().StringP("renderer", "r", "", "terminal, window, websocket or none")
	cmd.Flags().Int("fps", 0, "frames per second")
	cmd.Flags().String("address", "", "websocket renderer listen address")
	cmd.Flags().String("telemetry", "", "write per-frame statistics to this CSV file")
	cmd.Flags().String("face-cascade", "", "pigo face cascade, enables face tracking")
	cmd.Flags().String("face-frames", "", "directory of frames scanned for a face")
	cmd.Flags().Int64Var(&frames, "frames", 0, "stop after this many frames (0 runs until interrupted)")

	keys := map[string]string{
		"renderer":     "renderer.kind",
		"fps":          "loop.fps",
		"address":      "server.address",
		"telemetry":    "telemetry.csv",
		"face-cascade": "face.cascade",
		"face-frames":  "face.frames",
	}
	for k, v := range fieldFlagKeys {
		keys[k] = v
	}
	annotate(cmd, keys)
	return cmd
}

func run(ctx context.Context, a *app, path string, frames int64) error {
	cfg := a.cfg
	log := logger.L().With(zap.String("image", path))

	f, format, err := buildField(a, path)
	if err != nil {
		return err
	}
	st := f.Stats()
	log.Info("image sampled",
		zap.String("format", format),
		zap.Int("opaque", st.Opaque),
		zap.Int("target", st.Target),
		zap.Int("particles", st.Kept),
		zap.Float64("interaction_radius", f.Radius()),
	)

	rec, err := newRecorder(cfg.Telemetry)
	if err != nil {
		return err
	}
	var opts []field.LoopOption
	if rec != nil {
		opts = append(opts, field.WithObserver(rec.Observe))
	}
	loop := field.NewLoop(f, opts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	events := make(chan field.PointerEvent, 64)

	if cfg.Face.Enabled() {
		tracker, err := newTracker(cfg, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return tracker.Run(ctx, events) })
	}

	var werr error
	switch cfg.Renderer.Kind {
	case config.RendererWindow:
		// Ebitengine must run on the main goroutine; the loop runs inside its Update.
		game := window.New(loop, cfg.Canvas.Width, cfg.Canvas.Height)
		game.Listen(events)
		game.Limit(frames)
		werr = window.Run(game, "pixel-particles")
		cancel()

	case config.RendererTerminal:
		term := terminal.New(float64(cfg.Canvas.Width), float64(cfg.Canvas.Height), log)
		if err := term.Open(); err != nil {
			return err
		}
		defer term.Close()
		g.Go(func() error { return term.Poll(ctx) })
		g.Go(func() error { return forward(ctx, term.Events(), events) })
		g.Go(func() error { return runLoop(ctx, loop, cfg, limit(term, frames), events) })

	case config.RendererWebsocket:
		srv := websocket.NewServer(websocket.HttpParams{
			Address:      cfg.Server.Address,
			Prefix:       cfg.Server.Prefix,
			Root:         cfg.Server.Root,
			Width:        cfg.Canvas.Width,
			Height:       cfg.Canvas.Height,
			PointerRate:  cfg.Server.PointerRate,
			PointerBurst: cfg.Server.PointerBurst,
		}, log)
		g.Go(func() error { return srv.ListenAndServe(ctx) })
		g.Go(func() error { return forward(ctx, srv.Events(), events) })
		g.Go(func() error { return runLoop(ctx, loop, cfg, limit(srv, frames), events) })

	case config.RendererNone:
		discard := field.RendererFunc(func([]field.DrawCommand) error { return nil })
		g.Go(func() error { return runLoop(ctx, loop, cfg, limit(discard, frames), events) })

	default:
		return fmt.Errorf("%w: unknown renderer %q", config.ErrInvalid, cfg.Renderer.Kind)
	}

	err = g.Wait()
	if werr != nil {
		err = werr
	}
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			log.Warn("closing telemetry", zap.Error(cerr))
		}
		if cfg.Telemetry.Summary {
			s := rec.Summary()
			log.Info("frame time summary",
				zap.Int64("frames", loop.Frame()),
				zap.Float64("mean_us", s.Mean),
				zap.Float64("stddev_us", s.StdDev),
				zap.Float64("p50_us", s.P50),
				zap.Float64("p99_us", s.P99),
				zap.Float64("max_us", s.Max),
			)
		}
	}
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, terminal.ErrQuit) || errors.Is(err, errFrameLimit) {
		log.Info("stopped", zap.Int64("frames", loop.Frame()))
		return nil
	}
	return err
}

func runLoop(ctx context.Context, loop *field.Loop, cfg *config.Config, r field.Renderer, events <-chan field.PointerEvent) error {
	ticker := field.NewTicker(cfg.Loop.FPS)
	defer ticker.Stop()
	return loop.Run(ctx, ticker, r, events)
}

// limit wraps r so that rendering fails with errFrameLimit after n frames.
func limit(r field.Renderer, n int64) field.Renderer {
	if n <= 0 {
		return r
	}
	var rendered int64
	return field.RendererFunc(func(cmds []field.DrawCommand) error {
		if err := r.Render(cmds); err != nil {
			return err
		}
		if rendered++; rendered >= n {
			return errFrameLimit
		}
		return nil
	})
}

// forward copies pointer updates from src to dst until ctx is done.
func forward(ctx context.Context, src <-chan field.PointerEvent, dst chan<- field.PointerEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-src:
			select {
			case dst <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func newRecorder(cfg config.TelemetryConfig) (*telemetry.Recorder, error) {
	switch {
	case cfg.CSV != "":
		return telemetry.Create(cfg.CSV)
	case cfg.Summary:
		return telemetry.NewRecorder(nil, 0), nil
	}
	return nil, nil
}

func newTracker(cfg *config.Config, log *zap.Logger) (*detector.Tracker, error) {
	det, err := detector.Load(cfg.Face.Cascade, cfg.Face.Puploc)
	if err != nil {
		return nil, err
	}
	frames, err := detector.Frames(cfg.Face.Frames)
	if err != nil {
		return nil, err
	}
	log.Info("face tracking enabled", zap.Int("frames", len(frames)), zap.Duration("interval", cfg.Face.Interval))
	return &detector.Tracker{
		Locator:  det,
		Frames:   frames,
		Interval: cfg.Face.Interval,
		Width:    float64(cfg.Canvas.Width),
		Height:   float64(cfg.Canvas.Height),
		Logger:   log,
	}, nil
}

func seed(s int64) int64 {
	if s == 0 {
		return time.Now().UnixNano()
	}
	return s
}
