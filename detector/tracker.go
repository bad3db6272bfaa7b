package detector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/esimov/pixel-particles/imageio"
	field "github.com/esimov/pixel-particles/particle-field"
)

// Locator finds a point of interest in a frame, as fractions of its size.
type Locator interface {
	Locate(img *field.Image) (fx, fy float64, ok bool)
}

// Tracker replays a directory of frames through a Locator and turns every hit
// into a canvas pointer update.
type Tracker struct {
	Locator  Locator
	Frames   []string
	Interval time.Duration
	Width    float64 // canvas size
	Height   float64
	Logger   *zap.Logger
}

// Frames lists the image files of dir in lexical order.
func Frames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

// Run sends one pointer update per detected face until ctx is done. The frame
// sequence loops.
func (t *Tracker) Run(ctx context.Context, events chan<- field.PointerEvent) error {
	if len(t.Frames) == 0 {
		return fmt.Errorf("face tracker: no frames")
	}
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(t.Frames) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ev, ok, err := t.track(t.Frames[i])
		if err != nil {
			t.Logger.Warn("skipping frame", zap.String("frame", t.Frames[i]), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Tracker) track(path string) (field.PointerEvent, bool, error) {
	img, _, err := imageio.Load(path)
	if err != nil {
		return field.PointerEvent{}, false, err
	}
	fx, fy, ok := t.Locator.Locate(img)
	if !ok {
		return field.PointerEvent{}, false, nil
	}
	return field.PointerEvent{X: fx * t.Width, Y: fy * t.Height}, true, nil
}
