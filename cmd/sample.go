package cmd

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/esimov/pixel-particles/imageio"
	field "github.com/esimov/pixel-particles/particle-field"
)

func newSampleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample <image>",
		Short: "Sample an image and print the particle statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, format, err := buildField(a, args[0])
			if err != nil {
				return err
			}
			st := f.Stats()
			w, h := f.Size()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "format:    %s\n", format)
			fmt.Fprintf(out, "canvas:    %gx%g\n", w, h)
			fmt.Fprintf(out, "opaque:    %d\n", st.Opaque)
			fmt.Fprintf(out, "target:    %d\n", st.Target)
			fmt.Fprintf(out, "particles: %d\n", st.Kept)
			fmt.Fprintf(out, "grid:      %dx%d cells of %.2f\n", f.Grid().Rows(), f.Grid().Cols(), f.Grid().CellSize())
			return nil
		},
	}
	addFieldFlags(cmd)
	annotate(cmd, fieldFlagKeys)
	return cmd
}

var fieldFlagKeys = map[string]string{
	"width":  "canvas.width",
	"height": "canvas.height",
	"radius": "particles.radius",
	"target": "particles.target_count",
	"seed":   "particles.seed",
}

func addFieldFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", 0, "canvas width")
	cmd.Flags().Int("height", 0, "canvas height")
	cmd.Flags().Float64("radius", 0, "particle radius")
	cmd.Flags().Int("target", 0, "target particle count (0 keeps every opaque pixel)")
	cmd.Flags().Int64("seed", 0, "random seed (0 = time based)")
}

// buildField loads the image and samples it with the configured options.
func buildField(a *app, path string) (*field.Field, string, error) {
	img, format, err := imageio.Load(path)
	if err != nil {
		return nil, "", err
	}
	cfg := a.cfg
	f := field.New(img, field.Options{
		Width:       float64(cfg.Canvas.Width),
		Height:      float64(cfg.Canvas.Height),
		Radius:      cfg.Particles.Radius,
		TargetCount: cfg.Particles.TargetCount,
	}, rand.New(rand.NewSource(seed(cfg.Particles.Seed))))
	return f, format, nil
}
