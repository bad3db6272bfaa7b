package field

import (
	"math"
	"math/rand"
)

const (
	// alphaThreshold is the alpha value a pixel must exceed to become a particle.
	alphaThreshold = 128

	// imageOffset shrinks the sampled image toward the canvas centre, so
	// particles never sit on the canvas edge.
	imageOffset = 0.2

	// DefaultTargetCount is the particle budget the sampler reports when no target is set.
	DefaultTargetCount = 1000

	// DefaultParticleRadius is the radius given to every particle unless overridden.
	DefaultParticleRadius = 2.0

	minDensity   = 1.0
	densityRange = 30.0
)

// SampleOptions controls which pixels become particles.
type SampleOptions struct {
	// TargetCount is the desired number of particles. Zero or negative means unset:
	// every opaque pixel is kept.
	TargetCount int
	// Radius is the radius assigned to each particle.
	Radius float64
}

// SampleStats describes the outcome of a sampling pass.
type SampleStats struct {
	Opaque int // pixels with alpha above the threshold
	Target int // effective target, min(requested or default, Opaque)
	Kept   int // particles actually produced
}

// Sample scans the image and turns the opaque pixels into particles placed on a
// canvasW x canvasH canvas. When a target count below the number of opaque pixels
// is requested, each opaque pixel is kept independently with probability
// target/opaque, so the result only approximates the target. A nil rnd uses a
// source with a fixed seed.
func Sample(img *Image, canvasW, canvasH float64, opts SampleOptions, rnd *rand.Rand) ([]Particle, SampleStats) {
	var stats SampleStats
	if !img.valid() {
		return nil, stats
	}
	if opts.Radius <= 0 {
		opts.Radius = DefaultParticleRadius
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}

	stats.Opaque = countOpaque(img)

	requested := DefaultTargetCount
	if opts.TargetCount > 0 {
		requested = opts.TargetCount
	}
	stats.Target = min(requested, stats.Opaque)

	downsample := opts.TargetCount > 0 && opts.TargetCount < stats.Opaque
	keep := 1.0
	if downsample {
		keep = float64(opts.TargetCount) / float64(stats.Opaque)
	}

	particles := make([]Particle, 0, stats.Target)
	w, h := float64(img.Width), float64(img.Height)

	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			r, g, b, a := img.At(x, y)
			if a <= alphaThreshold {
				continue
			}
			if downsample && rnd.Float64() > keep {
				continue
			}
			px := canvasW*imageOffset/2 + math.Floor(float64(x)/w*canvasW)*(1-imageOffset)
			py := canvasH*imageOffset/2 + math.Floor(float64(y)/h*canvasH)*(1-imageOffset)

			particles = append(particles, Particle{
				X:       px,
				Y:       py,
				BaseX:   px,
				BaseY:   py,
				Color:   RGB{R: r, G: g, B: b},
				Radius:  opts.Radius,
				Density: rnd.Float64()*densityRange + minDensity,
				Row:     Untracked,
				Col:     Untracked,
			})
		}
	}
	stats.Kept = len(particles)

	return particles, stats
}

func countOpaque(img *Image) int {
	n := 0
	for i := 3; i < 4*img.Width*img.Height; i += 4 {
		if img.Pix[i] > alphaThreshold {
			n++
		}
	}
	return n
}
