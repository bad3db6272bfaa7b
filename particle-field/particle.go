package field

import "image/color"

// RGB is the colour sampled from a source pixel. Alpha is dropped after sampling.
type RGB struct {
	R, G, B uint8
}

// RGBA converts the colour to an opaque color.RGBA.
func (c RGB) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// Particle defines a single point of the field. Particles live in a flat slice
// owned by the Field; the grid refers to them by index.
type Particle struct {
	X, Y         float64 // current canvas position
	BaseX, BaseY float64 // origin the particle relaxes back to
	Color        RGB
	Radius       float64
	Density      float64

	// Row and Col mirror the grid cell the particle is a member of.
	// (-1, -1) means the particle is outside the grid and not tracked.
	Row, Col int
}

// AtRest reports whether the particle sits exactly on its origin.
func (p *Particle) AtRest() bool {
	return p.X == p.BaseX && p.Y == p.BaseY
}

// DrawCommand is a filled circle emitted for one particle on every frame.
type DrawCommand struct {
	X, Y   float64
	Color  RGB
	Radius float64
}
