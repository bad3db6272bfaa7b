package field

import "math/rand"

// relaxFactor is the fraction of the remaining offset a particle recovers per frame.
const relaxFactor = 15.0

// Options configures a Field.
type Options struct {
	Width, Height float64 // canvas size
	Radius        float64 // particle radius
	TargetCount   int     // desired particle count; <= 0 keeps every opaque pixel
}

// InteractionRadius returns the pointer radius used for a canvas of the given size.
func InteractionRadius(width, height float64) float64 {
	return (width + height) / 12
}

// Field holds the particles sampled from an image and the grid that indexes them.
type Field struct {
	width, height float64
	radius        float64 // interaction radius, also the grid cell extent

	particles  []Particle
	grid       *Grid
	stats      SampleStats
	candidates []int
}

// New samples img and places the resulting particles into a fresh grid. See
// Sample for the use of rnd.
func New(img *Image, opts Options, rnd *rand.Rand) *Field {
	f := &Field{
		width:  opts.Width,
		height: opts.Height,
		radius: InteractionRadius(opts.Width, opts.Height),
	}
	f.grid = NewGrid(f.width, f.height, f.radius)
	f.particles, f.stats = Sample(img, f.width, f.height, SampleOptions{
		TargetCount: opts.TargetCount,
		Radius:      opts.Radius,
	}, rnd)

	for i := range f.particles {
		p := &f.particles[i]
		row, col := f.grid.CellOf(p.X, p.Y)
		if f.grid.InBounds(row, col) {
			f.grid.Insert(i, row, col)
			p.Row, p.Col = row, col
		}
	}
	return f
}

// Particles exposes the particle slice. Callers must not retain it across Step.
func (f *Field) Particles() []Particle { return f.particles }

// Grid returns the spatial index of the field.
func (f *Field) Grid() *Grid { return f.grid }

// Stats returns the statistics of the sampling pass.
func (f *Field) Stats() SampleStats { return f.stats }

// Radius returns the interaction radius.
func (f *Field) Radius() float64 { return f.radius }

// Size returns the canvas dimensions.
func (f *Field) Size() (width, height float64) { return f.width, f.height }

// Len returns the number of particles.
func (f *Field) Len() int { return len(f.particles) }

// StepStats counts the work done by a single Step.
type StepStats struct {
	Candidates int // particles found in the pointer neighbourhood
	Repelled   int // particles moved by the pointer
	Relaxed    int // particles pulled back toward their origin
}

// Step advances the field by one frame. Particles near the pointer are pushed
// away when the pointer moved, then every displaced particle eases back toward
// its origin.
func (f *Field) Step(ptr Pointer) StepStats {
	var stats StepStats
	if ptr.Moved && ptr.Valid {
		stats.Candidates, stats.Repelled = f.repel(ptr.X, ptr.Y)
	}
	stats.Relaxed = f.relax()
	return stats
}

func (f *Field) repel(mx, my float64) (candidates, repelled int) {
	row, col := f.grid.CellOf(mx, my)
	f.candidates = f.grid.Neighbors(row, col, f.candidates[:0])

	// The boundary test widens by the particle radius while the falloff does not.
	radiusSq := f.radius * f.radius
	for _, i := range f.candidates {
		p := &f.particles[i]
		dx := mx - p.X
		dy := my - p.Y
		distSq := dx*dx + dy*dy
		if distSq >= radiusSq+p.Radius*p.Radius {
			continue
		}

		dirX, dirY := dx/f.radius, dy/f.radius
		if dx == 0 && dy == 0 {
			// A pointer right on top of the particle counts as one particle
			// radius away along +x.
			dirX = p.Radius / f.radius
		}
		force := 1 - distSq/radiusSq

		p.X -= dirX * force * p.Density
		p.Y -= dirY * force * p.Density
		f.relocate(i)
		repelled++
	}
	return len(f.candidates), repelled
}

func (f *Field) relax() int {
	n := 0
	for i := range f.particles {
		p := &f.particles[i]
		if p.AtRest() {
			continue
		}
		if p.X != p.BaseX {
			p.X -= (p.X - p.BaseX) / relaxFactor
		}
		if p.Y != p.BaseY {
			p.Y -= (p.Y - p.BaseY) / relaxFactor
		}
		f.relocate(i)
		n++
	}
	return n
}

// relocate keeps the grid membership of particle i in sync with its position.
func (f *Field) relocate(i int) {
	p := &f.particles[i]
	row, col := f.grid.CellOf(p.X, p.Y)
	if row == p.Row && col == p.Col {
		return
	}
	if p.Row != Untracked {
		f.grid.Remove(i, p.Row, p.Col)
	}
	if f.grid.InBounds(row, col) {
		f.grid.Insert(i, row, col)
		p.Row, p.Col = row, col
	} else {
		p.Row, p.Col = Untracked, Untracked
	}
}

// Draw appends one draw command per particle to dst, in particle order.
func (f *Field) Draw(dst []DrawCommand) []DrawCommand {
	for i := range f.particles {
		p := &f.particles[i]
		dst = append(dst, DrawCommand{X: p.X, Y: p.Y, Color: p.Color, Radius: p.Radius})
	}
	return dst
}
