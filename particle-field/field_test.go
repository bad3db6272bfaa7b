package field

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestField(t *testing.T, imgW, imgH int, canvas float64) *Field {
	t.Helper()
	img := solidImage(imgW, imgH, 200, 100, 50, 255)
	f := New(img, Options{Width: canvas, Height: canvas, Radius: DefaultParticleRadius}, rand.New(rand.NewSource(3)))
	require.Equal(t, imgW*imgH, f.Len())
	return f
}

// checkGridInvariant verifies that every particle's recorded cell matches its
// position and that the grid holds exactly the tracked particles.
func checkGridInvariant(t *testing.T, f *Field) {
	t.Helper()
	g := f.Grid()
	tracked := 0
	for i, p := range f.Particles() {
		row, col := g.CellOf(p.X, p.Y)
		if g.InBounds(row, col) {
			tracked++
			if !assert.Equal(t, [2]int{row, col}, [2]int{p.Row, p.Col}, "particle %d at (%f, %f)", i, p.X, p.Y) {
				continue
			}
			assert.Contains(t, g.Members(row, col), i)
		} else {
			assert.Equal(t, [2]int{Untracked, Untracked}, [2]int{p.Row, p.Col}, "particle %d at (%f, %f)", i, p.X, p.Y)
		}
	}
	assert.Equal(t, tracked, g.Len())
}

func offset(p Particle) float64 {
	return math.Hypot(p.X-p.BaseX, p.Y-p.BaseY)
}

func TestNewPopulatesGrid(t *testing.T) {
	f := newTestField(t, 8, 8, 120)
	assert.Equal(t, InteractionRadius(120, 120), f.Radius())
	assert.Equal(t, 64, f.Grid().Len())
	checkGridInvariant(t, f)
}

func TestStepPointerFarAway(t *testing.T) {
	f := newTestField(t, 4, 4, 100)
	before := slices.Clone(f.Particles())

	stats := f.Step(Pointer{X: 1000, Y: 1000, Valid: true, Moved: true})
	assert.Zero(t, stats.Candidates)
	assert.Zero(t, stats.Repelled)
	assert.Zero(t, stats.Relaxed)

	cmds := f.Draw(nil)
	require.Len(t, cmds, 16)
	for i, c := range cmds {
		assert.Equal(t, before[i].BaseX, c.X)
		assert.Equal(t, before[i].BaseY, c.Y)
		assert.Equal(t, before[i].Color, c.Color)
		assert.Equal(t, before[i].Radius, c.Radius)
	}
}

func TestStepIgnoresStillPointer(t *testing.T) {
	f := newTestField(t, 4, 4, 100)
	p := f.Particles()[5]

	stats := f.Step(Pointer{X: p.X + 1, Y: p.Y + 1, Valid: true})
	assert.Zero(t, stats.Repelled)
	assert.True(t, f.Particles()[5].AtRest())
}

func TestStepPointerOnOrigin(t *testing.T) {
	f := newTestField(t, 4, 4, 100)
	target := f.Particles()[5]
	require.Equal(t, 30.0, target.BaseX)
	require.Equal(t, 30.0, target.BaseY)

	stats := f.Step(Pointer{X: target.BaseX, Y: target.BaseY, Valid: true, Moved: true})
	assert.Positive(t, stats.Repelled)

	moved := f.Particles()[5]
	assert.False(t, moved.AtRest(), "particle under the pointer was not displaced")

	last := offset(moved)
	for frame := 0; frame < 50; frame++ {
		f.Step(Pointer{X: target.BaseX, Y: target.BaseY, Valid: true})
		cur := offset(f.Particles()[5])
		assert.Less(t, cur, last, "frame %d", frame)
		last = cur
	}
	checkGridInvariant(t, f)
}

func TestRepulsionDirection(t *testing.T) {
	f := newTestField(t, 4, 4, 100)
	p := f.Particles()[5] // (30, 30)

	// Pointer to the right and below: the particle moves left and up.
	f.Step(Pointer{X: p.X + 3, Y: p.Y + 4, Valid: true, Moved: true})
	got := f.Particles()[5]
	assert.Less(t, got.X, p.BaseX)
	assert.Less(t, got.Y, p.BaseY)
}

func TestRepulsionMagnitude(t *testing.T) {
	f := newTestField(t, 4, 4, 100)
	p := f.Particles()[5]
	mx, my := p.X+3, p.Y+4

	f.Step(Pointer{X: mx, Y: my, Valid: true, Moved: true})

	r := f.Radius()
	distSq := 25.0
	force := 1 - distSq/(r*r)
	wantX := p.X - (3/r)*force*p.Density
	wantY := p.Y - (4/r)*force*p.Density
	// The same frame then relaxes 1/15 of the offset back.
	wantX -= (wantX - p.BaseX) / 15
	wantY -= (wantY - p.BaseY) / 15

	got := f.Particles()[5]
	assert.InDelta(t, wantX, got.X, 1e-9)
	assert.InDelta(t, wantY, got.Y, 1e-9)
}

func TestRepulsionBoundaryUsesParticleRadius(t *testing.T) {
	img := solidImage(1, 1, 0, 0, 0, 255)
	f := New(img, Options{Width: 120, Height: 120, Radius: 4}, rand.New(rand.NewSource(1)))
	p := f.Particles()[0]
	r := f.Radius()

	// Just beyond the interaction radius but within radius² + particleRadius².
	d := math.Sqrt(r*r + 15) // 16 = 4²
	stats := f.Step(Pointer{X: p.X + d, Y: p.Y, Valid: true, Moved: true})
	assert.Equal(t, 1, stats.Repelled)

	got := f.Particles()[0]
	// Outside R the falloff turns negative and pulls the particle toward the pointer.
	assert.Greater(t, got.X, p.BaseX)

	f2 := New(img, Options{Width: 120, Height: 120, Radius: 4}, rand.New(rand.NewSource(1)))
	d = math.Sqrt(r*r + 17)
	stats = f2.Step(Pointer{X: p.X + d, Y: p.Y, Valid: true, Moved: true})
	assert.Zero(t, stats.Repelled)
}

func TestRepulsionLimitedToNeighborhood(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		f := newTestField(t, 20, 20, 200)
		before := slices.Clone(f.Particles())

		mx, my := rnd.Float64()*240-20, rnd.Float64()*240-20
		f.Step(Pointer{X: mx, Y: my, Valid: true, Moved: true})

		prow, pcol := f.Grid().CellOf(mx, my)
		for i, p := range f.Particles() {
			if p.X == before[i].X && p.Y == before[i].Y {
				continue
			}
			if abs(before[i].Row-prow) > 1 || abs(before[i].Col-pcol) > 1 {
				t.Fatalf("trial %d: particle %d outside the pointer block (%d,%d) moved", trial, i, prow, pcol)
			}
		}
	}
}

func TestRelaxationConverges(t *testing.T) {
	f := newTestField(t, 4, 4, 100)
	p := &f.particles[10]
	p.X += 20
	p.Y -= 12
	f.relocate(10)

	last := offset(*p)
	frames := 0
	for last > 1e-9 {
		stats := f.Step(Pointer{})
		require.Equal(t, 1, stats.Relaxed)
		cur := offset(f.Particles()[10])
		require.Less(t, cur, last, "offset grew at frame %d", frames)
		last = cur
		frames++
		require.Less(t, frames, 2000)
	}
	checkGridInvariant(t, f)
}

func TestGridInvariantUnderRandomPointer(t *testing.T) {
	f := newTestField(t, 16, 16, 160)
	rnd := rand.New(rand.NewSource(5))

	ptr := Pointer{}
	for frame := 0; frame < 400; frame++ {
		if rnd.Intn(3) > 0 {
			ptr.MoveTo(rnd.Float64()*180-10, rnd.Float64()*180-10)
		}
		f.Step(ptr)
		ptr.Moved = false
		if frame%25 == 0 {
			checkGridInvariant(t, f)
		}
	}
	checkGridInvariant(t, f)
}

func TestParticlesLeaveAndReenterGrid(t *testing.T) {
	img := solidImage(1, 1, 0, 0, 0, 255)
	f := New(img, Options{Width: 12, Height: 12}, rand.New(rand.NewSource(1)))
	p := &f.particles[0]

	p.X = -40
	f.relocate(0)
	assert.Equal(t, Untracked, p.Row)
	assert.Zero(t, f.Grid().Len())

	for i := 0; i < 200; i++ {
		f.Step(Pointer{})
	}
	assert.NotEqual(t, Untracked, f.Particles()[0].Row)
	assert.Equal(t, 1, f.Grid().Len())
	checkGridInvariant(t, f)
}

func TestEmptyFieldStep(t *testing.T) {
	f := New(solidImage(3, 3, 0, 0, 0, 0), Options{Width: 100, Height: 100}, rand.New(rand.NewSource(1)))
	assert.Zero(t, f.Len())
	assert.NotPanics(t, func() {
		f.Step(Pointer{X: 50, Y: 50, Valid: true, Moved: true})
	})
	assert.Empty(t, f.Draw(nil))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
