package terminal

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/nsf/termbox-go"

	field "github.com/esimov/pixel-particles/particle-field"
)

// ramp orders glyphs from faint to dense; brighter particles get denser glyphs.
var ramp = []rune(".:-=+*#%@")

// palette maps particle colours onto the 240 non-system colours of a 256 colour
// terminal. Particle colours never change, so lookups are memoized.
type palette struct {
	colors []colorful.Color
	cache  map[field.RGB]cell
}

type cell struct {
	ch rune
	fg termbox.Attribute
}

func newPalette() *palette {
	p := &palette{cache: make(map[field.RGB]cell)}
	levels := []float64{0, 95, 135, 175, 215, 255}
	for _, r := range levels {
		for _, g := range levels {
			for _, b := range levels {
				p.colors = append(p.colors, colorful.Color{R: r / 255, G: g / 255, B: b / 255})
			}
		}
	}
	for i := 0; i < 24; i++ {
		v := float64(8+i*10) / 255
		p.colors = append(p.colors, colorful.Color{R: v, G: v, B: v})
	}
	return p
}

// lookup returns the glyph and Output256 foreground attribute for c.
func (p *palette) lookup(c field.RGB) cell {
	if v, ok := p.cache[c]; ok {
		return v
	}
	col := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}

	best, bestDist := 0, col.DistanceLab(p.colors[0])
	for i := 1; i < len(p.colors); i++ {
		if d := col.DistanceLab(p.colors[i]); d < bestDist {
			best, bestDist = i, d
		}
	}

	l, _, _ := col.Lab()
	v := cell{
		ch: glyph(l),
		// Colours 0-15 are the system colours; in Output256 mode attributes are offset by one.
		fg: termbox.Attribute(16 + best + 1),
	}
	p.cache[c] = v
	return v
}

// glyph picks a ramp character for a CIE lightness in [0, 1].
func glyph(l float64) rune {
	i := int(l * float64(len(ramp)))
	if i < 0 {
		i = 0
	}
	if i >= len(ramp) {
		i = len(ramp) - 1
	}
	return ramp[i]
}
