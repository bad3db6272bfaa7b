package field

// Pointer is the last reported pointer position. Moved is edge triggered: it is
// set by MoveTo and cleared by the frame loop once the frame has been drawn.
type Pointer struct {
	X, Y  float64
	Valid bool // false until the first update arrives
	Moved bool
}

// MoveTo records a new pointer position.
func (p *Pointer) MoveTo(x, y float64) {
	p.X, p.Y = x, y
	p.Valid = true
	p.Moved = true
}

// PointerEvent is a canvas-local pointer update delivered by a host.
type PointerEvent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
