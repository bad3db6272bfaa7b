package field

import "math"

// Untracked is the row/col sentinel of a particle lying outside the grid.
const Untracked = -1

// Grid partitions the canvas into square cells and records which particles
// occupy each cell. Cells hold particle indices, never the particles themselves.
type Grid struct {
	cellSize float64
	rows     int
	cols     int
	cells    [][]int

	// slots[id] is the position of particle id inside its cell slice, or -1.
	slots []int
}

// NewGrid creates a grid covering a width x height canvas with cells of cellSize.
func NewGrid(width, height, cellSize float64) *Grid {
	g := &Grid{cellSize: cellSize}
	if cellSize > 0 && width > 0 && height > 0 {
		g.rows = int(math.Ceil(height / cellSize))
		g.cols = int(math.Ceil(width / cellSize))
	}
	g.cells = make([][]int, g.rows*g.cols)
	for i := range g.cells {
		g.cells[i] = make([]int, 0, 8)
	}
	return g
}

// Rows returns the number of grid rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of grid columns.
func (g *Grid) Cols() int { return g.cols }

// CellSize returns the side length of a cell.
func (g *Grid) CellSize() float64 { return g.cellSize }

// CellOf returns the cell containing the canvas point {x, y}. The result may lie
// outside the grid; check it with InBounds.
func (g *Grid) CellOf(x, y float64) (row, col int) {
	if g.cellSize <= 0 {
		return Untracked, Untracked
	}
	return int(math.Floor(y / g.cellSize)), int(math.Floor(x / g.cellSize))
}

// InBounds reports whether {row, col} is a cell of the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// Insert adds particle id to the cell. Out of range cells are ignored, as is an
// id that is already a member of some cell.
func (g *Grid) Insert(id, row, col int) {
	if id < 0 || !g.InBounds(row, col) {
		return
	}
	g.grow(id)
	if g.slots[id] >= 0 {
		return
	}
	idx := g.idx(row, col)
	g.slots[id] = len(g.cells[idx])
	g.cells[idx] = append(g.cells[idx], id)
}

// Remove deletes particle id from the cell. It does nothing when the cell is out
// of range or id is not a member.
func (g *Grid) Remove(id, row, col int) {
	if id < 0 || id >= len(g.slots) || !g.InBounds(row, col) {
		return
	}
	idx := g.idx(row, col)
	cell := g.cells[idx]
	slot := g.slots[id]
	if slot < 0 || slot >= len(cell) || cell[slot] != id {
		return
	}

	// Swap-remove: move the last member into the freed slot.
	last := len(cell) - 1
	moved := cell[last]
	cell[slot] = moved
	g.slots[moved] = slot
	g.cells[idx] = cell[:last]
	g.slots[id] = -1
}

// Members returns the particle ids of a single cell. The slice is owned by the
// grid and valid until the next mutation.
func (g *Grid) Members(row, col int) []int {
	if !g.InBounds(row, col) {
		return nil
	}
	return g.cells[g.idx(row, col)]
}

// Neighbors appends to dst the ids in the 3x3 block of cells centred on
// {row, col}. Cells outside the grid contribute nothing.
func (g *Grid) Neighbors(row, col int, dst []int) []int {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			r, c := row+dr, col+dc
			if !g.InBounds(r, c) {
				continue
			}
			dst = append(dst, g.cells[g.idx(r, c)]...)
		}
	}
	return dst
}

// Len returns the number of particles tracked by the grid.
func (g *Grid) Len() int {
	n := 0
	for _, c := range g.cells {
		n += len(c)
	}
	return n
}

func (g *Grid) idx(row, col int) int {
	return row*g.cols + col
}

func (g *Grid) grow(id int) {
	for len(g.slots) <= id {
		g.slots = append(g.slots, -1)
	}
}
