package core

import (
	"sort"

	"github.com/google/uuid"
)

// DensityCell aggregates the agents standing in one grid cell.
// Flow is either the zero vector or a unit vector.
type DensityCell struct {
	Point     GridPoint
	Density   float64
	Flow      Vec2
	Occupants []uuid.UUID
}

// DensityMap is the per-tick crowd occupancy of a grid. Only occupied cells
// are stored; every other cell has zero density and zero flow. It is rebuilt
// from scratch each tick with Reset, Add and Normalize.
type DensityMap struct {
	size  int
	cells map[int]*DensityCell
	total float64
}

// NewDensityMap returns an empty map for a size×size grid.
func NewDensityMap(size int) *DensityMap {
	return &DensityMap{size: size, cells: make(map[int]*DensityCell)}
}

// Size returns the grid dimension the map covers.
func (m *DensityMap) Size() int {
	return m.size
}

// Reset clears all occupancy.
func (m *DensityMap) Reset() {
	clear(m.cells)
	m.total = 0
}

// Add counts one agent in the cell at p, clamped into the grid, and
// accumulates toward into the cell's flow.
func (m *DensityMap) Add(p GridPoint, id uuid.UUID, toward Vec2) {
	if m.size <= 0 {
		return
	}
	p = GridPoint{X: clampInt(p.X, 0, m.size-1), Z: clampInt(p.Z, 0, m.size-1)}
	i := index(m.size, p)
	c, ok := m.cells[i]
	if !ok {
		c = &DensityCell{Point: p}
		m.cells[i] = c
	}
	c.Density++
	c.Flow = c.Flow.Add(toward)
	c.Occupants = append(c.Occupants, id)
	m.total++
}

// Normalize turns every accumulated flow into a unit vector, leaving zero
// flows at zero.
func (m *DensityMap) Normalize() {
	for _, c := range m.cells {
		c.Flow = c.Flow.Normalize()
	}
}

// DensityAt returns the number of agents in p.
func (m *DensityMap) DensityAt(p GridPoint) float64 {
	if m == nil || !inBounds(m.size, p) {
		return 0
	}
	if c, ok := m.cells[index(m.size, p)]; ok {
		return c.Density
	}
	return 0
}

// Cell returns a copy of the aggregate at p. ok is false for empty cells.
func (m *DensityMap) Cell(p GridPoint) (DensityCell, bool) {
	if !inBounds(m.size, p) {
		return DensityCell{}, false
	}
	c, ok := m.cells[index(m.size, p)]
	if !ok {
		return DensityCell{}, false
	}
	return copyCell(c), true
}

// CellsAbove lists cells whose density exceeds threshold in index order.
func (m *DensityMap) CellsAbove(threshold float64) []GridPoint {
	var idx []int
	for i, c := range m.cells {
		if c.Density > threshold {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]GridPoint, len(idx))
	for k, i := range idx {
		out[k] = m.cells[i].Point
	}
	return out
}

// Cells returns copies of all occupied cells in index order.
func (m *DensityMap) Cells() []DensityCell {
	idx := make([]int, 0, len(m.cells))
	for i := range m.cells {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]DensityCell, len(idx))
	for k, i := range idx {
		out[k] = copyCell(m.cells[i])
	}
	return out
}

// Total is the sum of density over all cells.
func (m *DensityMap) Total() float64 {
	return m.total
}

// Mean is the average density over every grid cell, occupied or not.
func (m *DensityMap) Mean() float64 {
	if m.size <= 0 {
		return 0
	}
	return m.total / float64(m.size*m.size)
}

// Max returns the highest single-cell density.
func (m *DensityMap) Max() float64 {
	peak := 0.0
	for _, c := range m.cells {
		if c.Density > peak {
			peak = c.Density
		}
	}
	return peak
}

func copyCell(c *DensityCell) DensityCell {
	out := *c
	out.Occupants = append([]uuid.UUID(nil), c.Occupants...)
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
