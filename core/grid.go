package core

import (
	"fmt"
	"math"
)

// GridPoint is an integer cell coordinate (x, z).
type GridPoint struct {
	X, Z int
}

// Vec returns the floor-plan position of the cell's origin corner, which is
// where agents steer when following a path through the cell.
func (p GridPoint) Vec() Vec2 {
	return Vec2{X: float64(p.X), Z: float64(p.Z)}
}

func (p GridPoint) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Z)
}

// Cell is the walkability and cost state of one grid square.
// BaseCost of +Inf marks the cell impassable.
type Cell struct {
	Walkable bool
	BaseCost float64
	Risk     bool
}

// Passable reports whether a search may enter the cell.
func (c Cell) Passable() bool {
	return c.Walkable && !math.IsInf(c.BaseCost, 1)
}

// Surface is a read-only view of a square cost grid. Grid and Overlay both
// implement it so searches can run against either.
type Surface interface {
	Size() int
	At(p GridPoint) (Cell, bool)
}

// DensitySource exposes per-cell crowd density to cost functions.
type DensitySource interface {
	DensityAt(p GridPoint) float64
}

// Grid is a fixed-resolution square walkability/cost surface indexed by
// (x, z) in [0, size)². It never resizes.
type Grid struct {
	size  int
	cells []Cell
}

// NewGrid builds a size×size grid with every cell walkable at baseCost.
func NewGrid(size int, baseCost float64) (*Grid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGridSize, size)
	}
	if baseCost < 0 || math.IsNaN(baseCost) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCost, baseCost)
	}
	cells := make([]Cell, size*size)
	for i := range cells {
		cells[i] = Cell{Walkable: true, BaseCost: baseCost}
	}
	return &Grid{size: size, cells: cells}, nil
}

// Size returns the grid dimension.
func (g *Grid) Size() int {
	return g.size
}

// Len returns the total number of cells.
func (g *Grid) Len() int {
	return len(g.cells)
}

// InBounds reports whether p lies inside the grid.
func (g *Grid) InBounds(p GridPoint) bool {
	return inBounds(g.size, p)
}

// Index flattens p into x*size + z. The caller must check bounds.
func (g *Grid) Index(p GridPoint) int {
	return index(g.size, p)
}

// Point is the inverse of Index.
func (g *Grid) Point(idx int) GridPoint {
	return GridPoint{X: idx / g.size, Z: idx % g.size}
}

// At returns the cell at p; ok is false outside the grid.
func (g *Grid) At(p GridPoint) (Cell, bool) {
	if !g.InBounds(p) {
		return Cell{}, false
	}
	return g.cells[g.Index(p)], true
}

// CellAt returns the cell at (x, z) or ErrOutOfBounds.
func (g *Grid) CellAt(x, z int) (Cell, error) {
	c, ok := g.At(GridPoint{X: x, Z: z})
	if !ok {
		return Cell{}, outOfBounds(x, z, g.size)
	}
	return c, nil
}

// SetRisk flags or clears the hazard marker on (x, z).
func (g *Grid) SetRisk(x, z int, risk bool) error {
	p := GridPoint{X: x, Z: z}
	if !g.InBounds(p) {
		return outOfBounds(x, z, g.size)
	}
	g.cells[g.Index(p)].Risk = risk
	return nil
}

// SetCost replaces the base traversal cost of (x, z). +Inf is allowed and
// makes the cell impassable.
func (g *Grid) SetCost(x, z int, cost float64) error {
	p := GridPoint{X: x, Z: z}
	if !g.InBounds(p) {
		return outOfBounds(x, z, g.size)
	}
	if cost < 0 || math.IsNaN(cost) {
		return fmt.Errorf("%w: %v at %s", ErrInvalidCost, cost, p)
	}
	g.cells[g.Index(p)].BaseCost = cost
	return nil
}

// SetObstacle marks (x, z) as structural: not walkable, infinite cost.
func (g *Grid) SetObstacle(x, z int) error {
	p := GridPoint{X: x, Z: z}
	if !g.InBounds(p) {
		return outOfBounds(x, z, g.size)
	}
	c := &g.cells[g.Index(p)]
	c.Walkable = false
	c.BaseCost = math.Inf(1)
	return nil
}

// RiskCount returns the number of cells currently flagged as risk.
func (g *Grid) RiskCount() int {
	n := 0
	for i := range g.cells {
		if g.cells[i].Risk {
			n++
		}
	}
	return n
}

func inBounds(size int, p GridPoint) bool {
	return p.X >= 0 && p.X < size && p.Z >= 0 && p.Z < size
}

func index(size int, p GridPoint) int {
	return p.X*size + p.Z
}

func outOfBounds(x, z, size int) error {
	return fmt.Errorf("%w: (%d,%d) not in [0,%d)", ErrOutOfBounds, x, z, size)
}
