package core

import "math"

// Overlay is a copy-on-write cost view over a base Surface. Only cells whose
// cost has been changed are stored, so building an alternate cost surface is
// proportional to the number of touched cells rather than the grid size.
// The base is never mutated.
type Overlay struct {
	base  Surface
	size  int
	costs map[int]float64
}

// NewOverlay wraps base with an empty delta.
func NewOverlay(base Surface) *Overlay {
	return &Overlay{
		base:  base,
		size:  base.Size(),
		costs: make(map[int]float64),
	}
}

// Size returns the base surface dimension.
func (o *Overlay) Size() int {
	return o.size
}

// At returns the base cell with any overridden cost applied.
func (o *Overlay) At(p GridPoint) (Cell, bool) {
	c, ok := o.base.At(p)
	if !ok {
		return Cell{}, false
	}
	if cost, found := o.costs[index(o.size, p)]; found {
		c.BaseCost = cost
	}
	return c, true
}

// ScaleCost multiplies the effective cost of p by factor. Out-of-bounds points
// and impassable cells are left untouched.
func (o *Overlay) ScaleCost(p GridPoint, factor float64) {
	c, ok := o.At(p)
	if !ok || math.IsInf(c.BaseCost, 1) {
		return
	}
	o.costs[index(o.size, p)] = c.BaseCost * factor
}

// Touched returns how many cells carry an override.
func (o *Overlay) Touched() int {
	return len(o.costs)
}
