package building

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

const (
	// BaseCost is the traversal cost of an ordinary floor cell.
	BaseCost = 1.0
	// CirculationCost is the cheaper cost of corridor and stair cells.
	CirculationCost = 0.5
)

// FloorData is the subset of a scenario visible on one floor.
type FloorData struct {
	Floors    []model.Floor
	Spaces    []model.Space
	Paths     []model.CirculationPath
	Obstacles []model.Obstacle
}

// Info summarises the building.
type Info struct {
	Name        string
	Floors      int
	Spaces      int
	TotalArea   float64
	TotalVolume float64
}

// GridStats reports how the building records landed on a navigation grid.
type GridStats struct {
	CirculationCells int
	ObstacleCells    int
	// Skipped counts records without a footprint; they carry no geometry
	// to place.
	Skipped int
}

// Info returns the building summary.
func (s *Scenario) Info() Info {
	info := Info{Name: s.Name, Floors: len(s.Floors), Spaces: len(s.Spaces)}
	for _, sp := range s.Spaces {
		info.TotalArea += sp.Area
		info.TotalVolume += sp.Volume
	}
	return info
}

// FilterByFloor returns the records on floorID. AllFloors returns
// everything. Paths and obstacles with no floor id are shared by every
// floor.
func (s *Scenario) FilterByFloor(floorID string) (FloorData, error) {
	if floorID == AllFloors {
		return FloorData{
			Floors:    append([]model.Floor(nil), s.Floors...),
			Spaces:    append([]model.Space(nil), s.Spaces...),
			Paths:     append([]model.CirculationPath(nil), s.Paths...),
			Obstacles: append([]model.Obstacle(nil), s.Obstacles...),
		}, nil
	}

	var out FloorData
	for _, f := range s.Floors {
		if f.ID == floorID {
			out.Floors = append(out.Floors, f)
			break
		}
	}
	if len(out.Floors) == 0 {
		return FloorData{}, fmt.Errorf("%w: %q", ErrFloorNotFound, floorID)
	}
	for _, sp := range s.Spaces {
		if sp.FloorID == floorID {
			out.Spaces = append(out.Spaces, sp)
		}
	}
	for _, p := range s.Paths {
		if p.FloorID == "" || p.FloorID == floorID {
			out.Paths = append(out.Paths, p)
		}
	}
	for _, o := range s.Obstacles {
		if o.FloorID == "" || o.FloorID == floorID {
			out.Obstacles = append(out.Obstacles, o)
		}
	}
	return out, nil
}

// NavigationGrid builds a size×size grid for floorID with cellSize metres
// per cell. Every cell starts walkable at BaseCost; circulation footprints
// lower it to CirculationCost and obstacle footprints make cells
// impassable. Obstacles win where the two overlap. Footprint cells outside
// the grid are clipped.
func (s *Scenario) NavigationGrid(floorID string, size int, cellSize float64) (*core.Grid, GridStats, error) {
	if cellSize <= 0 || math.IsNaN(cellSize) {
		return nil, GridStats{}, fmt.Errorf("%w: cell size %v", core.ErrInvalidGridSize, cellSize)
	}
	data, err := s.FilterByFloor(floorID)
	if err != nil {
		return nil, GridStats{}, err
	}
	grid, err := core.NewGrid(size, BaseCost)
	if err != nil {
		return nil, GridStats{}, err
	}

	var stats GridStats
	for _, p := range data.Paths {
		if p.Footprint == nil {
			stats.Skipped++
			continue
		}
		forEachCell(grid, *p.Footprint, cellSize, func(x, z int) {
			if grid.SetCost(x, z, CirculationCost) == nil {
				stats.CirculationCells++
			}
		})
	}
	for _, o := range data.Obstacles {
		if o.Footprint == nil {
			stats.Skipped++
			continue
		}
		forEachCell(grid, *o.Footprint, cellSize, func(x, z int) {
			if grid.SetObstacle(x, z) == nil {
				stats.ObstacleCells++
			}
		})
	}
	return grid, stats, nil
}

// GridEvacuationPoints converts the scenario's exits into grid units.
func (s *Scenario) GridEvacuationPoints(cellSize float64) []model.EvacuationPoint {
	out := make([]model.EvacuationPoint, len(s.EvacuationPoints))
	for i, ep := range s.EvacuationPoints {
		out[i] = model.EvacuationPoint{Label: ep.Label, Position: scalePosition(ep.Position, cellSize)}
	}
	return out
}

// GridFires converts the scenario's fires into grid units.
func (s *Scenario) GridFires(cellSize float64) []model.FireSource {
	out := make([]model.FireSource, len(s.Fires))
	for i, f := range s.Fires {
		f.Position = scalePosition(f.Position, cellSize)
		f.Radius /= cellSize
		out[i] = f
	}
	return out
}

func scalePosition(p model.Position, cellSize float64) model.Position {
	return model.Position{X: p.X / cellSize, Z: p.Z / cellSize}
}

// forEachCell visits every in-bounds cell whose square overlaps fp. A
// degenerate footprint still covers the cell containing it.
func forEachCell(grid *core.Grid, fp model.Footprint, cellSize float64, fn func(x, z int)) {
	x0, x1 := cellSpan(fp.MinX, fp.MaxX, cellSize)
	z0, z1 := cellSpan(fp.MinZ, fp.MaxZ, cellSize)
	for x := x0; x <= x1; x++ {
		for z := z0; z <= z1; z++ {
			if grid.InBounds(core.GridPoint{X: x, Z: z}) {
				fn(x, z)
			}
		}
	}
}

func cellSpan(lo, hi, cellSize float64) (int, int) {
	first := int(math.Floor(lo / cellSize))
	last := int(math.Ceil(hi/cellSize)) - 1
	if last < first {
		last = first
	}
	return first, last
}
