package pathfind

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
)

var posInf = math.Inf(1)

// neighbours lists the 8-connected offsets: orthogonal first, then diagonal.
var neighbours = [8]core.GridPoint{
	{X: 0, Z: 1}, {X: 1, Z: 0}, {X: 0, Z: -1}, {X: -1, Z: 0},
	{X: 1, Z: 1}, {X: 1, Z: -1}, {X: -1, Z: 1}, {X: -1, Z: -1},
}

// FindPath runs A* from start to goal over surface, adding density and risk
// penalties from density (which may be nil). Impassable cells are never
// entered. The start cell itself is not required to be passable so agents
// standing in a freshly burning cell can still route out.
//
// Errors: core.ErrOutOfBounds when start or goal lie outside surface,
// ErrNoPath when no route exists, ErrSearchLimit when the expansion budget
// is exhausted.
func (p *Pathfinder) FindPath(ctx context.Context, start, goal core.GridPoint, surface core.Surface, density core.DensitySource) (PathResult, error) {
	ctx, span := p.tracer.Start(ctx, "pathfind.FindPath", trace.WithAttributes(
		attribute.String("start", start.String()),
		attribute.String("goal", goal.String()),
	))
	defer span.End()

	began := time.Now()
	res, expanded, err := p.search(start, goal, surface, density)
	span.SetAttributes(attribute.Int("expanded", expanded))

	switch {
	case err == nil:
		span.SetAttributes(attribute.Int("length", res.Length), attribute.Float64("cost", res.Cost))
		p.observe(began, expanded, OutcomeFound)
	case errors.Is(err, ErrSearchLimit):
		span.SetStatus(codes.Error, err.Error())
		p.observe(began, expanded, OutcomeLimit)
		p.log.Warn(ctx, "path search hit expansion limit",
			logging.String("start", start.String()),
			logging.String("goal", goal.String()),
			logging.Int("expanded", expanded),
		)
	case errors.Is(err, ErrNoPath):
		p.observe(began, expanded, OutcomeNotFound)
		p.log.Debug(ctx, "no path",
			logging.String("start", start.String()),
			logging.String("goal", goal.String()),
		)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// node is the per-cell search record. Only touched cells get one.
type node struct {
	g      float64
	parent int
	closed bool
}

func (p *Pathfinder) search(start, goal core.GridPoint, surface core.Surface, density core.DensitySource) (PathResult, int, error) {
	if surface == nil {
		return PathResult{}, 0, fmt.Errorf("pathfind: nil surface")
	}
	size := surface.Size()
	if _, ok := surface.At(start); !ok {
		return PathResult{}, 0, fmt.Errorf("%w: start %s", core.ErrOutOfBounds, start)
	}
	goalCell, ok := surface.At(goal)
	if !ok {
		return PathResult{}, 0, fmt.Errorf("%w: goal %s", core.ErrOutOfBounds, goal)
	}
	if start == goal {
		return PathResult{Waypoints: []core.GridPoint{start}}, 0, nil
	}
	if !goalCell.Passable() {
		return PathResult{}, 0, ErrNoPath
	}

	idx := func(pt core.GridPoint) int { return pt.X*size + pt.Z }
	point := func(i int) core.GridPoint { return core.GridPoint{X: i / size, Z: i % size} }

	startIdx, goalIdx := idx(start), idx(goal)
	nodes := map[int]*node{startIdx: {g: 0, parent: -1}}
	open := &openSet{}
	heap.Push(open, &openItem{idx: startIdx, g: 0, h: manhattan(start, goal)})

	budget := p.expansionBudget(size)
	expanded := 0

	for open.Len() > 0 {
		item := heap.Pop(open).(*openItem)
		cur := nodes[item.idx]
		// Stale entry from a lazy decrease-key.
		if cur.closed || item.g > cur.g {
			continue
		}
		if item.idx == goalIdx {
			return p.reconstruct(nodes, goalIdx, point), expanded, nil
		}
		cur.closed = true
		expanded++
		if expanded > budget {
			return PathResult{}, expanded, ErrSearchLimit
		}

		at := point(item.idx)
		for _, d := range neighbours {
			next := core.GridPoint{X: at.X + d.X, Z: at.Z + d.Z}
			cell, ok := surface.At(next)
			if !ok || !cell.Passable() {
				continue
			}
			g := cur.g + p.weights.StepCost(cell, densityAt(density, next))
			ni := idx(next)
			n, seen := nodes[ni]
			if seen && g >= n.g {
				continue
			}
			if !seen {
				n = &node{}
				nodes[ni] = n
			}
			// Reopen closed nodes when a strictly cheaper route appears;
			// the Manhattan heuristic is not consistent under diagonal moves.
			n.g, n.parent, n.closed = g, item.idx, false
			heap.Push(open, &openItem{idx: ni, g: g, h: manhattan(next, goal)})
		}
	}
	return PathResult{}, expanded, ErrNoPath
}

func (p *Pathfinder) reconstruct(nodes map[int]*node, goalIdx int, point func(int) core.GridPoint) PathResult {
	var rev []core.GridPoint
	for i := goalIdx; i >= 0; i = nodes[i].parent {
		rev = append(rev, point(i))
	}
	waypoints := make([]core.GridPoint, len(rev))
	for i, pt := range rev {
		waypoints[len(rev)-1-i] = pt
	}
	return PathResult{
		Waypoints: waypoints,
		Cost:      nodes[goalIdx].g,
		Length:    len(waypoints) - 1,
	}
}

func manhattan(a, b core.GridPoint) float64 {
	return float64(abs(a.X-b.X) + abs(a.Z-b.Z))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type openItem struct {
	idx int
	g   float64
	h   float64
}

func (it *openItem) f() float64 { return it.g + it.h }

// openSet is a min-heap on f, breaking ties towards the smaller heuristic.
// Entries are never updated in place; improved routes push a new entry and
// the outdated one is skipped when popped.
type openSet []*openItem

func (s openSet) Len() int { return len(s) }

func (s openSet) Less(i, j int) bool {
	fi, fj := s[i].f(), s[j].f()
	if fi != fj {
		return fi < fj
	}
	return s[i].h < s[j].h
}

func (s openSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *openSet) Push(x any) { *s = append(*s, x.(*openItem)) }

func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*s = old[:n-1]
	return it
}
