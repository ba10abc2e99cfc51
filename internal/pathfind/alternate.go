package pathfind

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
)

// alternateRetryFactor bounds FindMultiplePaths to this many searches per
// requested route.
const alternateRetryFactor = 4

// FindMultiplePaths returns up to count distinct routes from start to goal.
// After each search every cell of the found route has its cost scaled by the
// alternate-cost multiplier on a private overlay, steering the next search
// elsewhere. surface is never modified. A repeated route is inflated again
// and retried; at most count*alternateRetryFactor searches run, so fewer
// than count routes come back only when the overlay stops yielding new ones.
//
// Costs are reported against the unmodified surface and the results are
// sorted by ascending cost. ErrNoPath is returned only when no route exists
// at all.
func (p *Pathfinder) FindMultiplePaths(ctx context.Context, start, goal core.GridPoint, surface core.Surface, density core.DensitySource, count int) ([]PathResult, error) {
	ctx, span := p.tracer.Start(ctx, "pathfind.FindMultiplePaths", trace.WithAttributes(
		attribute.Int("requested", count),
	))
	defer span.End()

	if count <= 0 {
		return nil, nil
	}

	overlay := core.NewOverlay(surface)
	var out []PathResult
	searches := 0
	for attempt := 0; attempt < count*alternateRetryFactor && len(out) < count; attempt++ {
		searches++
		res, err := p.FindPath(ctx, start, goal, overlay, density)
		if err != nil {
			if errors.Is(err, ErrNoPath) {
				break
			}
			return nil, err
		}
		for _, wp := range res.Waypoints {
			overlay.ScaleCost(wp, p.alternateMultiplier)
		}
		if containsPath(out, res) {
			continue
		}
		res.Cost = p.PathCost(res.Waypoints, surface, density)
		out = append(out, res)
	}
	span.SetAttributes(
		attribute.Int("found", len(out)),
		attribute.Int("searches", searches),
		attribute.Int("overlay_cells", overlay.Touched()),
	)

	if len(out) == 0 {
		return nil, ErrNoPath
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out, nil
}

// ReplanWithCrowdFeedback reruns FindPath after multiplying the cost of every
// cell whose density exceeds threshold by the density multiplier. The
// inflation lives on a private overlay; surface is left untouched.
func (p *Pathfinder) ReplanWithCrowdFeedback(ctx context.Context, start, goal core.GridPoint, surface core.Surface, crowd CrowdView, threshold float64) (PathResult, error) {
	if crowd == nil {
		return p.FindPath(ctx, start, goal, surface, nil)
	}
	crowded := crowd.CellsAbove(threshold)
	if len(crowded) == 0 {
		return p.FindPath(ctx, start, goal, surface, crowd)
	}

	overlay := core.NewOverlay(surface)
	for _, pt := range crowded {
		overlay.ScaleCost(pt, p.weights.DensityMultiplier)
	}
	p.log.Debug(ctx, "replanning around congestion",
		logging.String("start", start.String()),
		logging.Int("crowded_cells", overlay.Touched()),
		logging.Float("threshold", threshold),
	)
	return p.FindPath(ctx, start, goal, overlay, crowd)
}

func containsPath(results []PathResult, r PathResult) bool {
	for _, prev := range results {
		if prev.Equal(r) {
			return true
		}
	}
	return false
}
