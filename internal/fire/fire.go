// Package fire models hazard sources whose radius grows monotonically and
// turns the grid cells they cover into impassable risk cells.
package fire

import (
	"context"
	"math"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

// MaxIntensity is the upper bound of FireSource.Intensity.
const MaxIntensity = 100.0

// Model holds the active fire sources. Every source is in a single
// "active, growing" state: radius grows by GrowthRate each tick up to
// MaxRadius and never shrinks.
type Model struct {
	growthRate float64
	maxRadius  float64
	sources    []model.FireSource
	log        logging.Logger
}

// Option customises Model construction.
type Option func(*Model)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Model) {
		m.log = l
	}
}

// NewModel constructs a fire model with the given growth per tick and
// radius cap, seeded with the provided sources.
func NewModel(growthRate, maxRadius float64, sources []model.FireSource, opts ...Option) *Model {
	m := &Model{
		growthRate: math.Max(0, growthRate),
		maxRadius:  math.Max(0, maxRadius),
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = logging.OrNoop(m.log)
	for _, src := range sources {
		m.sources = append(m.sources, m.normalise(src))
	}
	return m
}

// Ignite adds a new hazard source. Its cells are marked on the next Advance
// or Apply.
func (m *Model) Ignite(ctx context.Context, src model.FireSource) {
	src = m.normalise(src)
	m.sources = append(m.sources, src)
	m.log.Info(ctx, "fire ignited",
		logging.String("id", src.ID),
		logging.Float("x", src.Position.X),
		logging.Float("z", src.Position.Z),
		logging.Float("radius", src.Radius),
		logging.Float("intensity", src.Intensity),
	)
}

// Len returns the number of active sources.
func (m *Model) Len() int {
	return len(m.sources)
}

// Sources returns a snapshot copy of the active sources.
func (m *Model) Sources() []model.FireSource {
	out := make([]model.FireSource, len(m.sources))
	copy(out, m.sources)
	return out
}

// Advance grows every source by the growth rate (capped at the maximum
// radius) and then marks the covered cells on grid. It returns the number of
// cells that became risk cells during this call.
func (m *Model) Advance(ctx context.Context, grid *core.Grid) int {
	for i := range m.sources {
		m.sources[i].Radius = math.Min(m.sources[i].Radius+m.growthRate, m.maxRadius)
	}
	marked := m.Apply(grid)
	if marked > 0 {
		m.log.Debug(ctx, "fire spread", logging.Int("new_risk_cells", marked), logging.Int("sources", len(m.sources)))
	}
	return marked
}

// Apply marks every cell within a source's radius as risk with infinite
// cost. Marking is idempotent and never cleared. It returns the number of
// newly marked cells.
func (m *Model) Apply(grid *core.Grid) int {
	if grid == nil {
		return 0
	}
	marked := 0
	size := grid.Size()
	for _, src := range m.sources {
		cx, cz, r := src.Position.X, src.Position.Z, src.Radius
		minX := clamp(int(math.Floor(cx-r)), 0, size-1)
		maxX := clamp(int(math.Ceil(cx+r)), 0, size-1)
		minZ := clamp(int(math.Floor(cz-r)), 0, size-1)
		maxZ := clamp(int(math.Ceil(cz+r)), 0, size-1)
		if cx+r < 0 || cz+r < 0 || cx-r > float64(size-1) || cz-r > float64(size-1) {
			continue
		}
		for x := minX; x <= maxX; x++ {
			for z := minZ; z <= maxZ; z++ {
				if math.Hypot(float64(x)-cx, float64(z)-cz) > r {
					continue
				}
				cell, err := grid.CellAt(x, z)
				if err != nil || cell.Risk {
					continue
				}
				_ = grid.SetRisk(x, z, true)
				_ = grid.SetCost(x, z, math.Inf(1))
				marked++
			}
		}
	}
	return marked
}

// Contains reports whether pos lies strictly inside any source's radius.
// This is the agent replan trigger; it can disagree with the grid's risk
// flags at a fire's boundary.
func (m *Model) Contains(pos core.Vec2) bool {
	for _, src := range m.sources {
		if pos.DistanceTo(core.FromPosition(src.Position)) < src.Radius {
			return true
		}
	}
	return false
}

func (m *Model) normalise(src model.FireSource) model.FireSource {
	src.Radius = math.Min(math.Max(0, src.Radius), m.maxRadius)
	src.Intensity = math.Min(math.Max(0, src.Intensity), MaxIntensity)
	return src
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
