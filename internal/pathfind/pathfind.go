// Package pathfind implements crowd- and hazard-aware A* route search over a
// core.Surface.
//
// A Pathfinder holds only configuration. Every search allocates its own
// open set and score table sized to the cells it touches, so concurrent or
// back-to-back calls never share scratch state.
package pathfind

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
)

const tracerName = "github.com/signalsfoundry/evacuation-simulator/internal/pathfind"

var (
	// ErrNoPath reports that the open set emptied before the goal was
	// reached. Callers treat it as "no feasible route", not as a failure of
	// the simulation.
	ErrNoPath = errors.New("pathfind: no path")

	// ErrSearchLimit is returned when a search exceeds its expansion budget.
	// It wraps ErrNoPath.
	ErrSearchLimit = fmt.Errorf("%w: expansion limit reached", ErrNoPath)
)

// Search outcomes reported to MetricsRecorder.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeLimit    = "limit"
)

// Weights tune the edge cost function:
//
//	cost(u→v) = base(v) + DensityMultiplier·(density(v)/MaxDensity)² + [risk(v)]·RiskMultiplier
type Weights struct {
	BaseCost          float64
	DensityMultiplier float64
	RiskMultiplier    float64
	MaxDensity        float64
}

// DefaultWeights returns the stock cost weights.
func DefaultWeights() Weights {
	return Weights{
		BaseCost:          1.0,
		DensityMultiplier: 2.0,
		RiskMultiplier:    10.0,
		MaxDensity:        100.0,
	}
}

// StepCost returns the cost of entering c when density agents occupy it.
func (w Weights) StepCost(c core.Cell, density float64) float64 {
	cost := c.BaseCost
	if density > 0 && w.MaxDensity > 0 {
		r := density / w.MaxDensity
		cost += w.DensityMultiplier * r * r
	}
	if c.Risk {
		cost += w.RiskMultiplier
	}
	return cost
}

// PathResult is a route from start to goal inclusive.
type PathResult struct {
	Waypoints []core.GridPoint
	// Cost is the sum of step costs over every waypoint after the start.
	Cost float64
	// Length is the number of steps, len(Waypoints)-1.
	Length int
}

// Goal returns the final waypoint. ok is false for an empty result.
func (r PathResult) Goal() (core.GridPoint, bool) {
	if len(r.Waypoints) == 0 {
		return core.GridPoint{}, false
	}
	return r.Waypoints[len(r.Waypoints)-1], true
}

// Equal reports whether both results visit the same waypoints in order.
func (r PathResult) Equal(o PathResult) bool {
	if len(r.Waypoints) != len(o.Waypoints) {
		return false
	}
	for i := range r.Waypoints {
		if r.Waypoints[i] != o.Waypoints[i] {
			return false
		}
	}
	return true
}

// CrowdView is a density source that can also list congested cells.
type CrowdView interface {
	core.DensitySource
	CellsAbove(threshold float64) []core.GridPoint
}

// MetricsRecorder receives per-search measurements.
type MetricsRecorder interface {
	ObservePathComputation(d time.Duration, expanded int, outcome string)
}

// Option customises Pathfinder construction.
type Option func(*Pathfinder)

// WithWeights overrides the cost weights.
func WithWeights(w Weights) Option {
	return func(p *Pathfinder) {
		p.weights = w
	}
}

// WithMaxExpansions bounds the number of node expansions per search.
// Zero or negative selects four times the surface's cell count.
func WithMaxExpansions(n int) Option {
	return func(p *Pathfinder) {
		p.maxExpansions = n
	}
}

// WithAlternateCostMultiplier sets the factor applied to cells of each path
// found by FindMultiplePaths before the next search.
func WithAlternateCostMultiplier(m float64) Option {
	return func(p *Pathfinder) {
		if m > 1 {
			p.alternateMultiplier = m
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pathfinder) {
		p.log = l
	}
}

// WithMetricsRecorder attaches an optional metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(p *Pathfinder) {
		p.metrics = m
	}
}

// Pathfinder computes routes. It is safe for concurrent use.
type Pathfinder struct {
	weights             Weights
	maxExpansions       int
	alternateMultiplier float64
	log                 logging.Logger
	metrics             MetricsRecorder
	tracer              trace.Tracer
}

// New builds a Pathfinder with DefaultWeights.
func New(opts ...Option) *Pathfinder {
	p := &Pathfinder{
		weights:             DefaultWeights(),
		alternateMultiplier: 2.0,
		log:                 logging.Noop(),
		tracer:              otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.log = logging.OrNoop(p.log)
	return p
}

// Weights returns the configured cost weights.
func (p *Pathfinder) Weights() Weights {
	return p.weights
}

// PathCost sums StepCost over every waypoint after the first. It returns +Inf
// if any waypoint is outside surface or impassable.
func (p *Pathfinder) PathCost(waypoints []core.GridPoint, surface core.Surface, density core.DensitySource) float64 {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		c, ok := surface.At(waypoints[i])
		if !ok || !c.Passable() {
			return posInf
		}
		total += p.weights.StepCost(c, densityAt(density, waypoints[i]))
	}
	return total
}

func (p *Pathfinder) expansionBudget(size int) int {
	if p.maxExpansions > 0 {
		return p.maxExpansions
	}
	return 4 * size * size
}

func (p *Pathfinder) observe(start time.Time, expanded int, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObservePathComputation(time.Since(start), expanded, outcome)
}

func densityAt(d core.DensitySource, pt core.GridPoint) float64 {
	if d == nil {
		return 0
	}
	return d.DensityAt(pt)
}
