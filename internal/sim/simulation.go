// Package sim orchestrates one evacuation run: each tick grows the fires and
// marks the grid, then advances the crowd, which replans through the
// pathfinder. Presentation snapshots are pushed to registered sinks on a
// separate, slower cadence.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/crowd"
	"github.com/signalsfoundry/evacuation-simulator/internal/fire"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
	"github.com/signalsfoundry/evacuation-simulator/internal/pathfind"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

const tracerName = "github.com/signalsfoundry/evacuation-simulator/internal/sim"

// MetricsRecorder receives per-tick measurements. A recorder that also
// implements crowd.MetricsRecorder or pathfind.MetricsRecorder is wired
// into those components as well.
type MetricsRecorder interface {
	ObserveTick(d time.Duration)
	SetPopulation(active, fireSources, riskCells int, meanDensity, peakDensity float64)
}

// PresentationSink consumes snapshots on the presentation cadence.
type PresentationSink interface {
	Present(ctx context.Context, snap Snapshot) error
}

// EvacuationSink is told about every agent that leaves the building.
type EvacuationSink interface {
	RecordEvacuations(ctx context.Context, events []crowd.Evacuation) error
}

// Option customises Simulation construction.
type Option func(*Simulation)

// WithLogger attaches a structured logger shared by every component.
func WithLogger(l logging.Logger) Option {
	return func(s *Simulation) {
		s.log = l
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Simulation) {
		s.metrics = m
	}
}

// WithPresentationSink registers a snapshot consumer.
func WithPresentationSink(sink PresentationSink) Option {
	return func(s *Simulation) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithEvacuationSink registers an evacuation-event consumer.
func WithEvacuationSink(sink EvacuationSink) Option {
	return func(s *Simulation) {
		if sink != nil {
			s.evacSinks = append(s.evacSinks, sink)
		}
	}
}

// Simulation owns the grid, fire model, pathfinder and crowd of one run.
// It is driven from a single goroutine and is not safe for concurrent use.
type Simulation struct {
	cfg     Config
	grid    *core.Grid
	fire    *fire.Model
	planner *pathfind.Pathfinder
	crowd   *crowd.Engine

	log       logging.Logger
	metrics   MetricsRecorder
	tracer    trace.Tracer
	sinks     []PresentationSink
	evacSinks []EvacuationSink

	tick    uint64
	elapsed time.Duration
}

// New validates cfg and assembles a run over grid. grid must be
// cfg.GridSize square; it becomes owned by the simulation.
func New(cfg Config, grid *core.Grid, fires []model.FireSource, points []model.EvacuationPoint, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if grid == nil || grid.Size() != cfg.GridSize {
		return nil, fmt.Errorf("%w: grid does not match grid size %d", ErrInvalidConfig, cfg.GridSize)
	}

	s := &Simulation{
		cfg:    cfg,
		grid:   grid,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = logging.OrNoop(s.log)

	pfOpts := []pathfind.Option{
		pathfind.WithWeights(cfg.Weights),
		pathfind.WithMaxExpansions(cfg.MaxExpansions),
		pathfind.WithAlternateCostMultiplier(cfg.AlternateCostMultiplier),
		pathfind.WithLogger(s.log),
	}
	crowdOpts := []crowd.Option{
		crowd.WithLogger(s.log),
		crowd.WithEvacuationPoints(points),
	}
	if pm, ok := s.metrics.(pathfind.MetricsRecorder); ok {
		pfOpts = append(pfOpts, pathfind.WithMetricsRecorder(pm))
	}
	if cm, ok := s.metrics.(crowd.MetricsRecorder); ok {
		crowdOpts = append(crowdOpts, crowd.WithMetricsRecorder(cm))
	}

	s.fire = fire.NewModel(cfg.FireGrowthRate, cfg.FireMaxRadius, fires, fire.WithLogger(s.log))
	s.fire.Apply(grid)
	s.planner = pathfind.New(pfOpts...)
	s.crowd = crowd.NewEngine(cfg.crowdSettings(), s.planner, rand.New(rand.NewSource(cfg.Seed)), crowdOpts...)
	return s, nil
}

// Config returns the run configuration.
func (s *Simulation) Config() Config {
	return s.cfg
}

// Surface exposes the grid read-only.
func (s *Simulation) Surface() core.Surface {
	return s.grid
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() uint64 {
	return s.tick
}

// Agents returns copies of the active agents.
func (s *Simulation) Agents() []crowd.Agent {
	return s.crowd.Agents()
}

// Fires returns copies of the active fire sources.
func (s *Simulation) Fires() []model.FireSource {
	return s.fire.Sources()
}

// InsideFire reports whether pos is strictly within any fire radius.
func (s *Simulation) InsideFire(pos core.Vec2) bool {
	return s.fire.Contains(pos)
}

// Step runs one simulation tick: fire growth and marking, then the crowd
// protocol. Routing failures are absorbed; Step never fails.
func (s *Simulation) Step(ctx context.Context) crowd.StepReport {
	began := time.Now()
	s.tick++
	s.elapsed += s.cfg.TickInterval
	ctx = logging.ContextWithTick(ctx, s.tick)
	ctx, span := s.tracer.Start(ctx, "sim.Tick", trace.WithAttributes(attribute.Int64("tick", int64(s.tick))))
	defer span.End()

	marked := s.fire.Advance(ctx, s.grid)
	report := s.crowd.Step(ctx, s.grid, s.fire)

	span.SetAttributes(
		attribute.Int("risk_cells_marked", marked),
		attribute.Int("active", report.Active),
		attribute.Int("evacuated", len(report.Evacuations)),
		attribute.Int("replans", report.Replans),
	)

	if len(report.Evacuations) > 0 {
		for _, sink := range s.evacSinks {
			if err := sink.RecordEvacuations(ctx, report.Evacuations); err != nil {
				s.log.Warn(ctx, "evacuation sink failed", logging.Err(err))
			}
		}
	}
	if s.metrics != nil {
		stats := s.crowd.Statistics()
		s.metrics.SetPopulation(stats.Active, s.fire.Len(), s.grid.RiskCount(), stats.MeanDensity, stats.PeakDensity)
		s.metrics.ObserveTick(time.Since(began))
	}
	return report
}

// Present builds a snapshot and pushes it to every sink. Sink failures are
// logged and otherwise ignored.
func (s *Simulation) Present(ctx context.Context) Snapshot {
	ctx = logging.ContextWithTick(ctx, s.tick)
	snap := s.Snapshot()
	for _, sink := range s.sinks {
		if err := sink.Present(ctx, snap); err != nil {
			s.log.Warn(ctx, "presentation sink failed", logging.Err(err))
		}
	}
	s.log.Info(ctx, "presentation",
		logging.Int("agents", snap.Stats.Agents),
		logging.Int("evacuated", snap.Stats.Evacuated),
		logging.Float("average_density", snap.Stats.AverageDensity),
		logging.Int("fire_sources", snap.Stats.FireSources),
	)
	return snap
}

// Statistics returns the aggregate record for displays.
func (s *Simulation) Statistics() Statistics {
	cs := s.crowd.Statistics()
	return Statistics{
		Tick:              s.tick,
		Elapsed:           s.elapsed,
		Agents:            cs.Active,
		Evacuated:         cs.Evacuated,
		EvacuatedEstimate: cs.EvacuatedEstimate,
		Spawned:           cs.Spawned,
		Replans:           cs.Replans,
		PathFailures:      cs.PathFailures,
		AverageDensity:    cs.MeanDensity,
		PeakDensity:       cs.PeakDensity,
		FireSources:       s.fire.Len(),
		RiskCells:         s.grid.RiskCount(),
	}
}

// Snapshot captures the state exposed to the visualization layer.
func (s *Simulation) Snapshot() Snapshot {
	agents := s.crowd.Agents()
	routes := make([]Route, 0, len(agents))
	for _, a := range agents {
		if !a.HasPath() {
			continue
		}
		routes = append(routes, Route{
			AgentID:     a.ID,
			Class:       a.Class,
			Destination: a.Destination,
			Waypoints:   a.Path[a.PathIndex:],
		})
	}
	return Snapshot{
		Tick:             s.tick,
		Elapsed:          s.elapsed,
		Density:          s.crowd.Density().Cells(),
		Fires:            s.fire.Sources(),
		EvacuationPoints: s.crowd.EvacuationPoints(),
		Routes:           routes,
		Stats:            s.Statistics(),
	}
}

// Ignite adds a fire source and marks its cells immediately.
func (s *Simulation) Ignite(ctx context.Context, src model.FireSource) {
	s.fire.Ignite(ctx, src)
	s.fire.Apply(s.grid)
}

// SetEvacuationPoints replaces the destinations used for new routes.
func (s *Simulation) SetEvacuationPoints(points []model.EvacuationPoint) {
	s.crowd.SetEvacuationPoints(points)
}

// SpawnAt places an agent at pos.
func (s *Simulation) SpawnAt(ctx context.Context, pos core.Vec2, class model.AgentClass) (uuid.UUID, error) {
	return s.crowd.SpawnAt(ctx, s.grid, pos, class)
}

// AlternativeRoutes ranks up to count distinct routes from from to the
// nearest usable evacuation point, for display.
func (s *Simulation) AlternativeRoutes(ctx context.Context, from core.GridPoint, count int) ([]pathfind.PathResult, error) {
	goal, ok := s.nearestExit(from.Vec())
	if !ok {
		return nil, pathfind.ErrNoPath
	}
	return s.planner.FindMultiplePaths(ctx, from, goal, s.grid, s.crowd.Density(), count)
}

func (s *Simulation) nearestExit(pos core.Vec2) (core.GridPoint, bool) {
	var (
		best  core.GridPoint
		found bool
		dist  float64
	)
	for _, p := range s.crowd.EvacuationPoints() {
		v := core.FromPosition(p.Position)
		if c, ok := s.grid.At(v.Cell()); !ok || !c.Passable() {
			continue
		}
		if d := pos.DistanceTo(v); !found || d < dist {
			best, dist, found = v.Cell(), d, true
		}
	}
	return best, found
}
