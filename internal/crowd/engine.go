// Package crowd owns the evacuee population: spawning, per-tick movement,
// arrival removal, replanning and the density/flow aggregation fed back into
// route costs.
package crowd

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/logging"
	"github.com/signalsfoundry/evacuation-simulator/internal/pathfind"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

// Replan reasons reported to MetricsRecorder.
const (
	ReasonFire      = "fire"
	ReasonOvercrowd = "overcrowd"
	ReasonRetry     = "retry"

	reasonSpawn = "spawn"
)

const spawnAttempts = 8

// ErrPopulationFull is returned by SpawnAt when MaxAgents agents are active.
var ErrPopulationFull = errors.New("crowd: population at capacity")

// Settings are the tuning values the engine reads every tick.
type Settings struct {
	GridSize             int
	MaxAgents            int
	AgentSpeed           float64
	ImpairedSpeedFactor  float64
	ImpairedProbability  float64
	SpawnProbability     float64
	ArrivalEpsilon       float64
	DestinationTolerance float64
	OvercrowdThreshold   float64
	PathRetryTicks       uint64
	TickInterval         time.Duration
}

// Planner computes routes for agents. *pathfind.Pathfinder implements it.
type Planner interface {
	FindPath(ctx context.Context, start, goal core.GridPoint, surface core.Surface, density core.DensitySource) (pathfind.PathResult, error)
	ReplanWithCrowdFeedback(ctx context.Context, start, goal core.GridPoint, surface core.Surface, crowd pathfind.CrowdView, threshold float64) (pathfind.PathResult, error)
}

// Hazard reports whether a position lies inside an active fire.
// *fire.Model implements it.
type Hazard interface {
	Contains(pos core.Vec2) bool
}

// MetricsRecorder receives population events.
type MetricsRecorder interface {
	RecordSpawn(class model.AgentClass)
	RecordEvacuation(class model.AgentClass)
	RecordReplan(reason string)
	RecordPathFailure()
}

// Evacuation describes one agent leaving the building.
type Evacuation struct {
	AgentID     uuid.UUID
	Class       model.AgentClass
	Destination string
	Tick        uint64
	SpawnedAt   uint64
}

// StepReport summarises what happened in one Step.
type StepReport struct {
	Tick        uint64
	Spawned     int
	Evacuations []Evacuation
	Replans     int
	Failures    int
	Active      int
}

// Statistics is the aggregate population view.
type Statistics struct {
	Active    int
	Evacuated int
	// EvacuatedEstimate is MaxAgents minus Active, kept for displays that
	// expect the capacity-based figure.
	EvacuatedEstimate int
	Spawned           int
	Replans           int
	PathFailures      int
	MeanDensity       float64
	PeakDensity       float64
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetricsRecorder attaches an optional metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithEvacuationPoints seeds the destination list.
func WithEvacuationPoints(points []model.EvacuationPoint) Option {
	return func(e *Engine) {
		e.points = append([]model.EvacuationPoint(nil), points...)
	}
}

// Engine is the agent population. It is not safe for concurrent use; the
// simulation clock drives it from a single goroutine.
type Engine struct {
	settings Settings
	planner  Planner
	rng      *rand.Rand
	log      logging.Logger
	metrics  MetricsRecorder

	points  []model.EvacuationPoint
	agents  []*Agent
	density *core.DensityMap
	tick    uint64

	evacuated    int
	spawned      int
	replans      int
	pathFailures int
}

// NewEngine builds an empty population. rng drives spawning, agent classes
// and agent identifiers; pass a seeded source for reproducible runs.
func NewEngine(settings Settings, planner Planner, rng *rand.Rand, opts ...Option) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	e := &Engine{
		settings: settings,
		planner:  planner,
		rng:      rng,
		log:      logging.Noop(),
		density:  core.NewDensityMap(settings.GridSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.log = logging.OrNoop(e.log)
	return e
}

// SetEvacuationPoints replaces the destination list. Pathless agents pick
// the new points up on their next retry.
func (e *Engine) SetEvacuationPoints(points []model.EvacuationPoint) {
	e.points = append([]model.EvacuationPoint(nil), points...)
	for _, a := range e.agents {
		if !a.HasPath() {
			a.retryAt = e.tick
		}
	}
}

// EvacuationPoints returns a copy of the destination list.
func (e *Engine) EvacuationPoints() []model.EvacuationPoint {
	return append([]model.EvacuationPoint(nil), e.points...)
}

// Tick returns the number of completed Steps.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// Len returns the active population size.
func (e *Engine) Len() int {
	return len(e.agents)
}

// Agents returns copies of every active agent.
func (e *Engine) Agents() []Agent {
	out := make([]Agent, len(e.agents))
	for i, a := range e.agents {
		out[i] = a.clone()
	}
	return out
}

// Agent looks an agent up by id.
func (e *Engine) Agent(id uuid.UUID) (Agent, bool) {
	for _, a := range e.agents {
		if a.ID == id {
			return a.clone(), true
		}
	}
	return Agent{}, false
}

// Density returns the density/flow map built by the last Step. Callers must
// treat it as read-only.
func (e *Engine) Density() *core.DensityMap {
	return e.density
}

// Statistics returns the current aggregates.
func (e *Engine) Statistics() Statistics {
	return Statistics{
		Active:            len(e.agents),
		Evacuated:         e.evacuated,
		EvacuatedEstimate: max(0, e.settings.MaxAgents-len(e.agents)),
		Spawned:           e.spawned,
		Replans:           e.replans,
		PathFailures:      e.pathFailures,
		MeanDensity:       e.density.Mean(),
		PeakDensity:       e.density.Max(),
	}
}

// SpawnAt places an agent at pos and plans its initial route. It fails only
// when pos is outside the grid or the population is full.
func (e *Engine) SpawnAt(ctx context.Context, surface core.Surface, pos core.Vec2, class model.AgentClass) (uuid.UUID, error) {
	if len(e.agents) >= e.settings.MaxAgents {
		return uuid.Nil, ErrPopulationFull
	}
	if !inGrid(e.settings.GridSize, pos) {
		return uuid.Nil, core.ErrOutOfBounds
	}
	a := e.newAgent(pos, class)
	e.agents = append(e.agents, a)
	e.plan(ctx, a, surface, reasonSpawn)
	e.rebuildDensity()
	return a.ID, nil
}

// Step advances the population by one tick over surface, replanning agents
// that stand inside hazard. It never fails: routing problems leave agents on
// their previous path and are counted in the report.
func (e *Engine) Step(ctx context.Context, surface core.Surface, hazard Hazard) StepReport {
	e.tick++
	ctx = logging.ContextWithTick(ctx, e.tick)
	report := StepReport{Tick: e.tick}
	replansBefore, failuresBefore := e.replans, e.pathFailures

	dt := e.settings.TickInterval.Seconds()
	kept := e.agents[:0]
	for _, a := range e.agents {
		a.move(dt, e.settings.ArrivalEpsilon)

		if a.HasPath() && a.DistanceToGoal() < e.settings.DestinationTolerance {
			report.Evacuations = append(report.Evacuations, e.evacuate(ctx, a))
			continue
		}

		switch {
		case hazard != nil && hazard.Contains(a.Position):
			e.plan(ctx, a, surface, ReasonFire)
		case !a.HasPath() && e.tick >= a.retryAt:
			e.plan(ctx, a, surface, ReasonRetry)
		}
		kept = append(kept, a)
	}
	clear(e.agents[len(kept):])
	e.agents = kept

	if len(e.agents) < e.settings.MaxAgents && e.rng.Float64() < e.settings.SpawnProbability {
		if e.spawnRandom(ctx, surface) {
			report.Spawned++
		}
	}

	e.rebuildDensity()
	e.relieveCongestion(ctx, surface)

	report.Replans = e.replans - replansBefore
	report.Failures = e.pathFailures - failuresBefore
	report.Active = len(e.agents)
	e.log.Debug(ctx, "crowd step",
		logging.Int("active", report.Active),
		logging.Int("spawned", report.Spawned),
		logging.Int("evacuated", len(report.Evacuations)),
		logging.Int("replans", report.Replans),
	)
	return report
}

func (e *Engine) evacuate(ctx context.Context, a *Agent) Evacuation {
	e.evacuated++
	if e.metrics != nil {
		e.metrics.RecordEvacuation(a.Class)
	}
	e.log.Debug(ctx, "agent evacuated",
		logging.String("agent_id", a.ID.String()),
		logging.String("destination", a.Destination),
	)
	return Evacuation{
		AgentID:     a.ID,
		Class:       a.Class,
		Destination: a.Destination,
		Tick:        e.tick,
		SpawnedAt:   a.SpawnedAt,
	}
}

// rebuildDensity recomputes the density/flow map from agent positions.
func (e *Engine) rebuildDensity() {
	e.density.Reset()
	for _, a := range e.agents {
		e.density.Add(a.Position.Cell(), a.ID, e.flowOf(a))
	}
	e.density.Normalize()
}

// relieveCongestion replans every occupant of a cell above the overcrowding
// threshold, steering them around the congested cells.
func (e *Engine) relieveCongestion(ctx context.Context, surface core.Surface) {
	crowded := e.density.CellsAbove(e.settings.OvercrowdThreshold)
	if len(crowded) == 0 {
		return
	}
	byID := make(map[uuid.UUID]*Agent, len(e.agents))
	for _, a := range e.agents {
		byID[a.ID] = a
	}
	for _, p := range crowded {
		cell, _ := e.density.Cell(p)
		for _, id := range cell.Occupants {
			if a, ok := byID[id]; ok {
				e.plan(ctx, a, surface, ReasonOvercrowd)
			}
		}
	}
}

func (e *Engine) flowOf(a *Agent) core.Vec2 {
	target, ok := a.Target()
	if !ok {
		return core.Vec2{}
	}
	return target.Vec().Sub(a.Position)
}

func (e *Engine) spawnRandom(ctx context.Context, surface core.Surface) bool {
	size := float64(e.settings.GridSize)
	for i := 0; i < spawnAttempts; i++ {
		pos := core.Vec2{X: e.rng.Float64() * size, Z: e.rng.Float64() * size}
		if c, ok := surface.At(pos.Cell()); !ok || !c.Passable() {
			continue
		}
		class := model.AgentNormal
		if e.rng.Float64() < e.settings.ImpairedProbability {
			class = model.AgentMobilityImpaired
		}
		a := e.newAgent(pos, class)
		e.agents = append(e.agents, a)
		e.plan(ctx, a, surface, reasonSpawn)
		return true
	}
	e.log.Debug(ctx, "spawn skipped: no walkable cell drawn", logging.Int("attempts", spawnAttempts))
	return false
}

func (e *Engine) newAgent(pos core.Vec2, class model.AgentClass) *Agent {
	id, err := uuid.NewRandomFromReader(e.rng)
	if err != nil {
		id = uuid.New()
	}
	speed := e.settings.AgentSpeed
	if class == model.AgentMobilityImpaired && e.settings.ImpairedSpeedFactor > 0 {
		speed *= e.settings.ImpairedSpeedFactor
	}
	e.spawned++
	if e.metrics != nil {
		e.metrics.RecordSpawn(class)
	}
	return &Agent{
		ID:        id,
		Class:     class,
		Position:  pos,
		Speed:     speed,
		SpawnedAt: e.tick,
	}
}

// plan routes a to its nearest usable evacuation point. On failure the agent
// keeps its current path and, if it has none, retries after PathRetryTicks.
func (e *Engine) plan(ctx context.Context, a *Agent, surface core.Surface, reason string) {
	point, ok := e.nearestPoint(a.Position, surface)
	if !ok {
		e.fail(a)
		return
	}
	start := a.Position.Cell()
	goal := core.FromPosition(point.Position).Cell()

	var (
		res pathfind.PathResult
		err error
	)
	if e.planner == nil {
		err = pathfind.ErrNoPath
	} else if reason == ReasonOvercrowd {
		res, err = e.planner.ReplanWithCrowdFeedback(ctx, start, goal, surface, e.density, e.settings.OvercrowdThreshold)
	} else {
		res, err = e.planner.FindPath(ctx, start, goal, surface, e.density)
	}
	if err != nil {
		if !errors.Is(err, pathfind.ErrNoPath) {
			e.log.Warn(ctx, "route planning failed",
				logging.String("agent_id", a.ID.String()),
				logging.Err(err),
			)
		}
		e.fail(a)
		return
	}

	a.assign(res.Waypoints, point.Label, e.tick)
	if reason != reasonSpawn {
		a.Replans++
		e.replans++
		if e.metrics != nil {
			e.metrics.RecordReplan(reason)
		}
	}
}

func (e *Engine) fail(a *Agent) {
	a.Failures++
	e.pathFailures++
	if e.metrics != nil {
		e.metrics.RecordPathFailure()
	}
	if !a.HasPath() {
		a.retryAt = e.tick + max(1, e.settings.PathRetryTicks)
	}
}

// nearestPoint picks the evacuation point closest to pos by straight-line
// distance, first-seen winning ties. Points whose cell is impassable or off
// the grid are skipped.
func (e *Engine) nearestPoint(pos core.Vec2, surface core.Surface) (model.EvacuationPoint, bool) {
	var (
		best  model.EvacuationPoint
		found bool
		dist  = math.Inf(1)
	)
	for _, p := range e.points {
		v := core.FromPosition(p.Position)
		if c, ok := surface.At(v.Cell()); !ok || !c.Passable() {
			continue
		}
		if d := pos.DistanceTo(v); d < dist {
			best, dist, found = p, d, true
		}
	}
	return best, found
}

func inGrid(size int, pos core.Vec2) bool {
	s := float64(size)
	return pos.X >= 0 && pos.Z >= 0 && pos.X < s && pos.Z < s
}
