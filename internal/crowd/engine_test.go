package crowd

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/internal/pathfind"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

type hazardFunc func(core.Vec2) bool

func (f hazardFunc) Contains(p core.Vec2) bool { return f(p) }

type countingRecorder struct {
	spawns, evacuations, failures int
	replans                       map[string]int
}

func (r *countingRecorder) RecordSpawn(model.AgentClass)      { r.spawns++ }
func (r *countingRecorder) RecordEvacuation(model.AgentClass) { r.evacuations++ }
func (r *countingRecorder) RecordReplan(reason string)        { r.replans[reason]++ }
func (r *countingRecorder) RecordPathFailure()                { r.failures++ }

func testSettings(size int) Settings {
	return Settings{
		GridSize:             size,
		MaxAgents:            500,
		AgentSpeed:           1.0,
		ImpairedSpeedFactor:  0.5,
		ImpairedProbability:  0.1,
		SpawnProbability:     0,
		ArrivalEpsilon:       0.1,
		DestinationTolerance: 0.5,
		OvercrowdThreshold:   20,
		PathRetryTicks:       10,
		TickInterval:         100 * time.Millisecond,
	}
}

func newTestGrid(t *testing.T, size int) *core.Grid {
	t.Helper()
	g, err := core.NewGrid(size, 1)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func point(x, z float64, label string) model.EvacuationPoint {
	return model.EvacuationPoint{Position: model.Position{X: x, Z: z}, Label: label}
}

func TestAgentAtGoalIsEvacuatedOnFirstTick(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 20)
	rec := &countingRecorder{replans: map[string]int{}}
	e := NewEngine(testSettings(20), pathfind.New(), rand.New(rand.NewSource(1)),
		WithEvacuationPoints([]model.EvacuationPoint{point(10, 10, "A")}),
		WithMetricsRecorder(rec),
	)

	id, err := e.SpawnAt(ctx, grid, core.Vec2{X: 10, Z: 10}, model.AgentNormal)
	if err != nil {
		t.Fatalf("SpawnAt: %v", err)
	}
	if got := e.Density().Total(); got != 1 {
		t.Fatalf("density total after spawn = %v, want 1", got)
	}

	report := e.Step(ctx, grid, nil)
	if e.Len() != 0 {
		t.Fatalf("active agents = %d, want 0", e.Len())
	}
	if len(report.Evacuations) != 1 || report.Evacuations[0].AgentID != id {
		t.Fatalf("report evacuations = %+v, want agent %s", report.Evacuations, id)
	}
	if report.Evacuations[0].Destination != "A" {
		t.Fatalf("destination = %q, want A", report.Evacuations[0].Destination)
	}
	stats := e.Statistics()
	if stats.Evacuated != 1 {
		t.Fatalf("evacuated = %d, want 1", stats.Evacuated)
	}
	if stats.EvacuatedEstimate != 500 {
		t.Fatalf("evacuated estimate = %d, want 500", stats.EvacuatedEstimate)
	}
	if rec.evacuations != 1 || rec.spawns != 1 {
		t.Fatalf("recorder spawns=%d evacuations=%d, want 1/1", rec.spawns, rec.evacuations)
	}
}

func TestAgentWalksToExit(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 10)
	e := NewEngine(testSettings(10), pathfind.New(), rand.New(rand.NewSource(1)),
		WithEvacuationPoints([]model.EvacuationPoint{point(6, 2, "east")}),
	)
	if _, err := e.SpawnAt(ctx, grid, core.Vec2{X: 2, Z: 2}, model.AgentNormal); err != nil {
		t.Fatalf("SpawnAt: %v", err)
	}

	e.Step(ctx, grid, nil)
	a := e.Agents()[0]
	if math.Abs(a.Position.X-2.1) > 1e-9 || math.Abs(a.Position.Z-2) > 1e-9 {
		t.Fatalf("position after one tick = %+v, want (2.1, 2)", a.Position)
	}

	for i := 0; i < 60 && e.Len() > 0; i++ {
		e.Step(ctx, grid, nil)
	}
	if e.Len() != 0 {
		t.Fatalf("agent did not reach the exit; at %+v", e.Agents()[0].Position)
	}
	if e.Statistics().Evacuated != 1 {
		t.Fatalf("evacuated = %d, want 1", e.Statistics().Evacuated)
	}
}

func TestImpairedAgentsMoveAtReducedSpeed(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 10)
	e := NewEngine(testSettings(10), pathfind.New(), rand.New(rand.NewSource(1)),
		WithEvacuationPoints([]model.EvacuationPoint{point(6, 2, "east")}),
	)
	id, err := e.SpawnAt(ctx, grid, core.Vec2{X: 2, Z: 2}, model.AgentMobilityImpaired)
	if err != nil {
		t.Fatalf("SpawnAt: %v", err)
	}
	e.Step(ctx, grid, nil)
	a, ok := e.Agent(id)
	if !ok {
		t.Fatalf("agent %s missing", id)
	}
	if a.Speed != 0.5 {
		t.Fatalf("speed = %v, want 0.5", a.Speed)
	}
	if math.Abs(a.Position.X-2.05) > 1e-9 {
		t.Fatalf("x after one tick = %v, want 2.05", a.Position.X)
	}
}

func TestDensitySumMatchesPopulation(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 30)
	settings := testSettings(30)
	settings.SpawnProbability = 1
	e := NewEngine(settings, pathfind.New(), rand.New(rand.NewSource(42)),
		WithEvacuationPoints([]model.EvacuationPoint{point(2, 2, "A"), point(27, 27, "B")}),
	)

	for i := 0; i < 80; i++ {
		e.Step(ctx, grid, nil)
		sum := 0.0
		for _, c := range e.Density().Cells() {
			sum += c.Density
			if n := c.Flow.Norm(); n != 0 && math.Abs(n-1) > 1e-9 {
				t.Fatalf("tick %d: flow at %s has norm %v", i, c.Point, n)
			}
		}
		if int(sum) != e.Len() {
			t.Fatalf("tick %d: density sum %v != active agents %d", i, sum, e.Len())
		}
	}
	if e.Statistics().Spawned == 0 {
		t.Fatalf("expected spawns with probability 1")
	}
}

func TestPopulationBoundedByMaxAgents(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 50)
	settings := testSettings(50)
	settings.SpawnProbability = 1
	settings.MaxAgents = 5
	// Without exits nobody leaves, so the population fills and stays full.
	e := NewEngine(settings, pathfind.New(), rand.New(rand.NewSource(3)))
	for i := 0; i < 20; i++ {
		e.Step(ctx, grid, nil)
		if e.Len() > 5 {
			t.Fatalf("tick %d: %d agents exceed max 5", i, e.Len())
		}
	}
	if e.Len() != 5 {
		t.Fatalf("active = %d, want 5", e.Len())
	}
	if _, err := e.SpawnAt(ctx, grid, core.Vec2{X: 1, Z: 1}, model.AgentNormal); !errors.Is(err, ErrPopulationFull) {
		t.Fatalf("SpawnAt over capacity err = %v, want ErrPopulationFull", err)
	}
}

func TestSpawnAtRejectsOutOfGrid(t *testing.T) {
	grid := newTestGrid(t, 10)
	e := NewEngine(testSettings(10), pathfind.New(), nil)
	if _, err := e.SpawnAt(context.Background(), grid, core.Vec2{X: 10, Z: 3}, model.AgentNormal); !errors.Is(err, core.ErrOutOfBounds) {
		t.Fatalf("err = %v, want ErrOutOfBounds", err)
	}
}

func TestNoEvacuationPointsLeavesAgentsPathless(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 20)
	settings := testSettings(20)
	settings.SpawnProbability = 1
	e := NewEngine(settings, pathfind.New(), rand.New(rand.NewSource(9)))

	for i := 0; i < 10; i++ {
		e.Step(ctx, grid, nil)
	}
	if e.Len() == 0 {
		t.Fatalf("expected spawned agents")
	}
	for _, a := range e.Agents() {
		if a.HasPath() {
			t.Fatalf("agent %s has a path without evacuation points", a.ID)
		}
	}
	if e.Statistics().PathFailures == 0 {
		t.Fatalf("expected recorded path failures")
	}

	e.SetEvacuationPoints([]model.EvacuationPoint{point(10, 10, "late")})
	e.Step(ctx, grid, nil)
	for _, a := range e.Agents() {
		if !a.HasPath() {
			t.Fatalf("agent %s still pathless after evacuation point added", a.ID)
		}
		if a.Destination != "late" {
			t.Fatalf("destination = %q, want late", a.Destination)
		}
	}
}

func TestAgentInsideFireIsReplanned(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 12)
	rec := &countingRecorder{replans: map[string]int{}}
	e := NewEngine(testSettings(12), pathfind.New(), rand.New(rand.NewSource(1)),
		WithEvacuationPoints([]model.EvacuationPoint{point(10, 3, "exit")}),
		WithMetricsRecorder(rec),
	)
	id, err := e.SpawnAt(ctx, grid, core.Vec2{X: 3, Z: 3}, model.AgentNormal)
	if err != nil {
		t.Fatalf("SpawnAt: %v", err)
	}
	before, _ := e.Agent(id)

	burning := hazardFunc(func(p core.Vec2) bool { return p.DistanceTo(core.Vec2{X: 3, Z: 3}) < 2 })
	e.Step(ctx, grid, burning)

	after, _ := e.Agent(id)
	if after.Replans != before.Replans+1 {
		t.Fatalf("replans = %d, want %d", after.Replans, before.Replans+1)
	}
	if after.PlannedAt != 1 {
		t.Fatalf("planned at tick %d, want 1", after.PlannedAt)
	}
	if rec.replans[ReasonFire] != 1 {
		t.Fatalf("fire replans recorded = %d, want 1", rec.replans[ReasonFire])
	}

	e.Step(ctx, grid, hazardFunc(func(core.Vec2) bool { return false }))
	if again, _ := e.Agent(id); again.Replans != after.Replans {
		t.Fatalf("agent replanned outside fire")
	}
}

func TestOvercrowdedCellTriggersReplan(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 12)
	settings := testSettings(12)
	settings.OvercrowdThreshold = 2
	rec := &countingRecorder{replans: map[string]int{}}
	e := NewEngine(settings, pathfind.New(), rand.New(rand.NewSource(1)),
		WithEvacuationPoints([]model.EvacuationPoint{point(10, 10, "exit")}),
		WithMetricsRecorder(rec),
	)
	for _, p := range []core.Vec2{{X: 5.2, Z: 5.2}, {X: 5.4, Z: 5.4}, {X: 5.6, Z: 5.6}} {
		if _, err := e.SpawnAt(ctx, grid, p, model.AgentNormal); err != nil {
			t.Fatalf("SpawnAt: %v", err)
		}
	}

	e.Step(ctx, grid, nil)
	if got := e.Density().DensityAt(core.GridPoint{X: 5, Z: 5}); got != 3 {
		t.Fatalf("density at (5,5) = %v, want 3", got)
	}
	if rec.replans[ReasonOvercrowd] != 3 {
		t.Fatalf("overcrowd replans = %d, want 3", rec.replans[ReasonOvercrowd])
	}
	if e.Statistics().Replans != 3 {
		t.Fatalf("statistics replans = %d, want 3", e.Statistics().Replans)
	}
}

func TestNearestEvacuationPointFirstSeenWinsTies(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 11)
	e := NewEngine(testSettings(11), pathfind.New(), nil,
		WithEvacuationPoints([]model.EvacuationPoint{point(0, 5, "west"), point(10, 5, "east")}),
	)
	id, err := e.SpawnAt(ctx, grid, core.Vec2{X: 5, Z: 5}, model.AgentNormal)
	if err != nil {
		t.Fatalf("SpawnAt: %v", err)
	}
	a, _ := e.Agent(id)
	if a.Destination != "west" {
		t.Fatalf("destination = %q, want west", a.Destination)
	}
}

func TestNearestEvacuationPointSkipsBlockedExit(t *testing.T) {
	ctx := context.Background()
	grid := newTestGrid(t, 11)
	if err := grid.SetObstacle(1, 5); err != nil {
		t.Fatalf("SetObstacle: %v", err)
	}
	e := NewEngine(testSettings(11), pathfind.New(), nil,
		WithEvacuationPoints([]model.EvacuationPoint{point(1, 5, "blocked"), point(10, 5, "open")}),
	)
	id, err := e.SpawnAt(ctx, grid, core.Vec2{X: 3, Z: 5}, model.AgentNormal)
	if err != nil {
		t.Fatalf("SpawnAt: %v", err)
	}
	if a, _ := e.Agent(id); a.Destination != "open" {
		t.Fatalf("destination = %q, want open", a.Destination)
	}
}

func TestSeededEnginesAreDeterministic(t *testing.T) {
	ctx := context.Background()
	run := func() []Agent {
		grid := newTestGrid(t, 20)
		settings := testSettings(20)
		settings.SpawnProbability = 0.5
		e := NewEngine(settings, pathfind.New(), rand.New(rand.NewSource(77)),
			WithEvacuationPoints([]model.EvacuationPoint{point(0, 0, "A")}),
		)
		for i := 0; i < 30; i++ {
			e.Step(ctx, grid, nil)
		}
		return e.Agents()
	}
	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("population differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Position != b[i].Position {
			t.Fatalf("agent %d differs between seeded runs", i)
		}
	}
}
