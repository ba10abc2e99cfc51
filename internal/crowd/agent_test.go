package crowd

import (
	"testing"

	"github.com/signalsfoundry/evacuation-simulator/core"
)

func TestAssignResumesPastCurrentCell(t *testing.T) {
	path := []core.GridPoint{{X: 3, Z: 3}, {X: 4, Z: 4}, {X: 5, Z: 5}}

	inside := &Agent{Position: core.Vec2{X: 3.5, Z: 3.5}, PathIndex: 2}
	inside.assign(path, "A", 7)
	if inside.PathIndex != 1 {
		t.Fatalf("agent inside the first cell: PathIndex = %d, want 1", inside.PathIndex)
	}
	if inside.Destination != "A" || inside.PlannedAt != 7 {
		t.Fatalf("assign did not record destination and tick: %+v", inside)
	}

	outside := &Agent{Position: core.Vec2{X: 2.5, Z: 3.5}, PathIndex: 2}
	outside.assign(path, "A", 7)
	if outside.PathIndex != 0 {
		t.Fatalf("agent outside the first cell: PathIndex = %d, want 0", outside.PathIndex)
	}

	single := &Agent{Position: core.Vec2{X: 3.5, Z: 3.5}}
	single.assign(path[:1], "A", 7)
	if single.PathIndex != 0 {
		t.Fatalf("single-waypoint path: PathIndex = %d, want 0", single.PathIndex)
	}
}
