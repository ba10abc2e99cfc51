package crowd

import (
	"github.com/google/uuid"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

// Agent is one simulated evacuee.
type Agent struct {
	ID       uuid.UUID
	Class    model.AgentClass
	Position core.Vec2
	Speed    float64

	// Path is the current route; empty when the agent has none yet.
	Path []core.GridPoint
	// PathIndex is the waypoint being approached. It only moves forward
	// within one path and is reset when a new path is assigned: to 0, or
	// to 1 when the agent already stands in the new path's first cell and
	// the path continues past it.
	PathIndex int
	// Destination is the label of the evacuation point being routed to.
	Destination string

	SpawnedAt uint64
	PlannedAt uint64
	Replans   int
	Failures  int

	retryAt uint64
}

// HasPath reports whether the agent has a route to follow.
func (a *Agent) HasPath() bool {
	return len(a.Path) > 0
}

// Target returns the waypoint the agent is currently steering to.
func (a *Agent) Target() (core.GridPoint, bool) {
	if !a.HasPath() {
		return core.GridPoint{}, false
	}
	return a.Path[a.PathIndex], true
}

// DistanceToGoal is the straight-line distance to the final waypoint, or
// -1 without a path.
func (a *Agent) DistanceToGoal() float64 {
	if !a.HasPath() {
		return -1
	}
	return a.Position.DistanceTo(a.Path[len(a.Path)-1].Vec())
}

func (a *Agent) clone() Agent {
	out := *a
	out.Path = append([]core.GridPoint(nil), a.Path...)
	return out
}

// move advances the agent one tick. Inside epsilon of the current waypoint
// the agent steps its index forward instead of moving.
func (a *Agent) move(dt, epsilon float64) {
	target, ok := a.Target()
	if !ok {
		return
	}
	dir := target.Vec().Sub(a.Position)
	dist := dir.Norm()
	if dist < epsilon {
		if a.PathIndex < len(a.Path)-1 {
			a.PathIndex++
		}
		return
	}
	step := min(a.Speed*dt, dist)
	a.Position = a.Position.Add(dir.Scale(step / dist))
}

// assign replaces the route. When the agent already stands in the route's
// first cell it resumes from the second waypoint so repeated replans do not
// pull it back to the cell corner.
func (a *Agent) assign(path []core.GridPoint, label string, tick uint64) {
	a.Path = path
	a.PathIndex = 0
	if len(path) > 1 && a.Position.Cell() == path[0] {
		a.PathIndex = 1
	}
	a.Destination = label
	a.PlannedAt = tick
}
