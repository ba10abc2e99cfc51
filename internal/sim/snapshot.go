package sim

import (
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

// Statistics is the aggregate record shown alongside each snapshot.
type Statistics struct {
	Tick    uint64
	Elapsed time.Duration

	Agents int
	// Evacuated counts every agent removed on arrival.
	Evacuated int
	// EvacuatedEstimate is MaxAgents minus Agents.
	EvacuatedEstimate int
	Spawned           int
	Replans           int
	PathFailures      int

	AverageDensity float64
	PeakDensity    float64
	FireSources    int
	RiskCells      int
}

// Route is the remaining part of one agent's current path.
type Route struct {
	AgentID     uuid.UUID
	Class       model.AgentClass
	Destination string
	Waypoints   []core.GridPoint
}

// Snapshot is the per-presentation view of a run. Slices are copies owned by
// the receiver.
type Snapshot struct {
	Tick             uint64
	Elapsed          time.Duration
	Density          []core.DensityCell
	Fires            []model.FireSource
	EvacuationPoints []model.EvacuationPoint
	Routes           []Route
	Stats            Statistics
}
