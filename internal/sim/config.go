package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/evacuation-simulator/internal/crowd"
	"github.com/signalsfoundry/evacuation-simulator/internal/pathfind"
)

// ErrInvalidConfig wraps every Config validation failure.
var ErrInvalidConfig = errors.New("sim: invalid config")

// Config carries every tuning value of a run. It is passed by value into
// New; there is no process-wide settings object.
type Config struct {
	GridSize int
	// CellSize is the floor-plan width of one grid cell in metres. Agent
	// positions and AgentSpeed are expressed in cells; callers loading a
	// metric scenario divide a metres-per-second speed by CellSize.
	CellSize float64

	TickInterval    time.Duration
	PresentInterval time.Duration

	MaxAgents            int
	AgentSpeed           float64
	ImpairedSpeedFactor  float64
	ImpairedProbability  float64
	SpawnProbability     float64
	ArrivalEpsilon       float64
	DestinationTolerance float64
	OvercrowdThreshold   float64
	PathRetryTicks       uint64

	FireGrowthRate float64
	FireMaxRadius  float64

	Weights                 pathfind.Weights
	AlternateCostMultiplier float64
	// MaxExpansions bounds A* expansions per search; zero means four times
	// the cell count.
	MaxExpansions int

	Seed int64
}

// DefaultConfig returns the stock evacuation settings.
func DefaultConfig() Config {
	return Config{
		GridSize:                100,
		CellSize:                1.0,
		TickInterval:            100 * time.Millisecond,
		PresentInterval:         time.Second,
		MaxAgents:               500,
		AgentSpeed:              1.0,
		ImpairedSpeedFactor:     0.5,
		ImpairedProbability:     0.1,
		SpawnProbability:        0.1,
		ArrivalEpsilon:          0.1,
		DestinationTolerance:    0.5,
		OvercrowdThreshold:      20,
		PathRetryTicks:          10,
		FireGrowthRate:          0.1,
		FireMaxRadius:           50,
		Weights:                 pathfind.DefaultWeights(),
		AlternateCostMultiplier: 2.0,
		Seed:                    1,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.GridSize <= 0:
		return fmt.Errorf("%w: grid size %d", ErrInvalidConfig, c.GridSize)
	case c.CellSize <= 0:
		return fmt.Errorf("%w: cell size %v", ErrInvalidConfig, c.CellSize)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval %v", ErrInvalidConfig, c.TickInterval)
	case c.PresentInterval < c.TickInterval:
		return fmt.Errorf("%w: present interval %v shorter than tick interval %v", ErrInvalidConfig, c.PresentInterval, c.TickInterval)
	case c.MaxAgents < 0:
		return fmt.Errorf("%w: max agents %d", ErrInvalidConfig, c.MaxAgents)
	case c.AgentSpeed <= 0:
		return fmt.Errorf("%w: agent speed %v", ErrInvalidConfig, c.AgentSpeed)
	case c.ImpairedSpeedFactor <= 0 || c.ImpairedSpeedFactor > 1:
		return fmt.Errorf("%w: impaired speed factor %v not in (0,1]", ErrInvalidConfig, c.ImpairedSpeedFactor)
	case !unit(c.ImpairedProbability):
		return fmt.Errorf("%w: impaired probability %v not in [0,1]", ErrInvalidConfig, c.ImpairedProbability)
	case !unit(c.SpawnProbability):
		return fmt.Errorf("%w: spawn probability %v not in [0,1]", ErrInvalidConfig, c.SpawnProbability)
	case c.ArrivalEpsilon <= 0 || c.DestinationTolerance <= 0:
		return fmt.Errorf("%w: arrival epsilon %v / destination tolerance %v", ErrInvalidConfig, c.ArrivalEpsilon, c.DestinationTolerance)
	case c.OvercrowdThreshold < 0:
		return fmt.Errorf("%w: overcrowd threshold %v", ErrInvalidConfig, c.OvercrowdThreshold)
	case c.FireGrowthRate < 0 || c.FireMaxRadius < 0:
		return fmt.Errorf("%w: fire growth %v / max radius %v", ErrInvalidConfig, c.FireGrowthRate, c.FireMaxRadius)
	case c.Weights.BaseCost < 0 || c.Weights.MaxDensity <= 0:
		return fmt.Errorf("%w: weights %+v", ErrInvalidConfig, c.Weights)
	case c.AlternateCostMultiplier <= 1:
		return fmt.Errorf("%w: alternate cost multiplier %v must exceed 1", ErrInvalidConfig, c.AlternateCostMultiplier)
	}
	return nil
}

func (c Config) crowdSettings() crowd.Settings {
	return crowd.Settings{
		GridSize:             c.GridSize,
		MaxAgents:            c.MaxAgents,
		AgentSpeed:           c.AgentSpeed,
		ImpairedSpeedFactor:  c.ImpairedSpeedFactor,
		ImpairedProbability:  c.ImpairedProbability,
		SpawnProbability:     c.SpawnProbability,
		ArrivalEpsilon:       c.ArrivalEpsilon,
		DestinationTolerance: c.DestinationTolerance,
		OvercrowdThreshold:   c.OvercrowdThreshold,
		PathRetryTicks:       c.PathRetryTicks,
		TickInterval:         c.TickInterval,
	}
}

func unit(p float64) bool {
	return p >= 0 && p <= 1
}
