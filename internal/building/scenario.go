// Package building supplies the floor-plan data an evacuation runs over:
// floors, spaces, circulation paths and structural obstacles, plus the
// evacuation points and initial fires of a scenario. It turns one floor
// into the navigation grid the pathfinder searches.
package building

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/evacuation-simulator/model"
)

var (
	// ErrInvalidScenario reports a structurally unusable scenario file.
	ErrInvalidScenario = errors.New("building: invalid scenario")
	// ErrFloorNotFound is returned when a floor id matches nothing.
	ErrFloorNotFound = errors.New("building: floor not found")
)

// AllFloors selects every floor in FilterByFloor and NavigationGrid.
const AllFloors = "all"

// Scenario is a loaded building plus the hazards and exits of one run.
// Positions, radii and footprints are in metres.
type Scenario struct {
	Name             string
	Floors           []model.Floor
	Spaces           []model.Space
	Paths            []model.CirculationPath
	Obstacles        []model.Obstacle
	EvacuationPoints []model.EvacuationPoint
	Fires            []model.FireSource
}

// internal JSON shapes, unexported so the file format can evolve.
type scenarioJSON struct {
	Name             string                `json:"name"`
	Floors           []floorJSON           `json:"floors"`
	Spaces           []spaceJSON           `json:"spaces"`
	Paths            []pathJSON            `json:"paths"`
	Obstacles        []obstacleJSON        `json:"obstacles"`
	EvacuationPoints []evacuationPointJSON `json:"evacuation_points"`
	Fires            []fireJSON            `json:"fires"`
}

type floorJSON struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Elevation float64 `json:"elevation"`
	Height    float64 `json:"height"`
}

type spaceJSON struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	FloorID string  `json:"floor_id"`
	Area    float64 `json:"area"`
	Volume  float64 `json:"volume"`
}

type pathJSON struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"` // STAIR | CORRIDOR
	FloorID   string         `json:"floor_id"`
	Width     float64        `json:"width"`
	Length    float64        `json:"length"`
	Footprint *footprintJSON `json:"footprint"`
}

type obstacleJSON struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"` // WALL | COLUMN
	FloorID   string         `json:"floor_id"`
	Footprint *footprintJSON `json:"footprint"`
}

type footprintJSON struct {
	MinX float64 `json:"min_x"`
	MinZ float64 `json:"min_z"`
	MaxX float64 `json:"max_x"`
	MaxZ float64 `json:"max_z"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type evacuationPointJSON struct {
	Label    string       `json:"label"`
	Position positionJSON `json:"position"`
}

type fireJSON struct {
	ID        string       `json:"id"`
	Position  positionJSON `json:"position"`
	Radius    float64      `json:"radius"`
	Intensity float64      `json:"intensity"`
}

// LoadFile reads a scenario from path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a JSON scenario.
func Load(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidScenario, err)
	}

	sc := &Scenario{Name: payload.Name}
	floors := make(map[string]struct{}, len(payload.Floors))
	for _, f := range payload.Floors {
		if f.ID == "" {
			return nil, fmt.Errorf("%w: floor with empty id", ErrInvalidScenario)
		}
		if _, dup := floors[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate floor %q", ErrInvalidScenario, f.ID)
		}
		floors[f.ID] = struct{}{}
		sc.Floors = append(sc.Floors, model.Floor{ID: f.ID, Name: f.Name, Elevation: f.Elevation, Height: f.Height})
	}
	knownFloor := func(kind, id, floorID string) error {
		if floorID == "" {
			return nil
		}
		if _, ok := floors[floorID]; !ok {
			return fmt.Errorf("%w: %s %q references unknown floor %q", ErrInvalidScenario, kind, id, floorID)
		}
		return nil
	}

	for _, s := range payload.Spaces {
		if s.FloorID == "" {
			return nil, fmt.Errorf("%w: space %q has no floor", ErrInvalidScenario, s.ID)
		}
		if err := knownFloor("space", s.ID, s.FloorID); err != nil {
			return nil, err
		}
		sc.Spaces = append(sc.Spaces, model.Space{ID: s.ID, Name: s.Name, FloorID: s.FloorID, Area: s.Area, Volume: s.Volume})
	}

	for _, p := range payload.Paths {
		kind := model.CirculationKind(p.Type)
		if kind != model.CirculationStair && kind != model.CirculationCorridor {
			return nil, fmt.Errorf("%w: path %q has type %q", ErrInvalidScenario, p.ID, p.Type)
		}
		if err := knownFloor("path", p.ID, p.FloorID); err != nil {
			return nil, err
		}
		fp, err := footprintFromJSON("path", p.ID, p.Footprint)
		if err != nil {
			return nil, err
		}
		sc.Paths = append(sc.Paths, model.CirculationPath{
			ID: p.ID, Name: p.Name, Kind: kind, FloorID: p.FloorID,
			Width: p.Width, Length: p.Length, Footprint: fp,
		})
	}

	for _, o := range payload.Obstacles {
		kind := model.ObstacleKind(o.Type)
		if kind != model.ObstacleWall && kind != model.ObstacleColumn {
			return nil, fmt.Errorf("%w: obstacle %q has type %q", ErrInvalidScenario, o.ID, o.Type)
		}
		if err := knownFloor("obstacle", o.ID, o.FloorID); err != nil {
			return nil, err
		}
		fp, err := footprintFromJSON("obstacle", o.ID, o.Footprint)
		if err != nil {
			return nil, err
		}
		sc.Obstacles = append(sc.Obstacles, model.Obstacle{ID: o.ID, Name: o.Name, Kind: kind, FloorID: o.FloorID, Footprint: fp})
	}

	for _, ep := range payload.EvacuationPoints {
		if ep.Label == "" {
			return nil, fmt.Errorf("%w: evacuation point with empty label", ErrInvalidScenario)
		}
		sc.EvacuationPoints = append(sc.EvacuationPoints, model.EvacuationPoint{
			Label:    ep.Label,
			Position: model.Position{X: ep.Position.X, Z: ep.Position.Z},
		})
	}

	for _, f := range payload.Fires {
		if f.Radius < 0 {
			return nil, fmt.Errorf("%w: fire %q has negative radius", ErrInvalidScenario, f.ID)
		}
		if f.Intensity < 0 || f.Intensity > 100 {
			return nil, fmt.Errorf("%w: fire %q intensity %v outside [0,100]", ErrInvalidScenario, f.ID, f.Intensity)
		}
		sc.Fires = append(sc.Fires, model.FireSource{
			ID:        f.ID,
			Position:  model.Position{X: f.Position.X, Z: f.Position.Z},
			Radius:    f.Radius,
			Intensity: f.Intensity,
		})
	}

	return sc, nil
}

func footprintFromJSON(kind, id string, fp *footprintJSON) (*model.Footprint, error) {
	if fp == nil {
		return nil, nil
	}
	if fp.MaxX < fp.MinX || fp.MaxZ < fp.MinZ {
		return nil, fmt.Errorf("%w: %s %q has inverted footprint", ErrInvalidScenario, kind, id)
	}
	return &model.Footprint{MinX: fp.MinX, MinZ: fp.MinZ, MaxX: fp.MaxX, MaxZ: fp.MaxZ}, nil
}
