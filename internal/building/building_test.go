package building

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/evacuation-simulator/core"
	"github.com/signalsfoundry/evacuation-simulator/model"
)

const sampleScenario = `{
  "name": "Test Hall",
  "floors": [
    {"id": "floor-1", "name": "Ground", "elevation": 0, "height": 3},
    {"id": "floor-2", "name": "First", "elevation": 3, "height": 3}
  ],
  "spaces": [
    {"id": "lobby", "name": "Lobby", "floor_id": "floor-1", "area": 200, "volume": 600},
    {"id": "office", "name": "Office", "floor_id": "floor-2", "area": 80, "volume": 240}
  ],
  "paths": [
    {"id": "corridor", "name": "Corridor", "type": "CORRIDOR", "floor_id": "floor-1", "width": 2, "length": 6,
     "footprint": {"min_x": 0, "min_z": 0, "max_x": 6, "max_z": 2}},
    {"id": "stair", "name": "Stair", "type": "STAIR", "width": 1.5, "length": 8}
  ],
  "obstacles": [
    {"id": "wall", "name": "Wall", "type": "WALL", "floor_id": "floor-1",
     "footprint": {"min_x": 5, "min_z": 0, "max_x": 6, "max_z": 4}},
    {"id": "column", "name": "Column", "type": "COLUMN", "floor_id": "floor-2",
     "footprint": {"min_x": 8, "min_z": 8, "max_x": 8, "max_z": 8}}
  ],
  "evacuation_points": [
    {"label": "A", "position": {"x": 2, "z": 9}}
  ],
  "fires": [
    {"id": "f1", "position": {"x": 4, "z": 4}, "radius": 2, "intensity": 80}
  ]
}`

func loadSample(t *testing.T) *Scenario {
	t.Helper()
	sc, err := Load(strings.NewReader(sampleScenario))
	require.NoError(t, err)
	return sc
}

func TestLoadScenario(t *testing.T) {
	sc := loadSample(t)

	require.Equal(t, "Test Hall", sc.Name)
	require.Len(t, sc.Floors, 2)
	require.Len(t, sc.Spaces, 2)
	require.Len(t, sc.Paths, 2)
	require.Equal(t, model.CirculationCorridor, sc.Paths[0].Kind)
	require.Nil(t, sc.Paths[1].Footprint)
	require.Equal(t, model.ObstacleColumn, sc.Obstacles[1].Kind)
	require.Equal(t, []model.EvacuationPoint{{Label: "A", Position: model.Position{X: 2, Z: 9}}}, sc.EvacuationPoints)
	require.Equal(t, 80.0, sc.Fires[0].Intensity)
}

func TestLoadRejectsInvalidScenarios(t *testing.T) {
	cases := map[string]string{
		"malformed":      `{"floors": [`,
		"unknown field":  `{"levels": []}`,
		"empty floor id": `{"floors": [{"id": ""}]}`,
		"duplicate":      `{"floors": [{"id": "a"}, {"id": "a"}]}`,
		"orphan space":   `{"floors": [{"id": "a"}], "spaces": [{"id": "s", "floor_id": "b"}]}`,
		"bad path type":  `{"paths": [{"id": "p", "type": "ELEVATOR"}]}`,
		"bad obstacle":   `{"obstacles": [{"id": "o", "type": "DOOR"}]}`,
		"inverted":       `{"obstacles": [{"id": "o", "type": "WALL", "footprint": {"min_x": 3, "max_x": 1}}]}`,
		"no label":       `{"evacuation_points": [{"position": {"x": 1, "z": 1}}]}`,
		"hot fire":       `{"fires": [{"id": "f", "intensity": 120}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(body))
			require.ErrorIs(t, err, ErrInvalidScenario)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleScenario), 0o600))

	sc, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Test Hall", sc.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestFilterByFloor(t *testing.T) {
	sc := loadSample(t)

	all, err := sc.FilterByFloor(AllFloors)
	require.NoError(t, err)
	require.Len(t, all.Floors, 2)
	require.Len(t, all.Obstacles, 2)

	first, err := sc.FilterByFloor("floor-1")
	require.NoError(t, err)
	require.Len(t, first.Floors, 1)
	require.Equal(t, "lobby", first.Spaces[0].ID)
	require.Len(t, first.Paths, 2, "the floorless stair is shared")
	require.Len(t, first.Obstacles, 1)
	require.Equal(t, "wall", first.Obstacles[0].ID)

	second, err := sc.FilterByFloor("floor-2")
	require.NoError(t, err)
	require.Len(t, second.Paths, 1)
	require.Equal(t, "stair", second.Paths[0].ID)

	_, err = sc.FilterByFloor("floor-9")
	require.True(t, errors.Is(err, ErrFloorNotFound))
}

func TestFilterByFloorAllIsACopy(t *testing.T) {
	sc := loadSample(t)
	all, err := sc.FilterByFloor(AllFloors)
	require.NoError(t, err)

	all.Floors[0].Name = "changed"
	require.Equal(t, "Ground", sc.Floors[0].Name)
}

func TestInfo(t *testing.T) {
	info := loadSample(t).Info()
	require.Equal(t, Info{Name: "Test Hall", Floors: 2, Spaces: 2, TotalArea: 280, TotalVolume: 840}, info)
}

func TestNavigationGrid(t *testing.T) {
	sc := loadSample(t)

	grid, stats, err := sc.NavigationGrid("floor-1", 10, 1.0)
	require.NoError(t, err)
	require.Equal(t, 10, grid.Size())
	require.Equal(t, 1, stats.Skipped, "stair has no footprint")

	corridor, err := grid.CellAt(2, 1)
	require.NoError(t, err)
	require.Equal(t, CirculationCost, corridor.BaseCost)
	require.True(t, corridor.Passable())

	// The wall covers x=5 over z 0..3 and overrides the corridor there.
	wall, err := grid.CellAt(5, 1)
	require.NoError(t, err)
	require.False(t, wall.Walkable)
	require.True(t, math.IsInf(wall.BaseCost, 1))
	require.Equal(t, 4, stats.ObstacleCells)

	open, err := grid.CellAt(9, 9)
	require.NoError(t, err)
	require.Equal(t, BaseCost, open.BaseCost)

	// floor-2 has only the column, a degenerate footprint covering one cell.
	upper, stats, err := sc.NavigationGrid("floor-2", 10, 1.0)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ObstacleCells)
	column, err := upper.CellAt(8, 8)
	require.NoError(t, err)
	require.False(t, column.Passable())
	lobby, err := upper.CellAt(2, 1)
	require.NoError(t, err)
	require.Equal(t, BaseCost, lobby.BaseCost)
}

func TestNavigationGridScalesAndClips(t *testing.T) {
	sc := loadSample(t)

	// Two metres per cell: the corridor (0..6 x 0..2 m) covers cells x 0..2, z 0.
	grid, stats, err := sc.NavigationGrid("floor-1", 3, 2.0)
	require.NoError(t, err)
	c, err := grid.CellAt(1, 0)
	require.NoError(t, err)
	require.Equal(t, CirculationCost, c.BaseCost)
	c, err = grid.CellAt(1, 1)
	require.NoError(t, err)
	require.Equal(t, BaseCost, c.BaseCost)
	// The wall spans cells x=2, z 0..1; nothing outside the 3×3 grid is touched.
	require.Equal(t, 2, stats.ObstacleCells)

	_, _, err = sc.NavigationGrid("floor-1", 0, 1.0)
	require.ErrorIs(t, err, core.ErrInvalidGridSize)
	_, _, err = sc.NavigationGrid("floor-1", 10, 0)
	require.ErrorIs(t, err, core.ErrInvalidGridSize)
	_, _, err = sc.NavigationGrid("nowhere", 10, 1.0)
	require.ErrorIs(t, err, ErrFloorNotFound)
}

func TestGridUnits(t *testing.T) {
	sc := loadSample(t)

	points := sc.GridEvacuationPoints(2.0)
	require.Equal(t, model.Position{X: 1, Z: 4.5}, points[0].Position)

	fires := sc.GridFires(2.0)
	require.Equal(t, model.Position{X: 2, Z: 2}, fires[0].Position)
	require.Equal(t, 1.0, fires[0].Radius)
	require.Equal(t, 4.0, sc.Fires[0].Position.X, "scenario itself is unchanged")
}

func TestShippedScenarioLoads(t *testing.T) {
	sc, err := LoadFile(filepath.Join("..", "..", "configs", "scenario.json"))
	require.NoError(t, err)
	require.Len(t, sc.Floors, 3)
	require.Len(t, sc.EvacuationPoints, 3)

	grid, stats, err := sc.NavigationGrid(AllFloors, 100, 1.0)
	require.NoError(t, err)
	require.Zero(t, stats.Skipped)
	for _, ep := range sc.GridEvacuationPoints(1.0) {
		c, ok := grid.At(core.FromPosition(ep.Position).Cell())
		require.True(t, ok, ep.Label)
		require.True(t, c.Passable(), ep.Label)
	}
}
