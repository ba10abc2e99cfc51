package model

// Floor is a building storey as reported by the building-data collaborator.
type Floor struct {
	ID        string
	Name      string
	Elevation float64 // metres
	Height    float64 // metres
}

// Space is a room or zone contained in a floor.
type Space struct {
	ID      string
	Name    string
	FloorID string
	Area    float64 // m²
	Volume  float64 // m³
}

// CirculationKind categorises circulation paths.
type CirculationKind string

const (
	CirculationStair    CirculationKind = "STAIR"
	CirculationCorridor CirculationKind = "CORRIDOR"
)

// Footprint is an axis-aligned rectangle on the floor plan in metres.
type Footprint struct {
	MinX, MinZ float64
	MaxX, MaxZ float64
}

// CirculationPath is a corridor or stair whose footprint is cheaper to traverse.
// An empty FloorID means the path is shared by every floor.
type CirculationPath struct {
	ID        string
	Name      string
	Kind      CirculationKind
	FloorID   string
	Width     float64
	Length    float64
	Footprint *Footprint
}

// ObstacleKind categorises structural obstacles.
type ObstacleKind string

const (
	ObstacleWall   ObstacleKind = "WALL"
	ObstacleColumn ObstacleKind = "COLUMN"
)

// Obstacle is a structural element that makes the cells it covers impassable.
// An empty FloorID means the obstacle is shared by every floor.
type Obstacle struct {
	ID        string
	Name      string
	Kind      ObstacleKind
	FloorID   string
	Footprint *Footprint
}
