package model

// Position is a point on the floor plan in metres. X runs along the grid's
// first axis and Z along its second; elevation is carried by the Floor.
type Position struct {
	X float64
	Z float64
}

// FireSource is a hazard centre whose radius grows every tick.
// Radius never shrinks: there is no extinguishing.
type FireSource struct {
	ID        string
	Position  Position
	Radius    float64
	Intensity float64 // 0..100
}

// EvacuationPoint is a designated safe destination. Points are immutable for
// the duration of a run.
type EvacuationPoint struct {
	Position Position
	Label    string
}
