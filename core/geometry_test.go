package core

import (
	"math"
	"testing"
)

func TestVec2NormalizeZero(t *testing.T) {
	if got := (Vec2{}).Normalize(); got != (Vec2{}) {
		t.Fatalf("Normalize(0) = %+v, want zero vector", got)
	}
}

func TestVec2NormalizeUnitLength(t *testing.T) {
	v := Vec2{X: 3, Z: -4}.Normalize()
	if math.Abs(v.Norm()-1) > 1e-12 {
		t.Fatalf("|Normalize(3,-4)| = %v, want 1", v.Norm())
	}
	if math.Abs(v.X-0.6) > 1e-12 || math.Abs(v.Z+0.8) > 1e-12 {
		t.Fatalf("Normalize(3,-4) = %+v, want (0.6,-0.8)", v)
	}
}

func TestVec2CellFloorsNegative(t *testing.T) {
	cases := []struct {
		in   Vec2
		want GridPoint
	}{
		{Vec2{X: 0.2, Z: 0.9}, GridPoint{0, 0}},
		{Vec2{X: 5.999, Z: 7}, GridPoint{5, 7}},
		{Vec2{X: -0.1, Z: 2.5}, GridPoint{-1, 2}},
	}
	for _, tc := range cases {
		if got := tc.in.Cell(); got != tc.want {
			t.Errorf("Cell(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestVec2DistanceTo(t *testing.T) {
	a := Vec2{X: 1, Z: 1}
	b := Vec2{X: 4, Z: 5}
	if got := a.DistanceTo(b); got != 5 {
		t.Fatalf("DistanceTo = %v, want 5", got)
	}
}
