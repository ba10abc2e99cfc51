package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGridRejectsBadInput(t *testing.T) {
	_, err := NewGrid(0, 1)
	require.ErrorIs(t, err, ErrInvalidGridSize)

	_, err = NewGrid(4, -1)
	require.ErrorIs(t, err, ErrInvalidCost)

	_, err = NewGrid(4, math.NaN())
	require.ErrorIs(t, err, ErrInvalidCost)
}

func TestGridCellAtBounds(t *testing.T) {
	g, err := NewGrid(3, 1)
	require.NoError(t, err)

	c, err := g.CellAt(2, 2)
	require.NoError(t, err)
	require.True(t, c.Walkable)
	require.Equal(t, 1.0, c.BaseCost)
	require.False(t, c.Risk)

	for _, xy := range [][2]int{{-1, 0}, {3, 0}, {0, 3}, {1, -1}} {
		_, err := g.CellAt(xy[0], xy[1])
		require.Truef(t, errors.Is(err, ErrOutOfBounds), "CellAt(%d,%d) err = %v", xy[0], xy[1], err)
	}
}

func TestGridSettersValidate(t *testing.T) {
	g, err := NewGrid(4, 1)
	require.NoError(t, err)

	require.ErrorIs(t, g.SetRisk(4, 0, true), ErrOutOfBounds)
	require.ErrorIs(t, g.SetCost(0, -1, 2), ErrOutOfBounds)
	require.ErrorIs(t, g.SetCost(0, 0, -2), ErrInvalidCost)
	require.ErrorIs(t, g.SetObstacle(9, 9), ErrOutOfBounds)

	require.NoError(t, g.SetRisk(1, 2, true))
	require.NoError(t, g.SetCost(1, 2, math.Inf(1)))
	c, err := g.CellAt(1, 2)
	require.NoError(t, err)
	require.True(t, c.Risk)
	require.True(t, c.Walkable)
	require.False(t, c.Passable())
	require.Equal(t, 1, g.RiskCount())
}

func TestGridSetObstacle(t *testing.T) {
	g, err := NewGrid(4, 1)
	require.NoError(t, err)
	require.NoError(t, g.SetObstacle(2, 3))

	c, err := g.CellAt(2, 3)
	require.NoError(t, err)
	require.False(t, c.Walkable)
	require.True(t, math.IsInf(c.BaseCost, 1))
	require.False(t, c.Passable())
}

func TestGridIndexRoundTrip(t *testing.T) {
	g, err := NewGrid(7, 1)
	require.NoError(t, err)
	for x := 0; x < 7; x++ {
		for z := 0; z < 7; z++ {
			p := GridPoint{X: x, Z: z}
			require.Equal(t, x*7+z, g.Index(p))
			require.Equal(t, p, g.Point(g.Index(p)))
		}
	}
}

