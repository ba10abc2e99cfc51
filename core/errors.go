package core

import "errors"

var (
	// ErrOutOfBounds indicates a coordinate outside [0, size)².
	ErrOutOfBounds = errors.New("grid coordinate out of bounds")
	// ErrInvalidGridSize indicates a non-positive grid dimension.
	ErrInvalidGridSize = errors.New("grid size must be positive")
	// ErrInvalidCost indicates a negative or NaN traversal cost.
	ErrInvalidCost = errors.New("cell cost must be a non-negative number")
)
