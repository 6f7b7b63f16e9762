package pcago

import (
	"fmt"

	"github.com/mnmg/pcago/solver"
)

// Params holds the per-call algorithm settings. The zero value is usable:
// every field falls back to its default. Params are never mutated by the
// engine.
type Params struct {
	// NComponents is the number of components to retain. Zero retains all
	// features.
	NComponents int

	// Algorithm selects the eigensolver strategy. The zero value is
	// solver.CovEigDC.
	Algorithm solver.Algorithm

	// Whiten scales transformed columns to unit variance and rescales them
	// on inverse transform. Applied at projection time.
	Whiten bool

	// SignFlip normalizes every component so its largest-magnitude loading
	// is positive. DefaultParams enables it; without it, component signs
	// are still deterministic but convention-free.
	SignFlip bool

	// Tol is the Jacobi convergence threshold relative to the matrix
	// norm. Zero means solver.DefaultTol.
	Tol float64

	// MaxSweeps bounds the Jacobi sweep count. Zero means
	// solver.DefaultMaxSweeps.
	MaxSweeps int

	// Verbose raises per-operation log detail from Debug to Info.
	Verbose bool
}

// DefaultParams returns the standard fit settings: all components, the
// divide-and-conquer solver, sign normalization on.
func DefaultParams() Params {
	return Params{
		Algorithm: solver.CovEigDC,
		SignFlip:  true,
		Tol:       solver.DefaultTol,
		MaxSweeps: solver.DefaultMaxSweeps,
	}
}

// Components returns the effective retained component count for a feature
// count.
func (p Params) Components(features int) int {
	if p.NComponents == 0 {
		return features
	}
	return p.NComponents
}

func (p Params) tol() float64 {
	if p.Tol <= 0 {
		return solver.DefaultTol
	}
	return p.Tol
}

func (p Params) maxSweeps() int {
	if p.MaxSweeps <= 0 {
		return solver.DefaultMaxSweeps
	}
	return p.MaxSweeps
}

// Validate checks the parameters against the dataset's feature count.
func (p Params) Validate(features int) error {
	switch p.Algorithm {
	case solver.CovEigDC, solver.CovEigJacobi, solver.QR:
	default:
		return fmt.Errorf("%w: %d", solver.ErrUnknownAlgorithm, int(p.Algorithm))
	}

	if p.NComponents < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidNComponents, p.NComponents)
	}
	if k := p.Components(features); k > features {
		return fmt.Errorf("%w: %d components over %d features", ErrInvalidNComponents, k, features)
	}

	return nil
}
