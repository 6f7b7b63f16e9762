// Package model holds the output of a distributed fit: the component basis
// and its variance bookkeeping, plus a self-describing snapshot format and a
// versioned store for persisting fitted models.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/mnmg/pcago/core"
	"github.com/mnmg/pcago/internal/floats"
	"github.com/mnmg/pcago/project"
)

// ErrInvalidModel is returned when model fields disagree with the declared
// component and feature counts.
var ErrInvalidModel = errors.New("invalid model shape")

// Model is a fitted principal component basis. Every rank of a fit holds an
// identical copy. The element type T matches the dataset the model was
// fitted on; snapshots record it and refuse to load into the wrong type.
type Model[T core.Float] struct {
	// Components holds NComponents rows of NFeatures loadings, row-major,
	// ordered by descending explained variance.
	Components []T `json:"components"`

	// ExplainedVar holds the eigenvalue of each kept component.
	ExplainedVar []T `json:"explained_var"`

	// ExplainedVarRatio holds each kept component's share of the total
	// variance across all features, so the values sum to at most one.
	ExplainedVarRatio []T `json:"explained_var_ratio"`

	// SingularVals holds the singular values of the centered dataset for
	// the kept components.
	SingularVals []T `json:"singular_vals"`

	// Mu holds the global column means subtracted before projection.
	Mu []T `json:"mu"`

	// NoiseVars is the mean of the discarded eigenvalues, zero at full
	// rank.
	NoiseVars T `json:"noise_vars"`

	NComponents int `json:"n_components"`
	NFeatures   int `json:"n_features"`
	TotalRows   int `json:"total_rows"`

	// Algorithm is the solver that produced the model, informational.
	Algorithm string `json:"algorithm"`

	// Whitened records whether the fit requested whitened projections;
	// Basis applies the matching scales.
	Whitened bool `json:"whitened"`
}

// Validate checks that every buffer agrees with NComponents and NFeatures.
func (m *Model[T]) Validate() error {
	k, d := m.NComponents, m.NFeatures

	if k <= 0 || d <= 0 || k > d {
		return fmt.Errorf("%w: %d components over %d features", ErrInvalidModel, k, d)
	}
	if len(m.Components) != k*d {
		return fmt.Errorf("%w: components hold %d values, want %d", ErrInvalidModel, len(m.Components), k*d)
	}
	if len(m.ExplainedVar) != k {
		return fmt.Errorf("%w: explained_var holds %d values, want %d", ErrInvalidModel, len(m.ExplainedVar), k)
	}
	if len(m.ExplainedVarRatio) != k {
		return fmt.Errorf("%w: explained_var_ratio holds %d values, want %d", ErrInvalidModel, len(m.ExplainedVarRatio), k)
	}
	if len(m.SingularVals) != k {
		return fmt.Errorf("%w: singular_vals holds %d values, want %d", ErrInvalidModel, len(m.SingularVals), k)
	}
	if len(m.Mu) != d {
		return fmt.Errorf("%w: mu holds %d values, want %d", ErrInvalidModel, len(m.Mu), d)
	}
	if m.TotalRows < 2 {
		return fmt.Errorf("%w: fitted on %d rows", ErrInvalidModel, m.TotalRows)
	}

	return nil
}

// Basis converts the model into a projection basis. Whitening scales are
// attached when the model was fitted with whitening.
func (m *Model[T]) Basis() (*project.Basis, error) {
	return m.BasisFor(m.Whitened)
}

// BasisFor converts the model into a projection basis with an explicit
// whitening choice, overriding the fit-time flag. Whitening scales each
// component by sqrt of its explained variance; components with zero variance
// keep a zero scale and project to zero.
func (m *Model[T]) BasisFor(whiten bool) (*project.Basis, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var scale []float64
	if whiten {
		scale = make([]float64, m.NComponents)
		for c, v := range m.ExplainedVar {
			f := float64(v)
			if f > 0 {
				scale[c] = math.Sqrt(f)
			}
		}
	}

	return project.NewBasis(floats.Float64s(m.Components), floats.Float64s(m.Mu), m.NComponents, m.NFeatures, scale)
}
