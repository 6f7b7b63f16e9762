package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *Model[float64] {
	return &Model[float64]{
		Components:        []float64{0.8, 0.6, -0.6, 0.8},
		ExplainedVar:      []float64{5, 1},
		ExplainedVarRatio: []float64{5.0 / 6.0, 1.0 / 6.0},
		SingularVals:      []float64{math.Sqrt(45), 3},
		Mu:                []float64{1, 2},
		NoiseVars:         0,
		NComponents:       2,
		NFeatures:         2,
		TotalRows:         10,
		Algorithm:         "cov-eig-dc",
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleModel().Validate())

	tests := []struct {
		name   string
		mutate func(*Model[float64])
	}{
		{"zero components", func(m *Model[float64]) { m.NComponents = 0 }},
		{"more components than features", func(m *Model[float64]) { m.NComponents = 3 }},
		{"short components", func(m *Model[float64]) { m.Components = m.Components[:3] }},
		{"short explained var", func(m *Model[float64]) { m.ExplainedVar = nil }},
		{"short ratio", func(m *Model[float64]) { m.ExplainedVarRatio = m.ExplainedVarRatio[:1] }},
		{"short singular vals", func(m *Model[float64]) { m.SingularVals = m.SingularVals[:1] }},
		{"short mu", func(m *Model[float64]) { m.Mu = m.Mu[:1] }},
		{"too few rows", func(m *Model[float64]) { m.TotalRows = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModel()
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
		})
	}
}

func TestBasis(t *testing.T) {
	m := sampleModel()

	b, err := m.Basis()
	require.NoError(t, err)

	assert.Equal(t, 2, b.NComponents())
	assert.Equal(t, 2, b.NFeatures())
	assert.Equal(t, []float64{0.8, 0.6, -0.6, 0.8}, b.Components)
	assert.Equal(t, []float64{1, 2}, b.Mu)
	assert.Nil(t, b.Scale)
}

func TestBasisWhitened(t *testing.T) {
	m := sampleModel()
	m.Whitened = true
	m.ExplainedVar = []float64{4, 0}

	b, err := m.Basis()
	require.NoError(t, err)

	require.Len(t, b.Scale, 2)
	assert.InDelta(t, 2.0, b.Scale[0], 1e-12)
	assert.Equal(t, 0.0, b.Scale[1])
}

func TestBasisFor(t *testing.T) {
	m := sampleModel()
	m.Whitened = true

	// The explicit choice wins over the fit-time flag, both ways.
	plain, err := m.BasisFor(false)
	require.NoError(t, err)
	assert.Nil(t, plain.Scale)

	m.Whitened = false
	whitened, err := m.BasisFor(true)
	require.NoError(t, err)
	require.Len(t, whitened.Scale, 2)
	assert.InDelta(t, math.Sqrt(5), whitened.Scale[0], 1e-12)
	assert.InDelta(t, 1.0, whitened.Scale[1], 1e-12)
}

func TestBasisInvalidModel(t *testing.T) {
	m := sampleModel()
	m.Mu = nil

	_, err := m.Basis()
	assert.ErrorIs(t, err, ErrInvalidModel)
}
