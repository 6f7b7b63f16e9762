package pcago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnmg/pcago/solver"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()

	assert.Equal(t, solver.CovEigDC, p.Algorithm)
	assert.Zero(t, p.NComponents, "zero keeps every component")
	assert.True(t, p.SignFlip)
	assert.False(t, p.Whiten)
	assert.Equal(t, solver.DefaultTol, p.Tol)
	assert.Equal(t, solver.DefaultMaxSweeps, p.MaxSweeps)
}

func TestParamsComponents(t *testing.T) {
	p := Params{}
	assert.Equal(t, 7, p.Components(7), "zero means full rank")

	p.NComponents = 3
	assert.Equal(t, 3, p.Components(7))
}

func TestParamsNormalization(t *testing.T) {
	p := Params{}
	assert.Equal(t, solver.DefaultTol, p.tol())
	assert.Equal(t, solver.DefaultMaxSweeps, p.maxSweeps())

	p.Tol = 1e-6
	p.MaxSweeps = 5
	assert.Equal(t, 1e-6, p.tol())
	assert.Equal(t, 5, p.maxSweeps())
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate(4))

	p.NComponents = -1
	err := p.Validate(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidNComponents)

	p.NComponents = 5
	err = p.Validate(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidNComponents)

	p = DefaultParams()
	p.Algorithm = solver.Algorithm(99)
	err = p.Validate(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, solver.ErrUnknownAlgorithm)
}
