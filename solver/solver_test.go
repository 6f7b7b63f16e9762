package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAlgorithmString(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want string
	}{
		{CovEigDC, "cov-eig-dc"},
		{CovEigJacobi, "cov-eig-jacobi"},
		{QR, "qr"},
		{Algorithm(42), "algorithm(42)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.alg.String())
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Algorithm
		wantErr bool
	}{
		{name: "dc", input: "cov-eig-dc", want: CovEigDC},
		{name: "dc alias", input: "full", want: CovEigDC},
		{name: "jacobi", input: "cov-eig-jacobi", want: CovEigJacobi},
		{name: "jacobi alias", input: "Jacobi", want: CovEigJacobi},
		{name: "qr", input: "QR", want: QR},
		{name: "padded", input: "  qr  ", want: QR},
		{name: "unknown", input: "power-iteration", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAlgorithm)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignFlip(t *testing.T) {
	vecs := mat.NewDense(3, 3, []float64{
		0.1, -0.9, 0.2,
		-0.5, 0.3, 0.4,
		0.6, 0.6, -0.2,
	})

	SignFlip(vecs)

	// Row 0: dominant entry -0.9 flips the row.
	assert.Equal(t, []float64{-0.1, 0.9, -0.2}, vecs.RawRowView(0))
	// Row 1: dominant entry -0.5 flips the row.
	assert.Equal(t, []float64{0.5, -0.3, -0.4}, vecs.RawRowView(1))
	// Row 2: tied magnitudes, first occurrence is positive, no flip.
	assert.Equal(t, []float64{0.6, 0.6, -0.2}, vecs.RawRowView(2))
}

func TestSignFlipIdempotent(t *testing.T) {
	vecs := mat.NewDense(2, 2, []float64{
		-0.8, 0.6,
		0.6, 0.8,
	})

	SignFlip(vecs)
	want := mat.DenseCopyOf(vecs)
	SignFlip(vecs)

	assert.True(t, mat.Equal(want, vecs))
}

func TestExplainedVarianceRatio(t *testing.T) {
	ratios := ExplainedVarianceRatio([]float64{6, 3, 1})

	assert.InDelta(t, 0.6, ratios[0], 1e-12)
	assert.InDelta(t, 0.3, ratios[1], 1e-12)
	assert.InDelta(t, 0.1, ratios[2], 1e-12)

	sum := 0.0
	for _, r := range ratios {
		sum += r
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestExplainedVarianceRatioZeroSpectrum(t *testing.T) {
	ratios := ExplainedVarianceRatio([]float64{0, 0})
	assert.Equal(t, []float64{0, 0}, ratios)
}

func TestNoiseVariance(t *testing.T) {
	values := []float64{5, 3, 2, 1}

	assert.InDelta(t, 2.0, NoiseVariance(values, 2), 1e-12)
	assert.InDelta(t, 1.0, NoiseVariance(values, 3), 1e-12)
	assert.Equal(t, 0.0, NoiseVariance(values, 4))
	assert.Equal(t, 0.0, NoiseVariance(values, 5))
}

func TestSingularValues(t *testing.T) {
	sv := SingularValues([]float64{4, 1, 0}, 10)

	assert.InDelta(t, math.Sqrt(36), sv[0], 1e-12)
	assert.InDelta(t, math.Sqrt(9), sv[1], 1e-12)
	assert.Equal(t, 0.0, sv[2])
}
