// Package solver turns reduced statistics into a principal component
// spectrum.
//
// Three interchangeable algorithms produce the same spectrum up to floating
// point noise:
//
//   - CovEigDC runs the LAPACK divide and conquer eigensolver on the global
//     covariance.
//   - CovEigJacobi runs a cyclic Jacobi eigensolver on the global covariance,
//     bounded by a tolerance and a sweep budget.
//   - QR never forms the covariance: each rank QR-factorizes its centered
//     shard, the d x d R factors are all-gathered in rank order, and the
//     spectrum is read off an SVD of the stacked factors.
//
// The covariance solvers are local computations on replicated input, so every
// rank derives an identical spectrum with no further communication. The QR
// solver gathers identical bytes on every rank before its local SVD, which
// keeps the replication property.
package solver

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Defaults for the Jacobi solver.
const (
	DefaultTol       = 1e-9
	DefaultMaxSweeps = 30
)

var (
	// ErrNoConvergence is returned when an eigensolver exhausts its budget
	// before reaching its tolerance.
	ErrNoConvergence = errors.New("eigensolver did not converge")

	// ErrUnknownAlgorithm is returned by ParseAlgorithm for an
	// unrecognized name.
	ErrUnknownAlgorithm = errors.New("unknown solver algorithm")
)

// Algorithm selects the decomposition strategy for a fit.
type Algorithm int

const (
	// CovEigDC is the covariance eigendecomposition using the divide and
	// conquer path. The default.
	CovEigDC Algorithm = iota

	// CovEigJacobi is the covariance eigendecomposition using cyclic
	// Jacobi rotations.
	CovEigJacobi

	// QR is the decomposition of stacked per-rank QR factors, skipping
	// the covariance entirely.
	QR
)

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	switch a {
	case CovEigDC:
		return "cov-eig-dc"
	case CovEigJacobi:
		return "cov-eig-jacobi"
	case QR:
		return "qr"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// ParseAlgorithm maps a name to its Algorithm. Matching is case insensitive.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cov-eig-dc", "full":
		return CovEigDC, nil
	case "cov-eig-jacobi", "jacobi":
		return CovEigJacobi, nil
	case "qr":
		return QR, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
}

// Spectrum is a full eigendecomposition of the covariance, ordered by
// descending eigenvalue. Row i of Vectors is the unit eigenvector belonging
// to Values[i]. Eigenvalues that round below zero are clamped to zero.
type Spectrum struct {
	Values  []float64
	Vectors *mat.Dense
}

// Dim returns the number of features the spectrum spans.
func (s *Spectrum) Dim() int {
	return len(s.Values)
}

// SignFlip normalizes eigenvector signs in place so that the entry with the
// largest magnitude in each row is positive. The first such entry wins ties,
// making the orientation independent of solver and data layout.
func SignFlip(vecs *mat.Dense) {
	rows, _ := vecs.Dims()

	for i := 0; i < rows; i++ {
		row := vecs.RawRowView(i)

		best := 0
		for j := 1; j < len(row); j++ {
			if math.Abs(row[j]) > math.Abs(row[best]) {
				best = j
			}
		}

		if row[best] < 0 {
			for j := range row {
				row[j] = -row[j]
			}
		}
	}
}

// ExplainedVarianceRatio divides each eigenvalue by the variance of the full
// spectrum, so the ratios sum to one however many components a caller keeps.
// A zero spectrum yields zero ratios.
func ExplainedVarianceRatio(values []float64) []float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}

	out := make([]float64, len(values))
	if total <= 0 {
		return out
	}

	for i, v := range values {
		out[i] = v / total
	}

	return out
}

// NoiseVariance is the mean of the eigenvalues discarded after keeping the
// leading k. At full rank there is nothing discarded and the noise is zero.
func NoiseVariance(values []float64, k int) float64 {
	if k >= len(values) {
		return 0
	}

	sum := 0.0
	for _, v := range values[k:] {
		sum += v
	}

	return sum / float64(len(values)-k)
}

// SingularValues recovers the singular values of the centered dataset from
// covariance eigenvalues: sigma_i = sqrt(lambda_i * (n-1)).
func SingularValues(values []float64, totalRows int) []float64 {
	out := make([]float64, len(values))
	scale := float64(totalRows - 1)

	for i, v := range values {
		out[i] = math.Sqrt(v * scale)
	}

	return out
}

func clampSpectrum(values []float64) {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
}
