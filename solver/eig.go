package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// EigDC decomposes the covariance with the LAPACK divide and conquer
// eigensolver. The input is not modified.
func EigDC(cov *mat.SymDense) (*Spectrum, error) {
	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return nil, fmt.Errorf("%w: symmetric eigendecomposition failed", ErrNoConvergence)
	}

	vals := eig.Values(nil)

	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	return spectrumFromAscending(vals, &vecs), nil
}

// EigJacobi decomposes the covariance with cyclic Jacobi rotations. A sweep
// rotates every strict upper triangle pair once; the solver stops when the
// off-diagonal Frobenius norm falls below tol relative to the input norm, and
// fails with ErrNoConvergence after maxSweeps sweeps. Nonpositive tol and
// maxSweeps fall back to DefaultTol and DefaultMaxSweeps. The input is not
// modified.
func EigJacobi(cov *mat.SymDense, tol float64, maxSweeps int) (*Spectrum, error) {
	if tol <= 0 {
		tol = DefaultTol
	}
	if maxSweeps <= 0 {
		maxSweeps = DefaultMaxSweeps
	}

	d := cov.SymmetricDim()

	a := make([]float64, d*d)
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			a[i*d+j] = cov.At(i, j)
		}
	}

	v := make([]float64, d*d)
	for i := 0; i < d; i++ {
		v[i*d+i] = 1
	}

	// tol is scale free: the stopping threshold is relative to the
	// Frobenius norm of the input.
	thresh := tol * froNorm(a)
	if thresh == 0 {
		return spectrumFromDiagonal(a, v, d), nil
	}

	for sweep := 0; sweep < maxSweeps; sweep++ {
		if offNorm(a, d) <= thresh {
			return spectrumFromDiagonal(a, v, d), nil
		}

		for p := 0; p < d-1; p++ {
			for q := p + 1; q < d; q++ {
				rotate(a, v, d, p, q)
			}
		}
	}

	if offNorm(a, d) <= thresh {
		return spectrumFromDiagonal(a, v, d), nil
	}

	return nil, fmt.Errorf("%w: jacobi off-diagonal norm %g above %g after %d sweeps", ErrNoConvergence, offNorm(a, d), thresh, maxSweeps)
}

// rotate annihilates a[p,q] with a two-sided Jacobi rotation and accumulates
// it into the eigenvector matrix v.
func rotate(a, v []float64, d, p, q int) {
	gamma := a[p*d+q]
	if gamma == 0 {
		return
	}

	alpha := a[p*d+p]
	beta := a[q*d+q]

	zeta := (beta - alpha) / (2 * gamma)
	var t float64
	if zeta > 0 {
		t = 1 / (zeta + math.Sqrt(1+zeta*zeta))
	} else {
		t = -1 / (-zeta + math.Sqrt(1+zeta*zeta))
	}
	c := 1 / math.Sqrt(1+t*t)
	s := c * t

	for k := 0; k < d; k++ {
		t1 := a[k*d+p]
		t2 := a[k*d+q]
		a[k*d+p] = c*t1 - s*t2
		a[k*d+q] = s*t1 + c*t2
	}

	for k := 0; k < d; k++ {
		t1 := a[p*d+k]
		t2 := a[q*d+k]
		a[p*d+k] = c*t1 - s*t2
		a[q*d+k] = s*t1 + c*t2
	}

	for k := 0; k < d; k++ {
		t1 := v[k*d+p]
		t2 := v[k*d+q]
		v[k*d+p] = c*t1 - s*t2
		v[k*d+q] = s*t1 + c*t2
	}
}

func froNorm(a []float64) float64 {
	sum := 0.0
	for _, x := range a {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func offNorm(a []float64, d int) float64 {
	sum := 0.0
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			if i != j {
				sum += a[i*d+j] * a[i*d+j]
			}
		}
	}
	return math.Sqrt(sum)
}

// spectrumFromAscending reorders an ascending eigendecomposition whose
// eigenvectors sit in the columns of vecs into a descending row spectrum.
func spectrumFromAscending(vals []float64, vecs *mat.Dense) *Spectrum {
	d := len(vals)

	values := make([]float64, d)
	vectors := mat.NewDense(d, d, nil)

	for i := 0; i < d; i++ {
		src := d - 1 - i
		values[i] = vals[src]
		for j := 0; j < d; j++ {
			vectors.Set(i, j, vecs.At(j, src))
		}
	}

	clampSpectrum(values)

	return &Spectrum{Values: values, Vectors: vectors}
}

// spectrumFromDiagonal sorts a diagonalized matrix into a descending row
// spectrum. Eigenvector j sits in column j of v.
func spectrumFromDiagonal(a, v []float64, d int) *Spectrum {
	order := make([]int, d)
	for i := range order {
		order[i] = i
	}

	// Insertion sort by descending eigenvalue; stable so equal values keep
	// their diagonal order on every rank.
	for i := 1; i < d; i++ {
		for j := i; j > 0 && a[order[j]*d+order[j]] > a[order[j-1]*d+order[j-1]]; j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}

	values := make([]float64, d)
	vectors := mat.NewDense(d, d, nil)

	for i, src := range order {
		values[i] = a[src*d+src]
		for j := 0; j < d; j++ {
			vectors.Set(i, j, v[j*d+src])
		}
	}

	clampSpectrum(values)

	return &Spectrum{Values: values, Vectors: vectors}
}
