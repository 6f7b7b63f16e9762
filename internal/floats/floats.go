// Package floats provides generic numeric kernels shared by the statistics,
// solver, and projection stages. This is an internal package; the element
// type constraint comes from the core package.
package floats

import (
	"fmt"
	"unsafe"

	"github.com/mnmg/pcago/core"
)

// Dot returns the dot product of a and b. Lengths must match.
func Dot[T core.Float](a, b []T) T {
	var ret T
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// Axpy adds alpha*x to y in place. Lengths must match.
func Axpy[T core.Float](alpha T, x, y []T) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// Scale multiplies all elements of a by scalar in place.
func Scale[T core.Float](a []T, scalar T) {
	for i := range a {
		a[i] *= scalar
	}
}

// ToFloat64 copies src into dst, widening each element. Lengths must match.
func ToFloat64[T core.Float](dst []float64, src []T) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

// FromFloat64 copies src into dst, narrowing each element to T. Lengths must
// match.
func FromFloat64[T core.Float](dst []T, src []float64) {
	for i, v := range src {
		dst[i] = T(v)
	}
}

// Float64s returns a freshly allocated float64 copy of src.
func Float64s[T core.Float](src []T) []float64 {
	dst := make([]float64, len(src))
	ToFloat64(dst, src)

	return dst
}

// ViewAs reinterprets b as a slice of T without copying. The byte slice must
// start aligned for T and its length must be an exact multiple of the element
// size. The returned slice aliases b and is only valid while b is.
func ViewAs[T core.Float](b []byte) ([]T, error) {
	if len(b) == 0 {
		return nil, nil
	}

	var zero T

	esize := int(unsafe.Sizeof(zero))
	if len(b)%esize != 0 {
		return nil, fmt.Errorf("byte length %d is not a multiple of element size %d", len(b), esize)
	}

	if uintptr(unsafe.Pointer(&b[0]))%unsafe.Alignof(zero) != 0 {
		return nil, fmt.Errorf("byte slice is not aligned for element size %d", esize)
	}

	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/esize), nil
}

// AsBytes reinterprets v as raw bytes without copying. The returned slice
// aliases v.
func AsBytes[T core.Float](v []T) []byte {
	if len(v) == 0 {
		return nil
	}

	var zero T

	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(unsafe.Sizeof(zero)))
}
