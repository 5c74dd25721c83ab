// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"golang.org/x/exp/constraints"
)

// Axpy performs y += a·x over unit-stride vectors.
func Axpy[T constraints.Float](a T, x, y []T) {
	if a == 0 {
		return
	}
	if len(x) > len(y) {
		panic("bound check error")
	}
	for i, xi := range x {
		y[i] += a * xi
	}
}

// Dot computes the dot product of two unit-stride vectors.
func Dot[T constraints.Float](x, y []T) (dot T) {
	if len(x) > len(y) {
		panic("bound check error")
	}
	for i, xi := range x {
		dot += xi * y[i]
	}
	return
}

// Scale performs x *= a.
func Scale[T constraints.Float](a T, x []T) {
	for i := range x {
		x[i] *= a
	}
}

// Zero fills x with zeros.
func Zero[T constraints.Float](x []T) {
	for i := range x {
		x[i] = 0
	}
}

// InfNorm computes ‖x‖_∞.
func InfNorm[T constraints.Float](x []T) (norm T) {
	for _, v := range x {
		if v < 0 {
			v = -v
		}
		if v > norm {
			norm = v
		}
	}
	return
}

// SqNorm computes ‖x‖₂².
func SqNorm[T constraints.Float](x []T) (sq T) {
	for _, v := range x {
		sq += v * v
	}
	return
}
