// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// machEps computes the machine epsilon of T.
func machEps[T constraints.Float]() T {
	return T(7)/3 - T(4)/3 - 1
}

func isNaN[T constraints.Float](x T) bool { return x != x }

func abs[T constraints.Float](x T) T {
	if x < 0 {
		return -x
	}
	return x
}

func sqrt[T constraints.Float](x T) T {
	return T(math.Sqrt(float64(x)))
}

func pow[T constraints.Float](x, y T) T {
	return T(math.Pow(float64(x), float64(y)))
}

// posPart returns max(x, 0) and negPart returns min(x, 0).
func posPart[T constraints.Float](x T) T {
	if x > 0 {
		return x
	}
	return 0
}

func negPart[T constraints.Float](x T) T {
	if x < 0 {
		return x
	}
	return 0
}
