// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestActiveSetIdempotence checks that activating a constraint twice equals
// activating it once, likewise for deactivation, and that an
// activate/deactivate pair restores the preceding factorization.
func TestActiveSetIdempotence(t *testing.T) {
	qp, err := New[float64](3, 1, 2)
	require.NoError(t, err)
	require.NoError(t, qp.Init(identityCSC(3), []float64{1, -2, 3},
		denseCSC(1, 3, []float64{1, 1, 0}), []float64{1},
		denseCSC(2, 3, []float64{1, 0, 2, 0, 1, -1}),
		[]float64{-1, -1}, []float64{1, 1},
		false, Unset[float64]()))

	const (
		rho  = 1e-6
		muEq = 1e3
		muIn = 1e1
	)
	nTot := 3 + 1 + 2
	active := qp.Results.Active
	diag := make([]float64, nTot)
	qp.kkt.diagonal(diag, rho, muEq, muIn, active)
	qp.fact.Factor(qp.kkt.mat, diag)

	probe := []float64{1, 2, 3, 4, 5, 6}
	solve := func() []float64 {
		v := append([]float64(nil), probe...)
		qp.fact.SolveInPlace(v)
		return v
	}
	base := solve()

	qp.kkt.activate(0, qp.fact, muIn, active)
	require.True(t, active[0])
	once := solve()

	// a second activation must leave the factorization untouched
	qp.kkt.activate(0, qp.fact, muIn, active)
	twice := solve()
	for i := range once {
		require.Equal(t, once[i], twice[i])
	}

	// the activated system must differ from the inactive one
	differs := false
	for i := range base {
		if abs(base[i]-once[i]) > 1e-12 {
			differs = true
		}
	}
	require.True(t, differs)

	// deactivation restores the preceding factorization
	qp.kkt.deactivate(0, qp.fact, active)
	require.False(t, active[0])
	restored := solve()
	for i := range base {
		require.InDelta(t, base[i], restored[i], 1e-9)
	}

	// a second deactivation is a no-op as well
	qp.kkt.deactivate(0, qp.fact, active)
	again := solve()
	for i := range restored {
		require.Equal(t, restored[i], again[i])
	}
}
