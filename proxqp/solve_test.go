// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/proxqp/sparse"
)

// upperCSC stores the upper triangle of a symmetric dense matrix.
func upperCSC(d *mat.Dense) *sparse.Matrix[float64] {
	n, _ := d.Dims()
	colCap := make([]int, n)
	for j := 0; j < n; j++ {
		colCap[j] = j + 1
	}
	m := sparse.NewMatrix[float64](n, n, colCap)
	for j := 0; j < n; j++ {
		p := m.ColPtr[j]
		for i := 0; i <= j; i++ {
			m.RowInd[p] = i
			m.Val[p] = d.At(i, j)
			p++
		}
		m.ColNnz[j] = j + 1
	}
	return m
}

// denseCSC stores a dense rows×cols matrix given in row-major order.
func denseCSC(rows, cols int, data []float64) *sparse.Matrix[float64] {
	colCap := make([]int, cols)
	for j := range colCap {
		colCap[j] = rows
	}
	m := sparse.NewMatrix[float64](rows, cols, colCap)
	for j := 0; j < cols; j++ {
		p := m.ColPtr[j]
		for i := 0; i < rows; i++ {
			m.RowInd[p] = i
			m.Val[p] = data[i*cols+j]
			p++
		}
		m.ColNnz[j] = rows
	}
	return m
}

func identityCSC(n int) *sparse.Matrix[float64] {
	colCap := make([]int, n)
	for j := range colCap {
		colCap[j] = 1
	}
	m := sparse.NewMatrix[float64](n, n, colCap)
	for j := 0; j < n; j++ {
		m.RowInd[m.ColPtr[j]] = j
		m.Val[m.ColPtr[j]] = 1
		m.ColNnz[j] = 1
	}
	return m
}

// TestRandomStrictlyConvex solves a 10-variable random strictly convex QP
// with two equalities and two boxed inequalities to tight accuracy.
func TestRandomStrictlyConvex(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	const n, mEq, mIn = 10, 2, 2

	gauss := func(r, c int) *mat.Dense {
		d := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				d.Set(i, j, rng.NormFloat64())
			}
		}
		return d
	}

	m := gauss(n, n)
	var hd mat.Dense
	hd.Mul(m.T(), m)
	for i := 0; i < n; i++ {
		hd.Set(i, i, hd.At(i, i)+1e-2)
	}

	g := make([]float64, n)
	for i := range g {
		g[i] = rng.NormFloat64()
	}
	a := gauss(mEq, n)
	b := []float64{rng.NormFloat64(), rng.NormFloat64()}
	c := gauss(mIn, n)
	l := []float64{rng.NormFloat64(), rng.NormFloat64()}
	u := []float64{l[0] + 1, l[1] + 1}

	qp, err := New[float64](n, mEq, mIn)
	require.NoError(t, err)
	qp.Settings.EpsAbs = 1e-9
	qp.Settings.EpsRel = 1e-9

	require.NoError(t, qp.Init(upperCSC(&hd), g,
		denseCSC(mEq, n, a.RawMatrix().Data), b,
		denseCSC(mIn, n, c.RawMatrix().Data), l, u,
		true, Unset[float64]()))
	qp.Solve()

	info := qp.Results.Info
	require.Equal(t, Solved, info.Status)
	require.LessOrEqual(t, info.PriRes, 1e-9)
	require.LessOrEqual(t, info.DuaRes, 1e-9)
	require.LessOrEqual(t, info.Iter, 200)
}

// TestDegenerateSimplex solves min ½‖x‖² subject to 1ᵀx ≤ 0, whose optimum
// sits exactly on the constraint with a zero multiplier.
func TestDegenerateSimplex(t *testing.T) {
	const n = 3
	qp, err := New[float64](n, 0, 1)
	require.NoError(t, err)

	require.NoError(t, qp.Init(identityCSC(n), make([]float64, n),
		nil, nil,
		denseCSC(1, n, []float64{1, 1, 1}), []float64{-1e20}, []float64{0},
		true, Unset[float64]()))
	qp.Solve()

	res := qp.Results
	require.Equal(t, Solved, res.Info.Status)
	require.LessOrEqual(t, res.Info.IterExt, 3)
	for i := 0; i < n; i++ {
		require.InDelta(t, 0, res.X[i], 1e-8)
	}
	require.InDelta(t, 0, res.Z[0], 1e-8)
}

// TestActiveSetFlip starts from an unconstrained minimum outside the
// feasible set, so the single inequality must be active at the solution.
func TestActiveSetFlip(t *testing.T) {
	qp, err := New[float64](2, 0, 1)
	require.NoError(t, err)

	require.NoError(t, qp.Init(identityCSC(2), []float64{-1, -1},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{-1e20}, []float64{1},
		true, Unset[float64]()))
	qp.Solve()

	res := qp.Results
	require.Equal(t, Solved, res.Info.Status)
	require.GreaterOrEqual(t, res.Info.IterExt, 1)
	require.InDelta(t, 0.5, res.X[0], 1e-7)
	require.InDelta(t, 0.5, res.X[1], 1e-7)
	require.Greater(t, res.Z[0], 0.0)
	require.True(t, res.Active[0])
}

// TestBCLRejection runs one outer iteration on a problem whose primal
// residual cannot drop below one, so the first BCL update must reject the
// dual step, revert the multipliers and stiffen both penalties exactly once.
func TestBCLRejection(t *testing.T) {
	qp, err := New[float64](1, 0, 2)
	require.NoError(t, err)
	qp.Settings.MaxIter = 1

	// x ≥ 1 and x ≤ −1 keep the violation at one whatever the iterates do
	require.NoError(t, qp.Init(identityCSC(1), []float64{0},
		nil, nil,
		denseCSC(2, 1, []float64{1, 1}),
		[]float64{1, -1e20}, []float64{1e20, -1},
		false, Unset[float64]()))
	qp.Solve()

	info := qp.Results.Info
	require.Equal(t, MaxIterReached, info.Status)
	require.Equal(t, 1, info.MuUpdates)
	require.InDelta(t, 1e4, info.MuEqInv, 1e-9)
	require.InDelta(t, 1e2, info.MuInInv, 1e-9)

	// the rejected dual step leaves the multipliers at their snapshot
	require.InDelta(t, 0, qp.Results.Z[0], 1e-12)
	require.InDelta(t, 0, qp.Results.Z[1], 1e-12)
}

// TestColdReset drives the solver on an infeasible inequality pair until
// the penalties ratchet past the stall threshold and collapse back to the
// cold-reset value.
func TestColdReset(t *testing.T) {
	found := false
	for budget := 1; budget <= 10; budget++ {
		qp, err := New[float64](1, 0, 2)
		require.NoError(t, err)
		qp.Settings.MaxIter = budget

		require.NoError(t, qp.Init(identityCSC(1), []float64{0},
			nil, nil,
			denseCSC(2, 1, []float64{1, 1}),
			[]float64{1, -1e20}, []float64{1e20, -1},
			false, Unset[float64]()))
		qp.Solve()

		info := qp.Results.Info
		if info.MuInInv == qp.Settings.ColdResetMuIn {
			require.Equal(t, qp.Settings.ColdResetMuEq, info.MuEqInv)
			require.GreaterOrEqual(t, info.MuUpdates, 5)
			found = true
			break
		}
	}
	require.True(t, found, "cold reset never triggered")
}

// TestWarmStart re-solves from the previous solution and must pass the
// feasibility check before any outer iteration runs.
func TestWarmStart(t *testing.T) {
	build := func() *QP[float64] {
		qp, err := New[float64](2, 0, 1)
		require.NoError(t, err)
		require.NoError(t, qp.Init(identityCSC(2), []float64{-1, -1},
			nil, nil,
			denseCSC(1, 2, []float64{1, 1}), []float64{-1e20}, []float64{1},
			true, Unset[float64]()))
		return qp
	}
	qp := build()
	qp.Solve()
	require.Equal(t, Solved, qp.Results.Info.Status)

	x := append([]float64(nil), qp.Results.X...)
	y := append([]float64(nil), qp.Results.Y...)
	z := append([]float64(nil), qp.Results.Z...)

	qp.SolveWarmStart(x, y, z)
	require.Equal(t, Solved, qp.Results.Info.Status)
	require.Equal(t, 0, qp.Results.Info.IterExt)
	for i := range x {
		require.InDelta(t, x[i], qp.Results.X[i], 1e-10)
	}
}

// TestEqualityReduction checks that a two-sided inequality with l = u
// behaves exactly like an equality row.
func TestEqualityReduction(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 1))
	const n = 3

	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, rng.NormFloat64())
		}
	}
	var hd mat.Dense
	hd.Mul(m.T(), m)
	for i := 0; i < n; i++ {
		hd.Set(i, i, hd.At(i, i)+1)
	}
	g := []float64{0.3, -0.7, 1.1}
	aRow := []float64{1, 2, -1}
	cRow := []float64{-2, 1, 1}

	asIneq, err := New[float64](n, 1, 1)
	require.NoError(t, err)
	require.NoError(t, asIneq.Init(upperCSC(&hd), g,
		denseCSC(1, n, aRow), []float64{0.5},
		denseCSC(1, n, cRow), []float64{0.3}, []float64{0.3},
		true, Unset[float64]()))
	asIneq.Solve()
	require.Equal(t, Solved, asIneq.Results.Info.Status)

	asEq, err := New[float64](n, 2, 0)
	require.NoError(t, err)
	require.NoError(t, asEq.Init(upperCSC(&hd), g,
		denseCSC(2, n, append(append([]float64(nil), aRow...), cRow...)), []float64{0.5, 0.3},
		nil, nil, nil,
		true, Unset[float64]()))
	asEq.Solve()
	require.Equal(t, Solved, asEq.Results.Info.Status)

	for i := 0; i < n; i++ {
		require.InDelta(t, asEq.Results.X[i], asIneq.Results.X[i], 1e-6)
	}
	require.InDelta(t, asEq.Results.Y[0], asIneq.Results.Y[0], 1e-6)
	require.InDelta(t, asEq.Results.Y[1], asIneq.Results.Z[0], 1e-6)
}

// TestUpdateNumeric overwrites the gradient in place and re-solves without
// a new symbolic setup.
func TestUpdateNumeric(t *testing.T) {
	qp, err := New[float64](2, 0, 1)
	require.NoError(t, err)
	require.NoError(t, qp.Init(identityCSC(2), []float64{-1, -1},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{-1e20}, []float64{1},
		true, Unset[float64]()))
	qp.Solve()
	require.Equal(t, Solved, qp.Results.Info.Status)

	require.NoError(t, qp.Update(nil, []float64{-0.2, -0.1}, nil, nil, nil, nil, nil,
		true, Unset[float64]()))
	qp.Solve()
	res := qp.Results
	require.Equal(t, Solved, res.Info.Status)
	require.InDelta(t, 0.2, res.X[0], 1e-7)
	require.InDelta(t, 0.1, res.X[1], 1e-7)
	require.False(t, res.Active[0])
}

// TestUpdatePatternFallback changes the Hessian pattern, which must behave
// like a fresh setup.
func TestUpdatePatternFallback(t *testing.T) {
	qp, err := New[float64](2, 0, 1)
	require.NoError(t, err)
	require.NoError(t, qp.Init(identityCSC(2), []float64{-1, -1},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{-1e20}, []float64{1},
		true, Unset[float64]()))
	qp.Solve()

	hd := mat.NewDense(2, 2, []float64{2, 0.5, 0.5, 2})
	require.NoError(t, qp.Update(upperCSC(hd), nil, nil, nil, nil, nil, nil,
		true, Unset[float64]()))
	qp.Solve()
	require.Equal(t, Solved, qp.Results.Info.Status)
	require.LessOrEqual(t, qp.Results.Info.PriRes, qp.Settings.EpsAbs)
}

// TestSinglePrecision instantiates the solver at float32.
func TestSinglePrecision(t *testing.T) {
	colCap := []int{1, 1}
	h := sparse.NewMatrix[float32](2, 2, colCap)
	for j := 0; j < 2; j++ {
		h.RowInd[h.ColPtr[j]] = j
		h.Val[h.ColPtr[j]] = 1
		h.ColNnz[j] = 1
	}
	c := sparse.NewMatrix[float32](1, 2, []int{1, 1})
	c.RowInd[0], c.Val[0], c.ColNnz[0] = 0, 1, 1
	c.RowInd[1], c.Val[1], c.ColNnz[1] = 0, 1, 1

	qp, err := New[float32](2, 0, 1)
	require.NoError(t, err)
	qp.Settings.EpsAbs = 1e-4

	require.NoError(t, qp.Init(h, []float32{-1, -1},
		nil, nil,
		c, []float32{-1e18}, []float32{1},
		true, Unset[float32]()))
	qp.Solve()

	res := qp.Results
	require.Equal(t, Solved, res.Info.Status)
	require.InDelta(t, 0.5, float64(res.X[0]), 1e-2)
	require.InDelta(t, 0.5, float64(res.X[1]), 1e-2)
}

// TestNewWithSparsity pre-sizes the symbolic factorization from patterns.
func TestNewWithSparsity(t *testing.T) {
	h := identityCSC(2)
	c := denseCSC(1, 2, []float64{1, 1})
	qp, err := NewWithSparsity(h, nil, c)
	require.NoError(t, err)

	require.NoError(t, qp.Init(h, []float64{-1, -1},
		nil, nil,
		c, []float64{-1e20}, []float64{1},
		true, Unset[float64]()))
	qp.Solve()
	require.Equal(t, Solved, qp.Results.Info.Status)
}

// TestVerboseTimings exercises the trace and timing plumbing.
func TestVerboseTimings(t *testing.T) {
	var buf bytes.Buffer
	qp, err := New[float64](2, 0, 1)
	require.NoError(t, err)
	qp.Settings.Verbose = true
	qp.Settings.ComputeTimings = true
	qp.Settings.Logger = Logger{Level: LogInner, Msg: &buf}

	require.NoError(t, qp.Init(identityCSC(2), []float64{-1, -1},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{-1e20}, []float64{1},
		true, Unset[float64]()))
	qp.Solve()

	info := qp.Results.Info
	require.Equal(t, Solved, info.Status)
	require.Greater(t, buf.Len(), 0)
	require.GreaterOrEqual(t, info.SolveTime, 0.0)
	require.Equal(t, info.SetupTime+info.SolveTime, info.RunTime)
}

// TestInvalidArguments exercises the fail-fast validation surface.
func TestInvalidArguments(t *testing.T) {
	_, err := New[float64](0, 0, 0)
	require.Error(t, err)

	qp, err := New[float64](2, 0, 1)
	require.NoError(t, err)

	// wrong gradient length
	require.Error(t, qp.Init(identityCSC(2), []float64{0},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{0}, []float64{1},
		true, Unset[float64]()))

	// crossing bounds
	require.Error(t, qp.Init(identityCSC(2), []float64{0, 0},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{2}, []float64{1},
		true, Unset[float64]()))

	// lower-triangular hessian storage
	low := sparse.NewCSC(2, 2, []int{0, 2, 3}, []int{0, 1, 1}, []float64{1, 0.5, 1})
	require.Error(t, qp.Init(low, []float64{0, 0},
		nil, nil,
		denseCSC(1, 2, []float64{1, 1}), []float64{0}, []float64{1},
		true, Unset[float64]()))

	// update before init
	fresh, err := New[float64](2, 0, 1)
	require.NoError(t, err)
	require.Error(t, fresh.Update(nil, []float64{0, 0}, nil, nil, nil, nil, nil, false, Unset[float64]()))
}
