// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package proxqp solves convex quadratic programs
//
//	minimize   ½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱
//	subject to 𝐀𝐱 = 𝐛,  𝐥 ≤ 𝐂𝐱 ≤ 𝐮
//
// with 𝐇 symmetric positive semidefinite, using a proximal augmented
// Lagrangian outer loop around a primal–dual semi-smooth Newton inner loop.
// The KKT system is kept factorized as a sparse 𝐋𝐃𝐋ᵀ that follows the
// active inequalities through incremental row insertions and deletions.
//
// See A. Bambade, S. El-Kazdadi, A. Taylor, J. Carpentier,
// 'PROX-QP: Yet another Quadratic Programming Solver for Robotics and
// beyond', RSS 2022.
package proxqp

import (
	"errors"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/curioloop/proxqp/ldl"
	"github.com/curioloop/proxqp/sparse"
)

// QP owns one problem instance: the installed model, the equilibrated copy
// living inside the KKT storage, the factorization and the scratch space,
// all sized once at Init. A QP is not safe for concurrent use.
type QP[T constraints.Float] struct {
	Settings Settings[T]
	Results  Results[T]

	n, mEq, mIn int

	// unscaled model, kept for feasibility references and unscaling
	h, at, ct  *sparse.Matrix[T]
	g, b, l, u []T

	// equilibrated model: matrices live inside the KKT storage
	kkt *kktMatrix[T]
	sc  ScaledQP[T]

	fact    *ldl.Factorization[T]
	precond Preconditioner[T]

	// infinity norms of the unscaled data, fixed at setup
	normG, normB, normL, normU T

	ws    workspace[T]
	ready bool
}

// workspace carves one scratch region per concurrent use; residual caches
// and Newton buffers never alias.
type workspace[T constraints.Float] struct {
	diag []T // nTot, penalty diagonal
	rhs  []T // nTot, Newton right-hand side and step
	sol  []T // nTot, refinement accumulator
	res  []T // nTot, refinement residual

	xPrev, yPrev, zPrev []T

	rDual        []T // n
	rEq          []T // mEq
	rInLo, rInUp []T // mIn

	tmp  []T // n, residual pieces
	hdx  []T // n
	atdy []T // n
	ctdz []T // n
	adx  []T // mEq
	cdx  []T // mIn

	alphas                        []T // 2·mIn line-search breakpoints
	activeLo, activeUp, newActive []bool
}

func newWorkspace[T constraints.Float](n, mEq, mIn int) workspace[T] {
	nTot := n + mEq + mIn
	return workspace[T]{
		diag:      make([]T, nTot),
		rhs:       make([]T, nTot),
		sol:       make([]T, nTot),
		res:       make([]T, nTot),
		xPrev:     make([]T, n),
		yPrev:     make([]T, mEq),
		zPrev:     make([]T, mIn),
		rDual:     make([]T, n),
		rEq:       make([]T, mEq),
		rInLo:     make([]T, mIn),
		rInUp:     make([]T, mIn),
		tmp:       make([]T, n),
		hdx:       make([]T, n),
		atdy:      make([]T, n),
		ctdz:      make([]T, n),
		adx:       make([]T, mEq),
		cdx:       make([]T, mIn),
		alphas:    make([]T, 0, 2*mIn),
		activeLo:  make([]bool, mIn),
		activeUp:  make([]bool, mIn),
		newActive: make([]bool, mIn),
	}
}

// New creates a solver for problems with n variables, mEq equality and mIn
// inequality constraints. The model is installed later by Init.
func New[T constraints.Float](n, mEq, mIn int) (*QP[T], error) {
	switch {
	case n <= 0:
		return nil, errors.New("problem dimension must greater than 0")
	case mEq < 0 || mIn < 0:
		return nil, errors.New("constraint number must not less than 0")
	}
	q := &QP[T]{
		Settings: DefaultSettings[T](),
		Results:  newResults[T](n, mEq, mIn),
		n:        n,
		mEq:      mEq,
		mIn:      mIn,
	}
	return q, nil
}

// NewWithSparsity creates a solver and performs the symbolic factorization
// from the sparsity patterns alone: hPattern is the upper triangle of H,
// aPattern and cPattern the mEq×n and mIn×n constraint patterns. A later
// Init with matching patterns reuses the symbolic analysis.
func NewWithSparsity[T constraints.Float](hPattern, aPattern, cPattern *sparse.Matrix[T]) (*QP[T], error) {
	n := hPattern.Cols
	var mEq, mIn int
	if aPattern != nil {
		mEq = aPattern.Rows
	}
	if cPattern != nil {
		mIn = cPattern.Rows
	}
	q, err := New[T](n, mEq, mIn)
	if err != nil {
		return nil, err
	}
	if err := q.install(hPattern, aPattern, cPattern); err != nil {
		return nil, err
	}
	q.fact = ldl.Analyze(q.kkt.mat, nil)
	return q, nil
}

// install validates the matrix arguments, stores unscaled copies and
// rebuilds the KKT container around fresh scaled copies.
func (q *QP[T]) install(h, a, c *sparse.Matrix[T]) error {
	if a == nil {
		a = sparse.NewMatrix[T](0, q.n, make([]int, q.n))
	}
	if c == nil {
		c = sparse.NewMatrix[T](0, q.n, make([]int, q.n))
	}
	switch {
	case h == nil || h.Rows != q.n || h.Cols != q.n:
		return errors.New("hessian dimension must equal to n")
	case a.Rows != q.mEq || a.Cols != q.n:
		return errors.New("equality matrix dimension not match")
	case c.Rows != q.mIn || c.Cols != q.n:
		return errors.New("inequality matrix dimension not match")
	}
	for j := 0; j < q.n; j++ {
		rows, _ := h.Col(j)
		for _, i := range rows {
			if i > j {
				return errors.New("hessian must store its upper triangle only")
			}
		}
	}

	q.h = h.Clone()
	q.at = a.Transpose()
	q.ct = c.Transpose()
	q.kkt = newKKT(q.h, q.at, q.ct)
	q.sc = ScaledQP[T]{
		H: q.kkt.h, AT: q.kkt.at, CT: q.kkt.ct,
		G: make([]T, q.n), B: make([]T, q.mEq),
		L: make([]T, q.mIn), U: make([]T, q.mIn),
	}
	return nil
}

// Init installs the model, equilibrates it when computePrecond is set, and
// performs the numeric setup. Optional proximal overrides come through
// params; pass Unset to keep the defaults.
//
// H must hold the upper triangle of the Hessian; A and C are the mEq×n and
// mIn×n constraint matrices (nil stands for an empty block). Infinite
// bounds are represented by suitably large finite magnitudes.
func (q *QP[T]) Init(h *sparse.Matrix[T], g []T, a *sparse.Matrix[T], b []T,
	c *sparse.Matrix[T], l, u []T, computePrecond bool, params ProxParams[T]) error {

	var start time.Time
	if q.Settings.ComputeTimings {
		start = time.Now()
	}

	switch {
	case len(g) != q.n:
		return errors.New("gradient size must equal to n")
	case len(b) != q.mEq:
		return errors.New("equality target size not match")
	case len(l) != q.mIn || len(u) != q.mIn:
		return errors.New("bound size not match")
	}
	for i := range l {
		if l[i] > u[i] {
			return errors.New("bound range has no feasible solution")
		}
	}

	// reuse the symbolic factorization when the patterns did not move
	symbolic := q.fact != nil && q.h != nil && h != nil &&
		q.h.SameStructure(h) && sameTransposed(q.at, a) && sameTransposed(q.ct, c)

	if err := q.install(h, a, c); err != nil {
		return err
	}
	q.g = append(q.g[:0], g...)
	q.b = append(q.b[:0], b...)
	q.l = append(q.l[:0], l...)
	q.u = append(q.u[:0], u...)

	if !symbolic {
		q.fact = ldl.Analyze(q.kkt.mat, nil)
	}

	if computePrecond {
		q.precond = NewRuiz[T](q.n, q.mEq, q.mIn)
	} else {
		q.precond = Identity[T]{}
	}
	q.rescale(true)

	q.normG = sparse.InfNorm(q.g)
	q.normB = sparse.InfNorm(q.b)
	q.normL = sparse.InfNorm(q.l)
	q.normU = sparse.InfNorm(q.u)

	q.ws = newWorkspace[T](q.n, q.mEq, q.mIn)
	q.Results.coldStart(params)
	q.ready = true

	if q.Settings.ComputeTimings {
		q.Results.Info.SetupTime = float64(time.Since(start).Microseconds())
		q.Results.Info.RunTime = q.Results.Info.SetupTime
	}
	return nil
}

// rescale refreshes the scaled model from the unscaled copies, recomputing
// the equilibration when compute is set and reapplying the stored one
// otherwise.
func (q *QP[T]) rescale(compute bool) {
	q.kkt.setValues(q.h, q.at, q.ct)
	copy(q.sc.G, q.g)
	copy(q.sc.B, q.b)
	copy(q.sc.L, q.l)
	copy(q.sc.U, q.u)
	if compute {
		q.precond.ScaleQP(&q.sc)
	} else {
		q.precond.RescaleQP(&q.sc)
	}
}

// sameTransposed reports whether the stored transposed block at matches the
// untransposed argument structurally. A nil argument stands for an empty
// block and matches only a stored block without entries.
func sameTransposed[T constraints.Float](at *sparse.Matrix[T], m *sparse.Matrix[T]) bool {
	if m == nil {
		return at == nil || at.Nnz() == 0
	}
	return at != nil && at.SameStructure(m.Transpose())
}

// Update overwrites parts of the model in place. Nil arguments keep the
// installed data. When every supplied matrix has the sparsity pattern
// installed at setup the update is purely numeric: values are overwritten,
// the model is re-equilibrated and the factorization is reset without a new
// symbolic analysis. A pattern change falls back to a full Init. Proximal
// parameters are preserved unless params overrides them.
func (q *QP[T]) Update(h *sparse.Matrix[T], g []T, a *sparse.Matrix[T], b []T,
	c *sparse.Matrix[T], l, u []T, updatePrecond bool, params ProxParams[T]) error {

	if !q.ready {
		return errors.New("model is not installed")
	}

	sameH := h == nil || q.h.SameStructure(h)
	sameA := a == nil || sameTransposed(q.at, a)
	sameC := c == nil || sameTransposed(q.ct, c)

	if !sameH || !sameA || !sameC {
		// pattern change: rebuild everything, keeping unchanged blocks
		nh, na, nc := q.h, q.at.Transpose(), q.ct.Transpose()
		if h != nil {
			nh = h
		}
		if a != nil {
			na = a
		}
		if c != nil {
			nc = c
		}
		ng, nb, nl, nu := q.g, q.b, q.l, q.u
		if g != nil {
			ng = g
		}
		if b != nil {
			nb = b
		}
		if l != nil {
			nl = l
		}
		if u != nil {
			nu = u
		}
		_, isRuiz := q.precond.(*Ruiz[T])
		return q.Init(nh, ng, na, nb, nc, nl, nu, isRuiz, params)
	}

	if h != nil {
		for j := 0; j < q.n; j++ {
			_, dst := q.h.Col(j)
			_, src := h.Col(j)
			copy(dst, src)
		}
	}
	if a != nil {
		q.at = a.Transpose()
	}
	if c != nil {
		q.ct = c.Transpose()
	}
	if g != nil {
		copy(q.g, g)
	}
	if b != nil {
		copy(q.b, b)
	}
	if l != nil {
		copy(q.l, l)
	}
	if u != nil {
		copy(q.u, u)
	}
	for i := range q.l {
		if q.l[i] > q.u[i] {
			return errors.New("bound range has no feasible solution")
		}
	}

	q.rescale(updatePrecond)

	q.normG = sparse.InfNorm(q.g)
	q.normB = sparse.InfNorm(q.b)
	q.normL = sparse.InfNorm(q.l)
	q.normU = sparse.InfNorm(q.u)

	if !isNaN(params.Rho) {
		q.Results.Info.Rho = params.Rho
	}
	if !isNaN(params.MuEq) {
		q.Results.Info.MuEq = params.MuEq
		q.Results.Info.MuEqInv = 1 / params.MuEq
	}
	if !isNaN(params.MuIn) {
		q.Results.Info.MuIn = params.MuIn
		q.Results.Info.MuInInv = 1 / params.MuIn
	}
	q.Results.clearStatistics()
	return nil
}

// Objective evaluates ½𝐱ᵀ𝐇𝐱 + 𝐠ᵀ𝐱 on the unscaled model.
func (q *QP[T]) Objective(x []T) T {
	tmp := q.ws.tmp
	sparse.Zero(tmp)
	q.h.SymMulAdd(tmp, x)
	return sparse.Dot(x, tmp)/2 + sparse.Dot(q.g, x)
}
