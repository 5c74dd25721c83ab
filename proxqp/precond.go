// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"golang.org/x/exp/constraints"

	"github.com/curioloop/proxqp/sparse"
)

// ScaledQP groups the scaled model a Preconditioner operates on. H holds
// the upper triangle of the Hessian; AT and CT store the constraint
// matrices by columns (one column per constraint).
type ScaledQP[T constraints.Float] struct {
	H, AT, CT  *sparse.Matrix[T]
	G, B, L, U []T
}

// Preconditioner scales a QP in place and maps iterates and residuals
// between the scaled and the original space. The solver never assumes which
// implementation is installed.
type Preconditioner[T constraints.Float] interface {
	// ScaleQP equilibrates the model in place, recomputing the scaling.
	ScaleQP(qp *ScaledQP[T])
	// RescaleQP applies the previously computed scaling to fresh model
	// values without recomputing it.
	RescaleQP(qp *ScaledQP[T])

	ScalePrimal(x []T)
	UnscalePrimal(x []T)
	ScaleDualEq(y []T)
	UnscaleDualEq(y []T)
	ScaleDualIn(z []T)
	UnscaleDualIn(z []T)

	ScalePrimalResidualEq(r []T)
	UnscalePrimalResidualEq(r []T)
	ScalePrimalResidualIn(r []T)
	UnscalePrimalResidualIn(r []T)
	ScaleDualResidual(r []T)
	UnscaleDualResidual(r []T)
}

// Ruiz performs Ruiz equilibration of the QP: alternating row/column
// scalings that drive the infinity norms of every row of the symmetric KKT
// data towards one, followed by a cost normalization. See D. Ruiz,
// 'A scaling algorithm to equilibrate both rows and columns norms in
// matrices', 2001.
type Ruiz[T constraints.Float] struct {
	n, mEq, mIn int
	delta       []T // accumulated scaling, len n+mEq+mIn
	c           T   // accumulated cost scaling
	epsilon     T
	maxIter     int

	cur    []T // per-round scaling
	hNorm  []T
	aNorm  []T
	cNorm  []T
}

// NewRuiz returns a Ruiz preconditioner for the given dimensions with the
// default accuracy 1e-3 and round budget 10.
func NewRuiz[T constraints.Float](n, mEq, mIn int) *Ruiz[T] {
	r := &Ruiz[T]{
		n: n, mEq: mEq, mIn: mIn,
		delta:   make([]T, n+mEq+mIn),
		c:       1,
		epsilon: 1e-3,
		maxIter: 10,
		cur:     make([]T, n+mEq+mIn),
		hNorm:   make([]T, n),
		aNorm:   make([]T, n),
		cNorm:   make([]T, n),
	}
	for i := range r.delta {
		r.delta[i] = 1
	}
	return r
}

// ScaleQP equilibrates (H, Aᵀ, Cᵀ, g, b, l, u) in place and stores the
// accumulated primal/dual scalings and the cost scaling.
func (r *Ruiz[T]) ScaleQP(qp *ScaledQP[T]) {
	n, mEq, mIn := r.n, r.mEq, r.mIn
	for i := range r.delta {
		r.delta[i] = 1
	}
	r.c = 1

	eps := machEps[T]()
	delta := r.cur
	sparse.Zero(delta)

	for iter := 0; iter < r.maxIter; iter++ {
		var gap T
		for _, d := range delta {
			if g := abs(1 - d); g > gap {
				gap = g
			}
		}
		if gap <= r.epsilon {
			break
		}

		// per-row norms of the primal block, mirroring the upper triangle
		// of H and folding in the rows of Aᵀ and Cᵀ
		qp.H.SymInfNorms(r.hNorm)
		sparse.Zero(r.aNorm)
		qp.AT.RowInfNorms(r.aNorm)
		sparse.Zero(r.cNorm)
		qp.CT.RowInfNorms(r.cNorm)
		for j := 0; j < n; j++ {
			norm := r.hNorm[j]
			if r.aNorm[j] > norm {
				norm = r.aNorm[j]
			}
			if r.cNorm[j] > norm {
				norm = r.cNorm[j]
			}
			delta[j] = 1 / (eps + sqrt(norm))
		}
		// per-constraint norms: one column of Aᵀ (resp. Cᵀ) per row of A
		for j := 0; j < mEq; j++ {
			_, vals := qp.AT.Col(j)
			delta[n+j] = 1 / (eps + sqrt(sparse.InfNorm(vals)))
		}
		for j := 0; j < mIn; j++ {
			_, vals := qp.CT.Col(j)
			delta[n+mEq+j] = 1 / (eps + sqrt(sparse.InfNorm(vals)))
		}

		r.applyRound(qp, delta)

		// cost normalization towards a unit average Hessian column norm
		qp.H.SymInfNorms(r.hNorm)
		var avg T
		for j := 0; j < n; j++ {
			avg += r.hNorm[j]
		}
		if n > 0 {
			avg /= T(n)
		}
		gamma := T(1)
		if avg > 1 {
			gamma = 1 / avg
		}
		sparse.Scale(gamma, qp.G)
		sparse.Scale(gamma, qp.H.Val[qp.H.ColPtr[0]:qp.H.ColPtr[n]])

		for i := range r.delta {
			r.delta[i] *= delta[i]
		}
		r.c *= gamma
	}
}

// RescaleQP applies the stored scalings to freshly installed model values.
func (r *Ruiz[T]) RescaleQP(qp *ScaledQP[T]) {
	r.applyRound(qp, r.delta)
	sparse.Scale(r.c, qp.G)
	sparse.Scale(r.c, qp.H.Val[qp.H.ColPtr[0]:qp.H.ColPtr[r.n]])
}

// applyRound scales the model in place by one diagonal scaling.
func (r *Ruiz[T]) applyRound(qp *ScaledQP[T], delta []T) {
	n, mEq, mIn := r.n, r.mEq, r.mIn
	for j := 0; j < mEq; j++ {
		rows, vals := qp.AT.Col(j)
		dj := delta[n+j]
		for k, i := range rows {
			vals[k] *= delta[i] * dj
		}
	}
	for j := 0; j < mIn; j++ {
		rows, vals := qp.CT.Col(j)
		dj := delta[n+mEq+j]
		for k, i := range rows {
			vals[k] *= delta[i] * dj
		}
	}
	for j := 0; j < n; j++ {
		rows, vals := qp.H.Col(j)
		dj := delta[j]
		for k, i := range rows {
			if i > j {
				break
			}
			vals[k] *= delta[i] * dj
		}
	}
	for i := 0; i < n; i++ {
		qp.G[i] *= delta[i]
	}
	for i := 0; i < mEq; i++ {
		qp.B[i] *= delta[n+i]
	}
	for i := 0; i < mIn; i++ {
		qp.L[i] *= delta[n+mEq+i]
		qp.U[i] *= delta[n+mEq+i]
	}
}

func (r *Ruiz[T]) ScalePrimal(x []T) {
	for i := range x {
		x[i] /= r.delta[i]
	}
}

func (r *Ruiz[T]) UnscalePrimal(x []T) {
	for i := range x {
		x[i] *= r.delta[i]
	}
}

func (r *Ruiz[T]) ScaleDualEq(y []T) {
	for i := range y {
		y[i] = y[i] / r.delta[r.n+i] * r.c
	}
}

func (r *Ruiz[T]) UnscaleDualEq(y []T) {
	for i := range y {
		y[i] = y[i] * r.delta[r.n+i] / r.c
	}
}

func (r *Ruiz[T]) ScaleDualIn(z []T) {
	for i := range z {
		z[i] = z[i] / r.delta[r.n+r.mEq+i] * r.c
	}
}

func (r *Ruiz[T]) UnscaleDualIn(z []T) {
	for i := range z {
		z[i] = z[i] * r.delta[r.n+r.mEq+i] / r.c
	}
}

func (r *Ruiz[T]) ScalePrimalResidualEq(res []T) {
	for i := range res {
		res[i] *= r.delta[r.n+i]
	}
}

func (r *Ruiz[T]) UnscalePrimalResidualEq(res []T) {
	for i := range res {
		res[i] /= r.delta[r.n+i]
	}
}

func (r *Ruiz[T]) ScalePrimalResidualIn(res []T) {
	for i := range res {
		res[i] *= r.delta[r.n+r.mEq+i]
	}
}

func (r *Ruiz[T]) UnscalePrimalResidualIn(res []T) {
	for i := range res {
		res[i] /= r.delta[r.n+r.mEq+i]
	}
}

func (r *Ruiz[T]) ScaleDualResidual(res []T) {
	for i := range res {
		res[i] *= r.delta[i] * r.c
	}
}

func (r *Ruiz[T]) UnscaleDualResidual(res []T) {
	for i := range res {
		res[i] /= r.delta[i] * r.c
	}
}

// Identity is the no-op preconditioner.
type Identity[T constraints.Float] struct{}

func (Identity[T]) ScaleQP(*ScaledQP[T])        {}
func (Identity[T]) RescaleQP(*ScaledQP[T])      {}
func (Identity[T]) ScalePrimal([]T)             {}
func (Identity[T]) UnscalePrimal([]T)           {}
func (Identity[T]) ScaleDualEq([]T)             {}
func (Identity[T]) UnscaleDualEq([]T)           {}
func (Identity[T]) ScaleDualIn([]T)             {}
func (Identity[T]) UnscaleDualIn([]T)           {}
func (Identity[T]) ScalePrimalResidualEq([]T)   {}
func (Identity[T]) UnscalePrimalResidualEq([]T) {}
func (Identity[T]) ScalePrimalResidualIn([]T)   {}
func (Identity[T]) UnscalePrimalResidualIn([]T) {}
func (Identity[T]) ScaleDualResidual([]T)       {}
func (Identity[T]) UnscaleDualResidual([]T)     {}
