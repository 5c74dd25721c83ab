// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"github.com/curioloop/proxqp/sparse"
)

// newton runs the primal–dual semi-smooth Newton loop until the inner
// tolerance η_in is met, the step collapses, or the step budget runs out.
//
// The residual caches rDual, rEq, rInLo, rInUp enter in their shifted form
// and are maintained incrementally by axpy after every accepted step; they
// are never recomputed from scratch inside the loop.
func (s *solveCtx[T]) newton(outerIter int) {
	set, ws, qp := s.set, s.ws, s.qp
	n, mEq, mIn := s.n, s.mEq, s.mIn
	log := &set.Logger

	for inner := 0; inner < set.MaxIterIn; inner++ {
		qp.Results.Info.Iter++

		// semi-smooth prediction of the active set at the current point
		for i := 0; i < mIn; i++ {
			ws.activeLo[i] = ws.rInLo[i] <= 0
			ws.activeUp[i] = ws.rInUp[i] >= 0
			ws.newActive[i] = ws.activeLo[i] || ws.activeUp[i]
		}

		// sync the factorization with the prediction, then settle the
		// incremental updates with one full numeric refactorization
		changed := false
		for i := 0; i < mIn; i++ {
			if ws.newActive[i] && !s.active[i] {
				qp.kkt.activate(i, qp.fact, s.muIn, s.active)
				changed = true
			} else if !ws.newActive[i] && s.active[i] {
				qp.kkt.deactivate(i, qp.fact, s.active)
				changed = true
			}
		}
		if changed {
			s.refactorize()
		}

		// Newton right-hand side
		rhs := ws.rhs
		for i := 0; i < n; i++ {
			rhs[i] = -ws.rDual[i]
		}
		for i := 0; i < mEq; i++ {
			rhs[n+i] = -ws.rEq[i]
		}
		for i := 0; i < mIn; i++ {
			switch {
			case ws.activeUp[i]:
				rhs[n+mEq+i] = s.z[i]/s.muIn - ws.rInUp[i]
			case ws.activeLo[i]:
				rhs[n+mEq+i] = s.z[i]/s.muIn - ws.rInLo[i]
			default:
				rhs[n+mEq+i] = -s.z[i]
				// the dual cache carries the full Cᵀz; restore the
				// inactive part on the right-hand side
				rows, vals := qp.kkt.ct.Col(i)
				for k, r := range rows {
					rhs[r] += s.z[i] * vals[k]
				}
			}
		}

		s.solveRefined(rhs, set.NbIterativeRefinement)
		dx, dy, dz := rhs[:n], rhs[n:n+mEq], rhs[n+mEq:]

		sparse.Zero(ws.hdx)
		qp.kkt.h.SymMulAdd(ws.hdx, dx)
		sparse.Zero(ws.adx)
		qp.kkt.at.TransMulAdd(ws.adx, dx)
		sparse.Zero(ws.atdy)
		qp.kkt.at.MulAdd(ws.atdy, dy)
		sparse.Zero(ws.cdx)
		qp.kkt.ct.TransMulAdd(ws.cdx, dx)
		sparse.Zero(ws.ctdz)
		qp.kkt.ct.MulAdd(ws.ctdz, dz)

		alpha := T(1)
		if mIn > 0 {
			alpha = s.lineSearch(dx, dy, dz)
		}

		if set.Verbose && log.enable(LogInner) {
			log.log("  inner %4d: alpha=%.3e |dw|=%.3e\n",
				inner, float64(alpha), float64(sparse.InfNorm(rhs)))
		}

		if alpha*sparse.InfNorm(rhs) < 1e-11 && outerIter > 0 {
			return
		}

		sparse.Axpy(alpha, dx, s.x)
		sparse.Axpy(alpha, dy, s.y)
		sparse.Axpy(alpha, dz, s.z)

		for i := 0; i < n; i++ {
			ws.rDual[i] += alpha * (ws.hdx[i] + ws.atdy[i] + ws.ctdz[i] + s.rho*dx[i])
		}
		for i := 0; i < mEq; i++ {
			ws.rEq[i] += alpha * (ws.adx[i] - dy[i]/s.muEq)
		}
		for i := 0; i < mIn; i++ {
			ws.rInLo[i] += alpha * ws.cdx[i]
			ws.rInUp[i] += alpha * ws.cdx[i]
		}

		var errIn T
		for i := 0; i < mIn; i++ {
			v := negPart(ws.rInLo[i]) + posPart(ws.rInUp[i]) - s.z[i]/s.muIn
			if a := abs(v); a > errIn {
				errIn = a
			}
		}
		if v := sparse.InfNorm(ws.rEq); v > errIn {
			errIn = v
		}
		if v := sparse.InfNorm(ws.rDual); v > errIn {
			errIn = v
		}
		if errIn <= s.etaIn {
			return
		}
	}
}
