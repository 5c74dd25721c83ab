// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"time"

	"golang.org/x/exp/constraints"

	"github.com/curioloop/proxqp/sparse"
)

// solveCtx carries the state of one Solve call: the scaled iterates, the
// penalty parameters, the residual caches and the feasibility reference
// norms of the current iteration.
type solveCtx[T constraints.Float] struct {
	qp  *QP[T]
	set *Settings[T]
	ws  *workspace[T]

	n, mEq, mIn, nTot int

	x, y, z []T
	active  []bool

	rho, muEq, muIn T

	etaExtInit, etaExt, etaIn, epsInMin T

	// per-iteration reference norms for the relative tolerances
	eqRhs0, inRhs0            T
	duaRhs0, duaRhs1, duaRhs3 T
}

// Solve runs the outer loop to convergence or exhaustion of the iteration
// budget. The starting point is the unconstrained proximal minimum unless
// Settings.WarmStart keeps the current iterates.
func (q *QP[T]) Solve() {
	q.solve(q.Settings.WarmStart)
}

// SolveWarmStart runs Solve from the supplied iterates; nil slices keep the
// matching current values.
func (q *QP[T]) SolveWarmStart(x, y, z []T) {
	if x != nil {
		copy(q.Results.X, x)
	}
	if y != nil {
		copy(q.Results.Y, y)
	}
	if z != nil {
		copy(q.Results.Z, z)
	}
	q.solve(true)
}

func (q *QP[T]) solve(warm bool) {
	if !q.ready {
		panic("model is not installed")
	}
	var start time.Time
	if q.Settings.ComputeTimings {
		start = time.Now()
	}
	setupTime := q.Results.Info.SetupTime
	q.Results.clearStatistics()
	q.Results.Info.SetupTime = setupTime

	s := &solveCtx[T]{
		qp: q, set: &q.Settings, ws: &q.ws,
		n: q.n, mEq: q.mEq, mIn: q.mIn, nTot: q.n + q.mEq + q.mIn,
		x: q.Results.X, y: q.Results.Y, z: q.Results.Z,
		active: q.Results.Active,
		rho:    q.Results.Info.Rho,
		muEq:   q.Results.Info.MuEqInv,
		muIn:   q.Results.Info.MuInInv,
	}
	s.etaExtInit = pow(T(0.1), q.Settings.AlphaBCL)
	s.etaExt = s.etaExtInit
	s.etaIn = 1
	s.epsInMin = q.Settings.EpsAbs
	if s.epsInMin > 1e-9 {
		s.epsInMin = 1e-9
	}

	q.kkt.reset(s.active)
	s.refactorize()

	if warm {
		q.precond.ScalePrimal(s.x)
		q.precond.ScaleDualEq(s.y)
		q.precond.ScaleDualIn(s.z)
	} else {
		// proximal-regularized unconstrained minimum as initial guess
		rhs := q.ws.rhs
		for i := 0; i < s.n; i++ {
			rhs[i] = -q.sc.G[i]
		}
		copy(rhs[s.n:s.n+s.mEq], q.sc.B)
		sparse.Zero(rhs[s.n+s.mEq:])
		s.solveRefined(rhs, 2*q.Settings.NbIterativeRefinement)
		copy(s.x, rhs[:s.n])
		copy(s.y, rhs[s.n:s.n+s.mEq])
		copy(s.z, rhs[s.n+s.mEq:])
	}

	s.run()

	q.precond.UnscalePrimal(s.x)
	q.precond.UnscaleDualEq(s.y)
	q.precond.UnscaleDualIn(s.z)

	info := &q.Results.Info
	info.MuEqInv = s.muEq
	info.MuEq = 1 / s.muEq
	info.MuInInv = s.muIn
	info.MuIn = 1 / s.muIn
	info.Rho = s.rho
	info.ObjValue = q.Objective(s.x)
	info.PriRes, info.DuaRes = q.unscaledResiduals()

	if q.Settings.ComputeTimings {
		info.SolveTime = float64(time.Since(start).Microseconds())
		info.RunTime = info.SetupTime + info.SolveTime
	}
}

// run is the BCL proximal loop of the solver.
func (s *solveCtx[T]) run() {
	set, ws := s.set, s.ws
	log := &set.Logger

	for iter := 0; iter < set.MaxIter; iter++ {
		newMuEq, newMuIn := s.muEq, s.muIn

		priLhs := s.unscaledPrimalResidual()
		duaLhs := s.unscaledDualResidual()

		if set.Verbose && log.enable(LogOuter) {
			log.log("outer %4d: mu_eq=%.1e mu_in=%.1e pri=%.3e dua=%.3e eta_ext=%.1e\n",
				iter, float64(1/s.muEq), float64(1/s.muIn), float64(priLhs), float64(duaLhs), float64(s.etaExt))
		}

		if s.primalFeasible(priLhs) && s.dualFeasible(duaLhs) {
			s.qp.Results.Info.Status = Solved
			return
		}

		copy(ws.xPrev, s.x)
		copy(ws.yPrev, s.y)
		copy(ws.zPrev, s.z)

		// shift the inequality residuals into their semi-smooth form:
		// rInUp currently holds the scaled C·x from the feasibility pass
		for i := 0; i < s.mIn; i++ {
			shifted := ws.rInUp[i] + ws.zPrev[i]/s.muIn
			ws.rInLo[i] = shifted - s.qp.sc.L[i]
			ws.rInUp[i] = shifted - s.qp.sc.U[i]
		}

		s.qp.Results.Info.IterExt++
		s.newton(iter)

		priNew := s.unscaledPrimalResidual()
		duaNew := s.unscaledDualResidual()
		if s.primalFeasible(priNew) && s.dualFeasible(duaNew) {
			s.qp.Results.Info.Status = Solved
			return
		}

		// BCL parameter update: tighten on sufficient primal progress,
		// otherwise reject the dual step and stiffen the penalties
		if priNew <= s.etaExt {
			s.etaExt *= pow(s.muIn, -set.BetaBCL)
			s.etaIn = s.etaIn / s.muIn
			if s.etaIn < s.epsInMin {
				s.etaIn = s.epsInMin
			}
		} else {
			copy(s.y, ws.yPrev)
			copy(s.z, ws.zPrev)
			newMuIn = s.muIn * set.MuUpdateFactor
			if newMuIn > set.MuMaxIn {
				newMuIn = set.MuMaxIn
			}
			newMuEq = s.muEq * set.MuUpdateFactor
			if newMuEq > set.MuMaxEq {
				newMuEq = set.MuMaxEq
			}
			s.etaExt = s.etaExtInit / pow(newMuIn, set.AlphaBCL)
			s.etaIn = 1 / newMuIn
			if s.etaIn < s.epsInMin {
				s.etaIn = s.epsInMin
			}
		}

		duaNew = s.unscaledDualResidual()

		// cold reset when both residuals stalled at a stiff penalty
		if priNew >= priLhs && duaNew >= duaLhs && s.muIn >= 1e5 {
			newMuIn = set.ColdResetMuIn
			newMuEq = set.ColdResetMuEq
		}

		if s.muEq != newMuEq || s.muIn != newMuIn {
			s.muEq = newMuEq
			s.muIn = newMuIn
			s.qp.Results.Info.MuUpdates++
			s.refactorize()
		}
	}
}

// refactorize rebuilds the penalty diagonal for the current active set and
// performs a full numeric factorization of the live KKT pattern.
func (s *solveCtx[T]) refactorize() {
	s.qp.kkt.diagonal(s.ws.diag, s.rho, s.muEq, s.muIn, s.active)
	s.qp.fact.Factor(s.qp.kkt.mat, s.ws.diag)
}

// solveRefined overwrites rhs with an iteratively refined solution of
// K·x = rhs, stopping early once the residual stops decreasing.
func (s *solveCtx[T]) solveRefined(rhs []T, passes int) {
	ws := s.ws
	sol, res := ws.sol[:s.nTot], ws.res[:s.nTot]
	sparse.Zero(sol)

	prev := T(0)
	first := true
	for it := 0; it < passes; it++ {
		for i := range res {
			res[i] = -rhs[i]
		}
		if it > 0 {
			s.qp.kkt.mulAdd(res, sol, s.rho, s.muEq, s.muIn, s.active)
		}
		norm := sparse.InfNorm(res)
		if !first && norm > prev {
			break
		}
		first = false
		prev = norm
		s.qp.fact.SolveInPlace(res)
		for i := range sol {
			sol[i] -= res[i]
		}
	}
	copy(rhs, sol)
}

// primalFeasible applies the absolute plus relative stopping rule to an
// unscaled primal residual norm.
func (s *solveCtx[T]) primalFeasible(lhs T) bool {
	rhs := s.set.EpsAbs
	if s.set.EpsRel != 0 {
		ref := s.eqRhs0
		if s.inRhs0 > ref {
			ref = s.inRhs0
		}
		if s.qp.normB > ref {
			ref = s.qp.normB
		}
		if s.qp.normL > ref {
			ref = s.qp.normL
		}
		if s.qp.normU > ref {
			ref = s.qp.normU
		}
		rhs += s.set.EpsRel * ref
	}
	return lhs <= rhs
}

func (s *solveCtx[T]) dualFeasible(lhs T) bool {
	rhs := s.set.EpsAbs
	if s.set.EpsRel != 0 {
		ref := s.duaRhs0
		if s.duaRhs1 > ref {
			ref = s.duaRhs1
		}
		if s.duaRhs3 > ref {
			ref = s.duaRhs3
		}
		if s.qp.normG > ref {
			ref = s.qp.normG
		}
		rhs += s.set.EpsRel * ref
	}
	return lhs <= rhs
}

// unscaledPrimalResidual computes the unscaled primal feasibility norm and
// leaves the caches in their scaled form: rEq holds A·x − b and rInUp holds
// C·x, both scaled.
func (s *solveCtx[T]) unscaledPrimalResidual() T {
	qp, ws := s.qp, s.ws

	sparse.Zero(ws.rEq)
	qp.kkt.at.TransMulAdd(ws.rEq, s.x)
	sparse.Zero(ws.rInUp)
	qp.kkt.ct.TransMulAdd(ws.rInUp, s.x)

	qp.precond.UnscalePrimalResidualEq(ws.rEq)
	s.eqRhs0 = sparse.InfNorm(ws.rEq)
	qp.precond.UnscalePrimalResidualIn(ws.rInUp)
	s.inRhs0 = sparse.InfNorm(ws.rInUp)

	var eqLhs, inLhs T
	for i := 0; i < s.mIn; i++ {
		ci := ws.rInUp[i]
		v := posPart(ci-qp.u[i]) + negPart(ci-qp.l[i])
		ws.rInLo[i] = v
		if a := abs(v); a > inLhs {
			inLhs = a
		}
	}
	for i := 0; i < s.mEq; i++ {
		ws.rEq[i] -= qp.b[i]
		if a := abs(ws.rEq[i]); a > eqLhs {
			eqLhs = a
		}
	}
	lhs := eqLhs
	if inLhs > lhs {
		lhs = inLhs
	}

	qp.precond.ScalePrimalResidualEq(ws.rEq)
	qp.precond.ScalePrimalResidualIn(ws.rInUp)
	return lhs
}

// unscaledDualResidual computes the unscaled dual feasibility norm and
// leaves rDual holding the scaled H·x + g + Aᵀy + Cᵀz.
func (s *solveCtx[T]) unscaledDualResidual() T {
	qp, ws := s.qp, s.ws

	copy(ws.rDual, qp.sc.G)

	sparse.Zero(ws.tmp)
	qp.kkt.h.SymMulAdd(ws.tmp, s.x)
	sparse.Axpy(1, ws.tmp, ws.rDual)
	qp.precond.UnscaleDualResidual(ws.tmp)
	s.duaRhs0 = sparse.InfNorm(ws.tmp)

	sparse.Zero(ws.tmp)
	qp.kkt.at.MulAdd(ws.tmp, s.y)
	sparse.Axpy(1, ws.tmp, ws.rDual)
	qp.precond.UnscaleDualResidual(ws.tmp)
	s.duaRhs1 = sparse.InfNorm(ws.tmp)

	sparse.Zero(ws.tmp)
	qp.kkt.ct.MulAdd(ws.tmp, s.z)
	sparse.Axpy(1, ws.tmp, ws.rDual)
	qp.precond.UnscaleDualResidual(ws.tmp)
	s.duaRhs3 = sparse.InfNorm(ws.tmp)

	qp.precond.UnscaleDualResidual(ws.rDual)
	lhs := sparse.InfNorm(ws.rDual)
	qp.precond.ScaleDualResidual(ws.rDual)
	return lhs
}

// unscaledResiduals evaluates the reported residual norms on the unscaled
// model and iterates.
func (q *QP[T]) unscaledResiduals() (pri, dua T) {
	ws := &q.ws
	x, y, z := q.Results.X, q.Results.Y, q.Results.Z

	sparse.Zero(ws.rEq)
	q.at.TransMulAdd(ws.rEq, x)
	for i := range ws.rEq {
		if a := abs(ws.rEq[i] - q.b[i]); a > pri {
			pri = a
		}
	}
	sparse.Zero(ws.rInUp)
	q.ct.TransMulAdd(ws.rInUp, x)
	for i := range ws.rInUp {
		ci := ws.rInUp[i]
		if a := abs(posPart(ci-q.u[i]) + negPart(ci-q.l[i])); a > pri {
			pri = a
		}
	}

	sparse.Zero(ws.rDual)
	q.h.SymMulAdd(ws.rDual, x)
	sparse.Axpy(1, q.g, ws.rDual)
	q.at.MulAdd(ws.rDual, y)
	q.ct.MulAdd(ws.rDual, z)
	dua = sparse.InfNorm(ws.rDual)
	return
}
