// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"golang.org/x/exp/constraints"

	"github.com/curioloop/proxqp/sparse"
)

// Status reports how a solve terminated.
type Status int

const (
	// Solved both primal and dual residuals met the requested accuracy.
	Solved Status = iota
	// MaxIterReached the outer iteration budget ran out; the last
	// iterates are kept in the results.
	MaxIterReached
)

func (s Status) String() string {
	switch s {
	case Solved:
		return "solved"
	case MaxIterReached:
		return "max_iter_reached"
	}
	return "unknown"
}

// Info carries the statistics of the last solve.
type Info[T constraints.Float] struct {
	// final proximal parameters
	Rho     T
	MuEq    T
	MuEqInv T
	MuIn    T
	MuInInv T
	Nu      T

	// iteration counts
	Iter       int // total inner Newton steps
	IterExt    int // outer iterations that ran the inner solver
	MuUpdates  int
	RhoUpdates int

	Status Status

	// timings in microseconds, recorded when Settings.ComputeTimings is set
	SetupTime float64
	SolveTime float64
	RunTime   float64

	// unscaled objective and residual norms at termination
	ObjValue T
	PriRes   T
	DuaRes   T
}

// Results holds the iterates and statistics of the solver.
type Results[T constraints.Float] struct {
	X []T // primal solution
	Y []T // equality multipliers
	Z []T // inequality multipliers
	// Active flags the inequalities treated as equalities when the solver
	// stopped.
	Active []bool

	Info Info[T]
}

func newResults[T constraints.Float](n, mEq, mIn int) Results[T] {
	r := Results[T]{
		X:      make([]T, n),
		Y:      make([]T, mEq),
		Z:      make([]T, mIn),
		Active: make([]bool, mIn),
	}
	r.coldStart(Unset[T]())
	return r
}

// coldStart zeroes the iterates and restores the proximal parameters,
// honoring explicit overrides.
func (r *Results[T]) coldStart(params ProxParams[T]) {
	sparse.Zero(r.X)
	sparse.Zero(r.Y)
	sparse.Zero(r.Z)
	for i := range r.Active {
		r.Active[i] = false
	}
	if !isNaN(params.Rho) {
		r.Info.Rho = params.Rho
	} else {
		r.Info.Rho = 1e-6
	}
	if !isNaN(params.MuEq) {
		r.Info.MuEq = params.MuEq
		r.Info.MuEqInv = 1 / params.MuEq
	} else {
		r.Info.MuEq = 1e-3
		r.Info.MuEqInv = 1e3
	}
	if !isNaN(params.MuIn) {
		r.Info.MuIn = params.MuIn
		r.Info.MuInInv = 1 / params.MuIn
	} else {
		r.Info.MuIn = 1e-1
		r.Info.MuInInv = 1e1
	}
	r.Info.Nu = 1
	r.clearStatistics()
}

func (r *Results[T]) clearStatistics() {
	r.Info.Iter = 0
	r.Info.IterExt = 0
	r.Info.MuUpdates = 0
	r.Info.RhoUpdates = 0
	r.Info.SetupTime = 0
	r.Info.SolveTime = 0
	r.Info.RunTime = 0
	r.Info.ObjValue = 0
	r.Info.PriRes = 0
	r.Info.DuaRes = 0
	r.Info.Status = MaxIterReached
}
