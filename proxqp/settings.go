// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"math"
	"os"

	"golang.org/x/exp/constraints"
)

// Settings collects the tunable parameters of the solver. The zero value is
// not usable; start from DefaultSettings.
//
// The penalty parameters μ are handled internally in their inverse
// convention (the solver iterates on μ_eq⁻¹ and μ_in⁻¹, 1e3 and 1e1 by
// default, and places their negated reciprocals −μ_eq and −μ_in on the KKT
// diagonal); the caps and cold-reset
// values below follow that same internal convention, matching the defaults
// documented on each field.
type Settings[T constraints.Float] struct {
	// EpsAbs is the absolute accuracy on primal and dual residuals.
	EpsAbs T
	// EpsRel is the relative accuracy factor applied to the residual
	// reference norms. Zero disables the relative part.
	EpsRel T
	// MaxIter bounds the number of outer iterations.
	MaxIter int
	// MaxIterIn bounds the number of Newton steps per outer iteration.
	MaxIterIn int
	// AlphaBCL and BetaBCL drive the BCL tolerance schedule.
	AlphaBCL, BetaBCL T
	// MuUpdateFactor multiplies the penalties on a rejected BCL step.
	MuUpdateFactor T
	// MuMaxEq and MuMaxIn cap the penalties (internal convention).
	MuMaxEq, MuMaxIn T
	// ColdResetMuEq and ColdResetMuIn are the penalties installed by a
	// cold reset (internal convention).
	ColdResetMuEq, ColdResetMuIn T
	// EpsRefact is the relative tolerance on factorization coherence.
	EpsRefact T
	// NbIterativeRefinement bounds the refinement passes per KKT solve.
	NbIterativeRefinement int
	// RefactorDualFeasibilityThreshold and RefactorRhoThreshold schedule
	// proximal refactorizations; the BCL schedule implemented here keeps ρ
	// fixed, so they are observational.
	RefactorDualFeasibilityThreshold T
	RefactorRhoThreshold             T
	// EpsPrimalInf and EpsDualInf are the infeasibility detection
	// tolerances; certificates are out of scope and the thresholds are
	// observational.
	EpsPrimalInf, EpsDualInf T
	// WarmStart keeps the current iterates instead of the unconstrained
	// initial guess when Solve is called without explicit warm data.
	WarmStart bool
	// Verbose enables iteration traces on the Logger.
	Verbose bool
	// ComputeTimings records setup and solve wall times in Info.
	ComputeTimings bool
	// Logger receives the traces when Verbose is set.
	Logger Logger
}

// DefaultSettings returns the documented defaults.
func DefaultSettings[T constraints.Float]() Settings[T] {
	return Settings[T]{
		EpsAbs:                           1e-9,
		EpsRel:                           0,
		MaxIter:                          10000,
		MaxIterIn:                        1500,
		AlphaBCL:                         0.1,
		BetaBCL:                          0.9,
		MuUpdateFactor:                   10,
		MuMaxEq:                          1e10,
		MuMaxIn:                          1e8,
		ColdResetMuEq:                    1.1,
		ColdResetMuIn:                    1.1,
		EpsRefact:                        1e-6,
		NbIterativeRefinement:            5,
		RefactorDualFeasibilityThreshold: 1e-2,
		RefactorRhoThreshold:             1e-7,
		EpsPrimalInf:                     1e-4,
		EpsDualInf:                       1e-4,
		WarmStart:                        false,
		Verbose:                          false,
		ComputeTimings:                   false,
		Logger:                           Logger{Level: LogNoop, Msg: os.Stdout},
	}
}

// ProxParams overrides the proximal parameters of Init, Update or a cold
// start. NaN fields keep the current values. MuEq and MuIn are given in the
// penalty convention of Info (defaults 1e-3 and 1e-1).
type ProxParams[T constraints.Float] struct {
	Rho, MuEq, MuIn T
}

// Unset returns ProxParams with every field unset.
func Unset[T constraints.Float]() ProxParams[T] {
	nan := T(math.NaN())
	return ProxParams[T]{Rho: nan, MuEq: nan, MuIn: nan}
}
