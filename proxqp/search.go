// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"math"
	"slices"

	"github.com/curioloop/proxqp/sparse"
)

// lineSearch finds the exact minimizer of the primal–dual merit function
// along the Newton direction. The merit gradient is piecewise affine in the
// step length α, with kinks where an inequality enters or leaves the
// predicted active set; walking the sorted positive breakpoints brackets
// the sign change and the root is read off the local affine piece.
func (s *solveCtx[T]) lineSearch(dx, dy, dz []T) T {
	ws := s.ws

	// breakpoints: step lengths at which a shifted inequality residual
	// crosses zero along the direction
	alphas := ws.alphas[:0]
	for i := 0; i < s.mIn; i++ {
		if ws.cdx[i] == 0 {
			continue
		}
		if a := -ws.rInLo[i] / ws.cdx[i]; a > 0 {
			alphas = append(alphas, a)
		}
		if a := -ws.rInUp[i] / ws.cdx[i]; a > 0 {
			alphas = append(alphas, a)
		}
	}
	ws.alphas = alphas[:0]
	slices.Sort(alphas)
	alphas = slices.Compact(alphas)

	if len(alphas) == 0 || alphas[0] > 1 {
		return 1
	}

	// gradient pieces independent of the active mask
	aConst := sparse.Dot(dx, ws.hdx) +
		s.rho*sparse.SqNorm(dx) +
		s.muEq*sparse.SqNorm(ws.adx)
	bConst := sparse.Dot(s.x, ws.hdx) + sparse.Dot(s.qp.sc.G, dx)
	for i := 0; i < s.n; i++ {
		bConst += s.rho * (s.x[i] - ws.xPrev[i]) * dx[i]
	}
	for i := 0; i < s.mEq; i++ {
		r := s.muEq*ws.adx[i] - dy[i]
		aConst += r * r / s.muEq
		bConst += ws.adx[i]*(s.muEq*ws.rEq[i]+s.y[i]) + ws.rEq[i]*r
	}

	grad := func(alpha T) (a, b, g T) {
		a, b = aConst, bConst
		for i := 0; i < s.mIn; i++ {
			lo := ws.rInLo[i] + alpha*ws.cdx[i]
			up := ws.rInUp[i] + alpha*ws.cdx[i]
			var cda, zt, dza T
			if lo < 0 || up > 0 {
				cda = ws.cdx[i]
				dza = dz[i]
			}
			if lo < 0 {
				zt += ws.rInLo[i]
			}
			if up > 0 {
				zt += ws.rInUp[i]
			}
			r := s.muIn*cda - dza
			a += s.muIn*cda*cda + r*r/s.muIn
			b += s.muIn*cda*zt + (zt-s.z[i]/s.muIn)*r
		}
		return a, b, a*alpha + b
	}

	inf := T(math.Inf(1))
	lastNegGrad, alphaLastNeg := T(0), T(0)
	firstPosGrad, alphaFirstPos := T(0), inf

	for _, ac := range alphas {
		_, _, g := grad(ac)
		if g < 0 {
			alphaLastNeg, lastNegGrad = ac, g
		} else {
			firstPosGrad, alphaFirstPos = g, ac
			break
		}
	}
	if alphaLastNeg == 0 {
		_, _, lastNegGrad = grad(0)
	}

	if alphaFirstPos == inf {
		// still descending past the last breakpoint: minimize the final
		// affine piece directly
		a, b, _ := grad(2*alphaLastNeg + 1)
		return -b / a
	}
	alpha := alphaLastNeg - lastNegGrad*(alphaFirstPos-alphaLastNeg)/(firstPosGrad-lastNegGrad)
	if alphaLastNeg == 0 && alphaFirstPos < 1 {
		alpha = alphaFirstPos
	}
	return alpha
}
