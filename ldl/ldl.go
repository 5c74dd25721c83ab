// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ldl maintains an 𝐋𝐃𝐋ᵀ factorization of a sparse symmetric
// indefinite matrix under a fixed fill-reducing permutation 𝐏, so that
// 𝐋𝐃𝐋ᵀ = 𝐏𝐊𝐏ᵀ holds between operations.
//
// The factor is stored column-wise in the uncompressed convention of package
// sparse: column capacities are fixed once by Analyze from the fullest
// pattern the matrix can take, while live per-column counts evolve under
// numeric refactorization, rank-one updates and row insertion or deletion.
// Each column stores its diagonal entry of 𝐃 first (with row index equal to
// the column index) followed by the strictly-lower entries of the unit
// triangular 𝐋 in ascending row order.
package ldl

import (
	"golang.org/x/exp/constraints"

	"github.com/curioloop/proxqp/sparse"
)

// Factorization holds the factor storage, the elimination tree and the
// scratch areas sized once by Analyze. A Factorization is not safe for
// concurrent use.
type Factorization[T constraints.Float] struct {
	n int

	perm    []int // permuted position -> original index
	permInv []int // original index -> permuted position

	colPtr []int // fixed column capacities, len n+1
	colNnz []int // live entries per column (diagonal included)
	rowInd []int
	values []T
	etree  []int // parent per column, -1 at a root

	// permuted upper-triangular copy of the source, rebuilt by Factor
	aColPtr []int
	aRowInd []int
	aVal    []T

	// scratch, all of length n
	flag    []int
	pattern []int
	stack   []int
	work    []T
	wrows   []int
	wnext   []int
	mark    []bool
}

// N returns the order of the factorized matrix.
func (f *Factorization[T]) N() int { return f.n }

// Nnz returns the number of live entries of the factor, diagonal included.
func (f *Factorization[T]) Nnz() (nnz int) {
	for _, c := range f.colNnz {
		nnz += c
	}
	return
}

// Analyze performs the symbolic factorization of the symmetric matrix whose
// upper triangle is stored in pattern, under the fixed permutation perm
// (natural order when perm is nil). The full column capacities of pattern,
// not its live counts, define the symbolic pattern, so that every later
// numeric factorization of a live subset fits the allocated columns.
func Analyze[T constraints.Float](pattern *sparse.Matrix[T], perm []int) *Factorization[T] {
	n := pattern.Cols
	if pattern.Rows != n {
		panic("pattern must be square")
	}
	if perm != nil && len(perm) != n {
		panic("permutation size must equal to n")
	}

	f := &Factorization[T]{
		n:       n,
		perm:    make([]int, n),
		permInv: make([]int, n),
		colPtr:  make([]int, n+1),
		colNnz:  make([]int, n),
		etree:   make([]int, n),
		aColPtr: make([]int, n+1),
		flag:    make([]int, n),
		pattern: make([]int, n),
		stack:   make([]int, n),
		work:    make([]T, n),
		wrows:   make([]int, 0, n),
		wnext:   make([]int, 0, n),
		mark:    make([]bool, n),
	}
	for i := 0; i < n; i++ {
		f.perm[i] = i
		f.permInv[i] = i
	}
	if perm != nil {
		copy(f.perm, perm)
		for i, p := range perm {
			f.permInv[p] = i
		}
	}

	nnzMax := pattern.ColPtr[n]
	f.aRowInd = make([]int, nnzMax)
	f.aVal = make([]T, nnzMax)

	// permuted full pattern, then the elimination tree and the per-column
	// counts of L in one flag-guided pass
	f.permuteUpper(pattern, false)

	lnz := f.stack
	for k := 0; k < n; k++ {
		f.etree[k] = -1
		f.flag[k] = -1
		lnz[k] = 0
	}
	for k := 0; k < n; k++ {
		f.flag[k] = k
		for p := f.aColPtr[k]; p < f.aColPtr[k+1]; p++ {
			i := f.aRowInd[p]
			for j := i; f.flag[j] != k; j = f.etree[j] {
				if f.etree[j] == -1 {
					f.etree[j] = k
				}
				lnz[j]++
				f.flag[j] = k
			}
		}
	}

	for j := 0; j < n; j++ {
		f.colPtr[j+1] = f.colPtr[j] + 1 + lnz[j]
	}
	f.rowInd = make([]int, f.colPtr[n])
	f.values = make([]T, f.colPtr[n])
	return f
}

// permuteUpper rebuilds the permuted upper-triangular copy of m. With live
// set, only the live entries of each column take part; otherwise the full
// column capacities do. Entries (i,j) of the stored upper triangle land at
// (min, max) of their permuted positions, so the copy stays upper.
func (f *Factorization[T]) permuteUpper(m *sparse.Matrix[T], live bool) {
	n := f.n
	count := f.stack
	for j := 0; j <= n; j++ {
		f.aColPtr[j] = 0
	}
	for j := 0; j < n; j++ {
		count[j] = 0
	}

	colEnd := func(j int) int {
		if live {
			return m.End(j)
		}
		return m.ColPtr[j+1]
	}

	for j := 0; j < n; j++ {
		pj := f.permInv[j]
		for p := m.ColPtr[j]; p < colEnd(j); p++ {
			pi := f.permInv[m.RowInd[p]]
			if pi > pj {
				count[pi]++
			} else {
				count[pj]++
			}
		}
	}
	for j := 0; j < n; j++ {
		f.aColPtr[j+1] = f.aColPtr[j] + count[j]
		count[j] = f.aColPtr[j]
	}
	for j := 0; j < n; j++ {
		pj := f.permInv[j]
		for p := m.ColPtr[j]; p < colEnd(j); p++ {
			pi := f.permInv[m.RowInd[p]]
			c, r := pj, pi
			if pi > pj {
				c, r = pi, pj
			}
			f.aRowInd[count[c]] = r
			f.aVal[count[c]] = m.Val[p]
			count[c]++
		}
	}
}

// Factor performs the numeric factorization of the live entries of m plus
// the external diagonal shift diag (given in the unpermuted ordering), so
// that afterwards 𝐋𝐃𝐋ᵀ = 𝐏(𝐌+diag)𝐏ᵀ. The elimination tree is recomputed
// for the live pattern first, exactly as a fresh symbolic pass would, which
// keeps inactive columns down to their bare diagonal.
func (f *Factorization[T]) Factor(m *sparse.Matrix[T], diag []T) {
	n := f.n
	if m.Cols != n || m.Rows != n || len(diag) < n {
		panic("factor dimension not match symbolic")
	}

	f.permuteUpper(m, true)

	// elimination tree of the live pattern
	for k := 0; k < n; k++ {
		f.etree[k] = -1
		f.flag[k] = -1
	}
	for k := 0; k < n; k++ {
		f.flag[k] = k
		for p := f.aColPtr[k]; p < f.aColPtr[k+1]; p++ {
			i := f.aRowInd[p]
			for j := i; f.flag[j] != k; j = f.etree[j] {
				if f.etree[j] == -1 {
					f.etree[j] = k
				}
				f.flag[j] = k
			}
		}
	}

	// up-looking numeric pass
	for k := 0; k < n; k++ {
		f.flag[k] = -1
		f.work[k] = 0
	}
	y := f.work
	for k := 0; k < n; k++ {
		d := diag[f.perm[k]]
		f.colNnz[k] = 1
		f.rowInd[f.colPtr[k]] = k
		f.flag[k] = k

		top := n
		for p := f.aColPtr[k]; p < f.aColPtr[k+1]; p++ {
			i := f.aRowInd[p]
			if i == k {
				d += f.aVal[p]
				continue
			}
			y[i] += f.aVal[p]
			ln := 0
			for j := i; f.flag[j] != k; j = f.etree[j] {
				f.stack[ln] = j
				ln++
				f.flag[j] = k
			}
			for ln > 0 {
				ln--
				top--
				f.pattern[top] = f.stack[ln]
			}
		}

		for p := top; p < n; p++ {
			i := f.pattern[p]
			yi := y[i]
			y[i] = 0
			di := f.values[f.colPtr[i]]
			s, e := f.colPtr[i]+1, f.colPtr[i]+f.colNnz[i]
			for q := s; q < e; q++ {
				y[f.rowInd[q]] -= f.values[q] * yi
			}
			if e >= f.colPtr[i+1] {
				panic("bound check error")
			}
			lki := yi / di
			d -= lki * yi
			f.rowInd[e] = k
			f.values[e] = lki
			f.colNnz[i]++
		}
		f.values[f.colPtr[k]] = d
	}
}

// SolveInPlace overwrites v with (𝐋𝐃𝐋ᵀ)⁻¹v, gathering and scattering
// through the permutation so that the caller works in the unpermuted space.
func (f *Factorization[T]) SolveInPlace(v []T) {
	n := f.n
	if len(v) < n {
		panic("bound check error")
	}
	w := f.work
	for i := 0; i < n; i++ {
		w[i] = v[f.perm[i]]
	}
	for j := 0; j < n; j++ {
		xj := w[j]
		if xj == 0 {
			continue
		}
		s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
		for p := s; p < e; p++ {
			w[f.rowInd[p]] -= f.values[p] * xj
		}
	}
	for j := 0; j < n; j++ {
		w[j] /= f.values[f.colPtr[j]]
	}
	for j := n - 1; j >= 0; j-- {
		s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
		var t T
		for p := s; p < e; p++ {
			t += f.values[p] * w[f.rowInd[p]]
		}
		w[j] -= t
	}
	for i := 0; i < n; i++ {
		v[i] = w[f.permInv[i]]
	}
	sparse.Zero(f.work[:n])
}
