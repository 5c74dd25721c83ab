// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ldl

import "slices"

// AddRow turns the identity row at slot pos (an unpermuted index) into a
// live row/column of the factorized matrix, whose off-diagonal entries are
// given by rows (unpermuted indices) and vals, and whose diagonal entry is
// d. The slot must currently hold a bare identity row, which is how Factor
// leaves inactive columns and DeleteRow leaves vacated ones.
//
// The new row pattern is the set of columns reachable from the entries of
// the added column through the elimination subtree below the slot, so no
// graph traversal beyond tree walks is needed. A trailing rank-one update
// with the freshly inserted column restores the factorization of the
// bordered matrix.
func (f *Factorization[T]) AddRow(pos int, rows []int, vals []T, d T) {
	pp := f.permInv[pos]
	if f.colNnz[pp] != 1 {
		panic("row slot is not empty")
	}

	// sorted permuted positions of the added column
	pind := append(f.wrows[:0], rows...)
	for k, r := range rows {
		pind[k] = f.permInv[r]
	}
	slices.Sort(pind)

	// reach of the added entries through the elimination subtree below pp,
	// collected in topological order then sorted
	l12 := f.pattern[:0]
	for _, j := range pind {
		if j >= pp {
			break
		}
		for !f.mark[j] {
			f.mark[j] = true
			l12 = append(l12, j)
			j = f.etree[j]
			if j == -1 || j >= pp || f.mark[j] {
				break
			}
		}
	}
	slices.Sort(l12)
	for _, j := range l12 {
		f.work[j] = 0
	}

	// scatter the added column; its part below the slot seeds the pattern
	// of the new column of L
	cs := f.colPtr[pp]
	cols := f.wnext[:0]
	for k, r := range rows {
		pj := f.permInv[r]
		f.work[pj] = vals[k]
		if pj > pp {
			f.mark[pj] = true
			cols = append(cols, pj)
		}
	}

	// solve the row triangular system D₁L₁ᵀl₁₂ = a₁₂ along the reach,
	// folding the pattern of each touched column into the new column
	for _, j := range l12 {
		xj := f.work[j]
		s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
		for q := s; q < e; q++ {
			i := f.rowInd[q]
			if i > pp && !f.mark[i] {
				f.mark[i] = true
				f.work[i] = 0
				cols = append(cols, i)
			}
			if f.mark[i] {
				f.work[i] -= f.values[q] * xj
			}
		}
	}

	// insert the new row into every reached column and accumulate the
	// Schur complement of the diagonal entry
	for _, j := range l12 {
		dj := f.values[f.colPtr[j]]
		lj := f.work[j]
		d -= lj * lj / dj

		s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
		if e >= f.colPtr[j+1] {
			panic("bound check error")
		}
		q, _ := f.searchRow(j, pp)
		copy(f.rowInd[q+1:e+1], f.rowInd[q:e])
		copy(f.values[q+1:e+1], f.values[q:e])
		f.rowInd[q] = pp
		f.values[q] = lj / dj
		f.colNnz[j]++
		if q == s {
			f.etree[j] = pp
		}

		f.work[j] = 0
		f.mark[j] = false
	}

	// write the new column of L and its diagonal entry of D
	slices.Sort(cols)
	if cs+1+len(cols) > f.colPtr[pp+1] {
		panic("bound check error")
	}
	f.rowInd[cs] = pp
	f.values[cs] = d
	for k, i := range cols {
		f.rowInd[cs+1+k] = i
		f.values[cs+1+k] = f.work[i] / d
		f.work[i] = 0
		f.mark[i] = false
	}
	f.colNnz[pp] = 1 + len(cols)
	if len(cols) > 0 {
		f.etree[pp] = cols[0]
	} else {
		f.etree[pp] = -1
	}
	f.wnext = cols[:0]

	// downdate the trailing factor with the inserted column
	s, e := cs+1, cs+f.colNnz[pp]
	f.Rank1Update(f.rowInd[s:e], f.values[s:e], -d)
}

// DeleteRow removes the row/column at slot pos (an unpermuted index) from
// the factorized matrix, leaving an identity row in its place so that the
// slot can be reused by AddRow. The vacated contribution is folded back
// into the trailing factor by a rank-one update with the old column.
func (f *Factorization[T]) DeleteRow(pos int) {
	pp := f.permInv[pos]

	// remove row pp from every earlier column, fixing parents that
	// pointed at it
	for j := 0; j < pp; j++ {
		s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
		q, ok := f.searchRow(j, pp)
		if !ok {
			continue
		}
		copy(f.rowInd[q:e-1], f.rowInd[q+1:e])
		copy(f.values[q:e-1], f.values[q+1:e])
		f.colNnz[j]--
		if f.etree[j] == pp {
			if f.colNnz[j] > 1 {
				f.etree[j] = f.rowInd[s]
			} else {
				f.etree[j] = -1
			}
		}
	}

	dOld := f.values[f.colPtr[pp]]
	f.values[f.colPtr[pp]] = 1

	s, e := f.colPtr[pp]+1, f.colPtr[pp]+f.colNnz[pp]
	f.Rank1Update(f.rowInd[s:e], f.values[s:e], dOld)

	f.colNnz[pp] = 1
	f.rowInd[f.colPtr[pp]] = pp
	f.etree[pp] = -1
}
