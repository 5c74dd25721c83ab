// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ldl

import "slices"

// Rank1Update applies 𝐋𝐃𝐋ᵀ ← 𝐋𝐃𝐋ᵀ + σ·𝐮𝐮ᵀ in place, where the sparse
// vector 𝐮 is given by permuted-space row indices (sorted ascending) and
// matching values. The affected columns are the union of the elimination
// tree ancestor paths of the entries of 𝐮; fill produced along the sweep is
// merged into the capacity headroom of each column.
//
// The recurrences are the stable method C of Gill, Golub, Murray and
// Saunders, 'Methods for modifying matrix factorizations', 1974, applied
// column-wise to the sparse factor.
func (f *Factorization[T]) Rank1Update(rows []int, vals []T, sigma T) {
	if len(rows) == 0 || sigma == 0 {
		return
	}
	if len(vals) < len(rows) {
		panic("bound check error")
	}

	// rows and vals may alias the factor storage, scatter first
	w := f.work
	wr := append(f.wrows[:0], rows...)
	for k, i := range rows {
		w[i] = vals[k]
	}

	a := sigma
	for len(wr) > 0 && a != 0 {
		j := wr[0]
		p := w[j]
		w[j] = 0

		dj := f.values[f.colPtr[j]]
		dNew := dj + a*p*p
		gamma := p * a / dNew
		a *= dj / dNew
		f.values[f.colPtr[j]] = dNew

		f.mergeColumn(j, wr[1:])

		s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
		for q := s; q < e; q++ {
			i := f.rowInd[q]
			w[i] -= p * f.values[q]
			f.values[q] += gamma * w[i]
		}
		if e > s {
			f.etree[j] = f.rowInd[s]
		}
		wr = append(wr[:0], f.rowInd[s:e]...)
	}
	for _, i := range wr {
		w[i] = 0
	}
	f.wrows = wr[:0]
}

// mergeColumn inserts the sorted row indices of rows that are missing from
// the strictly-lower part of column j, keeping the column sorted and filling
// the new entries with zero. Every index must be greater than j.
func (f *Factorization[T]) mergeColumn(j int, rows []int) {
	if len(rows) == 0 {
		return
	}
	s := f.colPtr[j] + 1
	e := f.colPtr[j] + f.colNnz[j]

	miss := 0
	for i1, i2 := s, 0; i2 < len(rows); {
		switch {
		case i1 >= e || f.rowInd[i1] > rows[i2]:
			miss++
			i2++
		case f.rowInd[i1] == rows[i2]:
			i1++
			i2++
		default:
			i1++
		}
	}
	if miss == 0 {
		return
	}
	if e+miss > f.colPtr[j+1] {
		panic("bound check error")
	}

	i1, i2, out := e-1, len(rows)-1, e+miss-1
	for i2 >= 0 {
		if i1 >= s && f.rowInd[i1] >= rows[i2] {
			if f.rowInd[i1] == rows[i2] {
				i2--
			}
			f.rowInd[out] = f.rowInd[i1]
			f.values[out] = f.values[i1]
			i1--
		} else {
			f.rowInd[out] = rows[i2]
			f.values[out] = 0
			i2--
		}
		out--
	}
	f.colNnz[j] += miss
}

// searchRow locates row i within the strictly-lower part of column j,
// returning its offset and whether it is present.
func (f *Factorization[T]) searchRow(j, i int) (int, bool) {
	s, e := f.colPtr[j]+1, f.colPtr[j]+f.colNnz[j]
	q, ok := slices.BinarySearch(f.rowInd[s:e], i)
	return s + q, ok
}
