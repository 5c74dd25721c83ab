// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse provides the column-compressed storage and the small dense
// kernels shared by the factorization and the solver packages.
//
// A Matrix keeps, next to the usual column pointers, a live per-column entry
// count that may be smaller than the column capacity. Columns can therefore
// grow and shrink in place, which is what the incremental factorization and
// the active-set bookkeeping rely on.
package sparse

import (
	"slices"

	"golang.org/x/exp/constraints"
)

// Matrix is a sparse matrix in column-compressed form.
//
// The entries of column j live in RowInd[ColPtr[j] : ColPtr[j]+ColNnz[j]]
// and Val likewise, sorted by ascending row index. The column capacity is
// ColPtr[j+1]-ColPtr[j] and ColNnz[j] may be anything between 0 and that
// capacity. A matrix with ColNnz[j] equal to the capacity for every j is
// called compressed.
type Matrix[T constraints.Float] struct {
	Rows, Cols int
	ColPtr     []int // column start offsets, len Cols+1
	ColNnz     []int // live entry count per column, len Cols
	RowInd     []int // row indices, len ColPtr[Cols]
	Val        []T   // entry values, len ColPtr[Cols]
}

// NewMatrix allocates an empty rows×cols matrix whose column j has
// capacity colCap[j].
func NewMatrix[T constraints.Float](rows, cols int, colCap []int) *Matrix[T] {
	if len(colCap) != cols {
		panic("column capacity size must equal to cols")
	}
	colPtr := make([]int, cols+1)
	for j, c := range colCap {
		if c < 0 {
			panic("column capacity must not less than 0")
		}
		colPtr[j+1] = colPtr[j] + c
	}
	return &Matrix[T]{
		Rows:   rows,
		Cols:   cols,
		ColPtr: colPtr,
		ColNnz: make([]int, cols),
		RowInd: make([]int, colPtr[cols]),
		Val:    make([]T, colPtr[cols]),
	}
}

// NewCSC wraps a plain compressed CSC triple without copying.
// Row indices must be sorted in ascending order within each column.
func NewCSC[T constraints.Float](rows, cols int, colPtr, rowInd []int, val []T) *Matrix[T] {
	if len(colPtr) != cols+1 || len(rowInd) != colPtr[cols] || len(val) != colPtr[cols] {
		panic("csc arrays size not match")
	}
	colNnz := make([]int, cols)
	for j := range colNnz {
		colNnz[j] = colPtr[j+1] - colPtr[j]
	}
	return &Matrix[T]{Rows: rows, Cols: cols, ColPtr: colPtr, ColNnz: colNnz, RowInd: rowInd, Val: val}
}

// Start returns the offset of the first entry of column j.
func (m *Matrix[T]) Start(j int) int { return m.ColPtr[j] }

// End returns the offset one past the last live entry of column j.
func (m *Matrix[T]) End(j int) int { return m.ColPtr[j] + m.ColNnz[j] }

// Cap returns the allocated capacity of column j.
func (m *Matrix[T]) Cap(j int) int { return m.ColPtr[j+1] - m.ColPtr[j] }

// Col returns the live row indices and values of column j.
func (m *Matrix[T]) Col(j int) ([]int, []T) {
	s, e := m.Start(j), m.End(j)
	return m.RowInd[s:e], m.Val[s:e]
}

// Nnz returns the total number of live entries.
func (m *Matrix[T]) Nnz() (nnz int) {
	for _, c := range m.ColNnz {
		nnz += c
	}
	return
}

// Clone returns a deep copy.
func (m *Matrix[T]) Clone() *Matrix[T] {
	return &Matrix[T]{
		Rows:   m.Rows,
		Cols:   m.Cols,
		ColPtr: slices.Clone(m.ColPtr),
		ColNnz: slices.Clone(m.ColNnz),
		RowInd: slices.Clone(m.RowInd),
		Val:    slices.Clone(m.Val),
	}
}

// SameStructure reports whether m and o share the identical live
// sparsity pattern.
func (m *Matrix[T]) SameStructure(o *Matrix[T]) bool {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		return false
	}
	for j := 0; j < m.Cols; j++ {
		if m.ColNnz[j] != o.ColNnz[j] {
			return false
		}
		ri, _ := m.Col(j)
		rj, _ := o.Col(j)
		for k := range ri {
			if ri[k] != rj[k] {
				return false
			}
		}
	}
	return true
}

// Transpose returns a freshly allocated compressed transpose of the live
// entries of m.
func (m *Matrix[T]) Transpose() *Matrix[T] {
	count := make([]int, m.Rows+1)
	for j := 0; j < m.Cols; j++ {
		rows, _ := m.Col(j)
		for _, i := range rows {
			count[i+1]++
		}
	}
	for i := 0; i < m.Rows; i++ {
		count[i+1] += count[i]
	}
	colPtr := slices.Clone(count)
	rowInd := make([]int, colPtr[m.Rows])
	val := make([]T, colPtr[m.Rows])
	for j := 0; j < m.Cols; j++ {
		rows, vals := m.Col(j)
		for k, i := range rows {
			p := count[i]
			count[i]++
			rowInd[p] = j
			val[p] = vals[k]
		}
	}
	return NewCSC(m.Cols, m.Rows, colPtr, rowInd, val)
}
