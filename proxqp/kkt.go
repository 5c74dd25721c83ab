// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package proxqp

import (
	"golang.org/x/exp/constraints"

	"github.com/curioloop/proxqp/ldl"
	"github.com/curioloop/proxqp/sparse"
)

// kktMatrix assembles the symmetric KKT block
//
//	K = ⎡ H+ρI    Aᵀ        C_Aᵀ      ⎤
//	    ⎢ A      −μ_eq⁻¹I    0        ⎥
//	    ⎣ C_A     0        −μ_in⁻¹I_A ⎦
//
// in upper-triangular CSC storage whose trailing m_in columns toggle between
// active (full column of Cᵀ, −μ_in⁻¹ on the diagonal) and inactive (empty
// column, +1 on the diagonal). The penalty diagonal itself is never stored;
// it is supplied to the factorization separately, so toggling a constraint
// only changes the live entry count of its column.
//
// The H, Aᵀ and Cᵀ sub-blocks are exposed as views sharing the KKT storage,
// which is what lets the preconditioner equilibrate the assembled matrix in
// place.
type kktMatrix[T constraints.Float] struct {
	n, mEq, mIn int

	mat *sparse.Matrix[T] // full KKT storage, live counts track the active set

	h        *sparse.Matrix[T] // upper triangle of H, always live
	at       *sparse.Matrix[T] // Aᵀ columns, always live
	ct       *sparse.Matrix[T] // Cᵀ columns at full capacity
	ctActive *sparse.Matrix[T] // Cᵀ columns restricted to the active set
}

// newKKT builds the KKT container from the upper triangle of H and the
// transposed constraint matrices, with all inequalities inactive.
func newKKT[T constraints.Float](h, at, ct *sparse.Matrix[T]) *kktMatrix[T] {
	n, mEq, mIn := h.Cols, at.Cols, ct.Cols
	nTot := n + mEq + mIn

	colCap := make([]int, nTot)
	for j := 0; j < n; j++ {
		colCap[j] = h.ColNnz[j]
	}
	for j := 0; j < mEq; j++ {
		colCap[n+j] = at.ColNnz[j]
	}
	for j := 0; j < mIn; j++ {
		colCap[n+mEq+j] = ct.ColNnz[j]
	}

	mat := sparse.NewMatrix[T](nTot, nTot, colCap)
	insert := func(m *sparse.Matrix[T], base int, live bool) {
		for j := 0; j < m.Cols; j++ {
			rows, vals := m.Col(j)
			p := mat.ColPtr[base+j]
			copy(mat.RowInd[p:], rows)
			copy(mat.Val[p:], vals)
			if live {
				mat.ColNnz[base+j] = len(rows)
			}
		}
	}
	insert(h, 0, true)
	insert(at, n, true)
	insert(ct, n+mEq, false)

	ctFullNnz := make([]int, mIn)
	for j := 0; j < mIn; j++ {
		ctFullNnz[j] = colCap[n+mEq+j]
	}

	k := &kktMatrix[T]{n: n, mEq: mEq, mIn: mIn, mat: mat}
	k.h = &sparse.Matrix[T]{
		Rows: n, Cols: n,
		ColPtr: mat.ColPtr[:n+1], ColNnz: mat.ColNnz[:n],
		RowInd: mat.RowInd, Val: mat.Val,
	}
	k.at = &sparse.Matrix[T]{
		Rows: n, Cols: mEq,
		ColPtr: mat.ColPtr[n : n+mEq+1], ColNnz: mat.ColNnz[n : n+mEq],
		RowInd: mat.RowInd, Val: mat.Val,
	}
	k.ct = &sparse.Matrix[T]{
		Rows: n, Cols: mIn,
		ColPtr: mat.ColPtr[n+mEq:], ColNnz: ctFullNnz,
		RowInd: mat.RowInd, Val: mat.Val,
	}
	k.ctActive = &sparse.Matrix[T]{
		Rows: n, Cols: mIn,
		ColPtr: mat.ColPtr[n+mEq:], ColNnz: mat.ColNnz[n+mEq:],
		RowInd: mat.RowInd, Val: mat.Val,
	}
	return k
}

// setValues overwrites the stored sub-block values from fresh copies of H
// upper, Aᵀ and Cᵀ with identical patterns.
func (k *kktMatrix[T]) setValues(h, at, ct *sparse.Matrix[T]) {
	cp := func(m *sparse.Matrix[T], base int) {
		for j := 0; j < m.Cols; j++ {
			p := k.mat.ColPtr[base+j]
			_, vals := m.Col(j)
			copy(k.mat.Val[p:p+len(vals)], vals)
		}
	}
	cp(h, 0)
	cp(at, k.n)
	cp(ct, k.n+k.mEq)
}

// reset deactivates every inequality without touching the factorization;
// the caller refactorizes afterwards.
func (k *kktMatrix[T]) reset(active []bool) {
	for i := range active {
		active[i] = false
		k.mat.ColNnz[k.n+k.mEq+i] = 0
	}
}

// activate turns inequality i into an equality at penalty μ_in: the column
// goes live and the factorization gains the matching row.
func (k *kktMatrix[T]) activate(i int, fact *ldl.Factorization[T], muIn T, active []bool) {
	if active[i] {
		return
	}
	idx := k.n + k.mEq + i
	k.mat.ColNnz[idx] = k.mat.Cap(idx)
	rows, vals := k.mat.Col(idx)
	fact.AddRow(idx, rows, vals, -1/muIn)
	active[i] = true
}

// deactivate empties the column of inequality i and deletes the matching
// row of the factorization, leaving the +1 identity slot behind.
func (k *kktMatrix[T]) deactivate(i int, fact *ldl.Factorization[T], active []bool) {
	if !active[i] {
		return
	}
	idx := k.n + k.mEq + i
	k.mat.ColNnz[idx] = 0
	fact.DeleteRow(idx)
	active[i] = false
}

// diagonal fills d with the penalty diagonal matching the current active
// set, in the layout the factorization expects.
func (k *kktMatrix[T]) diagonal(d []T, rho, muEq, muIn T, active []bool) {
	for i := 0; i < k.n; i++ {
		d[i] = rho
	}
	for i := 0; i < k.mEq; i++ {
		d[k.n+i] = -1 / muEq
	}
	for i := 0; i < k.mIn; i++ {
		if active[i] {
			d[k.n+k.mEq+i] = -1 / muIn
		} else {
			d[k.n+k.mEq+i] = 1
		}
	}
}

// mulAdd accumulates out += K·v for the fully assembled symmetric KKT
// operator at the current penalties and active set.
func (k *kktMatrix[T]) mulAdd(out, v []T, rho, muEq, muIn T, active []bool) {
	n, mEq, mIn := k.n, k.mEq, k.mIn
	vx, vy, vz := v[:n], v[n:n+mEq], v[n+mEq:n+mEq+mIn]
	ox, oy, oz := out[:n], out[n:n+mEq], out[n+mEq:n+mEq+mIn]

	k.h.SymMulAdd(ox, vx)
	sparse.Axpy(rho, vx, ox)
	k.at.MulAdd(ox, vy)
	k.ctActive.MulAdd(ox, vz)

	k.at.TransMulAdd(oy, vx)
	sparse.Axpy(-1/muEq, vy, oy)

	k.ctActive.TransMulAdd(oz, vx)
	for i := 0; i < mIn; i++ {
		if active[i] {
			oz[i] -= vz[i] / muIn
		} else {
			oz[i] += vz[i]
		}
	}
}
