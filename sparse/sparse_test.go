// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"testing"
)

// testMatrix stores
//
//	⎡ 1  0  2 ⎤
//	⎢ 0  3  0 ⎥
//	⎣ 4  0  5 ⎦
func testMatrix() *Matrix[float64] {
	return NewCSC(3, 3,
		[]int{0, 2, 3, 5},
		[]int{0, 2, 1, 0, 2},
		[]float64{1, 4, 3, 2, 5})
}

func TestMatrixShape(t *testing.T) {
	m := testMatrix()
	switch {
	case m.Nnz() != 5:
		t.Fatal("nnz mismatch")
	case m.Cap(0) != 2 || m.Cap(1) != 1:
		t.Fatal("capacity mismatch")
	case m.End(2)-m.Start(2) != 2:
		t.Fatal("live range mismatch")
	}

	// shrinking a column hides its entries without reallocation
	m.ColNnz[0] = 1
	if m.Nnz() != 4 {
		t.Fatal("column shrink not reflected")
	}
	rows, vals := m.Col(0)
	if len(rows) != 1 || rows[0] != 0 || vals[0] != 1 {
		t.Fatal("column view after shrink unexpected")
	}
}

func TestTranspose(t *testing.T) {
	m := testMatrix()
	mt := m.Transpose()
	for j := 0; j < 3; j++ {
		rows, vals := m.Col(j)
		for k, i := range rows {
			ri, rv := mt.Col(i)
			found := false
			for a, r := range ri {
				if r == j {
					found = rv[a] == vals[k]
				}
			}
			if !found {
				t.Fatalf("entry (%d,%d) lost in transpose", i, j)
			}
		}
	}
	if mt.Nnz() != m.Nnz() {
		t.Fatal("transpose nnz mismatch")
	}
}

func TestMulAdd(t *testing.T) {
	m := testMatrix()
	x := []float64{1, 2, 3}

	out := make([]float64, 3)
	m.MulAdd(out, x)
	want := []float64{7, 6, 19}
	for i := range want {
		if out[i] != want[i] {
			t.Fatal("mul add unexpected")
		}
	}

	out = make([]float64, 3)
	m.TransMulAdd(out, x)
	want = []float64{13, 6, 17}
	for i := range want {
		if out[i] != want[i] {
			t.Fatal("trans mul add unexpected")
		}
	}
}

func TestSymMulAdd(t *testing.T) {
	// upper triangle of ⎡2 1⎤
	//                   ⎣1 4⎦
	m := NewCSC(2, 2, []int{0, 1, 3}, []int{0, 0, 1}, []float64{2, 1, 4})
	out := make([]float64, 2)
	m.SymMulAdd(out, []float64{1, 2})
	if out[0] != 4 || out[1] != 9 {
		t.Fatal("sym mul add unexpected")
	}
}

func TestSymInfNorms(t *testing.T) {
	m := NewCSC(2, 2, []int{0, 1, 3}, []int{0, 0, 1}, []float64{2, -1, 4})
	norm := make([]float64, 2)
	m.SymInfNorms(norm)
	if norm[0] != 2 || norm[1] != 4 {
		t.Fatal("sym inf norms unexpected")
	}

	// the mirrored off-diagonal must reach the earlier row
	m = NewCSC(2, 2, []int{0, 1, 3}, []int{0, 0, 1}, []float64{2, -5, 4})
	m.SymInfNorms(norm)
	if norm[0] != 5 || norm[1] != 5 {
		t.Fatal("mirrored inf norms unexpected")
	}
}

func TestBlas(t *testing.T) {
	x := []float64{1, -2, 3}
	y := []float64{1, 1, 1}
	Axpy(2, x, y)
	if y[0] != 3 || y[1] != -3 || y[2] != 7 {
		t.Fatal("axpy unexpected")
	}
	if Dot(x, x) != 14 {
		t.Fatal("dot unexpected")
	}
	if InfNorm(x) != 3 {
		t.Fatal("inf norm unexpected")
	}
	if SqNorm(x) != 14 {
		t.Fatal("sq norm unexpected")
	}
	Scale(0.5, y)
	if y[0] != 1.5 {
		t.Fatal("scale unexpected")
	}
	Zero(y)
	if InfNorm(y) != 0 {
		t.Fatal("zero unexpected")
	}
}
