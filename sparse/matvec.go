// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

// MulAdd performs out += M·x over the live entries of M.
func (m *Matrix[T]) MulAdd(out, x []T) {
	if len(out) < m.Rows || len(x) < m.Cols {
		panic("bound check error")
	}
	for j := 0; j < m.Cols; j++ {
		xj := x[j]
		if xj == 0 {
			continue
		}
		rows, vals := m.Col(j)
		for k, i := range rows {
			out[i] += vals[k] * xj
		}
	}
}

// TransMulAdd performs out += Mᵀ·x over the live entries of M.
func (m *Matrix[T]) TransMulAdd(out, x []T) {
	if len(out) < m.Cols || len(x) < m.Rows {
		panic("bound check error")
	}
	for j := 0; j < m.Cols; j++ {
		rows, vals := m.Col(j)
		var s T
		for k, i := range rows {
			s += vals[k] * x[i]
		}
		out[j] += s
	}
}

// SymMulAdd performs out += S·x where S is the symmetric matrix whose upper
// triangle is stored in m. Entries below the diagonal are ignored.
func (m *Matrix[T]) SymMulAdd(out, x []T) {
	if len(out) < m.Rows || len(x) < m.Cols {
		panic("bound check error")
	}
	for j := 0; j < m.Cols; j++ {
		xj := x[j]
		rows, vals := m.Col(j)
		for k, i := range rows {
			if i > j {
				break
			}
			out[i] += vals[k] * xj
			if i < j {
				out[j] += vals[k] * x[i]
			}
		}
	}
}

// RowInfNorms folds the per-row infinity norms of the live entries of m
// into norm, so that several matrices can share one accumulator.
func (m *Matrix[T]) RowInfNorms(norm []T) {
	if len(norm) < m.Rows {
		panic("bound check error")
	}
	for j := 0; j < m.Cols; j++ {
		rows, vals := m.Col(j)
		for k, i := range rows {
			v := vals[k]
			if v < 0 {
				v = -v
			}
			if v > norm[i] {
				norm[i] = v
			}
		}
	}
}

// SymInfNorms writes the per-row infinity norms of the symmetric matrix
// whose upper triangle is stored in m, walking each column once and
// mirroring the off-diagonal entries into the row accumulators.
func (m *Matrix[T]) SymInfNorms(norm []T) {
	if len(norm) < m.Cols {
		panic("bound check error")
	}
	for j := 0; j < m.Cols; j++ {
		rows, vals := m.Col(j)
		var nj T
		for k, i := range rows {
			if i > j {
				break
			}
			v := vals[k]
			if v < 0 {
				v = -v
			}
			if v > nj {
				nj = v
			}
			if i < j && v > norm[i] {
				norm[i] = v
			}
		}
		norm[j] = nj
	}
}
