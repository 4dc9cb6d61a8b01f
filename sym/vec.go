// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sym

import (
	"strconv"
	"strings"
)

// Vec is a column vector of scalar expressions.
type Vec []Expr

// SymVec returns n fresh symbols named name_0 … name_{n-1}.
func SymVec(name string, n int) Vec {
	v := make(Vec, n)
	for i := range v {
		v[i] = Symbol(name + "_" + strconv.Itoa(i))
	}
	return v
}

// Zeros returns a vector of n constant zeros.
func Zeros(n int) Vec { return make(Vec, n) }

// Constants lifts numeric values into a constant vector.
func Constants(values []float64) Vec {
	v := make(Vec, len(values))
	for i, x := range values {
		v[i] = Const(x)
	}
	return v
}

// Vertcat concatenates vectors vertically.
func Vertcat(vs ...Vec) Vec {
	n := 0
	for _, v := range vs {
		n += len(v)
	}
	out := make(Vec, 0, n)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// Split cuts v into consecutive chunks of the given size.
func (v Vec) Split(size int) []Vec {
	if size <= 0 || len(v)%size != 0 {
		panic("sym: vector length is not a multiple of chunk size")
	}
	out := make([]Vec, len(v)/size)
	for i := range out {
		out[i] = v[i*size : (i+1)*size : (i+1)*size]
	}
	return out
}

// Slice returns v[i:j] as an independent vector.
func (v Vec) Slice(i, j int) Vec { return append(Vec(nil), v[i:j]...) }

func mustSameLen(v, w Vec) {
	if len(v) != len(w) {
		panic("sym: vector length mismatch")
	}
}

// Add returns v+w.
func (v Vec) Add(w Vec) Vec {
	mustSameLen(v, w)
	out := make(Vec, len(v))
	for i := range v {
		out[i] = Add(v[i], w[i])
	}
	return out
}

// Sub returns v-w.
func (v Vec) Sub(w Vec) Vec {
	mustSameLen(v, w)
	out := make(Vec, len(v))
	for i := range v {
		out[i] = Sub(v[i], w[i])
	}
	return out
}

// Mul returns the element-wise product of v and w.
func (v Vec) Mul(w Vec) Vec {
	mustSameLen(v, w)
	out := make(Vec, len(v))
	for i := range v {
		out[i] = Mul(v[i], w[i])
	}
	return out
}

// Scale returns s·v.
func (v Vec) Scale(s Expr) Vec {
	out := make(Vec, len(v))
	for i := range v {
		out[i] = Mul(s, v[i])
	}
	return out
}

// ScaleF returns c·v for a numeric constant c.
func (v Vec) ScaleF(c float64) Vec { return v.Scale(Const(c)) }

// Neg returns -v.
func (v Vec) Neg() Vec {
	out := make(Vec, len(v))
	for i := range v {
		out[i] = Neg(v[i])
	}
	return out
}

// Dot returns vᵀw.
func (v Vec) Dot(w Vec) Expr {
	mustSameLen(v, w)
	var s Expr
	for i := range v {
		s = Add(s, Mul(v[i], w[i]))
	}
	return s
}

// Sum returns the sum of the elements.
func (v Vec) Sum() Expr {
	var s Expr
	for _, e := range v {
		s = Add(s, e)
	}
	return s
}

// SumSquares returns ‖v‖².
func (v Vec) SumSquares() Expr {
	var s Expr
	for _, e := range v {
		s = Add(s, Sq(e))
	}
	return s
}

// Cross returns the cross product of two 3-vectors.
func (v Vec) Cross(w Vec) Vec {
	if len(v) != 3 || len(w) != 3 {
		panic("sym: cross product needs 3-vectors")
	}
	return Vec{
		Sub(Mul(v[1], w[2]), Mul(v[2], w[1])),
		Sub(Mul(v[2], w[0]), Mul(v[0], w[2])),
		Sub(Mul(v[0], w[1]), Mul(v[1], w[0])),
	}
}

// MulMat returns A·v for a row-major rows×len(v) numeric matrix A.
func (v Vec) MulMat(a []float64, rows int) Vec {
	cols := len(v)
	if len(a) != rows*cols {
		panic("sym: matrix size mismatch")
	}
	out := make(Vec, rows)
	for i := range out {
		var s Expr
		for j, e := range v {
			s = Add(s, Mul(Const(a[i*cols+j]), e))
		}
		out[i] = s
	}
	return out
}

// Values returns the numeric values when every element is constant.
func (v Vec) Values() ([]float64, bool) {
	out := make([]float64, len(v))
	for i, e := range v {
		if !e.IsConst() {
			return nil, false
		}
		out[i] = e.Value()
	}
	return out, true
}

// IsSymbolic reports whether every element is a free symbol.
func (v Vec) IsSymbolic() bool {
	for _, e := range v {
		if !e.IsSymbol() {
			return false
		}
	}
	return true
}

func (v Vec) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
