// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package legged

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/curioloop/trajopt/sym"
)

// Quaternions are stored scalar first: [w, x, y, z].

func qmul(a, b sym.Vec) sym.Vec {
	return sym.Vec{
		sym.Sub(sym.Sub(sym.Sub(sym.Mul(a[0], b[0]), sym.Mul(a[1], b[1])), sym.Mul(a[2], b[2])), sym.Mul(a[3], b[3])),
		sym.Add(sym.Add(sym.Mul(a[0], b[1]), sym.Mul(a[1], b[0])), sym.Sub(sym.Mul(a[2], b[3]), sym.Mul(a[3], b[2]))),
		sym.Add(sym.Sub(sym.Mul(a[0], b[2]), sym.Mul(a[1], b[3])), sym.Add(sym.Mul(a[2], b[0]), sym.Mul(a[3], b[1]))),
		sym.Add(sym.Add(sym.Mul(a[0], b[3]), sym.Mul(a[1], b[2])), sym.Sub(sym.Mul(a[3], b[0]), sym.Mul(a[2], b[1]))),
	}
}

func qconj(q sym.Vec) sym.Vec { return sym.Vec{q[0], sym.Neg(q[1]), sym.Neg(q[2]), sym.Neg(q[3])} }

// qretract returns q ⊗ [1, δθ/2] normalized. The map is smooth at δθ = 0 and
// its inverse is qlocal.
func qretract(q, dtheta sym.Vec) sym.Vec {
	half := dtheta.ScaleF(0.5)
	r := qmul(q, sym.Vec{sym.Const(1), half[0], half[1], half[2]})
	n := sym.Sqrt(r.SumSquares())
	out := make(sym.Vec, 4)
	for i := range r {
		out[i] = sym.Div(r[i], n)
	}
	return out
}

// qlocal returns δθ such that qretract(q, δθ) = p.
func qlocal(q, p sym.Vec) sym.Vec {
	r := qmul(qconj(q), p)
	s := sym.Div(sym.Const(2), r[0])
	return sym.Vec{sym.Mul(s, r[1]), sym.Mul(s, r[2]), sym.Mul(s, r[3])}
}

// rotateT returns Rᵀ(q)·v, the world vector v expressed in the body frame.
func rotateT(q, v sym.Vec) sym.Vec {
	w, x, y, z := q[0], q[1], q[2], q[3]
	two := func(a, b sym.Expr) sym.Expr { return sym.Scale(2, sym.Mul(a, b)) }
	one := func(a, b sym.Expr) sym.Expr {
		return sym.Sub(sym.Const(1), sym.Scale(2, sym.Add(sym.Sq(a), sym.Sq(b))))
	}
	r := [3][3]sym.Expr{
		{one(y, z), sym.Sub(two(x, y), two(w, z)), sym.Add(two(x, z), two(w, y))},
		{sym.Add(two(x, y), two(w, z)), one(x, z), sym.Sub(two(y, z), two(w, x))},
		{sym.Sub(two(x, z), two(w, y)), sym.Add(two(y, z), two(w, x)), one(x, y)},
	}
	out := make(sym.Vec, 3)
	for i := 0; i < 3; i++ {
		out[i] = sym.Add(sym.Add(sym.Mul(r[0][i], v[0]), sym.Mul(r[1][i], v[1])), sym.Mul(r[2][i], v[2]))
	}
	return out
}

// Quaternion converts a stored orientation into a gonum quaternion.
func Quaternion(q []float64) quat.Number {
	return quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
}

// QuaternionSlice stores a gonum quaternion scalar first.
func QuaternionSlice(q quat.Number) []float64 {
	return []float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// AxisAngle returns the unit quaternion of a rotation by angle around axis.
func AxisAngle(axis [3]float64, angle float64) quat.Number {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n == 0 {
		return quat.Number{Real: 1}
	}
	s := math.Sin(angle/2) / n
	return quat.Number{Real: math.Cos(angle / 2), Imag: s * axis[0], Jmag: s * axis[1], Kmag: s * axis[2]}
}

// Normalize scales q to unit length.
func Normalize(q quat.Number) quat.Number {
	return quat.Scale(1/quat.Abs(q), q)
}
