// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
)

var (
	sqrtEps = math.Sqrt(eps)
	invPhi2 = one / (math.Phi * math.Phi) // (3 - √5) / 2
)

// h1 builds the Householder reflection Q = I - uuᵀ/(s·uₚ) that maps the
// entries p and l..m-1 of v (stride ive) onto a multiple of eₚ. On return
// v[p] holds s and v[l:m] hold the tail of u; uₚ is returned. A pivot outside
// [0, l) or an empty tail leaves v alone and returns 0.
//
// Lawson & Hanson, Solving Least Squares Problems, ch. 10.
func h1(p, l, m int, v []float64, ive int) (up float64) {
	if p < 0 || p >= l || l >= m {
		return
	}
	vp := v[p*ive]
	s := math.Hypot(vp, blas64.Nrm2(vec(m-l, v[l*ive:], ive)))
	if s == zero {
		return
	}
	if vp > zero {
		s = -s
	}
	v[p*ive] = s
	return vp - s
}

// h2 applies the reflection built by h1 to ncv vectors of c. Vector k starts
// at c[p*ice+k*icv] and its entries are ice apart.
func h2(p, l, m int, u []float64, iue int, up float64, c []float64, ice, icv, ncv int) {
	if p < 0 || p >= l || l >= m || ncv <= 0 {
		return
	}
	b := u[p*iue] * up
	if b >= zero {
		return
	}
	tail := vec(m-l, u[l*iue:], iue)
	for k := range ncv {
		j := p*ice + k*icv
		cv := vec(m-l, c[j+(l-p)*ice:], ice)
		sm := c[j]*up + blas64.Dot(tail, cv)
		if sm == zero {
			continue
		}
		sm /= b
		c[j] += sm * up
		blas64.Axpy(sm, tail, cv)
	}
}

// g1 returns the rotation [c s; -s c] taking (a, b) to (σ, 0).
//
// Lawson & Hanson, Solving Least Squares Problems, ch. 3.
func g1(a, b float64) (c, s, sig float64) {
	sig = math.Hypot(a, b)
	if sig == zero {
		return zero, one, zero
	}
	return a / sig, b / sig, sig
}

// g2 applies the rotation from g1 to (x, y).
func g2(c, s float64, x, y float64) (xr, yr float64) {
	return c*x + s*y, c*y - s*x
}

// compositeT replaces the packed LDLᵀ factor in a by the factor of
// LDLᵀ + σzzᵀ. z is overwritten. A downdate (σ < 0) needs n entries of w as
// scratch and keeps D positive by flooring the final t at ε/σ.
//
// Kraft, A Software Package for Sequential Quadratic Programming, 1988, §2.3.2.
func compositeT(n uint, a, z []float64, sigma float64, w []float64) {
	if sigma == zero {
		return
	}
	if n == 0 || n > uint(len(z)) {
		panic("slsqp: rank-one update of empty factor")
	}
	t := one / sigma

	if sigma < zero {
		if n > uint(len(w)) {
			panic("slsqp: rank-one downdate needs scratch space")
		}
		// forward solve Lv = z accumulating t += vᵢ²/dᵢ
		copy(w, z[:n])
		ij := uint(0)
		for i := range n {
			v := w[i]
			t += v * v / a[ij]
			for j := i + 1; j < n; j++ {
				ij++
				w[j] -= v * a[ij]
			}
			ij++
		}
		if t >= zero {
			t = eps / sigma
		}
		// walk back so that w[i] holds tᵢ₊₁
		for j := int(n) - 1; j >= 0; j-- {
			v := w[j]
			w[j] = t
			ij -= n - uint(j)
			t -= v * v / a[ij]
		}
	}

	ij := uint(0)
	for i := range n {
		v := z[i]
		delta := v / a[ij]
		next := t + delta*v
		if sigma < zero {
			next = w[i]
		}
		ratio := next / t
		a[ij] *= ratio
		if i == n-1 {
			return
		}

		beta := delta / next
		if ratio > four {
			gamma := t / next
			for j := i + 1; j < n; j++ {
				ij++
				l := a[ij]
				a[ij] = gamma*l + beta*z[j]
				z[j] -= v * l
			}
		} else {
			for j := i + 1; j < n; j++ {
				ij++
				z[j] -= v * a[ij]
				a[ij] += beta * z[j]
			}
		}
		ij++
		t = next
	}
}

type findMode int

const (
	findNoop findMode = iota
	findInit
	findNext
	findConv
)

// findWork is the state findMin keeps between calls: the bracket [a, b],
// the best three points x, w, v with their values and the last two steps.
type findWork struct {
	a, b, d, e, p, q, r, u, v, w, x, m, fu, fv, fw, fx, tol1, tol2 float64
}

// findMin minimizes a function over alpha by golden section search mixed
// with parabolic steps (Brent). It works by reverse communication: start
// with findNoop, evaluate the function at each returned point and pass the
// value back with the returned mode until the mode is findConv.
func findMin(m findMode, w *findWork, f, tol float64, alpha Bound) (argMin float64, mode findMode) {
	switch m {
	case findInit:
		w.fx, w.fv, w.fw = f, f, f
	case findNext:
		w.fu = f
		u, x := w.u, w.x
		if w.fu <= w.fx {
			if u >= x {
				w.a = x
			} else {
				w.b = x
			}
			w.v, w.fv = w.w, w.fw
			w.w, w.fw = x, w.fx
			w.x, w.fx = u, w.fu
			break
		}
		if u < x {
			w.a = u
		} else {
			w.b = u
		}
		switch {
		case w.fu <= w.fw || w.w == x:
			w.v, w.fv = w.w, w.fw
			w.w, w.fw = u, w.fu
		case w.fu <= w.fv || w.v == x || w.v == w.w:
			w.v, w.fv = u, w.fu
		}
	default:
		w.a, w.b = alpha.Lower, alpha.Upper
		w.e = zero
		w.v = w.a + invPhi2*(w.b-w.a)
		w.w, w.x = w.v, w.v
		return w.x, findInit
	}

	a, b, x := w.a, w.b, w.x
	w.m = (a + b) / 2
	w.tol1 = sqrtEps*math.Abs(x) + tol
	w.tol2 = 2 * w.tol1
	if math.Abs(x-w.m) <= w.tol2-(b-a)/2 {
		return x, findConv
	}

	var p, q, r float64
	d, e := w.d, w.e
	if math.Abs(e) > w.tol1 {
		r = (x - w.w) * (w.fx - w.fv)
		q = (x - w.v) * (w.fx - w.fw)
		p = (x-w.v)*q - (x-w.w)*r
		q = 2 * (q - r)
		if q > zero {
			p = -p
		}
		q = math.Abs(q)
		r, e = e, d
	}
	w.p, w.q, w.r = p, q, r

	if math.Abs(p) >= math.Abs(q*r)/2 || p <= q*(a-x) || p >= q*(b-x) {
		// golden section into the larger half
		if x >= w.m {
			e = a - x
		} else {
			e = b - x
		}
		d = invPhi2 * e
	} else {
		d = p / q
		if u := x + d; u-a < w.tol2 || b-u < w.tol2 {
			d = math.Copysign(w.tol1, w.m-x)
		}
	}
	if math.Abs(d) < w.tol1 {
		d = math.Copysign(w.tol1, d)
	}

	w.d, w.e = d, e
	w.u = x + d
	return w.u, findNext
}
