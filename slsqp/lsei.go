// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
)

// LSEI solves min ‖Ex - f‖₂ subject to Cx = d and Gx ≥ h
// (Lawson & Hanson, Algorithm 20.24 and §23.6).
//
// C (mc×n, leading dimension lc) must have full row rank mc ≤ n. Reflections
// K from the right make CK = [C₁ 0] lower triangular, so with x = K[y₁; y₂]
// the equalities fix y₁ by forward substitution and y₂ solves the LSI problem
// min ‖E₂y₂ - (f - E₁y₁)‖ subject to G₂y₂ ≥ h - G₁y₁, or an unconstrained
// HFTI fit when mg = 0. E is me×n with leading dimension le, G is mg×n with
// leading dimension lg. All inputs are overwritten.
//
// On success w[:mc] holds the equality multipliers and w[mc:mc+mg] the
// inequality multipliers. w needs 2mc + me + (me+mg)(n-mc) +
// (n-mc+1)(mg+2) + 2mg entries and jw max(mg, min(me, n-mc)).
func LSEI(c, d, e, f, g, h []float64, lc, mc, le, me, lg, mg, n int, x, w []float64, jw []int, maxIter int) (norm float64, mode sqpMode) {
	if n < 1 || mc > n {
		return math.NaN(), BadArgument
	}
	if len(x) < n || mc < 0 || len(d) < mc || me < 0 || len(f) < me || mg < 0 || len(h) < mg {
		panic("slsqp: LSEI dimensions exceed the inputs")
	}

	l := n - mc
	// w[:mc] is left for the equality multipliers
	ws, rest := w[mc:mc+(l+1)*(mg+2)+2*mg], w[mc+(l+1)*(mg+2)+2*mg:]
	wp, rest := rest[:mc], rest[mc:]
	er, rest := rest[:me*l], rest[me*l:]
	fr, rest := rest[:me], rest[me:]
	gr := rest[:mg*l]

	for i := range mc {
		j := min(i+1, lc-1)
		wp[i] = h1(i, i+1, n, c[i:], lc)
		h2(i, i+1, n, c[i:], lc, wp[i], c[j:], lc, 1, mc-i-1)
		h2(i, i+1, n, c[i:], lc, wp[i], e, le, 1, me)
		h2(i, i+1, n, c[i:], lc, wp[i], g, lg, 1, mg)
	}

	for i := range mc {
		diag := c[i+lc*i]
		if math.Abs(diag) < eps {
			return math.NaN(), LSEISingularC
		}
		x[i] = (d[i] - blas64.Dot(vec(i, c[i:], lc), vec(i, x, 1))) / diag
	}

	// LSI leaves its multipliers here; without inequalities they stay zero
	clear(ws[:mg])

	if mc < n {
		for i := range me {
			fr[i] = f[i] - blas64.Dot(vec(mc, e[i:], le), vec(mc, x, 1))
		}
		for i := range me {
			blas64.Copy(vec(l, e[i+le*mc:], le), vec(l, er[i:], me))
		}
		for i := range mg {
			blas64.Copy(vec(l, g[i+lg*mc:], lg), vec(l, gr[i:], mg))
		}

		if mg > 0 {
			for i := range mg {
				h[i] -= blas64.Dot(vec(mc, g[i:], lg), vec(mc, x, 1))
			}
			norm, mode = LSI(er, fr, gr, h, me, me, mg, mg, l, x[mc:n], ws, jw, maxIter)
			if mc == 0 {
				return
			}
			if mode != HasSolution {
				return math.NaN(), mode
			}
			norm = math.Hypot(norm, blas64.Nrm2(vec(mc, x, 1)))
		} else {
			var res [1]float64
			rank := HFTI(er, me, me, l, fr, max(le, n), 1, sqrtEps, res[:], w, w[l:], jw)
			norm = res[0]
			blas64.Copy(vec(l, fr, 1), vec(l, x[mc:n], 1))
			if rank != l {
				return norm, HFTIRankDefect
			}
		}
	}

	// Cᵀμ = Eᵀ(Ex - f) - Gᵀλ, solved in the rotated frame
	for i := range me {
		f[i] = blas64.Dot(vec(n, e[i:], le), vec(n, x, 1)) - f[i]
	}
	for i := range mc {
		d[i] = blas64.Dot(vec(me, e[i*le:], 1), vec(me, f, 1)) -
			blas64.Dot(vec(mg, g[i*lg:], 1), vec(mg, ws, 1))
	}
	for i := mc - 1; i >= 0; i-- {
		h2(i, i+1, n, c[i:], lc, wp[i], x, 1, 1, 1)
	}
	for i := mc - 1; i >= 0; i-- {
		j := min(i+1, lc-1)
		w[i] = (d[i] - blas64.Dot(vec(mc-i-1, c[j+lc*i:], 1), vec(mc-i-1, w[j:], 1))) / c[i+lc*i]
	}
	return norm, HasSolution
}

// LSI solves min ‖Ex - f‖₂ subject to Gx ≥ h for E of full column rank
// (Lawson & Hanson, §23.5).
//
// With the QR factorization QE = [R; 0] and Qf = [f₁; f₂] the substitution
// z = Rx - f₁ turns the problem into the LDP min ‖z‖ subject to
// GR⁻¹z ≥ h - GR⁻¹f₁, and the residual norm is (‖z‖² + ‖f₂‖²)¹ᐟ².
// w needs (n+1)(mg+2) + 2mg entries and jw mg.
func LSI(e, f, g, h []float64, le, me, lg, mg, n int, x, w []float64, jw []int, maxIter int) (xnorm float64, mode sqpMode) {
	if n < 1 {
		return 0, BadArgument
	}

	for i := range n {
		j := min(i+1, n-1)
		t := h1(i, i+1, me, e[i*le:], 1)
		h2(i, i+1, me, e[i*le:], 1, t, e[j*le:], 1, le, n-i-1)
		h2(i, i+1, me, e[i*le:], 1, t, f, 1, 1, 1)
	}

	for i := range mg {
		for j := range n {
			diag := e[j+le*j]
			if math.Abs(diag) < eps || math.IsNaN(diag) {
				return math.NaN(), LSISingularE
			}
			g[i+lg*j] = (g[i+lg*j] - blas64.Dot(vec(j, g[i:], lg), vec(j, e[j*le:], 1))) / diag
		}
		h[i] -= blas64.Dot(vec(n, g[i:], lg), vec(n, f, 1))
	}

	if xnorm, mode = LDP(mg, n, g, lg, h, x, w, jw, maxIter); mode != HasSolution {
		return
	}
	// back substitute R x = z + f₁
	blas64.Axpy(one, vec(n, f, 1), vec(n, x, 1))
	for i := n - 1; i >= 0; i-- {
		j := min(i+1, n-1)
		x[i] = (x[i] - blas64.Dot(vec(n-i-1, e[i+le*j:], le), vec(n-i-1, x[j:], 1))) / e[i+le*i]
	}
	j := min(n, me-1)
	xnorm = math.Hypot(xnorm, blas64.Nrm2(vec(me-n, f[j:], 1)))
	return
}
