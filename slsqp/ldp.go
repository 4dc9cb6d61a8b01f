// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
)

// LDP finds the shortest x with Gx ≥ h (Lawson & Hanson, Algorithm 23.27).
//
// G is m×n with leading dimension mdg and any rank. The problem is handed
// to NNLS as min ‖Eu - f‖ over u ≥ 0 with E = [G h]ᵀ and f = eₙ₊₁. If the
// residual r of that fit is non-zero then x = -r[:n]/r[n] and the
// multipliers are u/(-r[n]); a zero residual means Gx ≥ h has no solution.
//
// w needs (n+1)(m+2) + 2m entries and receives the multipliers in w[:m];
// jw needs m.
func LDP(m, n int, g []float64, mdg int, h, x, w []float64, jw []int, maxIter int) (xnorm float64, mode sqpMode) {
	if n <= 0 {
		return math.NaN(), BadArgument
	}
	if m <= 0 {
		return 0, OK
	}
	if m > mdg || len(g) < mdg*n || len(h) < m || len(x) < n || len(w) < (n+1)*(m+2)+2*m || len(jw) < m {
		panic("slsqp: LDP workspace too small")
	}

	n1 := n + 1
	e, w1 := w[:m*n1], w[m*n1:]
	f, w1 := w1[:n1], w1[n1:]
	z, w1 := w1[:n1], w1[n1:]
	u, dual := w1[:m], w1[m:2*m]

	for j := range m {
		blas64.Copy(vec(n, g[j:], mdg), vec(n, e[j*n1:], 1))
		e[j*n1+n] = h[j]
	}
	clear(f[:n])
	f[n] = one

	rnorm, mode := NNLS(n1, m, e, n1, f, u, dual, z, jw, maxIter)
	if mode != HasSolution {
		return math.NaN(), mode
	}
	if rnorm <= zero {
		return math.NaN(), ConsIncompatible
	}
	// -r[n] = 1 - hᵀu
	scale := one - blas64.Dot(vec(m, h, 1), vec(m, u, 1))
	if math.IsNaN(scale) || scale < eps {
		return math.NaN(), ConsIncompatible
	}
	scale = one / scale

	for j := range n {
		x[j] = blas64.Dot(vec(m, g[mdg*j:], 1), vec(m, u, 1)) * scale
	}
	for j := range m {
		w[j] = u[j] * scale
	}
	return blas64.Nrm2(vec(n, x, 1)), HasSolution
}
