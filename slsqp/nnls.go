// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
)

// NNLS solves min ‖Ax - b‖₂ subject to x ≥ 0 by the active set method of
// Lawson & Hanson (Solving Least Squares Problems, Algorithm 23.10).
//
// A is m×n, column-major with leading dimension mda; any rank is allowed.
// The columns of the passive set P are triangularized in place by Householder
// reflections, so on return a holds QA and b holds Qb. Variables outside P
// are held at zero. x receives the solution and w the dual vector
// Aᵀ(b - Ax), which is zero on P and non-positive elsewhere at optimality.
// z (m) and index (n) are scratch. maxIter ≤ 0 selects 3n.
//
// The returned norm is ‖Ax - b‖₂, read off the untouched tail of Qb.
func NNLS(m, n int, a []float64, mda int, b, x, w, z []float64, index []int, maxIter int) (float64, sqpMode) {
	const factor = 0.01

	if m <= 0 || n <= 0 || mda < m ||
		len(a) < mda*n || len(b) < m || len(x) < n || len(w) < n || len(z) < m || len(index) < n {
		return math.NaN(), BadArgument
	}
	if maxIter <= 0 {
		maxIter = 3 * n
	}

	// index[:np] is P in triangularization order, index[np:] is Z
	index = index[:n]
	for i := range index {
		index[i] = i
	}
	np := 0
	clear(x[:n])

	iter := 0
	done := func() (float64, sqpMode) {
		var rnorm float64
		if np < m {
			rnorm = blas64.Nrm2(vec(m-np, b[np:], 1))
		} else {
			clear(w[:n])
		}
		if iter > maxIter {
			return rnorm, NNLSExceedMaxIter
		}
		return rnorm, HasSolution
	}

	for {
		if np >= n || np >= m {
			return done()
		}
		// with x zero on Z the dual there is Aⱼᵀ(Qb) below the triangle
		for _, j := range index[np:] {
			w[j] = blas64.Dot(vec(m-np, a[np+mda*j:], 1), vec(m-np, b[np:], 1))
		}

		for {
			best, at := zero, -1
			for i, j := range index[np:] {
				if w[j] > best {
					best, at = w[j], np+i
				}
			}
			if at < 0 {
				return done()
			}

			j := index[at]
			aj := a[mda*j : mda*j+m : mda*j+m]
			pivot := aj[np]
			up := h1(np, np+1, m, aj, 1)

			// the new diagonal must stand out from the triangle above it and
			// the trial value of xⱼ must be positive
			accept := false
			if math.Abs(aj[np])*factor >= blas64.Nrm2(vec(np, aj, 1))*eps {
				copy(z[:m], b[:m])
				h2(np, np+1, m, aj, 1, up, z, 1, 1, 1)
				accept = z[np]/aj[np] > zero
			}
			if !accept {
				aj[np] = pivot
				w[j] = zero
				continue
			}

			copy(b[:m], z[:m])
			index[at], index[np] = index[np], j
			np++
			for _, k := range index[np:] {
				h2(np-1, np, m, aj, 1, up, a[k*mda:], 1, mda, 1)
			}
			clear(aj[np:m])
			w[j] = zero
			break
		}

		// Solve the triangle for the free variables. Any that go non-positive
		// are pulled back to the boundary of the feasible region and dropped
		// from P until the solution is feasible.
		for {
			for ip, prev := np-1, -1; ip >= 0; ip-- {
				if prev >= 0 {
					blas64.Axpy(-z[ip+1], vec(ip+1, a[prev*mda:], 1), vec(ip+1, z, 1))
				}
				prev = index[ip]
				z[ip] /= a[ip+prev*mda]
			}

			if iter++; iter > maxIter {
				return done()
			}

			alpha, jj := two, -1
			for ip, l := range index[:np] {
				if z[ip] <= zero {
					if t := -x[l] / (z[ip] - x[l]); t < alpha {
						alpha, jj = t, ip
					}
				}
			}
			if jj < 0 {
				for ip, l := range index[:np] {
					x[l] = z[ip]
				}
				break
			}
			for ip, l := range index[:np] {
				x[l] += alpha * (z[ip] - x[l])
			}

			i := index[jj]
		drop:
			for {
				// remove column i from P and restore the triangle with rotations
				x[i] = zero
				for j := jj + 1; j < np; j++ {
					ii := index[j]
					index[j-1] = ii
					ci := a[ii*mda:]
					var c, s float64
					c, s, ci[j-1] = g1(ci[j-1], ci[j])
					ci[j] = zero
					for l := range n {
						if l != ii {
							cl := a[l*mda : l*mda+j+1 : l*mda+j+1]
							cl[j-1], cl[j] = g2(c, s, cl[j-1], cl[j])
						}
					}
					b[j-1], b[j] = g2(c, s, b[j-1], b[j])
				}
				np--
				index[np] = i

				// round-off may leave other members of P at or below zero
				for ip, l := range index[:np] {
					if x[l] <= zero {
						jj, i = ip, l
						continue drop
					}
				}
				break
			}
			copy(z[:m], b[:m])
		}
	}
}
