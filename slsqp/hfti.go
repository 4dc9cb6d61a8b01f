// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
)

// HFTI solves the least squares problems AX ≅ B for a possibly rank
// deficient A by Householder triangularization with column pivoting
// (Lawson & Hanson, Algorithm 14.9).
//
// A is m×n with leading dimension mda; B is m×nb with leading dimension mdb
// and receives the minimum length solutions in its first n rows. The pseudo
// rank k is the number of diagonal entries of the triangular factor larger
// than tau in magnitude; it is returned. When k < n the trailing block of the
// factor is dropped and the leading k rows are reduced to a triangle by a
// second set of reflections from the right. norm[j] receives the residual
// norm of column j. h and g need n entries, ip min(m, n).
func HFTI(a []float64, mda, m, n int, b []float64, mdb, nb int, tau float64, norm, h, g []float64, ip []int) int {
	const factor = 0.001

	diag := min(m, n)
	if diag <= 0 {
		return 0
	}
	if len(h) < n || len(ip) < diag {
		panic("slsqp: HFTI workspace too small")
	}

	col := func(j int) []float64 { return a[mda*j : mda*j+m] }

	// pivot on the largest remaining column, downdating the squared lengths
	// and recomputing them when cancellation makes the downdate unreliable
	hmax := zero
	for j := range diag {
		pick := j
		if j > 0 {
			best := math.Inf(-1)
			for l := j; l < n; l++ {
				t := a[(j-1)+mda*l]
				if h[l] -= t * t; h[l] > best {
					pick, best = l, h[l]
				}
			}
		}
		if j == 0 || factor*h[pick] < hmax*eps {
			best := math.Inf(-1)
			for l := j; l < n; l++ {
				tail := vec(m-j, a[j+mda*l:], 1)
				if h[l] = blas64.Dot(tail, tail); h[l] > best {
					pick, best = l, h[l]
				}
			}
			hmax = h[pick]
		}

		ip[j] = pick
		if pick != j {
			blas64.Swap(vec(m, col(j), 1), vec(m, col(pick), 1))
			h[pick] = h[j]
		}

		next := min(j+1, n-1)
		h[j] = h1(j, j+1, m, a[mda*j:], 1)
		h2(j, j+1, m, a[mda*j:], 1, h[j], a[mda*next:], 1, mda, n-j-1)
		h2(j, j+1, m, a[mda*j:], 1, h[j], b, 1, mdb, nb)
	}

	k := diag
	for j := range diag {
		if math.Abs(a[j+mda*j]) <= tau {
			k = j
			break
		}
	}

	for jb := range nb {
		norm[jb] = blas64.Nrm2(vec(m-k, b[mdb*jb+k:], 1))
	}

	if k == 0 {
		for jb := range nb {
			clear(b[mdb*jb : mdb*jb+n])
		}
		return 0
	}

	if k < n {
		for i := k - 1; i >= 0; i-- {
			g[i] = h1(i, k, n, a[i:], mda)
			h2(i, k, n, a[i:], mda, g[i], a, mda, 1, i)
		}
	}

	for jb := range nb {
		cb := b[mdb*jb:]
		cb[k-1] /= a[(k-1)*(mda+1)]
		for i := k - 2; i >= 0; i-- {
			cb[i] = (cb[i] - blas64.Dot(vec(k-i-1, a[i+mda*(i+1):], mda), vec(k-i-1, cb[i+1:], 1))) / a[i+mda*i]
		}
		if k < n {
			clear(cb[k:n])
			for i := range k {
				h2(i, k, n, a[i:], mda, g[i], cb, 1, mdb, 1)
			}
		}
		for j := diag - 1; j >= 0; j-- {
			if l := ip[j]; l != j {
				cb[l], cb[j] = cb[j], cb[l]
			}
		}
	}
	return k
}
