// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNNLS(t *testing.T) {
	// min ‖Ax - b‖ with A = [1 0; 0 1; 1 1]; the unconstrained solution (1, -1)
	// violates x ≥ 0, so x₂ is held at zero and x₁ = ½.
	const m, n = 3, 2
	a := []float64{1, 0, 1, 0, 1, 1}
	b := []float64{1, -1, 0}
	x := make([]float64, n)
	w := make([]float64, n)
	z := make([]float64, m)
	index := make([]int, n)

	rnorm, mode := NNLS(m, n, a, m, b, x, w, z, index, 0)
	require.Equal(t, HasSolution, mode)
	assert.InDeltaSlice(t, []float64{0.5, 0}, x, 1e-14)
	assert.InDelta(t, math.Sqrt(1.5), rnorm, 1e-14)
	assert.Less(t, w[1], 0.0, "the dual of the held variable points outward")

	_, mode = NNLS(0, n, a, m, b, x, w, z, index, 0)
	assert.Equal(t, BadArgument, mode)
}

func TestLDP(t *testing.T) {
	// min ‖x‖ subject to x₁ + x₂ ≥ 2 and x₁ ≥ 1.5: both rows are active.
	const m, n = 2, 2
	g := []float64{1, 1, 1, 0}
	h := []float64{2, 1.5}
	x := make([]float64, n)
	w := make([]float64, (n+1)*(m+2)+2*m)
	jw := make([]int, m)

	norm, mode := LDP(m, n, g, m, h, x, w, jw, 0)
	require.Equal(t, HasSolution, mode)
	assert.InDeltaSlice(t, []float64{1.5, 0.5}, x, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), norm, 1e-12)
	// x = Gᵀλ
	assert.InDeltaSlice(t, []float64{0.5, 1}, w[:m], 1e-12)

	// x ≥ 1 and -x ≥ 0 have no common point
	x = x[:1]
	norm, mode = LDP(2, 1, []float64{1, -1}, 2, []float64{1, 0}, x, w, jw, 0)
	assert.Equal(t, ConsIncompatible, mode)
	assert.True(t, math.IsNaN(norm))

	_, mode = LDP(0, 1, nil, 0, nil, x, w, jw, 0)
	assert.Equal(t, OK, mode)
}

func TestLSEI(t *testing.T) {
	// Nearest point to f = (1, 2, 3) with a continuity row x₁ = x₂ and the
	// cap x₃ ≤ 2 written as -x₃ ≥ -2.
	const n, mc, me, mg = 3, 1, 3, 1
	c := []float64{1, -1, 0}
	d := []float64{0}
	e := []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
	f := []float64{1, 2, 3}
	g := []float64{0, 0, -1}
	h := []float64{-2}
	x := make([]float64, n)
	w := make([]float64, 2*mc+me+(me+mg)*(n-mc)+(n-mc+1)*(mg+2)+2*mg)
	jw := make([]int, max(mg, min(me, n-mc)))

	norm, mode := LSEI(c, d, e, f, g, h, mc, mc, me, me, mg, mg, n, x, w, jw, 0)
	require.Equal(t, HasSolution, mode)
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 2}, x, 1e-12)
	assert.InDelta(t, math.Sqrt(1.5), norm, 1e-12)
	// Eᵀ(Ex - f) = Cᵀμ + Gᵀλ with μ = ½ and λ = 1
	assert.InDelta(t, 0.5, w[0], 1e-12)
	assert.InDelta(t, 1.0, w[mc], 1e-12)

	_, mode = LSEI(c, d, e, f, g, h, mc, mc, me, me, mg, mg, 0, x, w, jw, 0)
	assert.Equal(t, BadArgument, mode)
}

func TestLSEISingular(t *testing.T) {
	// a zero equality row cannot be triangularized
	const n, mc, me = 2, 1, 2
	c := []float64{0, 0}
	d := []float64{1}
	e := []float64{1, 0, 0, 1}
	f := []float64{1, 1}
	x := make([]float64, n)
	w := make([]float64, 2*mc+me+me*(n-mc)+(n-mc+1)*2)
	jw := make([]int, min(me, n-mc))

	_, mode := LSEI(c, d, e, f, nil, nil, mc, mc, me, me, 0, 0, n, x, w, jw, 0)
	assert.Equal(t, LSEISingularC, mode)
}

func TestHFTI(t *testing.T) {
	const mda, n = 3, 2
	h := make([]float64, n)
	g := make([]float64, n)
	ip := make([]int, n)
	norm := make([]float64, 1)

	// two identical columns: pseudo-rank one and the minimal length solution
	a := []float64{1, 1, 0, 1, 1, 0}
	b := []float64{1, 1, 0}
	rank := HFTI(a, mda, mda, n, b, mda, 1, 1e-10, norm, h, g, ip)
	assert.Equal(t, 1, rank)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, b[:n], 1e-12)
	assert.InDelta(t, 0.0, norm[0], 1e-12)

	// full rank with a residual in the third row
	a = []float64{1, 0, 0, 0, 2, 0}
	b = []float64{3, 4, 5}
	rank = HFTI(a, mda, mda, n, b, mda, 1, 1e-10, norm, h, g, ip)
	assert.Equal(t, 2, rank)
	assert.InDeltaSlice(t, []float64{3, 2}, b[:n], 1e-12)
	assert.InDelta(t, 5.0, norm[0], 1e-12)
}

func TestHouseholder(t *testing.T) {
	u := []float64{3, 4}
	up := h1(0, 1, 2, u, 1)
	assert.InDelta(t, -5.0, u[0], 1e-15)
	assert.InDelta(t, 8.0, up, 1e-15)

	c := []float64{3, 4}
	h2(0, 1, 2, u, 1, up, c, 1, 1, 1)
	assert.InDeltaSlice(t, []float64{-5, 0}, c, 1e-14)

	// a reflection is its own inverse
	c = []float64{1, 0}
	h2(0, 1, 2, u, 1, up, c, 1, 1, 1)
	assert.InDeltaSlice(t, []float64{-0.6, -0.8}, c, 1e-14)
	h2(0, 1, 2, u, 1, up, c, 1, 1, 1)
	assert.InDeltaSlice(t, []float64{1, 0}, c, 1e-14)

	// pivot outside the range is the identity
	v := []float64{3, 4}
	assert.Zero(t, h1(1, 1, 2, v, 1))
	assert.Equal(t, []float64{3, 4}, v)
}

func TestGivens(t *testing.T) {
	for _, tt := range []struct{ a, b float64 }{{3, 4}, {-3, 4}, {4, -3}, {1e-200, 1}} {
		c, s, sig := g1(tt.a, tt.b)
		assert.InDelta(t, math.Hypot(tt.a, tt.b), sig, 1e-14)
		xr, yr := g2(c, s, tt.a, tt.b)
		assert.InDelta(t, sig, xr, 1e-14)
		assert.InDelta(t, 0.0, yr, 1e-14)
	}
	c, s, sig := g1(0, 0)
	assert.Equal(t, [3]float64{0, 1, 0}, [3]float64{c, s, sig})
}

func TestCompositeT(t *testing.T) {
	// I + zzᵀ with z = (1, 1) factors as d = (2, 1.5), l₂₁ = ½
	l := []float64{1, 0, 1}
	compositeT(2, l, []float64{1, 1}, 1, nil)
	assert.InDeltaSlice(t, []float64{2, 0.5, 1.5}, l, 1e-15)

	// and the downdate restores the identity
	compositeT(2, l, []float64{1, 1}, -1, make([]float64, 2))
	assert.InDeltaSlice(t, []float64{1, 0, 1}, l, 1e-12)
}

func TestFindMin(t *testing.T) {
	merit := func(a float64) float64 { return (a - 0.3) * (a - 0.3) }
	span := Bound{0.1, 1}

	var fw findWork
	alpha, mode := findMin(findNoop, &fw, math.NaN(), 1e-8, span)
	require.Equal(t, findInit, mode)
	for calls := 0; mode != findConv; calls++ {
		require.Less(t, calls, 100)
		require.True(t, alpha >= span.Lower && alpha <= span.Upper)
		alpha, mode = findMin(mode, &fw, merit(alpha), 1e-8, span)
	}
	assert.InDelta(t, 0.3, alpha, 1e-6)
}
