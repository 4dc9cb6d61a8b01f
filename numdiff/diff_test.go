// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package numdiff

import (
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twist(x, y []float64) {
	y[0] = x[0] * math.Sin(x[1])
	y[1] = x[1] * math.Cos(x[0])
	y[2] = x[0] * x[0] * x[1]
}

func twistJac(x []float64) []float64 {
	return []float64{
		math.Sin(x[1]), x[0] * math.Cos(x[1]),
		-x[1] * math.Sin(x[0]), math.Cos(x[0]),
		2 * x[0] * x[1], x[0] * x[0],
	}
}

// chain is a forward Euler defect xᵢ₊₁ - xᵢ - h·xᵢ², one row per interval.
func chain(x, y []float64) {
	const h = 0.1
	for i := range y {
		y[i] = x[i+1] - x[i] - h*x[i]*x[i]
	}
}

func chainPattern(n int) [][]int {
	p := make([][]int, n-1)
	for i := range p {
		p[i] = []int{i, i + 1}
	}
	return p
}

func TestJacobianDense(t *testing.T) {
	x := []float64{0.7, -1.3}
	want := twistJac(x)
	for _, tt := range []struct {
		method Method
		tol    float64
	}{{Forward, 1e-6}, {Central, 1e-9}} {
		j := &Jacobian{N: 2, M: 3, Func: twist, Method: tt.method}
		jac := make([]float64, 6)
		require.NoError(t, j.Eval(x, jac))
		assert.InDeltaSlice(t, want, jac, tt.tol, "method %d", tt.method)
		assert.Equal(t, 2, j.Groups())
	}
}

func TestJacobianColoring(t *testing.T) {
	const n = 6
	x := []float64{0.5, -0.2, 1.1, 0.3, -0.8, 0.9}

	for _, method := range []Method{Forward, Central} {
		calls := 0
		counted := func(x, y []float64) { calls++; chain(x, y) }

		dense := &Jacobian{N: n, M: n - 1, Func: chain, Method: method}
		want := make([]float64, n*(n-1))
		require.NoError(t, dense.Eval(x, want))

		sparse := &Jacobian{N: n, M: n - 1, Func: counted, Method: method, Sparsity: chainPattern(n)}
		got := slices.Repeat([]float64{math.NaN()}, n*(n-1))
		xs := slices.Clone(x)
		require.NoError(t, sparse.Eval(xs, got))

		assert.Equal(t, x, xs, "x is restored")
		assert.Equal(t, 2, sparse.Groups(), "alternating columns share no row")
		if method == Forward {
			assert.Equal(t, 3, calls, "origin plus one call per group")
		} else {
			assert.Equal(t, 4, calls, "two calls per group")
		}
		assert.InDeltaSlice(t, want, got, 1e-12)
		for r := range n - 1 {
			for c := range n {
				if c != r && c != r+1 {
					assert.Zero(t, got[r*n+c], "(%d, %d) is outside the pattern", r, c)
				}
			}
		}
	}
}

func TestJacobianEmptyColumn(t *testing.T) {
	// x₂ appears in no row and gets no group of its own
	j := &Jacobian{N: 3, M: 1, Func: func(x, y []float64) { y[0] = 2 * x[0] * x[1] }, Sparsity: [][]int{{0, 1}}}
	jac := make([]float64, 3)
	require.NoError(t, j.Eval([]float64{1, 3, 5}, jac))
	assert.Equal(t, 2, j.Groups())
	assert.InDeltaSlice(t, []float64{6, 2, 0}, jac, 1e-6)
}

func TestJacobianStep(t *testing.T) {
	// a quadratic is differenced exactly by the central stencil at any step
	j := &Jacobian{N: 1, M: 1, Method: Central, Step: 0.5, Func: func(x, y []float64) { y[0] = x[0] * x[0] }}
	jac := make([]float64, 1)
	require.NoError(t, j.Eval([]float64{3}, jac))
	assert.InDelta(t, 6.0, jac[0], 1e-12)
}

func TestJacobianInvalid(t *testing.T) {
	f := func(x, y []float64) {}
	for name, j := range map[string]*Jacobian{
		"dimension":     {N: 0, M: 1, Func: f},
		"function":      {N: 1, M: 1},
		"step":          {N: 1, M: 1, Func: f, Step: -1},
		"method":        {N: 1, M: 1, Func: f, Method: Method(7)},
		"pattern rows":  {N: 2, M: 2, Func: f, Sparsity: [][]int{{0}}},
		"pattern range": {N: 2, M: 1, Func: f, Sparsity: [][]int{{2}}},
	} {
		assert.Error(t, j.Init(), name)
	}

	j := &Jacobian{N: 2, M: 1, Func: f}
	assert.Error(t, j.Eval([]float64{1}, make([]float64, 2)))
	assert.Error(t, j.Eval([]float64{1, 2}, make([]float64, 3)))
}

func TestGradient(t *testing.T) {
	f := func(x []float64) float64 { return x[0]*x[0] + 3*x[0]*x[1] }
	x := []float64{2, -1}
	g := make([]float64, 2)
	require.NoError(t, Gradient(Central, f, x, g))
	assert.InDeltaSlice(t, []float64{1, 6}, g, 1e-8)

	assert.Error(t, Gradient(Forward, f, x, g[:1]))
	assert.Error(t, Gradient(Method(-1), f, x, g))
}
