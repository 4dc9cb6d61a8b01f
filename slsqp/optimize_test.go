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

// transfer is a single integrator x' = u over K intervals of width h, laid out
// like a collocated segment: states x₀..x_K then controls u₀..u_{K-1}.
type transfer struct {
	K int
	h float64
}

func (tr transfer) n() int { return 2*tr.K + 1 }

// effort is h Σ u².
func (tr transfer) effort() Evaluation {
	return Evaluation{
		Function: func(x []float64) (f float64) {
			for _, u := range x[tr.K+1:] {
				f += tr.h * u * u
			}
			return
		},
		Derivative: func(x []float64, d []float64) {
			clear(d[:tr.K+1])
			for k, u := range x[tr.K+1:] {
				d[tr.K+1+k] = 2 * tr.h * u
			}
		},
	}
}

// defects pins x₀ = 0 and x_K = 1 and ties the knots with x_{k+1} - x_k - h u_k.
func (tr transfer) defects() Block {
	K, n := tr.K, tr.n()
	return Block{
		Size: K + 2,
		Function: func(x []float64, c []float64) {
			c[0] = x[0]
			for k := range K {
				c[1+k] = x[k+1] - x[k] - tr.h*x[K+1+k]
			}
			c[K+1] = x[K] - 1
		},
		Derivative: func(x []float64, a []float64, lda int) {
			for j := range n {
				for i := range K + 2 {
					a[i+j*lda] = 0
				}
			}
			a[0] = 1
			for k := range K {
				row := 1 + k
				a[row+(k+1)*lda] = 1
				a[row+k*lda] = -1
				a[row+(K+1+k)*lda] = -tr.h
			}
			a[K+1+K*lda] = 1
		},
	}
}

// capped limits the first two controls with rows cap - u ≥ 0.
func (tr transfer) capped(limit float64) Block {
	K, n := tr.K, tr.n()
	return Block{
		Size: 2,
		Function: func(x []float64, c []float64) {
			c[0] = limit - x[K+1]
			c[1] = limit - x[K+2]
		},
		Derivative: func(x []float64, a []float64, lda int) {
			for j := range n {
				a[j*lda], a[1+j*lda] = 0, 0
			}
			a[(K+1)*lda] = -1
			a[1+(K+2)*lda] = -1
		},
	}
}

func TestCollocationRows(t *testing.T) {
	tr := transfer{K: 4, h: 0.25}
	p := Problem{
		N:          tr.n(),
		Objective:  tr.effort(),
		Equalities: []Block{tr.defects()},
		Stop:       Termination{Accuracy: 1e-10, MaxIterations: 100},
	}
	s, err := p.New()
	require.NoError(t, err)
	r := s.Fit(make([]float64, tr.n()), s.Init())

	require.True(t, r.OK, r.Status.String())
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.5, 0.75, 1, 1, 1, 1, 1}, r.X, 1e-6)
	assert.InDelta(t, 1.0, r.F, 1e-8)

	// the same rows split across two blocks
	whole := tr.defects()
	head := Block{
		Size: 1,
		Function: func(x []float64, c []float64) {
			c[0] = x[0]
		},
		Derivative: func(x []float64, a []float64, lda int) {
			for j := range tr.n() {
				a[j*lda] = 0
			}
			a[0] = 1
		},
	}
	rest := Block{
		Size: whole.Size - 1,
		Function: func(x []float64, c []float64) {
			all := make([]float64, whole.Size)
			whole.Function(x, all)
			copy(c, all[1:])
		},
		Derivative: func(x []float64, a []float64, lda int) {
			all := make([]float64, whole.Size*tr.n())
			whole.Derivative(x, all, whole.Size)
			for j := range tr.n() {
				copy(a[j*lda:j*lda+whole.Size-1], all[j*whole.Size+1:(j+1)*whole.Size])
			}
		},
	}
	p.Equalities = []Block{head, rest}
	s, err = p.New()
	require.NoError(t, err)
	q := s.Fit(make([]float64, tr.n()), s.Init())
	require.True(t, q.OK)
	assert.InDeltaSlice(t, r.X, q.X, 1e-12)
	assert.Equal(t, r.NumIter, q.NumIter)
}

func TestActiveCaps(t *testing.T) {
	// with u₀, u₁ ≤ ½ the remaining controls make up the distance
	tr := transfer{K: 4, h: 0.25}
	want := []float64{0.5, 0.5, 1.5, 1.5}

	byRows := Problem{
		N:            tr.n(),
		Objective:    tr.effort(),
		Equalities:   []Block{tr.defects()},
		Inequalities: []Block{tr.capped(0.5)},
		Stop:         Termination{Accuracy: 1e-10, MaxIterations: 100},
	}
	byBounds := byRows
	byBounds.Inequalities = nil
	byBounds.Bounds = make([]Bound, tr.n())
	for i := range byBounds.Bounds {
		byBounds.Bounds[i] = Bound{math.Inf(-1), math.Inf(1)}
	}
	byBounds.Bounds[tr.K+1].Upper = 0.5
	byBounds.Bounds[tr.K+2].Upper = 0.5

	for name, p := range map[string]Problem{"rows": byRows, "bounds": byBounds} {
		s, err := p.New()
		require.NoError(t, err, name)
		r := s.Fit(make([]float64, tr.n()), s.Init())
		require.True(t, r.OK, "%s: %v", name, r.Status)
		assert.InDeltaSlice(t, want, r.X[tr.K+1:], 1e-6, name)
		assert.InDelta(t, 1.25, r.F, 1e-6, name)
	}
}

func TestExactLineSearch(t *testing.T) {
	tr := transfer{K: 3, h: 1.0 / 3}
	p := Problem{
		N:          tr.n(),
		Objective:  tr.effort(),
		Equalities: []Block{tr.defects()},
		Line:       LineSearch{Exact: true},
		Stop:       Termination{Accuracy: 1e-8, MaxIterations: 100},
	}
	s, err := p.New()
	require.NoError(t, err)
	r := s.Fit(make([]float64, tr.n()), s.Init())
	require.True(t, r.OK, r.Status.String())
	assert.InDeltaSlice(t, []float64{1, 1, 1}, r.X[tr.K+1:], 1e-4)

	p.Stop.MaxIterations = 1
	p.Line = LineSearch{}
	s, err = p.New()
	require.NoError(t, err)
	r = s.Fit(make([]float64, tr.n()), s.Init())
	assert.False(t, r.OK)
	assert.Equal(t, SQPExceedMaxIter, r.Status)
	assert.Equal(t, 1, r.NumIter)
}

func TestInconsistentLinearization(t *testing.T) {
	// x² = 1 has a zero gradient at the start, so the first subproblem is
	// only solvable through the relaxation.
	p := Problem{
		N: 1,
		Objective: Evaluation{
			Function:   func(x []float64) float64 { return (x[0] - 2) * (x[0] - 2) },
			Derivative: func(x []float64, d []float64) { d[0] = 2 * (x[0] - 2) },
		},
		Equalities: []Block{{
			Size:       1,
			Function:   func(x []float64, c []float64) { c[0] = x[0]*x[0] - 1 },
			Derivative: func(x []float64, a []float64, lda int) { a[0] = 2 * x[0] },
		}},
		Bounds: []Bound{{-10, 10}},
		Stop:   Termination{Accuracy: 1e-9, MaxIterations: 100},
	}
	s, err := p.New()
	require.NoError(t, err)
	r := s.Fit([]float64{0}, s.Init())
	require.True(t, r.OK, r.Status.String())
	assert.InDelta(t, 1.0, r.X[0]*r.X[0], 1e-6)
}

func TestEvaluationPanic(t *testing.T) {
	tr := transfer{K: 2, h: 0.5}
	p := Problem{
		N: tr.n(),
		Objective: Evaluation{
			Function:   func(x []float64) float64 { panic("diverged") },
			Derivative: tr.effort().Derivative,
		},
		Stop: Termination{Accuracy: 1e-8, MaxIterations: 10},
	}
	s, err := p.New()
	require.NoError(t, err)
	r := s.Fit(make([]float64, tr.n()), s.Init())
	assert.Equal(t, BadArgument, r.Status)
	assert.Equal(t, "bad argument", r.Status.String())
}

func prob71() (obj Evaluation, block Block, x []float64, bounds []Bound) {
	obj = Evaluation{
		Function: func(x []float64) float64 {
			return x[0]*x[3]*(x[0]+x[1]+x[2]) + x[2]
		},
		Derivative: func(x []float64, d []float64) {
			d[0] = x[3] * (2.0*x[0] + x[1] + x[2])
			d[1] = x[0] * x[3]
			d[2] = x[0]*x[3] + 1.0
			d[3] = x[0] * (x[0] + x[1] + x[2])
			d[4] = 0.0
		},
	}
	block = Block{
		Size: 2,
		Function: func(x []float64, c []float64) {
			c[0] = x[0]*x[1]*x[2]*x[3] - x[4] - 25
			c[1] = x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3] - 40
		},
		Derivative: func(x []float64, a []float64, lda int) {
			a[0*lda], a[0*lda+1] = x[1]*x[2]*x[3], 2*x[0]
			a[1*lda], a[1*lda+1] = x[0]*x[2]*x[3], 2*x[1]
			a[2*lda], a[2*lda+1] = x[0]*x[1]*x[3], 2*x[2]
			a[3*lda], a[3*lda+1] = x[0]*x[1]*x[2], 2*x[3]
			a[4*lda], a[4*lda+1] = -1, 0
		},
	}
	x = []float64{1, 5, 5, 1, -24}
	bounds = []Bound{{1, 5}, {1, 5}, {1, 5}, {1, 5}, {0, 1e10}}
	return
}

func TestBlockCons(t *testing.T) {
	obj, block, x, bounds := prob71()
	p := Problem{
		N:          5,
		Objective:  obj,
		Equalities: []Block{block},
		Stop:       Termination{Accuracy: 1e-8, MaxIterations: 50},
		Bounds:     bounds,
	}
	s, err := p.New()
	require.NoError(t, err)
	r := s.Fit(x, s.Init())

	require.True(t, r.OK)
	assert.InDeltaSlice(t, []float64{1, 4.7429996586260321, 3.8211499562762130, 1.3794082970345380, 0}, r.X, 1e-10)
	assert.Equal(t, []float64{1, 5, 5, 1, -24}, x, "the initial point is not modified")
}

func TestCallback(t *testing.T) {
	obj, block, x, bounds := prob71()

	var seen []int
	p := Problem{
		N:          5,
		Objective:  obj,
		Equalities: []Block{block},
		Stop:       Termination{Accuracy: 1e-8, MaxIterations: 50},
		Bounds:     bounds,
		Callback: func(iter int, x []float64, f float64) bool {
			seen = append(seen, iter)
			return iter >= 2
		},
	}
	s, err := p.New()
	require.NoError(t, err)
	r := s.Fit(x, s.Init())

	assert.False(t, r.OK)
	assert.Equal(t, Interrupted, r.Status)
	require.NotEmpty(t, seen)
	assert.Equal(t, r.NumIter, seen[len(seen)-1])
	assert.GreaterOrEqual(t, r.NumIter, 2)
	assert.Equal(t, "interrupted", Interrupted.String())
}

func TestProblemCheck(t *testing.T) {
	obj, block, _, _ := prob71()
	stop := Termination{Accuracy: 1e-8, MaxIterations: 50}

	tests := []struct {
		name string
		p    Problem
	}{
		{"dimension", Problem{N: 0, Objective: obj, Stop: stop}},
		{"objective", Problem{N: 5, Stop: stop}},
		{"iterations", Problem{N: 5, Objective: obj}},
		{"accuracy", Problem{N: 5, Objective: obj, Stop: Termination{MaxIterations: 5}}},
		{"tolerance", Problem{N: 5, Objective: obj, Stop: Termination{Accuracy: 1, MaxIterations: 5, XDiffTolerance: -1}}},
		{"line search", Problem{N: 5, Objective: obj, Stop: stop, Line: LineSearch{Alpha: &Bound{0.5, 2}}}},
		{"empty block", Problem{N: 5, Objective: obj, Stop: stop, Inequalities: []Block{{Function: block.Function, Derivative: block.Derivative}}}},
		{"nil block", Problem{N: 5, Objective: obj, Stop: stop, Equalities: []Block{{Size: 2}}}},
		{"too many equalities", Problem{N: 1, Objective: obj, Stop: stop, Equalities: []Block{block}}},
		{"bounds", Problem{N: 5, Objective: obj, Stop: stop, Bounds: []Bound{{0, 1}}}},
		{"crossed bound", Problem{N: 1, Objective: obj, Stop: stop, Bounds: []Bound{{2, 1}}}},
	}
	for _, tt := range tests {
		_, err := tt.p.New()
		assert.Error(t, err, tt.name)
	}

	_, err := (&Problem{N: 5, Objective: obj, Stop: stop, Equalities: []Block{block}}).New()
	assert.NoError(t, err)
}
