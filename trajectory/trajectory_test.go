// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trajectory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curioloop/trajopt/collocation"
	"github.com/curioloop/trajopt/constraint"
	"github.com/curioloop/trajopt/legged"
	"github.com/curioloop/trajopt/nlp"
	"github.com/curioloop/trajopt/poly"
	"github.com/curioloop/trajopt/sym"
)

// reach drives ẋ = u from 0 towards 1 over the horizon, minimizing ∫u² + 100(x(T) - 1)².
// The optimum is the constant control c = 100/101 with J = c.
func reach(t *testing.T) Problem {
	x, x2, dx, u, dt := sym.SymVec("x", 1), sym.SymVec("x2", 1), sym.SymVec("dx", 1), sym.SymVec("u", 1), sym.SymVec("dt", 1)
	fn := func(name string, in []sym.Vec, out sym.Vec) *sym.Function {
		f, err := sym.NewFunction(name, in, []sym.Vec{out})
		require.NoError(t, err)
		return f
	}
	miss := sym.Sub(x[0], sym.Const(1))
	return Problem{
		Fint:   fn("Fint", []sym.Vec{x, dx, dt}, x.Add(dx)),
		Fdif:   fn("Fdif", []sym.Vec{x, x2, dt}, x2.Sub(x)),
		F:      fn("F", []sym.Vec{x, u}, u),
		L:      fn("L", []sym.Vec{x, u}, sym.Vec{sym.Sq(u[0])}),
		Phi:    fn("Phi", []sym.Vec{x}, sym.Vec{sym.Scale(100, sym.Sq(miss))}),
		States: collocation.States{NX: 1, NDX: 1, NU: 1},
	}
}

func precise(t *testing.T) nlp.Solver {
	s, err := nlp.NewSLSQP(map[string]any{"accuracy": 1e-10, "max_iter": 500},
		nlp.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	return s
}

// limit caps the control from above.
type limit struct{ umax float64 }

func capBuilder() constraint.Builder[limit] {
	return constraint.Compose(constraint.Parts[limit]{
		Name: "cap",
		CreateFunction: func(l limit, phase int) (*sym.Function, error) {
			x, u := sym.SymVec("x", 1), sym.SymVec("u", 1)
			return sym.NewFunction("cap", []sym.Vec{x, u}, []sym.Vec{u})
		},
		CreateBounds: func(l limit, phase int) (*sym.Function, *sym.Function, error) {
			lo, up := constraint.ConstantBounds([]float64{-1e3}, []float64{l.umax})
			return lo, up, nil
		},
	})
}

func TestValidate(t *testing.T) {
	p := reach(t)
	require.NoError(t, p.Validate())

	bad := p
	bad.Phi = p.L
	assert.Error(t, bad.Validate())

	bad = p
	bad.Fdif = nil
	assert.ErrorIs(t, bad.Validate(), ErrProblem)

	bad = p
	bad.States.NU = 2
	assert.Error(t, bad.Validate())

	_, err := New(p, limit{}, nil, nil)
	assert.ErrorIs(t, err, ErrProblem)
	_, err = New(p, limit{}, nil, UniformPhases{Count: 1, Knots: 0, Duration: 1})
	assert.ErrorIs(t, err, ErrProblem)
	_, err = New(p, limit{}, nil, UniformPhases{Count: 1, Knots: 2, Duration: 0})
	assert.ErrorIs(t, err, ErrProblem)
}

func TestNotBuilt(t *testing.T) {
	opt, err := New(reach(t), limit{}, nil, UniformPhases{Count: 1, Knots: 2, Duration: 1})
	require.NoError(t, err)
	_, err = opt.Optimize(context.Background())
	assert.ErrorIs(t, err, ErrNotBuilt)
	assert.ErrorIs(t, opt.InitialGuess(nil), ErrNotBuilt)
	assert.Nil(t, opt.Program())
	assert.ErrorIs(t, opt.InitFiniteElements(3, []float64{0, 0}), collocation.ErrDimension)
}

func TestAssembly(t *testing.T) {
	opt, err := New(reach(t), limit{}, nil, UniformPhases{Count: 2, Knots: 2, Duration: 0.5},
		WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	require.NoError(t, opt.InitFiniteElements(3, []float64{0}))

	prog := opt.Program()
	segs := opt.Segments()
	require.Len(t, segs, 2)

	// per segment: dXc 2·3, dX0 3, U 2·2
	assert.Len(t, prog.W, 2*13)
	// per segment: 2·3 collocation + 2 continuity, then one stitch row
	assert.Len(t, prog.G, 2*8+1)
	assert.Equal(t, collocation.Range{Start: 13, End: 26}, segs[1].RangeDecisionVariables())

	// initial deviation pinned, others free
	first := segs[0].BoundaryOffset(0)
	assert.Equal(t, 0.0, prog.LBX[first])
	assert.Equal(t, 0.0, prog.UBX[first])
	assert.Less(t, prog.LBX[first+1], -1e300)

	times := opt.Times()
	assert.Len(t, times, 2*(2*4+1))
	assert.InDelta(t, 0.5, times[8], 1e-15)
	assert.InDelta(t, 0.5, times[9], 1e-15)
	assert.InDelta(t, 1.0, times[len(times)-1], 1e-15)

	require.NoError(t, opt.InitialGuess(func(t float64) ([]float64, []float64) {
		return []float64{t}, []float64{1}
	}))
	x0 := prog.X0
	for i, seg := range segs {
		base := seg.RangeDecisionVariables().Start
		for k := 0; k <= seg.Knots(); k++ {
			want := 0.5*float64(i) + float64(k)*seg.Step()
			assert.InDelta(t, want, x0[base+seg.BoundaryOffset(k)], 1e-12)
		}
		assert.Equal(t, 1.0, x0[base+seg.ControlOffset(0)])
	}

	// the exact linear trajectory satisfies every constraint
	c, err := prog.Compile(nlp.Exact)
	require.NoError(t, err)
	g := make([]float64, c.NumConstraints())
	c.Constraints(x0, g)
	sol := &nlp.Solution{X: x0, G: g}
	assert.Less(t, sol.Violation(prog), 1e-12)
}

func TestOptimize(t *testing.T) {
	const want = 100.0 / 101.0

	for _, phases := range []UniformPhases{
		{Count: 1, Knots: 4, Duration: 1},
		{Count: 2, Knots: 2, Duration: 0.5},
	} {
		opt, err := New(reach(t), limit{}, nil, phases, WithSolver(precise(t)))
		require.NoError(t, err)
		require.NoError(t, opt.InitFiniteElements(3, []float64{0}))

		sol, err := opt.Optimize(context.Background())
		require.NoError(t, err)
		require.True(t, sol.NLP.Success, sol.NLP.Status)

		assert.InDelta(t, want, sol.NLP.F, 1e-6)
		require.Len(t, sol.States, 5)
		require.Len(t, sol.Times, 5)
		for k, x := range sol.States {
			assert.InDelta(t, want*sol.Times[k], x[0], 1e-4)
		}
		assert.InDelta(t, 1.0, sol.Times[4], 1e-15)
		assert.Len(t, sol.Controls, 4*2)
		assert.Len(t, sol.ControlTimes, 4*2)
		for _, u := range sol.Controls {
			assert.InDelta(t, want, u[0], 1e-3)
		}
	}
}

func TestOptimizeWithConstraint(t *testing.T) {
	opt, err := New(reach(t), limit{umax: 0.5}, []constraint.Builder[limit]{capBuilder()},
		UniformPhases{Count: 1, Knots: 3, Duration: 1},
		WithScheme(poly.Radau), WithParallelMap(true), WithSolver(precise(t)))
	require.NoError(t, err)
	require.NoError(t, opt.InitFiniteElements(2, []float64{0}))

	// 3·2 collocation + 3 continuity + 3·2 cap rows
	assert.Len(t, opt.Program().G, 15)

	sol, err := opt.Optimize(context.Background())
	require.NoError(t, err)
	require.True(t, sol.NLP.Success, sol.NLP.Status)
	assert.InDelta(t, 0.5, sol.States[len(sol.States)-1][0], 1e-4)
	for _, u := range sol.Controls {
		assert.LessOrEqual(t, u[0], 0.5+1e-6)
	}
}

func TestLeggedStanding(t *testing.T) {
	m := &legged.Model{Mass: 20, Inertia: [3]float64{0.8, 0.6, 0.4}, Gravity: 9.81, Feet: []string{"left", "right"}}
	seq := legged.NewContactSequence(2)
	require.NoError(t, seq.AddPhase(legged.Stance(2, 0), 2, 0.2))
	require.NoError(t, seq.AddPhase(legged.Stance(2, 0), 2, 0.2))
	data := &legged.ProblemData{Model: m, Surfaces: legged.Surfaces{legged.InfiniteGround()}, Sequence: seq, Mu: 0.7}
	require.NoError(t, data.Validate())

	x0, err := m.State([3]float64{0, 0, 0.5}, []float64{1, 0, 0, 0}, [][3]float64{{0, 0.15, 0}, {0, -0.15, 0}})
	require.NoError(t, err)
	L, err := m.RunningCost(x0, legged.DefaultWeights())
	require.NoError(t, err)
	Phi, err := m.TerminalCost(x0, legged.DefaultWeights())
	require.NoError(t, err)

	problem := Problem{
		Fint: m.Integrator(), Fdif: m.Difference(), F: m.Dynamics(), L: L, Phi: Phi,
		States: m.States(),
	}
	opt, err := New(problem, data, legged.Builders(), seq, WithParallelMap(true))
	require.NoError(t, err)
	require.NoError(t, opt.InitFiniteElements(2, x0))
	require.NoError(t, opt.InitialGuess(m.StaticGuess(x0, seq)))

	prog := opt.Program()
	c, err := prog.Compile(nlp.Exact)
	require.NoError(t, err)
	g := make([]float64, c.NumConstraints())
	c.Constraints(prog.X0, g)

	// standing still with the weight split between both feet is an equilibrium
	sol := &nlp.Solution{X: prog.X0, G: g}
	assert.Less(t, sol.Violation(prog), 1e-9)
	// only the force penalty 1e-4·Σ‖f‖² over 0.4s remains
	fz := 20 * 9.81 / 2
	assert.InDelta(t, 1e-4*2*fz*fz*0.4, c.Objective(prog.X0), 1e-9)
}
