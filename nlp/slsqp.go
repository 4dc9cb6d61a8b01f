// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"context"
	"slices"

	"github.com/pkg/errors"

	"github.com/curioloop/trajopt/slsqp"
)

// SLSQP solves problems with the in-repo sequential least squares solver.
type SLSQP struct {
	backend
}

var _ Solver = (*SLSQP)(nil)

// NewSLSQP creates an SLSQP backend from an option dictionary.
func NewSLSQP(opts map[string]any, options ...Option) (*SLSQP, error) {
	b, err := newBackend("slsqp", opts, options...)
	if err != nil {
		return nil, err
	}
	return &SLSQP{b}, nil
}

// Solve implements Solver.
func (s *SLSQP) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	c, err := p.Compile(s.opts.Jacobian)
	if err != nil {
		return nil, err
	}
	n := c.NumVariables()
	eq, neq := splitRows(p.LBG, p.UBG)
	cache := newEvalCache(c)

	bounds := make([]slsqp.Bound, n)
	for i := range bounds {
		bounds[i] = slsqp.Bound{Lower: p.LBX[i], Upper: p.UBX[i]}
	}

	prob := slsqp.Problem{
		N: n,
		Stop: slsqp.Termination{
			Accuracy:       s.opts.Accuracy,
			MaxIterations:  s.opts.MaxIter,
			NNLSIterations: s.opts.NNLSIter,
			FDiffTolerance: s.opts.FTol,
			XDiffTolerance: s.opts.XTol,
		},
		Line: slsqp.LineSearch{Exact: s.opts.ExactLineSearch},
		Objective: slsqp.Evaluation{
			Function:   c.Objective,
			Derivative: c.Gradient,
		},
		Bounds: bounds,
		Callback: func(iter int, x []float64, f float64) bool {
			if s.opts.PrintLevel > 0 {
				s.logger.Infow("iteration", "iter", iter, "f", f)
			}
			return ctx.Err() != nil
		},
	}
	if len(eq) > 0 {
		prob.Equalities = []slsqp.Block{cache.block(eq)}
	}
	if len(neq) > 0 {
		prob.Inequalities = []slsqp.Block{cache.block(neq)}
	}

	opt, err := prob.New()
	if err != nil {
		return nil, errors.Wrap(err, "slsqp")
	}

	s.logger.Debugw("solving", "variables", n, "equalities", len(eq), "inequalities", len(neq),
		"jacobian", s.opts.Jacobian)

	x := clampX0(p)
	res := opt.Fit(x, opt.Init())

	sol := &Solution{
		X:          res.X,
		F:          res.F,
		G:          make([]float64, c.NumConstraints()),
		Success:    res.OK,
		Status:     res.Status.String(),
		Iterations: res.NumIter,
	}
	c.Constraints(sol.X, sol.G)

	s.logger.Debugw("finished", "status", sol.Status, "iterations", sol.Iterations, "f", sol.F,
		"violation", sol.Violation(p))

	if res.Status == slsqp.Interrupted {
		return sol, errors.Wrap(ctx.Err(), "slsqp interrupted")
	}
	return sol, nil
}

// clampX0 projects the initial guess into the variable bounds.
func clampX0(p *Problem) []float64 {
	x := slices.Clone(p.X0)
	for i := range x {
		x[i] = min(max(x[i], p.LBX[i]), p.UBX[i])
	}
	return x
}

// evalCache shares one constraint evaluation between the rows derived from it.
type evalCache struct {
	c *Compiled

	xg, g      []float64
	xj, jac    []float64
	hasG, hasJ bool
}

func newEvalCache(c *Compiled) *evalCache {
	n, m := c.NumVariables(), c.NumConstraints()
	return &evalCache{
		c:   c,
		xg:  make([]float64, n),
		g:   make([]float64, m),
		xj:  make([]float64, n),
		jac: make([]float64, m*n),
	}
}

func (e *evalCache) values(x []float64) []float64 {
	if !e.hasG || !slices.Equal(x, e.xg) {
		copy(e.xg, x)
		e.c.Constraints(x, e.g)
		e.hasG = true
	}
	return e.g
}

func (e *evalCache) jacobian(x []float64) []float64 {
	if !e.hasJ || !slices.Equal(x, e.xj) {
		copy(e.xj, x)
		e.c.Jacobian(x, e.jac)
		e.hasJ = true
	}
	return e.jac
}

// block exposes the rows as an slsqp constraint block.
func (e *evalCache) block(rows []ineq) slsqp.Block {
	n := e.c.NumVariables()
	return slsqp.Block{
		Size: len(rows),
		Function: func(x, c []float64) {
			g := e.values(x)
			for k, r := range rows {
				c[k] = r.sign * (g[r.row] - r.bound)
			}
		},
		Derivative: func(x, a []float64, lda int) {
			jac := e.jacobian(x)
			for k, r := range rows {
				row := jac[r.row*n : (r.row+1)*n]
				for j, v := range row {
					a[k+j*lda] = r.sign * v
				}
			}
		},
	}
}
