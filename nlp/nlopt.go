// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows && !no_cgo && cgo

package nlp

import (
	"context"
	"slices"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// NLopt solves problems with the NLopt implementation of SLSQP.
type NLopt struct {
	backend
}

var _ Solver = (*NLopt)(nil)

// NewNLopt creates an NLopt backend from an option dictionary.
func NewNLopt(opts map[string]any, options ...Option) (*NLopt, error) {
	b, err := newBackend("nlopt", opts, options...)
	if err != nil {
		return nil, err
	}
	return &NLopt{b}, nil
}

// Solve implements Solver.
//
// Constraints are registered one scalar row at a time; the rows of a single
// evaluation share the cached constraint vector and Jacobian.
func (s *NLopt) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	c, err := p.Compile(s.opts.Jacobian)
	if err != nil {
		return nil, err
	}
	n := c.NumVariables()
	eq, neq := splitRows(p.LBG, p.UBG)
	cache := newEvalCache(c)

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(n))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	var (
		evals int
		last  = clampX0(p)
	)
	objective := func(x, gradient []float64) float64 {
		evals++
		copy(last, x)
		if ctx.Err() != nil {
			if err := opt.ForceStop(); err != nil {
				s.logger.Errorw("force stop error", "error", err)
			}
		}
		if len(gradient) > 0 {
			c.Gradient(x, gradient)
		}
		f := c.Objective(x)
		if s.opts.PrintLevel > 0 {
			s.logger.Infow("evaluation", "eval", evals, "f", f)
		}
		return f
	}

	row := func(r ineq, flip float64) nlopt.Func {
		return func(x, gradient []float64) float64 {
			if len(gradient) > 0 {
				jac := cache.jacobian(x)
				for j, v := range jac[r.row*n : (r.row+1)*n] {
					gradient[j] = flip * r.sign * v
				}
			}
			return flip * r.sign * (cache.values(x)[r.row] - r.bound)
		}
	}

	tol := s.opts.Accuracy
	err = multierr.Combine(
		opt.SetLowerBounds(p.LBX),
		opt.SetUpperBounds(p.UBX),
		opt.SetFtolRel(s.opts.FTol),
		opt.SetXtolRel(s.opts.XTol),
		opt.SetMinObjective(objective),
	)
	if s.opts.MaxEval > 0 {
		err = multierr.Append(err, opt.SetMaxEval(s.opts.MaxEval))
	} else {
		err = multierr.Append(err, opt.SetMaxEval(s.opts.MaxIter))
	}
	for _, r := range eq {
		err = multierr.Append(err, opt.AddEqualityConstraint(row(r, 1), tol))
	}
	// nlopt expects fc(x) ≤ 0
	for _, r := range neq {
		err = multierr.Append(err, opt.AddInequalityConstraint(row(r, -1), tol))
	}
	if err != nil {
		return nil, errors.Wrap(err, "nlopt setup")
	}

	s.logger.Debugw("solving", "variables", n, "equalities", len(eq), "inequalities", len(neq))

	x, f, optErr := opt.Optimize(slices.Clone(last))
	status := opt.LastStatus()
	sol := &Solution{
		X:          x,
		F:          f,
		Status:     status,
		Iterations: evals,
	}
	if x == nil {
		sol.X = slices.Clone(last)
		sol.F = c.Objective(sol.X)
	}
	sol.G = make([]float64, c.NumConstraints())
	c.Constraints(sol.X, sol.G)
	switch status {
	case "SUCCESS", "STOPVAL_REACHED", "FTOL_REACHED", "XTOL_REACHED":
		sol.Success = sol.Violation(p) <= tol
	}

	s.logger.Debugw("finished", "status", status, "evaluations", evals, "f", sol.F,
		"violation", sol.Violation(p))

	if ctx.Err() != nil {
		return sol, multierr.Combine(optErr, ctx.Err())
	}
	if optErr != nil && status != "ROUNDOFF_LIMITED" {
		return sol, errors.Wrap(optErr, "nlopt")
	}
	return sol, nil
}
