// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlp holds a symbolic nonlinear program and hands it to a numeric
// solver.
//
//	minimize    J(w)
//	subject to  lbg ≤ G(w) ≤ ubg
//	            lbx ≤ w ≤ ubx
//
// The decision vector w must consist of distinct symbols. Objective and
// constraints are compiled into tapes so that values and derivatives can be
// evaluated repeatedly without rebuilding the graph.
package nlp

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/curioloop/trajopt/numdiff"
	"github.com/curioloop/trajopt/sym"
)

// ErrProblem is returned when a problem is malformed.
var ErrProblem = errors.New("invalid nonlinear program")

// Problem is a symbolic nonlinear program.
type Problem struct {
	W   sym.Vec  // decision variables
	G   sym.Vec  // general constraints
	J   sym.Expr // objective
	LBG []float64
	UBG []float64
	LBX []float64
	UBX []float64
	X0  []float64 // initial guess
}

// Validate checks sizes and bound ordering.
func (p *Problem) Validate() error {
	n, m := len(p.W), len(p.G)
	var err error
	if n == 0 {
		err = multierr.Append(err, errors.Wrap(ErrProblem, "no decision variables"))
	}
	if !p.W.IsSymbolic() {
		err = multierr.Append(err, errors.Wrap(ErrProblem, "decision variables must be symbols"))
	}
	check := func(name string, v []float64, size int) {
		if len(v) != size {
			err = multierr.Append(err, errors.Wrapf(ErrProblem, "%s has size %d, expected %d", name, len(v), size))
		}
	}
	check("lbg", p.LBG, m)
	check("ubg", p.UBG, m)
	check("lbx", p.LBX, n)
	check("ubx", p.UBX, n)
	check("x0", p.X0, n)
	if err != nil {
		return err
	}
	for i := range m {
		if l, u := p.LBG[i], p.UBG[i]; math.IsNaN(l) || math.IsNaN(u) || l > u {
			err = multierr.Append(err, errors.Wrapf(ErrProblem, "constraint %d has bounds [%g, %g]", i, l, u))
		}
	}
	for i := range n {
		if l, u := p.LBX[i], p.UBX[i]; math.IsNaN(l) || math.IsNaN(u) || l > u {
			err = multierr.Append(err, errors.Wrapf(ErrProblem, "variable %d has bounds [%g, %g]", i, l, u))
		}
	}
	return err
}

func (p *Problem) String() string {
	return fmt.Sprintf("nlp(n=%d, m=%d)", len(p.W), len(p.G))
}

// Derivatives selects how Jacobians are obtained.
type Derivatives string

const (
	// Exact uses reverse-mode differentiation of the expression graph.
	Exact Derivatives = "exact"
	// Forward uses forward finite differences.
	Forward Derivatives = "forward"
	// Central uses central finite differences.
	Central Derivatives = "central"
)

func (d Derivatives) method() numdiff.Method {
	if d == Central {
		return numdiff.Central
	}
	return numdiff.Forward
}

// Compiled is the numeric form of a Problem.
//
// A Compiled is not safe for concurrent use when finite differences are
// selected.
type Compiled struct {
	n, m int
	mode Derivatives
	obj  *sym.Function
	cons *sym.Function

	pattern [][]int
	jacFD   *numdiff.Jacobian
}

// Compile packs the objective and constraints into evaluable functions.
func (p *Problem) Compile(mode Derivatives) (*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	obj, err := sym.NewFunction("J", []sym.Vec{p.W}, []sym.Vec{{p.J}})
	if err != nil {
		return nil, errors.Wrap(err, "compile objective")
	}
	cons, err := sym.NewFunction("G", []sym.Vec{p.W}, []sym.Vec{p.G})
	if err != nil {
		return nil, errors.Wrap(err, "compile constraints")
	}
	c := &Compiled{n: len(p.W), m: len(p.G), mode: mode, obj: obj, cons: cons}
	c.pattern = cons.Sparsity()

	switch mode {
	case Exact:
	case Forward, Central:
		if c.m > 0 {
			c.jacFD = &numdiff.Jacobian{
				N: c.n, M: c.m, Method: mode.method(),
				Func:     func(x, y []float64) { cons.EvalFlat(x, y) },
				Sparsity: c.pattern,
			}
			if err := c.jacFD.Init(); err != nil {
				return nil, errors.Wrap(err, "constraint differences")
			}
		}
	default:
		return nil, errors.Wrapf(ErrProblem, "unknown derivative mode %q", mode)
	}
	return c, nil
}

// NumVariables returns the number of decision variables.
func (c *Compiled) NumVariables() int { return c.n }

// NumConstraints returns the number of general constraints.
func (c *Compiled) NumConstraints() int { return c.m }

// Sparsity returns the structural nonzeros of each constraint row.
func (c *Compiled) Sparsity() [][]int { return c.pattern }

// Objective evaluates J at x.
func (c *Compiled) Objective(x []float64) float64 {
	y := []float64{0}
	c.obj.EvalFlat(x, y)
	return y[0]
}

// Gradient writes ∇J(x) into g.
func (c *Compiled) Gradient(x, g []float64) {
	if c.mode == Exact {
		c.obj.GradientFlat(x, g)
		return
	}
	if err := numdiff.Gradient(c.mode.method(), c.Objective, x, g[:c.n]); err != nil {
		panic(err)
	}
}

// Constraints writes G(x) into y.
func (c *Compiled) Constraints(x, y []float64) {
	c.cons.EvalFlat(x, y)
}

// Jacobian writes ∂G/∂x row-major into jac, which must hold m×n entries.
func (c *Compiled) Jacobian(x, jac []float64) {
	if c.m == 0 {
		return
	}
	if c.jacFD == nil {
		c.cons.JacobianFlat(x, jac, c.n)
		return
	}
	if err := c.jacFD.Eval(x, jac[:c.m*c.n]); err != nil {
		panic(err)
	}
}
