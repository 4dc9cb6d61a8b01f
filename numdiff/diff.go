// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff estimates derivatives by finite differences. Jacobians
// with a known sparsity pattern perturb structurally orthogonal columns
// together (Curtis, Powell & Reid 1974), so a banded collocation Jacobian
// costs a few evaluations per stencil point instead of one per variable.
package numdiff

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type Method int

const (
	// Forward is the first order forward difference.
	Forward Method = iota
	// Central is the second order central difference.
	Central
)

func (m Method) formula() (fd.Formula, error) {
	switch m {
	case Forward:
		return fd.Forward, nil
	case Central:
		return fd.Central, nil
	}
	return fd.Formula{}, errors.Errorf("unknown difference method %d", m)
}

// Gradient writes the estimated gradient of f at x into g.
func Gradient(m Method, f func(x []float64) float64, x, g []float64) error {
	formula, err := m.formula()
	if err != nil {
		return err
	}
	if len(g) != len(x) {
		return errors.Errorf("gradient has %d entries for %d variables", len(g), len(x))
	}
	fd.Gradient(g, f, x, &fd.Settings{Formula: formula})
	return nil
}

// Jacobian estimates ∂y/∂x of Func: ℝᴺ → ℝᴹ into a row-major M×N slice.
// A Jacobian is not safe for concurrent use.
type Jacobian struct {
	N, M int
	Func func(x, y []float64)
	// Method selects the stencil. Step overrides its default absolute step.
	Method Method
	Step   float64
	// Sparsity[i] lists the columns output i depends on; nil means dense.
	// Entries outside the pattern are written as zero.
	Sparsity [][]int

	formula  fd.Formula
	groups   [][]int // columns perturbed by one evaluation
	rows     [][]int // outputs touched by each column
	x, y, y0 []float64
}

// Init validates the configuration and colors the columns. Eval calls it
// on first use.
func (j *Jacobian) Init() error {
	switch {
	case j.N <= 0 || j.M <= 0:
		return errors.Errorf("jacobian dimensions %d×%d must be positive", j.M, j.N)
	case j.Func == nil:
		return errors.New("jacobian function is required")
	case j.Step < 0:
		return errors.New("difference step must not be negative")
	}
	formula, err := j.Method.formula()
	if err != nil {
		return err
	}
	if j.Step > 0 {
		formula.Step = j.Step
	}
	j.formula = formula
	j.x, j.y, j.y0 = make([]float64, j.N), make([]float64, j.M), make([]float64, j.M)

	j.groups, j.rows = nil, nil
	if j.Sparsity == nil {
		return nil
	}
	if len(j.Sparsity) != j.M {
		return errors.Errorf("sparsity has %d rows, expected %d", len(j.Sparsity), j.M)
	}
	j.rows = make([][]int, j.N)
	for i, cols := range j.Sparsity {
		for _, c := range cols {
			if c < 0 || c >= j.N {
				return errors.Errorf("sparsity row %d refers to column %d", i, c)
			}
			j.rows[c] = append(j.rows[c], i)
		}
	}

	// greedy first fit: a column joins the first group none of whose
	// members shares an output with it
	var taken [][]bool
	for c, rows := range j.rows {
		if len(rows) == 0 {
			continue
		}
		g := 0
	search:
		for ; g < len(taken); g++ {
			for _, r := range rows {
				if taken[g][r] {
					continue search
				}
			}
			break
		}
		if g == len(taken) {
			taken = append(taken, make([]bool, j.M))
			j.groups = append(j.groups, nil)
		}
		for _, r := range rows {
			taken[g][r] = true
		}
		j.groups[g] = append(j.groups[g], c)
	}
	return nil
}

// Groups returns the number of perturbations per stencil point: N for a
// dense Jacobian, the number of column colors otherwise.
func (j *Jacobian) Groups() int {
	if j.Sparsity == nil {
		return j.N
	}
	return len(j.groups)
}

// Eval writes the estimate at x into jac. x is not modified.
func (j *Jacobian) Eval(x, jac []float64) error {
	if j.x == nil {
		if err := j.Init(); err != nil {
			return err
		}
	}
	if len(x) != j.N || len(jac) != j.M*j.N {
		return errors.Errorf("jacobian of %d×%d evaluated with %d variables into %d entries", j.M, j.N, len(x), len(jac))
	}

	if j.Sparsity == nil {
		dst := mat.NewDense(j.M, j.N, jac)
		fd.Jacobian(dst, func(y, x []float64) { j.Func(x, y) }, x, &fd.JacobianSettings{Formula: j.formula})
		return nil
	}

	clear(jac)
	origin := false
	step := j.formula.Step
	copy(j.x, x)
	for _, cols := range j.groups {
		for _, pt := range j.formula.Stencil {
			y := j.y
			if pt.Loc == 0 {
				if !origin {
					j.Func(j.x, j.y0)
					origin = true
				}
				y = j.y0
			} else {
				for _, c := range cols {
					j.x[c] = x[c] + pt.Loc*step
				}
				j.Func(j.x, y)
				for _, c := range cols {
					j.x[c] = x[c]
				}
			}
			for _, c := range cols {
				for _, r := range j.rows[c] {
					jac[r*j.N+c] += pt.Coeff * y[r]
				}
			}
		}
	}
	floats.Scale(1/step, jac)
	return nil
}
