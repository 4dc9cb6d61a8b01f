// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trajectory assembles collocation segments into one nonlinear
// program and hands it to a solver.
//
// Every phase of a Phases schedule becomes a Segment of its own. All segments
// share the numeric initial state as reference, so the boundary between two
// phases is stitched by equating the final deviation of one segment with the
// initial deviation of the next.
package trajectory

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/curioloop/trajopt/collocation"
	"github.com/curioloop/trajopt/sym"
)

// ErrProblem is returned for malformed problem definitions.
var ErrProblem = errors.New("invalid trajectory problem")

// Problem holds the functions shared by every phase:
//
//	Fint(x, dx, dt) → x     state integration
//	Fdif(x, x', dt) → dx    its inverse
//	F(x, u)         → dx    dynamics
//	L(x, u)         → 1     running cost
//	Phi(x)          → 1     terminal cost
type Problem struct {
	Fint, Fdif, F, L, Phi *sym.Function
	States                collocation.States
}

// Validate checks the function signatures against the state dimensions.
func (p *Problem) Validate() error {
	if err := p.States.Validate(); err != nil {
		return err
	}
	n := p.States
	var err error
	check := func(name string, f *sym.Function, in []int, out int) {
		if f == nil {
			err = multierr.Append(err, errors.Wrapf(ErrProblem, "%s is missing", name))
			return
		}
		if f.NIn() != len(in) || f.NOut() != 1 {
			err = multierr.Append(err, errors.Wrapf(ErrProblem, "%s has signature %d→%d, expected %d→1", name, f.NIn(), f.NOut(), len(in)))
			return
		}
		for i, size := range in {
			err = multierr.Append(err, f.CheckSizeIn(i, size))
		}
		err = multierr.Append(err, f.CheckSizeOut(0, out))
	}
	check("Fint", p.Fint, []int{n.NX, n.NDX, 1}, n.NX)
	check("Fdif", p.Fdif, []int{n.NX, n.NX, 1}, n.NDX)
	check("F", p.F, []int{n.NX, n.NU}, n.NDX)
	check("L", p.L, []int{n.NX, n.NU}, 1)
	check("Phi", p.Phi, []int{n.NX}, 1)
	return err
}

// Phases describes the schedule of the trajectory.
type Phases interface {
	NumPhases() int
	PhaseKnots(i int) int
	PhaseDuration(i int) float64
}

// UniformPhases repeats Count phases of identical knots and duration.
type UniformPhases struct {
	Count    int
	Knots    int
	Duration float64
}

// NumPhases implements Phases.
func (u UniformPhases) NumPhases() int { return u.Count }

// PhaseKnots implements Phases.
func (u UniformPhases) PhaseKnots(int) int { return u.Knots }

// PhaseDuration implements Phases.
func (u UniformPhases) PhaseDuration(int) float64 { return u.Duration }
