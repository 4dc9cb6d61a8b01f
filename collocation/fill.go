// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collocation

import (
	"math"

	"github.com/pkg/errors"

	"github.com/curioloop/trajopt/sym"
)

// The decision variables of a segment are laid out as
//
//	dXc₀ … dXcₖ₋₁ | dX0₀ … dX0ₖ | U₀ … Uₖ₋₁
//
// with k knots. Every Fill method appends in this order and records the range.

func (s *Segment) mustInitialized() {
	if s.X0 == nil {
		panic("collocation: knot segments are not initialized")
	}
}

// NumDecisionVariables returns the number of decision variables of the segment.
func (s *Segment) NumDecisionVariables() int {
	n := s.states
	return s.knots*n.NDX*s.degree + (s.knots+1)*n.NDX + s.knots*n.NU*s.nuc
}

// BoundaryOffset returns the offset of dX0ₖ inside the decision variables of
// the segment.
func (s *Segment) BoundaryOffset(k int) int {
	if k < 0 || k > s.knots {
		panic("collocation: knot boundary out of range")
	}
	return s.knots*s.states.NDX*s.degree + k*s.states.NDX
}

// ControlOffset returns the offset of Uₖ inside the decision variables of the segment.
func (s *Segment) ControlOffset(k int) int {
	if k < 0 || k >= s.knots {
		panic("collocation: knot out of range")
	}
	return s.BoundaryOffset(s.knots) + s.states.NDX + k*s.states.NU*s.nuc
}

// FillW appends the decision variables to w.
func (s *Segment) FillW(w *sym.Vec) Range {
	s.mustInitialized()
	start := len(*w)
	*w = append(*w, sym.Vertcat(s.dXc...)...)
	*w = append(*w, sym.Vertcat(s.dX0...)...)
	*w = append(*w, sym.Vertcat(s.u...)...)
	s.wRange = Range{Start: start, End: len(*w)}
	return s.wRange
}

// FillLbgUbg appends the constraint bounds laid out by InitializeExpressionGraph.
func (s *Segment) FillLbgUbg(lbg, ubg *[]float64) Range {
	if s.knotMap == nil {
		panic("collocation: expression graph is not built")
	}
	start := len(*lbg)
	*lbg = append(*lbg, s.lbg...)
	*ubg = append(*ubg, s.ubg...)
	s.bgRange = Range{Start: start, End: len(*lbg)}
	return s.bgRange
}

// FillLbxUbx appends the decision variable bounds. Variables without
// configured bounds are unbounded.
func (s *Segment) FillLbxUbx(lbx, ubx *[]float64) Range {
	s.mustInitialized()
	n, o := s.states, s.opts
	start := len(*lbx)
	push := func(lower, upper []float64, size, times int) {
		for i := 0; i < times; i++ {
			if lower == nil {
				for j := 0; j < size; j++ {
					*lbx = append(*lbx, math.Inf(-1))
					*ubx = append(*ubx, math.Inf(1))
				}
				continue
			}
			*lbx = append(*lbx, lower...)
			*ubx = append(*ubx, upper...)
		}
	}
	push(o.stateLower, o.stateUpper, n.NDX, s.knots*s.degree)
	push(o.stateLower, o.stateUpper, n.NDX, s.knots+1)
	push(o.controlLower, o.controlUpper, n.NU, s.knots*s.nuc)
	s.bxRange = Range{Start: start, End: len(*lbx)}
	return s.bxRange
}

// FillTimes appends the time grid shifted by offset.
func (s *Segment) FillTimes(times *[]float64, offset float64) Range {
	start := len(*times)
	for _, t := range s.times {
		*times = append(*times, offset+t)
	}
	s.tRange = Range{Start: start, End: len(*times)}
	return s.tRange
}

// Guess returns the state and the control of an initial trajectory at time t
// measured from the start of the segment.
type Guess func(t float64) (x, u []float64)

// FillInitialGuess appends an initial value for every decision variable.
// The deviations are recovered from the guessed states with the difference
// map fdif(x, x', dt) → dx, the inverse of Fint. The reference state of the
// segment must be numeric.
func (s *Segment) FillInitialGuess(guess Guess, fdif *sym.Function, w0 *[]float64) (Range, error) {
	s.mustInitialized()
	n := s.states
	if s.x0Value == nil {
		return Range{}, errors.New("initial guess needs a numeric reference state")
	}
	if err := checkSignature(fdif, "Fdif", []int{n.NX, n.NX, 1}, n.NDX); err != nil {
		return Range{}, err
	}
	diff := func(t, dt float64) ([]float64, []float64, error) {
		x, u := guess(t)
		if len(x) != n.NX || len(u) != n.NU {
			return nil, nil, errors.Wrapf(ErrDimension, "guess at t=%g has sizes (%d, %d)", t, len(x), len(u))
		}
		out, err := fdif.Eval(s.x0Value, x, []float64{dt})
		if err != nil {
			return nil, nil, err
		}
		return out[0], u, nil
	}

	start := len(*w0)
	d := s.degree
	for k := 0; k < s.knots; k++ {
		for j := 1; j <= d; j++ {
			dt := (s.dxPoly.Root(j) - s.dxPoly.Root(j-1)) * s.h
			dx, _, err := diff(s.times[k*(d+1)+j], dt)
			if err != nil {
				return Range{}, err
			}
			*w0 = append(*w0, dx...)
		}
	}
	for k := 0; k <= s.knots; k++ {
		dx, _, err := diff(float64(k)*s.h, 1)
		if err != nil {
			return Range{}, err
		}
		*w0 = append(*w0, dx...)
	}
	for k := 0; k < s.knots; k++ {
		for i := 0; i < s.nuc; i++ {
			_, u, err := diff(float64(k)*s.h+s.uPoly.Root(i)*s.h, 1)
			if err != nil {
				return Range{}, err
			}
			*w0 = append(*w0, u...)
		}
	}
	return Range{Start: start, End: len(*w0)}, nil
}

// ExtractStates returns the actual states at the knot boundaries from a
// solution of the assembled problem, using the range recorded by FillW.
func (s *Segment) ExtractStates(sol []float64) ([][]float64, error) {
	if s.x0Value == nil {
		return nil, errors.New("state extraction needs a numeric reference state")
	}
	w, err := s.solutionSlice(sol)
	if err != nil {
		return nil, err
	}
	ndx := s.states.NDX
	out := make([][]float64, s.knots+1)
	for k := range out {
		off := s.BoundaryOffset(k)
		x, err := s.fint.Eval(s.x0Value, w[off:off+ndx], []float64{1})
		if err != nil {
			return nil, err
		}
		out[k] = x[0]
	}
	return out, nil
}

// ExtractControls returns the control samples of every knot and their times
// measured from the start of the segment.
func (s *Segment) ExtractControls(sol []float64) (times []float64, controls [][]float64, err error) {
	w, err := s.solutionSlice(sol)
	if err != nil {
		return nil, nil, err
	}
	nu := s.states.NU
	for k := 0; k < s.knots; k++ {
		off := s.ControlOffset(k)
		for i := 0; i < s.nuc; i++ {
			times = append(times, float64(k)*s.h+s.uPoly.Root(i)*s.h)
			controls = append(controls, append([]float64(nil), w[off+i*nu:off+(i+1)*nu]...))
		}
	}
	return times, controls, nil
}

func (s *Segment) solutionSlice(sol []float64) ([]float64, error) {
	r := s.wRange
	if r.Len() != s.NumDecisionVariables() {
		return nil, errors.Wrap(ErrNotInitialized, "decision variables were not filled")
	}
	if len(sol) < r.End {
		return nil, errors.Wrapf(ErrDimension, "solution has %d entries, segment ends at %d", len(sol), r.End)
	}
	return r.Slice(sol), nil
}
