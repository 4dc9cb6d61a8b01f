// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package collocation discretizes continuous dynamics over a time segment with
// pseudospectral collocation.
//
// A Segment spans knots sub-intervals of width h. Inside each knot the state
// deviation is a degree d Lagrange polynomial through the knot boundary
// deviation dX0 and d collocation deviations dXc, and the control is a
// polynomial of one degree lower through the control samples U. Deviations
// are always Euclidean; the actual state is recovered through the integration
// map Fint(x, dx, dt), which lets states live on manifolds.
//
// Building a segment takes three steps:
//
//	seg, err := collocation.NewSegment(d, knots, h, states, fint)
//	err = seg.InitializeKnotSegments(x0)
//	err = seg.InitializeExpressionGraph(F, L, constraints)
//
// after which the segment appends its variables, constraints and bounds to
// the vectors of an assembler and records where they landed.
package collocation

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/curioloop/trajopt/constraint"
	"github.com/curioloop/trajopt/poly"
	"github.com/curioloop/trajopt/sym"
)

var (
	// ErrInvalidDegree is returned for a degree outside (0, 10).
	ErrInvalidDegree = errors.New("collocation degree must lie in (0,10)")
	// ErrInvalidStep is returned for a non-positive knot width or knot count.
	ErrInvalidStep = errors.New("knot width and count must be positive")
	// ErrDimension is returned when a function does not match the state model.
	ErrDimension = errors.New("dimension mismatch")
	// ErrNotInitialized is returned when the build steps run out of order.
	ErrNotInitialized = errors.New("segment is not initialized")
)

// Segment is one fixed-step interval of the trajectory.
type Segment struct {
	opts   options
	states States
	degree int
	knots  int
	h      float64
	fint   *sym.Function

	dxPoly *poly.Basis // state basis, degree d with root 0
	uPoly  *poly.Basis // control basis over the control sample abscissae
	nuc    int         // control samples per knot
	times  []float64

	x0      sym.Vec
	x0Value []float64 // nil when the reference state is symbolic
	dXc     []sym.Vec // per knot, ndx·d
	u       []sym.Vec // per knot, nu·nuc
	dX0     []sym.Vec // per knot boundary, ndx
	X0      []sym.Vec // per knot boundary, nx

	knotMap  *sym.Mapped
	costFold *sym.Folded
	general  []*constraint.Data
	lbg, ubg []float64

	wRange, gRange, bgRange, bxRange, tRange Range
}

// NewSegment returns a segment of degree d with knots sub-intervals of width h.
// fint must map (x[nx], dx[ndx], dt[1]) to x'[nx].
func NewSegment(d, knots int, h float64, states States, fint *sym.Function, opts ...Option) (*Segment, error) {
	if d <= 0 || d >= 10 {
		return nil, errors.Wrapf(ErrInvalidDegree, "degree %d", d)
	}
	if !(h > 0) || math.IsInf(h, 0) {
		return nil, errors.Wrapf(ErrInvalidStep, "h = %g", h)
	}
	if knots <= 0 {
		return nil, errors.Wrapf(ErrInvalidStep, "%d knots", knots)
	}
	if err := states.Validate(); err != nil {
		return nil, err
	}
	if err := checkSignature(fint, "Fint", []int{states.NX, states.NDX, 1}, states.NX); err != nil {
		return nil, err
	}

	s := &Segment{
		opts:   defaultOptions(),
		states: states,
		degree: d,
		knots:  knots,
		h:      h,
		fint:   fint,
	}
	for _, o := range opts {
		o(&s.opts)
	}
	if err := s.checkBounds(); err != nil {
		return nil, err
	}

	var err error
	if s.dxPoly, err = poly.Build(d, s.opts.scheme); err != nil {
		return nil, err
	}
	s.nuc = max(d-1, 1)
	nodes, err := poly.CollocationPoints(s.nuc, s.opts.scheme)
	if err != nil {
		return nil, err
	}
	if s.uPoly, err = poly.NewLagrange(nodes); err != nil {
		return nil, err
	}
	s.initializeTimeVector()
	return s, nil
}

func checkSignature(f *sym.Function, name string, in []int, out int) error {
	if f == nil {
		return errors.Wrapf(ErrDimension, "%s is missing", name)
	}
	if f.NIn() != len(in) {
		return errors.Wrapf(ErrDimension, "%s must have %d inputs, has %d", name, len(in), f.NIn())
	}
	if f.NOut() != 1 {
		return errors.Wrapf(ErrDimension, "%s must have 1 output, has %d", name, f.NOut())
	}
	for i, n := range in {
		if err := f.CheckSizeIn(i, n); err != nil {
			return errors.Wrap(ErrDimension, err.Error())
		}
	}
	if err := f.CheckSizeOut(0, out); err != nil {
		return errors.Wrap(ErrDimension, err.Error())
	}
	return nil
}

func (s *Segment) checkBounds() error {
	o := &s.opts
	if o.stateLower != nil || o.stateUpper != nil {
		if len(o.stateLower) != s.states.NDX || len(o.stateUpper) != s.states.NDX {
			return errors.Wrapf(ErrDimension, "state bounds need %d entries", s.states.NDX)
		}
	}
	if o.controlLower != nil || o.controlUpper != nil {
		if len(o.controlLower) != s.states.NU || len(o.controlUpper) != s.states.NU {
			return errors.Wrapf(ErrDimension, "control bounds need %d entries", s.states.NU)
		}
	}
	return nil
}

// initializeTimeVector lays out k·h + τⱼ·h for every knot k and root j,
// followed by the terminal instant knots·h.
func (s *Segment) initializeTimeVector() {
	d := s.degree
	s.times = make([]float64, s.knots*(d+1)+1)
	for k := 0; k < s.knots; k++ {
		for j := 0; j <= d; j++ {
			s.times[k*(d+1)+j] = float64(k)*s.h + s.dxPoly.Root(j)*s.h
		}
	}
	s.times[s.knots*(d+1)] = s.Span()
}

// InitializeKnotSegments declares the decision variables of every knot around
// the reference state x0. The boundary states are Fint(x0, dX0ₖ, 1).
func (s *Segment) InitializeKnotSegments(x0 sym.Vec) error {
	n := s.states
	if len(x0) != n.NX {
		return errors.Wrapf(ErrDimension, "reference state has %d entries, expected %d", len(x0), n.NX)
	}
	s.x0 = append(sym.Vec(nil), x0...)
	s.x0Value, _ = x0.Values()

	s.dXc = make([]sym.Vec, s.knots)
	s.u = make([]sym.Vec, s.knots)
	for k := 0; k < s.knots; k++ {
		s.dXc[k] = sym.SymVec(fmt.Sprintf("dXc_%d", k), n.NDX*s.degree)
		s.u[k] = sym.SymVec(fmt.Sprintf("U_%d", k), n.NU*s.nuc)
	}
	s.dX0 = make([]sym.Vec, s.knots+1)
	s.X0 = make([]sym.Vec, s.knots+1)
	one := sym.Vec{sym.Const(1)}
	for k := 0; k <= s.knots; k++ {
		s.dX0[k] = sym.SymVec(fmt.Sprintf("dX0_%d", k), n.NDX)
		x, err := s.fint.Call1(s.x0, s.dX0[k], one)
		if err != nil {
			return errors.Wrapf(err, "boundary state %d", k)
		}
		s.X0[k] = x
	}
	s.knotMap, s.costFold, s.general = nil, nil, nil
	return nil
}

// InitializeExpressionGraph builds the collocation, continuity and cost blocks
// of one knot from the dynamics F(x, u) → dx[ndx] and the running cost
// L(x, u) → scalar, maps them over every knot and lays out the constraint
// bounds. Each constraint in g is enforced at every collocation point of the
// knots it applies to.
func (s *Segment) InitializeExpressionGraph(F, L *sym.Function, g []*constraint.Data) error {
	if s.X0 == nil {
		return errors.Wrap(ErrNotInitialized, "knot segments must be initialized before the expression graph")
	}
	n := s.states
	if err := checkSignature(F, "F", []int{n.NX, n.NU}, n.NDX); err != nil {
		return err
	}
	if err := checkSignature(L, "L", []int{n.NX, n.NU}, 1); err != nil {
		return err
	}
	for i, c := range g {
		if err := c.Validate(n.NX, n.NU, s.knots); err != nil {
			return errors.Wrapf(err, "constraint %d", i)
		}
	}

	d, h := s.degree, s.h
	xr := sym.SymVec("X0", n.NX)
	dxc := sym.SymVec("dXc", n.NDX*d)
	dx0 := sym.SymVec("dX0", n.NDX)
	uc := sym.SymVec("Uc", n.NU*s.nuc)
	lc := sym.SymVec("Lc", 1)
	dXc := dxc.Split(n.NDX)
	Uc := uc.Split(n.NU)

	var (
		eq  sym.Vec
		dxf = dx0.ScaleF(s.dxPoly.DAt(0))
		qf  sym.Expr
		gs  = make([]sym.Vec, len(g))
	)
	for j := 1; j <= d; j++ {
		tj := s.dxPoly.Root(j)
		dt := (tj - s.dxPoly.Root(j-1)) * h

		// Derivative of the deviation polynomial at root j.
		dxp := dx0.ScaleF(s.dxPoly.CAt(0, j))
		for r := 0; r < d; r++ {
			dxp = dxp.Add(dXc[r].ScaleF(s.dxPoly.CAt(r+1, j)))
		}

		xc, err := s.fint.Call1(xr, dXc[j-1], sym.Vec{sym.Const(dt)})
		if err != nil {
			return err
		}
		ucj := s.uPoly.Interpolate(tj, Uc)

		f, err := F.Call1(xc, ucj)
		if err != nil {
			return err
		}
		eq = append(eq, f.ScaleF(h).Sub(dxp)...)

		l, err := L.Call1(xc, ucj)
		if err != nil {
			return err
		}
		qf = sym.Add(qf, sym.Scale(s.dxPoly.BAt(j)*h, l[0]))
		dxf = dxf.Add(dXc[j-1].ScaleF(s.dxPoly.DAt(j)))

		for i, c := range g {
			r, err := c.G.Call1(xc, ucj)
			if err != nil {
				return errors.Wrapf(err, "constraint %d", i)
			}
			gs[i] = append(gs[i], r...)
		}
	}

	knot, err := sym.NewFunction("knot", []sym.Vec{xr, dxc, dx0, uc}, append([]sym.Vec{eq, dxf}, gs...))
	if err != nil {
		return err
	}
	cost, err := sym.NewFunction("cost", []sym.Vec{lc, xr, dxc, dx0, uc}, []sym.Vec{{sym.Add(lc[0], qf)}})
	if err != nil {
		return err
	}
	s.knotMap = knot.Map(s.knots, s.opts.parallel)
	if s.costFold, err = cost.Fold(s.knots); err != nil {
		return err
	}
	s.general = g
	if err = s.initializeBounds(); err != nil {
		return err
	}
	s.opts.logger.Debugw("built collocation graph",
		"degree", d, "knots", s.knots, "h", h,
		"collocation", len(eq)*s.knots, "continuity", n.NDX*s.knots,
		"general", len(s.lbg)-(len(eq)+n.NDX)*s.knots)
	return nil
}

// initializeBounds evaluates the bounds of every constraint at the collocation
// times of the knots it applies to. Collocation and continuity rows are
// equalities.
func (s *Segment) initializeBounds() error {
	d, n := s.degree, s.states
	fixed := (n.NDX*d + n.NDX) * s.knots
	s.lbg = make([]float64, fixed)
	s.ubg = make([]float64, fixed)
	for i, c := range s.general {
		for _, k := range c.ActiveKnots(s.knots) {
			for j := 1; j <= d; j++ {
				lo, up, err := c.BoundsAt(s.times[k*(d+1)+j])
				if err != nil {
					return errors.Wrapf(err, "constraint %d knot %d", i, k)
				}
				s.lbg = append(s.lbg, lo...)
				s.ubg = append(s.ubg, up...)
			}
		}
	}
	return nil
}

// EvaluateExpressionGraph instantiates the mapped knot blocks on the decision
// variables, appends the collocation defects, the continuity defects and the
// general constraints to g, and returns the cost J0 plus the running cost of
// this segment together with the range of g it occupies.
func (s *Segment) EvaluateExpressionGraph(J0 sym.Expr, g *sym.Vec) (sym.Expr, Range, error) {
	if s.knotMap == nil {
		return J0, Range{}, errors.Wrap(ErrNotInitialized, "expression graph is not built")
	}
	// Every knot integrates its collocation deviations from the segment
	// reference x0, not from its boundary state X0ₖ: dX0ₖ enters the defects
	// only through the deviation polynomial, so it is counted once.
	xs := make([]sym.Vec, s.knots)
	for k := range xs {
		xs[k] = s.x0
	}
	dx0s := s.dX0[:s.knots]
	out, err := s.knotMap.Call(xs, s.dXc, dx0s, s.u)
	if err != nil {
		return J0, Range{}, err
	}

	start := len(*g)
	for k := 0; k < s.knots; k++ {
		*g = append(*g, out[0][k]...)
	}
	for k := 0; k < s.knots; k++ {
		*g = append(*g, out[1][k].Sub(s.dX0[k+1])...)
	}
	for i, c := range s.general {
		for _, k := range c.ActiveKnots(s.knots) {
			*g = append(*g, out[2+i][k]...)
		}
	}
	s.gRange = Range{Start: start, End: len(*g)}

	acc, err := s.costFold.Call(sym.Vec{J0}, xs, s.dXc, dx0s, s.u)
	if err != nil {
		return J0, Range{}, err
	}
	return acc[0], s.gRange, nil
}

// Degree returns the state polynomial degree.
func (s *Segment) Degree() int { return s.degree }

// Knots returns the number of knots.
func (s *Segment) Knots() int { return s.knots }

// Step returns the knot width h.
func (s *Segment) Step() float64 { return s.h }

// Duration returns (knots+1)·h.
func (s *Segment) Duration() float64 { return float64(s.knots+1) * s.h }

// Span returns knots·h, the time covered by the knots of the segment.
func (s *Segment) Span() float64 { return float64(s.knots) * s.h }

// States returns the state model dimensions.
func (s *Segment) States() States { return s.states }

// ControlSamples returns the number of control samples per knot.
func (s *Segment) ControlSamples() int { return s.nuc }

// StateBasis returns the Lagrange basis of the state deviation polynomial.
func (s *Segment) StateBasis() *poly.Basis { return s.dxPoly }

// ControlBasis returns the Lagrange basis of the control polynomial.
func (s *Segment) ControlBasis() *poly.Basis { return s.uPoly }

// Times returns a copy of the time grid.
func (s *Segment) Times() []float64 { return append([]float64(nil), s.times...) }

// InitialState returns the actual state at the first knot boundary.
func (s *Segment) InitialState() sym.Vec { return s.X0[0] }

// InitialStateDeviation returns the deviation at the first knot boundary.
func (s *Segment) InitialStateDeviation() sym.Vec { return s.dX0[0] }

// FinalState returns the actual state at the last knot boundary.
func (s *Segment) FinalState() sym.Vec { return s.X0[s.knots] }

// FinalStateDeviation returns the deviation at the last knot boundary.
func (s *Segment) FinalStateDeviation() sym.Vec { return s.dX0[s.knots] }

// RangeDecisionVariables returns the range recorded by FillW.
func (s *Segment) RangeDecisionVariables() Range { return s.wRange }

// RangeConstraints returns the range recorded by EvaluateExpressionGraph.
func (s *Segment) RangeConstraints() Range { return s.gRange }

// RangeBoundsG returns the range recorded by FillLbgUbg.
func (s *Segment) RangeBoundsG() Range { return s.bgRange }

// RangeBoundsX returns the range recorded by FillLbxUbx.
func (s *Segment) RangeBoundsX() Range { return s.bxRange }

// RangeTimes returns the range recorded by FillTimes.
func (s *Segment) RangeTimes() Range { return s.tRange }
