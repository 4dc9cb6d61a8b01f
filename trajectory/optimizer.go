// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trajectory

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/curioloop/trajopt/collocation"
	"github.com/curioloop/trajopt/constraint"
	"github.com/curioloop/trajopt/nlp"
	"github.com/curioloop/trajopt/poly"
	"github.com/curioloop/trajopt/sym"
)

// ErrNotBuilt is returned when the finite elements have not been initialized.
var ErrNotBuilt = errors.New("finite elements are not initialized")

type options struct {
	solver   nlp.Solver
	logger   *zap.SugaredLogger
	scheme   poly.Scheme
	parallel bool
	segment  []collocation.Option
}

// Option configures an Optimizer.
type Option func(*options)

// WithSolver sets the NLP backend. The default is SLSQP with default options.
func WithSolver(s nlp.Solver) Option {
	return func(o *options) { o.solver = s }
}

// WithLogger sets the logger shared with the segments.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithScheme selects the collocation points of every segment.
func WithScheme(s poly.Scheme) Option {
	return func(o *options) { o.scheme = s }
}

// WithParallelMap builds the per-knot blocks of every segment concurrently.
func WithParallelMap(parallel bool) Option {
	return func(o *options) { o.parallel = parallel }
}

// WithSegmentOptions passes extra options, such as variable bounds, to every segment.
func WithSegmentOptions(opts ...collocation.Option) Option {
	return func(o *options) { o.segment = append(o.segment, opts...) }
}

// Optimizer builds and solves a multi-phase trajectory for problem data P.
type Optimizer[P any] struct {
	problem  Problem
	data     P
	builders []constraint.Builder[P]
	phases   Phases
	opts     options

	x0       []float64
	segments []*collocation.Segment
	offsets  []float64 // start time of every segment
	times    []float64 // collocation grid of all segments
	prog     *nlp.Problem
}

// New validates the problem and returns an Optimizer. The builders are run
// once per phase when the finite elements are initialized.
func New[P any](problem Problem, data P, builders []constraint.Builder[P], phases Phases, opts ...Option) (*Optimizer[P], error) {
	if err := problem.Validate(); err != nil {
		return nil, err
	}
	if phases == nil || phases.NumPhases() == 0 {
		return nil, errors.Wrap(ErrProblem, "at least one phase is required")
	}
	for i := range phases.NumPhases() {
		if k, t := phases.PhaseKnots(i), phases.PhaseDuration(i); k <= 0 || !(t > 0) || math.IsInf(t, 0) {
			return nil, errors.Wrapf(ErrProblem, "phase %d has %d knots over %g", i, k, t)
		}
	}
	o := &Optimizer[P]{
		problem:  problem,
		data:     data,
		builders: builders,
		phases:   phases,
		opts:     options{logger: zap.NewNop().Sugar(), scheme: poly.Radau},
	}
	for _, opt := range opts {
		opt(&o.opts)
	}
	if o.opts.solver == nil {
		s, err := nlp.NewSLSQP(nil, nlp.WithLogger(o.opts.logger))
		if err != nil {
			return nil, err
		}
		o.opts.solver = s
	}
	return o, nil
}

// InitFiniteElements creates one segment of degree d per phase around the
// initial state x0 and assembles the nonlinear program. Any previous build is
// discarded.
func (o *Optimizer[P]) InitFiniteElements(d int, x0 []float64) error {
	n, p := o.problem.States, &o.problem
	if len(x0) != n.NX {
		return errors.Wrapf(collocation.ErrDimension, "initial state has %d entries, expected %d", len(x0), n.NX)
	}
	o.x0 = append([]float64(nil), x0...)
	o.segments, o.offsets, o.times, o.prog = nil, nil, nil, nil

	var (
		w                  sym.Vec
		g                  sym.Vec
		lbg, ubg, lbx, ubx []float64
		times              []float64
		J                  sym.Expr
		offset             float64
	)
	ref := sym.Constants(x0)
	segOpts := append([]collocation.Option{
		collocation.WithScheme(o.opts.scheme),
		collocation.WithParallelMap(o.opts.parallel),
		collocation.WithLogger(o.opts.logger),
	}, o.opts.segment...)

	for i := range o.phases.NumPhases() {
		knots := o.phases.PhaseKnots(i)
		h := o.phases.PhaseDuration(i) / float64(knots)
		seg, err := collocation.NewSegment(d, knots, h, n, p.Fint, segOpts...)
		if err != nil {
			return errors.Wrapf(err, "phase %d", i)
		}
		if err := seg.InitializeKnotSegments(ref); err != nil {
			return errors.Wrapf(err, "phase %d", i)
		}
		data, err := constraint.BuildAll(o.builders, o.data, i)
		if err != nil {
			return errors.Wrapf(err, "phase %d", i)
		}
		if err := seg.InitializeExpressionGraph(p.F, p.L, data); err != nil {
			return errors.Wrapf(err, "phase %d", i)
		}
		if J, _, err = seg.EvaluateExpressionGraph(J, &g); err != nil {
			return errors.Wrapf(err, "phase %d", i)
		}
		seg.FillLbgUbg(&lbg, &ubg)
		wr := seg.FillW(&w)
		xr := seg.FillLbxUbx(&lbx, &ubx)
		seg.FillTimes(&times, offset)

		if i == 0 {
			// the trajectory starts exactly at x0
			start := xr.Start + seg.BoundaryOffset(0)
			for j := start; j < start+n.NDX; j++ {
				lbx[j], ubx[j] = 0, 0
			}
		} else {
			prev := o.segments[i-1]
			g = append(g, prev.FinalStateDeviation().Sub(seg.InitialStateDeviation())...)
			lbg = append(lbg, make([]float64, n.NDX)...)
			ubg = append(ubg, make([]float64, n.NDX)...)
		}

		o.opts.logger.Debugw("phase assembled", "phase", i, "knots", knots, "h", h,
			"variables", wr, "constraints", seg.RangeConstraints())
		o.segments = append(o.segments, seg)
		o.offsets = append(o.offsets, offset)
		offset += seg.Span()
	}

	last := o.segments[len(o.segments)-1]
	phi, err := p.Phi.Call1(last.FinalState())
	if err != nil {
		return errors.Wrap(err, "terminal cost")
	}
	J = sym.Add(J, phi[0])

	o.times = times
	o.prog = &nlp.Problem{
		W: w, G: g, J: J,
		LBG: lbg, UBG: ubg,
		LBX: lbx, UBX: ubx,
		X0: make([]float64, len(w)),
	}
	if err := o.prog.Validate(); err != nil {
		return err
	}
	o.opts.logger.Infow("trajectory assembled", "phases", len(o.segments), "variables", len(w),
		"constraints", len(g), "duration", offset)
	return nil
}

// InitialGuess sets the starting point of the solver from a guessed
// trajectory over the whole horizon. Without it the solver starts from x0
// held constant with zero controls.
func (o *Optimizer[P]) InitialGuess(guess collocation.Guess) error {
	if o.prog == nil {
		return ErrNotBuilt
	}
	var w0 []float64
	for i, seg := range o.segments {
		offset := o.offsets[i]
		shifted := func(t float64) ([]float64, []float64) { return guess(offset + t) }
		if _, err := seg.FillInitialGuess(shifted, o.problem.Fdif, &w0); err != nil {
			return errors.Wrapf(err, "phase %d", i)
		}
	}
	if len(w0) != len(o.prog.W) {
		return errors.Wrapf(collocation.ErrDimension, "initial guess has %d entries, expected %d", len(w0), len(o.prog.W))
	}
	// keep the pinned initial deviation feasible
	for j := range w0 {
		w0[j] = min(max(w0[j], o.prog.LBX[j]), o.prog.UBX[j])
	}
	o.prog.X0 = w0
	return nil
}

// Solution is a solved trajectory.
type Solution struct {
	NLP *nlp.Solution
	// Times and States of the knot boundaries over the whole horizon.
	Times  []float64
	States [][]float64
	// ControlTimes and Controls of every control sample.
	ControlTimes []float64
	Controls     [][]float64
}

// Optimize solves the assembled program. A solver error is returned together
// with the partial solution when one is available.
func (o *Optimizer[P]) Optimize(ctx context.Context) (*Solution, error) {
	if o.prog == nil {
		return nil, ErrNotBuilt
	}
	res, solveErr := o.opts.solver.Solve(ctx, o.prog)
	if res == nil {
		return nil, errors.Wrap(solveErr, "solve")
	}
	sol := &Solution{NLP: res}
	for i, seg := range o.segments {
		states, err := seg.ExtractStates(res.X)
		if err != nil {
			return nil, errors.Wrapf(err, "phase %d", i)
		}
		ct, controls, err := seg.ExtractControls(res.X)
		if err != nil {
			return nil, errors.Wrapf(err, "phase %d", i)
		}
		first := 0
		if i > 0 {
			// shared with the previous phase
			first = 1
		}
		for k := first; k < len(states); k++ {
			sol.Times = append(sol.Times, o.offsets[i]+float64(k)*seg.Step())
			sol.States = append(sol.States, states[k])
		}
		for k, t := range ct {
			sol.ControlTimes = append(sol.ControlTimes, o.offsets[i]+t)
			sol.Controls = append(sol.Controls, controls[k])
		}
	}
	o.opts.logger.Infow("trajectory solved", "success", res.Success, "status", res.Status,
		"iterations", res.Iterations, "cost", res.F)
	if solveErr != nil {
		return sol, errors.Wrap(solveErr, "solve")
	}
	return sol, nil
}

// Segments returns the segment of every phase.
func (o *Optimizer[P]) Segments() []*collocation.Segment { return o.segments }

// Program returns the assembled nonlinear program, or nil before
// InitFiniteElements.
func (o *Optimizer[P]) Program() *nlp.Problem { return o.prog }

// Times returns the collocation grid of all phases. Phase boundaries appear
// twice.
func (o *Optimizer[P]) Times() []float64 { return o.times }
