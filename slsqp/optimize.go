// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Bound limits one variable. NaN or an infinite value leaves that side open.
type Bound struct {
	Lower, Upper float64
}

// Evaluation is a scalar function with its gradient.
type Evaluation struct {
	Function   func(x []float64) float64
	Derivative func(x []float64, d []float64)
}

// Block evaluates Size constraint rows at once. Function writes c[0:Size];
// Derivative writes ∂cᵢ/∂xⱼ to a[i+j*lda] and must leave the other rows of
// each column alone.
type Block struct {
	Size       int
	Function   func(x []float64, c []float64)
	Derivative func(x []float64, a []float64, lda int)
}

// Callback runs after each completed iteration. Returning true stops the
// solve with status Interrupted.
type Callback func(iter int, x []float64, f float64) (stop bool)

// Termination holds the stopping criteria. The three tolerances are ignored
// when negative or NaN.
type Termination struct {
	Accuracy       float64
	MaxIterations  int
	NNLSIterations int // zero selects 3n per subproblem
	FEvalTolerance float64
	FDiffTolerance float64
	XDiffTolerance float64
}

// LineSearch selects between the Armijo backtracking on the merit function
// and a derivative-free exact minimization over Alpha.
type LineSearch struct {
	Exact bool
	Alpha *Bound // step range, defaults to [0.1, 1]
}

// Problem is a smooth NLP with equality rows c(x) = 0, inequality rows
// c(x) ≥ 0 and box bounds.
type Problem struct {
	N            int
	Stop         Termination
	Line         LineSearch
	Objective    Evaluation
	Equalities   []Block
	Inequalities []Block
	Bounds       []Bound
	Callback     Callback
	// Bounds beyond ±BndInf are treated as absent. Zero means MaxFloat64.
	BndInf float64
}

func rows(blocks []Block) (n int) {
	for _, b := range blocks {
		n += b.Size
	}
	return
}

func (p *Problem) check(meq int) error {
	stop, alpha := p.Stop, p.Line.Alpha
	negative := func(v float64) bool { return !math.IsNaN(v) && v < zero }
	switch {
	case p.N <= 0:
		return errors.New("problem dimension must be positive")
	case meq > p.N:
		return errors.Errorf("%d equality rows exceed %d variables", meq, p.N)
	case p.Objective.Function == nil || p.Objective.Derivative == nil:
		return errors.New("objective function is required")
	case stop.MaxIterations <= 0:
		return errors.New("max iterations must be positive")
	case stop.NNLSIterations < 0:
		return errors.New("nnls iterations must not be negative")
	case stop.Accuracy <= zero:
		return errors.New("accuracy must be positive")
	case negative(stop.FEvalTolerance), negative(stop.FDiffTolerance), negative(stop.XDiffTolerance):
		return errors.New("tolerances must not be negative")
	case alpha.Lower < zero || alpha.Upper > one || alpha.Upper < alpha.Lower:
		return errors.Errorf("line search range [%g, %g] outside [0, 1]", alpha.Lower, alpha.Upper)
	case len(p.Bounds) != p.N:
		return errors.Errorf("%d bounds for %d variables", len(p.Bounds), p.N)
	}
	for kind, blocks := range map[string][]Block{"equality": p.Equalities, "inequality": p.Inequalities} {
		for k, b := range blocks {
			if b.Size <= 0 || b.Function == nil || b.Derivative == nil {
				return errors.Errorf("%s block %d is empty", kind, k)
			}
		}
	}
	for k, b := range p.Bounds {
		if !math.IsNaN(b.Lower) && !math.IsNaN(b.Upper) && b.Lower > b.Upper {
			return errors.Errorf("bound %d is crossed", k)
		}
	}
	return nil
}

// New validates the problem and creates an optimizer for it.
func (p *Problem) New() (*Optimizer, error) {
	spec := *p
	spec.Equalities = slices.Clone(p.Equalities)
	spec.Inequalities = slices.Clone(p.Inequalities)

	if spec.BndInf == zero {
		spec.BndInf = math.MaxFloat64
	}
	spec.BndInf = math.Abs(spec.BndInf)

	const alphaMin = 0.1
	alpha := Bound{alphaMin, one}
	if a := p.Line.Alpha; a != nil {
		alpha = *a
		if math.IsNaN(alpha.Lower) {
			alpha.Lower = alphaMin
		}
		if math.IsNaN(alpha.Upper) {
			alpha.Upper = one
		}
	}
	spec.Line.Alpha = &alpha

	// Infinite bounds become NaN so that both spellings of "open" agree.
	if p.Bounds == nil {
		spec.Bounds = make([]Bound, max(p.N, 0))
		for i := range spec.Bounds {
			spec.Bounds[i] = Bound{math.NaN(), math.NaN()}
		}
	} else {
		spec.Bounds = slices.Clone(p.Bounds)
		for i, b := range spec.Bounds {
			if math.IsInf(b.Lower, 0) {
				spec.Bounds[i].Lower = math.NaN()
			}
			if math.IsInf(b.Upper, 0) {
				spec.Bounds[i].Upper = math.NaN()
			}
		}
	}

	meq := rows(p.Equalities)
	if err := spec.check(meq); err != nil {
		return nil, err
	}
	return &Optimizer{sqpSpec{n: p.N, m: meq + rows(p.Inequalities), meq: meq, Problem: spec}}, nil
}

// Optimizer runs SLSQP on a fixed problem. It holds no iteration state and
// may be shared between goroutines that each own a Workspace.
type Optimizer struct {
	sqpSpec
}

// Workspace is the mutable state of one solve.
type Workspace struct {
	n, m, meq int
	sqpCtx
}

// Result is the outcome of Fit.
type Result struct {
	OK      bool
	F       float64
	X, G    []float64
	Status  sqpMode
	NumIter int
}

// Init allocates a workspace sized for the optimizer.
func (o *Optimizer) Init() *Workspace {
	n, m, meq := o.n, o.m, o.meq
	n1 := n + 1
	la := max(1, m)
	mineq := (m - meq) + 2*n1

	// the LSQ matrices, then LSI, then LSEI, then the driver vectors
	size := n1*(n1+1) + meq*(n1+1) + mineq*(n1+1) +
		(n1-meq+1)*(mineq+2) + 2*mineq +
		(n1+mineq)*(n1-meq) + 2*meq + n1 +
		n1*n/2 + 2*m + 3*n + 3*n1 + 1
	buf := make([]float64, size)

	// r starts where l ends so that the packed factor may borrow from it
	mu, buf := buf[:la], buf[la:]
	l := buf[:(n+1)*(n+2)/2]
	x0, buf := buf[n1*n/2+1:][:n], buf[n1*n/2+1:]
	r := buf[n:][:2*n+m+2]
	buf = buf[3*n+la:]

	return &Workspace{n: n, m: m, meq: meq, sqpCtx: sqpCtx{
		mu: mu, l: l, x0: x0, r: r,
		s:  buf[:n1],
		u:  buf[n1 : 2*n1],
		v:  buf[2*n1 : 3*n1],
		w:  buf[3*n1:],
		jw: make([]int, max(mineq, n1-mineq)),
	}}
}

// Fit solves from the initial guess x, which is not modified.
func (o *Optimizer) Fit(x []float64, w *Workspace) *Result {
	if len(x) != o.n {
		panic("slsqp: initial point has wrong dimension")
	}
	if w.n != o.n || w.m != o.m || w.meq != o.meq {
		panic("slsqp: workspace belongs to another problem")
	}
	la := max(1, o.m)
	loc := &sqpLoc{
		x: slices.Clone(x),
		g: make([]float64, o.n+1),
		c: make([]float64, la),
		a: make([]float64, la*(o.n+1)),
	}
	status := (&sqpSolver{o, w, loc}).mainLoop()
	return &Result{OK: status == OK, F: loc.f, X: loc.x, G: loc.g, Status: status, NumIter: w.iter}
}
