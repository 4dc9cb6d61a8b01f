// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"context"
	"math"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Solver solves a nonlinear program.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Solution, error)
}

// Solution is the outcome of a solve. A solver that stops without
// converging still returns its last iterate with Success false.
type Solution struct {
	X          []float64 // final decision vector
	F          float64   // objective at X
	G          []float64 // constraint values at X
	Success    bool
	Status     string
	Iterations int
}

// Violation returns the largest bound violation of the constraint values.
func (s *Solution) Violation(p *Problem) float64 {
	v := 0.0
	for i, g := range s.G {
		v = math.Max(v, p.LBG[i]-g)
		v = math.Max(v, g-p.UBG[i])
	}
	for i, x := range s.X {
		v = math.Max(v, p.LBX[i]-x)
		v = math.Max(v, x-p.UBX[i])
	}
	return v
}

// Options is the solver option dictionary. Unknown keys are rejected.
type Options struct {
	MaxIter         int         `json:"max_iter"`
	Accuracy        float64     `json:"accuracy"`
	NNLSIter        int         `json:"nnls_iter"`
	FTol            float64     `json:"ftol"`
	XTol            float64     `json:"xtol"`
	ExactLineSearch bool        `json:"exact_line_search"`
	Jacobian        Derivatives `json:"jacobian"`
	MaxEval         int         `json:"max_eval"`
	PrintLevel      int         `json:"print_level"`
}

// DefaultOptions returns the options used for keys absent from the dictionary.
func DefaultOptions() Options {
	return Options{
		MaxIter:  200,
		Accuracy: 1e-6,
		Jacobian: Exact,
	}
}

// DecodeOptions overlays the dictionary onto DefaultOptions.
func DecodeOptions(opts map[string]any) (Options, error) {
	conf := DefaultOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &conf,
	})
	if err != nil {
		return conf, err
	}
	if err := decoder.Decode(opts); err != nil {
		return conf, errors.Wrap(err, "solver options")
	}
	switch {
	case conf.MaxIter <= 0:
		return conf, errors.Errorf("solver options: max_iter must be positive, got %d", conf.MaxIter)
	case conf.Accuracy <= 0:
		return conf, errors.Errorf("solver options: accuracy must be positive, got %g", conf.Accuracy)
	case conf.NNLSIter < 0 || conf.MaxEval < 0:
		return conf, errors.New("solver options: iteration limits must not be negative")
	}
	switch conf.Jacobian {
	case Exact, Forward, Central:
	default:
		return conf, errors.Errorf("solver options: unknown jacobian %q", conf.Jacobian)
	}
	return conf, nil
}

// Option configures a solver backend.
type Option func(*backend)

// WithLogger sets the logger used for progress reports.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(b *backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

type backend struct {
	opts   Options
	logger *zap.SugaredLogger
}

func newBackend(name string, opts map[string]any, options ...Option) (backend, error) {
	conf, err := DecodeOptions(opts)
	if err != nil {
		return backend{}, err
	}
	b := backend{opts: conf, logger: zap.NewNop().Sugar()}
	for _, o := range options {
		o(&b)
	}
	b.logger = b.logger.Named(name)
	return b, nil
}

// rowKind classifies a constraint row by its bounds.
type rowKind int

const (
	rowFree  rowKind = iota // both bounds infinite
	rowEqual                // g = l
	rowLower                // g ≥ l
	rowUpper                // g ≤ u
	rowRange                // l ≤ g ≤ u
)

func classify(l, u float64) rowKind {
	lo, up := !math.IsInf(l, -1), !math.IsInf(u, 1)
	switch {
	case lo && up && l == u:
		return rowEqual
	case lo && up:
		return rowRange
	case lo:
		return rowLower
	case up:
		return rowUpper
	}
	return rowFree
}

// ineq is one scalar inequality c ≥ 0 derived from a bounded row:
// sign·(g[row] - bound) ≥ 0.
type ineq struct {
	row   int
	bound float64
	sign  float64
}

// splitRows sorts constraint rows into equalities g[row] = bound and one or
// two inequalities per bounded row.
func splitRows(lbg, ubg []float64) (eq []ineq, neq []ineq) {
	for i := range lbg {
		l, u := lbg[i], ubg[i]
		switch classify(l, u) {
		case rowEqual:
			eq = append(eq, ineq{row: i, bound: l, sign: 1})
		case rowLower:
			neq = append(neq, ineq{row: i, bound: l, sign: 1})
		case rowUpper:
			neq = append(neq, ineq{row: i, bound: u, sign: -1})
		case rowRange:
			neq = append(neq, ineq{row: i, bound: l, sign: 1}, ineq{row: i, bound: u, sign: -1})
		}
	}
	return
}
