// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"strconv"

	"gonum.org/v1/gonum/blas/blas64"
)

const (
	zero = 0.0
	one  = 1.0
	two  = 2.0
	four = 4.0
	ten  = 10.0
	hun  = 100.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

type sqpMode int

// Status codes shared by the SQP driver and the least squares kernels.
const (
	OK sqpMode = iota
	HasSolution
	BadArgument
	NNLSExceedMaxIter
	ConsIncompatible
	LSISingularE
	LSEISingularC
	HFTIRankDefect
	SearchNotDescent
	SQPExceedMaxIter
	Interrupted
)

var modeNames = [...]string{
	OK:                "converged",
	HasSolution:       "has solution",
	BadArgument:       "bad argument",
	NNLSExceedMaxIter: "nnls iteration limit",
	ConsIncompatible:  "incompatible constraints",
	LSISingularE:      "singular E in LSI",
	LSEISingularC:     "singular C in LSEI",
	HFTIRankDefect:    "rank defect in HFTI",
	SearchNotDescent:  "not a descent direction",
	SQPExceedMaxIter:  "iteration limit",
	Interrupted:       "interrupted",
}

func (m sqpMode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Requests from the driver to evalLoc.
const (
	evalGrad sqpMode = -1
	evalFunc sqpMode = -2
)

// sqpSpec is a validated Problem with its row counts.
type sqpSpec struct {
	n, m, meq int
	Problem
}

// sqpLoc holds the values at the current iterate. The constraint Jacobian a
// is column-major with leading dimension max(1, m) and one spare column for
// the relaxation variable.
type sqpLoc struct {
	f float64
	x []float64
	c []float64
	g []float64
	a []float64
}

type sqpCtx struct {
	acc, tol float64

	// merit line search
	f0, t0 float64
	alpha  float64
	line   int

	iter, reset int
	// set while the linearized constraints are inconsistent
	bad bool

	x0 []float64
	mu []float64 // penalty weights
	r  []float64 // multipliers of rows, lower bounds and upper bounds
	// packed LDLᵀ factor of the Hessian approximation, D on the diagonal
	l       []float64
	s, u, v []float64

	w  []float64
	jw []int
	fw findWork
}

// vec views n entries of data with stride inc as a blas64 vector. A
// non-positive n is an empty vector.
func vec(n int, data []float64, inc int) blas64.Vector {
	return blas64.Vector{N: max(n, 0), Data: data, Inc: inc}
}

// fill sets n entries of x with stride inc to v.
func fill(n int, v float64, x []float64, inc int) {
	for i := range max(n, 0) {
		x[i*inc] = v
	}
}
