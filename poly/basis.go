// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package poly

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/trajopt/sym"
)

// Basis is a Lagrange polynomial basis over a set of nodes on [0, 1].
//
// For each node j the basis polynomial ℓⱼ is 1 at node j and 0 at all other
// nodes. From it the basis derives
//
//	B[j]    = ∫₀¹ ℓⱼ(t) dt     quadrature weights
//	C[j][r] = ℓⱼ'(τᵣ)          differentiation matrix
//	D[j]    = ℓⱼ(1)            continuity weights
//
// A Basis is immutable and safe for concurrent use.
type Basis struct {
	degree int
	scheme Scheme
	roots  []float64
	polys  []Polynomial
	b, d   []float64
	c      []float64 // row-major (n×n)
}

// Build returns the collocation basis of degree d: the d points of the scheme
// with the root 0 prepended, giving d+1 basis polynomials.
func Build(d int, scheme Scheme) (*Basis, error) {
	pts, err := CollocationPoints(d, scheme)
	if err != nil {
		return nil, err
	}
	b, err := NewLagrange(append([]float64{0}, pts...))
	if err != nil {
		return nil, err
	}
	b.degree, b.scheme = d, scheme
	return b, nil
}

// NewLagrange returns the Lagrange basis over arbitrary distinct nodes in [0, 1].
// Its degree is len(nodes)-1.
func NewLagrange(nodes []float64) (*Basis, error) {
	n := len(nodes)
	if n == 0 {
		return nil, errors.New("lagrange basis needs at least one node")
	}
	for i, t := range nodes {
		if t < 0 || t > 1 {
			return nil, errors.Errorf("lagrange node %d = %g outside [0,1]", i, t)
		}
		for _, s := range nodes[:i] {
			if s == t {
				return nil, errors.Errorf("lagrange node %g repeated", t)
			}
		}
	}
	bs := &Basis{
		degree: n - 1,
		scheme: -1,
		roots:  append([]float64(nil), nodes...),
		polys:  make([]Polynomial, n),
		b:      make([]float64, n),
		d:      make([]float64, n),
		c:      make([]float64, n*n),
	}
	for j, tj := range nodes {
		p := Polynomial{1}
		for r, tr := range nodes {
			if r != j {
				p = p.Mul(Monomial(-tr, 1).Scale(1 / (tj - tr)))
			}
		}
		bs.polys[j] = p
		bs.d[j] = p.Eval(1)
		dp := p.Derivative()
		for r, tr := range nodes {
			bs.c[j*n+r] = dp.Eval(tr)
		}
		bs.b[j] = p.AntiDerivative().Eval(1)
	}
	return bs, nil
}

// Degree returns the polynomial degree of the basis.
func (bs *Basis) Degree() int { return bs.degree }

// Scheme returns the collocation scheme, or -1 for a basis built by NewLagrange.
func (bs *Basis) Scheme() Scheme { return bs.scheme }

// Len returns the number of nodes.
func (bs *Basis) Len() int { return len(bs.roots) }

// Roots returns a copy of the nodes.
func (bs *Basis) Roots() []float64 { return append([]float64(nil), bs.roots...) }

// Root returns node j.
func (bs *Basis) Root(j int) float64 { return bs.roots[j] }

// Polynomial returns a copy of the basis polynomial ℓⱼ.
func (bs *Basis) Polynomial(j int) Polynomial { return append(Polynomial(nil), bs.polys[j]...) }

// BAt returns the quadrature weight of basis j.
func (bs *Basis) BAt(j int) float64 { return bs.b[j] }

// CAt returns ℓⱼ'(τᵣ).
func (bs *Basis) CAt(j, r int) float64 { return bs.c[j*len(bs.roots)+r] }

// DAt returns the continuity weight of basis j.
func (bs *Basis) DAt(j int) float64 { return bs.d[j] }

// B returns the quadrature weights.
func (bs *Basis) B() *mat.VecDense {
	return mat.NewVecDense(len(bs.b), append([]float64(nil), bs.b...))
}

// C returns the differentiation matrix.
func (bs *Basis) C() *mat.Dense {
	n := len(bs.roots)
	return mat.NewDense(n, n, append([]float64(nil), bs.c...))
}

// D returns the continuity weights.
func (bs *Basis) D() *mat.VecDense {
	return mat.NewVecDense(len(bs.d), append([]float64(nil), bs.d...))
}

// Weights returns ℓⱼ(t) for every basis polynomial. It panics if t ∉ [0,1].
func (bs *Basis) Weights(t float64) []float64 {
	if t < 0 || t > 1 {
		panic("poly: interpolation time outside [0,1]")
	}
	w := make([]float64, len(bs.polys))
	for j, p := range bs.polys {
		w[j] = p.Eval(t)
	}
	return w
}

// Interpolate returns Σⱼ terms[j]·ℓⱼ(t). Missing trailing terms count as zero.
// It panics if t ∉ [0,1], if there are more terms than nodes or if the terms
// differ in length.
func (bs *Basis) Interpolate(t float64, terms []sym.Vec) sym.Vec {
	if len(terms) > len(bs.polys) {
		panic("poly: more interpolation terms than basis nodes")
	}
	w := bs.Weights(t)
	if len(terms) == 0 {
		return nil
	}
	out := sym.Zeros(len(terms[0]))
	for j, v := range terms {
		out = out.Add(v.ScaleF(w[j]))
	}
	return out
}

// InterpolateValues is the numeric counterpart of Interpolate.
func (bs *Basis) InterpolateValues(t float64, values []float64) float64 {
	if len(values) > len(bs.polys) {
		panic("poly: more interpolation terms than basis nodes")
	}
	w := bs.Weights(t)
	var s float64
	for j, v := range values {
		s += w[j] * v
	}
	return s
}
