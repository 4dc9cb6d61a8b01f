// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package poly builds Lagrange polynomial bases on the unit interval for
// pseudospectral collocation.
//
// All coefficients are derived by closed-form polynomial algebra: the basis
// polynomials are multiplied out, differentiated and integrated analytically,
// so quadrature weights do not depend on any numerical integration step.
package poly

// Polynomial holds real coefficients in ascending order: p(t) = Σ p[i]·tⁱ.
type Polynomial []float64

// Monomial returns the polynomial c₀ + c₁·t.
func Monomial(c0, c1 float64) Polynomial { return Polynomial{c0, c1} }

// Degree returns the degree of p ignoring trailing zero coefficients.
// The zero polynomial has degree -1.
func (p Polynomial) Degree() int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0 {
			return i
		}
	}
	return -1
}

// Eval evaluates p at t using Horner's scheme.
func (p Polynomial) Eval(t float64) float64 {
	var v float64
	for i := len(p) - 1; i >= 0; i-- {
		v = v*t + p[i]
	}
	return v
}

// Mul returns p·q.
func (p Polynomial) Mul(q Polynomial) Polynomial {
	if len(p) == 0 || len(q) == 0 {
		return Polynomial{}
	}
	r := make(Polynomial, len(p)+len(q)-1)
	for i, a := range p {
		if a == 0 {
			continue
		}
		for j, b := range q {
			r[i+j] += a * b
		}
	}
	return r
}

// Scale returns c·p.
func (p Polynomial) Scale(c float64) Polynomial {
	r := make(Polynomial, len(p))
	for i, a := range p {
		r[i] = c * a
	}
	return r
}

// Derivative returns dp/dt.
func (p Polynomial) Derivative() Polynomial {
	if len(p) <= 1 {
		return Polynomial{0}
	}
	r := make(Polynomial, len(p)-1)
	for i := 1; i < len(p); i++ {
		r[i-1] = float64(i) * p[i]
	}
	return r
}

// AntiDerivative returns the primitive of p vanishing at t = 0.
func (p Polynomial) AntiDerivative() Polynomial {
	r := make(Polynomial, len(p)+1)
	for i, a := range p {
		r[i+1] = a / float64(i+1)
	}
	return r
}
