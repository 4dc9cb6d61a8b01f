// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package poly

import (
	"math"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Scheme selects the family of collocation points.
type Scheme int

const (
	// Radau places the points at the Radau IIA abscissae, which include t = 1.
	Radau Scheme = iota
	// Legendre places the points at the Gauss–Legendre abscissae, all interior.
	Legendre
)

// MaxDegree is the largest supported collocation degree.
const MaxDegree = 9

// ErrDegree is returned when a degree is outside [1, MaxDegree].
var ErrDegree = errors.New("collocation degree out of range")

func (s Scheme) String() string {
	switch s {
	case Radau:
		return "radau"
	case Legendre:
		return "legendre"
	}
	return "unknown"
}

// ParseScheme maps a scheme name to its Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "radau":
		return Radau, nil
	case "legendre", "gauss":
		return Legendre, nil
	}
	return 0, errors.Errorf("unknown collocation scheme %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheme) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scheme) UnmarshalText(text []byte) (err error) {
	*s, err = ParseScheme(string(text))
	return err
}

// CollocationPoints returns the d strictly increasing collocation points of
// the scheme on (0, 1].
func CollocationPoints(d int, scheme Scheme) ([]float64, error) {
	if d < 1 || d > MaxDegree {
		return nil, errors.Wrapf(ErrDegree, "degree %d", d)
	}
	var x []float64
	switch scheme {
	case Legendre:
		x = gaussJacobi(d, 0, 0)
	case Radau:
		x = append(gaussJacobi(d-1, 1, 0), 1)
	default:
		return nil, errors.Errorf("unknown collocation scheme %d", int(scheme))
	}
	for i, v := range x {
		if i < len(x)-1 || scheme != Radau {
			x[i] = (v + 1) / 2
		}
	}
	return x, nil
}

// gaussJacobi returns the n zeros of the Jacobi polynomial P⁽ᵅ'ᵝ⁾ₙ on [-1, 1]
// in ascending order. The zeros are the eigenvalues of the symmetric
// tridiagonal Jacobi matrix of the three-term recurrence (Golub–Welsch).
func gaussJacobi(n int, alpha, beta float64) []float64 {
	if n == 0 {
		return nil
	}
	ab := alpha + beta
	jm := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k := float64(i)
		s := 2*k + ab
		if i == 0 {
			jm.SetSym(0, 0, (beta-alpha)/(ab+2))
		} else {
			jm.SetSym(i, i, (beta*beta-alpha*alpha)/(s*(s+2)))
		}
		if i+1 < n {
			k1 := k + 1
			s1 := 2*k1 + ab
			b := 4 * k1 * (k1 + alpha) * (k1 + beta) * (k1 + ab) / (s1 * s1 * (s1 + 1) * (s1 - 1))
			jm.SetSym(i, i+1, math.Sqrt(b))
		}
	}
	var es mat.EigenSym
	if !es.Factorize(jm, false) {
		panic("poly: jacobi matrix eigen decomposition failed")
	}
	x := es.Values(nil)
	slices.Sort(x)
	return x
}
