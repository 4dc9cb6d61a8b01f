// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package legged

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Surface is a horizontal contact region {p : A·[pₓ p_y]ᵀ ≤ B, p_z = Height}.
type Surface struct {
	A      *mat.Dense
	B      []float64
	Height float64
}

// InfiniteGround returns the unbounded plane z = 0.
func InfiniteGround() Surface {
	inf := math.Inf(1)
	return Surface{
		A: mat.NewDense(4, 2, []float64{1, 0, -1, 0, 0, 1, 0, -1}),
		B: []float64{inf, inf, inf, inf},
	}
}

// Box returns the rectangle [xmin, xmax] × [ymin, ymax] at the given height.
func Box(xmin, xmax, ymin, ymax, height float64) Surface {
	return Surface{
		A:      mat.NewDense(4, 2, []float64{1, 0, -1, 0, 0, 1, 0, -1}),
		B:      []float64{xmax, -xmin, ymax, -ymin},
		Height: height,
	}
}

// Validate checks that A has two columns and one row per entry of B.
func (s Surface) Validate() error {
	if s.A == nil {
		return errors.New("surface region matrix is missing")
	}
	r, c := s.A.Dims()
	if c != 2 || r != len(s.B) {
		return errors.Errorf("surface region is %d×%d with %d bounds, want n×2 with n bounds", r, c, len(s.B))
	}
	return nil
}

// Contains reports whether the point p lies on the surface within tol.
func (s Surface) Contains(p [3]float64, tol float64) bool {
	if math.Abs(p[2]-s.Height) > tol {
		return false
	}
	var ap mat.VecDense
	ap.MulVec(s.A, mat.NewVecDense(2, []float64{p[0], p[1]}))
	for i, b := range s.B {
		if ap.AtVec(i) > b+tol {
			return false
		}
	}
	return true
}

// Surfaces is the set of contact surfaces of an environment, indexed by id.
type Surfaces []Surface

// Get returns surface id.
func (ss Surfaces) Get(id int) (Surface, error) {
	if id < 0 || id >= len(ss) {
		return Surface{}, errors.Errorf("unknown surface %d", id)
	}
	return ss[id], nil
}
