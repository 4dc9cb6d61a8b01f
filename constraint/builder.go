// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraint

import (
	"github.com/pkg/errors"

	"github.com/curioloop/trajopt/sym"
)

// Builder derives the constraint data of one phase from problem data P.
type Builder[P any] interface {
	BuildConstraint(problem P, phase int) (*Data, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc[P any] func(problem P, phase int) (*Data, error)

// BuildConstraint calls f(problem, phase).
func (f BuilderFunc[P]) BuildConstraint(problem P, phase int) (*Data, error) {
	return f(problem, phase)
}

// Parts splits a builder into its function, its bounds and its knot mask.
// A nil CreateApplyAt yields a global constraint.
type Parts[P any] struct {
	Name           string
	CreateFunction func(problem P, phase int) (*sym.Function, error)
	CreateBounds   func(problem P, phase int) (lower, upper *sym.Function, err error)
	CreateApplyAt  func(problem P, phase int) ([]int, error)
}

// Compose returns a Builder that assembles the parts.
func Compose[P any](p Parts[P]) Builder[P] {
	return BuilderFunc[P](func(problem P, phase int) (*Data, error) {
		if p.CreateFunction == nil || p.CreateBounds == nil {
			return nil, errors.Errorf("%s: function and bounds are required", p.Name)
		}
		d := &Data{Global: true}
		var err error
		if d.Lower, d.Upper, err = p.CreateBounds(problem, phase); err != nil {
			return nil, errors.Wrapf(err, "%s bounds for phase %d", p.Name, phase)
		}
		if d.G, err = p.CreateFunction(problem, phase); err != nil {
			return nil, errors.Wrapf(err, "%s function for phase %d", p.Name, phase)
		}
		if p.CreateApplyAt != nil {
			if d.ApplyAt, err = p.CreateApplyAt(problem, phase); err != nil {
				return nil, errors.Wrapf(err, "%s knot mask for phase %d", p.Name, phase)
			}
			d.Global = false
		}
		return d, nil
	})
}

// BuildAll runs every builder for the given phase. The first failure aborts.
func BuildAll[P any](builders []Builder[P], problem P, phase int) ([]*Data, error) {
	out := make([]*Data, 0, len(builders))
	for i, b := range builders {
		d, err := b.BuildConstraint(problem, phase)
		if err != nil {
			return nil, errors.Wrapf(err, "constraint builder %d", i)
		}
		out = append(out, d)
	}
	return out, nil
}
