// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package constraint defines how constraint generators contribute residual
// functions and bounds to a collocated trajectory problem.
package constraint

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/curioloop/trajopt/sym"
)

// ErrInvalid is wrapped by every validation failure of Data.
var ErrInvalid = errors.New("invalid constraint data")

// Data describes one built constraint: Lower(t) ≤ G(x, u) ≤ Upper(t).
//
// G takes the state and the control and returns the residual vector. Lower
// and Upper either take no input (constant bounds) or a single scalar time
// input, and return vectors of the residual size.
//
// A Global constraint is enforced at every collocation point of every knot.
// Otherwise ApplyAt holds one entry per knot and the constraint is enforced
// at the collocation points of knot k only when ApplyAt[k] is non-zero.
type Data struct {
	G            *sym.Function
	Lower, Upper *sym.Function

	Global  bool
	ApplyAt []int
}

// Size returns the number of residuals produced per point.
func (d *Data) Size() int { return d.G.SizeOut(0) }

// Active reports whether the constraint applies at knot k.
func (d *Data) Active(k int) bool {
	if d.Global {
		return true
	}
	return k < len(d.ApplyAt) && d.ApplyAt[k] != 0
}

// ActiveKnots returns the knots where the constraint applies, in increasing order.
func (d *Data) ActiveKnots(knots int) []int {
	var ks []int
	for k := 0; k < knots; k++ {
		if d.Active(k) {
			ks = append(ks, k)
		}
	}
	return ks
}

// Validate checks the function shapes against the state size nx, the control
// size nu and the number of knots of the segment the data is applied to.
func (d *Data) Validate(nx, nu, knots int) error {
	if d == nil || d.G == nil {
		return errors.Wrap(ErrInvalid, "constraint function is missing")
	}
	var err error
	g := d.G
	if g.NIn() != 2 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalid, "%s must take (state, control), has %d inputs", g.Name(), g.NIn()))
	} else {
		err = multierr.Append(err, g.CheckSizeIn(0, nx))
		err = multierr.Append(err, g.CheckSizeIn(1, nu))
	}
	if g.NOut() != 1 {
		err = multierr.Append(err, errors.Wrapf(ErrInvalid, "%s must have a single output, has %d", g.Name(), g.NOut()))
		return err
	}
	size := g.SizeOut(0)
	for _, b := range []struct {
		name string
		f    *sym.Function
	}{{"lower", d.Lower}, {"upper", d.Upper}} {
		switch {
		case b.f == nil:
			err = multierr.Append(err, errors.Wrapf(ErrInvalid, "%s bound of %s is missing", b.name, g.Name()))
			continue
		case b.f.NIn() > 1:
			err = multierr.Append(err, errors.Wrapf(ErrInvalid, "%s bound of %s takes at most a time input, has %d inputs", b.name, g.Name(), b.f.NIn()))
		case b.f.NIn() == 1:
			err = multierr.Append(err, b.f.CheckSizeIn(0, 1))
		}
		if b.f.NOut() != 1 {
			err = multierr.Append(err, errors.Wrapf(ErrInvalid, "%s bound of %s must have a single output", b.name, g.Name()))
		} else {
			err = multierr.Append(err, b.f.CheckSizeOut(0, size))
		}
	}
	if !d.Global && len(d.ApplyAt) != knots {
		err = multierr.Append(err, errors.Wrapf(ErrInvalid, "%s applies at %d knots, segment has %d", g.Name(), len(d.ApplyAt), knots))
	}
	return err
}

// BoundsAt evaluates the lower and upper bounds at time t.
func (d *Data) BoundsAt(t float64) (lower, upper []float64, err error) {
	if lower, err = evalBound(d.Lower, t); err != nil {
		return nil, nil, errors.Wrap(err, "lower bound")
	}
	if upper, err = evalBound(d.Upper, t); err != nil {
		return nil, nil, errors.Wrap(err, "upper bound")
	}
	return lower, upper, nil
}

func evalBound(f *sym.Function, t float64) ([]float64, error) {
	var (
		out [][]float64
		err error
	)
	if f.NIn() == 0 {
		out, err = f.Eval()
	} else {
		out, err = f.Eval([]float64{t})
	}
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// ConstantBounds returns bound functions with fixed values.
func ConstantBounds(lower, upper []float64) (lo, up *sym.Function) {
	lo = sym.MustFunction("lower", nil, []sym.Vec{sym.Constants(lower)})
	up = sym.MustFunction("upper", nil, []sym.Vec{sym.Constants(upper)})
	return lo, up
}

// TimeBounds wraps bound expressions of the time symbol t into functions.
func TimeBounds(t sym.Expr, lower, upper sym.Vec) (lo, up *sym.Function, err error) {
	if lo, err = sym.NewFunction("lower", []sym.Vec{{t}}, []sym.Vec{lower}); err != nil {
		return nil, nil, err
	}
	if up, err = sym.NewFunction("upper", []sym.Vec{{t}}, []sym.Vec{upper}); err != nil {
		return nil, nil, err
	}
	return lo, up, nil
}
