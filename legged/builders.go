// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package legged

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/trajopt/constraint"
	"github.com/curioloop/trajopt/sym"
)

// ProblemData is everything the legged constraint builders read.
type ProblemData struct {
	Model    *Model
	Surfaces Surfaces
	Sequence *ContactSequence
	// Mu is the friction coefficient of the linearized friction cone.
	Mu float64
	// MaxFootSpeed bounds every component of a swing foot velocity. Zero
	// leaves swing feet free.
	MaxFootSpeed float64
}

// Validate checks that the sequence and the surfaces match the model.
func (p *ProblemData) Validate() error {
	switch {
	case p.Model == nil || p.Sequence == nil:
		return errors.New("legged problem needs a model and a contact sequence")
	case p.Sequence.feet != p.Model.NumFeet():
		return errors.Errorf("contact sequence has %d feet, model has %d", p.Sequence.feet, p.Model.NumFeet())
	case p.Mu < 0:
		return errors.Errorf("friction coefficient must be non-negative, got %g", p.Mu)
	}
	if err := p.Model.Validate(); err != nil {
		return err
	}
	for i, s := range p.Surfaces {
		if err := s.Validate(); err != nil {
			return errors.Wrapf(err, "surface %d", i)
		}
	}
	for i, ph := range p.Sequence.phases {
		for f, active := range ph.Mode.Active {
			if _, err := p.Surfaces.Get(ph.Mode.Surfaces[f]); active && err != nil {
				return errors.Wrapf(err, "phase %d foot %s", i, p.Model.Feet[f])
			}
		}
	}
	return nil
}

func (p *ProblemData) mode(phase int) (ContactMode, error) {
	ph, err := p.Sequence.Phase(phase)
	if err != nil {
		return ContactMode{}, err
	}
	return ph.Mode, nil
}

// rows collects residuals with constant bounds.
type rows struct {
	g, lo, up sym.Vec
}

func (r *rows) add(g sym.Expr, lo, up float64) {
	r.g = append(r.g, g)
	r.lo = append(r.lo, sym.Const(lo))
	r.up = append(r.up, sym.Const(up))
}

func (p *ProblemData) symbols() (x, u sym.Vec) {
	st := p.Model.States()
	return sym.SymVec("x", st.NX), sym.SymVec("u", st.NU)
}

// partsFor turns a per-phase row generator into builder parts. The rows are
// generated twice, once for the function and once for the bounds.
func partsFor(name string, gen func(p *ProblemData, mode ContactMode, x, u sym.Vec) (rows, error)) constraint.Parts[*ProblemData] {
	build := func(p *ProblemData, phase int) (x, u sym.Vec, r rows, err error) {
		mode, err := p.mode(phase)
		if err != nil {
			return nil, nil, rows{}, err
		}
		x, u = p.symbols()
		r, err = gen(p, mode, x, u)
		return x, u, r, err
	}
	return constraint.Parts[*ProblemData]{
		Name: name,
		CreateFunction: func(p *ProblemData, phase int) (*sym.Function, error) {
			x, u, r, err := build(p, phase)
			if err != nil {
				return nil, err
			}
			return sym.NewFunction("G_"+name, []sym.Vec{x, u}, []sym.Vec{r.g})
		},
		CreateBounds: func(p *ProblemData, phase int) (*sym.Function, *sym.Function, error) {
			_, _, r, err := build(p, phase)
			if err != nil {
				return nil, nil, err
			}
			lo := sym.MustFunction("lower_bound_"+name, nil, []sym.Vec{r.lo})
			up := sym.MustFunction("upper_bound_"+name, nil, []sym.Vec{r.up})
			return lo, up, nil
		},
	}
}

// FrictionConeBuilder keeps stance forces inside the pyramid
// |fₓ|, |f_y| ≤ μ f_z with f_z ≥ 0, and zeroes the forces of swing feet.
func FrictionConeBuilder() constraint.Builder[*ProblemData] {
	return constraint.Compose(partsFor("friction_cone", func(p *ProblemData, mode ContactMode, x, u sym.Vec) (rows, error) {
		var r rows
		inf := math.Inf(1)
		for i := range p.Model.Feet {
			f := Force(u, i)
			if !mode.InContact(i) {
				for _, fi := range f {
					r.add(fi, 0, 0)
				}
				continue
			}
			muz := sym.Scale(p.Mu, f[2])
			r.add(f[2], 0, inf)
			r.add(sym.Sub(muz, f[0]), 0, inf)
			r.add(sym.Add(muz, f[0]), 0, inf)
			r.add(sym.Sub(muz, f[1]), 0, inf)
			r.add(sym.Add(muz, f[1]), 0, inf)
		}
		return r, nil
	}))
}

// VelocityBuilder pins stance feet and limits the speed of swing feet.
func VelocityBuilder() constraint.Builder[*ProblemData] {
	return constraint.Compose(partsFor("velocity", func(p *ProblemData, mode ContactMode, x, u sym.Vec) (rows, error) {
		var r rows
		n := p.Model.NumFeet()
		limit := math.Inf(1)
		if p.MaxFootSpeed > 0 {
			limit = p.MaxFootSpeed
		}
		for i := 0; i < n; i++ {
			for _, v := range FootVelocity(u, n, i) {
				if mode.InContact(i) {
					r.add(v, 0, 0)
				} else {
					r.add(v, -limit, limit)
				}
			}
		}
		return r, nil
	}))
}

// ContactBuilder keeps every stance foot on its surface: inside the region
// A·[pₓ p_y]ᵀ ≤ B and at the surface height. It applies at every knot of
// the phase through an explicit knot mask.
func ContactBuilder() constraint.Builder[*ProblemData] {
	parts := partsFor("contact", func(p *ProblemData, mode ContactMode, x, u sym.Vec) (rows, error) {
		var r rows
		for i, name := range p.Model.Feet {
			if !mode.InContact(i) {
				continue
			}
			s, err := p.Surfaces.Get(mode.Surfaces[i])
			if err != nil {
				return rows{}, errors.Wrapf(err, "foot %s", name)
			}
			foot := sym.Vec(Foot(x, i))
			rn, _ := s.A.Dims()
			a := mat.DenseCopyOf(s.A).RawMatrix().Data
			for k, e := range foot[:2].MulMat(a, rn) {
				r.add(e, math.Inf(-1), s.B[k])
			}
			r.add(foot[2], s.Height, s.Height)
		}
		return r, nil
	})
	parts.CreateApplyAt = func(p *ProblemData, phase int) ([]int, error) {
		ph, err := p.Sequence.Phase(phase)
		if err != nil {
			return nil, err
		}
		mask := make([]int, ph.Knots)
		for k := range mask {
			mask[k] = 1
		}
		return mask, nil
	}
	return constraint.Compose(parts)
}

// Builders returns the friction cone, velocity and contact builders.
func Builders() []constraint.Builder[*ProblemData] {
	return []constraint.Builder[*ProblemData]{FrictionConeBuilder(), VelocityBuilder(), ContactBuilder()}
}

func (p *ProblemData) String() string {
	return fmt.Sprintf("legged problem: %d feet, %d phases, mu=%g", p.Model.NumFeet(), p.Sequence.NumPhases(), p.Mu)
}
