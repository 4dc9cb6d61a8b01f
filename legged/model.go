// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package legged models a legged robot as a single rigid body with point feet
// and provides the contact constraints of its trajectory problem.
//
// The state is x = [c q v ω p₁ … pₙ] with the center of mass c, the body
// orientation quaternion q (scalar first), the linear velocity v in the world
// frame, the angular velocity ω in the body frame and the foot positions pᵢ.
// The tangent space replaces q by a rotation vector δθ applied on the right.
// The control is u = [f₁ … fₙ ṗ₁ … ṗₙ], the contact forces and foot velocities.
package legged

import (
	"github.com/pkg/errors"

	"github.com/curioloop/trajopt/collocation"
	"github.com/curioloop/trajopt/sym"
)

const (
	comOffset   = 0
	quatOffset  = 3
	velOffset   = 7
	omegaOffset = 10
	footOffset  = 13
)

// Model is a single rigid body with point feet.
type Model struct {
	Mass    float64    `json:"mass" yaml:"mass"`
	Inertia [3]float64 `json:"inertia" yaml:"inertia"` // principal moments in the body frame
	Gravity float64    `json:"gravity" yaml:"gravity"`
	Feet    []string   `json:"feet" yaml:"feet"`
}

// Validate checks the physical parameters.
func (m *Model) Validate() error {
	switch {
	case m.Mass <= 0:
		return errors.Errorf("mass must be positive, got %g", m.Mass)
	case m.Inertia[0] <= 0 || m.Inertia[1] <= 0 || m.Inertia[2] <= 0:
		return errors.Errorf("inertia must be positive, got %v", m.Inertia)
	case len(m.Feet) == 0:
		return errors.New("model needs at least one foot")
	}
	return nil
}

// NumFeet returns the number of end effectors.
func (m *Model) NumFeet() int { return len(m.Feet) }

// States returns the dimensions of the state model.
func (m *Model) States() collocation.States {
	n := len(m.Feet)
	return collocation.States{NX: footOffset + 3*n, NDX: footOffset - 1 + 3*n, NU: 6 * n}
}

// Slicers over the state, the tangent and the control. They work on both
// symbolic and numeric vectors.

func CoM[T any](x []T) []T         { return x[comOffset : comOffset+3] }
func Orientation[T any](x []T) []T { return x[quatOffset : quatOffset+4] }
func Velocity[T any](x []T) []T    { return x[velOffset : velOffset+3] }
func Omega[T any](x []T) []T       { return x[omegaOffset : omegaOffset+3] }
func Foot[T any](x []T, i int) []T { return x[footOffset+3*i : footOffset+3*i+3] }

func dCoM[T any](dx []T) []T         { return dx[0:3] }
func dRotation[T any](dx []T) []T    { return dx[3:6] }
func dVelocity[T any](dx []T) []T    { return dx[6:9] }
func dOmega[T any](dx []T) []T       { return dx[9:12] }
func dFoot[T any](dx []T, i int) []T { return dx[12+3*i : 12+3*i+3] }

// Force returns the contact force of foot i from the control.
func Force[T any](u []T, i int) []T { return u[3*i : 3*i+3] }

// FootVelocity returns the velocity of foot i from the control of a model with n feet.
func FootVelocity[T any](u []T, n, i int) []T { return u[3*n+3*i : 3*n+3*i+3] }

func (m *Model) symbols() (x, dx, u, x2, dt sym.Vec) {
	st := m.States()
	return sym.SymVec("x", st.NX), sym.SymVec("dx", st.NDX), sym.SymVec("u", st.NU), sym.SymVec("x2", st.NX), sym.SymVec("dt", 1)
}

// Dynamics returns F(x, u) → ẋ in the tangent space.
func (m *Model) Dynamics() *sym.Function {
	x, _, u, _, _ := m.symbols()
	n := len(m.Feet)
	c, q := sym.Vec(CoM(x)), sym.Vec(Orientation(x))
	v, w := sym.Vec(Velocity(x)), sym.Vec(Omega(x))

	force := sym.Zeros(3)
	torque := sym.Zeros(3)
	for i := 0; i < n; i++ {
		f := sym.Vec(Force(u, i))
		r := sym.Vec(Foot(x, i)).Sub(c)
		force = force.Add(f)
		torque = torque.Add(r.Cross(f))
	}
	acc := force.ScaleF(1 / m.Mass)
	acc[2] = sym.Sub(acc[2], sym.Const(m.Gravity))

	tb := rotateT(q, torque)
	iw := sym.Vec{sym.Scale(m.Inertia[0], w[0]), sym.Scale(m.Inertia[1], w[1]), sym.Scale(m.Inertia[2], w[2])}
	gyro := w.Cross(iw)
	alpha := make(sym.Vec, 3)
	for i := range alpha {
		alpha[i] = sym.Scale(1/m.Inertia[i], sym.Sub(tb[i], gyro[i]))
	}

	out := sym.Vertcat(v, w, acc, alpha)
	for i := 0; i < n; i++ {
		out = append(out, FootVelocity(u, n, i)...)
	}
	return sym.MustFunction("F", []sym.Vec{x, u}, []sym.Vec{out})
}

// Integrator returns Fint(x, dx, dt) → x'. The orientation is updated on the
// right by the rotation vector δθ and every other part is translated. The
// deviation is an absolute increment, so dt does not scale it.
func (m *Model) Integrator() *sym.Function {
	x, dx, _, _, dt := m.symbols()
	out := sym.Vertcat(
		sym.Vec(CoM(x)).Add(dCoM(dx)),
		qretract(Orientation(x), dRotation(dx)),
		sym.Vec(Velocity(x)).Add(dVelocity(dx)),
		sym.Vec(Omega(x)).Add(dOmega(dx)),
	)
	for i := range m.Feet {
		out = append(out, sym.Vec(Foot(x, i)).Add(dFoot(dx, i))...)
	}
	return sym.MustFunction("Fint", []sym.Vec{x, dx, dt}, []sym.Vec{out})
}

// Difference returns Fdif(x, x', dt) → dx, the inverse of Integrator.
func (m *Model) Difference() *sym.Function {
	x, _, _, x2, dt := m.symbols()
	out := sym.Vertcat(
		sym.Vec(CoM(x2)).Sub(CoM(x)),
		qlocal(Orientation(x), Orientation(x2)),
		sym.Vec(Velocity(x2)).Sub(Velocity(x)),
		sym.Vec(Omega(x2)).Sub(Omega(x)),
	)
	for i := range m.Feet {
		out = append(out, sym.Vec(Foot(x2, i)).Sub(Foot(x, i))...)
	}
	return sym.MustFunction("Fdif", []sym.Vec{x, x2, dt}, []sym.Vec{out})
}

// State packs a numeric state. Velocities start at rest.
func (m *Model) State(com [3]float64, orientation []float64, feet [][3]float64) ([]float64, error) {
	if len(feet) != len(m.Feet) {
		return nil, errors.Errorf("%d foot positions for %d feet", len(feet), len(m.Feet))
	}
	if len(orientation) != 4 {
		return nil, errors.Errorf("orientation needs 4 entries, got %d", len(orientation))
	}
	x := make([]float64, m.States().NX)
	copy(CoM(x), com[:])
	copy(Orientation(x), QuaternionSlice(Normalize(Quaternion(orientation))))
	for i, p := range feet {
		copy(Foot(x, i), p[:])
	}
	return x, nil
}
