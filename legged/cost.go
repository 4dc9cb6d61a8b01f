// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package legged

import (
	"github.com/pkg/errors"

	"github.com/curioloop/trajopt/sym"
)

// Weights scale the terms of the tracking cost.
type Weights struct {
	Force        float64 `json:"force" yaml:"force"`
	FootVelocity float64 `json:"foot_velocity" yaml:"foot_velocity"`
	CoM          float64 `json:"com" yaml:"com"`
	Orientation  float64 `json:"orientation" yaml:"orientation"`
	Velocity     float64 `json:"velocity" yaml:"velocity"`
	Terminal     float64 `json:"terminal" yaml:"terminal"`
}

// DefaultWeights returns the weights used when a scenario does not set any.
func DefaultWeights() Weights {
	return Weights{Force: 1e-4, FootVelocity: 1e-3, CoM: 10, Orientation: 10, Velocity: 1, Terminal: 100}
}

func (m *Model) tracking(x, ref sym.Vec, w Weights) sym.Expr {
	e := sym.Scale(w.CoM, sym.Vec(CoM(x)).Sub(CoM(ref)).SumSquares())
	// 1 - (q·q_ref)² vanishes for both q_ref and -q_ref.
	dot := sym.Vec(Orientation(x)).Dot(Orientation(ref))
	e = sym.Add(e, sym.Scale(w.Orientation, sym.Sub(sym.Const(1), sym.Sq(dot))))
	v := sym.Vertcat(Velocity(x), Omega(x))
	return sym.Add(e, sym.Scale(w.Velocity, v.SumSquares()))
}

// RunningCost returns L(x, u) tracking the reference state while penalizing
// the contact forces and the foot velocities.
func (m *Model) RunningCost(ref []float64, w Weights) (*sym.Function, error) {
	st := m.States()
	if len(ref) != st.NX {
		return nil, errors.Errorf("reference state has %d entries, expected %d", len(ref), st.NX)
	}
	x, _, u, _, _ := m.symbols()
	n := m.NumFeet()
	forces, speeds := sym.Vec(u[:3*n]), sym.Vec(u[3*n:])
	l := m.tracking(x, sym.Constants(ref), w)
	l = sym.Add(l, sym.Scale(w.Force, forces.SumSquares()))
	l = sym.Add(l, sym.Scale(w.FootVelocity, speeds.SumSquares()))
	return sym.NewFunction("L", []sym.Vec{x, u}, []sym.Vec{{l}})
}

// TerminalCost returns Phi(x) tracking the reference state.
func (m *Model) TerminalCost(ref []float64, w Weights) (*sym.Function, error) {
	st := m.States()
	if len(ref) != st.NX {
		return nil, errors.Errorf("reference state has %d entries, expected %d", len(ref), st.NX)
	}
	x, _, _, _, _ := m.symbols()
	phi := sym.Scale(w.Terminal, m.tracking(x, sym.Constants(ref), w))
	return sym.NewFunction("Phi", []sym.Vec{x}, []sym.Vec{{phi}})
}

// StaticGuess returns a trajectory that holds x0 with the weight shared by
// the feet in contact at each time.
func (m *Model) StaticGuess(x0 []float64, seq *ContactSequence) func(t float64) ([]float64, []float64) {
	st := m.States()
	return func(t float64) ([]float64, []float64) {
		u := make([]float64, st.NU)
		_, ph, err := seq.PhaseAtTime(t)
		if err != nil {
			return x0, u
		}
		if n := ph.Mode.NumActive(); n > 0 {
			fz := m.Mass * m.Gravity / float64(n)
			for i := range m.Feet {
				if ph.Mode.InContact(i) {
					Force(u, i)[2] = fz
				}
			}
		}
		return x0, u
	}
}
