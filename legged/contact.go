// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package legged

import (
	"github.com/pkg/errors"
)

// ErrNoPhase is returned when a knot or time is not covered by any phase.
var ErrNoPhase = errors.New("no contact phase covers the request")

// ContactMode tells which feet are in contact and on which surface.
type ContactMode struct {
	Active   []bool `json:"active" yaml:"active"`
	Surfaces []int  `json:"surfaces" yaml:"surfaces"` // surface of each foot, ignored for swing feet
}

// Stance returns a mode with every one of n feet on the given surface.
func Stance(n, surface int) ContactMode {
	m := ContactMode{Active: make([]bool, n), Surfaces: make([]int, n)}
	for i := range m.Active {
		m.Active[i] = true
		m.Surfaces[i] = surface
	}
	return m
}

// InContact reports whether foot i touches a surface.
func (m ContactMode) InContact(i int) bool { return m.Active[i] }

// NumActive returns the number of feet in contact.
func (m ContactMode) NumActive() int {
	n := 0
	for _, a := range m.Active {
		if a {
			n++
		}
	}
	return n
}

// Phase is a run of knots sharing one contact mode.
type Phase struct {
	Mode     ContactMode `json:"mode" yaml:"mode"`
	Knots    int         `json:"knots" yaml:"knots"`
	Duration float64     `json:"duration" yaml:"duration"`
}

// ContactSequence is the ordered list of contact phases of a trajectory.
type ContactSequence struct {
	feet   int
	phases []Phase
}

// NewContactSequence returns an empty sequence for a robot with the given number of feet.
func NewContactSequence(feet int) *ContactSequence { return &ContactSequence{feet: feet} }

// AddPhase appends a phase.
func (s *ContactSequence) AddPhase(mode ContactMode, knots int, duration float64) error {
	if len(mode.Active) != s.feet || len(mode.Surfaces) != s.feet {
		return errors.Errorf("contact mode covers %d feet, sequence has %d", len(mode.Active), s.feet)
	}
	if knots <= 0 || !(duration > 0) {
		return errors.Errorf("phase needs positive knots and duration, got %d and %g", knots, duration)
	}
	s.phases = append(s.phases, Phase{Mode: mode, Knots: knots, Duration: duration})
	return nil
}

// NumPhases returns the number of phases.
func (s *ContactSequence) NumPhases() int { return len(s.phases) }

// PhaseKnots returns the knots of phase i.
func (s *ContactSequence) PhaseKnots(i int) int { return s.phases[i].Knots }

// PhaseDuration returns the duration of phase i.
func (s *ContactSequence) PhaseDuration(i int) float64 { return s.phases[i].Duration }

// Phase returns phase i.
func (s *ContactSequence) Phase(i int) (Phase, error) {
	if i < 0 || i >= len(s.phases) {
		return Phase{}, errors.Wrapf(ErrNoPhase, "phase %d of %d", i, len(s.phases))
	}
	return s.phases[i], nil
}

// TotalKnots returns the number of knots over all phases.
func (s *ContactSequence) TotalKnots() int {
	n := 0
	for _, p := range s.phases {
		n += p.Knots
	}
	return n
}

// TotalDuration returns the duration of all phases.
func (s *ContactSequence) TotalDuration() float64 {
	var t float64
	for _, p := range s.phases {
		t += p.Duration
	}
	return t
}

// PhaseAtKnot returns the index of the phase containing global knot k.
func (s *ContactSequence) PhaseAtKnot(k int) (int, Phase, error) {
	if k >= 0 {
		left := k
		for i, p := range s.phases {
			if left < p.Knots {
				return i, p, nil
			}
			left -= p.Knots
		}
	}
	return -1, Phase{}, errors.Wrapf(ErrNoPhase, "knot %d", k)
}

// PhaseAtTime returns the index of the phase active at time t. A time on a
// phase boundary belongs to the later phase, except the final instant.
func (s *ContactSequence) PhaseAtTime(t float64) (int, Phase, error) {
	if t >= 0 {
		start := 0.0
		for i, p := range s.phases {
			end := start + p.Duration
			if t < end || (i == len(s.phases)-1 && t <= end+1e-12) {
				return i, p, nil
			}
			start = end
		}
	}
	return -1, Phase{}, errors.Wrapf(ErrNoPhase, "time %g", t)
}
