// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/trajopt/legged"
	"github.com/curioloop/trajopt/nlp"
	"github.com/curioloop/trajopt/poly"
	"github.com/curioloop/trajopt/trajectory"
)

// Scenario is the yaml description of a legged trajectory.
type Scenario struct {
	Model   legged.Model    `yaml:"model"`
	Initial InitialState    `yaml:"initial"`
	Target  *InitialState   `yaml:"target"`
	Degree  int             `yaml:"degree"`
	Scheme  poly.Scheme     `yaml:"scheme"`
	Mu      float64         `yaml:"mu"`
	Speed   float64         `yaml:"max_foot_speed"`
	Weights *legged.Weights `yaml:"weights"`

	Surfaces []SurfaceConfig `yaml:"surfaces"`
	Phases   []legged.Phase  `yaml:"phases"`
	Solver   SolverConfig    `yaml:"solver"`
}

// InitialState places the body and the feet.
type InitialState struct {
	CoM         [3]float64   `yaml:"com"`
	Orientation []float64    `yaml:"orientation"`
	Feet        [][3]float64 `yaml:"feet"`
}

// SurfaceConfig is a rectangle at a height. Without a box the surface is the
// infinite ground.
type SurfaceConfig struct {
	Box    []float64 `yaml:"box"` // xmin, xmax, ymin, ymax
	Height float64   `yaml:"height"`
}

// SolverConfig selects the NLP backend and passes its options through.
type SolverConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

// LoadScenario reads a scenario file and fills in the defaults.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return ParseScenario(raw)
}

// ParseScenario decodes a yaml scenario.
func ParseScenario(raw []byte) (*Scenario, error) {
	sc := &Scenario{Degree: 3, Scheme: poly.Radau, Mu: 0.7}
	if err := yaml.Unmarshal(raw, sc); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	if sc.Model.Gravity == 0 {
		sc.Model.Gravity = 9.81
	}
	if sc.Weights == nil {
		w := legged.DefaultWeights()
		sc.Weights = &w
	}
	if sc.Solver.Name == "" {
		sc.Solver.Name = "slsqp"
	}
	if len(sc.Surfaces) == 0 {
		sc.Surfaces = []SurfaceConfig{{}}
	}
	if len(sc.Phases) == 0 {
		return nil, errors.New("scenario has no phases")
	}
	return sc, nil
}

func (sc *Scenario) surfaces() (legged.Surfaces, error) {
	out := make(legged.Surfaces, len(sc.Surfaces))
	for i, s := range sc.Surfaces {
		switch len(s.Box) {
		case 0:
			out[i] = legged.InfiniteGround()
			out[i].Height = s.Height
		case 4:
			out[i] = legged.Box(s.Box[0], s.Box[1], s.Box[2], s.Box[3], s.Height)
		default:
			return nil, errors.Errorf("surface %d: box needs 4 entries, got %d", i, len(s.Box))
		}
	}
	return out, nil
}

func (sc *Scenario) solver(logger *zap.SugaredLogger) (nlp.Solver, error) {
	switch sc.Solver.Name {
	case "slsqp":
		return nlp.NewSLSQP(sc.Solver.Options, nlp.WithLogger(logger))
	case "nlopt":
		return nlp.NewNLopt(sc.Solver.Options, nlp.WithLogger(logger))
	default:
		return nil, errors.Errorf("unknown solver %q", sc.Solver.Name)
	}
}

// Build assembles the trajectory optimizer of the scenario and seeds it with
// the static initial guess.
func (sc *Scenario) Build(logger *zap.SugaredLogger) (*trajectory.Optimizer[*legged.ProblemData], error) {
	m := &sc.Model
	seq := legged.NewContactSequence(m.NumFeet())
	for i, ph := range sc.Phases {
		if err := seq.AddPhase(ph.Mode, ph.Knots, ph.Duration); err != nil {
			return nil, errors.Wrapf(err, "phase %d", i)
		}
	}
	surfaces, err := sc.surfaces()
	if err != nil {
		return nil, err
	}
	data := &legged.ProblemData{Model: m, Surfaces: surfaces, Sequence: seq, Mu: sc.Mu, MaxFootSpeed: sc.Speed}
	if err := data.Validate(); err != nil {
		return nil, err
	}

	x0, err := m.State(sc.Initial.CoM, sc.Initial.Orientation, sc.Initial.Feet)
	if err != nil {
		return nil, errors.Wrap(err, "initial state")
	}
	ref := x0
	if sc.Target != nil {
		if ref, err = m.State(sc.Target.CoM, sc.Target.Orientation, sc.Target.Feet); err != nil {
			return nil, errors.Wrap(err, "target state")
		}
	}
	L, err := m.RunningCost(ref, *sc.Weights)
	if err != nil {
		return nil, err
	}
	Phi, err := m.TerminalCost(ref, *sc.Weights)
	if err != nil {
		return nil, err
	}

	s, err := sc.solver(logger)
	if err != nil {
		return nil, err
	}
	problem := trajectory.Problem{
		Fint: m.Integrator(), Fdif: m.Difference(), F: m.Dynamics(), L: L, Phi: Phi,
		States: m.States(),
	}
	opt, err := trajectory.New(problem, data, legged.Builders(), seq,
		trajectory.WithSolver(s),
		trajectory.WithLogger(logger),
		trajectory.WithScheme(sc.Scheme),
		trajectory.WithParallelMap(true))
	if err != nil {
		return nil, err
	}
	if err := opt.InitFiniteElements(sc.Degree, x0); err != nil {
		return nil, err
	}
	if err := opt.InitialGuess(m.StaticGuess(x0, seq)); err != nil {
		return nil, err
	}
	return opt, nil
}
