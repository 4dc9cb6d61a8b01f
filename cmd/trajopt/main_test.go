// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curioloop/trajopt/legged"
	"github.com/curioloop/trajopt/nlp"
	"github.com/curioloop/trajopt/poly"
)

func TestLoadScenario(t *testing.T) {
	sc, err := LoadScenario("testdata/stand.yaml")
	require.NoError(t, err)

	assert.Equal(t, 20.0, sc.Model.Mass)
	assert.Equal(t, 9.81, sc.Model.Gravity)
	assert.Equal(t, []string{"left", "right"}, sc.Model.Feet)
	assert.Equal(t, 2, sc.Degree)
	assert.Equal(t, poly.Radau, sc.Scheme)
	assert.Equal(t, legged.DefaultWeights(), *sc.Weights)
	require.Len(t, sc.Phases, 2)
	assert.Equal(t, []bool{true, true}, sc.Phases[1].Mode.Active)
	assert.Equal(t, 0.2, sc.Phases[0].Duration)
	assert.Equal(t, "slsqp", sc.Solver.Name)
	assert.Equal(t, 100, sc.Solver.Options["max_iter"])

	opt, err := sc.Build(zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.Len(t, opt.Segments(), 2)

	prog := opt.Program()
	c, err := prog.Compile(nlp.Exact)
	require.NoError(t, err)
	g := make([]float64, c.NumConstraints())
	c.Constraints(prog.X0, g)
	sol := &nlp.Solution{X: prog.X0, G: g}
	assert.Less(t, sol.Violation(prog), 1e-9)

	_, err = LoadScenario("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestParseScenario(t *testing.T) {
	_, err := ParseScenario([]byte("model: {mass: 1}\n"))
	assert.ErrorContains(t, err, "no phases")

	_, err = ParseScenario([]byte("scheme: chebyshev\nphases: [{knots: 1, duration: 1}]\n"))
	assert.Error(t, err)

	sc, err := ParseScenario([]byte(`
model: {mass: 1, inertia: [1, 1, 1], feet: [a]}
initial: {com: [0, 0, 1], orientation: [1, 0, 0, 0], feet: [[0, 0, 0]]}
surfaces: [{box: [0, 1]}]
phases: [{mode: {active: [true], surfaces: [0]}, knots: 1, duration: 1}]
solver: {name: ipopt}
`))
	require.NoError(t, err)
	_, err = sc.Build(zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "box needs 4 entries")

	sc.Surfaces = []SurfaceConfig{{Box: []float64{-1, 1, -1, 1}}}
	_, err = sc.Build(zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "unknown solver")
}

func TestBasisCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"trajopt", "basis", "--degree", "2", "--scheme", "legendre"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5+3)
	assert.Equal(t, "scheme legendre, degree 2", lines[0])
	// the quadrature weights of Gauss–Legendre are 1/2 each, the root 0 gets none
	b := strings.Fields(strings.TrimPrefix(lines[2], "B:"))
	require.Len(t, b, 3)
	for i, want := range []float64{0, 0.5, 0.5} {
		v, err := strconv.ParseFloat(b[i], 64)
		require.NoError(t, err)
		assert.InDelta(t, want, v, 1e-8)
	}

	out.Reset()
	assert.Error(t, app.Run([]string{"trajopt", "basis", "--scheme", "chebyshev"}))
}
