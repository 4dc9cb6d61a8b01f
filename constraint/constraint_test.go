// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package constraint

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/trajopt/sym"
)

type limits struct {
	max   []float64
	masks [][]int
}

func speedParts() Parts[limits] {
	return Parts[limits]{
		Name: "speed",
		CreateFunction: func(_ limits, _ int) (*sym.Function, error) {
			x, u := sym.SymVec("x", 2), sym.SymVec("u", 1)
			return sym.NewFunction("speed", []sym.Vec{x, u}, []sym.Vec{{sym.Add(x[1], u[0])}})
		},
		CreateBounds: func(p limits, phase int) (*sym.Function, *sym.Function, error) {
			if phase >= len(p.max) {
				return nil, nil, errors.Errorf("no limit for phase %d", phase)
			}
			lo, up := ConstantBounds([]float64{-p.max[phase]}, []float64{p.max[phase]})
			return lo, up, nil
		},
	}
}

func TestCompose(t *testing.T) {
	p := limits{max: []float64{1, 2}, masks: [][]int{{1, 0, 1}}}
	b := Compose(speedParts())
	d, err := b.BuildConstraint(p, 1)
	require.NoError(t, err)
	assert.True(t, d.Global)
	require.NoError(t, d.Validate(2, 1, 3))
	assert.Equal(t, 1, d.Size())
	lo, up, err := d.BoundsAt(0.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2}, lo)
	assert.Equal(t, []float64{2}, up)

	_, err = b.BuildConstraint(p, 2)
	assert.ErrorContains(t, err, "speed bounds for phase 2")

	parts := speedParts()
	parts.CreateApplyAt = func(p limits, phase int) ([]int, error) { return p.masks[phase], nil }
	d, err = Compose(parts).BuildConstraint(p, 0)
	require.NoError(t, err)
	assert.False(t, d.Global)
	assert.Equal(t, []int{0, 2}, d.ActiveKnots(3))
	require.NoError(t, d.Validate(2, 1, 3))
	assert.True(t, errors.Is(d.Validate(2, 1, 4), ErrInvalid))
}

func TestValidate(t *testing.T) {
	x, u := sym.SymVec("x", 2), sym.SymVec("u", 1)
	g := sym.MustFunction("g", []sym.Vec{x, u}, []sym.Vec{{x[0], u[0]}})
	lo, up := ConstantBounds([]float64{0, 0}, []float64{1, 1})
	d := &Data{G: g, Lower: lo, Upper: up, Global: true}
	require.NoError(t, d.Validate(2, 1, 5))

	err := d.Validate(3, 2, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sym.ErrSize))

	short, _ := ConstantBounds([]float64{0}, []float64{1})
	d.Upper = short
	assert.True(t, errors.Is(d.Validate(2, 1, 5), sym.ErrSize))

	d.Upper = nil
	assert.True(t, errors.Is(d.Validate(2, 1, 5), ErrInvalid))

	single := sym.MustFunction("g", []sym.Vec{x}, []sym.Vec{{x[0]}})
	assert.True(t, errors.Is((&Data{G: single, Lower: lo, Upper: up, Global: true}).Validate(2, 1, 1), ErrInvalid))
	assert.True(t, errors.Is((*Data)(nil).Validate(2, 1, 1), ErrInvalid))
}

func TestTimeBounds(t *testing.T) {
	ts := sym.Symbol("t")
	lo, up, err := TimeBounds(ts, sym.Vec{sym.Neg(ts)}, sym.Vec{sym.Const(math.Inf(1))})
	require.NoError(t, err)
	x, u := sym.SymVec("x", 1), sym.SymVec("u", 1)
	d := &Data{G: sym.MustFunction("g", []sym.Vec{x, u}, []sym.Vec{x}), Lower: lo, Upper: up, Global: true}
	require.NoError(t, d.Validate(1, 1, 2))
	l, h, err := d.BoundsAt(0.25)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.25}, l)
	assert.True(t, math.IsInf(h[0], 1))
}

func TestBuildAll(t *testing.T) {
	p := limits{max: []float64{1}}
	fixed := BuilderFunc[limits](func(limits, int) (*Data, error) { return nil, errors.New("boom") })
	ds, err := BuildAll([]Builder[limits]{Compose(speedParts())}, p, 0)
	require.NoError(t, err)
	require.Len(t, ds, 1)

	_, err = BuildAll([]Builder[limits]{Compose(speedParts()), fixed}, p, 0)
	assert.ErrorContains(t, err, "constraint builder 1: boom")

	_, err = Compose(Parts[limits]{Name: "empty"}).BuildConstraint(p, 0)
	assert.Error(t, err)
}
