// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sym

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplify(t *testing.T) {
	x := Symbol("x")
	assert.True(t, Add(x, Const(0)).Same(x))
	assert.True(t, Mul(Const(1), x).Same(x))
	assert.True(t, Mul(x, Const(0)).IsConst())
	assert.True(t, Sub(x, x).IsConst())
	assert.True(t, Neg(Neg(x)).Same(x))
	assert.Equal(t, 6.0, Mul(Const(2), Const(3)).Value())
	assert.Equal(t, 0.0, Expr{}.Value())
	assert.True(t, math.IsNaN(x.Value()))
	assert.Equal(t, "(x+1)", Add(x, Const(1)).String())
	assert.Equal(t, "sq(x)", Pow(x, Const(2)).String())
	assert.Equal(t, "[0, x]", Vec{{}, x}.String())
}

func TestFunctionEval(t *testing.T) {
	x := SymVec("x", 2)
	u := SymVec("u", 1)
	y := Vec{
		Add(Mul(x[0], x[1]), Sin(u[0])),
		Div(Exp(x[0]), Add(Sq(x[1]), Const(1))),
		Atan2(x[1], x[0]),
	}
	f, err := NewFunction("f", []Vec{x, u}, []Vec{y, {Sqrt(Sq(u[0]))}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.NIn())
	assert.Equal(t, 2, f.NOut())
	assert.Equal(t, 3, f.NumInputs())
	assert.Equal(t, 4, f.NumOutputs())

	out, err := f.Eval([]float64{0.5, 2}, []float64{-0.3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1 + math.Sin(-0.3), math.Exp(0.5) / 5, math.Atan2(2, 0.5)}, out[0], 1e-14)
	assert.InDeltaSlice(t, []float64{0.3}, out[1], 1e-14)

	_, err = f.Eval([]float64{1}, []float64{1})
	assert.True(t, errors.Is(err, ErrSize))
	_, err = f.Eval([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrArity))
}

func TestFunctionJacobian(t *testing.T) {
	x := SymVec("x", 3)
	y := Vec{
		Mul(Sq(x[0]), x[2]),
		Log(Add(x[1], Const(3))),
		Pow(x[0], x[1]),
		Tanh(Cos(x[2])),
		Const(4),
	}
	f := MustFunction("g", []Vec{x}, []Vec{y})
	pt := []float64{1.5, 0.7, -0.4}
	jac, err := f.Jacobian(pt)
	require.NoError(t, err)

	h := 1e-6
	for j := 0; j < 3; j++ {
		xp := append([]float64(nil), pt...)
		xm := append([]float64(nil), pt...)
		xp[j] += h
		xm[j] -= h
		yp := make([]float64, 5)
		ym := make([]float64, 5)
		f.EvalFlat(xp, yp)
		f.EvalFlat(xm, ym)
		for i := 0; i < 5; i++ {
			assert.InDelta(t, (yp[i]-ym[i])/(2*h), jac[i*3+j], 1e-7, "d y%d / d x%d", i, j)
		}
	}

	assert.Equal(t, [][]int{{0, 2}, {1}, {0, 1}, {2}, nil}, f.Sparsity())
}

func TestGradient(t *testing.T) {
	x := SymVec("x", 2)
	f := MustFunction("rosen", []Vec{x}, []Vec{{Add(Sq(Sub(Const(1), x[0])), Scale(100, Sq(Sub(x[1], Sq(x[0])))))}})
	v, g, err := f.Gradient([]float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, []float64{0, 0}, g)

	v, g, err = f.Gradient([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.InDeltaSlice(t, []float64{-2, 0}, g, 1e-14)
}

func TestFunctionCall(t *testing.T) {
	x := SymVec("x", 2)
	f := MustFunction("f", []Vec{x}, []Vec{{Mul(x[0], x[1])}, x.ScaleF(2)})

	a := Symbol("a")
	out, err := f.Call(Vec{a, Const(3)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	g := MustFunction("g", []Vec{{a}}, out)
	res, err := g.Eval([]float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{6}, res[0])
	assert.Equal(t, []float64{4, 6}, res[1])

	// Fully numeric arguments fold to constants.
	num, err := f.Call1(Constants([]float64{2, 5}))
	require.NoError(t, err)
	vals, ok := num.Values()
	require.True(t, ok)
	assert.Equal(t, []float64{10}, vals)

	_, err = f.Call(Vec{a})
	assert.True(t, errors.Is(err, ErrSize))
}

func TestNewFunctionErrors(t *testing.T) {
	x := SymVec("x", 2)
	free := Symbol("z")
	_, err := NewFunction("f", []Vec{x}, []Vec{{Add(x[0], free)}})
	assert.True(t, errors.Is(err, ErrFreeVariable))

	_, err = NewFunction("f", []Vec{{Add(x[0], x[1])}}, nil)
	assert.True(t, errors.Is(err, ErrNotSymbolic))

	_, err = NewFunction("f", []Vec{x, {x[0]}}, nil)
	assert.True(t, errors.Is(err, ErrNotSymbolic))

	f := MustFunction("f", []Vec{x}, []Vec{{x[0]}})
	assert.NoError(t, f.CheckSizeIn(0, 2))
	assert.True(t, errors.Is(f.CheckSizeIn(0, 3), ErrSize))
	assert.True(t, errors.Is(f.CheckSizeIn(1, 1), ErrArity))
	assert.NoError(t, f.CheckSizeOut(0, 1))
	assert.True(t, errors.Is(f.CheckSizeOut(0, 2), ErrSize))
}

func TestMapFold(t *testing.T) {
	acc := SymVec("acc", 1)
	x := SymVec("x", 2)
	sq := MustFunction("sq", []Vec{x}, []Vec{{x.SumSquares()}, x.Neg()})
	cols := []Vec{Constants([]float64{1, 2}), SymVec("y", 2), Constants([]float64{0, 3})}

	for _, parallel := range []bool{false, true} {
		out, err := sq.Map(3, parallel).Call(cols)
		require.NoError(t, err)
		require.Len(t, out, 2)
		require.Len(t, out[0], 3)
		assert.Equal(t, 5.0, out[0][0][0].Value())
		assert.False(t, out[0][1][0].IsConst())
		assert.Equal(t, -3.0, out[1][2][1].Value())
	}

	_, err := sq.Map(2, true).Call(cols)
	assert.True(t, errors.Is(err, ErrSize))

	step := MustFunction("step", []Vec{acc, x}, []Vec{{Add(acc[0], x.Sum())}})
	fold, err := step.Fold(3)
	require.NoError(t, err)
	y := cols[1]
	total, err := fold.Call(Constants([]float64{10}), cols)
	require.NoError(t, err)
	fn := MustFunction("total", []Vec{y}, []Vec{total})
	res, err := fn.Eval([]float64{4, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{10 + 3 + 9 + 3}, res[0])

	_, err = sq.Fold(2)
	assert.True(t, errors.Is(err, ErrArity))
}

func TestSubstitute(t *testing.T) {
	x := SymVec("x", 2)
	v := Vec{Add(x[0], x[1]), Mul(x[0], Const(2))}
	w := Substitute(v, x, Constants([]float64{1, 4}))
	vals, ok := w.Values()
	require.True(t, ok)
	assert.Equal(t, []float64{5, 2}, vals)
	assert.Panics(t, func() { Substitute(v, x, Vec{x[0]}) })
}

func TestVecOps(t *testing.T) {
	a := Constants([]float64{1, 0, 0})
	b := Constants([]float64{0, 1, 0})
	c, ok := a.Cross(b).Values()
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 1}, c)
	assert.Equal(t, 0.0, a.Dot(b).Value())

	m, ok := a.Add(b).MulMat([]float64{1, 2, 3, 4, 5, 6}, 2).Values()
	require.True(t, ok)
	assert.Equal(t, []float64{3, 9}, m)

	parts := Vertcat(a, b).Split(3)
	require.Len(t, parts, 2)
	assert.True(t, SymVec("s", 3).IsSymbolic())
	assert.Panics(t, func() { a.Add(Zeros(2)) })
	assert.Panics(t, func() { a.Split(2) })
}
