// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sym

import (
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Mapped evaluates a Function column by column over n independent columns.
type Mapped struct {
	f        *Function
	n        int
	parallel bool
}

// Map returns the batched form of f over n columns. When parallel is true the
// columns are built concurrently; there is no ordering dependency between them.
func (f *Function) Map(n int, parallel bool) *Mapped {
	if n <= 0 {
		panic("sym: map size must be positive")
	}
	return &Mapped{f: f, n: n, parallel: parallel}
}

// Size returns the number of columns.
func (m *Mapped) Size() int { return m.n }

// Call applies the function to every column. args[i][k] is column k of input i;
// the result is indexed the same way, out[i][k] being column k of output i.
func (m *Mapped) Call(args ...[]Vec) ([][]Vec, error) {
	f := m.f
	if len(args) != f.NIn() {
		return nil, errors.Wrapf(ErrArity, "map of %s takes %d arguments, got %d", f.name, f.NIn(), len(args))
	}
	for i, cols := range args {
		if len(cols) != m.n {
			return nil, errors.Wrapf(ErrSize, "map of %s argument %d has %d columns, expected %d", f.name, i, len(cols), m.n)
		}
	}
	out := make([][]Vec, f.NOut())
	for i := range out {
		out[i] = make([]Vec, m.n)
	}
	column := func(k int) error {
		col := make([]Vec, len(args))
		for i := range args {
			col[i] = args[i][k]
		}
		res, err := f.Call(col...)
		if err != nil {
			return errors.Wrapf(err, "column %d", k)
		}
		for i, v := range res {
			out[i][k] = v
		}
		return nil
	}
	if !m.parallel {
		for k := 0; k < m.n; k++ {
			if err := column(k); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	var g errgroup.Group
	for k := 0; k < m.n; k++ {
		g.Go(func() error { return column(k) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Folded threads an accumulator through n columns of a Function.
type Folded struct {
	f *Function
	n int
}

// Fold returns the left fold of f over n columns. f must map
// (acc, a₁, …) to a single output acc′ of the same size as acc.
func (f *Function) Fold(n int) (*Folded, error) {
	switch {
	case n <= 0:
		return nil, errors.Errorf("fold of %s: size must be positive", f.name)
	case f.NIn() < 1 || f.NOut() != 1:
		return nil, errors.Wrapf(ErrArity, "fold of %s needs an accumulator input and a single output", f.name)
	case f.SizeIn(0) != f.SizeOut(0):
		return nil, errors.Wrapf(ErrSize, "fold of %s: accumulator size %d differs from output size %d", f.name, f.SizeIn(0), f.SizeOut(0))
	}
	return &Folded{f: f, n: n}, nil
}

// Call folds acc over the columns of args, args[i][k] being column k of input i+1.
func (fo *Folded) Call(acc Vec, args ...[]Vec) (Vec, error) {
	f := fo.f
	if len(args) != f.NIn()-1 {
		return nil, errors.Wrapf(ErrArity, "fold of %s takes %d column arguments, got %d", f.name, f.NIn()-1, len(args))
	}
	for i, cols := range args {
		if len(cols) != fo.n {
			return nil, errors.Wrapf(ErrSize, "fold of %s argument %d has %d columns, expected %d", f.name, i, len(cols), fo.n)
		}
	}
	col := make([]Vec, f.NIn())
	for k := 0; k < fo.n; k++ {
		col[0] = acc
		for i := range args {
			col[i+1] = args[i][k]
		}
		next, err := f.Call1(col...)
		if err != nil {
			return nil, errors.Wrapf(err, "column %d", k)
		}
		acc = next
	}
	return acc, nil
}
