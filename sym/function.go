// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sym

import (
	"github.com/pkg/errors"
)

var (
	// ErrFreeVariable is returned when an output depends on a symbol that is not an input.
	ErrFreeVariable = errors.New("free variable in function output")
	// ErrNotSymbolic is returned when a function input is not made of distinct symbols.
	ErrNotSymbolic = errors.New("function input must consist of distinct symbols")
	// ErrArity is returned when a call passes the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")
	// ErrSize is returned when an argument or result has the wrong length.
	ErrSize = errors.New("argument size mismatch")
)

// Function maps symbolic input vectors to output vectors.
//
// A Function is immutable once created and safe for concurrent use.
type Function struct {
	name string
	in   []Vec
	out  []Vec
	tape *tape
}

// NewFunction packs the expression graph of out into a function of in.
// Every input must be a vector of distinct symbols and every output may only
// depend on those symbols.
func NewFunction(name string, in, out []Vec) (*Function, error) {
	seen := make(map[*node]struct{})
	for i, v := range in {
		for j, e := range v {
			n := e.get()
			if n.op != opSymbol {
				return nil, errors.Wrapf(ErrNotSymbolic, "%s: input %d element %d is %s", name, i, j, e)
			}
			if _, dup := seen[n]; dup {
				return nil, errors.Wrapf(ErrNotSymbolic, "%s: symbol %s repeated", name, n.name)
			}
			seen[n] = struct{}{}
		}
	}
	f := &Function{name: name}
	f.in = make([]Vec, len(in))
	for i, v := range in {
		f.in[i] = append(Vec(nil), v...)
	}
	f.out = make([]Vec, len(out))
	for i, v := range out {
		f.out[i] = append(Vec(nil), v...)
	}
	t, err := compile(f.in, f.out)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	f.tape = t
	return f, nil
}

// MustFunction is like NewFunction but panics on error. It is intended for
// graphs whose inputs are built alongside the outputs.
func MustFunction(name string, in, out []Vec) *Function {
	f, err := NewFunction(name, in, out)
	if err != nil {
		panic(err)
	}
	return f
}

// Name returns the function name.
func (f *Function) Name() string { return f.name }

// NIn returns the number of inputs.
func (f *Function) NIn() int { return len(f.in) }

// NOut returns the number of outputs.
func (f *Function) NOut() int { return len(f.out) }

// SizeIn returns the length of input i.
func (f *Function) SizeIn(i int) int { return len(f.in[i]) }

// SizeOut returns the length of output i.
func (f *Function) SizeOut(i int) int { return len(f.out[i]) }

// NumInputs returns the total number of scalar inputs.
func (f *Function) NumInputs() int { return f.tape.nin }

// NumOutputs returns the total number of scalar outputs.
func (f *Function) NumOutputs() int { return len(f.tape.outputs) }

// Input returns the symbols of input i.
func (f *Function) Input(i int) Vec { return append(Vec(nil), f.in[i]...) }

// Output returns the expressions of output i.
func (f *Function) Output(i int) Vec { return append(Vec(nil), f.out[i]...) }

// CheckSizeIn returns an error unless input i exists and has length n.
func (f *Function) CheckSizeIn(i, n int) error {
	if i >= len(f.in) {
		return errors.Wrapf(ErrArity, "%s has %d inputs, input %d requested", f.name, len(f.in), i)
	}
	if len(f.in[i]) != n {
		return errors.Wrapf(ErrSize, "%s input %d has size %d, expected %d", f.name, i, len(f.in[i]), n)
	}
	return nil
}

// CheckSizeOut returns an error unless output i exists and has length n.
func (f *Function) CheckSizeOut(i, n int) error {
	if i >= len(f.out) {
		return errors.Wrapf(ErrArity, "%s has %d outputs, output %d requested", f.name, len(f.out), i)
	}
	if len(f.out[i]) != n {
		return errors.Wrapf(ErrSize, "%s output %d has size %d, expected %d", f.name, i, len(f.out[i]), n)
	}
	return nil
}

func (f *Function) checkArgs(sizes []int) error {
	if len(sizes) != len(f.in) {
		return errors.Wrapf(ErrArity, "%s takes %d arguments, got %d", f.name, len(f.in), len(sizes))
	}
	for i, n := range sizes {
		if n != len(f.in[i]) {
			return errors.Wrapf(ErrSize, "%s argument %d has size %d, expected %d", f.name, i, n, len(f.in[i]))
		}
	}
	return nil
}

// Call substitutes args for the inputs and returns the resulting outputs.
func (f *Function) Call(args ...Vec) ([]Vec, error) {
	sizes := make([]int, len(args))
	for i, a := range args {
		sizes[i] = len(a)
	}
	if err := f.checkArgs(sizes); err != nil {
		return nil, err
	}
	s := newSubstituter(f.in, args)
	out := make([]Vec, len(f.out))
	for i, v := range f.out {
		out[i] = s.vec(v)
	}
	return out, nil
}

// Call1 calls f and returns its first output.
func (f *Function) Call1(args ...Vec) (Vec, error) {
	out, err := f.Call(args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrArity, "%s has no outputs", f.name)
	}
	return out[0], nil
}

// Eval evaluates f numerically.
func (f *Function) Eval(args ...[]float64) ([][]float64, error) {
	x, err := f.flatten(args)
	if err != nil {
		return nil, err
	}
	flat := make([]float64, len(f.tape.outputs))
	f.tape.forward(x, f.tape.alloc(), flat)
	out := make([][]float64, len(f.out))
	k := 0
	for i, v := range f.out {
		out[i] = flat[k : k+len(v) : k+len(v)]
		k += len(v)
	}
	return out, nil
}

// EvalFlat evaluates f on the concatenated inputs x and writes the
// concatenated outputs into y. It panics on size mismatch.
func (f *Function) EvalFlat(x, y []float64) {
	if len(x) != f.tape.nin || len(y) != len(f.tape.outputs) {
		panic("sym: flat evaluation size mismatch")
	}
	f.tape.forward(x, f.tape.alloc(), y)
}

// Jacobian evaluates the dense Jacobian of the concatenated outputs with
// respect to the concatenated inputs, row-major.
func (f *Function) Jacobian(args ...[]float64) ([]float64, error) {
	x, err := f.flatten(args)
	if err != nil {
		return nil, err
	}
	jac := make([]float64, len(f.tape.outputs)*f.tape.nin)
	f.JacobianFlat(x, jac, f.tape.nin)
	return jac, nil
}

// JacobianFlat writes ∂yᵢ/∂xⱼ into jac[i*ld+j]. Entries outside the sparsity
// pattern are set to zero.
func (f *Function) JacobianFlat(x, jac []float64, ld int) {
	t := f.tape
	if len(x) != t.nin || ld < t.nin || len(jac) < (len(t.outputs)-1)*ld+t.nin {
		panic("sym: jacobian size mismatch")
	}
	val := t.alloc()
	t.forward(x, val, nil)
	adj := t.alloc()
	for i := range t.outputs {
		row := jac[i*ld : i*ld+t.nin]
		for j := range row {
			row[j] = 0
		}
		t.reverse(i, val, adj, row)
	}
}

// Gradient evaluates the gradient of a scalar-output function.
func (f *Function) Gradient(args ...[]float64) (float64, []float64, error) {
	if len(f.tape.outputs) != 1 {
		return 0, nil, errors.Wrapf(ErrSize, "%s gradient needs a scalar output, has %d", f.name, len(f.tape.outputs))
	}
	x, err := f.flatten(args)
	if err != nil {
		return 0, nil, err
	}
	g := make([]float64, f.tape.nin)
	v := f.GradientFlat(x, g)
	return v, g, nil
}

// GradientFlat evaluates a scalar-output function and writes its gradient into g.
func (f *Function) GradientFlat(x, g []float64) float64 {
	t := f.tape
	if len(t.outputs) != 1 || len(x) != t.nin || len(g) < t.nin {
		panic("sym: gradient size mismatch")
	}
	val := t.alloc()
	t.forward(x, val, nil)
	for j := range g[:t.nin] {
		g[j] = 0
	}
	t.reverse(0, val, t.alloc(), g)
	return val[t.outputs[0]]
}

// Sparsity returns, for each scalar output, the sorted indices of the scalar
// inputs it depends on.
func (f *Function) Sparsity() [][]int { return f.tape.sparsity() }

func (f *Function) flatten(args [][]float64) ([]float64, error) {
	sizes := make([]int, len(args))
	for i, a := range args {
		sizes[i] = len(a)
	}
	if err := f.checkArgs(sizes); err != nil {
		return nil, err
	}
	x := make([]float64, 0, f.tape.nin)
	for _, a := range args {
		x = append(x, a...)
	}
	return x, nil
}

// substituter rebuilds expression graphs with symbols replaced.
type substituter struct {
	memo map[*node]Expr
}

func newSubstituter(from, to []Vec) *substituter {
	s := &substituter{memo: make(map[*node]Expr)}
	for i, v := range from {
		for j, e := range v {
			s.memo[e.get()] = to[i][j]
		}
	}
	return s
}

func (s *substituter) vec(v Vec) Vec {
	out := make(Vec, len(v))
	for i, e := range v {
		out[i] = s.expr(e.get())
	}
	return out
}

func (s *substituter) expr(n *node) Expr {
	if e, ok := s.memo[n]; ok {
		return e
	}
	var e Expr
	switch {
	case n.op == opConst || n.op == opSymbol:
		e = Expr{n}
	case n.unary():
		e = rebuild(n.op, s.expr(n.a), Expr{})
	default:
		e = rebuild(n.op, s.expr(n.a), s.expr(n.b))
	}
	s.memo[n] = e
	return e
}

// Substitute replaces the symbols in from by the expressions in to within v.
func Substitute(v Vec, from, to Vec) Vec {
	mustSameLen(from, to)
	return newSubstituter([]Vec{from}, []Vec{to}).vec(v)
}
