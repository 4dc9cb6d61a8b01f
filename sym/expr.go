// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sym implements a scalar symbolic expression graph.
//
// Expressions form a DAG: every operation returns a new immutable node that
// references its operands, so common sub-expressions are shared rather than
// copied. Graphs are packed into a Function which can be called symbolically
// (substitution), evaluated numerically and differentiated in reverse mode.
package sym

import (
	"math"
	"strconv"
)

type opcode uint8

const (
	opConst opcode = iota
	opSymbol
	opAdd
	opSub
	opMul
	opDiv
	opNeg
	opSq
	opSqrt
	opExp
	opLog
	opSin
	opCos
	opTanh
	opAtan2
	opPow
)

var opNames = [...]string{
	opAdd:   "+",
	opSub:   "-",
	opMul:   "*",
	opDiv:   "/",
	opNeg:   "neg",
	opSq:    "sq",
	opSqrt:  "sqrt",
	opExp:   "exp",
	opLog:   "log",
	opSin:   "sin",
	opCos:   "cos",
	opTanh:  "tanh",
	opAtan2: "atan2",
	opPow:   "pow",
}

type node struct {
	op    opcode
	value float64
	name  string
	a, b  *node
}

func (n *node) unary() bool  { return n.op >= opNeg && n.op <= opTanh }
func (n *node) binary() bool { return n.op >= opAdd && n.op <= opDiv || n.op >= opAtan2 }

var zeroNode = &node{op: opConst}

// Expr is a scalar expression. The zero value is the constant 0.
type Expr struct{ n *node }

func (e Expr) get() *node {
	if e.n == nil {
		return zeroNode
	}
	return e.n
}

// Const returns a constant expression.
func Const(v float64) Expr {
	if v == 0 {
		return Expr{zeroNode}
	}
	return Expr{&node{op: opConst, value: v}}
}

// Symbol returns a fresh free symbol. Two calls with the same name return
// distinct symbols.
func Symbol(name string) Expr {
	return Expr{&node{op: opSymbol, name: name}}
}

// IsConst reports whether e is a constant.
func (e Expr) IsConst() bool { return e.get().op == opConst }

// IsSymbol reports whether e is a free symbol.
func (e Expr) IsSymbol() bool { return e.get().op == opSymbol }

// Value returns the value of a constant expression and NaN otherwise.
func (e Expr) Value() float64 {
	if n := e.get(); n.op == opConst {
		return n.value
	}
	return math.NaN()
}

// Name returns the symbol name, or the empty string for non-symbols.
func (e Expr) Name() string { return e.get().name }

// Same reports whether e and o are the very same node.
func (e Expr) Same(o Expr) bool { return e.get() == o.get() }

func (e Expr) isValue(v float64) bool {
	n := e.get()
	return n.op == opConst && n.value == v
}

// String renders e in infix form. Shared sub-expressions are expanded.
func (e Expr) String() string { return e.get().format() }

func (n *node) format() string {
	switch {
	case n.op == opConst:
		return strconv.FormatFloat(n.value, 'g', -1, 64)
	case n.op == opSymbol:
		return n.name
	case n.op == opNeg:
		return "(-" + n.a.format() + ")"
	case n.unary():
		return opNames[n.op] + "(" + n.a.format() + ")"
	case n.op == opAtan2 || n.op == opPow:
		return opNames[n.op] + "(" + n.a.format() + ", " + n.b.format() + ")"
	default:
		return "(" + n.a.format() + opNames[n.op] + n.b.format() + ")"
	}
}

func newUnary(op opcode, a Expr) Expr {
	return Expr{&node{op: op, a: a.get()}}
}

func newBinary(op opcode, a, b Expr) Expr {
	return Expr{&node{op: op, a: a.get(), b: b.get()}}
}

// Add returns a+b.
func Add(a, b Expr) Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.Value() + b.Value())
	case a.isValue(0):
		return b
	case b.isValue(0):
		return a
	}
	return newBinary(opAdd, a, b)
}

// Sub returns a-b.
func Sub(a, b Expr) Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.Value() - b.Value())
	case b.isValue(0):
		return a
	case a.isValue(0):
		return Neg(b)
	case a.Same(b):
		return Const(0)
	}
	return newBinary(opSub, a, b)
}

// Mul returns a*b. A constant zero operand annihilates the product.
func Mul(a, b Expr) Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.Value() * b.Value())
	case a.isValue(0) || b.isValue(0):
		return Const(0)
	case a.isValue(1):
		return b
	case b.isValue(1):
		return a
	case a.isValue(-1):
		return Neg(b)
	case b.isValue(-1):
		return Neg(a)
	}
	return newBinary(opMul, a, b)
}

// Div returns a/b.
func Div(a, b Expr) Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(a.Value() / b.Value())
	case a.isValue(0):
		return Const(0)
	case b.isValue(1):
		return a
	case b.isValue(-1):
		return Neg(a)
	}
	return newBinary(opDiv, a, b)
}

// Neg returns -a.
func Neg(a Expr) Expr {
	n := a.get()
	switch n.op {
	case opConst:
		return Const(-n.value)
	case opNeg:
		return Expr{n.a}
	}
	return newUnary(opNeg, a)
}

// Scale returns c*a for a numeric constant c.
func Scale(c float64, a Expr) Expr { return Mul(Const(c), a) }

// Sq returns a².
func Sq(a Expr) Expr {
	if a.IsConst() {
		v := a.Value()
		return Const(v * v)
	}
	return newUnary(opSq, a)
}

// Sqrt returns √a.
func Sqrt(a Expr) Expr {
	if a.IsConst() {
		return Const(math.Sqrt(a.Value()))
	}
	return newUnary(opSqrt, a)
}

// Exp returns eᵃ.
func Exp(a Expr) Expr {
	if a.IsConst() {
		return Const(math.Exp(a.Value()))
	}
	return newUnary(opExp, a)
}

// Log returns ln a.
func Log(a Expr) Expr {
	if a.IsConst() {
		return Const(math.Log(a.Value()))
	}
	return newUnary(opLog, a)
}

// Sin returns sin a.
func Sin(a Expr) Expr {
	if a.IsConst() {
		return Const(math.Sin(a.Value()))
	}
	return newUnary(opSin, a)
}

// Cos returns cos a.
func Cos(a Expr) Expr {
	if a.IsConst() {
		return Const(math.Cos(a.Value()))
	}
	return newUnary(opCos, a)
}

// Tanh returns tanh a.
func Tanh(a Expr) Expr {
	if a.IsConst() {
		return Const(math.Tanh(a.Value()))
	}
	return newUnary(opTanh, a)
}

// Atan2 returns atan2(y, x).
func Atan2(y, x Expr) Expr {
	if y.IsConst() && x.IsConst() {
		return Const(math.Atan2(y.Value(), x.Value()))
	}
	return newBinary(opAtan2, y, x)
}

// Pow returns aᵇ.
func Pow(a, b Expr) Expr {
	switch {
	case a.IsConst() && b.IsConst():
		return Const(math.Pow(a.Value(), b.Value()))
	case b.isValue(0):
		return Const(1)
	case b.isValue(1):
		return a
	case b.isValue(2):
		return Sq(a)
	case b.isValue(0.5):
		return Sqrt(a)
	}
	return newBinary(opPow, a, b)
}

// rebuild applies op to already substituted operands through the simplifying
// constructors.
func rebuild(op opcode, a, b Expr) Expr {
	switch op {
	case opAdd:
		return Add(a, b)
	case opSub:
		return Sub(a, b)
	case opMul:
		return Mul(a, b)
	case opDiv:
		return Div(a, b)
	case opNeg:
		return Neg(a)
	case opSq:
		return Sq(a)
	case opSqrt:
		return Sqrt(a)
	case opExp:
		return Exp(a)
	case opLog:
		return Log(a)
	case opSin:
		return Sin(a)
	case opCos:
		return Cos(a)
	case opTanh:
		return Tanh(a)
	case opAtan2:
		return Atan2(a, b)
	case opPow:
		return Pow(a, b)
	}
	panic("sym: unknown opcode")
}

// apply evaluates op numerically.
func apply(op opcode, a, b float64) float64 {
	switch op {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	case opDiv:
		return a / b
	case opNeg:
		return -a
	case opSq:
		return a * a
	case opSqrt:
		return math.Sqrt(a)
	case opExp:
		return math.Exp(a)
	case opLog:
		return math.Log(a)
	case opSin:
		return math.Sin(a)
	case opCos:
		return math.Cos(a)
	case opTanh:
		return math.Tanh(a)
	case opAtan2:
		return math.Atan2(a, b)
	case opPow:
		return math.Pow(a, b)
	}
	panic("sym: unknown opcode")
}

// partials returns ∂v/∂a and ∂v/∂b where v = op(a, b).
func partials(op opcode, a, b, v float64) (da, db float64) {
	switch op {
	case opAdd:
		return 1, 1
	case opSub:
		return 1, -1
	case opMul:
		return b, a
	case opDiv:
		return 1 / b, -v / b
	case opNeg:
		return -1, 0
	case opSq:
		return 2 * a, 0
	case opSqrt:
		return 0.5 / v, 0
	case opExp:
		return v, 0
	case opLog:
		return 1 / a, 0
	case opSin:
		return math.Cos(a), 0
	case opCos:
		return -math.Sin(a), 0
	case opTanh:
		return 1 - v*v, 0
	case opAtan2:
		r := a*a + b*b
		return b / r, -a / r
	case opPow:
		da = b * math.Pow(a, b-1)
		if a > 0 {
			db = v * math.Log(a)
		}
		return da, db
	}
	panic("sym: unknown opcode")
}
