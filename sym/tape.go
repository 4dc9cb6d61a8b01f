// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sym

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// tape is the topologically sorted instruction list of a Function.
// Slots [0, nin) hold the scalar inputs in declaration order.
type tape struct {
	nin     int
	ops     []opcode
	a, b    []int32
	consts  []float64
	outputs []int

	conesOnce sync.Once
	cones     [][]int32 // per output, reachable slots in descending order
}

func compile(in, out []Vec) (*tape, error) {
	t := &tape{}
	index := make(map[*node]int)
	for _, v := range in {
		for _, e := range v {
			index[e.get()] = t.push(opSymbol, -1, -1, 0)
		}
	}
	t.nin = len(t.ops)

	var visit func(n *node) (int, error)
	visit = func(n *node) (int, error) {
		if i, ok := index[n]; ok {
			return i, nil
		}
		ia, ib := -1, -1
		switch {
		case n.op == opSymbol:
			return 0, errors.Wrapf(ErrFreeVariable, "symbol %s", n.name)
		case n.op == opConst:
		default:
			var err error
			if ia, err = visit(n.a); err != nil {
				return 0, err
			}
			if n.binary() {
				if ib, err = visit(n.b); err != nil {
					return 0, err
				}
			}
		}
		i := t.push(n.op, ia, ib, n.value)
		index[n] = i
		return i, nil
	}

	for _, v := range out {
		for _, e := range v {
			i, err := visit(e.get())
			if err != nil {
				return nil, err
			}
			t.outputs = append(t.outputs, i)
		}
	}
	return t, nil
}

func (t *tape) push(op opcode, a, b int, c float64) int {
	t.ops = append(t.ops, op)
	t.a = append(t.a, int32(a))
	t.b = append(t.b, int32(b))
	t.consts = append(t.consts, c)
	return len(t.ops) - 1
}

func (t *tape) alloc() []float64 { return make([]float64, len(t.ops)) }

// forward fills val with every slot value and, when y is not nil, gathers the outputs.
func (t *tape) forward(x, val, y []float64) {
	copy(val[:t.nin], x)
	for i := t.nin; i < len(t.ops); i++ {
		switch op := t.ops[i]; {
		case op == opConst:
			val[i] = t.consts[i]
		case t.b[i] < 0:
			val[i] = apply(op, val[t.a[i]], 0)
		default:
			val[i] = apply(op, val[t.a[i]], val[t.b[i]])
		}
	}
	for k, i := range t.outputs {
		if y != nil {
			y[k] = val[i]
		}
	}
}

// reverse accumulates ∂y_row/∂x into grad using the slot values val.
// adj is scratch space of tape length.
func (t *tape) reverse(row int, val, adj, grad []float64) {
	cone := t.cone(row)
	for _, i := range cone {
		adj[i] = 0
	}
	adj[t.outputs[row]] = 1
	for _, i := range cone {
		w := adj[i]
		if w == 0 {
			continue
		}
		if int(i) < t.nin {
			grad[i] += w
			continue
		}
		op := t.ops[i]
		if op == opConst {
			continue
		}
		ia, ib := t.a[i], t.b[i]
		if ib < 0 {
			da, _ := partials(op, val[ia], 0, val[i])
			adj[ia] += w * da
		} else {
			da, db := partials(op, val[ia], val[ib], val[i])
			adj[ia] += w * da
			adj[ib] += w * db
		}
	}
}

func (t *tape) cone(row int) []int32 {
	t.conesOnce.Do(t.buildCones)
	return t.cones[row]
}

func (t *tape) buildCones() {
	t.cones = make([][]int32, len(t.outputs))
	stamp := make([]int, len(t.ops))
	for row, root := range t.outputs {
		mark := row + 1
		stack := []int32{int32(root)}
		stamp[root] = mark
		var cone []int32
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cone = append(cone, i)
			for _, j := range [2]int32{t.a[i], t.b[i]} {
				if j >= 0 && stamp[j] != mark {
					stamp[j] = mark
					stack = append(stack, j)
				}
			}
		}
		slices.Sort(cone)
		slices.Reverse(cone)
		t.cones[row] = cone
	}
}

func (t *tape) sparsity() [][]int {
	t.conesOnce.Do(t.buildCones)
	out := make([][]int, len(t.cones))
	for row, cone := range t.cones {
		var deps []int
		for _, i := range cone {
			if int(i) < t.nin {
				deps = append(deps, int(i))
			}
		}
		slices.Sort(deps)
		out[row] = deps
	}
	return out
}
