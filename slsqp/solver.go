// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package slsqp

import (
	"math"

	"gonum.org/v1/gonum/blas/blas64"
)

// sqpSolver is Kraft's SLSQP driver. Every iteration linearizes the rows at
// xᵏ and solves the QP
//
//	min ½dᵀBd + ∇f(xᵏ)ᵀd  s.t.  ∇cⱼ(xᵏ)ᵀd + cⱼ(xᵏ) = 0 (j < meq), ≥ 0 otherwise
//
// as a least squares problem through the LDLᵀ factor of the BFGS estimate B
// (see LSQ). When the linearization is inconsistent an extra variable δ ∈ [0, 1]
// relaxes the rows by δ·c(xᵏ) and is penalized by ρδ², raising ρ tenfold until
// the relaxed problem solves.
//
// The step length comes from the L1 merit function f(x) + Σ μⱼ|cⱼ(x)|, with
// violations of inequality rows measured as max(0, -cⱼ) and μⱼ tracking the
// multiplier magnitudes. B is updated with Powell's damped BFGS formula.
//
// Dieter Kraft, "A software package for sequential quadratic programming",
// DFVLR-FB 88-28, 1988.
type sqpSolver struct {
	optimizer *Optimizer
	workspace *Workspace
	location  *sqpLoc
}

// violation is the L1 infeasibility of row j.
func violation(j, meq int, c float64) float64 {
	if j < meq {
		return math.Abs(c)
	}
	return math.Max(-c, zero)
}

func (ss *sqpSolver) evalLoc(mode sqpMode) (res sqpMode) {
	o, loc := ss.optimizer, ss.location
	defer func() {
		if r := recover(); r != nil {
			res = BadArgument
		}
	}()
	blocks := append(o.Equalities[:len(o.Equalities):len(o.Equalities)], o.Inequalities...)
	switch mode {
	case evalFunc:
		loc.f = o.Objective.Function(loc.x)
		row := 0
		for _, b := range blocks {
			b.Function(loc.x, loc.c[row:row+b.Size])
			row += b.Size
		}
	case evalGrad:
		lda := max(o.m, 1)
		row := 0
		for _, b := range blocks {
			b.Derivative(loc.x, loc.a[row:], lda)
			row += b.Size
		}
		o.Objective.Derivative(loc.x, loc.g[:o.n])
	default:
		return BadArgument
	}
	return OK
}

func (ss *sqpSolver) initCtx() (mode sqpMode) {
	if mode = ss.evalLoc(evalFunc); mode != OK {
		return
	}
	if mode = ss.evalLoc(evalGrad); mode != OK {
		return
	}
	s, c := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx
	c.acc = s.Stop.Accuracy
	c.tol = ten * c.acc
	c.iter, c.reset = 0, 0
	clear(c.s)
	clear(c.mu)
	return ss.resetBFGS()
}

// resetBFGS restarts B from the identity. After five restarts in one solve
// the relaxed tolerance decides between convergence and SearchNotDescent.
func (ss *sqpSolver) resetBFGS() (mode sqpMode) {
	spec, ctx := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx
	ctx.reset++
	if ctx.reset > 5 {
		_, mode = ss.checkConv(ctx.tol, SearchNotDescent)
		return
	}
	n := spec.n
	clear(ctx.l[:(n+1)*n/2])
	for i, j := 0, 0; i < n; i++ {
		ctx.l[j] = one
		j += n - i
	}
	return OK
}

// checkConv sums the infeasibility at the current iterate and reports OK when
// checkStop accepts it.
func (ss *sqpSolver) checkConv(tol float64, notConv sqpMode) (vio float64, mode sqpMode) {
	meq := ss.optimizer.meq
	for j, c := range ss.location.c {
		vio += violation(j, meq, c)
	}
	if !ss.checkStop(vio, tol) {
		mode = notConv
	}
	return
}

func (ss *sqpSolver) checkStop(vio, tol float64) bool {
	spec, ctx, loc := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx, ss.location
	if vio >= tol || ctx.bad || math.IsNaN(loc.f) {
		return false
	}
	stop, n := spec.Stop, spec.n
	df := math.Abs(loc.f - ctx.f0)
	switch {
	case df < tol, blas64.Nrm2(vec(n, ctx.s, 1)) < tol:
		return true
	case stop.FEvalTolerance >= zero && math.Abs(loc.f) < stop.FEvalTolerance:
		return true
	case stop.FDiffTolerance >= zero && df < stop.FDiffTolerance:
		return true
	case stop.XDiffTolerance >= zero:
		dx := ctx.u
		blas64.Copy(vec(n, loc.x, 1), vec(n, dx, 1))
		blas64.Axpy(-1, vec(n, ctx.x0, 1), vec(n, dx, 1))
		return blas64.Nrm2(vec(n, dx, 1)) < stop.XDiffTolerance
	}
	return false
}

// packedMul sets v = LDLᵀs for the packed factor l.
func packedMul(n int, l, s, v []float64) {
	for i, k := 0, 0; i < n; i++ {
		k++
		sum := zero
		for _, sj := range s[i+1 : n] {
			sum += l[k] * sj
			k++
		}
		v[i] = s[i] + sum
	}
	for i, k := 0, 0; i < n; i++ {
		v[i] *= l[k]
		k += n - i
	}
	for i := n - 1; i >= 0; i-- {
		k, sum := i, zero
		for j, vj := range v[:i] {
			sum += l[k] * vj
			k += n - 1 - j
		}
		v[i] += sum
	}
}

// updateBFGS evaluates the derivatives at the new iterate and applies the
// damped update to the factor. On entry v holds the Lagrangian gradient at the
// previous iterate and s the step.
func (ss *sqpSolver) updateBFGS() (mode sqpMode) {
	if mode = ss.evalLoc(evalGrad); mode != OK {
		return
	}
	spec, ctx, loc := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx, ss.location
	m, n, la := spec.m, spec.n, max(spec.m, 1)
	u, r, v, l, s := ctx.u, ctx.r, ctx.v, ctx.l, ctx.s
	if n > len(v) || n > len(u) {
		panic("bound check error")
	}

	// u = change of the Lagrangian gradient, v = Bs
	for i, g := range loc.g[:n] {
		u[i] = g - blas64.Dot(vec(m, loc.a[i*la:(i+1)*la], 1), vec(m, r, 1)) - v[i]
	}
	packedMul(n, l, s, v)

	sy := blas64.Dot(vec(n, s, 1), vec(n, u, 1))
	sBs := blas64.Dot(vec(n, s, 1), vec(n, v, 1))
	if floor := 0.2 * sBs; sy < floor {
		// Powell damping: u = θu + (1-θ)Bs keeps the update positive definite
		theta := (sBs - floor) / (sBs - sy)
		sy = floor
		blas64.Scal(theta, vec(n, u, 1))
		blas64.Axpy(one-theta, vec(n, v, 1), vec(n, u, 1))
	}

	if sy == zero || sBs == zero {
		return ss.resetBFGS()
	}
	compositeT(uint(n), l, u, +one/sy, nil)
	compositeT(uint(n), l, v, -one/sBs, u)
	return OK
}

// mainLoop runs SQP iterations until convergence, failure or the limit.
func (ss *sqpSolver) mainLoop() (mode sqpMode) {
	loc, ctx, spec := ss.location, &ss.workspace.sqpCtx, &ss.optimizer.sqpSpec
	m, meq, n, la := spec.m, spec.meq, spec.n, max(spec.m, 1)
	n1, nl := n+1, n*(n+1)/2
	u, r, v, l, s := ctx.u, ctx.r, ctx.v, ctx.l, ctx.s
	nnls, inf := spec.Stop.NNLSIterations, spec.BndInf

	for mode = ss.initCtx(); mode == OK; {
		if ctx.iter++; ctx.iter > spec.Stop.MaxIterations {
			ctx.iter--
			return SQPExceedMaxIter
		}

		// bounds on the step d
		for i, b := range spec.Bounds {
			u[i] = b.Lower - loc.x[i]
			v[i] = b.Upper - loc.x[i]
		}
		_, mode = LSQ(m, meq, n, nl+1, l, loc.g, loc.a, loc.c, u, v, s, r, ctx.w, ctx.jw, nnls, inf)
		if mode == LSEISingularC && n == meq {
			mode = ConsIncompatible
		}

		// scale of the merit slope still owed to the constraints, 1-δ
		owed := one
		if ctx.bad = mode == ConsIncompatible; ctx.bad {
			col := loc.a[n*la : n1*la]
			for j, c := range loc.c[:m] {
				if j < meq {
					col[j] = -c
				} else {
					col[j] = math.Max(-c, zero)
				}
			}
			loc.g[n] = zero
			l[nl] = hun
			clear(s[:n])
			s[n] = one
			u[n], v[n] = zero, one
			for range 6 {
				_, mode = LSQ(m, meq, n1, nl+1, l, loc.g, loc.a, loc.c, u, v, s, r, ctx.w, ctx.jw, nnls, inf)
				owed = one - s[n]
				if mode != ConsIncompatible {
					break
				}
				l[nl] *= ten
			}
		}
		if mode != HasSolution {
			return
		}

		// v keeps the Lagrangian gradient for the BFGS update
		for i, g := range loc.g[:n] {
			v[i] = g - blas64.Dot(vec(m, loc.a[i*la:(i+1)*la], 1), vec(m, r, 1))
		}
		ctx.f0 = loc.f
		copy(ctx.x0, loc.x)

		gd := blas64.Dot(vec(n, loc.g, 1), vec(n, s, 1))
		opt, vio := math.Abs(gd), zero
		for j, c := range loc.c[:m] {
			vio += violation(j, meq, c)
			lam := math.Abs(r[j])
			opt += lam * math.Abs(c)
			ctx.mu[j] = math.Max(lam, (ctx.mu[j]+lam)/2)
		}
		if opt < ctx.acc && vio < ctx.acc && !ctx.bad && !math.IsNaN(loc.f) {
			return OK
		}

		penalty := zero
		for j, c := range loc.c[:m] {
			penalty += ctx.mu[j] * violation(j, meq, c)
		}
		ctx.t0 = loc.f + penalty

		slope := gd - penalty*owed
		if slope >= zero {
			if mode = ss.resetBFGS(); ctx.reset > 5 {
				return
			}
			continue
		}

		if spec.Line.Exact {
			ctx.line = int(findNoop)
			ss.exactSearch(math.NaN())
		} else {
			ctx.line = 0
			ctx.alpha = spec.Line.Alpha.Upper
			ss.inexactSearch()
			slope *= ctx.alpha
		}
		for mode = evalFunc; mode == evalFunc; {
			mode = ss.lineSearch(&slope)
		}
		if mode == OK {
			return
		}
		if mode == evalGrad {
			mode = ss.updateBFGS()
		}
		if mode == OK && spec.Callback != nil && spec.Callback(ctx.iter, loc.x, loc.f) {
			return Interrupted
		}
	}
	return
}

// clamp projects x into the finite bounds.
func clamp(x []float64, bounds []Bound, inf float64) {
	for i, b := range bounds[:len(x)] {
		if !math.IsNaN(b.Lower) && b.Lower > -inf && x[i] < b.Lower {
			x[i] = b.Lower
		} else if !math.IsNaN(b.Upper) && b.Upper < inf && x[i] > b.Upper {
			x[i] = b.Upper
		}
	}
}

// inexactSearch moves to x0 + αd and turns s into that step.
func (ss *sqpSolver) inexactSearch() {
	s, c, x := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx, ss.location.x
	c.line++
	blas64.Scal(c.alpha, vec(s.n, c.s, 1))
	blas64.Copy(vec(s.n, c.x0, 1), vec(s.n, x, 1))
	blas64.Axpy(one, vec(s.n, c.s, 1), vec(s.n, x, 1))
	clamp(x, s.Bounds, s.BndInf)
}

// exactSearch advances the reverse-communication minimizer with the merit
// value t of the last trial point.
func (ss *sqpSolver) exactSearch(t float64) (mode findMode) {
	s, c, x := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx, ss.location.x
	if mode = findMode(c.line); mode == findConv {
		blas64.Scal(c.alpha, vec(s.n, c.s, 1))
		return
	}
	c.alpha, mode = findMin(mode, &c.fw, t, c.tol, *s.Line.Alpha)
	c.line = int(mode)
	blas64.Copy(vec(s.n, c.x0, 1), vec(s.n, x, 1))
	blas64.Axpy(c.alpha, vec(s.n, c.s, 1), vec(s.n, x, 1))
	return
}

// lineSearch evaluates the trial point. It returns evalFunc for another
// trial, evalGrad when the step is accepted, and a final status otherwise.
func (ss *sqpSolver) lineSearch(slope *float64) (mode sqpMode) {
	if mode = ss.evalLoc(evalFunc); mode != OK {
		return
	}
	spec, ctx, loc := &ss.optimizer.sqpSpec, &ss.workspace.sqpCtx, ss.location

	t := loc.f
	for j, c := range loc.c[:spec.m] {
		t += ctx.mu[j] * violation(j, spec.meq, c)
	}

	line := spec.Line
	if line.Exact {
		if ss.exactSearch(t) == findConv {
			*slope, mode = ss.checkConv(ctx.acc, evalGrad)
		} else {
			mode = evalFunc
		}
		return
	}
	if dt := t - ctx.t0; dt <= *slope/10 || ctx.line > 10 {
		*slope, mode = ss.checkConv(ctx.acc, evalGrad)
	} else {
		// minimizer of the quadratic through the slope and the trial value
		ctx.alpha = math.Min(math.Max(*slope/(2*(*slope-dt)), line.Alpha.Lower), line.Alpha.Upper)
		ss.inexactSearch()
		*slope *= ctx.alpha
		mode = evalFunc
	}
	return
}

// LSQ solves the SQP subproblem
//
//	min ‖D^½Lᵀx + D^-½L⁻¹g‖₂  s.t.  Aⱼx - bⱼ = 0 (j < meq), Aⱼx - bⱼ ≥ 0 (j ≥ meq), xl ≤ x ≤ xu
//
// by handing it to LSEI with E = D^½Lᵀ and f = -D^-½L⁻¹g, and the finite
// bounds appended to the inequalities as ±I rows. l holds the packed LDLᵀ
// factor; nl = n(n+1)/2+1 marks the plain problem, otherwise the last
// variable is the relaxation δ weighted by l[nl-1]. A is column-major with
// leading dimension max(1, m). On success y holds the m row multipliers and
// the bound entries after them are NaN.
func LSQ(m, meq, n, nl int,
	l, g, a, b, xl, xu []float64,
	x, y []float64,
	w []float64, jw []int,
	maxIter int, infBnd float64) (float64, sqpMode) {

	mineq := m - meq
	m1 := mineq + n + n
	la := max(m, 1)

	// relax is 1 for the augmented problem, which has one unfactored column
	relax, nf := 0, n
	if (n+1)*n/2+1 != nl {
		relax, nf = 1, n-1
	}

	e0, f0 := 0, n*n
	c0, d0 := f0+n, f0+n+meq*n
	g0, h0 := d0+meq, d0+meq+m1*n
	w0 := h0 + m1

	// rows of E from the packed columns of L, f by forward substitution
	ip, ie, ir := 0, 0, 0
	for j := range nf {
		k := n - j
		diag := math.Sqrt(l[ip])
		clear(w[ie : ie+k])
		blas64.Copy(vec(k-relax, l[ip:], 1), vec(k-relax, w[ie:], n))
		blas64.Scal(diag, vec(k-relax, w[ie:], n))
		w[ie] = diag
		w[f0+j] = (g[j] - blas64.Dot(vec(j, w[ir:], 1), vec(j, w[f0:], 1))) / diag
		ip += k - relax
		ie += n + 1
		ir += n
	}
	if relax == 1 {
		w[ie] = l[nl-1]
		clear(w[ir : ir+nf])
		w[f0+nf] = zero
	}
	blas64.Scal(-one, vec(n, w[f0:f0+n], 1))

	for i := range meq {
		blas64.Copy(vec(n, a[i:], la), vec(n, w[c0+i:], meq))
	}
	blas64.Copy(vec(meq, b, 1), vec(meq, w[d0:], 1))
	blas64.Scal(-one, vec(meq, w[d0:], 1))

	for i := range mineq {
		blas64.Copy(vec(n, a[meq+i:], la), vec(n, w[g0+i:], m1))
	}
	blas64.Copy(vec(mineq, b[meq:], 1), vec(mineq, w[h0:], 1))
	blas64.Scal(-one, vec(mineq, w[h0:], 1))

	// finite bounds as rows x ≥ l and -x ≥ -u
	mg := mineq
	bound := func(i int, sign, v float64) {
		w[h0+mg] = sign * v
		fill(n, zero, w[g0+mg:], m1)
		w[g0+mg+m1*i] = sign
		mg++
	}
	xl, xu = xl[:n], xu[:n]
	for i, v := range xl {
		if !math.IsNaN(v) && v > -infBnd {
			bound(i, one, v)
		}
	}
	for i, v := range xu {
		if !math.IsNaN(v) && v < infBnd {
			bound(i, -one, v)
		}
	}

	norm, mode := LSEI(w[c0:d0], w[d0:g0], w[e0:f0], w[f0:c0], w[g0:h0], w[h0:w0],
		max(1, meq), meq, n, n, m1, mg, n, x, w[w0:], jw, maxIter)
	if mode != HasSolution {
		return norm, mode
	}
	blas64.Copy(vec(m, w[w0:], 1), vec(m, y, 1))
	if nf > 0 {
		fill(2*nf, math.NaN(), y[m:], 1)
	}
	for i := range x[:n] {
		if v := xl[i]; !math.IsNaN(v) && v > -infBnd && x[i] < v {
			x[i] = v
		}
		if v := xu[i]; !math.IsNaN(v) && v < infBnd && x[i] > v {
			x[i] = v
		}
	}
	return norm, mode
}
