// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows || no_cgo || !cgo

package nlp

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNoNLopt is returned by NLopt on builds without cgo.
var ErrNoNLopt = errors.New("nlopt is not supported on this build")

// NLopt mimics the cgo backend.
type NLopt struct{}

var _ Solver = (*NLopt)(nil)

// NewNLopt is not supported on no_cgo builds.
func NewNLopt(opts map[string]any, options ...Option) (*NLopt, error) {
	return nil, ErrNoNLopt
}

// Solve refuses to solve problems without cgo.
func (s *NLopt) Solve(ctx context.Context, p *Problem) (*Solution, error) {
	return nil, ErrNoNLopt
}
