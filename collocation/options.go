// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collocation

import (
	"go.uber.org/zap"

	"github.com/curioloop/trajopt/poly"
)

type options struct {
	scheme   poly.Scheme
	parallel bool
	logger   *zap.SugaredLogger

	stateLower, stateUpper     []float64
	controlLower, controlUpper []float64
}

func defaultOptions() options {
	return options{
		scheme: poly.Radau,
		logger: zap.NewNop().Sugar(),
	}
}

// Option configures a Segment.
type Option func(*options)

// WithScheme selects the collocation points. The default is poly.Radau.
func WithScheme(s poly.Scheme) Option {
	return func(o *options) { o.scheme = s }
}

// WithParallelMap builds the per-knot expression blocks concurrently.
func WithParallelMap(parallel bool) Option {
	return func(o *options) { o.parallel = parallel }
}

// WithLogger sets the logger used to report the built block sizes.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStateBounds bounds every state deviation variable. Both slices have ndx entries.
func WithStateBounds(lower, upper []float64) Option {
	return func(o *options) { o.stateLower, o.stateUpper = lower, upper }
}

// WithControlBounds bounds every control sample. Both slices have nu entries.
func WithControlBounds(lower, upper []float64) Option {
	return func(o *options) { o.controlLower, o.controlUpper = lower, upper }
}
