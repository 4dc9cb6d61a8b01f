// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collocation

import "github.com/pkg/errors"

// States describes the dimensions of a state model: NX for the state itself,
// NDX for its tangent (deviation) space and NU for the control.
type States struct {
	NX  int `json:"nx" yaml:"nx"`
	NDX int `json:"ndx" yaml:"ndx"`
	NU  int `json:"nu" yaml:"nu"`
}

// Validate checks that every dimension is positive.
func (s States) Validate() error {
	if s.NX <= 0 || s.NDX <= 0 || s.NU <= 0 {
		return errors.Wrapf(ErrDimension, "state dimensions (nx=%d, ndx=%d, nu=%d) must be positive", s.NX, s.NDX, s.NU)
	}
	return nil
}
