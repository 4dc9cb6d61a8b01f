// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collocation

import "fmt"

// Range is a half-open index interval [Start, End) into a vector owned by
// the assembler.
type Range struct {
	Start, End int
}

// Len returns End - Start.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether the range holds no element.
func (r Range) Empty() bool { return r.End <= r.Start }

// Contains reports whether i lies in the range.
func (r Range) Contains(i int) bool { return r.Start <= i && i < r.End }

// Slice returns v[Start:End]. It panics if v is shorter than End.
func (r Range) Slice(v []float64) []float64 { return v[r.Start:r.End:r.End] }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }
