// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package hist implements one-dimensional histograms of event
// quantities, together with evslice operators for filling them from
// sharded data. Histograms are mergeable, so that partial histograms
// filled by different workers can be combined into a single result.
package hist

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// An Axis describes a histogram's binning: a number of uniform bins
// over the half-open interval [Lo, Hi). The Label is attached to the
// axis when the histogram is rendered.
type Axis struct {
	Bins   int
	Lo, Hi float64
	Label  string
}

// NewAxis returns an axis with the given number of uniform bins over
// [lo, hi). NewAxis returns an error with kind errors.Invalid if the
// binning is degenerate.
func NewAxis(bins int, lo, hi float64, label string) (Axis, error) {
	if bins <= 0 {
		return Axis{}, errors.E(errors.Invalid, fmt.Sprintf("axis: bins must be positive, got %d", bins))
	}
	if !(lo < hi) {
		return Axis{}, errors.E(errors.Invalid, fmt.Sprintf("axis: invalid range [%g, %g)", lo, hi))
	}
	return Axis{Bins: bins, Lo: lo, Hi: hi, Label: label}, nil
}

// Bin returns the bin index for the value x. Values below the axis
// range return -1; values at or above the upper edge return
// a.Bins. The upper edge itself is excluded from the last bin.
func (a Axis) Bin(x float64) int {
	if x < a.Lo {
		return -1
	}
	if x >= a.Hi {
		return a.Bins
	}
	b := int(float64(a.Bins) * (x - a.Lo) / (a.Hi - a.Lo))
	// Guard against floating point roundup at the upper edge.
	if b == a.Bins {
		b--
	}
	return b
}

// Edge returns the lower edge of bin i. Edge(a.Bins) is the axis's
// upper edge.
func (a Axis) Edge(i int) float64 {
	return a.Lo + (a.Hi-a.Lo)*float64(i)/float64(a.Bins)
}

// A Hist is a one-dimensional histogram. Out-of-range entries are
// accumulated in the underflow and overflow counts. All fields are
// exported so that histograms can be moved between processes by gob.
type Hist struct {
	Axis   Axis
	Counts []int64
	Under  int64
	Over   int64
	// Entries is the total number of fills, including out-of-range
	// entries.
	Entries int64
	// Sum is the sum of all filled values; it is maintained so that
	// means can be reported without a second pass.
	Sum float64
}

// New returns a fresh, empty histogram over the provided axis.
func New(axis Axis) *Hist {
	return &Hist{
		Axis:   axis,
		Counts: make([]int64, axis.Bins),
	}
}

// Fill enters the value x into the histogram.
func (h *Hist) Fill(x float64) {
	h.Entries++
	h.Sum += x
	switch b := h.Axis.Bin(x); {
	case b < 0:
		h.Under++
	case b >= h.Axis.Bins:
		h.Over++
	default:
		h.Counts[b]++
	}
}

// Total returns the number of in-range entries.
func (h *Hist) Total() int64 {
	return h.Entries - h.Under - h.Over
}

// Mean returns the mean of all filled values. It returns 0 for an
// empty histogram.
func (h *Hist) Mean() float64 {
	if h.Entries == 0 {
		return 0
	}
	return h.Sum / float64(h.Entries)
}

// Merge adds the contents of the histogram g into h. The histograms
// must share an axis; otherwise an error with kind errors.Invalid is
// returned.
func (h *Hist) Merge(g *Hist) error {
	if h.Axis != g.Axis {
		return errors.E(errors.Invalid, fmt.Sprintf("merge: axis mismatch: %+v != %+v", h.Axis, g.Axis))
	}
	for i, c := range g.Counts {
		h.Counts[i] += c
	}
	h.Under += g.Under
	h.Over += g.Over
	h.Entries += g.Entries
	h.Sum += g.Sum
	return nil
}

// String returns a short summary of the histogram.
func (h *Hist) String() string {
	return fmt.Sprintf("hist[%d bins, [%g, %g)] entries=%d under=%d over=%d mean=%.4g",
		h.Axis.Bins, h.Axis.Lo, h.Axis.Hi, h.Entries, h.Under, h.Over, h.Mean())
}
