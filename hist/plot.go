// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hist

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot renders the histogram as a staircase plot. The histogram's
// axis label is attached to the horizontal axis; underflow and
// overflow are not drawn.
func Plot(h *Hist) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	// Draw each bin as a horizontal segment at its count, connected
	// at the bin edges.
	xys := make(plotter.XYs, 0, 2*h.Axis.Bins)
	for i, c := range h.Counts {
		xys = append(xys,
			plotter.XY{X: h.Axis.Edge(i), Y: float64(c)},
			plotter.XY{X: h.Axis.Edge(i + 1), Y: float64(c)},
		)
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	p.Add(plotter.NewGrid(), line)
	p.X.Label.Text = h.Axis.Label
	p.Y.Label.Text = "Events"
	p.X.Min, p.X.Max = h.Axis.Lo, h.Axis.Hi
	p.Y.Min = 0
	return p, nil
}

// WritePNG renders the histogram with Plot and writes it to the
// provided path. The image format is determined by the path's
// extension, so paths ending in e.g. ".pdf" or ".svg" work as well.
func WritePNG(h *Hist, path string) error {
	p, err := Plot(h)
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
