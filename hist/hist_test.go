// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hist

import (
	"bytes"
	"encoding/gob"
	"math"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
)

func metAxis(t *testing.T) Axis {
	t.Helper()
	axis, err := NewAxis(100, 0, 200, "$E_T^{miss}$ [GeV]")
	if err != nil {
		t.Fatal(err)
	}
	return axis
}

func TestAxisBin(t *testing.T) {
	axis := metAxis(t)
	for _, c := range []struct {
		x   float64
		bin int
	}{
		{0, 0},
		{1.999, 0},
		{2, 1},
		{100, 50},
		{199.999, 99},
		{math.Nextafter(200, 0), 99},
		{200, 100}, // the upper edge is excluded
		{250, 100},
		{-0.001, -1},
		{-100, -1},
	} {
		if got, want := axis.Bin(c.x), c.bin; got != want {
			t.Errorf("Bin(%g): got %v, want %v", c.x, got, want)
		}
	}
}

func TestAxisEdge(t *testing.T) {
	axis := metAxis(t)
	for _, c := range []struct {
		i    int
		edge float64
	}{
		{0, 0},
		{1, 2},
		{50, 100},
		{100, 200},
	} {
		if got, want := axis.Edge(c.i), c.edge; got != want {
			t.Errorf("Edge(%d): got %v, want %v", c.i, got, want)
		}
	}
}

func TestNewAxisError(t *testing.T) {
	for _, c := range []struct {
		bins   int
		lo, hi float64
	}{
		{0, 0, 200},
		{-1, 0, 200},
		{100, 200, 0},
		{100, 50, 50},
	} {
		_, err := NewAxis(c.bins, c.lo, c.hi, "")
		if err == nil {
			t.Errorf("NewAxis(%d, %g, %g): expected error", c.bins, c.lo, c.hi)
			continue
		}
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("NewAxis(%d, %g, %g): got %v, want Invalid", c.bins, c.lo, c.hi, err)
		}
	}
}

func TestFill(t *testing.T) {
	h := New(metAxis(t))
	for _, x := range []float64{-5, 0, 1, 3, 100, 199, 200, 1000} {
		h.Fill(x)
	}
	if got, want := h.Entries, int64(8); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Under, int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Over, int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Total(), int64(5); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Counts[0], int64(2); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Counts[1], int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Counts[50], int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Counts[99], int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := h.Mean(), 1498./8; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMeanEmpty(t *testing.T) {
	h := New(metAxis(t))
	if got, want := h.Mean(), 0.; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	axis := metAxis(t)
	var (
		h = New(axis)
		g = New(axis)
		u = New(axis)
	)
	for _, x := range []float64{1, 2, 3, -1} {
		h.Fill(x)
		u.Fill(x)
	}
	for _, x := range []float64{1, 150, 300} {
		g.Fill(x)
		u.Fill(x)
	}
	if err := h.Merge(g); err != nil {
		t.Fatal(err)
	}
	if got, want := h, u; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMergeaxisMismatch(t *testing.T) {
	axis := metAxis(t)
	other, err := NewAxis(50, 0, 200, axis.Label)
	if err != nil {
		t.Fatal(err)
	}
	err = New(axis).Merge(New(other))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestHistGob(t *testing.T) {
	h := New(metAxis(t))
	for _, x := range []float64{-3, 0, 17.5, 199.9, 240} {
		h.Fill(x)
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(h); err != nil {
		t.Fatal(err)
	}
	g := new(Hist)
	if err := gob.NewDecoder(&b).Decode(g); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(g, h) {
		t.Errorf("got %v, want %v", g, h)
	}
}
