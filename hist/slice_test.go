// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hist_test

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/evtest"
	"github.com/grailbio/evslice/hist"
	"github.com/grailbio/evslice/typecheck"
)

func testValues(n int) []float64 {
	r := rand.New(rand.NewSource(0))
	xs := make([]float64, n)
	for i := range xs {
		// Spread values on both sides of the axis range so that the
		// underflow and overflow paths are exercised.
		xs[i] = r.Float64()*260 - 30
	}
	return xs
}

func refHist(t *testing.T, xs []float64) (hist.Axis, *hist.Hist) {
	t.Helper()
	axis, err := hist.NewAxis(100, 0, 200, "$E_T^{miss}$ [GeV]")
	if err != nil {
		t.Fatal(err)
	}
	h := hist.New(axis)
	for _, x := range xs {
		h.Fill(x)
	}
	return axis, h
}

// assertHistEqual compares histograms component-wise. Sums are
// compared with a tolerance since shard-wise accumulation does not
// add values in the same order as the sequential reference.
func assertHistEqual(t *testing.T, got, want *hist.Hist) {
	t.Helper()
	if got.Axis != want.Axis {
		t.Errorf("got axis %+v, want %+v", got.Axis, want.Axis)
	}
	if !reflect.DeepEqual(got.Counts, want.Counts) {
		t.Errorf("got counts %v, want %v", got.Counts, want.Counts)
	}
	if got.Under != want.Under || got.Over != want.Over || got.Entries != want.Entries {
		t.Errorf("got under=%d over=%d entries=%d, want under=%d over=%d entries=%d",
			got.Under, got.Over, got.Entries, want.Under, want.Over, want.Entries)
	}
	if math.Abs(got.Sum-want.Sum) > 1e-6 {
		t.Errorf("got sum %v, want %v", got.Sum, want.Sum)
	}
}

func TestMerged(t *testing.T) {
	const N = 10000
	xs := testValues(N)
	axis, want := refHist(t, xs)
	for _, nshard := range []int{1, 4, 13} {
		scan := evtest.Run(t, hist.Merged(evslice.Const(nshard, xs), axis))
		got, err := hist.CollectMerged(context.Background(), scan, axis)
		if err != nil {
			t.Fatal(err)
		}
		assertHistEqual(t, got, want)
	}
}

func TestFillSlice(t *testing.T) {
	const N = 10000
	xs := testValues(N)
	axis, want := refHist(t, xs)
	for _, nshard := range []int{1, 4, 13} {
		slice := hist.Fill(evslice.Const(nshard, xs), axis)
		// One partial histogram per shard, merged at collection.
		var (
			keys  []int
			hists []*hist.Hist
		)
		evtest.RunAndScan(t, slice, &keys, &hists)
		if got, want := len(hists), nshard; got != want {
			t.Fatalf("nshard=%d: got %v partials, want %v", nshard, got, want)
		}
		scan := evtest.Run(t, slice)
		got, err := hist.CollectMerged(context.Background(), scan, axis)
		if err != nil {
			t.Fatal(err)
		}
		assertHistEqual(t, got, want)
	}
}

func TestFillTypeError(t *testing.T) {
	defer func() {
		e := recover()
		if e == nil {
			t.Fatal("expected error")
		}
		err, ok := e.(*typecheck.Error)
		if !ok {
			t.Fatalf("expected typeError, got %T", e)
		}
		if got, want := err.Err.Error(), "fill: slice column 0 is int, not float64"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}()
	axis, err := hist.NewAxis(10, 0, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	hist.Fill(evslice.Const(1, []int{1, 2, 3}), axis)
}

func TestCollect(t *testing.T) {
	xs := testValues(1000)
	axis, want := refHist(t, xs)
	scan := evtest.Run(t, evslice.Const(5, xs))
	got, err := hist.Collect(context.Background(), scan, axis)
	if err != nil {
		t.Fatal(err)
	}
	assertHistEqual(t, got, want)
}
