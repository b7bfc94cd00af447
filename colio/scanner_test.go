// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package colio

import (
	"context"
	"testing"

	"github.com/grailbio/evslice/coltype"
	"github.com/grailbio/evslice/frame"
)

func TestScanner(t *testing.T) {
	f := frame.Columns(
		[]int{1, 2, 3},
		[]string{"a", "b", "c"},
	)
	scan := &Scanner{Reader: FrameReader(f), Type: f}
	ctx := context.Background()
	var (
		ints []int
		strs []string
		x    int
		s    string
	)
	for scan.Scan(ctx, &x, &s) {
		ints = append(ints, x)
		strs = append(strs, s)
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := len(ints), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := ints[2], 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := strs[0], "a"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestScannerTypeError(t *testing.T) {
	f := frame.Columns([]int{1, 2, 3})
	ctx := context.Background()

	scan := &Scanner{Reader: FrameReader(f), Type: f}
	var s string
	if scan.Scan(ctx, &s) {
		t.Error("scan of mistyped column succeeded")
	}
	if scan.Err() == nil {
		t.Error("expected error")
	}

	scan = &Scanner{Reader: FrameReader(f), Type: f}
	var x, y int
	if scan.Scan(ctx, &x, &y) {
		t.Error("scan of wrong arity succeeded")
	}
	if scan.Err() == nil {
		t.Error("expected error")
	}
}

func TestMultiReader(t *testing.T) {
	typ := coltype.New(typeOfInt)
	r := MultiReader(
		FrameReader(frame.Columns([]int{1, 2})),
		EmptyReader(),
		FrameReader(frame.Columns([]int{3})),
	)
	out, err := ReadAll(context.Background(), r, frame.Make(typ, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !frame.Equal(out, frame.Columns([]int{1, 2, 3})) {
		t.Errorf("got %v", out)
	}
}
