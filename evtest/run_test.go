// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package evtest_test

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/evtest"
)

func randString(r *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + r.Intn(26))
	}
	return string(b)
}

func TestRunAndScan(t *testing.T) {
	const N = 10000
	var (
		r    = rand.New(rand.NewSource(0))
		strs = make([]string, N)
		ints = make([]int, N)
	)
	for i := range strs {
		strs[i] = randString(r, 1+r.Intn(10))
		ints[i] = r.Int()
	}
	var (
		scannedStrs []string
		scannedInts []int
	)
	evtest.RunAndScan(t, evslice.Const(10, strs, ints), &scannedStrs, &scannedInts)
	if got, want := len(scannedStrs), N; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(scannedInts), N; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	type row struct {
		S string
		I int
	}
	sortRows := func(rows []row) {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].S == rows[j].S {
				return rows[i].I < rows[j].I
			}
			return rows[i].S < rows[j].S
		})
	}
	want := make([]row, N)
	for i := range want {
		want[i].S = strs[i]
		want[i].I = ints[i]
	}
	got := make([]row, N)
	for i := range got {
		got[i].S = scannedStrs[i]
		got[i].I = scannedInts[i]
	}
	sortRows(got)
	sortRows(want)
	if !reflect.DeepEqual(got, want) {
		t.Error("rows do not match")
	}
}
