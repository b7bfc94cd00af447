// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package evslice_test

import (
	"fmt"
	"testing"

	"github.com/grailbio/evslice"
)

func TestFold(t *testing.T) {
	const N = 1000
	keys := make([]string, N)
	values := make([]int, N)
	want := map[string]int{}
	for i := range keys {
		keys[i] = fmt.Sprint(i % 17)
		values[i] = i
		want[keys[i]] += i
	}
	var (
		wantKeys []string
		wantSums []int
	)
	for i := 0; i < 17; i++ {
		key := fmt.Sprint(i)
		wantKeys = append(wantKeys, key)
		wantSums = append(wantSums, want[key])
	}
	for _, nshard := range []int{1, 5, 16} {
		slice := evslice.Const(nshard, keys, values)
		slice = evslice.Fold(slice, func(acc, v int) int { return acc + v })
		assertEqual(t, slice, true, wantKeys, wantSums)
	}
}

func TestFoldPointerAccumulator(t *testing.T) {
	type counter struct{ N int }
	const N = 100
	keys := make([]int, N)
	values := make([]int, N)
	for i := range keys {
		keys[i] = i % 3
		values[i] = 1
	}
	slice := evslice.Const(4, keys, values)
	slice = evslice.Fold(slice, func(acc *counter, v int) *counter {
		if acc == nil {
			acc = new(counter)
		}
		acc.N += v
		return acc
	})
	// The accumulator type is a pointer, so assert on the derived
	// counts rather than the pointers themselves.
	counts := evslice.Map(slice, func(key int, acc *counter) (int, int) {
		return key, acc.N
	})
	wantKeys := []int{0, 1, 2}
	wantCounts := []int{34, 33, 33}
	assertEqual(t, counts, true, wantKeys, wantCounts)
}

func TestFoldError(t *testing.T) {
	unkeyed := evslice.Const(1, []int{1, 2, 3})
	expectTypeError(t, "fold: can be applied only for slices with at least two columns; got 1",
		func() { evslice.Fold(unkeyed, func(acc, v int) int { return acc + v }) })

	keyed := evslice.Const(1, []int{1}, []int{2})
	expectTypeError(t, "fold: invalid fold function int", func() { evslice.Fold(keyed, 123) })
	expectTypeError(t, "fold: fold functions must return exactly one value",
		func() { evslice.Fold(keyed, func(acc, v int) (int, int) { return 0, 0 }) })
	expectTypeError(t, "fold: expected func(acc, t2, t3, ..., tn), got func(string, string) string",
		func() { evslice.Fold(keyed, func(acc string, v string) string { return acc + v }) })

	unhashable := evslice.Const(1, [][]int{{1}}, []int{2})
	expectTypeError(t, "fold: key type []int is not partitionable",
		func() { evslice.Fold(unhashable, func(acc, v int) int { return acc + v }) })
}
