// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bigmachine/testsystem"
	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/colio"
)

func init() {
	log.AddFlags()
}

var executors = map[string]Option{
	"Local":           Local,
	"Bigmachine.Test": Bigmachine(testsystem.New()),
}

func testSession(t *testing.T, run func(t *testing.T, sess *Session)) {
	t.Helper()
	for name, opt := range executors {
		if testing.Short() && name != "Local" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			sess := Start(opt)
			run(t, sess)
		})
	}
}

func rangeSlice(i, j int) []int {
	s := make([]int, j-i)
	for k := range s {
		s[k] = i + k
	}
	return s
}

// shardRange gives the range covered by a shard.
func shardRange(nelem, nshard, shard int) (beg, end int) {
	elemsPerShard := (nelem + nshard - 1) / nshard
	beg = elemsPerShard * shard
	if beg >= nelem {
		beg = 0
		return
	}
	end = beg + elemsPerShard
	if end > nelem {
		end = nelem
	}
	return
}

func scanInts(t *testing.T, res *Result) []int {
	t.Helper()
	ctx := context.Background()
	var (
		scan = res.Scanner(ctx)
		ints []int
		x    int
	)
	for scan.Scan(ctx, &x) {
		ints = append(ints, x)
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	return ints
}

var sessionValues = evslice.Func(func() evslice.Slice {
	const (
		Nelem  = 1000
		Nshard = 5
	)
	return evslice.ReaderFunc(Nshard, func(shard int, n *int, out []int) (int, error) {
		beg, end := shardRange(Nelem, Nshard, shard)
		beg += *n
		if beg >= end { // empty or done
			return 0, colio.EOF
		}
		m := copy(out, rangeSlice(beg, end))
		*n += m
		return m, nil
	})
})

var sessionAdd = evslice.Func(func(x int, slice evslice.Slice) evslice.Slice {
	return evslice.Map(slice, func(i int) int {
		return i + x
	})
})

func TestSessionIterative(t *testing.T) {
	const Niter = 5
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		res, err := sess.Run(ctx, sessionValues)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < Niter; i++ {
			res, err = sess.Run(ctx, sessionAdd, i, res)
			if err != nil {
				t.Fatal(err)
			}
		}
		ints := scanInts(t, res)
		sort.Ints(ints)
		if got, want := ints, rangeSlice(10, 1010); !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
}

var sessionSum = evslice.Func(func(nshard int) evslice.Slice {
	slice := evslice.Const(nshard, rangeSlice(0, 1000))
	keyed := evslice.Map(slice, func(x int) (int, int) { return x % 3, x })
	return evslice.Fold(keyed, func(acc, x int) int { return acc + x })
})

// TestSessionBackends verifies that the computed result is identical
// regardless of the configured executor.
func TestSessionBackends(t *testing.T) {
	ctx := context.Background()
	type row struct{ Key, Sum int }
	results := make(map[string][]row)
	testSession(t, func(t *testing.T, sess *Session) {
		res, err := sess.Run(ctx, sessionSum, 5)
		if err != nil {
			t.Fatal(err)
		}
		var (
			scan = res.Scanner(ctx)
			rows []row
			r    row
		)
		for scan.Scan(ctx, &r.Key, &r.Sum) {
			rows = append(rows, r)
		}
		if err := scan.Err(); err != nil {
			t.Fatal(err)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
		if got, want := len(rows), 3; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		results[t.Name()] = rows
	})
	var first []row
	for name, rows := range results {
		if first == nil {
			first = rows
			continue
		}
		if !reflect.DeepEqual(rows, first) {
			t.Errorf("executor %s disagrees: got %v, want %v", name, rows, first)
		}
	}
}

func TestSessionErrorPropagation(t *testing.T) {
	ctx := context.Background()
	testSession(t, func(t *testing.T, sess *Session) {
		_, err := sess.Run(ctx, sessionBroken)
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

var sessionBroken = evslice.Func(func() evslice.Slice {
	return evslice.ReaderFunc(2, func(shard int, state struct{}, out []int) (int, error) {
		return 0, errors.New("broken slice")
	})
})
