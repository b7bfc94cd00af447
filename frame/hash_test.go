// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package frame

import (
	"reflect"
	"testing"

	"github.com/grailbio/evslice/coltype"
)

func TestCanHash(t *testing.T) {
	for _, typ := range []reflect.Type{
		typeOfString, typeOfInt, reflect.TypeOf(false), reflect.TypeOf(float64(0)),
	} {
		if !CanHash(typ) {
			t.Errorf("type %v should be hashable", typ)
		}
	}
	for _, typ := range []reflect.Type{
		reflect.TypeOf([]int{}), reflect.TypeOf(struct{}{}), reflect.TypeOf(map[int]int{}),
	} {
		if CanHash(typ) {
			t.Errorf("type %v should not be hashable", typ)
		}
	}
}

func TestHashFrame(t *testing.T) {
	h := NewHasher(coltype.New(typeOfString))
	f := Columns([]string{"a", "b", "c", "a"})
	sum1 := make([]uint32, 4)
	h.HashFrame(f, sum1)
	// Hashes must be stable so that partition assignments agree
	// across machines.
	sum2 := make([]uint32, 4)
	NewHasher(coltype.New(typeOfString)).HashFrame(f, sum2)
	if !reflect.DeepEqual(sum1, sum2) {
		t.Errorf("got %v, want %v", sum2, sum1)
	}
	if sum1[0] != sum1[3] {
		t.Error("equal rows should hash equally")
	}
	if sum1[0] == sum1[1] && sum1[1] == sum1[2] {
		t.Error("distinct rows all hash equally")
	}
}

func TestHashFrameShort(t *testing.T) {
	h := NewHasher(coltype.New(typeOfInt))
	f := Columns([]int{1, 2, 3, 4})
	sum := make([]uint32, 2)
	h.HashFrame(f, sum)
	full := make([]uint32, 4)
	h.HashFrame(f, full)
	if !reflect.DeepEqual(sum, full[:2]) {
		t.Errorf("got %v, want %v", sum, full[:2])
	}
}
