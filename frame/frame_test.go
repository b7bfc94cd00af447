// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package frame

import (
	"reflect"
	"testing"

	"github.com/grailbio/evslice/coltype"
)

var (
	typeOfString = reflect.TypeOf("")
	typeOfInt    = reflect.TypeOf(0)
)

func TestMake(t *testing.T) {
	f := Make(coltype.New(typeOfString, typeOfInt), 100, 200)
	if got, want := f.Len(), 100; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.Cap(), 200; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.NumOut(), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := f.Out(0), typeOfString; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.Out(1), typeOfInt; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestColumns(t *testing.T) {
	f := Columns([]string{"x", "y", "z"}, []int{1, 2, 3})
	if got, want := f.Len(), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := f.Index(0, 1).String(), "y"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.Index(1, 2).Int(), int64(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		Columns([]string{"x"}, []int{1, 2})
	}()
}

func TestAppend(t *testing.T) {
	var f Frame
	g := Columns([]int{1, 2, 3})
	f = Append(f, g)
	f = Append(f, g)
	if got, want := f.Value(0).Interface().([]int), []int{1, 2, 3, 1, 2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCopy(t *testing.T) {
	src := Columns([]int{1, 2, 3}, []string{"a", "b", "c"})
	dst := Make(src, 2)
	if got, want := Copy(dst, src), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := dst.Value(1).Interface().([]string), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSlice(t *testing.T) {
	f := Columns([]int{1, 2, 3, 4})
	g := f.Slice(1, 3)
	if got, want := g.Value(0).Interface().([]int), []int{2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEnsure(t *testing.T) {
	f := Make(coltype.New(typeOfInt), 10, 20)
	g := f.Ensure(15)
	if got, want := g.Len(), 15; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if f.Value(0).Pointer() != g.Value(0).Pointer() {
		t.Error("expected shared storage")
	}
	h := f.Ensure(30)
	if got, want := h.Len(), 30; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if f.Value(0).Pointer() == h.Value(0).Pointer() {
		t.Error("expected fresh storage")
	}
}

func TestEqual(t *testing.T) {
	f := Columns([]int{1, 2}, []string{"a", "b"})
	g := Columns([]int{1, 2}, []string{"a", "b"})
	if !Equal(f, g) {
		t.Error("frames should be equal")
	}
	h := Columns([]int{1, 3}, []string{"a", "b"})
	if Equal(f, h) {
		t.Error("frames should not be equal")
	}
}
