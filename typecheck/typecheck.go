// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package typecheck contains typechecking and inference utilities
// for evslice operators.
package typecheck

import (
	"reflect"

	"github.com/grailbio/evslice/coltype"
)

// Equal tells whether the expected and actual column types are equal.
func Equal(expect, actual coltype.Type) bool {
	if got, want := actual.NumOut(), expect.NumOut(); got != want {
		return false
	}
	for i := 0; i < expect.NumOut(); i++ {
		if got, want := actual.Out(i), expect.Out(i); got != want {
			return false
		}
	}
	return true
}

// Slices returns a column type for the provided column values. If
// the passed values are not valid columns (Go slices), Slices
// returns false.
func Slices(columns ...interface{}) (coltype.Type, bool) {
	types := make([]reflect.Type, len(columns))
	for i, col := range columns {
		t := reflect.TypeOf(col)
		if t == nil || t.Kind() != reflect.Slice {
			return nil, false
		}
		types[i] = t.Elem()
	}
	return coltype.New(types...), true
}

// Func inspects the provided function, returning its argument and
// return types. If fn is not a valid function, Func returns false.
func Func(fn interface{}) (arg, ret coltype.Type, ok bool) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return nil, nil, false
	}
	in := make([]reflect.Type, t.NumIn())
	for i := range in {
		in[i] = t.In(i)
	}
	out := make([]reflect.Type, t.NumOut())
	for i := range out {
		out[i] = t.Out(i)
	}
	return coltype.New(in...), coltype.New(out...), true
}

// Devectorize returns a devectorized version of the provided column
// type: each of the type's columns is expected to be a slice; the
// returned type unwraps the slice from each column. If the provided
// type is not a valid vectorized type, false is returned.
func Devectorize(typ coltype.Type) (coltype.Type, bool) {
	elems := make([]reflect.Type, typ.NumOut())
	for i := 0; i < typ.NumOut(); i++ {
		t := typ.Out(i)
		if t.Kind() != reflect.Slice {
			return nil, false
		}
		elems[i] = t.Elem()
	}
	return coltype.New(elems...), true
}
