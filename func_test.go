// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package evslice

import (
	"testing"
)

type funcTestIface interface{ FuncTestMethod() }
type funcTestImpl struct{}

func (funcTestImpl) FuncTestMethod() {}

var fnTest = Func(func(n int, s string, iface funcTestIface) Slice {
	col := make([]string, n)
	for i := range col {
		col[i] = s
	}
	return Const(1, col)
})

func TestFuncValue(t *testing.T) {
	if got, want := fnTest.NumIn(), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := fnTest.In(1).Kind().String(), "string"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	slice := fnTest.Apply(3, "x", funcTestImpl{})
	if got, want := String(slice), "const<string>"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFuncTypecheck(t *testing.T) {
	for _, c := range []struct {
		name string
		args []interface{}
	}{
		{"too few args", []interface{}{1}},
		{"wrong type", []interface{}{"x", "y", funcTestImpl{}}},
		{"unimplemented interface", []interface{}{1, "x", 3}},
	} {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			fnTest.Apply(c.args...)
		})
	}
}

func TestInvocation(t *testing.T) {
	inv1 := fnTest.Invocation(2, "a", funcTestImpl{})
	inv2 := fnTest.Invocation(2, "a", funcTestImpl{})
	if inv1.Index == inv2.Index {
		t.Error("invocation indices must be distinct")
	}
	slice := inv1.Invoke()
	if got, want := slice.NumOut(), 1; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := String(slice), "const<string>"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
