// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package evslice

import (
	"context"
	"reflect"

	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/coltype"
	"github.com/grailbio/evslice/frame"
	"github.com/grailbio/evslice/typecheck"
)

type foldSlice struct {
	Slice
	fval reflect.Value
	out  coltype.Type
	dep  Dep
}

// Fold returns a slice that aggregates values by the first column
// using a custom aggregation function. For an input slice
// Slice<t1, t2, ..., tn>, Fold requires that the provided accumulator
// function follow the form:
//
//	func(accum acctype, v2 t2, ..., vn tn) acctype
//
// The function is invoked once for each slice element with the same
// value for column 1 (t1). On the first invocation, the accumulator
// is passed the zero value of its accumulator type.
//
// Fold requires that the first column of the slice is partitionable;
// the aggregation is performed on the worker that owns the key's
// partition, after a shuffle of the input.
//
// Schematically:
//
//	Fold(Slice<t1, t2, ..., tn>, func(accum acctype, v2 t2, ..., vn tn) acctype) Slice<t1, acctype>
func Fold(slice Slice, fold interface{}) Slice {
	if n := slice.NumOut(); n < 2 {
		typecheck.Panicf(1, "fold: can be applied only for slices with at least two columns; got %d", n)
	}
	if !frame.CanHash(slice.Out(0)) {
		typecheck.Panicf(1, "fold: key type %s is not partitionable", slice.Out(0))
	}
	if !slice.Out(0).Comparable() {
		typecheck.Panicf(1, "fold: key type %s is not comparable", slice.Out(0))
	}
	f := new(foldSlice)
	f.Slice = slice
	// Fold requires shuffle by the first column.
	f.dep = Dep{slice, true}
	f.fval = reflect.ValueOf(fold)

	arg, ret, ok := typecheck.Func(fold)
	if !ok {
		typecheck.Panicf(1, "fold: invalid fold function %T", fold)
	}
	if ret.NumOut() != 1 {
		typecheck.Panicf(1, "fold: fold functions must return exactly one value")
	}
	// func(acc, t2, t3, ..., tn)
	if got, want := arg, coltype.Concat(ret, coltype.Slice(slice, 1, slice.NumOut())); !typecheck.Equal(got, want) {
		typecheck.Panicf(1, "fold: expected func(acc, t2, t3, ..., tn), got %T", fold)
	}
	// Output: key, accumulator.
	f.out = coltype.New(slice.Out(0), ret.Out(0))
	return f
}

func (f *foldSlice) NumOut() int            { return f.out.NumOut() }
func (f *foldSlice) Out(c int) reflect.Type { return f.out.Out(c) }
func (f *foldSlice) Op() string             { return "fold" }
func (*foldSlice) NumDep() int              { return 1 }
func (f *foldSlice) Dep(i int) Dep          { return f.dep }

// An accumulator maintains a partial aggregate for each key observed
// in a shard. Its state is kept in memory and read out after
// accumulation is complete.
type accumulator struct {
	accType reflect.Type
	fn      reflect.Value
	state   reflect.Value // map[keyType]accType
	keys    []reflect.Value
	read    int
}

func makeAccumulator(keyType, accType reflect.Type, fn reflect.Value) *accumulator {
	return &accumulator{
		accType: accType,
		fn:      fn,
		state:   reflect.MakeMap(reflect.MapOf(keyType, accType)),
	}
}

// accumulate folds the first n rows of the frame into the
// accumulator's state.
func (a *accumulator) accumulate(in frame.Frame, n int) {
	args := make([]reflect.Value, in.NumOut())
	for i := 0; i < n; i++ {
		key := in.Index(0, i)
		val := a.state.MapIndex(key)
		if !val.IsValid() {
			val = reflect.Zero(a.accType)
		}
		args[0] = val
		for j := 1; j < in.NumOut(); j++ {
			args[j] = in.Index(j, i)
		}
		a.state.SetMapIndex(key, a.fn.Call(args)[0])
	}
}

// readInto reads a batch of accumulated (key, value) pairs into the
// provided column vectors.
func (a *accumulator) readInto(keys, values reflect.Value) (n int, err error) {
	if a.keys == nil {
		a.keys = a.state.MapKeys()
	}
	max := keys.Len()
	for n < max && a.read < len(a.keys) {
		key := a.keys[a.read]
		keys.Index(n).Set(key)
		values.Index(n).Set(a.state.MapIndex(key))
		a.read++
		n++
	}
	if a.read == len(a.keys) {
		return n, colio.EOF
	}
	return n, nil
}

type foldReader struct {
	op     *foldSlice
	reader colio.Reader
	accum  *accumulator
	err    error
}

// compute accumulates values across all keys in this shard. The
// entire output is buffered in memory.
func (f *foldReader) compute(ctx context.Context) (*accumulator, error) {
	in := frame.Make(f.op.dep, defaultChunksize)
	accum := makeAccumulator(f.op.dep.Out(0), f.op.out.Out(1), f.op.fval)
	for {
		n, err := f.reader.Read(ctx, in)
		if err != nil && err != colio.EOF {
			return nil, err
		}
		accum.accumulate(in, n)
		if err == colio.EOF {
			return accum, nil
		}
	}
}

func (f *foldReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if !coltype.Assignable(out, f.op) {
		return 0, errTypeError
	}
	if f.accum == nil {
		f.accum, f.err = f.compute(ctx)
		if f.err != nil {
			return 0, f.err
		}
	}
	var n int
	n, f.err = f.accum.readInto(out.Value(0), out.Value(1))
	return n, f.err
}

func (f *foldSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &foldReader{op: f, reader: deps[0]}
}
