// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package evslice

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/coltype"
	"github.com/grailbio/evslice/frame"
	"github.com/grailbio/evslice/typecheck"
)

var typeOfError = reflect.TypeOf((*error)(nil)).Elem()

const defaultChunksize = 1024

var errTypeError = errors.New("type error")

// A Dep is a Slice dependency. Deps comprise a slice and a boolean
// flag determining whether this is a shuffle dependency. Shuffle
// dependencies must perform a data shuffle step: the dependency
// requires that the data are partitioned according to the hash of
// the first column's value. This is done to satisfy locality
// requirements of the operation: a shuffle dependency can guarantee
// that all rows with a given key are collected in the same shard.
type Dep struct {
	Slice
	Shuffle bool
}

// A Slice is a shardable, ordered dataset. Each slice consists of
// zero or more columns of data distributed over one or more shards.
// Slices may declare dependencies on other slices from which it is
// computed. In order to compute a slice, its dependencies must first
// be computed, and their resulting readers are passed to a Slice's
// Reader method.
//
// Most slices are constructed by composing other slices via the
// operators in this package.
type Slice interface {
	coltype.Type

	// Op is a string describing the operation that this slice
	// represents.
	Op() string

	// NumShard returns the number of shards in this Slice.
	NumShard() int

	// NumDep returns the number of dependencies of this Slice.
	NumDep() int
	// Dep returns the i'th dependency for this Slice.
	Dep(i int) Dep

	// Reader returns a reader for a shard of this Slice. The reader
	// itself computes the shard's values on demand. The caller must
	// provide a reader for all of this shard's dependencies, constructed
	// according to the dependency type (see Dep).
	Reader(shard int, deps []colio.Reader) colio.Reader
}

type constSlice struct {
	coltype.Type
	frame  frame.Frame
	nshard int
}

// Const returns a Slice representing the provided value. Each column
// of the Slice should be provided as a Go slice of the column's
// type. The value is split into nshard shards.
func Const(nshard int, columns ...interface{}) Slice {
	if len(columns) == 0 {
		typecheck.Panic(1, "const: must have at least one column")
	}
	s := new(constSlice)
	s.nshard = nshard
	if s.nshard < 1 {
		typecheck.Panic(1, "const: nshard must be >= 1")
	}
	var ok bool
	s.Type, ok = typecheck.Slices(columns...)
	if !ok {
		typecheck.Panic(1, "const: invalid slice inputs")
	}
	s.frame = frame.Columns(columns...)
	return s
}

func (*constSlice) Op() string      { return "const" }
func (s *constSlice) NumShard() int { return s.nshard }
func (*constSlice) NumDep() int     { return 0 }
func (*constSlice) Dep(i int) Dep   { panic("no deps") }

type constReader struct {
	op    *constSlice
	frame frame.Frame
	shard int
}

func (s *constReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	if !coltype.Assignable(s.op, out) {
		return 0, errTypeError
	}
	n := frame.Copy(out, s.frame)
	m := s.frame.Len()
	s.frame = s.frame.Slice(n, m)
	if m == 0 {
		return n, colio.EOF
	}
	return n, nil
}

func (s *constSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	n := s.frame.Len()
	if n == 0 {
		return colio.EmptyReader()
	}
	// The last shard gets truncated when the data cannot be split
	// evenly.
	shardn := (n / s.nshard) + 1
	beg := shardn * shard
	end := beg + shardn
	if beg >= n {
		return colio.EmptyReader()
	}
	if end >= n {
		end = n
	}
	return &constReader{
		op:    s,
		frame: s.frame.Slice(beg, end),
		shard: shard,
	}
}

type readerFuncSlice struct {
	coltype.Type
	nshard    int
	read      reflect.Value
	stateType reflect.Type
}

// ReaderFunc returns a Slice that uses the provided function to read
// data. The function read must be of the form:
//
//	func(shard int, state stateType, col1 []col1Type, col2 []col2Type, ..., colN []colNType) (int, error)
//
// This returns a slice of the form:
//
//	Slice<col1Type, col2Type, ..., colNType>
//
// The function is invoked to fill a vector of elements. col1, ...,
// colN are preallocated slices that should be filled by the reader
// function. The function should return the number of elements that
// were filled. The error colio.EOF should be returned when no more
// data are available.
//
// ReaderFunc provides the function with a zero-value state upon the
// first invocation of the function for a given shard. (If the state
// argument is a pointer, it is allocated.) Subsequent invocations of
// the function receive the same state value, thus permitting the
// reader to maintain local state across the read of a whole shard.
func ReaderFunc(nshard int, read interface{}) Slice {
	s := new(readerFuncSlice)
	s.nshard = nshard
	s.read = reflect.ValueOf(read)
	arg, ret, ok := typecheck.Func(read)
	if !ok || arg.NumOut() < 3 || arg.Out(0).Kind() != reflect.Int {
		typecheck.Panicf(1, "readerfunc: invalid reader function type %T", read)
	}
	if ret.NumOut() != 2 || ret.Out(0).Kind() != reflect.Int || ret.Out(1) != typeOfError {
		typecheck.Panicf(1, "readerfunc: function %T does not return (int, error)", read)
	}
	s.stateType = arg.Out(1)
	arg = coltype.Slice(arg, 2, arg.NumOut())
	if s.Type, ok = typecheck.Devectorize(arg); !ok {
		typecheck.Panicf(1, "readerfunc: function %T is not vectorized", read)
	}
	return s
}

func (*readerFuncSlice) Op() string      { return "reader" }
func (r *readerFuncSlice) NumShard() int { return r.nshard }
func (*readerFuncSlice) NumDep() int     { return 0 }
func (*readerFuncSlice) Dep(i int) Dep   { panic("no deps") }

type readerFuncSliceReader struct {
	op    *readerFuncSlice
	state reflect.Value
	shard int
	err   error
}

func (r *readerFuncSliceReader) Read(ctx context.Context, out frame.Frame) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}
	if !coltype.Assignable(out, r.op) {
		return 0, errTypeError
	}
	// Initialize state (on first call).
	if !r.state.IsValid() {
		if r.op.stateType.Kind() == reflect.Ptr {
			r.state = reflect.New(r.op.stateType.Elem())
		} else {
			r.state = reflect.Zero(r.op.stateType)
		}
	}
	rvs := r.op.read.Call(append([]reflect.Value{reflect.ValueOf(r.shard), r.state}, out.Vals()...))
	n = int(rvs[0].Int())
	if e := rvs[1].Interface(); e != nil {
		if err := e.(error); err == colio.EOF || errors.Recover(err).Severity != errors.Unknown {
			r.err = err
		} else {
			// We consider all application-generated errors as Fatal unless marked otherwise.
			r.err = errors.E(errors.Fatal, err)
		}
	}
	return n, r.err
}

func (r *readerFuncSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &readerFuncSliceReader{op: r, shard: shard}
}

type mapSlice struct {
	Slice
	fval reflect.Value
	out  coltype.Type
}

// Map transforms a slice by invoking a function for each record. The
// type of slice must match the arguments of the function fn. The
// type of the returned slice is the set of columns returned by fn.
// The returned slice matches the input slice's sharding.
//
// Schematically:
//
//	Map(Slice<t1, t2, ..., tn>, func(v1 t1, v2 t2, ..., vn tn) (r1, r2, ..., rn)) Slice<r1, r2, ..., rn>
func Map(slice Slice, fn interface{}) Slice {
	m := new(mapSlice)
	m.Slice = slice
	m.fval = reflect.ValueOf(fn)
	arg, ret, ok := typecheck.Func(fn)
	if !ok {
		typecheck.Panicf(1, "map: invalid map function %T", fn)
	}
	if !typecheck.Equal(slice, arg) {
		typecheck.Panicf(1, "map: function %T does not match input slice type %s", fn, coltype.String(slice))
	}
	if ret.NumOut() == 0 {
		typecheck.Panicf(1, "map: need at least one output column")
	}
	m.out = ret
	return m
}

func (m *mapSlice) NumOut() int            { return m.out.NumOut() }
func (m *mapSlice) Out(c int) reflect.Type { return m.out.Out(c) }
func (m *mapSlice) Op() string             { return "map" }
func (*mapSlice) NumDep() int              { return 1 }
func (m *mapSlice) Dep(i int) Dep          { return singleDep(i, m.Slice, false) }

type mapReader struct {
	op     *mapSlice
	reader colio.Reader // parent reader
	in     frame.Frame  // buffer for input column vectors
	err    error
}

func (m *mapReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if !coltype.Assignable(out, m.op) {
		return 0, errTypeError
	}
	n := out.Len()
	if m.in.IsZero() {
		m.in = frame.Make(m.op.Slice, n)
	} else {
		m.in = m.in.Ensure(n)
	}
	n, m.err = m.reader.Read(ctx, m.in.Slice(0, n))
	// Now iterate over each record, transform it, and set the output
	// records. Note that we could parallelize the map operation here,
	// but for simplicity, parallelism should be achieved by finer
	// sharding instead, simplifying management of parallel
	// computation.
	args := make([]reflect.Value, m.in.NumOut())
	for i := 0; i < n; i++ {
		for j := range args {
			args[j] = m.in.Index(j, i)
		}
		result := m.op.fval.Call(args)
		for j := range result {
			out.Index(j, i).Set(result[j])
		}
	}
	return n, m.err
}

func (m *mapSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &mapReader{op: m, reader: deps[0]}
}

type filterSlice struct {
	Slice
	pred reflect.Value
}

// Filter returns a slice where the provided predicate is applied to
// each element in the given slice. The output slice contains only
// those entries for which the predicate is true.
//
// The predicate function should receive each column of slice
// and return a single boolean value.
//
// Schematically:
//
//	Filter(Slice<t1, t2, ..., tn>, func(t1, t2, ..., tn) bool) Slice<t1, t2, ..., tn>
func Filter(slice Slice, pred interface{}) Slice {
	f := new(filterSlice)
	f.Slice = slice
	f.pred = reflect.ValueOf(pred)
	arg, ret, ok := typecheck.Func(pred)
	if !ok {
		typecheck.Panicf(1, "filter: invalid predicate function %T", pred)
	}
	if !typecheck.Equal(slice, arg) {
		typecheck.Panicf(1, "filter: function %T does not match input slice type %s", pred, coltype.String(slice))
	}
	if ret.NumOut() != 1 || ret.Out(0).Kind() != reflect.Bool {
		typecheck.Panic(1, "filter: predicate must return a single boolean value")
	}
	return f
}

func (*filterSlice) Op() string      { return "filter" }
func (*filterSlice) NumDep() int     { return 1 }
func (f *filterSlice) Dep(i int) Dep { return singleDep(i, f.Slice, false) }

type filterReader struct {
	op     *filterSlice
	reader colio.Reader
	in     frame.Frame
	err    error
}

func (f *filterReader) Read(ctx context.Context, out frame.Frame) (n int, err error) {
	if f.err != nil {
		return 0, f.err
	}
	if !coltype.Assignable(out, f.op) {
		return 0, errTypeError
	}
	var (
		m   int
		max = out.Len()
	)
	args := make([]reflect.Value, out.NumOut())
	for m < max && f.err == nil {
		if f.in.IsZero() {
			f.in = frame.Make(f.op, max-m)
		} else {
			f.in = f.in.Ensure(max - m)
		}
		n, f.err = f.reader.Read(ctx, f.in)
		for i := 0; i < n; i++ {
			for j := range args {
				args[j] = f.in.Index(j, i)
			}
			if f.op.pred.Call(args)[0].Bool() {
				frame.Copy(out.Slice(m, m+1), f.in.Slice(i, i+1))
				m++
			}
		}
	}
	return m, f.err
}

func (f *filterSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &filterReader{op: f, reader: deps[0]}
}

type headSlice struct {
	Slice
	n int
}

// Head returns a slice that returns at most the first n items from
// each shard of the underlying slice. Its type is the same as the
// provided slice.
func Head(slice Slice, n int) Slice {
	return headSlice{slice, n}
}

func (h headSlice) Op() string    { return fmt.Sprintf("head(%d)", h.n) }
func (headSlice) NumDep() int     { return 1 }
func (h headSlice) Dep(i int) Dep { return singleDep(i, h.Slice, false) }

type headReader struct {
	reader colio.Reader
	n      int
}

func (h headSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &headReader{deps[0], h.n}
}

func (h *headReader) Read(ctx context.Context, out frame.Frame) (n int, err error) {
	if h.n <= 0 {
		return 0, colio.EOF
	}
	n, err = h.reader.Read(ctx, out)
	h.n -= n
	if h.n < 0 {
		n -= -h.n
	}
	return
}

type scanSlice struct {
	Slice
	scan func(shard int, scanner *colio.Scanner) error
}

// Scan invokes a function for each shard of the input Slice.
// It returns a unit Slice: Scan is intended to be used for its side
// effects.
func Scan(slice Slice, scan func(shard int, scanner *colio.Scanner) error) Slice {
	return scanSlice{slice, scan}
}

func (scanSlice) NumOut() int            { return 0 }
func (scanSlice) Out(c int) reflect.Type { panic(c) }
func (scanSlice) Op() string             { return "scan" }
func (scanSlice) NumDep() int            { return 1 }
func (s scanSlice) Dep(i int) Dep        { return singleDep(i, s.Slice, false) }

type scanReader struct {
	slice  scanSlice
	shard  int
	reader colio.Reader
}

func (s *scanReader) Read(ctx context.Context, out frame.Frame) (n int, err error) {
	err = s.slice.scan(s.shard, &colio.Scanner{Type: s.slice.Slice, Reader: s.reader})
	if err == nil {
		err = colio.EOF
	}
	return 0, err
}

func (s scanSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &scanReader{s, shard, deps[0]}
}

// String returns a string describing the slice and its type.
func String(slice Slice) string {
	types := make([]string, slice.NumOut())
	for i := range types {
		types[i] = fmt.Sprint(slice.Out(i))
	}
	return fmt.Sprintf("%s<%s>", slice.Op(), strings.Join(types, ", "))
}

func singleDep(i int, slice Slice, shuffle bool) Dep {
	if i != 0 {
		panic(fmt.Sprintf("invalid dependency %d", i))
	}
	return Dep{slice, shuffle}
}
