// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package hist

import (
	"context"
	"encoding/gob"
	"reflect"

	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/coltype"
	"github.com/grailbio/evslice/frame"
	"github.com/grailbio/evslice/typecheck"
)

func init() {
	gob.Register(&Hist{})
	gob.Register(Axis{})
}

// Merged histograms the first (float64) column of the provided slice
// over the given axis, filling per-shard partial histograms on the
// workers that own each shard and then merging them worker-side. The
// returned slice has a single row of type Slice<int, *Hist> holding
// the fully merged histogram.
//
// The worker-side merge requires a shuffle of the partial histograms
// to the single worker that produces the final row; only histogram
// payloads cross machine boundaries, never raw event values.
func Merged(slice evslice.Slice, axis Axis) evslice.Slice {
	keyed := evslice.Map(slice, func(x float64) (int, float64) {
		return 0, x
	})
	return evslice.Fold(keyed, func(h *Hist, x float64) *Hist {
		if h == nil {
			h = New(axis)
		}
		h.Fill(x)
		return h
	})
}

// Fill histograms the first (float64) column of the provided slice
// over the given axis, producing one partial histogram per shard.
// Unlike Merged, Fill introduces no shuffle dependency: the partials
// are merged wherever the result is scanned, so no data moves
// between workers during evaluation. Fill's output schema matches
// Merged's, Slice<int, *Hist>, and may be collected the same way.
func Fill(slice evslice.Slice, axis Axis) evslice.Slice {
	if slice.NumOut() == 0 {
		typecheck.Panicf(1, "fill: slice has no columns")
	}
	if slice.Out(0) != reflect.TypeOf(float64(0)) {
		typecheck.Panicf(1, "fill: slice column 0 is %s, not float64", slice.Out(0))
	}
	return &fillSlice{
		Slice: slice,
		axis:  axis,
		out:   coltype.New(reflect.TypeOf(int(0)), reflect.TypeOf(&Hist{})),
	}
}

type fillSlice struct {
	evslice.Slice
	axis Axis
	out  coltype.Type
}

func (f *fillSlice) NumOut() int            { return f.out.NumOut() }
func (f *fillSlice) Out(i int) reflect.Type { return f.out.Out(i) }
func (*fillSlice) Op() string               { return "histfill" }
func (*fillSlice) NumDep() int              { return 1 }
func (f *fillSlice) Dep(i int) evslice.Dep  { return evslice.Dep{Slice: f.Slice} }

func (f *fillSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &fillReader{op: f, reader: deps[0]}
}

type fillReader struct {
	op     *fillSlice
	reader colio.Reader
	hist   *Hist
	err    error
}

func (f *fillReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.hist == nil {
		f.hist = New(f.op.axis)
		in := frame.Make(coltype.New(reflect.TypeOf(float64(0))), defaultChunksize, defaultChunksize)
		xs := in.Value(0).Interface().([]float64)
		for {
			n, err := f.reader.Read(ctx, in)
			for _, x := range xs[:n] {
				f.hist.Fill(x)
			}
			if err == colio.EOF {
				break
			}
			if err != nil {
				f.err = err
				return 0, err
			}
		}
	}
	if out.Len() == 0 {
		return 0, nil
	}
	out.Index(0, 0).SetInt(0)
	out.Index(1, 0).Set(reflect.ValueOf(f.hist))
	f.err = colio.EOF
	return 1, nil
}

const defaultChunksize = 1024

// Collect scans float64 values from the provided scanner and fills
// them into a fresh histogram over the given axis. The scanner must
// produce a single float64 column.
func Collect(ctx context.Context, scan *colio.Scanner, axis Axis) (*Hist, error) {
	h := New(axis)
	var x float64
	for scan.Scan(ctx, &x) {
		h.Fill(x)
	}
	return h, scan.Err()
}

// CollectMerged scans the output of a slice produced by Merged,
// merging the scanned histograms into a single result. If the
// scanned output is empty, an empty histogram over the given axis is
// returned.
func CollectMerged(ctx context.Context, scan *colio.Scanner, axis Axis) (*Hist, error) {
	var (
		merged = New(axis)
		key    int
		h      *Hist
	)
	for scan.Scan(ctx, &key, &h) {
		if err := merged.Merge(h); err != nil {
			return nil, err
		}
	}
	return merged, scan.Err()
}
