// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package events implements a simple columnar container format for
// particle physics event data, together with an evslice reader that
// exposes stored event files as sharded slices.
//
// An event file (customarily suffixed ".evc") stores a single table:
// a named, typed set of columns together with the dataset and table
// names it belongs to. Rows are stored in column-major batches so
// that readers can decode just the batches they need and project out
// the requested columns. Files are written and read through
// grailfile, so they may reside on local disk or on any storage
// supported by it (e.g., S3).
package events

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/coltype"
	"github.com/grailbio/evslice/frame"
)

// magic identifies event container files.
var magic = [4]byte{'E', 'V', 'C', '1'}

// Kind enumerates the column types that may be stored in an event
// file.
type Kind int

const (
	// Float64 is a 64-bit floating point column.
	Float64 Kind = 1 + iota
	// Int64 is a 64-bit signed integer column.
	Int64
	// String is a string column.
	String
	// Bool is a boolean column.
	Bool
)

var kindTypes = map[Kind]reflect.Type{
	Float64: reflect.TypeOf(float64(0)),
	Int64:   reflect.TypeOf(int64(0)),
	String:  reflect.TypeOf(""),
	Bool:    reflect.TypeOf(false),
}

// Type returns the Go type stored by columns of this kind.
func (k Kind) Type() reflect.Type {
	typ, ok := kindTypes[k]
	if !ok {
		panic(fmt.Sprintf("events: invalid kind %d", k))
	}
	return typ
}

func (k Kind) String() string {
	switch k {
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case String:
		return "string"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// A Field describes a single named column of an event table.
type Field struct {
	Name string
	Kind Kind
}

// Meta describes the contents of an event file: the dataset and
// table it belongs to, and the schema of its columns.
type Meta struct {
	// Dataset names the dataset from which this file's events are
	// drawn.
	Dataset string
	// Table names the event table stored in this file.
	Table string
	// Fields is the ordered column schema of the table.
	Fields []Field
}

// Field returns the index and definition of the named field. The
// returned index is -1 if the table has no such field.
func (m Meta) Field(name string) (int, Field) {
	for i, f := range m.Fields {
		if f.Name == name {
			return i, f
		}
	}
	return -1, Field{}
}

// Type returns the full column type of the stored table.
func (m Meta) Type() coltype.Type {
	types := make([]reflect.Type, len(m.Fields))
	for i, f := range m.Fields {
		types[i] = f.Kind.Type()
	}
	return coltype.New(types...)
}

// ShardPath returns the canonical path of shard shard of nshard for
// the event file set with the provided prefix.
func ShardPath(prefix string, shard, nshard int) string {
	return fmt.Sprintf("%s-%03d-of-%03d.evc", prefix, shard, nshard)
}

// A Writer writes batches of rows to an event file. Writers must be
// closed after use; the file's contents are not complete until Close
// returns.
type Writer struct {
	meta Meta
	f    file.File
	buf  *bufio.Writer
	enc  *colio.Encoder
}

// Create creates an event file at the provided path, storing a table
// with the provided metadata. The metadata must define at least one
// field.
func Create(ctx context.Context, path string, meta Meta) (*Writer, error) {
	if len(meta.Fields) == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("create %s: no fields", path))
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f.Writer(ctx))
	if _, err := buf.Write(magic[:]); err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(buf).Encode(meta); err != nil {
		return nil, err
	}
	return &Writer{
		meta: meta,
		f:    f,
		buf:  buf,
		enc:  colio.NewEncoder(buf),
	}, nil
}

// Write appends a batch of rows to the file. The frame must be typed
// exactly as the file's schema.
func (w *Writer) Write(f frame.Frame) error {
	if !coltype.Assignable(f, w.meta.Type()) {
		return errors.E(errors.Invalid,
			fmt.Sprintf("write %s: frame %s does not match schema", w.f.Name(), f))
	}
	return w.enc.Encode(f)
}

// Close flushes buffered rows and commits the file.
func (w *Writer) Close(ctx context.Context) error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.f.Close(ctx)
}

// A File is an opened event file from which rows may be read.
type File struct {
	meta Meta
	f    file.File
	buf  *bufio.Reader
}

// Open opens the event file at the provided path and reads its
// metadata. Schema anomalies (bad magic, corrupt header, empty
// schema) are hard errors.
func Open(ctx context.Context, path string) (*File, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewReader(f.Reader(ctx))
	var m [4]byte
	if _, err := io.ReadFull(buf, m[:]); err != nil {
		f.Close(ctx)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("open %s: short or missing header", path))
	}
	if m != magic {
		f.Close(ctx)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("open %s: not an event file", path))
	}
	var meta Meta
	if err := gob.NewDecoder(buf).Decode(&meta); err != nil {
		f.Close(ctx)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("open %s: corrupt metadata: %v", path, err))
	}
	if len(meta.Fields) == 0 {
		f.Close(ctx)
		return nil, errors.E(errors.Invalid, fmt.Sprintf("open %s: empty schema", path))
	}
	for _, fl := range meta.Fields {
		if _, ok := kindTypes[fl.Kind]; !ok {
			f.Close(ctx)
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("open %s: field %s has invalid kind %d", path, fl.Name, fl.Kind))
		}
	}
	return &File{meta: meta, f: f, buf: buf}, nil
}

// Meta returns the file's metadata.
func (f *File) Meta() Meta { return f.meta }

// Reader returns a reader over the file's rows, projected onto the
// provided field indices. The indices must be valid for the file's
// schema. The reader reads batches in storage order.
func (f *File) Reader(indices []int) colio.Reader {
	return &projectingReader{
		dec:     colio.NewDecodingReader(f.buf),
		full:    f.meta.Type(),
		indices: indices,
	}
}

// Close closes the underlying file.
func (f *File) Close(ctx context.Context) error {
	return f.f.Close(ctx)
}

// projectingReader decodes full-width batches and copies out the
// projected columns.
type projectingReader struct {
	dec     colio.Reader
	full    coltype.Type
	indices []int
	buf     frame.Frame
}

func (p *projectingReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	n := out.Len()
	if p.buf.IsZero() {
		p.buf = frame.Make(p.full, n)
	} else {
		p.buf = p.buf.Ensure(n)
	}
	n, err := p.dec.Read(ctx, p.buf)
	if err != nil && err != colio.EOF {
		return 0, err
	}
	for j, idx := range p.indices {
		reflect.Copy(out.Value(j), p.buf.Value(idx))
	}
	return n, err
}
