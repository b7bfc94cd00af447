// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package events

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/frame"
	"github.com/grailbio/evslice/typecheck"
)

// A Col selects a named, typed column from an event table. Cols are
// constructed by F64, I64, Str, and Bool.
type Col struct {
	Name string
	Kind Kind
}

// F64 selects the named float64 column.
func F64(name string) Col { return Col{name, Float64} }

// I64 selects the named int64 column.
func I64(name string) Col { return Col{name, Int64} }

// Str selects the named string column.
func Str(name string) Col { return Col{name, String} }

// B selects the named bool column.
func B(name string) Col { return Col{name, Bool} }

// Read returns a slice that lazily reads the selected columns of the
// named table from the provided event files, one shard per file. No
// file is opened until the slice is computed; schema or table
// mismatches then surface as task errors.
//
// Schematically, for selected column types t1, ..., tn:
//
//	Read(paths, table, col1, ..., coln) Slice<t1, ..., tn>
func Read(paths []string, table string, cols ...Col) evslice.Slice {
	if len(paths) == 0 {
		typecheck.Panic(1, "events.Read: no input files")
	}
	if len(cols) == 0 {
		typecheck.Panic(1, "events.Read: no columns selected")
	}
	types := make([]reflect.Type, len(cols))
	for i, col := range cols {
		types[i] = col.Kind.Type()
	}
	return &readSlice{
		paths: paths,
		table: table,
		cols:  cols,
		types: types,
	}
}

type readSlice struct {
	paths []string
	table string
	cols  []Col
	types []reflect.Type
}

func (r *readSlice) NumOut() int            { return len(r.types) }
func (r *readSlice) Out(i int) reflect.Type { return r.types[i] }
func (*readSlice) Op() string               { return "events" }
func (r *readSlice) NumShard() int          { return len(r.paths) }
func (*readSlice) NumDep() int              { return 0 }
func (*readSlice) Dep(i int) evslice.Dep    { panic("no deps") }

func (r *readSlice) Reader(shard int, deps []colio.Reader) colio.Reader {
	return &shardReader{op: r, path: r.paths[shard]}
}

// shardReader reads a single event file, opening it on the first
// call to Read.
type shardReader struct {
	op     *readSlice
	path   string
	file   *File
	reader colio.Reader
	err    error
}

func (s *shardReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.reader == nil {
		if s.err = s.open(ctx); s.err != nil {
			return 0, s.err
		}
	}
	n, err := s.reader.Read(ctx, out)
	if err != nil {
		s.err = err
		s.file.Close(ctx)
	}
	return n, err
}

func (s *shardReader) open(ctx context.Context) error {
	f, err := Open(ctx, s.path)
	if err != nil {
		return err
	}
	meta := f.Meta()
	if meta.Table != s.op.table {
		f.Close(ctx)
		return errors.E(errors.Invalid,
			fmt.Sprintf("%s: table %q does not match requested table %q", s.path, meta.Table, s.op.table))
	}
	indices := make([]int, len(s.op.cols))
	for i, col := range s.op.cols {
		idx, field := meta.Field(col.Name)
		if idx < 0 {
			f.Close(ctx)
			return errors.E(errors.Invalid,
				fmt.Sprintf("%s: table %q has no column %q", s.path, meta.Table, col.Name))
		}
		if field.Kind != col.Kind {
			f.Close(ctx)
			return errors.E(errors.Invalid,
				fmt.Sprintf("%s: column %q is %s, not %s", s.path, col.Name, field.Kind, col.Kind))
		}
		indices[i] = idx
	}
	s.file = f
	s.reader = f.Reader(indices)
	return nil
}

// List expands the provided path into the event files it names. If
// the path names a single event file it is returned as is; otherwise
// it is treated as a prefix and all ".evc" files below it are
// returned in sorted order. List returns an error with kind
// errors.NotExist if no event files are found.
func List(ctx context.Context, path string) ([]string, error) {
	if strings.HasSuffix(path, ".evc") {
		// Stat eagerly so that missing inputs fail before any
		// computation is scheduled.
		f, err := file.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		f.Close(ctx)
		return []string{path}, nil
	}
	lister := file.List(ctx, path, true)
	var paths []string
	for lister.Scan() {
		if strings.HasSuffix(lister.Path(), ".evc") {
			paths = append(paths, lister.Path())
		}
	}
	if err := lister.Err(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("no event files under %s", path))
	}
	sort.Strings(paths)
	return paths, nil
}
