// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package colio provides utilities for streaming and buffering
// columnar data as it is processed by evslice.
package colio

import (
	"context"
	"errors"

	"github.com/grailbio/evslice/frame"
)

// EOF is the error returned by Reader.Read when no more data is
// available. EOF is intended as a sentinel error: it signals a
// graceful end of output. If the output terminates in an abnormal
// condition, a different error is returned.
var EOF = errors.New("EOF")

// A Reader represents a stateful stream of records. Each call to
// Read reads the next set of available records.
type Reader interface {
	// Read reads a vector of records into the provided buffer frame.
	// Each column of the frame is filled up to its length. Read
	// returns the total number of records that were read, or an
	// error. Read always returns the number of records read; it
	// returns the error EOF after the last batch of records have
	// been returned.
	//
	// Note that Read may return EOF when records are returned. This
	// is similar to the semantics of io.Reader.Read.
	Read(ctx context.Context, f frame.Frame) (int, error)
}

// ReadFull reads the full length of the frame. ReadFull reads short
// frames only on EOF.
func ReadFull(ctx context.Context, r Reader, f frame.Frame) (n int, err error) {
	len := f.Len()
	for n < len {
		m, err := r.Read(ctx, f.Slice(n, len))
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadAll reads all of the records in the reader r into the returned
// frame. The returned frame has the type of the provided prototype,
// which must be a frame typed for r's output.
func ReadAll(ctx context.Context, r Reader, proto frame.Frame) (frame.Frame, error) {
	out := frame.Make(proto, 0, defaultChunksize)
	buf := frame.Make(proto, defaultChunksize)
	for {
		n, err := r.Read(ctx, buf)
		out = frame.Append(out, buf.Slice(0, n))
		if err == EOF {
			return out, nil
		} else if err != nil {
			return nil, err
		}
	}
}

type frameReader struct {
	frame.Frame
}

// FrameReader returns a Reader that reads the provided frame to
// completion.
func FrameReader(f frame.Frame) Reader {
	return &frameReader{f}
}

func (f *frameReader) Read(ctx context.Context, out frame.Frame) (int, error) {
	n := out.Len()
	max := f.Frame.Len()
	if max < n {
		n = max
	}
	frame.Copy(out, f.Frame)
	f.Frame = f.Frame.Slice(n, max)
	if f.Frame.Len() == 0 {
		return n, EOF
	}
	return n, nil
}

type multiReader struct {
	q   []Reader
	err error
}

// MultiReader returns a Reader that reads the provided readers in
// sequence. If a reader returns an error (other than EOF), the
// multiReader stops reading and returns the error for all future
// reads.
func MultiReader(readers ...Reader) Reader {
	return &multiReader{q: readers}
}

func (m *multiReader) Read(ctx context.Context, out frame.Frame) (n int, err error) {
	if m.err != nil {
		return 0, m.err
	}
	for len(m.q) > 0 {
		n, err = m.q[0].Read(ctx, out)
		switch {
		case err == EOF:
			err = nil
			m.q = m.q[1:]
		case err != nil:
			m.err = err
			return n, err
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
	return 0, EOF
}

type errReader struct{ err error }

// ErrReader returns a Reader that returns the provided error on
// every call to Read.
func ErrReader(err error) Reader {
	return errReader{err}
}

func (e errReader) Read(ctx context.Context, f frame.Frame) (int, error) {
	return 0, e.err
}

// EmptyReader returns a Reader that returns EOF immediately.
func EmptyReader() Reader {
	return errReader{EOF}
}

const defaultChunksize = 1024
