// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package colio

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"reflect"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/evslice/frame"
)

// An Encoder manages transmission of columnar data through an
// underlying io.Writer. The stream of values is represented by
// batches of rows stored in column-major order. Each batch carries a
// checksum of its encoded bytes so that corruption is detected on
// receipt. Streams are read by the reader returned from
// NewDecodingReader.
type Encoder struct {
	enc *gob.Encoder
	crc hash.Hash32
}

// NewEncoder returns a new Encoder that streams frames into the
// provided writer.
func NewEncoder(w io.Writer) *Encoder {
	crc := crc32.NewIEEE()
	return &Encoder{
		enc: gob.NewEncoder(io.MultiWriter(w, crc)),
		crc: crc,
	}
}

// Encode encodes a batch of rows and writes the encoded output into
// the encoder's writer.
func (e *Encoder) Encode(f frame.Frame) error {
	e.crc.Reset()
	if err := e.enc.Encode(f.Len()); err != nil {
		return err
	}
	for col := 0; col < f.NumOut(); col++ {
		if err := e.enc.EncodeValue(f.Value(col)); err != nil {
			// Here we're encoding a user-defined type. We pessimistically
			// attribute any errors that appear to come from gob as being
			// related to the inability to encode this user-defined type.
			if strings.HasPrefix(err.Error(), "gob: ") {
				err = errors.E(errors.Fatal, err)
			}
			return err
		}
	}
	return e.enc.Encode(e.crc.Sum32())
}

// decodingReader provides a Reader on top of a gob stream encoded
// with batches of rows stored in column-major order.
type decodingReader struct {
	dec     *gob.Decoder
	crc     hash.Hash32
	scratch frame.Frame
	buf     frame.Frame
	err     error
}

// NewDecodingReader returns a new Reader that decodes values from
// the provided stream. Since values are streamed in batches, the
// decoding reader must buffer values until they are read by the
// consumer.
func NewDecodingReader(r io.Reader) Reader {
	// We need to compute checksums by inspecting the underlying
	// bytestream, however, gob uses whether the reader implements
	// io.ByteReader as a proxy for whether the passed reader is
	// buffered. io.TeeReader does not implement io.ByteReader, and thus
	// gob.Decoder would insert a buffered reader leaving us without
	// means of synchronizing stream positions, required for
	// checksumming. Instead we fake an implementation of io.ByteReader,
	// and take over the responsibility of ensuring that IO is buffered.
	crc := crc32.NewIEEE()
	if _, ok := r.(io.ByteReader); !ok {
		r = bufio.NewReader(r)
	}
	r = io.TeeReader(r, crc)
	return &decodingReader{dec: gob.NewDecoder(readerByteReader{Reader: r}), crc: crc}
}

func (d *decodingReader) Read(ctx context.Context, f frame.Frame) (n int, err error) {
	if d.err != nil {
		return 0, d.err
	}
	for d.buf.Len() == 0 {
		d.crc.Reset()
		if d.err = d.dec.Decode(&n); d.err != nil {
			if d.err == io.EOF {
				d.err = EOF
			}
			return 0, d.err
		}
		// In most cases, we should be able to decode directly into the
		// provided frame without any buffering.
		if n <= f.Len() {
			if d.err = d.decode(f.Slice(0, n)); d.err != nil {
				return 0, d.err
			}
			return n, nil
		}
		// Otherwise we have to buffer the decoded frame.
		if d.scratch.IsZero() {
			d.scratch = frame.Make(f, n, n)
		} else {
			d.scratch = d.scratch.Ensure(n)
		}
		d.buf = d.scratch
		if d.err = d.decode(d.buf); d.err != nil {
			return 0, d.err
		}
	}
	n = frame.Copy(f, d.buf)
	d.buf = d.buf.Slice(n, d.buf.Len())
	return n, nil
}

// decode decodes a batch of column vectors into the provided frame.
// The frame is preallocated and is guaranteed to have enough space
// to decode all of the values.
func (d *decodingReader) decode(f frame.Frame) error {
	for col := 0; col < f.NumOut(); col++ {
		// Gob reuses existing memory when decoding into a non-empty
		// slice. Decode into a fresh slice instead and copy the batch
		// over so that stale rows cannot leak into the output.
		v := reflect.New(reflect.SliceOf(f.Out(col)))
		if err := d.dec.DecodeValue(v); err != nil {
			if err == io.EOF {
				return EOF
			}
			return err
		}
		if got, want := v.Elem().Len(), f.Len(); got != want {
			return errors.E(errors.Integrity, fmt.Errorf("batch length %d does not match frame length %d", got, want))
		}
		reflect.Copy(f.Value(col), v.Elem())
	}
	sum := d.crc.Sum32()
	var decoded uint32
	if err := d.dec.Decode(&decoded); err != nil {
		return err
	}
	if sum != decoded {
		return errors.E(errors.Integrity, fmt.Errorf("computed checksum %x but expected checksum %x", sum, decoded))
	}
	return nil
}

// readerByteReader is used to provide an (invalid) implementation of
// io.ByteReader to gob.Decoder. See comment in NewDecodingReader for
// details.
type readerByteReader struct {
	io.Reader
	io.ByteReader
}
