// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"

	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/frame"
)

// taskBuffer is an in-memory buffer of task output. It has the
// ability to handle multiple partitions, and stores vectors of
// records for efficiency.
//
// taskBuffer layout is: partition, then a list of frames.
type taskBuffer [][]frame.Frame

type taskBufferReader struct {
	q    []frame.Frame
	j, k int
}

func (r *taskBufferReader) Read(ctx context.Context, out frame.Frame) (int, error) {
loop:
	for {
		switch {
		case len(r.q) == r.j:
			return 0, colio.EOF
		case r.q[r.j].Len() == r.k:
			r.j++
			r.k = 0
		default:
			break loop
		}
	}
	buf := r.q[r.j]
	n := out.Len()
	if m := buf.Len() - r.k; m < n {
		n = m
	}
	l := r.k + n
	frame.Copy(out, buf.Slice(r.k, l))
	r.k = l
	return n, nil
}

// Reader returns a Reader for a partition of the taskBuffer.
func (b taskBuffer) Reader(partition int) colio.Reader {
	if len(b) == 0 {
		return colio.EmptyReader()
	}
	return &taskBufferReader{q: b[partition]}
}
