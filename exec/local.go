// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/frame"
)

// localExecutor is an executor that runs tasks in-process in
// separate goroutines. All output is buffered in memory.
type localExecutor struct {
	mu      sync.Mutex
	buffers map[*Task]taskBuffer
	limiter *limiter.Limiter
	sess    *Session
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{
		buffers: make(map[*Task]taskBuffer),
		limiter: limiter.New(),
	}
}

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	l.limiter.Release(sess.p)
	return
}

func (l *localExecutor) Runnable(task *Task) {
	task.Set(TaskWaiting)
	go l.run(task)
}

func (l *localExecutor) run(task *Task) {
	ctx := backgroundcontext.Get()
	if err := l.limiter.Acquire(ctx, 1); err != nil {
		// The only errors we should encounter here are context errors,
		// in which case there is no more work to do.
		if err != context.Canceled && err != context.DeadlineExceeded {
			log.Panicf("exec.Local: unexpected error: %v", err)
		}
		return
	}
	defer l.limiter.Release(1)
	in := make([]colio.Reader, 0, len(task.Deps))
	for _, dep := range task.Deps {
		readers := make([]colio.Reader, len(dep.Tasks))
		for j, deptask := range dep.Tasks {
			readers[j] = l.Reader(ctx, deptask, dep.Partition)
		}
		in = append(in, colio.MultiReader(readers...))
	}
	task.Set(TaskRunning)

	// Start execution, then place output in a task buffer.
	out := task.Do(in)
	buf, err := bufferOutput(ctx, task, out)
	task.Lock()
	if err == nil {
		l.mu.Lock()
		l.buffers[task] = buf
		l.mu.Unlock()
		task.state = TaskOk
	} else {
		task.state = TaskErr
		task.err = err
	}
	task.Broadcast()
	task.Unlock()
}

func (l *localExecutor) Reader(_ context.Context, task *Task, partition int) colio.Reader {
	l.mu.Lock()
	buf := l.buffers[task]
	l.mu.Unlock()
	return buf.Reader(partition)
}

func (*localExecutor) HandleDebug(*http.ServeMux) {}

// bufferOutput reads the output from reader and places it in a task
// buffer. If the output is partitioned, bufferOutput invokes the
// task's hasher in order to determine the correct partition for each
// row.
func bufferOutput(ctx context.Context, task *Task, out colio.Reader) (buf taskBuffer, err error) {
	if task.NumOut() == 0 {
		_, err = out.Read(ctx, frame.Empty)
		if err == colio.EOF {
			err = nil
		}
		return nil, err
	}
	buf = make(taskBuffer, task.NumPartition)
	var (
		in   frame.Frame
		sums []uint32
	)
	defer func() {
		if e := recover(); e != nil {
			stack := debug.Stack()
			err = fmt.Errorf("panic while evaluating slice: %v\n%s", e, string(stack))
			err = errors.E(err, errors.Fatal)
		}
	}()
	for {
		if in.IsZero() {
			in = frame.Make(task, defaultChunksize)
		}
		n, err := out.Read(ctx, in)
		if err != nil && err != colio.EOF {
			return nil, err
		}
		// If the output needs to be partitioned, we ask the task's
		// hasher to assign partitions to each input element, and then
		// append the elements in their respective partitions. In this
		// case, we just maintain buffer slices of defaultChunksize each.
		if task.NumPartition > 1 {
			if len(sums) < n {
				sums = make([]uint32, n)
			}
			task.Hasher.HashFrame(in.Slice(0, n), sums)
			for i := 0; i < n; i++ {
				p := int(sums[i]) % task.NumPartition
				// If we don't yet have a buffer or the current one is at
				// capacity, create a new one.
				m := len(buf[p])
				if m == 0 || buf[p][m-1].Cap() == buf[p][m-1].Len() {
					buf[p] = append(buf[p], frame.Make(task, 0, defaultChunksize))
					m++
				}
				buf[p][m-1] = frame.Append(buf[p][m-1], in.Slice(i, i+1))
			}
		} else if n > 0 {
			in = in.Slice(0, n)
			buf[0] = append(buf[0], in)
			in = nil
		}
		if err == colio.EOF {
			break
		}
	}
	return buf, nil
}
