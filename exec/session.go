// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/http"
	"runtime"
	"sync"

	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/colio"
)

// DefaultMaxLoad is the default machine max load.
const DefaultMaxLoad = 0.95

func init() {
	gob.Register(&Result{})
}

// Session represents an evslice compute session. A session shares a
// binary and executor, and is valid for the run of the binary. A
// session can run multiple evslice functions, allowing for iterative
// computing.
//
// A session is started by the Start method. Some executors may
// launch multiple copies of the binary: these additional binaries
// are called workers and in these, Start does not return.
//
// All functions must be created before Start is called, and must be
// created in a deterministic order. This is provided by default when
// functions are created as part of package initialization.
// Registering toplevel functions this way is both safe and
// encouraged:
//
//	var Computation = evslice.Func(func(..) (slice Slice) {
//		// Build up the computation, parameterized by the function.
//		slice = ...
//		slice = ...
//		return slice
//	})
//
//	// Possibly in another package:
//	func main() {
//		sess := exec.Start()
//		if err := sess.Run(ctx, Computation, args...); err != nil {
//			log.Fatal(err)
//		}
//		// Success!
//	}
type Session struct {
	context.Context
	shutdown func()
	p        int
	maxLoad  float64
	executor Executor
	status   *status.Status

	mu sync.Mutex
	// roots stores all task roots compiled by this session;
	// used for debugging.
	roots map[*Task]struct{}
}

func newSession() *Session {
	return &Session{
		Context: backgroundcontext.Get(),
		roots:   make(map[*Task]struct{}),
	}
}

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-binary executor.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. If any params are provided,
// they are applied to each machine allocated by the session.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Parallelism configures the session with the provided target
// parallelism.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// MaxLoad configures the session with the provided max
// machine load.
func MaxLoad(maxLoad float64) Option {
	if maxLoad <= 0 {
		panic("exec.MaxLoad: maxLoad <= 0")
	}
	return func(s *Session) {
		s.maxLoad = maxLoad
	}
}

// Status configures the session with a status object to which
// run statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// Start creates and starts a new evslice session, configuring it
// according to the provided options. Only one session may be created
// in a single binary invocation. The returned session remains valid
// for the lifetime of the binary. If no executor is configured, the
// session is configured to use the bigmachine executor with local
// machines.
func Start(options ...Option) *Session {
	s := newSession()
	for _, opt := range options {
		opt(s)
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.maxLoad == 0 {
		s.maxLoad = DefaultMaxLoad
	}
	if s.executor == nil {
		s.executor = newBigmachineExecutor(bigmachine.Local)
	}
	if s.status == nil {
		s.status = new(status.Status)
	}
	s.shutdown = s.executor.Start(s)
	return s
}

// Run evaluates the slice returned by the evslice func funcv
// applied to the provided arguments. Tasks are run by the session's
// executor. Run returns when the computation has completed, or else
// on error. It is safe to make concurrent calls to Run; the
// underlying computation will be performed in parallel.
func (s *Session) Run(ctx context.Context, funcv *evslice.FuncValue, args ...interface{}) (*Result, error) {
	return s.run(ctx, 1, funcv, args...)
}

// Must is a version of Run that panics if the computation fails.
func (s *Session) Must(ctx context.Context, funcv *evslice.FuncValue, args ...interface{}) *Result {
	res, err := s.run(ctx, 1, funcv, args...)
	if err != nil {
		log.Panicf("exec.Run: %v", err)
	}
	return res
}

func (s *Session) run(ctx context.Context, calldepth int, funcv *evslice.FuncValue, args ...interface{}) (*Result, error) {
	location := "<unknown>"
	if _, file, line, ok := runtime.Caller(calldepth + 1); ok {
		location = fmt.Sprintf("%s:%d", file, line)
	}
	inv := funcv.Invocation(args...)
	slice := inv.Invoke()
	namer := make(taskNamer)
	tasks, err := compile(namer, inv, slice)
	if err != nil {
		return nil, err
	}
	// taskGroup is managed by Eval.
	taskGroup := s.status.Groupf("run %s [%d]", location, inv.Index)
	s.mu.Lock()
	for _, task := range tasks {
		s.roots[task] = struct{}{}
	}
	s.mu.Unlock()
	return &Result{
		Slice: slice,
		sess:  s,
		inv:   inv,
		tasks: tasks,
	}, Eval(ctx, s.executor, inv, tasks, taskGroup)
}

// Parallelism returns the desired amount of evaluation parallelism.
func (s *Session) Parallelism() int {
	return s.p
}

// MaxLoad returns the maximum load on each allocated machine.
func (s *Session) MaxLoad() float64 {
	return s.maxLoad
}

// Shutdown tears down resources associated with this session.
// It should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// HandleDebug adds handlers for debugging and diagnostic information
// to the provided ServeMux.
func (s *Session) HandleDebug(handler *http.ServeMux) {
	s.executor.HandleDebug(handler)
	handler.HandleFunc("/debug/tasks", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		roots := make([]*Task, 0, len(s.roots))
		for task := range s.roots {
			roots = append(roots, task)
		}
		s.mu.Unlock()
		for _, task := range roots {
			task.WriteGraph(w)
			fmt.Fprintln(w)
		}
	})
}

// A Result is the output of a Slice evaluation. It is the only type
// implementing evslice.Slice that is a legal argument to an
// evslice.Func.
type Result struct {
	evslice.Slice
	inv   evslice.Invocation
	sess  *Session
	tasks []*Task
}

// Scanner returns a scanner for the evaluated slice. If the output
// contains multiple shards, they are scanned sequentially.
func (r *Result) Scanner(ctx context.Context) *colio.Scanner {
	readers := make([]colio.Reader, len(r.tasks))
	for i := range readers {
		readers[i] = r.sess.executor.Reader(ctx, r.tasks[i], 0)
	}
	return &colio.Scanner{
		Type:   r.Slice,
		Reader: colio.MultiReader(readers...),
	}
}
