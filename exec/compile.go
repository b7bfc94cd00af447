// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/colio"
	"github.com/grailbio/evslice/frame"
)

// pipeline returns the sequence of slices that may be pipelined
// starting from slice. Slices that do not have shuffle dependencies
// may be pipelined together.
func pipeline(slice evslice.Slice) (slices []evslice.Slice) {
	for {
		// Stop at *Results, so we can re-use previous tasks.
		if _, ok := slice.(*Result); ok {
			return
		}
		slices = append(slices, slice)
		if slice.NumDep() != 1 {
			return
		}
		dep := slice.Dep(0)
		if dep.Shuffle {
			return
		}
		slice = dep.Slice
	}
}

// compile compiles the provided slice into a set of task graphs,
// each representing the computation for one shard of the slice. The
// slice is produced by the provided invocation. Compile coalesces
// slice operations that can be pipelined into single tasks, creating
// wide dependencies only at shuffle boundaries. The provided namer
// must mint names that are unique to the session. The order in which
// the namer is invoked is guaranteed to be deterministic.
func compile(namer taskNamer, inv evslice.Invocation, slice evslice.Slice) ([]*Task, error) {
	// Reuse tasks from a previous invocation.
	if result, ok := slice.(*Result); ok {
		return result.tasks, nil
	}
	// Pipeline slices and create a task for each underlying shard,
	// pipelining the eligible computations.
	tasks := make([]*Task, slice.NumShard())
	slices := pipeline(slice)
	ops := make([]string, 0, len(slices)+1)
	ops = append(ops, fmt.Sprintf("inv%x", inv.Index))
	for i := len(slices) - 1; i >= 0; i-- {
		ops = append(ops, slices[i].Op())
	}
	opName := namer.New(strings.Join(ops, "_"))
	for i := range tasks {
		tasks[i] = &Task{
			Type:         slices[0],
			Name:         TaskName{Op: opName, Shard: i, NumShard: len(tasks)},
			Invocation:   inv,
			NumPartition: 1,
		}
	}
	// Pipeline execution, folding multiple frame operations
	// into a single task by composing their readers.
	for i := len(slices) - 1; i >= 0; i-- {
		for shard := range tasks {
			var (
				shard  = shard
				reader = slices[i].Reader
				prev   = tasks[shard].Do
			)
			if prev == nil {
				// The first operation reads the input directly.
				tasks[shard].Do = func(readers []colio.Reader) colio.Reader {
					return reader(shard, readers)
				}
			} else {
				// Subsequent operations read the previous operation's output.
				tasks[shard].Do = func(readers []colio.Reader) colio.Reader {
					return reader(shard, []colio.Reader{prev(readers)})
				}
			}
		}
	}
	// Now capture the dependencies for this task set;
	// they are encoded in the last slice.
	lastSlice := slices[len(slices)-1]
	for i := 0; i < lastSlice.NumDep(); i++ {
		dep := lastSlice.Dep(i)
		deptasks, err := compile(namer, inv, dep.Slice)
		if err != nil {
			return nil, err
		}
		// These needn't be shuffle deps, for example if we terminated
		// pipelining early because we're reusing a result.
		if !dep.Shuffle {
			if len(tasks) != len(deptasks) {
				log.Panicf("tasks:%d deptasks:%d", len(tasks), len(deptasks))
			}
			for shard := range tasks {
				tasks[shard].Deps = append(tasks[shard].Deps,
					TaskDep{[]*Task{deptasks[shard]}, 0})
			}
			continue
		}
		// Partition the dependency's output by the hash of its first
		// column so that each shard of this task set sees all rows
		// sharing a key.
		for _, task := range deptasks {
			task.NumPartition = slice.NumShard()
			task.Hasher = frame.NewHasher(dep.Slice)
		}
		// Each shard reads a different partition from all of the
		// dependency's shards.
		for partition := range tasks {
			tasks[partition].Deps = append(tasks[partition].Deps,
				TaskDep{deptasks, partition})
		}
	}
	return tasks, nil
}

type taskNamer map[string]int

func (n taskNamer) New(name string) string {
	c := n[name]
	n[name]++
	if c == 0 {
		return name
	}
	return fmt.Sprintf("%s%d", name, c)
}
