// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTaskState(t *testing.T) {
	task := &Task{Name: TaskName{Op: "test", Shard: 0, NumShard: 1}}
	if got, want := task.State(), TaskInit; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := task.Err(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	task.Set(TaskRunning)
	if got, want := task.State(), TaskRunning; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	task.Error(errors.New("task failed"))
	if got, want := task.State(), TaskErr; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := task.Err().Error(), "task failed"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	task = &Task{}
	task.Set(TaskLost)
	if got, want := task.Err(), ErrTaskLost; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTaskWaitState(t *testing.T) {
	task := &Task{Name: TaskName{Op: "test", Shard: 0, NumShard: 1}}
	donec := make(chan TaskState)
	go func() {
		state, err := task.WaitState(context.Background(), TaskOk)
		if err != nil {
			t.Error(err)
		}
		donec <- state
	}()
	task.Set(TaskWaiting)
	task.Set(TaskRunning)
	select {
	case <-donec:
		t.Fatal("wait returned before state was reached")
	case <-time.After(10 * time.Millisecond):
	}
	task.Set(TaskOk)
	if got, want := <-donec, TaskOk; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTaskWaitCancel(t *testing.T) {
	task := &Task{}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := task.WaitState(ctx, TaskOk)
		errc <- err
	}()
	cancel()
	if got, want := <-errc, context.Canceled; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTaskName(t *testing.T) {
	name := TaskName{Op: "map", Shard: 3, NumShard: 8}
	if got, want := name.String(), "map@8:3"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
