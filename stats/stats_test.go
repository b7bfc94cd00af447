// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"sync"
	"testing"
)

func TestMap(t *testing.T) {
	m := NewMap()
	m.Int("read").Add(3)
	m.Int("read").Add(4)
	m.Int("write").Set(10)
	vals := make(Values)
	m.AddAll(vals)
	if got, want := vals["read"], int64(7); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vals["write"], int64(10); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := vals.String(), "read:7 write:10"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestMapConcurrent(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Int("n").Add(1)
			}
		}()
	}
	wg.Wait()
	if got, want := m.Int("n").Get(), int64(10000); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNilInt(t *testing.T) {
	var v *Int
	v.Add(1)
	v.Set(2)
	if got, want := v.Get(), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
