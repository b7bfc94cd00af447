// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package evslice implements a deferred, sharded data processing
// model for columnar event data, in the style of distributed
// dataflow systems. Computations are expressed as transformations of
// Slices: sharded, typed collections of rows. Slices are lazy; they
// describe a computation which is performed only when a slice is run
// by a Session (package exec). Sessions may run slices on the local
// machine or distribute them across a cluster of transient worker
// machines.
//
// Computations are expressed as Funcs so that they may be named and
// invoked across process boundaries:
//
//	var metPt = evslice.Func(func(paths []string) evslice.Slice {
//		slice := events.Read(paths, "Events", events.F64("MET_pt"))
//		return evslice.Map(slice, func(pt float64) (bucket int, count int) {
//			return int(pt), 1
//		})
//	})
//
// The computation is then run by a session:
//
//	sess := exec.Start(exec.Local)
//	defer sess.Shutdown()
//	if _, err := sess.Run(ctx, metPt, paths); err != nil {
//		log.Fatal(err)
//	}
//
// Slices are transformed by the operators in this package (Map,
// Filter, Fold, Head, Scan); inputs are constructed by Const,
// ReaderFunc, or by readers of external data such as package events.
package evslice
