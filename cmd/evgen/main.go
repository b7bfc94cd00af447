// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Evgen writes synthetic columnar event files for demos and tests.
// Each event carries a run, luminosity block, and event number
// together with a missing transverse energy magnitude and azimuthal
// angle. The energy components are drawn from independent normal
// distributions, so the magnitude is Rayleigh distributed. Output is
// deterministic for a fixed seed.
package main

import (
	"context"
	"flag"
	"math"
	"math/rand"

	"github.com/grailbio/base/log"
	"github.com/grailbio/evslice/events"
	"github.com/grailbio/evslice/frame"
)

var fields = []events.Field{
	{Name: "run", Kind: events.Int64},
	{Name: "luminosityBlock", Kind: events.Int64},
	{Name: "event", Kind: events.Int64},
	{Name: "MET_pt", Kind: events.Float64},
	{Name: "MET_phi", Kind: events.Float64},
}

func main() {
	var (
		prefix  = flag.String("o", "events", "output path prefix")
		dataset = flag.String("dataset", "synthetic", "dataset name stored in the file metadata")
		table   = flag.String("table", "Events", "table name stored in the file metadata")
		nshard  = flag.Int("shards", 4, "number of event files to write")
		n       = flag.Int("n", 100000, "number of events per file")
		sigma   = flag.Float64("sigma", 20, "standard deviation of each transverse energy component")
		seed    = flag.Int64("seed", 1, "random seed")
	)
	log.AddFlags()
	flag.Parse()
	ctx := context.Background()
	meta := events.Meta{Dataset: *dataset, Table: *table, Fields: fields}
	for shard := 0; shard < *nshard; shard++ {
		path := events.ShardPath(*prefix, shard, *nshard)
		if err := write(ctx, path, meta, shard, *n, *sigma, *seed); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %d events to %s", *n, path)
	}
}

const batchSize = 4096

func write(ctx context.Context, path string, meta events.Meta, shard, n int, sigma float64, seed int64) error {
	w, err := events.Create(ctx, path, meta)
	if err != nil {
		return err
	}
	r := rand.New(rand.NewSource(seed + int64(shard)))
	buf := frame.Make(meta.Type(), batchSize, batchSize)
	var (
		runs   = buf.Value(0).Interface().([]int64)
		lumis  = buf.Value(1).Interface().([]int64)
		evs    = buf.Value(2).Interface().([]int64)
		pts    = buf.Value(3).Interface().([]float64)
		phis   = buf.Value(4).Interface().([]float64)
		number int64
	)
	for n > 0 {
		m := batchSize
		if n < m {
			m = n
		}
		for i := 0; i < m; i++ {
			px := r.NormFloat64() * sigma
			py := r.NormFloat64() * sigma
			runs[i] = 1
			lumis[i] = number/1000 + 1
			evs[i] = int64(shard)<<32 | number
			pts[i] = math.Hypot(px, py)
			phis[i] = math.Atan2(py, px)
			number++
		}
		if err := w.Write(buf.Slice(0, m)); err != nil {
			w.Close(ctx)
			return err
		}
		n -= m
	}
	return w.Close(ctx)
}
