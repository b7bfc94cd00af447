// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Methist is an evslice demo program that reads a columnar particle
// physics event dataset, fills a histogram of the per-event missing
// transverse energy, and renders it to a PNG.
//
// The dataset is read lazily and in parallel, one task per event
// file. With -distributed, evaluation runs on a bigmachine-managed
// pool of worker processes instead of in-process; the computed
// histogram is identical either way. With -shuffle, the per-shard
// partial histograms are merged on the workers themselves, so
// intermediate data moves worker to worker; otherwise the partials
// are merged by this driver.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/evslice"
	"github.com/grailbio/evslice/events"
	"github.com/grailbio/evslice/exec"
	"github.com/grailbio/evslice/fetch"
	"github.com/grailbio/evslice/hist"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

var metHist = evslice.Func(func(paths []string, table, field string, axis hist.Axis, shuffle bool) evslice.Slice {
	met := events.Read(paths, table, events.F64(field))
	if shuffle {
		return hist.Merged(met, axis)
	}
	return hist.Fill(met, axis)
})

func main() {
	var (
		data        = flag.String("data", "", "event file or prefix under which event files are found")
		manifest    = flag.String("manifest", "", "optional data manifest to stage before reading")
		table       = flag.String("table", "Events", "name of the event table to read")
		field       = flag.String("field", "MET_pt", "float64 event field to histogram")
		bins        = flag.Int("bins", 100, "number of histogram bins")
		lo          = flag.Float64("lo", 0, "histogram lower bound (inclusive)")
		hi          = flag.Float64("hi", 200, "histogram upper bound (exclusive)")
		label       = flag.String("label", "$E_T^{miss}$ [GeV]", "histogram axis label")
		distributed = flag.Bool("distributed", false, "evaluate on a managed worker pool instead of in-process")
		shuffle     = flag.Bool("shuffle", false, "merge partial histograms on the workers (worker-to-worker transfer)")
		parallelism = flag.Int("p", 0, "target parallelism (0 uses the default)")
		out         = flag.String("o", "met.png", "output plot path")
		httpAddr    = flag.String("http", "", "address on which to serve debug and status pages")
		consoleFlag = flag.Bool("console", false, "display task status on the console")
	)
	log.AddFlags()
	flag.Parse()
	if *data == "" {
		fmt.Fprintln(os.Stderr, "usage: methist -data path [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	ctx := context.Background()

	if *manifest != "" {
		m, err := fetch.Load(*manifest)
		if err != nil {
			log.Fatal(err)
		}
		if err := fetch.Ensure(ctx, m); err != nil {
			log.Fatal(err)
		}
	}

	axis, err := hist.NewAxis(*bins, *lo, *hi, *label)
	if err != nil {
		log.Fatal(err)
	}
	paths, err := events.List(ctx, absPath(*data))
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("reading %d event files under %s", len(paths), *data)

	options := []exec.Option{exec.Status(new(status.Status))}
	if *distributed {
		options = append(options, exec.Bigmachine(bigmachine.Local))
	} else {
		options = append(options, exec.Local)
	}
	if *parallelism > 0 {
		options = append(options, exec.Parallelism(*parallelism))
	}
	sess := exec.Start(options...)
	defer sess.Shutdown()
	if *consoleFlag {
		var console status.Reporter
		go console.Go(os.Stdout, sess.Status())
	}
	if *httpAddr != "" {
		sess.HandleDebug(http.DefaultServeMux)
		http.Handle("/debug/status", status.Handler(sess.Status()))
		go func() {
			log.Printf("http status at %s", *httpAddr)
			if err := http.ListenAndServe(*httpAddr, nil); err != nil {
				log.Error.Printf("http.ListenAndServe %s: %v", *httpAddr, err)
			}
		}()
	}

	res, err := sess.Run(ctx, metHist, paths, *table, *field, axis, *shuffle)
	if err != nil {
		log.Fatal(err)
	}
	h, err := hist.CollectMerged(ctx, res.Scanner(ctx), axis)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%s: %d entries, mean %.3f, underflow %d, overflow %d",
		*field, h.Entries, h.Mean(), h.Under, h.Over)
	if err := hist.WritePNG(h, *out); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s", *out)
}

// absPath resolves a local path to an absolute one so that worker
// processes, which may run with a different working directory,
// resolve the same files. Paths carrying a scheme (e.g., s3://) are
// returned untouched.
func absPath(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		log.Fatal(err)
	}
	return abs
}
