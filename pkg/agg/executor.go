// Copyright 2026 The Scribble Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package agg

import (
	"context"
	"math"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/logutil"
	"github.com/arpan-52/scribble/pkg/query"
	"github.com/arpan-52/scribble/pkg/scan"
)

// ExecOptions tune one aggregation run.
type ExecOptions struct {
	// Workers bounds the binning pool; 0 picks GOMAXPROCS.
	Workers int
	// MaxCategories caps the distinct group-by layers before folding into
	// the overflow layer.
	MaxCategories int
}

// Result is a finished (or best-effort partial) aggregation.
type Result struct {
	Grid *Grid
	// GroupLabels holds the observed category labels in layer order,
	// truncated at the cap; the overflow layer has no label here.
	GroupLabels []string
	// LegendTruncated is set when more categories were observed than the
	// cap allows.
	LegendTruncated bool
	Warnings        []serr.Warning
	// Partial is set when the scan failed mid-stream and the grid only
	// reflects the chunks read before the failure. The scan error is
	// recorded in ScanErr.
	Partial bool
	ScanErr error
}

// Run executes the fan-out/reduce pipeline: chunks are pulled from the
// scanner and binned by a bounded worker pool, each worker into a private
// partial grid; partials merge into the final grid under a single lock.
// Cancellation is cooperative at chunk boundaries: a cancelled run
// publishes nothing.
func Run(ctx context.Context, spec *query.Spec, scanner *scan.Scanner, opts ExecOptions) (*Result, error) {
	bounds := spec.Bounds
	if bounds == nil {
		// Two-pass mode: discover the bounding box first, at the cost of
		// reading the table twice.
		discovered, err := discoverBounds(ctx, scanner)
		if err != nil {
			return nil, err
		}
		bounds = discovered
	}

	var final *Grid
	if spec.GroupBy != nil {
		final = NewGroupedGrid(spec.Width, spec.Height, *bounds, opts.MaxCategories)
	} else {
		final = NewGrid(spec.Width, spec.Height, *bounds)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v interface{}) {
		logutil.Error("binning worker panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, serr.NewInternal("worker pool: %s", err)
	}
	defer pool.Release()

	// Each in-flight task owns one partial grid from the free list and
	// returns it when done, so at most `workers` partials exist.
	partials := make(chan *Grid, workers)
	for i := 0; i < workers; i++ {
		partials <- final.NewLike()
	}

	cursor, err := scanner.NewCursor()
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var (
		wg      sync.WaitGroup
		scanErr error
	)
	for {
		bat, err := cursor.Next(ctx)
		if err != nil {
			if serr.IsCode(err, serr.ErrCancelled) {
				wg.Wait()
				return nil, err
			}
			scanErr = err
			break
		}
		if bat == nil {
			break
		}
		wg.Add(1)
		b := bat
		if perr := pool.Submit(func() {
			defer wg.Done()
			partial := <-partials
			partial.Accumulate(b)
			partials <- partial
		}); perr != nil {
			wg.Done()
			wg.Wait()
			return nil, serr.NewInternal("submit binning task: %s", perr)
		}
	}
	wg.Wait()

	// Single merge point: fold every partial into the final grid.
	for i := 0; i < workers; i++ {
		if err := final.Merge(<-partials); err != nil {
			return nil, err
		}
	}

	// Chunks that read fine but filtered to empty still count as
	// succeeded: an all-zero partial grid is a result, a reader that never
	// delivered anything is not.
	if scanErr != nil && cursor.ChunksRead() == 0 {
		return nil, scanErr
	}

	res := &Result{Grid: final, ScanErr: scanErr, Partial: scanErr != nil}
	if res.Partial {
		res.Warnings = append(res.Warnings, serr.NewWarning(serr.WarnPartialResult,
			"scan failed mid-stream, plot reflects %d chunks: %s", cursor.ChunksRead(), scanErr))
	}
	if spec.GroupBy != nil {
		labels := scanner.GroupLabels()
		if len(labels) > opts.MaxCategories {
			res.LegendTruncated = true
			res.Warnings = append(res.Warnings, serr.NewWarning(serr.WarnCategoryOverflow,
				"%d categories exceed the cap of %d, excess shown as \"other\"",
				len(labels), opts.MaxCategories))
			labels = labels[:opts.MaxCategories]
		}
		res.GroupLabels = append([]string(nil), labels...)
	}
	if final.Clamped() {
		res.Warnings = append(res.Warnings, serr.NewWarning(serr.WarnClamp,
			"values outside the bounding box were clamped to edge bins"))
	}
	return res, nil
}

// discoverBounds is the first pass of two-pass mode: a full scan that
// only tracks the min and max of both axes.
func discoverBounds(ctx context.Context, scanner *scan.Scanner) (*query.Bounds, error) {
	cursor, err := scanner.NewCursor()
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	b := query.Bounds{
		Xmin: math.Inf(1), Xmax: math.Inf(-1),
		Ymin: math.Inf(1), Ymax: math.Inf(-1),
	}
	rows := 0
	for {
		bat, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if bat == nil {
			break
		}
		rows += bat.RowCount()
		minMax(bat.X, &b.Xmin, &b.Xmax)
		minMax(bat.Y, &b.Ymin, &b.Ymax)
	}
	if rows == 0 {
		// No surviving rows: any box yields the required all-zero grid.
		return &query.Bounds{}, nil
	}
	return &b, nil
}

func minMax(vals []float64, lo, hi *float64) {
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if v < *lo {
			*lo = v
		}
		if v > *hi {
			*hi = v
		}
	}
}
