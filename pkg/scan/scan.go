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

// Package scan pulls projected chunks from the table reader and turns
// them into filtered batches: flag exclusion and every predicate applied,
// axis columns projected to scalars. A scan restarts only from row zero;
// opening a new cursor on the same Scanner replays the table with a
// stable group dictionary.
package scan

import (
	"context"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/container/batch"
	"github.com/arpan-52/scribble/pkg/dataset"
	"github.com/arpan-52/scribble/pkg/logutil"
	"github.com/arpan-52/scribble/pkg/query"
)

// Options tune one scanner.
type Options struct {
	// ChunkRows bounds the rows requested from the reader per chunk.
	ChunkRows int
	// Retries is the number of transient chunk-read retries before the
	// scan is declared failed.
	Retries int
}

// Scanner binds a validated spec to a table reader. One Scanner belongs
// to one plot request.
type Scanner struct {
	spec    *query.Spec
	reader  dataset.Reader
	flagCol string
	opts    Options

	// group dictionary, stable across cursors of this request. Mutated
	// only by the goroutine driving a cursor; cursors of one scanner must
	// not run concurrently.
	groupLabels []string
	groupCodes  map[string]int32
}

func New(spec *query.Spec, reader dataset.Reader, flagCol string, opts Options) *Scanner {
	if opts.ChunkRows <= 0 {
		opts.ChunkRows = 1 << 16
	}
	s := &Scanner{
		spec:    spec,
		reader:  reader,
		flagCol: flagCol,
		opts:    opts,
	}
	if spec.GroupBy != nil {
		s.groupCodes = make(map[string]int32)
	}
	return s
}

// GroupLabels returns the category labels observed so far, in dictionary
// code order.
func (s *Scanner) GroupLabels() []string {
	return s.groupLabels
}

// NewCursor starts a fresh pass over the table.
func (s *Scanner) NewCursor() (*Cursor, error) {
	cols := s.spec.Columns(s.flagCol)
	raw, err := s.reader.NewScan(cols, s.opts.ChunkRows)
	if err != nil {
		return nil, err
	}
	return &Cursor{scanner: s, raw: raw}, nil
}

// Cursor yields filtered batches. Next returns nil at end of table.
type Cursor struct {
	scanner *Scanner
	raw     dataset.Cursor
	offset  int64
	reads   int
}

// ChunksRead counts the chunks read successfully so far, including ones
// whose rows were all filtered away. It distinguishes "the reader failed
// immediately" from "the reader failed after delivering data".
func (c *Cursor) ChunksRead() int {
	return c.reads
}

// Next reads chunks until one survives filtering or the table ends.
// Chunks whose rows are all eliminated are passed over silently. The
// context is the cancellation checkpoint: each chunk read observes it.
func (c *Cursor) Next(ctx context.Context) (*batch.Batch, error) {
	for {
		chunk, err := c.readChunk(ctx)
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			return nil, nil
		}
		c.reads++
		c.offset = chunk.Offset + int64(chunk.Rows)
		bat := c.project(chunk)
		if bat.RowCount() > 0 {
			return bat, nil
		}
	}
}

// readChunk is the retry boundary: transient reader failures are retried
// up to the configured count, then surface as a ScanError carrying the
// chunk offset.
func (c *Cursor) readChunk(ctx context.Context) (*dataset.RawChunk, error) {
	var lastErr error
	for attempt := 0; attempt <= c.scanner.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, serr.NewCancelled()
		}
		chunk, err := c.raw.Next(ctx)
		if err == nil {
			return chunk, nil
		}
		if ctx.Err() != nil {
			return nil, serr.NewCancelled()
		}
		lastErr = err
		if attempt < c.scanner.opts.Retries {
			logutil.Warnf("retrying chunk read at offset %d: %v", c.offset, err)
		}
	}
	return nil, serr.NewScan(c.offset, lastErr)
}

// project materializes the full chunk into a batch, builds the selection
// vector from the batch's flag bitmap and the predicates, then compacts
// the batch in place with Shrink.
func (c *Cursor) project(chunk *dataset.RawChunk) *batch.Batch {
	spec := c.scanner.spec
	n := chunk.Rows

	bat := batch.New(n, spec.GroupBy != nil)
	bat.Offset = chunk.Offset
	bat.Flags = chunk.Flags
	projectAxis(spec.AxisX, chunk, bat.X)
	projectAxis(spec.AxisY, chunk, bat.Y)

	sels := c.selection(bat, chunk)
	bat.Shrink(sels)

	// Group codes are assigned after compaction so the dictionary only
	// ever sees surviving rows.
	if spec.GroupBy != nil {
		labels := chunk.Categorical[spec.GroupBy.Name]
		for i, sel := range sels {
			bat.Groups[i] = c.scanner.groupCode(labels[sel])
		}
	}
	return bat
}

// selection builds the vector of surviving row indexes: flag exclusion
// first, then every predicate narrows it in place.
func (c *Cursor) selection(bat *batch.Batch, chunk *dataset.RawChunk) []int64 {
	spec := c.scanner.spec
	n := bat.RowCount()

	sels := make([]int64, 0, n)
	if spec.ExcludeFlagged && bat.Flags != nil {
		for i := 0; i < n; i++ {
			if !bat.Flags.Contains(uint64(i)) {
				sels = append(sels, int64(i))
			}
		}
	} else {
		for i := 0; i < n; i++ {
			sels = append(sels, int64(i))
		}
	}

	for _, p := range spec.Predicates {
		if len(sels) == 0 {
			break
		}
		switch p.Column.Kind {
		case catalog.Numeric:
			sels = filterFloat64(chunk.Numeric[p.Column.Name], p, sels)
		case catalog.Categorical:
			sels = filterLabels(chunk.Categorical[p.Column.Name], p, sels)
		}
	}
	return sels
}

func projectAxis(ref query.ColumnRef, chunk *dataset.RawChunk, dst []float64) {
	if ref.Column.Kind == catalog.Numeric {
		copy(dst, chunk.Numeric[ref.Column.Name])
		return
	}
	vals := chunk.Complex[ref.Column.Name]
	w := chunk.CorrWidth[ref.Column.Name]
	for i := range dst {
		dst[i] = ref.Component.Apply(vals[i*w+ref.CorrIndex])
	}
}

func (s *Scanner) groupCode(label string) int32 {
	if code, ok := s.groupCodes[label]; ok {
		return code
	}
	code := int32(len(s.groupLabels))
	s.groupLabels = append(s.groupLabels, label)
	s.groupCodes[label] = code
	return code
}

func (c *Cursor) Close() error {
	return c.raw.Close()
}
