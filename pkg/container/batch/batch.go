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

// Package batch holds the columnar chunk container flowing from the scan
// stage to the aggregation stage. A Batch is ephemeral: it lives for one
// chunk and is owned by exactly one stage at a time.
package batch

import (
	"github.com/RoaringBitmap/roaring/roaring64"
)

// Batch is one chunk of rows, already projected to the two axis columns
// and, when grouping is active, the group column's dictionary codes.
type Batch struct {
	// X and Y are the axis values after correlation projection. Both have
	// rowCount entries.
	X []float64
	Y []float64

	// Groups holds one dictionary code per row, nil when the query has no
	// group-by.
	Groups []int32

	// Flags marks rows that carry the flagged bit. Row indexes are batch
	// local. Nil means no row is flagged. The scan stage consumes Flags
	// when it builds the selection vector; a filtered batch has Flags nil.
	Flags *roaring64.Bitmap

	// Offset is the absolute row offset of this chunk in the table.
	Offset int64

	rowCount int
}

// New allocates a batch for n rows. grouped adds the group-code column.
func New(n int, grouped bool) *Batch {
	b := &Batch{
		X: make([]float64, n),
		Y: make([]float64, n),
	}
	if grouped {
		b.Groups = make([]int32, n)
	}
	b.rowCount = n
	return b
}

func (b *Batch) RowCount() int {
	return b.rowCount
}

// SetRowCount truncates the batch to n rows. n must not exceed the
// allocated length.
func (b *Batch) SetRowCount(n int) {
	b.X = b.X[:n]
	b.Y = b.Y[:n]
	if b.Groups != nil {
		b.Groups = b.Groups[:n]
	}
	b.rowCount = n
}

// Shrink keeps only the rows named by sels, in order, compacting the
// columns in place. sels must be sorted ascending. Flags is dropped: the
// selection vector has already accounted for it.
func (b *Batch) Shrink(sels []int64) {
	if len(sels) == b.rowCount {
		b.Flags = nil
		return
	}
	for i, sel := range sels {
		b.X[i] = b.X[sel]
		b.Y[i] = b.Y[sel]
	}
	if b.Groups != nil {
		for i, sel := range sels {
			b.Groups[i] = b.Groups[sel]
		}
	}
	b.Flags = nil
	b.SetRowCount(len(sels))
}
