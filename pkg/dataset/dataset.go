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

// Package dataset is the boundary to the columnar table storage. The
// pipeline only needs chunked, column-projected, restart-from-zero scans;
// anything that satisfies Reader can back a plot.
package dataset

import (
	"context"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/arpan-52/scribble/pkg/catalog"
)

// RawChunk is one projected slice of the table, unfiltered. Only the
// requested columns are populated.
type RawChunk struct {
	// Offset is the absolute row offset of the chunk's first row.
	Offset int64
	// Rows is the number of rows in the chunk.
	Rows int

	// Numeric holds one float64 slice per requested numeric column.
	Numeric map[string][]float64
	// Categorical holds one label slice per requested categorical column.
	Categorical map[string][]string
	// Complex holds correlation-indexed values laid out row-major:
	// value(row, corr) = Complex[col][row*CorrWidth[col]+corr].
	Complex map[string][]complex128
	// CorrWidth is the correlation count per complex column.
	CorrWidth map[string]int

	// Flags marks flagged rows by chunk-local index. Nil when the flag
	// column was not requested or no row is flagged.
	Flags *roaring64.Bitmap
}

// Cursor walks one scan. Next returns nil at end of table.
type Cursor interface {
	Next(ctx context.Context) (*RawChunk, error)
	Close() error
}

// Reader is the external table collaborator. Implementations must allow
// any number of concurrent scans and must always start from row zero; the
// pipeline never seeks.
type Reader interface {
	// Schema lists the table's columns.
	Schema() []catalog.SchemaColumn
	// NewScan opens a projected chunked scan over cols. chunkRows bounds
	// the rows per chunk.
	NewScan(cols []string, chunkRows int) (Cursor, error)
}
