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

package dataset

import (
	"context"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
)

// Table is a fully materialized columnar table, the backing store of the
// in-memory reader. Small datasets and test fixtures use it directly.
type Table struct {
	Columns []catalog.SchemaColumn

	// One entry per column of the matching kind, keyed by column name.
	Numeric     map[string][]float64
	Categorical map[string][]string
	// Complex data is row-major over the correlation axis, CorrWidth wide.
	Complex   map[string][]complex128
	CorrWidth map[string]int
	// Flagged holds the flag column's per-row booleans.
	Flagged []bool

	rows int
}

// NewTable validates the column data against the schema and derives the
// row count. All populated columns must agree on length.
func NewTable(cols []catalog.SchemaColumn) *Table {
	return &Table{
		Columns:     cols,
		Numeric:     make(map[string][]float64),
		Categorical: make(map[string][]string),
		Complex:     make(map[string][]complex128),
		CorrWidth:   make(map[string]int),
	}
}

// Rows returns the table's row count, deriving it on first use.
func (t *Table) Rows() int {
	if t.rows > 0 {
		return t.rows
	}
	for _, v := range t.Numeric {
		t.rows = len(v)
		return t.rows
	}
	for _, v := range t.Categorical {
		t.rows = len(v)
		return t.rows
	}
	for name, v := range t.Complex {
		if w := t.CorrWidth[name]; w > 0 {
			t.rows = len(v) / w
			return t.rows
		}
	}
	t.rows = len(t.Flagged)
	return t.rows
}

// MemReader serves scans straight out of a Table.
type MemReader struct {
	table *Table
}

var _ Reader = (*MemReader)(nil)

func NewMemReader(t *Table) *MemReader {
	return &MemReader{table: t}
}

func (r *MemReader) Schema() []catalog.SchemaColumn {
	return r.table.Columns
}

func (r *MemReader) NewScan(cols []string, chunkRows int) (Cursor, error) {
	if chunkRows <= 0 {
		return nil, serr.NewInternal("chunkRows must be positive, got %d", chunkRows)
	}
	proj := make([]catalog.SchemaColumn, 0, len(cols))
	for _, name := range cols {
		col, ok := r.columnByName(name)
		if !ok {
			return nil, serr.NewNoSuchColumn(name)
		}
		proj = append(proj, col)
	}
	return &memCursor{table: r.table, proj: proj, chunkRows: chunkRows}, nil
}

func (r *MemReader) columnByName(name string) (catalog.SchemaColumn, bool) {
	for _, col := range r.table.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return catalog.SchemaColumn{}, false
}

type memCursor struct {
	table     *Table
	proj      []catalog.SchemaColumn
	chunkRows int
	offset    int
}

func (c *memCursor) Next(ctx context.Context) (*RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := c.table.Rows()
	if c.offset >= total {
		return nil, nil
	}
	n := c.chunkRows
	if c.offset+n > total {
		n = total - c.offset
	}
	chunk := &RawChunk{
		Offset:      int64(c.offset),
		Rows:        n,
		Numeric:     make(map[string][]float64),
		Categorical: make(map[string][]string),
		Complex:     make(map[string][]complex128),
		CorrWidth:   make(map[string]int),
	}
	lo, hi := c.offset, c.offset+n
	for _, col := range c.proj {
		switch col.Kind {
		case catalog.Numeric:
			chunk.Numeric[col.Name] = c.table.Numeric[col.Name][lo:hi]
		case catalog.Categorical:
			chunk.Categorical[col.Name] = c.table.Categorical[col.Name][lo:hi]
		case catalog.CorrComplex:
			w := c.table.CorrWidth[col.Name]
			chunk.Complex[col.Name] = c.table.Complex[col.Name][lo*w : hi*w]
			chunk.CorrWidth[col.Name] = w
		case catalog.Flag:
			for i := lo; i < hi; i++ {
				if c.table.Flagged[i] {
					if chunk.Flags == nil {
						chunk.Flags = roaring64.New()
					}
					chunk.Flags.Add(uint64(i - lo))
				}
			}
		}
	}
	c.offset = hi
	return chunk, nil
}

func (c *memCursor) Close() error {
	return nil
}
