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

package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/dataset"
	"github.com/arpan-52/scribble/pkg/query"
)

func testTable(t *testing.T) (*dataset.Table, *catalog.Catalog) {
	table := dataset.NewTable([]catalog.SchemaColumn{
		{Name: "TIME", Kind: catalog.Numeric},
		{Name: "UVDIST", Kind: catalog.Numeric},
		{Name: "DATA", Kind: catalog.CorrComplex, CorrLabels: []string{"RR", "LL"}},
		{Name: "FIELD", Kind: catalog.Categorical},
		{Name: "FLAG", Kind: catalog.Flag},
	})
	fields := []string{"3C286", "3C286", "J1331", "3C286", "J1331", "J1331"}
	for i := 0; i < 6; i++ {
		table.Numeric["TIME"] = append(table.Numeric["TIME"], float64(i*10))
		table.Numeric["UVDIST"] = append(table.Numeric["UVDIST"], float64(100+i))
		table.Complex["DATA"] = append(table.Complex["DATA"],
			complex(float64(i), 1), complex(1, float64(i)))
		table.Categorical["FIELD"] = append(table.Categorical["FIELD"], fields[i])
		table.Flagged = append(table.Flagged, i == 1)
	}
	table.CorrWidth["DATA"] = 2
	cat, err := catalog.New(table.Columns)
	require.NoError(t, err)
	return table, cat
}

func mustSpec(t *testing.T, cat *catalog.Catalog, raw *query.RawSelection) *query.Spec {
	spec, err := query.Build(cat, raw, query.DefaultLimits)
	require.NoError(t, err)
	return spec
}

func drain(t *testing.T, c *Cursor) (xs, ys []float64, rows int) {
	for {
		bat, err := c.Next(context.Background())
		require.NoError(t, err)
		if bat == nil {
			return xs, ys, rows
		}
		xs = append(xs, bat.X...)
		ys = append(ys, bat.Y...)
		rows += bat.RowCount()
	}
}

func TestScanFlagExclusion(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{X: "TIME", Y: "UVDIST", Width: 16, Height: 16})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 2})

	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	xs, _, rows := drain(t, cur)
	assert.Equal(t, 5, rows)
	assert.NotContains(t, xs, 10.0, "the flagged row's TIME must not appear")
}

func TestScanNumericPredicates(t *testing.T) {
	table, cat := testTable(t)
	cases := []struct {
		op   string
		v, h float64
		want int
	}{
		{op: "<", v: 30, want: 2},        // times 0, 20 (10 is flagged)
		{op: "<=", v: 30, want: 3},       // 0, 20, 30
		{op: ">", v: 30, want: 2},        // 40, 50
		{op: ">=", v: 30, want: 3},       // 30, 40, 50
		{op: "==", v: 40, want: 1},       // 40
		{op: "!=", v: 40, want: 4},       // 0, 20, 30, 50
		{op: "between", v: 20, h: 40, want: 3}, // 20, 30, 40
	}
	for _, tc := range cases {
		spec := mustSpec(t, cat, &query.RawSelection{
			X: "TIME", Y: "UVDIST", Width: 16, Height: 16,
			Filters: []query.RawFilter{{Column: "TIME", Op: tc.op, Value: tc.v, High: tc.h}},
		})
		s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 3})
		cur, err := s.NewCursor()
		require.NoError(t, err)
		_, _, rows := drain(t, cur)
		cur.Close()
		assert.Equal(t, tc.want, rows, "TIME %s %g", tc.op, tc.v)
	}
}

func TestScanCategoricalPredicates(t *testing.T) {
	table, cat := testTable(t)

	spec := mustSpec(t, cat, &query.RawSelection{
		X: "TIME", Y: "UVDIST", Width: 16, Height: 16,
		Filters: []query.RawFilter{{Column: "FIELD", Op: "in", Labels: []string{"J1331"}}},
	})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 2})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	xs, _, rows := drain(t, cur)
	cur.Close()
	assert.Equal(t, 3, rows)
	assert.ElementsMatch(t, []float64{20, 40, 50}, xs)

	spec = mustSpec(t, cat, &query.RawSelection{
		X: "TIME", Y: "UVDIST", Width: 16, Height: 16,
		Filters: []query.RawFilter{{Column: "FIELD", Op: "not-in", Labels: []string{"J1331"}}},
	})
	s = New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 2})
	cur, err = s.NewCursor()
	require.NoError(t, err)
	_, _, rows = drain(t, cur)
	cur.Close()
	assert.Equal(t, 2, rows, "rows 0 and 3; the flagged 3C286 row is gone")
}

func TestScanCorrProjection(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "LL", Component: "imag",
		Width: 16, Height: 16,
	})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 4})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	// LL of row i is (1, i); imag projects i, the flagged row 1 is gone.
	xs, _, _ := drain(t, cur)
	assert.Equal(t, []float64{0, 2, 3, 4, 5}, xs)
}

func TestScanSkipsEmptiedChunks(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{
		X: "TIME", Y: "UVDIST", Width: 16, Height: 16,
		Filters: []query.RawFilter{{Column: "TIME", Op: ">=", Value: 40}},
	})
	// Chunk size 2 leaves the first two chunks fully filtered out; Next
	// must pass over them and return the surviving batch directly.
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 2})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	bat, err := cur.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bat)
	assert.Equal(t, 2, bat.RowCount())

	bat, err = cur.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, bat)
}

func TestScanBatchCompaction(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{
		X: "TIME", Y: "UVDIST", GroupBy: "FIELD", Width: 16, Height: 16,
		Filters: []query.RawFilter{{Column: "TIME", Op: "<", Value: 30}},
	})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 6})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	bat, err := cur.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bat)
	// Times 0 and 20 survive (10 is flagged); the batch arrives compacted
	// with the flag bitmap consumed.
	assert.Equal(t, 2, bat.RowCount())
	assert.Equal(t, []float64{0, 20}, bat.X)
	assert.Nil(t, bat.Flags)
	assert.Len(t, bat.Groups, 2)
}

func TestScanGroupDictOnlySeeSurvivors(t *testing.T) {
	table := dataset.NewTable([]catalog.SchemaColumn{
		{Name: "TIME", Kind: catalog.Numeric},
		{Name: "FIELD", Kind: catalog.Categorical},
		{Name: "FLAG", Kind: catalog.Flag},
	})
	// The "trip" field only ever appears on flagged rows; it must not
	// claim a dictionary code.
	fields := []string{"3C286", "trip", "J1331", "trip"}
	for i := 0; i < 4; i++ {
		table.Numeric["TIME"] = append(table.Numeric["TIME"], float64(i))
		table.Categorical["FIELD"] = append(table.Categorical["FIELD"], fields[i])
		table.Flagged = append(table.Flagged, fields[i] == "trip")
	}
	cat, err := catalog.New(table.Columns)
	require.NoError(t, err)

	spec := mustSpec(t, cat, &query.RawSelection{
		X: "TIME", Y: "TIME", GroupBy: "FIELD", Width: 16, Height: 16,
	})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 2})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()
	drain(t, cur)

	assert.Equal(t, []string{"3C286", "J1331"}, s.GroupLabels())
}

func TestScanGroupDictStableAcrossCursors(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{
		X: "TIME", Y: "UVDIST", GroupBy: "FIELD", Width: 16, Height: 16,
	})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 3})

	for pass := 0; pass < 2; pass++ {
		cur, err := s.NewCursor()
		require.NoError(t, err)
		drain(t, cur)
		cur.Close()
		assert.Equal(t, []string{"3C286", "J1331"}, s.GroupLabels(), "pass %d", pass)
	}
}

// transientReader fails a fixed number of reads before recovering.
type transientReader struct {
	inner    dataset.Reader
	failures int
}

func (r *transientReader) Schema() []catalog.SchemaColumn { return r.inner.Schema() }

func (r *transientReader) NewScan(cols []string, chunkRows int) (dataset.Cursor, error) {
	cur, err := r.inner.NewScan(cols, chunkRows)
	if err != nil {
		return nil, err
	}
	return &transientCursor{inner: cur, failures: r.failures}, nil
}

type transientCursor struct {
	inner    dataset.Cursor
	failures int
}

func (c *transientCursor) Next(ctx context.Context) (*dataset.RawChunk, error) {
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("transient io")
	}
	return c.inner.Next(ctx)
}

func (c *transientCursor) Close() error { return c.inner.Close() }

func TestScanRetriesTransientFailure(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{X: "TIME", Y: "UVDIST", Width: 16, Height: 16})

	reader := &transientReader{inner: dataset.NewMemReader(table), failures: 2}
	s := New(spec, reader, cat.FlagColumn(), Options{ChunkRows: 8, Retries: 2})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	_, _, rows := drain(t, cur)
	assert.Equal(t, 5, rows)
}

func TestScanErrorCarriesOffset(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{X: "TIME", Y: "UVDIST", Width: 16, Height: 16})

	reader := &transientReader{inner: dataset.NewMemReader(table), failures: 100}
	s := New(spec, reader, cat.FlagColumn(), Options{ChunkRows: 4, Retries: 1})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	_, err = cur.Next(context.Background())
	require.Error(t, err)
	assert.True(t, serr.IsCode(err, serr.ErrScan))
}

func TestScanCancellation(t *testing.T) {
	table, cat := testTable(t)
	spec := mustSpec(t, cat, &query.RawSelection{X: "TIME", Y: "UVDIST", Width: 16, Height: 16})
	s := New(spec, dataset.NewMemReader(table), cat.FlagColumn(), Options{ChunkRows: 2})
	cur, err := s.NewCursor()
	require.NoError(t, err)
	defer cur.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cur.Next(ctx)
	assert.True(t, serr.IsCode(err, serr.ErrCancelled))
}
