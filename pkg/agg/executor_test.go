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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/dataset"
	"github.com/arpan-52/scribble/pkg/query"
	"github.com/arpan-52/scribble/pkg/scan"
)

// fixtureTable is the ten-row observation slice used across the
// executor tests: rows 2, 5 and 7 are flagged, DATA[XX] amplitude of
// row i is i+1, TIME of row i is i.
func fixtureTable() *dataset.Table {
	t := dataset.NewTable([]catalog.SchemaColumn{
		{Name: "TIME", Kind: catalog.Numeric},
		{Name: "DATA", Kind: catalog.CorrComplex, CorrLabels: []string{"XX", "YY"}},
		{Name: "ANTENNA", Kind: catalog.Categorical},
		{Name: "FLAG", Kind: catalog.Flag},
	})
	antennas := []string{"ea01", "ea02", "ea03", "ea04", "ea05"}
	for i := 0; i < 10; i++ {
		t.Numeric["TIME"] = append(t.Numeric["TIME"], float64(i))
		// XX then YY per row.
		t.Complex["DATA"] = append(t.Complex["DATA"],
			complex(float64(i+1), 0), complex(0, float64(i+1)))
		t.Categorical["ANTENNA"] = append(t.Categorical["ANTENNA"], antennas[i%len(antennas)])
		t.Flagged = append(t.Flagged, i == 2 || i == 5 || i == 7)
	}
	t.CorrWidth["DATA"] = 2
	return t
}

func fixtureCatalog(t *testing.T, table *dataset.Table) *catalog.Catalog {
	cat, err := catalog.New(table.Columns)
	require.NoError(t, err)
	return cat
}

func buildSpec(t *testing.T, cat *catalog.Catalog, raw *query.RawSelection) *query.Spec {
	spec, err := query.Build(cat, raw, query.DefaultLimits)
	require.NoError(t, err)
	return spec
}

// unflagged amplitudes span [1, 10], unflagged times span [0, 9].
func fixtureBounds() *query.Bounds {
	return &query.Bounds{Xmin: 1, Xmax: 10, Ymin: 0, Ymax: 9}
}

func TestRunExcludesFlaggedRows(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Width: 4, Height: 4,
		Bounds: fixtureBounds(),
	})
	scanner := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 3})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Grid.Total(), "three flagged rows of ten must not bin")
	assert.False(t, res.Partial)
	assert.False(t, res.Grid.Clamped(), "bounds span the unflagged rows exactly")
}

func TestRunEmptyFilterListSameAsNone(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Filters: []query.RawFilter{},
		Width:   4, Height: 4,
		Bounds: fixtureBounds(),
	})
	scanner := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 4})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Grid.Total(), "flag exclusion alone already applied")
}

func TestRunFilterEliminatingEverything(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Filters: []query.RawFilter{{Column: "TIME", Op: ">", Value: 100}},
		Width:   4, Height: 4,
		Bounds: fixtureBounds(),
	})
	scanner := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 4})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err, "an empty result is a valid all-zero grid, not an error")
	assert.Zero(t, res.Grid.Total())
}

func TestRunTwoPassBoundsDiscovery(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Width: 8, Height: 8,
	})
	require.Nil(t, spec.Bounds)
	scanner := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 3})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Grid.Total())
	assert.Equal(t, *fixtureBounds(), res.Grid.Bounds(), "discovered bounds span the surviving rows")
}

func TestRunGroupedWithOverflow(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX", GroupBy: "ANTENNA",
		Width: 4, Height: 4,
		Bounds: fixtureBounds(),
	})
	scanner := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 4})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 1, MaxCategories: 2})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Grid.Total())
	assert.True(t, res.LegendTruncated)
	assert.Len(t, res.GroupLabels, 2)
	var kinds []serr.WarningKind
	for _, w := range res.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Contains(t, kinds, serr.WarnCategoryOverflow)
	// Rows in excess categories equal total minus the capped layers.
	excess := res.Grid.Total() - res.Grid.LayerTotal(0) - res.Grid.LayerTotal(1)
	assert.Equal(t, excess, res.Grid.OverflowTotal())
}

func TestRunCancelledPublishesNothing(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Width: 4, Height: 4,
		Bounds: fixtureBounds(),
	})
	scanner := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	assert.Nil(t, res)
	assert.True(t, serr.IsCode(err, serr.ErrCancelled))

	// A later, unrelated run over the same table sees no contamination.
	scanner2 := scan.New(spec, dataset.NewMemReader(table), cat.FlagColumn(),
		scan.Options{ChunkRows: 2})
	res2, err := Run(context.Background(), spec, scanner2, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err)
	assert.Equal(t, 7.0, res2.Grid.Total())
}

// flakyReader delegates to a memory reader but fails every chunk read at
// and past failAt.
type flakyReader struct {
	inner  dataset.Reader
	failAt int
}

func (r *flakyReader) Schema() []catalog.SchemaColumn {
	return r.inner.Schema()
}

func (r *flakyReader) NewScan(cols []string, chunkRows int) (dataset.Cursor, error) {
	cur, err := r.inner.NewScan(cols, chunkRows)
	if err != nil {
		return nil, err
	}
	return &flakyCursor{inner: cur, failAt: r.failAt}, nil
}

type flakyCursor struct {
	inner  dataset.Cursor
	failAt int
	reads  int
}

func (c *flakyCursor) Next(ctx context.Context) (*dataset.RawChunk, error) {
	if c.reads >= c.failAt {
		return nil, errors.New("disk gone")
	}
	c.reads++
	return c.inner.Next(ctx)
}

func (c *flakyCursor) Close() error {
	return c.inner.Close()
}

func TestRunPartialOnMidStreamFailure(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Width: 4, Height: 4,
		Bounds: fixtureBounds(),
	})
	// Rows 0-3 hold one flagged row, so the first chunk contributes 3.
	reader := &flakyReader{inner: dataset.NewMemReader(table), failAt: 1}
	scanner := scan.New(spec, reader, cat.FlagColumn(), scan.Options{ChunkRows: 4})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err, "a partial result is delivered, not dropped")
	assert.True(t, res.Partial)
	assert.True(t, serr.IsCode(res.ScanErr, serr.ErrScan))
	assert.Equal(t, 3.0, res.Grid.Total())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, serr.WarnPartialResult, res.Warnings[0].Kind)
}

func TestRunPartialAfterFilteredOutChunks(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	// The filter eliminates every row, so surviving batches never reach
	// the pool; the chunk that read successfully still makes the failure
	// a partial all-zero result rather than a bare error.
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Filters: []query.RawFilter{{Column: "TIME", Op: ">", Value: 100}},
		Width:   4, Height: 4,
		Bounds: fixtureBounds(),
	})
	reader := &flakyReader{inner: dataset.NewMemReader(table), failAt: 1}
	scanner := scan.New(spec, reader, cat.FlagColumn(), scan.Options{ChunkRows: 4})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Zero(t, res.Grid.Total())
	assert.True(t, serr.IsCode(res.ScanErr, serr.ErrScan))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, serr.WarnPartialResult, res.Warnings[0].Kind)
}

func TestRunNoChunksSucceededIsAnError(t *testing.T) {
	table := fixtureTable()
	cat := fixtureCatalog(t, table)
	spec := buildSpec(t, cat, &query.RawSelection{
		X: "DATA", Y: "TIME", Corr: "XX",
		Width: 4, Height: 4,
		Bounds: fixtureBounds(),
	})
	reader := &flakyReader{inner: dataset.NewMemReader(table), failAt: 0}
	scanner := scan.New(spec, reader, cat.FlagColumn(), scan.Options{ChunkRows: 4})

	res, err := Run(context.Background(), spec, scanner, ExecOptions{Workers: 2, MaxCategories: 8})
	assert.Nil(t, res)
	assert.True(t, serr.IsCode(err, serr.ErrScan))
}
