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
	"os"
	"strconv"

	"github.com/matrixorigin/simdcsv"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/logutil"
)

// csvBatchRows is the row granularity of one simdcsv read.
const csvBatchRows = 4000

// ImportCSV builds a disk dataset at dir from a CSV file. The CSV's
// first row must be a header; cols declares the kind of each imported
// column and must name a header field. Correlation-complex columns
// cannot be expressed in CSV and are rejected.
func ImportCSV(ctx context.Context, dir, csvPath string, cols []catalog.SchemaColumn) error {
	for _, col := range cols {
		if col.Kind == catalog.CorrComplex {
			return serr.NewBadConfig(
				"column '%s': correlation-complex columns cannot be imported from csv", col.Name)
		}
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return serr.NewReaderIO(err)
	}
	defer f.Close()

	rd := simdcsv.NewReaderWithOptions(f, ',', '#', true, true)

	// Header row first, to map declared columns to field positions.
	records, n, err := rd.Read(1, ctx, make([][]string, 1))
	if err != nil {
		return serr.NewReaderIO(err)
	}
	if n == 0 {
		return serr.NewBadConfig("csv file %s is empty", csvPath)
	}
	header := records[0]
	fieldOf := make(map[string]int, len(header))
	for i, name := range header {
		fieldOf[name] = i
	}

	table := NewTable(cols)
	for _, col := range cols {
		if _, ok := fieldOf[col.Name]; !ok {
			return serr.NewBadConfig("csv file %s has no field '%s'", csvPath, col.Name)
		}
	}

	rows := 0
	records = make([][]string, csvBatchRows)
	for {
		records, n, err = rd.Read(csvBatchRows, ctx, records)
		if err != nil {
			return serr.NewReaderIO(err)
		}
		for i := 0; i < n; i++ {
			if err := appendRecord(table, cols, fieldOf, records[i]); err != nil {
				return err
			}
		}
		rows += n
		if n < csvBatchRows {
			break
		}
	}
	table.rows = rows

	logutil.Infof("imported %d rows from %s", rows, csvPath)
	return WriteTable(dir, table)
}

func appendRecord(t *Table, cols []catalog.SchemaColumn, fieldOf map[string]int, record []string) error {
	for _, col := range cols {
		idx := fieldOf[col.Name]
		if idx >= len(record) {
			return serr.NewBadConfig("csv record is short of field '%s'", col.Name)
		}
		raw := record[idx]
		switch col.Kind {
		case catalog.Numeric:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return serr.NewBadConfig("field '%s': %s", col.Name, err)
			}
			t.Numeric[col.Name] = append(t.Numeric[col.Name], v)
		case catalog.Categorical:
			t.Categorical[col.Name] = append(t.Categorical[col.Name], raw)
		case catalog.Flag:
			flagged := raw == "1" || raw == "true" || raw == "T" || raw == "True"
			t.Flagged = append(t.Flagged, flagged)
		}
	}
	return nil
}
