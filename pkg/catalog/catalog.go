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

// Package catalog describes the columns of one open observation table.
// A Catalog is built once when a dataset is opened, is read-only from
// then on, and may be shared across goroutines without synchronization.
package catalog

import (
	"strconv"

	"github.com/arpan-52/scribble/pkg/common/serr"
)

// Kind is the semantic kind of a column.
type Kind int

const (
	// Numeric columns hold one float-convertible scalar per row.
	Numeric Kind = iota
	// Categorical columns hold one label per row and may be grouped on.
	Categorical
	// CorrComplex columns hold one complex value per row per correlation;
	// an axis selection must pick a correlation and a scalar component.
	CorrComplex
	// Flag columns hold the per-row validity mark. Flagged rows are never
	// aggregated.
	Flag
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	case CorrComplex:
		return "correlation-complex"
	case Flag:
		return "flag"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// SchemaColumn describes one column of the table.
type SchemaColumn struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// CorrLabels names the correlation axis of a CorrComplex column,
	// e.g. ["XX", "XY", "YX", "YY"].
	CorrLabels []string `json:"corrLabels,omitempty"`

	// Categories is the known label domain of a Categorical column, when
	// the reader can enumerate it up front.
	Categories []string `json:"categories,omitempty"`
}

// Catalog is the column set of one open dataset.
type Catalog struct {
	columns []SchemaColumn
	byName  map[string]int
	flagCol string
}

// New validates cols and builds the catalog. At most one Flag column is
// allowed; zero is legal for tables without flags.
func New(cols []SchemaColumn) (*Catalog, error) {
	c := &Catalog{
		columns: make([]SchemaColumn, len(cols)),
		byName:  make(map[string]int, len(cols)),
	}
	copy(c.columns, cols)
	for i, col := range c.columns {
		if col.Name == "" {
			return nil, serr.NewInvalidQuery("schema", "column %d has no name", i)
		}
		if _, dup := c.byName[col.Name]; dup {
			return nil, serr.NewInvalidQuery("schema", "duplicate column '%s'", col.Name)
		}
		c.byName[col.Name] = i
		if col.Kind == Flag {
			if c.flagCol != "" {
				return nil, serr.NewInvalidQuery("schema",
					"more than one flag column: '%s' and '%s'", c.flagCol, col.Name)
			}
			c.flagCol = col.Name
		}
		if col.Kind == CorrComplex && len(col.CorrLabels) == 0 {
			return nil, serr.NewInvalidQuery("schema",
				"correlation column '%s' lists no correlation labels", col.Name)
		}
	}
	return c, nil
}

// Column looks a column up by name.
func (c *Catalog) Column(name string) (SchemaColumn, bool) {
	i, ok := c.byName[name]
	if !ok {
		return SchemaColumn{}, false
	}
	return c.columns[i], true
}

// Columns returns all columns in declaration order. The caller must not
// mutate the result.
func (c *Catalog) Columns() []SchemaColumn {
	return c.columns
}

// FlagColumn returns the name of the flag column, or "" when the table
// has none.
func (c *Catalog) FlagColumn() string {
	return c.flagCol
}

// corrTypeNames maps the observation format's CORR_TYPE codes to their
// conventional polarization labels.
var corrTypeNames = map[int32]string{
	5: "RR", 6: "RL", 7: "LR", 8: "LL",
	9: "XX", 10: "XY", 11: "YX", 12: "YY",
}

// CorrLabelsFromTypes converts raw CORR_TYPE codes to labels, falling
// back to the decimal code for unknown ones.
func CorrLabelsFromTypes(types []int32) []string {
	labels := make([]string, len(types))
	for i, t := range types {
		if name, ok := corrTypeNames[t]; ok {
			labels[i] = name
		} else {
			labels[i] = strconv.Itoa(int(t))
		}
	}
	return labels
}
