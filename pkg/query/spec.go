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

// Package query turns the UI's raw selection payload into a validated,
// immutable plot specification. Building a Spec performs no I/O; every
// violation is reported as an ErrInvalidQuery naming the offending field.
package query

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
)

// Component selects the scalar taken from a complex correlation value.
type Component int

const (
	Amplitude Component = iota
	Phase
	Real
	Imag
)

var componentNames = map[string]Component{
	"amp":       Amplitude,
	"amplitude": Amplitude,
	"phase":     Phase,
	"real":      Real,
	"imag":      Imag,
}

func (c Component) String() string {
	switch c {
	case Amplitude:
		return "amp"
	case Phase:
		return "phase"
	case Real:
		return "real"
	case Imag:
		return "imag"
	}
	return fmt.Sprintf("component(%d)", int(c))
}

// Apply projects one complex value to the component's scalar.
func (c Component) Apply(v complex128) float64 {
	switch c {
	case Phase:
		return cmplx.Phase(v)
	case Real:
		return real(v)
	case Imag:
		return imag(v)
	default:
		return cmplx.Abs(v)
	}
}

// Op is a filter operator.
type Op int

const (
	OpLT Op = iota
	OpLE
	OpGT
	OpGE
	OpEQ
	OpNE
	OpBetween
	OpIn
	OpNotIn
)

var opNames = map[string]Op{
	"<": OpLT, "<=": OpLE, ">": OpGT, ">=": OpGE,
	"==": OpEQ, "!=": OpNE, "between": OpBetween,
	"in": OpIn, "not-in": OpNotIn,
}

func (op Op) String() string {
	for name, o := range opNames {
		if o == op {
			return name
		}
	}
	return fmt.Sprintf("op(%d)", int(op))
}

func (op Op) numeric() bool {
	return op <= OpBetween
}

// RawFilter is one filter row of the UI payload.
type RawFilter struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	// Value and High are the numeric operands; High only for "between".
	Value float64 `json:"value"`
	High  float64 `json:"high"`
	// Labels is the category set for "in" / "not-in".
	Labels []string `json:"labels"`
}

// Bounds is a data-space bounding box. When the UI pre-supplies one, the
// pipeline runs single-pass and clamps out-of-range values to edge bins.
type Bounds struct {
	Xmin float64 `json:"xmin"`
	Xmax float64 `json:"xmax"`
	Ymin float64 `json:"ymin"`
	Ymax float64 `json:"ymax"`
}

// RawSelection is the inbound request payload, exactly as the UI sends
// it.
type RawSelection struct {
	X         string      `json:"x"`
	Y         string      `json:"y"`
	Corr      string      `json:"corr"`
	Component string      `json:"component"`
	GroupBy   string      `json:"groupBy"`
	Filters   []RawFilter `json:"filters"`
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	// Scale is "linear" or "log"; log maps counts through log1p.
	Scale  string  `json:"scale"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// ColumnRef is a resolved axis reference: a column plus, for correlation
// columns, the correlation index and scalar component.
type ColumnRef struct {
	Column catalog.SchemaColumn
	// CorrIndex is -1 for plain numeric columns.
	CorrIndex int
	Component Component
}

// Label renders the axis title, e.g. "DATA[XX] amp" or "TIME".
func (r ColumnRef) Label() string {
	if r.Column.Kind != catalog.CorrComplex {
		return r.Column.Name
	}
	return fmt.Sprintf("%s[%s] %s", r.Column.Name, r.Column.CorrLabels[r.CorrIndex], r.Component)
}

// Predicate is one validated filter.
type Predicate struct {
	Column  catalog.SchemaColumn
	Op      Op
	Operand float64
	High    float64
	Labels  map[string]struct{}
}

func (p Predicate) describe() string {
	switch p.Op {
	case OpBetween:
		return fmt.Sprintf("%s between %g and %g", p.Column.Name, p.Operand, p.High)
	case OpIn, OpNotIn:
		labels := make([]string, 0, len(p.Labels))
		for l := range p.Labels {
			labels = append(labels, l)
		}
		return fmt.Sprintf("%s %s {%s}", p.Column.Name, p.Op, strings.Join(labels, ","))
	default:
		return fmt.Sprintf("%s %s %g", p.Column.Name, p.Op, p.Operand)
	}
}

// Spec is the validated, immutable plot descriptor.
type Spec struct {
	AxisX ColumnRef
	AxisY ColumnRef
	// GroupBy is nil when ungrouped.
	GroupBy    *catalog.SchemaColumn
	Predicates []Predicate
	// ExcludeFlagged is always true; flagged rows never plot.
	ExcludeFlagged bool
	Width          int
	Height         int
	LogScale       bool
	// Bounds is nil in two-pass (bounds discovery) mode.
	Bounds *Bounds
}

// Limits bounds what a Spec may ask for; it comes from the service
// configuration.
type Limits struct {
	MinResolution int
	MaxResolution int
}

// DefaultLimits mirror the configuration defaults. The floor admits tiny
// grids: coarse resolutions are legitimate aggregations, not errors.
var DefaultLimits = Limits{MinResolution: 1, MaxResolution: 4096}

// Default resolution matches the original plot canvas.
const (
	defaultWidth  = 800
	defaultHeight = 450
)

// Build validates raw against cat and constructs the Spec.
func Build(cat *catalog.Catalog, raw *RawSelection, limits Limits) (*Spec, error) {
	spec := &Spec{ExcludeFlagged: true}

	var err error
	if spec.AxisX, err = resolveAxis(cat, "x", raw.X, raw.Corr, raw.Component); err != nil {
		return nil, err
	}
	if spec.AxisY, err = resolveAxis(cat, "y", raw.Y, raw.Corr, raw.Component); err != nil {
		return nil, err
	}

	if raw.GroupBy != "" {
		col, ok := cat.Column(raw.GroupBy)
		if !ok {
			return nil, serr.NewInvalidQuery("groupBy", "no such column '%s'", raw.GroupBy)
		}
		if col.Kind != catalog.Categorical {
			return nil, serr.NewInvalidQuery("groupBy",
				"column '%s' is %s, group-by needs a categorical column", col.Name, col.Kind)
		}
		spec.GroupBy = &col
	}

	for i, rf := range raw.Filters {
		pred, err := resolveFilter(cat, i, rf)
		if err != nil {
			return nil, err
		}
		spec.Predicates = append(spec.Predicates, pred)
	}

	spec.Width, spec.Height = raw.Width, raw.Height
	if spec.Width == 0 && spec.Height == 0 {
		spec.Width, spec.Height = defaultWidth, defaultHeight
	}
	for _, res := range []struct {
		field string
		v     int
	}{{"width", spec.Width}, {"height", spec.Height}} {
		if res.v < limits.MinResolution || res.v > limits.MaxResolution {
			return nil, serr.NewInvalidQuery(res.field,
				"%d outside [%d, %d]", res.v, limits.MinResolution, limits.MaxResolution)
		}
	}

	switch raw.Scale {
	case "", "linear":
	case "log":
		spec.LogScale = true
	default:
		return nil, serr.NewInvalidQuery("scale", "unknown scale '%s'", raw.Scale)
	}

	if raw.Bounds != nil {
		b := *raw.Bounds
		if math.IsNaN(b.Xmin) || math.IsNaN(b.Xmax) || math.IsNaN(b.Ymin) || math.IsNaN(b.Ymax) ||
			b.Xmax < b.Xmin || b.Ymax < b.Ymin {
			return nil, serr.NewInvalidQuery("bounds", "bounding box is empty or not a number")
		}
		spec.Bounds = &b
	}
	return spec, nil
}

func resolveAxis(cat *catalog.Catalog, field, name, corr, component string) (ColumnRef, error) {
	if name == "" {
		return ColumnRef{}, serr.NewInvalidQuery(field, "no column selected")
	}
	col, ok := cat.Column(name)
	if !ok {
		return ColumnRef{}, serr.NewInvalidQuery(field, "no such column '%s'", name)
	}
	switch col.Kind {
	case catalog.Numeric:
		return ColumnRef{Column: col, CorrIndex: -1}, nil
	case catalog.CorrComplex:
		if corr == "" {
			return ColumnRef{}, serr.NewInvalidQuery("corr",
				"column '%s' needs a correlation selection", name)
		}
		idx := -1
		for i, label := range col.CorrLabels {
			if label == corr {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ColumnRef{}, serr.NewInvalidQuery("corr",
				"column '%s' has no correlation '%s'", name, corr)
		}
		comp := Amplitude
		if component != "" {
			if comp, ok = componentNames[component]; !ok {
				return ColumnRef{}, serr.NewInvalidQuery("component",
					"unknown component '%s'", component)
			}
		}
		return ColumnRef{Column: col, CorrIndex: idx, Component: comp}, nil
	default:
		return ColumnRef{}, serr.NewInvalidQuery(field,
			"column '%s' is %s, axes need numeric scalars", name, col.Kind)
	}
}

func resolveFilter(cat *catalog.Catalog, i int, rf RawFilter) (Predicate, error) {
	field := fmt.Sprintf("filters[%d]", i)
	col, ok := cat.Column(rf.Column)
	if !ok {
		return Predicate{}, serr.NewInvalidQuery(field, "no such column '%s'", rf.Column)
	}
	op, ok := opNames[rf.Op]
	if !ok {
		return Predicate{}, serr.NewInvalidQuery(field, "unknown operator '%s'", rf.Op)
	}
	switch col.Kind {
	case catalog.Numeric:
		if !op.numeric() {
			return Predicate{}, serr.NewInvalidQuery(field,
				"operator '%s' needs a categorical column, '%s' is numeric", rf.Op, col.Name)
		}
		if op == OpBetween && rf.High < rf.Value {
			return Predicate{}, serr.NewInvalidQuery(field,
				"between range [%g, %g] is empty", rf.Value, rf.High)
		}
		return Predicate{Column: col, Op: op, Operand: rf.Value, High: rf.High}, nil
	case catalog.Categorical:
		if op.numeric() {
			return Predicate{}, serr.NewInvalidQuery(field,
				"operator '%s' needs a numeric column, '%s' is categorical", rf.Op, col.Name)
		}
		if len(rf.Labels) == 0 {
			return Predicate{}, serr.NewInvalidQuery(field, "empty label set")
		}
		labels := make(map[string]struct{}, len(rf.Labels))
		for _, l := range rf.Labels {
			labels[l] = struct{}{}
		}
		return Predicate{Column: col, Op: op, Labels: labels}, nil
	default:
		return Predicate{}, serr.NewInvalidQuery(field,
			"column '%s' is %s and cannot be filtered on", col.Name, col.Kind)
	}
}

// Columns lists the table columns the spec needs from the reader: axes,
// group-by and the flag column, deduplicated.
func (s *Spec) Columns(flagColumn string) []string {
	seen := make(map[string]struct{})
	var cols []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
	}
	add(s.AxisX.Column.Name)
	add(s.AxisY.Column.Name)
	if s.GroupBy != nil {
		add(s.GroupBy.Name)
	}
	for _, p := range s.Predicates {
		add(p.Column.Name)
	}
	if s.ExcludeFlagged {
		add(flagColumn)
	}
	return cols
}

// FilterSummary renders the active filters for legends and sidecars.
func (s *Spec) FilterSummary() string {
	if len(s.Predicates) == 0 {
		return "none"
	}
	parts := make([]string, len(s.Predicates))
	for i, p := range s.Predicates {
		parts[i] = p.describe()
	}
	return strings.Join(parts, " AND ")
}
