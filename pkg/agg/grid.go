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

// Package agg reduces filtered row batches into a fixed-resolution count
// grid. Memory stays O(resolution x layers) no matter how many rows are
// binned, and accumulation is a commutative, associative reduction: any
// partition of the batches into partial grids merges to the same result.
package agg

import (
	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/container/batch"
	"github.com/arpan-52/scribble/pkg/query"
)

// Grid is the mutable accumulator. The binning transform is fixed at
// creation; every batch binned into this grid, or into a partial that is
// later merged, must share the same bounds.
type Grid struct {
	width  int
	height int
	bounds query.Bounds

	// invX/invY are width/(xmax-xmin) resp. height/(ymax-ymin), zero for
	// a degenerate span so every value lands in bin zero.
	invX float64
	invY float64

	// maxLayers is 1 when ungrouped. Grouped grids hold one layer per
	// category code below the cap, plus the overflow layer at index
	// maxLayers-1.
	maxLayers int
	grouped   bool
	layers    [][]float64

	clamped bool
}

// NewGrid builds an ungrouped grid.
func NewGrid(width, height int, bounds query.Bounds) *Grid {
	return newGrid(width, height, bounds, 1, false)
}

// NewGroupedGrid builds a layered grid capped at maxCategories category
// layers; rows with codes at or past the cap fold into the overflow
// layer.
func NewGroupedGrid(width, height int, bounds query.Bounds, maxCategories int) *Grid {
	return newGrid(width, height, bounds, maxCategories+1, true)
}

func newGrid(width, height int, bounds query.Bounds, maxLayers int, grouped bool) *Grid {
	g := &Grid{
		width:     width,
		height:    height,
		bounds:    bounds,
		maxLayers: maxLayers,
		grouped:   grouped,
	}
	if span := bounds.Xmax - bounds.Xmin; span > 0 {
		g.invX = float64(width) / span
	}
	if span := bounds.Ymax - bounds.Ymin; span > 0 {
		g.invY = float64(height) / span
	}
	return g
}

// NewLike builds an empty grid with the same shape, for use as a
// worker-private partial.
func (g *Grid) NewLike() *Grid {
	return newGrid(g.width, g.height, g.bounds, g.maxLayers, g.grouped)
}

func (g *Grid) Width() int           { return g.width }
func (g *Grid) Height() int          { return g.height }
func (g *Grid) Bounds() query.Bounds { return g.bounds }
func (g *Grid) Grouped() bool        { return g.grouped }

// Clamped reports whether any accumulated value fell outside the bounds
// and was clamped to an edge bin.
func (g *Grid) Clamped() bool { return g.clamped }

// Accumulate bins every row of bat into the grid.
func (g *Grid) Accumulate(bat *batch.Batch) {
	n := bat.RowCount()
	for i := 0; i < n; i++ {
		x, y := bat.X[i], bat.Y[i]
		layer := 0
		if g.grouped {
			layer = int(bat.Groups[i])
			if layer >= g.maxLayers-1 {
				layer = g.maxLayers - 1
			}
		}
		g.layer(layer)[g.binOf(x, y)]++
	}
}

// binOf maps one point to its bin index, clamping out-of-range values to
// the edge (row-count conservation: clamp, never drop). A degenerate
// bounds span sends everything to bin zero on that axis.
func (g *Grid) binOf(x, y float64) int {
	bx := g.clampBin((x-g.bounds.Xmin)*g.invX, g.width, x < g.bounds.Xmin || x > g.bounds.Xmax)
	by := g.clampBin((y-g.bounds.Ymin)*g.invY, g.height, y < g.bounds.Ymin || y > g.bounds.Ymax)
	return by*g.width + bx
}

func (g *Grid) clampBin(t float64, limit int, outOfRange bool) int {
	if outOfRange {
		g.clamped = true
	}
	// NaN fails the first comparison and lands in bin zero.
	if !(t > 0) {
		return 0
	}
	if t >= float64(limit) {
		return limit - 1
	}
	return int(t)
}

// layer returns the count array for idx, allocating lazily so sparse
// category codes cost nothing until seen.
func (g *Grid) layer(idx int) []float64 {
	for len(g.layers) <= idx {
		g.layers = append(g.layers, nil)
	}
	if g.layers[idx] == nil {
		g.layers[idx] = make([]float64, g.width*g.height)
	}
	return g.layers[idx]
}

// Merge adds o into g elementwise. Shapes and bounds must match; merge
// order never changes the result.
func (g *Grid) Merge(o *Grid) error {
	if o.width != g.width || o.height != g.height || o.bounds != g.bounds ||
		o.maxLayers != g.maxLayers || o.grouped != g.grouped {
		return serr.NewInternal("merging grids of different shape")
	}
	for idx, src := range o.layers {
		if src == nil {
			continue
		}
		dst := g.layer(idx)
		for i, v := range src {
			dst[i] += v
		}
	}
	g.clamped = g.clamped || o.clamped
	return nil
}

// LayerCount returns the number of materialized layers (trailing empty
// layers excluded).
func (g *Grid) LayerCount() int {
	return len(g.layers)
}

// Layer returns the counts of one layer; nil means no row landed there.
// The caller must not mutate the result once rendering starts.
func (g *Grid) Layer(idx int) []float64 {
	if idx >= len(g.layers) {
		return nil
	}
	return g.layers[idx]
}

// LayerTotal sums one layer's bins.
func (g *Grid) LayerTotal(idx int) float64 {
	var total float64
	for _, v := range g.Layer(idx) {
		total += v
	}
	return total
}

// OverflowTotal is the count folded into the overflow layer of a grouped
// grid, zero otherwise.
func (g *Grid) OverflowTotal() float64 {
	if !g.grouped {
		return 0
	}
	return g.LayerTotal(g.maxLayers - 1)
}

// Total sums every bin of every layer: with clamp-don't-drop binning this
// equals the number of rows that passed filtering.
func (g *Grid) Total() float64 {
	var total float64
	for idx := range g.layers {
		total += g.LayerTotal(idx)
	}
	return total
}
