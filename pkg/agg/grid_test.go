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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpan-52/scribble/pkg/container/batch"
	"github.com/arpan-52/scribble/pkg/query"
)

func makeBatch(xs, ys []float64, groups []int32) *batch.Batch {
	bat := batch.New(len(xs), groups != nil)
	copy(bat.X, xs)
	copy(bat.Y, ys)
	if groups != nil {
		copy(bat.Groups, groups)
	}
	return bat
}

func unitBounds() query.Bounds {
	return query.Bounds{Xmin: 0, Xmax: 1, Ymin: 0, Ymax: 1}
}

func TestGridTotalConservation(t *testing.T) {
	g := NewGrid(4, 4, unitBounds())
	// In-range, edge and far out-of-range points all count: clamping
	// preserves the row total.
	xs := []float64{0, 0.5, 1, -3, 7, 0.25, 0.99}
	ys := []float64{0, 0.5, 1, 0.5, -2, 0.75, 0.01}
	g.Accumulate(makeBatch(xs, ys, nil))

	assert.Equal(t, float64(len(xs)), g.Total())
	assert.True(t, g.Clamped())
}

func TestGridInRangeNotClamped(t *testing.T) {
	g := NewGrid(8, 8, unitBounds())
	g.Accumulate(makeBatch([]float64{0.1, 0.9}, []float64{0.2, 0.8}, nil))
	assert.False(t, g.Clamped())
	assert.Equal(t, 2.0, g.Total())
}

func TestGridBinPlacement(t *testing.T) {
	g := NewGrid(4, 4, unitBounds())
	// Bin width is 0.25; value 0.3 lands in bin 1, the max lands in the
	// last bin, not one past it.
	g.Accumulate(makeBatch([]float64{0.3, 1.0}, []float64{0.0, 1.0}, nil))

	counts := g.Layer(0)
	assert.Equal(t, 1.0, counts[0*4+1], "x=0.3,y=0 in bin (1,0)")
	assert.Equal(t, 1.0, counts[3*4+3], "x=1,y=1 in bin (3,3)")
}

func TestGridDegenerateBounds(t *testing.T) {
	g := NewGrid(4, 4, query.Bounds{Xmin: 5, Xmax: 5, Ymin: 0, Ymax: 1})
	g.Accumulate(makeBatch([]float64{5, 5, 5}, []float64{0, 0.5, 1}, nil))

	assert.Equal(t, 3.0, g.Total())
	counts := g.Layer(0)
	for by := 0; by < 4; by++ {
		for bx := 1; bx < 4; bx++ {
			assert.Zerof(t, counts[by*4+bx], "bin (%d,%d) must be empty", bx, by)
		}
	}
}

func TestGridMergeOrderIndependent(t *testing.T) {
	a := makeBatch([]float64{0.1, 0.2, 0.3}, []float64{0.9, 0.8, 0.7}, nil)
	b := makeBatch([]float64{0.5, 0.6}, []float64{0.4, 0.5}, nil)

	run := func(first, second *batch.Batch) *Grid {
		final := NewGrid(8, 8, unitBounds())
		p1, p2 := final.NewLike(), final.NewLike()
		p1.Accumulate(first)
		p2.Accumulate(second)
		require.NoError(t, final.Merge(p1))
		require.NoError(t, final.Merge(p2))
		return final
	}

	ab := run(a, b)
	ba := run(b, a)
	assert.Equal(t, ab.Layer(0), ba.Layer(0), "chunk order must not change the grid")
	assert.Equal(t, 5.0, ab.Total())
}

func TestGridMergeShapeMismatch(t *testing.T) {
	g := NewGrid(4, 4, unitBounds())
	assert.Error(t, g.Merge(NewGrid(8, 8, unitBounds())))
	assert.Error(t, g.Merge(NewGrid(4, 4, query.Bounds{Xmax: 2, Ymax: 2})))
}

func TestGroupedGridOverflow(t *testing.T) {
	g := NewGroupedGrid(4, 4, unitBounds(), 2)
	// Codes 0 and 1 keep their layers; codes 2..4 fold into overflow.
	xs := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	ys := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	g.Accumulate(makeBatch(xs, ys, []int32{0, 1, 2, 3, 4, 2}))

	assert.Equal(t, 1.0, g.LayerTotal(0))
	assert.Equal(t, 1.0, g.LayerTotal(1))
	assert.Equal(t, 4.0, g.OverflowTotal(), "rows of excess categories land in the overflow layer")
	assert.Equal(t, 6.0, g.Total())
}

func TestGridEmpty(t *testing.T) {
	g := NewGrid(4, 4, unitBounds())
	assert.Zero(t, g.Total())
	assert.Nil(t, g.Layer(0))
}
