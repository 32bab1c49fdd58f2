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

// Package render turns a finished aggregation grid into a raster image.
// Rendering is a pure function of the grid: the grid is read, never
// touched, and the same grid with the same options always produces the
// same pixels.
package render

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/arpan-52/scribble/pkg/agg"
)

// LegendEntry names one rendered layer, in composite order.
type LegendEntry struct {
	Label string      `json:"label"`
	Color color.NRGBA `json:"-"`
	// Hex is Color in #rrggbb form for sidecar files.
	Hex   string  `json:"color"`
	Total float64 `json:"total"`
}

// Image is the immutable render product: a pixel buffer sized exactly to
// the grid resolution plus the legend metadata.
type Image struct {
	NRGBA  *image.NRGBA
	Legend []LegendEntry
	AxisX  string
	AxisY  string
	// LogScale records which count transform produced the pixels.
	LogScale bool
}

// Options select scale, axis titles and legend drawing.
type Options struct {
	// LogScale maps counts through log1p so zero-count bins stay at the
	// floor color.
	LogScale bool
	AxisX    string
	AxisY    string
	// GroupLabels names the category layers in dictionary-code order;
	// empty for ungrouped grids.
	GroupLabels []string
	// LegendTruncated adds the "other" entry for the overflow layer.
	LegendTruncated bool
	// DrawLegend paints the legend swatches into the top-left corner of
	// grouped plots.
	DrawLegend bool
}

// Render colorizes the grid. Grid row zero is the Y minimum, so rows are
// flipped into image space (image row zero is the top).
func Render(grid *agg.Grid, opts Options) *Image {
	w, h := grid.Width(), grid.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))

	out := &Image{
		NRGBA:    img,
		AxisX:    opts.AxisX,
		AxisY:    opts.AxisY,
		LogScale: opts.LogScale,
	}

	if !grid.Grouped() {
		renderSingle(img, grid, opts.LogScale)
		return out
	}

	layers := orderLayers(grid, opts)
	for _, l := range layers {
		blendLayer(img, grid, l.index, l.entry.Color, opts.LogScale)
		out.Legend = append(out.Legend, l.entry)
	}
	if opts.DrawLegend {
		drawLegend(img, out.Legend)
	}
	return out
}

func renderSingle(img *image.NRGBA, grid *agg.Grid, logScale bool) {
	counts := grid.Layer(0)
	if counts == nil {
		return
	}
	w, h := grid.Width(), grid.Height()
	max := maxCount(counts)
	if max == 0 {
		return
	}
	for by := 0; by < h; by++ {
		py := h - 1 - by
		for bx := 0; bx < w; bx++ {
			c := counts[by*w+bx]
			if c == 0 {
				continue
			}
			img.SetNRGBA(bx, py, fire(normalize(c, max, logScale)))
		}
	}
}

type orderedLayer struct {
	index int
	entry LegendEntry
}

// orderLayers fixes the deterministic composite order: descending layer
// total, ties broken by label, overflow always last.
func orderLayers(grid *agg.Grid, opts Options) []orderedLayer {
	var layers []orderedLayer
	for i, label := range opts.GroupLabels {
		total := grid.LayerTotal(i)
		if total == 0 {
			continue
		}
		c := groupColor(i)
		layers = append(layers, orderedLayer{
			index: i,
			entry: LegendEntry{Label: label, Color: c, Hex: hex(c), Total: total},
		})
	}
	sort.Slice(layers, func(i, j int) bool {
		if layers[i].entry.Total != layers[j].entry.Total {
			return layers[i].entry.Total > layers[j].entry.Total
		}
		return layers[i].entry.Label < layers[j].entry.Label
	})
	if opts.LegendTruncated {
		idx := len(opts.GroupLabels)
		if total := grid.OverflowTotal(); total > 0 {
			layers = append(layers, orderedLayer{
				index: idx,
				entry: LegendEntry{Label: "other", Color: overflowColor, Hex: hex(overflowColor), Total: total},
			})
		}
	}
	return layers
}

// blendLayer composites one layer additively: each bin contributes its
// hue scaled by normalized intensity, saturating at white.
func blendLayer(img *image.NRGBA, grid *agg.Grid, idx int, hue color.NRGBA, logScale bool) {
	counts := grid.Layer(idx)
	if counts == nil {
		return
	}
	w, h := grid.Width(), grid.Height()
	max := maxCount(counts)
	if max == 0 {
		return
	}
	for by := 0; by < h; by++ {
		py := h - 1 - by
		for bx := 0; bx < w; bx++ {
			c := counts[by*w+bx]
			if c == 0 {
				continue
			}
			t := normalize(c, max, logScale)
			prev := img.NRGBAAt(bx, py)
			img.SetNRGBA(bx, py, color.NRGBA{
				R: satAdd(prev.R, t*float64(hue.R)),
				G: satAdd(prev.G, t*float64(hue.G)),
				B: satAdd(prev.B, t*float64(hue.B)),
				A: 255,
			})
		}
	}
}

func normalize(c, max float64, logScale bool) float64 {
	if logScale {
		return math.Log1p(c) / math.Log1p(max)
	}
	return c / max
}

func maxCount(counts []float64) float64 {
	var max float64
	for _, v := range counts {
		if v > max {
			max = v
		}
	}
	return max
}

func satAdd(base uint8, add float64) uint8 {
	v := float64(base) + add
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func hex(c color.NRGBA) string {
	const digits = "0123456789abcdef"
	return string([]byte{
		'#',
		digits[c.R>>4], digits[c.R&15],
		digits[c.G>>4], digits[c.G&15],
		digits[c.B>>4], digits[c.B&15],
	})
}

// drawLegend paints swatches and labels into the top-left corner.
const (
	legendSwatch  = 10
	legendPad     = 4
	legendLineGap = 14
)

func drawLegend(img *image.NRGBA, entries []LegendEntry) {
	face := basicfont.Face7x13
	for i, e := range entries {
		y0 := legendPad + i*legendLineGap
		for dy := 0; dy < legendSwatch; dy++ {
			for dx := 0; dx < legendSwatch; dx++ {
				img.SetNRGBA(legendPad+dx, y0+dy, e.Color)
			}
		}
		d := font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.NRGBA{255, 255, 255, 255}),
			Face: face,
			Dot: fixed.P(legendPad+legendSwatch+legendPad,
				y0+legendSwatch-1),
		}
		d.DrawString(e.Label)
	}
}
