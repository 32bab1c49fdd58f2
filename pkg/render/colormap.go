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

package render

import "image/color"

// fireStops is the ungrouped density ramp: black through red and yellow
// to white, the classic "fire" map.
var fireStops = []color.NRGBA{
	{0, 0, 0, 255},
	{120, 20, 0, 255},
	{230, 60, 0, 255},
	{255, 160, 0, 255},
	{255, 255, 120, 255},
	{255, 255, 255, 255},
}

// fire maps a normalized intensity in [0, 1] to the ramp.
func fire(t float64) color.NRGBA {
	if t <= 0 {
		return fireStops[0]
	}
	if t >= 1 {
		return fireStops[len(fireStops)-1]
	}
	pos := t * float64(len(fireStops)-1)
	i := int(pos)
	frac := pos - float64(i)
	return lerp(fireStops[i], fireStops[i+1], frac)
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(a.R) + t*(float64(b.R)-float64(a.R))),
		G: uint8(float64(a.G) + t*(float64(b.G)-float64(a.G))),
		B: uint8(float64(a.B) + t*(float64(b.B)-float64(a.B))),
		A: 255,
	}
}

// groupPalette supplies the per-category hues of grouped plots, cycled
// when categories outnumber it.
var groupPalette = []color.NRGBA{
	{31, 119, 180, 255},
	{255, 127, 14, 255},
	{44, 160, 44, 255},
	{214, 39, 40, 255},
	{148, 103, 189, 255},
	{140, 86, 75, 255},
	{227, 119, 194, 255},
	{188, 189, 34, 255},
	{23, 190, 207, 255},
	{174, 199, 232, 255},
	{255, 187, 120, 255},
	{152, 223, 138, 255},
	{255, 152, 150, 255},
	{197, 176, 213, 255},
	{196, 156, 148, 255},
	{247, 182, 210, 255},
}

// overflowColor renders the "other" layer of a truncated legend.
var overflowColor = color.NRGBA{128, 128, 128, 255}

func groupColor(i int) color.NRGBA {
	return groupPalette[i%len(groupPalette)]
}
