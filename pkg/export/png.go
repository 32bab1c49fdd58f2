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

// Package export encodes a rendered image as PNG with the plot metadata
// embedded as tEXt chunks, and writes the JSON sidecar carrying the same
// fixed field set.
package export

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"

	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/render"
)

// Meta is the fixed metadata set attached to every export: axis names,
// filter summary, legend and resolution.
type Meta struct {
	AxisX   string               `json:"axisX"`
	AxisY   string               `json:"axisY"`
	Filters string               `json:"filters"`
	Legend  []render.LegendEntry `json:"legend,omitempty"`
	Width   int                  `json:"width"`
	Height  int                  `json:"height"`
	Partial bool                 `json:"partial,omitempty"`
	// Warnings carries the advisories of the producing run.
	Warnings []serr.Warning `json:"warnings,omitempty"`
}

// EncodePNG serializes img with meta embedded as tEXt chunks right after
// the IHDR chunk. Width/height disagreements between img and meta are the
// only failure mode and mean a renderer contract violation.
func EncodePNG(img *render.Image, meta *Meta) ([]byte, error) {
	if img == nil || img.NRGBA == nil {
		return nil, serr.NewEncode("no image")
	}
	b := img.NRGBA.Bounds()
	if b.Dx() != meta.Width || b.Dy() != meta.Height {
		return nil, serr.NewEncode("image is %dx%d, metadata says %dx%d",
			b.Dx(), b.Dy(), meta.Width, meta.Height)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.NRGBA); err != nil {
		return nil, serr.NewEncode("%s", err)
	}

	var text bytes.Buffer
	for _, kv := range metaTextPairs(meta) {
		writeTextChunk(&text, kv[0], kv[1])
	}
	return spliceAfterIHDR(buf.Bytes(), text.Bytes())
}

func metaTextPairs(meta *Meta) [][2]string {
	pairs := [][2]string{
		{"scribble:axis-x", meta.AxisX},
		{"scribble:axis-y", meta.AxisY},
		{"scribble:filters", meta.Filters},
		{"scribble:resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height)},
	}
	for _, e := range meta.Legend {
		pairs = append(pairs, [2]string{
			"scribble:legend", fmt.Sprintf("%s=%s (%g)", e.Label, e.Hex, e.Total)})
	}
	if meta.Partial {
		pairs = append(pairs, [2]string{"scribble:partial", "true"})
	}
	return pairs
}

// writeTextChunk appends one PNG tEXt chunk: length, type, keyword NUL
// text, CRC over type+data.
func writeTextChunk(w *bytes.Buffer, keyword, text string) {
	data := make([]byte, 0, len(keyword)+1+len(text))
	data = append(data, keyword...)
	data = append(data, 0)
	data = append(data, text...)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	w.Write(length[:])

	crc := crc32.NewIEEE()
	w.WriteString("tEXt")
	crc.Write([]byte("tEXt"))
	w.Write(data)
	crc.Write(data)

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	w.Write(sum[:])
}

// spliceAfterIHDR inserts chunks between the IHDR chunk and the rest of
// the stream. A PNG opens with an 8 byte signature followed by IHDR,
// whose data is always 13 bytes: 8 + (4+4+13+4) = 33.
func spliceAfterIHDR(pngBytes, chunks []byte) ([]byte, error) {
	const ihdrEnd = 33
	if len(pngBytes) < ihdrEnd || string(pngBytes[12:16]) != "IHDR" {
		return nil, serr.NewEncode("malformed png stream")
	}
	out := make([]byte, 0, len(pngBytes)+len(chunks))
	out = append(out, pngBytes[:ihdrEnd]...)
	out = append(out, chunks...)
	out = append(out, pngBytes[ihdrEnd:]...)
	return out, nil
}

// WriteSidecar writes the JSON sidecar document for an exported plot.
func WriteSidecar(w io.Writer, meta *Meta) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return serr.NewEncode("sidecar: %s", err)
	}
	return nil
}
