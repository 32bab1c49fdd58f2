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
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/pierrec/lz4"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
)

// Disk dataset layout: one directory holding schema.toml plus one
// lz4-framed column file per column. Rows are fixed width per kind:
// numeric 8 bytes (float64 LE), categorical 4 bytes (int32 LE dictionary
// code), corrcomplex 16*width bytes (float64 LE re/im pairs), flag 1 byte.

const schemaFileName = "schema.toml"

type schemaFile struct {
	Rows    int64          `toml:"rows"`
	Columns []schemaColumn `toml:"column"`
}

type schemaColumn struct {
	Name       string   `toml:"name"`
	Kind       string   `toml:"kind"`
	CorrLabels []string `toml:"corr-labels"`
	Categories []string `toml:"categories"`
}

var kindNames = map[catalog.Kind]string{
	catalog.Numeric:     "numeric",
	catalog.Categorical: "categorical",
	catalog.CorrComplex: "corrcomplex",
	catalog.Flag:        "flag",
}

func kindFromName(s string) (catalog.Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// DiskReader serves scans from a scribble dataset directory.
type DiskReader struct {
	dir     string
	rows    int64
	columns []catalog.SchemaColumn
	// categories per categorical column, for code -> label decoding.
	dicts map[string][]string
}

var _ Reader = (*DiskReader)(nil)

// OpenDisk parses the directory's schema and prepares it for scanning.
func OpenDisk(dir string) (*DiskReader, error) {
	var sf schemaFile
	if _, err := toml.DecodeFile(filepath.Join(dir, schemaFileName), &sf); err != nil {
		return nil, serr.NewReaderIO(err)
	}
	r := &DiskReader{
		dir:   dir,
		rows:  sf.Rows,
		dicts: make(map[string][]string),
	}
	for _, sc := range sf.Columns {
		kind, ok := kindFromName(sc.Kind)
		if !ok {
			return nil, serr.NewBadConfig("column '%s' has unknown kind '%s'", sc.Name, sc.Kind)
		}
		r.columns = append(r.columns, catalog.SchemaColumn{
			Name:       sc.Name,
			Kind:       kind,
			CorrLabels: sc.CorrLabels,
			Categories: sc.Categories,
		})
		if kind == catalog.Categorical {
			r.dicts[sc.Name] = sc.Categories
		}
	}
	return r, nil
}

func (r *DiskReader) Schema() []catalog.SchemaColumn {
	return r.columns
}

func (r *DiskReader) column(name string) (catalog.SchemaColumn, bool) {
	for _, col := range r.columns {
		if col.Name == name {
			return col, true
		}
	}
	return catalog.SchemaColumn{}, false
}

func (r *DiskReader) NewScan(cols []string, chunkRows int) (Cursor, error) {
	if chunkRows <= 0 {
		return nil, serr.NewInternal("chunkRows must be positive, got %d", chunkRows)
	}
	cur := &diskCursor{reader: r, chunkRows: chunkRows}
	for _, name := range cols {
		col, ok := r.column(name)
		if !ok {
			cur.Close()
			return nil, serr.NewNoSuchColumn(name)
		}
		f, err := os.Open(filepath.Join(r.dir, name+".col"))
		if err != nil {
			cur.Close()
			return nil, serr.NewReaderIO(err)
		}
		cur.cols = append(cur.cols, diskColumn{
			schema: col,
			file:   f,
			rd:     bufio.NewReader(lz4.NewReader(f)),
		})
	}
	return cur, nil
}

type diskColumn struct {
	schema catalog.SchemaColumn
	file   *os.File
	rd     *bufio.Reader
}

type diskCursor struct {
	reader    *DiskReader
	cols      []diskColumn
	chunkRows int
	offset    int64
}

func (c *diskCursor) Next(ctx context.Context) (*RawChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remaining := c.reader.rows - c.offset
	if remaining <= 0 {
		return nil, nil
	}
	n := int64(c.chunkRows)
	if n > remaining {
		n = remaining
	}
	chunk := &RawChunk{
		Offset:      c.offset,
		Rows:        int(n),
		Numeric:     make(map[string][]float64),
		Categorical: make(map[string][]string),
		Complex:     make(map[string][]complex128),
		CorrWidth:   make(map[string]int),
	}
	for _, col := range c.cols {
		if err := c.readColumn(col, chunk, int(n)); err != nil {
			return nil, serr.NewReaderIO(err)
		}
	}
	c.offset += n
	return chunk, nil
}

func (c *diskCursor) readColumn(col diskColumn, chunk *RawChunk, n int) error {
	name := col.schema.Name
	switch col.schema.Kind {
	case catalog.Numeric:
		vals, err := readFloat64s(col.rd, n)
		if err != nil {
			return err
		}
		chunk.Numeric[name] = vals
	case catalog.Categorical:
		dict := c.reader.dicts[name]
		codes := make([]byte, 4*n)
		if _, err := io.ReadFull(col.rd, codes); err != nil {
			return err
		}
		labels := make([]string, n)
		for i := 0; i < n; i++ {
			code := int32(binary.LittleEndian.Uint32(codes[4*i:]))
			if code < 0 || int(code) >= len(dict) {
				return fmt.Errorf("column '%s': code %d outside dictionary of %d entries",
					name, code, len(dict))
			}
			labels[i] = dict[code]
		}
		chunk.Categorical[name] = labels
	case catalog.CorrComplex:
		w := len(col.schema.CorrLabels)
		vals, err := readFloat64s(col.rd, 2*n*w)
		if err != nil {
			return err
		}
		cs := make([]complex128, n*w)
		for i := range cs {
			cs[i] = complex(vals[2*i], vals[2*i+1])
		}
		chunk.Complex[name] = cs
		chunk.CorrWidth[name] = w
	case catalog.Flag:
		raw := make([]byte, n)
		if _, err := io.ReadFull(col.rd, raw); err != nil {
			return err
		}
		for i, b := range raw {
			if b != 0 {
				if chunk.Flags == nil {
					chunk.Flags = roaring64.New()
				}
				chunk.Flags.Add(uint64(i))
			}
		}
	}
	return nil
}

func readFloat64s(rd io.Reader, n int) ([]float64, error) {
	raw := make([]byte, 8*n)
	if _, err := io.ReadFull(rd, raw); err != nil {
		return nil, err
	}
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return vals, nil
}

func (c *diskCursor) Close() error {
	var firstErr error
	for _, col := range c.cols {
		if err := col.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.cols = nil
	return firstErr
}

// WriteTable persists t as a disk dataset directory. Categorical columns
// are dictionary encoded in first-appearance order.
func WriteTable(dir string, t *Table) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return serr.NewReaderIO(err)
	}
	sf := schemaFile{Rows: int64(t.Rows())}
	for _, col := range t.Columns {
		sc := schemaColumn{
			Name:       col.Name,
			Kind:       kindNames[col.Kind],
			CorrLabels: col.CorrLabels,
		}
		var err error
		switch col.Kind {
		case catalog.Numeric:
			err = writeColumnFile(dir, col.Name, func(w io.Writer) error {
				return writeFloat64s(w, t.Numeric[col.Name])
			})
		case catalog.Categorical:
			dict, codes := encodeDict(t.Categorical[col.Name])
			sc.Categories = dict
			err = writeColumnFile(dir, col.Name, func(w io.Writer) error {
				raw := make([]byte, 4*len(codes))
				for i, code := range codes {
					binary.LittleEndian.PutUint32(raw[4*i:], uint32(code))
				}
				_, werr := w.Write(raw)
				return werr
			})
		case catalog.CorrComplex:
			err = writeColumnFile(dir, col.Name, func(w io.Writer) error {
				cs := t.Complex[col.Name]
				vals := make([]float64, 2*len(cs))
				for i, v := range cs {
					vals[2*i] = real(v)
					vals[2*i+1] = imag(v)
				}
				return writeFloat64s(w, vals)
			})
		case catalog.Flag:
			err = writeColumnFile(dir, col.Name, func(w io.Writer) error {
				raw := make([]byte, len(t.Flagged))
				for i, f := range t.Flagged {
					if f {
						raw[i] = 1
					}
				}
				_, werr := w.Write(raw)
				return werr
			})
		}
		if err != nil {
			return err
		}
		sf.Columns = append(sf.Columns, sc)
	}

	f, err := os.Create(filepath.Join(dir, schemaFileName))
	if err != nil {
		return serr.NewReaderIO(err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(&sf); err != nil {
		return serr.NewReaderIO(err)
	}
	return nil
}

func writeColumnFile(dir, name string, fill func(io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, name+".col"))
	if err != nil {
		return serr.NewReaderIO(err)
	}
	defer f.Close()
	zw := lz4.NewWriter(f)
	if err := fill(zw); err != nil {
		return serr.NewReaderIO(err)
	}
	if err := zw.Close(); err != nil {
		return serr.NewReaderIO(err)
	}
	return nil
}

func writeFloat64s(w io.Writer, vals []float64) error {
	raw := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	_, err := w.Write(raw)
	return err
}

func encodeDict(labels []string) ([]string, []int32) {
	var dict []string
	index := make(map[string]int32)
	codes := make([]int32, len(labels))
	for i, s := range labels {
		code, ok := index[s]
		if !ok {
			code = int32(len(dict))
			dict = append(dict, s)
			index[s] = code
		}
		codes[i] = code
	}
	return dict, codes
}
