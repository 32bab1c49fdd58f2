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

// Package plot ties the pipeline together: one Session per open dataset,
// one validated spec, grid and image per plot request. A new request
// supersedes the previous in-flight one, cancelling it at its next chunk
// boundary.
package plot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arpan-52/scribble/pkg/agg"
	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/config"
	"github.com/arpan-52/scribble/pkg/dataset"
	"github.com/arpan-52/scribble/pkg/export"
	"github.com/arpan-52/scribble/pkg/logutil"
	"github.com/arpan-52/scribble/pkg/query"
	"github.com/arpan-52/scribble/pkg/render"
	"github.com/arpan-52/scribble/pkg/scan"
)

// Result is one finished plot: the raster, its PNG encoding and the
// export metadata.
type Result struct {
	Image    *render.Image
	PNG      []byte
	Meta     *export.Meta
	Warnings []serr.Warning
	// Partial marks a best-effort result produced despite a mid-stream
	// scan failure.
	Partial bool
}

// Session owns one open dataset: its catalog, reader handle and service
// limits. Safe for concurrent use; each Render call is one request.
type Session struct {
	cfg    *config.ServiceConfig
	reader dataset.Reader
	cat    *catalog.Catalog

	mu         sync.Mutex
	closed     bool
	supersede  context.CancelFunc
	requestSeq int64
}

// Open builds the session catalog from the reader's schema.
func Open(reader dataset.Reader, cfg *config.ServiceConfig) (*Session, error) {
	cat, err := catalog.New(reader.Schema())
	if err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, reader: reader, cat: cat}, nil
}

// Catalog exposes the column set for schema listings.
func (s *Session) Catalog() *catalog.Catalog {
	return s.cat
}

// Close marks the session unusable. In-flight requests are cancelled.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.supersede != nil {
		s.supersede()
		s.supersede = nil
	}
	return nil
}

// begin registers a request, cancelling the previous in-flight one.
func (s *Session) begin(ctx context.Context) (context.Context, context.CancelFunc, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, 0, serr.NewDatasetClosed()
	}
	if s.supersede != nil {
		s.supersede()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.supersede = cancel
	s.requestSeq++
	return ctx, cancel, s.requestSeq, nil
}

// end releases the request's cancel slot unless a newer request already
// took it over.
func (s *Session) end(seq int64, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	if s.requestSeq == seq {
		s.supersede = nil
	}
}

// Render runs the full pipeline for one raw selection.
func (s *Session) Render(ctx context.Context, raw *query.RawSelection) (*Result, error) {
	spec, err := query.Build(s.cat, raw, query.Limits{
		MinResolution: int(s.cfg.MinResolution),
		MaxResolution: int(s.cfg.MaxResolution),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel, seq, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.end(seq, cancel)

	start := time.Now()
	scanner := scan.New(spec, s.reader, s.cat.FlagColumn(), scan.Options{
		ChunkRows: int(s.cfg.ChunkRows),
		Retries:   int(s.cfg.ScanRetries),
	})
	res, err := agg.Run(ctx, spec, scanner, agg.ExecOptions{
		Workers:       int(s.cfg.WorkerCount),
		MaxCategories: int(s.cfg.MaxCategories),
	})
	if err != nil {
		return nil, err
	}

	img := render.Render(res.Grid, render.Options{
		LogScale:        spec.LogScale,
		AxisX:           spec.AxisX.Label(),
		AxisY:           spec.AxisY.Label(),
		GroupLabels:     res.GroupLabels,
		LegendTruncated: res.LegendTruncated,
		DrawLegend:      spec.GroupBy != nil,
	})

	meta := &export.Meta{
		AxisX:    img.AxisX,
		AxisY:    img.AxisY,
		Filters:  spec.FilterSummary(),
		Legend:   img.Legend,
		Width:    spec.Width,
		Height:   spec.Height,
		Partial:  res.Partial,
		Warnings: res.Warnings,
	}
	pngBytes, err := export.EncodePNG(img, meta)
	if err != nil {
		return nil, err
	}

	logutil.Info("plot rendered",
		zap.Int64("request", seq),
		zap.String("x", img.AxisX),
		zap.String("y", img.AxisY),
		zap.Float64("rows", res.Grid.Total()),
		zap.Bool("partial", res.Partial),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Image:    img,
		PNG:      pngBytes,
		Meta:     meta,
		Warnings: res.Warnings,
		Partial:  res.Partial,
	}, nil
}
