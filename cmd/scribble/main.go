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

// Command scribble serves the plotting API over an observation dataset,
// or renders a single plot straight to a PNG file.
//
// Serve:    scribble -dataset ./obs -config scribble.toml
// One-shot: scribble -dataset ./obs -x TIME -y DATA -corr XX -out plot.png
// Import:   scribble -import data.csv -import-schema cols.toml -dataset ./obs
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/arpan-52/scribble/pkg/catalog"
	"github.com/arpan-52/scribble/pkg/config"
	"github.com/arpan-52/scribble/pkg/dataset"
	"github.com/arpan-52/scribble/pkg/export"
	"github.com/arpan-52/scribble/pkg/logutil"
	"github.com/arpan-52/scribble/pkg/plot"
	"github.com/arpan-52/scribble/pkg/query"
	"github.com/arpan-52/scribble/pkg/server"
)

var (
	configFile   = flag.String("config", "", "service configuration file (toml)")
	datasetDir   = flag.String("dataset", "", "scribble dataset directory")
	importCSV    = flag.String("import", "", "csv file to import into -dataset")
	importSchema = flag.String("import-schema", "", "column declaration file for -import")

	axisX     = flag.String("x", "", "x axis column (one-shot mode)")
	axisY     = flag.String("y", "", "y axis column (one-shot mode)")
	corr      = flag.String("corr", "", "correlation label for complex axes")
	component = flag.String("component", "", "scalar component: amp, phase, real, imag")
	groupBy   = flag.String("group", "", "categorical column to group by")
	scale     = flag.String("scale", "linear", "count scale: linear or log")
	width     = flag.Int("width", 0, "plot width in pixels")
	height    = flag.Int("height", 0, "plot height in pixels")
	outFile   = flag.String("out", "plot.png", "output file (one-shot mode)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "scribble:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseServiceConfig(*configFile)
	if err != nil {
		return err
	}
	if err := logutil.Setup(cfg.Log); err != nil {
		return err
	}
	if *datasetDir == "" {
		return fmt.Errorf("-dataset is required")
	}

	if *importCSV != "" {
		return runImport()
	}

	reader, err := dataset.OpenDisk(*datasetDir)
	if err != nil {
		return err
	}
	session, err := plot.Open(reader, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if *axisX != "" || *axisY != "" {
		return runOnce(session)
	}

	e := server.New(cfg, session)
	logutil.Infof("serving %s on %s", *datasetDir, server.Addr(cfg))
	return e.Start(server.Addr(cfg))
}

func runOnce(session *plot.Session) error {
	raw := &query.RawSelection{
		X:         *axisX,
		Y:         *axisY,
		Corr:      *corr,
		Component: *component,
		GroupBy:   *groupBy,
		Scale:     *scale,
		Width:     *width,
		Height:    *height,
	}
	res, err := session.Render(context.Background(), raw)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*outFile, res.PNG, 0o644); err != nil {
		return err
	}
	sidecar, err := os.Create(*outFile + ".json")
	if err != nil {
		return err
	}
	defer sidecar.Close()
	if err := export.WriteSidecar(sidecar, res.Meta); err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logutil.Warnf("%s: %s", w.Kind, w.Message)
	}
	logutil.Infof("wrote %s", *outFile)
	return nil
}

// importDecl is the toml column declaration accompanying a csv import.
type importDecl struct {
	Columns []struct {
		Name string `toml:"name"`
		Kind string `toml:"kind"`
	} `toml:"column"`
}

func runImport() error {
	if *importSchema == "" {
		return fmt.Errorf("-import needs -import-schema")
	}
	var decl importDecl
	if _, err := toml.DecodeFile(*importSchema, &decl); err != nil {
		return err
	}
	var cols []catalog.SchemaColumn
	for _, c := range decl.Columns {
		var kind catalog.Kind
		switch c.Kind {
		case "numeric":
			kind = catalog.Numeric
		case "categorical":
			kind = catalog.Categorical
		case "flag":
			kind = catalog.Flag
		default:
			return fmt.Errorf("column %s: unknown kind %q", c.Name, c.Kind)
		}
		cols = append(cols, catalog.SchemaColumn{Name: c.Name, Kind: kind})
	}
	return dataset.ImportCSV(context.Background(), *datasetDir, *importCSV, cols)
}
