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

// Package config defines the service parameters and their toml file form.
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/arpan-52/scribble/pkg/common/serr"
	"github.com/arpan-52/scribble/pkg/logutil"
)

// ServiceConfig collects every tunable of the scribble service.
type ServiceConfig struct {
	//listening ip
	Host string `toml:"host"`

	//port the http server listens on
	Port int64 `toml:"port"`

	//the count of rows requested from the table reader per chunk
	ChunkRows int64 `toml:"chunkRows"`

	//the count of goroutines binning chunks in parallel. 0 picks GOMAXPROCS
	WorkerCount int64 `toml:"workerCount"`

	//distinct group-by categories kept before folding into "other"
	MaxCategories int64 `toml:"maxCategories"`

	//transient chunk-read retries before a scan is declared failed
	ScanRetries int64 `toml:"scanRetries"`

	//smallest and largest accepted plot resolution per axis
	MinResolution int64 `toml:"minResolution"`
	MaxResolution int64 `toml:"maxResolution"`

	Log logutil.LogConfig `toml:"log"`
}

// NewServiceConfig returns the defaults used when a field is absent from
// the file.
func NewServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:          "127.0.0.1",
		Port:          8395,
		ChunkRows:     1 << 16,
		WorkerCount:   0,
		MaxCategories: 16,
		ScanRetries:   2,
		MinResolution: 1,
		MaxResolution: 4096,
		Log: logutil.LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ParseServiceConfig reads file over the defaults and validates the
// result.
func ParseServiceConfig(file string) (*ServiceConfig, error) {
	cfg := NewServiceConfig()
	if file != "" {
		if _, err := toml.DecodeFile(file, cfg); err != nil {
			return nil, serr.NewBadConfig("%s: %s", file, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return serr.NewBadConfig("port %d out of range", c.Port)
	}
	if c.ChunkRows <= 0 {
		return serr.NewBadConfig("chunkRows must be positive, got %d", c.ChunkRows)
	}
	if c.WorkerCount < 0 {
		return serr.NewBadConfig("workerCount must not be negative, got %d", c.WorkerCount)
	}
	if c.MaxCategories <= 0 {
		return serr.NewBadConfig("maxCategories must be positive, got %d", c.MaxCategories)
	}
	if c.ScanRetries < 0 {
		return serr.NewBadConfig("scanRetries must not be negative, got %d", c.ScanRetries)
	}
	if c.MinResolution < 1 || c.MaxResolution < c.MinResolution {
		return serr.NewBadConfig("resolution bounds [%d, %d] are inverted or empty",
			c.MinResolution, c.MaxResolution)
	}
	return nil
}
