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

package serr

import "fmt"

// WarningKind classifies non-fatal advisories attached to a successful
// plot result. Warnings never abort the pipeline.
type WarningKind int

const (
	// WarnCategoryOverflow means the group-by column had more distinct
	// categories than the configured cap; the excess was folded into an
	// "other" layer and the legend is truncated.
	WarnCategoryOverflow WarningKind = iota
	// WarnClamp means at least one value fell outside the supplied
	// bounding box and was clamped to an edge bin.
	WarnClamp
	// WarnPartialResult means the scan failed mid-stream and the grid
	// reflects only the chunks read before the failure.
	WarnPartialResult
)

func (k WarningKind) String() string {
	switch k {
	case WarnCategoryOverflow:
		return "category-overflow"
	case WarnClamp:
		return "clamp"
	case WarnPartialResult:
		return "partial-result"
	}
	return fmt.Sprintf("warning(%d)", int(k))
}

// MarshalJSON renders the kind as its string form so sidecar files stay
// readable.
func (k WarningKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// Warning is an advisory attached to a successful result.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func NewWarning(kind WarningKind, msg string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(msg, args...)}
}
