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

package scan

import (
	"github.com/arpan-52/scribble/pkg/query"
)

// Filter kernels narrow a selection vector against one column. Each
// kernel compacts sels in place and returns the shortened slice, keeping
// row order.

func filterFloat64(vals []float64, p query.Predicate, sels []int64) []int64 {
	k := 0
	switch p.Op {
	case query.OpLT:
		for _, sel := range sels {
			if vals[sel] < p.Operand {
				sels[k] = sel
				k++
			}
		}
	case query.OpLE:
		for _, sel := range sels {
			if vals[sel] <= p.Operand {
				sels[k] = sel
				k++
			}
		}
	case query.OpGT:
		for _, sel := range sels {
			if vals[sel] > p.Operand {
				sels[k] = sel
				k++
			}
		}
	case query.OpGE:
		for _, sel := range sels {
			if vals[sel] >= p.Operand {
				sels[k] = sel
				k++
			}
		}
	case query.OpEQ:
		for _, sel := range sels {
			if vals[sel] == p.Operand {
				sels[k] = sel
				k++
			}
		}
	case query.OpNE:
		for _, sel := range sels {
			if vals[sel] != p.Operand {
				sels[k] = sel
				k++
			}
		}
	case query.OpBetween:
		for _, sel := range sels {
			if vals[sel] >= p.Operand && vals[sel] <= p.High {
				sels[k] = sel
				k++
			}
		}
	default:
		return sels
	}
	return sels[:k]
}

func filterLabels(vals []string, p query.Predicate, sels []int64) []int64 {
	k := 0
	switch p.Op {
	case query.OpIn:
		for _, sel := range sels {
			if _, ok := p.Labels[vals[sel]]; ok {
				sels[k] = sel
				k++
			}
		}
	case query.OpNotIn:
		for _, sel := range sels {
			if _, ok := p.Labels[vals[sel]]; !ok {
				sels[k] = sel
				k++
			}
		}
	default:
		return sels
	}
	return sels[:k]
}
