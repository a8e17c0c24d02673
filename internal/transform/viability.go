// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package transform

import (
	"encoding/json"
	"fmt"

	"github.com/zmadru/SatChange/internal/raster"
)

// Number of run-length buckets. Longer runs are counted in the last bucket
const viabilityBuckets = 16

// Per-run weights for runs of length 1..16 missing samples. A run of length k
// weighs k*(1+(k-1)/8), so long gaps cost more than the samples they cover
var viabilityWeights = [viabilityBuckets]float64{
	1, 2.25, 3.75, 5.5, 7.5, 9.75, 12.25, 15,
	18, 21.25, 24.75, 28.5, 32.5, 36.75, 41.25, 46,
}

// Extra weight per missing sample beyond the last bucket
const viabilityExcessPenalty = 3.0

// Zero-run viability scorer. Output bands are the longest run of Sentinel
// samples, the number of runs of length 1..16 (longer runs in the last
// bucket), and the viability score in [0,100].
//
// Start and End select a 1-based inclusive range of the series. Zero selects
// the first or last sample, and End is clipped to the series length.
type Viability struct {
	Base
	Sentinel float64 `json:"sentinel"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
}

var _ Transform = (*Viability)(nil)

func init() { SetFactory(func() Transform { return NewViabilityDefault() }) }

func NewViabilityDefault() *Viability { return NewViability(0, 0, 0) }

func NewViability(sentinel float64, start, end int) *Viability {
	return &Viability{Base: Base{Type: "viability"}, Sentinel: sentinel, Start: start, End: end}
}

func (t *Viability) UnmarshalJSON(data []byte) error {
	type defaults Viability
	def := defaults(*NewViabilityDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*t = Viability(def)
	return nil
}

// Returns the selected range as 0-based half-open bounds
func (t *Viability) bounds(depth int) (from, to int) {
	from, to = t.Start-1, t.End
	if t.Start == 0 {
		from = 0
	}
	if t.End == 0 || t.End > depth {
		to = depth
	}
	return from, to
}

func (t *Viability) Init(depth int) error {
	if t.Start < 0 || t.End < 0 {
		return fmt.Errorf("viability: negative range %d..%d", t.Start, t.End)
	}
	if from, to := t.bounds(depth); from >= to {
		return fmt.Errorf("viability: empty range %d..%d for series of length %d", t.Start, t.End, depth)
	}
	return nil
}

func (t *Viability) OutDepth(depth int) int   { return viabilityBuckets + 2 }
func (t *Viability) OutputType() raster.DType { return raster.Float32 }
func (t *Viability) HasDiagnostics() bool     { return false }
func (t *Viability) Naming() Naming           { return Naming{Main: "_mask"} }

func (t *Viability) NewKernel(depth int) (Kernel, error) {
	from, to := t.bounds(depth)
	return func(in, out []float64) (Diagnostics, error) {
		for i := range out {
			out[i] = 0
		}
		longest, excess, run := 0, 0, 0
		closeRun := func() {
			if run == 0 {
				return
			}
			if run > longest {
				longest = run
			}
			bucket := run
			if bucket > viabilityBuckets {
				excess += run - viabilityBuckets
				bucket = viabilityBuckets
			}
			out[bucket]++
			run = 0
		}
		for _, v := range in[from:to] {
			if v == t.Sentinel {
				run++
			} else {
				closeRun()
			}
		}
		closeRun()

		penalty := viabilityExcessPenalty * float64(excess)
		for k, w := range viabilityWeights {
			penalty += out[k+1] * w
		}
		score := 100 - penalty*100/float64(to-from)
		if score < 0 {
			score = 0
		}
		out[0] = float64(longest)
		out[viabilityBuckets+1] = score
		return Diagnostics{}, nil
	}, nil
}
