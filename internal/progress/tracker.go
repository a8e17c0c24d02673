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

// Package progress holds the pollable state of a transform run.
//
// A Tracker is owned by one run at a time, which is the single writer.
// Any number of pollers may read snapshots concurrently.
package progress

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Phase of a run
type Phase int

const (
	Idle Phase = iota
	Loading
	Processing
	Saving
	Done
	Error
)

var phaseNames = []string{"idle", "loading", "processing", "saving", "done", "error"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i, n := range phaseNames {
		if n == s {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase '%s'", string(text))
}

// Active phases belong to a run in flight
func (p Phase) Active() bool {
	return p == Loading || p == Processing || p == Saving
}

// A point-in-time copy of the tracker state
type Snapshot struct {
	Phase      Phase  `json:"phase"`
	Progress   int    `json:"progress"` // 0..100, non-decreasing within a run
	OutputPath string `json:"outputPath"`
	Error      string `json:"error,omitempty"`
}

// Tracker is a last-write-wins register for run state
type Tracker struct {
	mutex sync.RWMutex
	state Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Resets to idle with zero progress, at the start of every run
func (t *Tracker) Reset() {
	t.mutex.Lock()
	t.state = Snapshot{}
	t.mutex.Unlock()
}

func (t *Tracker) SetPhase(p Phase) {
	t.mutex.Lock()
	t.state.Phase = p
	t.mutex.Unlock()
}

// Sets progress to round(done/total*100). Never moves progress backwards
func (t *Tracker) Advance(done, total int) {
	if total <= 0 {
		return
	}
	p := int(math.Round(float64(done) * 100 / float64(total)))
	if p > 100 {
		p = 100
	}
	t.mutex.Lock()
	if p > t.state.Progress {
		t.state.Progress = p
	}
	t.mutex.Unlock()
}

// Switches to the saving phase and returns a function restoring the prior phase
func (t *Tracker) BeginSaving() (restore func()) {
	t.mutex.Lock()
	prior := t.state.Phase
	t.state.Phase = Saving
	t.mutex.Unlock()
	return func() {
		t.mutex.Lock()
		if t.state.Phase == Saving {
			t.state.Phase = prior
		}
		t.mutex.Unlock()
	}
}

// Marks the run as complete with the path of its primary output
func (t *Tracker) Done(outputPath string) {
	t.mutex.Lock()
	t.state.Phase = Done
	t.state.Progress = 100
	t.state.OutputPath = outputPath
	t.mutex.Unlock()
}

// Marks the run as failed. Progress is kept where it stopped
func (t *Tracker) Fail(err error) {
	t.mutex.Lock()
	t.state.Phase = Error
	t.state.OutputPath = ""
	if err != nil {
		t.state.Error = err.Error()
	}
	t.mutex.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.state
}
