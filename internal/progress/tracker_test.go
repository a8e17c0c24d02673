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

package progress

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestAdvanceMonotonic(t *testing.T) {
	tr := NewTracker()
	tr.SetPhase(Processing)
	steps := []struct{ done, total, want int }{
		{1, 3, 33},
		{2, 3, 67},
		{1, 3, 67}, // late arrival of a smaller count
		{3, 3, 100},
		{4, 3, 100},
		{0, 0, 100},
	}
	for i, s := range steps {
		tr.Advance(s.done, s.total)
		if got := tr.Snapshot().Progress; got != s.want {
			t.Errorf("%d: progress=%d; want %d", i, got, s.want)
		}
	}
}

func TestLifecycle(t *testing.T) {
	tr := NewTracker()
	tr.Fail(errors.New("previous run"))
	tr.Reset()
	if s := tr.Snapshot(); s.Phase != Idle || s.Progress != 0 || s.Error != "" {
		t.Fatalf("after reset %+v; want idle", s)
	}
	tr.SetPhase(Loading)
	tr.SetPhase(Processing)
	tr.Advance(5, 10)
	restore := tr.BeginSaving()
	if p := tr.Snapshot().Phase; p != Saving {
		t.Errorf("phase=%v; want saving", p)
	}
	restore()
	if p := tr.Snapshot().Phase; p != Processing {
		t.Errorf("phase=%v; want processing restored", p)
	}
	tr.Done("out_ACF1_.tif")
	s := tr.Snapshot()
	if s.Phase != Done || s.Progress != 100 || s.OutputPath != "out_ACF1_.tif" {
		t.Errorf("final %+v; want done at 100", s)
	}
}

func TestFailKeepsProgress(t *testing.T) {
	tr := NewTracker()
	tr.SetPhase(Processing)
	tr.Advance(1, 4)
	tr.Fail(errors.New("row 3: singular matrix"))
	s := tr.Snapshot()
	if s.Phase != Error || s.Progress != 25 || s.Error != "row 3: singular matrix" {
		t.Errorf("%+v; want error at 25", s)
	}
	if s.Phase.Active() {
		t.Error("error phase reported as active")
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := Snapshot{Phase: Saving, Progress: 100}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"phase":"saving","progress":100,"outputPath":""}`
	if string(b) != want {
		t.Errorf("json=%s; want %s", b, want)
	}
	var back Snapshot
	if err := json.Unmarshal(b, &back); err != nil || back != s {
		t.Errorf("back=%+v err=%v; want %+v", back, err, s)
	}
}

func TestConcurrentPolling(t *testing.T) {
	tr := NewTracker()
	tr.SetPhase(Processing)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			tr.Advance(i, 1000)
		}
	}()
	go func() {
		defer wg.Done()
		last := 0
		for i := 0; i < 1000; i++ {
			p := tr.Snapshot().Progress
			if p < last {
				t.Errorf("progress went from %d to %d", last, p)
				return
			}
			last = p
		}
	}()
	wg.Wait()
}
