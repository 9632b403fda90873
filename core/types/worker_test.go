// Copyright 2025 The go-taskhive Authors
// This file is part of the go-taskhive library.
//
// The go-taskhive library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-taskhive library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-taskhive library. If not, see <http://www.gnu.org/licenses/>.

package types

import "testing"

func TestWorkerTransitions(t *testing.T) {
	tests := []struct {
		from, to WorkerStatus
		ok       bool
	}{
		{WorkerActive, WorkerActive, true},
		{WorkerActive, WorkerSuspended, true},
		{WorkerActive, WorkerFailed, true},
		{WorkerActive, WorkerCrashed, true},
		{WorkerSuspended, WorkerSuspended, true},
		{WorkerSuspended, WorkerActive, true},
		{WorkerSuspended, WorkerFailed, true},
		{WorkerSuspended, WorkerCrashed, false},
		{WorkerFailed, WorkerFailed, true},
		{WorkerFailed, WorkerActive, true},
		{WorkerFailed, WorkerSuspended, false},
		{WorkerFailed, WorkerCrashed, false},
		{WorkerCrashed, WorkerCrashed, true},
		{WorkerCrashed, WorkerActive, true},
		{WorkerCrashed, WorkerSuspended, false},
		{WorkerCrashed, WorkerFailed, false},
	}
	for _, tt := range tests {
		if have := tt.from.CanTransition(tt.to); have != tt.ok {
			t.Errorf("transition %v -> %v: have %v, want %v", tt.from, tt.to, have, tt.ok)
		}
	}
}

func TestWorkerStatusText(t *testing.T) {
	for _, status := range []WorkerStatus{WorkerActive, WorkerSuspended, WorkerFailed, WorkerCrashed} {
		text, err := status.MarshalText()
		if err != nil {
			t.Fatalf("failed to marshal status %d: %v", status, err)
		}
		var back WorkerStatus
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("failed to unmarshal %q: %v", text, err)
		}
		if back != status {
			t.Errorf("status %v: round trip gave %v", status, back)
		}
	}
	var status WorkerStatus
	if err := status.UnmarshalText([]byte("zombie")); err == nil {
		t.Fatal("unknown status accepted")
	}
}

func TestWorkerCopy(t *testing.T) {
	worker := &Worker{ID: "w1", QueueID: "q1", Status: WorkerActive, Metadata: Document{"gpu": true}}
	cpy := worker.Copy()
	cpy.Metadata["gpu"] = false
	cpy.Status = WorkerCrashed

	if worker.Metadata["gpu"] != true {
		t.Errorf("metadata mutated through copy: %v", worker.Metadata["gpu"])
	}
	if worker.Status != WorkerActive {
		t.Errorf("status mutated through copy: %v", worker.Status)
	}
}
