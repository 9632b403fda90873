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

import "fmt"

// WorkerStatus is the lifecycle state of a worker.
type WorkerStatus uint32

const (
	WorkerActive WorkerStatus = iota
	WorkerSuspended
	WorkerFailed
	WorkerCrashed
)

// validWorkerTransitions enumerates the admin-driven edges of the worker
// lifecycle. The CRASHED entry is driven internally when the consecutive
// failure budget runs out; recovery from FAILED or CRASHED requires an
// explicit activation.
var validWorkerTransitions = map[WorkerStatus][]WorkerStatus{
	WorkerActive:    {WorkerActive, WorkerSuspended, WorkerFailed, WorkerCrashed},
	WorkerSuspended: {WorkerSuspended, WorkerActive, WorkerFailed},
	WorkerFailed:    {WorkerFailed, WorkerActive},
	WorkerCrashed:   {WorkerCrashed, WorkerActive},
}

// IsValid reports whether the status is a known lifecycle state.
func (st WorkerStatus) IsValid() bool {
	return st <= WorkerCrashed
}

// CanTransition reports whether the lifecycle permits moving from st to next.
func (st WorkerStatus) CanTransition(next WorkerStatus) bool {
	for _, s := range validWorkerTransitions[st] {
		if s == next {
			return true
		}
	}
	return false
}

// String implements the stringer interface.
func (st WorkerStatus) String() string {
	switch st {
	case WorkerActive:
		return "active"
	case WorkerSuspended:
		return "suspended"
	case WorkerFailed:
		return "failed"
	case WorkerCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (st WorkerStatus) MarshalText() ([]byte, error) {
	if !st.IsValid() {
		return nil, fmt.Errorf("unknown worker status %d", st)
	}
	return []byte(st.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (st *WorkerStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*st = WorkerActive
	case "suspended":
		*st = WorkerSuspended
	case "failed":
		*st = WorkerFailed
	case "crashed":
		*st = WorkerCrashed
	default:
		return fmt.Errorf(`unknown worker status %q, want "active", "suspended", "failed" or "crashed"`, text)
	}
	return nil
}

// Worker is a registered executor identity within a queue. Its retries field
// counts consecutive failures; when the count reaches the budget the worker
// is crashed and stops receiving tasks until explicitly reactivated.
type Worker struct {
	ID           string       `json:"worker_id"`
	QueueID      string       `json:"queue_id"`
	Name         string       `json:"worker_name,omitempty"`
	Status       WorkerStatus `json:"status"`
	Metadata     Document     `json:"metadata,omitempty"`
	Retries      uint64       `json:"retries"`
	MaxRetries   uint64       `json:"max_retries"`
	CreatedAt    uint64       `json:"created_at"`
	LastModified uint64       `json:"last_modified"`
}

// Copy creates a deep copy of the worker.
func (w *Worker) Copy() *Worker {
	cpy := *w
	cpy.Metadata = w.Metadata.Copy()
	return &cpy
}
