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

// Package types contains the data types of the task hive: queues, tasks,
// workers, their lifecycle states and the journal events that record every
// state transition.
package types

import (
	"fmt"
	"time"
)

// Task priorities. Higher values dispatch first; ties break by submission
// time, oldest first. Any non-negative integer is a legal priority, these
// are the named bands submitters commonly use.
const (
	PriorityLow    int64 = 0
	PriorityMedium int64 = 10 // default
	PriorityHigh   int64 = 20
)

const (
	// DefaultHeartbeatTimeout is applied to submitted tasks that carry no
	// explicit heartbeat timeout, in seconds.
	DefaultHeartbeatTimeout float64 = 60

	// DefaultMaxRetries bounds the automatic requeue budget of a task and
	// the consecutive failure budget of a worker.
	DefaultMaxRetries uint64 = 3
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus uint32

const (
	TaskPending TaskStatus = iota
	TaskRunning
	TaskSuccess
	TaskFailed
	TaskCancelled
)

// validTaskTransitions enumerates the edges of the task lifecycle. Terminal
// states are absorbing; an admin reset bypasses the table deliberately.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending: {TaskRunning, TaskCancelled},
	TaskRunning: {TaskPending, TaskSuccess, TaskFailed, TaskCancelled},
}

// IsValid reports whether the status is a known lifecycle state.
func (st TaskStatus) IsValid() bool {
	return st <= TaskCancelled
}

// Terminal reports whether the status is absorbing: no regular transition
// leaves it.
func (st TaskStatus) Terminal() bool {
	switch st {
	case TaskSuccess, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle permits moving from st to next.
func (st TaskStatus) CanTransition(next TaskStatus) bool {
	for _, s := range validTaskTransitions[st] {
		if s == next {
			return true
		}
	}
	return false
}

// String implements the stringer interface.
func (st TaskStatus) String() string {
	switch st {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSuccess:
		return "success"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (st TaskStatus) MarshalText() ([]byte, error) {
	if !st.IsValid() {
		return nil, fmt.Errorf("unknown task status %d", st)
	}
	return []byte(st.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (st *TaskStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*st = TaskPending
	case "running":
		*st = TaskRunning
	case "success":
		*st = TaskSuccess
	case "failed":
		*st = TaskFailed
	case "cancelled":
		*st = TaskCancelled
	default:
		return fmt.Errorf(`unknown task status %q, want "pending", "running", "success", "failed" or "cancelled"`, text)
	}
	return nil
}

// Task is one unit of work queued for execution: its parameters, priority,
// retry budget and lifecycle record. Timestamps are Unix milliseconds UTC;
// a zero optional timestamp means unset.
type Task struct {
	ID               string     `json:"task_id"`
	QueueID          string     `json:"queue_id"`
	Name             string     `json:"task_name,omitempty"`
	Status           TaskStatus `json:"status"`
	CreatedAt        uint64     `json:"created_at"`
	StartTime        uint64     `json:"start_time,omitempty"`     // set on first RUNNING entry, kept across requeues
	LastHeartbeat    uint64     `json:"last_heartbeat,omitempty"` // meaningful only while RUNNING
	LastModified     uint64     `json:"last_modified"`
	HeartbeatTimeout float64    `json:"heartbeat_timeout,omitempty"` // seconds, 0 disables heartbeat reaping
	TaskTimeout      int64      `json:"task_timeout,omitempty"`      // seconds, 0 disables the wall-clock cap
	MaxRetries       uint64     `json:"max_retries"`
	Retries          uint64     `json:"retries"`
	Priority         int64      `json:"priority"`
	Metadata         Document   `json:"metadata,omitempty"`
	Args             Document   `json:"args,omitempty"`
	Cmd              Command    `json:"cmd"`
	Summary          Document   `json:"summary,omitempty"`
	WorkerID         string     `json:"worker_id,omitempty"` // holder of the task, set iff RUNNING
}

// Copy creates a deep copy of the task, detaching the document subtrees so
// that snapshots cannot be mutated through the original.
func (t *Task) Copy() *Task {
	cpy := *t
	cpy.Metadata = t.Metadata.Copy()
	cpy.Args = t.Args.Copy()
	cpy.Summary = t.Summary.Copy()
	cpy.Cmd = t.Cmd.Copy()
	return &cpy
}

// NowMilli returns the current wall clock as a Unix millisecond timestamp,
// the resolution all hive records use.
func NowMilli() uint64 {
	return uint64(time.Now().UnixMilli())
}
