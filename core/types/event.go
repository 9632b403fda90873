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

import "encoding/json"

// EventType discriminates journal event payloads.
type EventType string

const (
	// StateTransitionEvent records one committed task or worker lifecycle
	// transition.
	StateTransitionEvent EventType = "state_transition"
)

// EntityType names the kind of record an event refers to.
type EntityType string

const (
	TaskEntity   EntityType = "task"
	WorkerEntity EntityType = "worker"
)

// Event is one row of the per-queue journal. Sequence numbers are assigned
// at commit time and form a gap-free strictly increasing series within a
// queue; an event exists iff the transition it records was committed.
type Event struct {
	QueueID    string          `json:"queue_id"`
	Sequence   uint64          `json:"sequence"`
	Timestamp  uint64          `json:"timestamp"`
	Type       EventType       `json:"type"`
	Metadata   Document        `json:"metadata"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	OldState   string          `json:"old_state"`
	NewState   string          `json:"new_state"`
	EntityData json.RawMessage `json:"entity_data"`
}

// NewTaskTransition creates the journal record for a task state change. The
// snapshot captures the task after the transition; the sequence number is
// filled in by the journal at commit.
func NewTaskTransition(task *Task, old, new TaskStatus) *Event {
	blob, _ := json.Marshal(task)
	return &Event{
		QueueID:    task.QueueID,
		Timestamp:  NowMilli(),
		Type:       StateTransitionEvent,
		Metadata:   Document{},
		EntityType: TaskEntity,
		EntityID:   task.ID,
		OldState:   old.String(),
		NewState:   new.String(),
		EntityData: blob,
	}
}

// NewWorkerTransition creates the journal record for a worker state change.
func NewWorkerTransition(worker *Worker, old, new WorkerStatus) *Event {
	blob, _ := json.Marshal(worker)
	return &Event{
		QueueID:    worker.QueueID,
		Timestamp:  NowMilli(),
		Type:       StateTransitionEvent,
		Metadata:   Document{},
		EntityType: WorkerEntity,
		EntityID:   worker.ID,
		OldState:   old.String(),
		NewState:   new.String(),
		EntityData: blob,
	}
}
