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

import (
	"encoding/json"
	"testing"
)

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		ok       bool
	}{
		{TaskPending, TaskRunning, true},
		{TaskPending, TaskCancelled, true},
		{TaskPending, TaskSuccess, false},
		{TaskPending, TaskFailed, false},
		{TaskPending, TaskPending, false},
		{TaskRunning, TaskPending, true},
		{TaskRunning, TaskSuccess, true},
		{TaskRunning, TaskFailed, true},
		{TaskRunning, TaskCancelled, true},
		{TaskRunning, TaskRunning, false},
		{TaskSuccess, TaskPending, false},
		{TaskSuccess, TaskRunning, false},
		{TaskFailed, TaskPending, false},
		{TaskFailed, TaskRunning, false},
		{TaskCancelled, TaskPending, false},
		{TaskCancelled, TaskRunning, false},
	}
	for _, tt := range tests {
		if have := tt.from.CanTransition(tt.to); have != tt.ok {
			t.Errorf("transition %v -> %v: have %v, want %v", tt.from, tt.to, have, tt.ok)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	for _, status := range []TaskStatus{TaskSuccess, TaskFailed, TaskCancelled} {
		if !status.Terminal() {
			t.Errorf("status %v not reported terminal", status)
		}
	}
	for _, status := range []TaskStatus{TaskPending, TaskRunning} {
		if status.Terminal() {
			t.Errorf("status %v reported terminal", status)
		}
	}
}

func TestTaskStatusText(t *testing.T) {
	for _, status := range []TaskStatus{TaskPending, TaskRunning, TaskSuccess, TaskFailed, TaskCancelled} {
		text, err := status.MarshalText()
		if err != nil {
			t.Fatalf("failed to marshal status %d: %v", status, err)
		}
		var back TaskStatus
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("failed to unmarshal %q: %v", text, err)
		}
		if back != status {
			t.Errorf("status %v: round trip gave %v", status, back)
		}
	}
	var status TaskStatus
	if err := status.UnmarshalText([]byte("sleeping")); err == nil {
		t.Fatal("unknown status accepted")
	}
	if _, err := TaskStatus(42).MarshalText(); err == nil {
		t.Fatal("invalid status marshaled")
	}
}

func TestTaskJSONStatus(t *testing.T) {
	task := &Task{ID: "t1", QueueID: "q1", Status: TaskRunning, Cmd: Command{Line: "echo hi"}}
	blob, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("failed to marshal task: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(blob, &fields); err != nil {
		t.Fatalf("failed to decode task blob: %v", err)
	}
	if string(fields["status"]) != `"running"` {
		t.Errorf("status field is %s, want %q", fields["status"], "running")
	}
	var back Task
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatalf("failed to unmarshal task: %v", err)
	}
	if back.Status != TaskRunning || back.Cmd.Line != "echo hi" {
		t.Errorf("task round trip mismatch: %+v", back)
	}
}

func TestTaskCopy(t *testing.T) {
	task := &Task{
		ID:       "t1",
		QueueID:  "q1",
		Status:   TaskPending,
		Metadata: Document{"tags": []any{"a"}},
		Args:     Document{"n": 1.0},
		Summary:  Document{"out": Document{"x": 1.0}},
		Cmd:      Command{Argv: []string{"echo", "hi"}},
	}
	cpy := task.Copy()
	cpy.Metadata["tags"].([]any)[0] = "b"
	cpy.Args["n"] = 2.0
	cpy.Summary.Set("out.x", 9.0)
	cpy.Cmd.Argv[0] = "true"

	if got := task.Metadata["tags"].([]any)[0]; got != "a" {
		t.Errorf("metadata mutated through copy: %v", got)
	}
	if task.Args["n"] != 1.0 {
		t.Errorf("args mutated through copy: %v", task.Args["n"])
	}
	if v, _ := task.Summary.Get("out.x"); v != 1.0 {
		t.Errorf("summary mutated through copy: %v", v)
	}
	if task.Cmd.Argv[0] != "echo" {
		t.Errorf("cmd mutated through copy: %v", task.Cmd.Argv)
	}
}
