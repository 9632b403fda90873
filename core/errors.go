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

package core

import "errors"

var (
	// ErrQueueNotFound is returned when the referenced queue does not exist.
	ErrQueueNotFound = errors.New("queue not found")

	// ErrQueueExists is returned when creating or renaming a queue to a name
	// that is already taken.
	ErrQueueExists = errors.New("queue already exists")

	// ErrQueueNotEmpty is returned by a non-cascading queue delete while the
	// queue still holds tasks or workers.
	ErrQueueNotEmpty = errors.New("queue not empty")

	// ErrTaskNotFound is returned when the referenced task does not exist in
	// the queue.
	ErrTaskNotFound = errors.New("task not found")

	// ErrWorkerNotFound is returned when the referenced worker does not exist
	// in the queue.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrInvalidTransition is returned when an operation asks for a lifecycle
	// transition the state machine forbids, e.g. reporting a terminal task.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrWorkerNotAvailable is returned by fetch when the claiming worker is
	// suspended, failed or crashed.
	ErrWorkerNotAvailable = errors.New("worker not available")

	// ErrWorkerHoldsTasks is returned by a non-cascading worker delete while
	// the worker still holds running tasks.
	ErrWorkerHoldsTasks = errors.New("worker holds running tasks")

	// ErrValidation wraps all malformed-input failures: illegal names,
	// document keys, durations, enum values and ranges.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is returned when queue authentication fails for
	// any reason, missing queue included.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEventOverflow terminates an event subscription whose subscriber
	// cannot keep up with the journal. The subscriber must resubscribe and
	// replay to recover.
	ErrEventOverflow = errors.New("event subscription queue overflow")

	// ErrUnsafeDisabled is returned by the raw collection query and update
	// operations unless the server explicitly allows unsafe behavior.
	ErrUnsafeDisabled = errors.New("unsafe behavior disabled")

	// ErrEngineStopped is returned when an operation reaches an engine that
	// has already been shut down.
	ErrEngineStopped = errors.New("engine stopped")
)
