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

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/crypto"
	"github.com/taskhive/go-taskhive/metrics"
)

var (
	queueCreateCounter = metrics.NewRegisteredCounter("hive/queues/created", nil)
	queueDeleteCounter = metrics.NewRegisteredCounter("hive/queues/deleted", nil)
)

// newID mints a fresh record identifier.
func newID() string {
	return uuid.NewString()
}

// invalid tags an error as a rejected input, mapped to an unprocessable
// entity by the API layer.
func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// invalidf is invalid with formatting.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// QueueUpdate carries the changes of an UpdateQueue call. Nil fields keep
// their stored value. Metadata is a merge delta: mappings merge recursively,
// null values delete their key.
type QueueUpdate struct {
	Name     *string
	Password *string
	Metadata types.Document
}

// CreateQueue registers a new named queue protected by the given password.
// Queue names are unique across the hive.
func (e *Engine) CreateQueue(name, password string, metadata types.Document) (*types.Queue, error) {
	if err := types.ValidateName("queue name", name); err != nil {
		return nil, invalid(err)
	}
	if password == "" {
		return nil, invalidf("queue password must not be empty")
	}
	if err := metadata.ValidateKeys(); err != nil {
		return nil, invalid(err)
	}
	hash, err := crypto.HashPassword(password, crypto.LightScryptN, crypto.LightScryptP)
	if err != nil {
		return nil, err
	}
	now := types.NowMilli()
	queue := &types.Queue{
		ID:           newID(),
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		LastModified: now,
		Metadata:     metadata.Copy(),
	}
	// The name index claim is the uniqueness point, serialize it.
	e.nameMu.Lock()
	defer e.nameMu.Unlock()

	if rawdb.ReadQueueIDByName(e.db, name) != "" {
		return nil, fmt.Errorf("%w: %q", ErrQueueExists, name)
	}
	batch := e.db.NewBatch()
	rawdb.WriteQueue(batch, queue)
	rawdb.WriteQueueNameIndex(batch, name, queue.ID)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	queueCreateCounter.Inc(1)
	e.log.Info("Queue created", "queue", queue.ID, "name", name)

	e.queueFeed.Send(QueueChange{Kind: QueueCreated, QueueID: queue.ID, Name: name})
	return queue, nil
}

// Queue retrieves a queue record by ID.
func (e *Engine) Queue(queueID string) (*types.Queue, error) {
	queue := rawdb.ReadQueue(e.db, queueID)
	if queue == nil {
		return nil, ErrQueueNotFound
	}
	return queue, nil
}

// QueueByName resolves a queue through the unique name index.
func (e *Engine) QueueByName(name string) (*types.Queue, error) {
	queueID := rawdb.ReadQueueIDByName(e.db, name)
	if queueID == "" {
		return nil, ErrQueueNotFound
	}
	return e.Queue(queueID)
}

// AuthenticateQueue verifies a (name, password) credential pair against the
// stored hash and returns the queue on success. Unknown names and wrong
// passwords are indistinguishable to the caller.
func (e *Engine) AuthenticateQueue(name, password string) (*types.Queue, error) {
	queueID := rawdb.ReadQueueIDByName(e.db, name)
	if queueID == "" {
		return nil, ErrInvalidCredentials
	}
	queue := rawdb.ReadQueue(e.db, queueID)
	if queue == nil || !crypto.VerifyPassword(password, queue.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return queue, nil
}

// UpdateQueue applies a rename, a password change and/or a metadata delta to
// a queue. Renames keep the name unique; a no-op rename is allowed.
func (e *Engine) UpdateQueue(queueID string, upd QueueUpdate) (*types.Queue, error) {
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	queue := rawdb.ReadQueue(e.db, queueID)
	if queue == nil {
		return nil, ErrQueueNotFound
	}
	batch := e.db.NewBatch()

	if upd.Name != nil && *upd.Name != queue.Name {
		if err := types.ValidateName("queue name", *upd.Name); err != nil {
			return nil, invalid(err)
		}
		// Hold the name index lock until the rename commits, otherwise a
		// concurrent create could claim the name in between.
		e.nameMu.Lock()
		defer e.nameMu.Unlock()

		if taken := rawdb.ReadQueueIDByName(e.db, *upd.Name); taken != "" && taken != queueID {
			return nil, fmt.Errorf("%w: %q", ErrQueueExists, *upd.Name)
		}
		rawdb.DeleteQueueNameIndex(batch, queue.Name)
		rawdb.WriteQueueNameIndex(batch, *upd.Name, queueID)
		queue.Name = *upd.Name
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, invalidf("queue password must not be empty")
		}
		hash, err := crypto.HashPassword(*upd.Password, crypto.LightScryptN, crypto.LightScryptP)
		if err != nil {
			return nil, err
		}
		queue.PasswordHash = hash
	}
	if upd.Metadata != nil {
		if err := upd.Metadata.ValidateKeys(); err != nil {
			return nil, invalid(err)
		}
		queue.Metadata = types.MergeDelta(queue.Metadata, upd.Metadata)
	}
	queue.LastModified = types.NowMilli()
	rawdb.WriteQueue(batch, queue)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	e.log.Info("Queue updated", "queue", queueID, "name", queue.Name)

	e.queueFeed.Send(QueueChange{Kind: QueueUpdated, QueueID: queueID, Name: queue.Name})
	return queue, nil
}

// DeleteQueue removes a queue. Without cascade the call is refused while
// the queue still holds task or worker records; with cascade every record
// keyed under the queue is purged, the journal included. Live event
// subscriptions of the queue end cleanly.
func (e *Engine) DeleteQueue(queueID string, cascade bool) error {
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	queue := rawdb.ReadQueue(e.db, queueID)
	if queue == nil {
		return ErrQueueNotFound
	}
	if !cascade && (rawdb.HasTasks(e.db, queueID) || rawdb.HasWorkers(e.db, queueID)) {
		return fmt.Errorf("%w: %q still holds tasks or workers", ErrQueueNotEmpty, queue.Name)
	}
	batch := e.db.NewBatch()
	rawdb.DeleteQueue(batch, queueID)
	rawdb.DeleteQueueNameIndex(batch, queue.Name)
	rawdb.WipeQueue(batch, queueID)
	if err := batch.Write(); err != nil {
		return err
	}
	e.dropQueueSubs(queueID)
	e.dropQueueLock(queueID)
	queueDeleteCounter.Inc(1)
	e.log.Info("Queue deleted", "queue", queueID, "name", queue.Name, "cascade", cascade)

	e.queueFeed.Send(QueueChange{Kind: QueueDeleted, QueueID: queueID, Name: queue.Name})
	return nil
}

// requireQueue loads the queue record inside a critical section, mapping a
// missing record to ErrQueueNotFound.
func (e *Engine) requireQueue(queueID string) (*types.Queue, error) {
	queue := rawdb.ReadQueue(e.db, queueID)
	if queue == nil {
		return nil, ErrQueueNotFound
	}
	return queue, nil
}

// IsNotFound reports whether an error is one of the record lookup failures.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQueueNotFound) || errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrWorkerNotFound)
}
