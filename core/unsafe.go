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
	"encoding/json"
	"strings"

	"github.com/taskhive/go-taskhive/core/filters"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
)

// Collection names addressable through the unsafe surface.
const (
	QueuesCollection  = "queues"
	TasksCollection   = "tasks"
	WorkersCollection = "workers"
)

// protectedFields are record fields the unsafe update surface refuses to
// touch: identity, queue scoping, credentials and the lifecycle bookkeeping
// the engine owns. Everything else, user documents above all, is fair game
// for an operator who switched the guard rails off.
var protectedFields = map[string]bool{
	"task_id":        true,
	"worker_id":      true,
	"queue_id":       true,
	"queue_name":     true,
	"password_hash":  true,
	"status":         true,
	"retries":        true,
	"created_at":     true,
	"start_time":     true,
	"last_heartbeat": true,
	"last_modified":  true,
}

func validCollection(name string) error {
	switch name {
	case QueuesCollection, TasksCollection, WorkersCollection:
		return nil
	}
	return invalidf("unknown collection %q, want \"queues\", \"tasks\" or \"workers\"", name)
}

// QueryCollection runs a raw filter over one collection of a queue and
// returns the matching records as documents, without the lifecycle checks
// of the regular operations. The scan never leaves the caller's queue and
// password hashes are projected away. Available only with unsafe behavior
// enabled.
func (e *Engine) QueryCollection(queueID, collection string, filter types.Document, limit, offset int) ([]types.Document, error) {
	if !e.config.AllowUnsafe {
		return nil, ErrUnsafeDisabled
	}
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	limit, err := sanitizePage(offset, limit)
	if err != nil {
		return nil, err
	}
	pred, err := filters.Compile(filter)
	if err != nil {
		return nil, invalid(err)
	}
	queue, err := e.requireQueue(queueID)
	if err != nil {
		return nil, err
	}
	var (
		docs    []types.Document
		skipped int
	)
	collect := func(record any) {
		doc := recordDocument(record)
		if !pred.Match(doc) || len(docs) >= limit {
			return
		}
		if skipped < offset {
			skipped++
			return
		}
		docs = append(docs, doc)
	}
	switch collection {
	case QueuesCollection:
		collect(queue.Redacted())
	case TasksCollection:
		it := rawdb.IterateTasks(e.db, queueID)
		for it.Next() && len(docs) < limit {
			collect(it.Task())
		}
		it.Release()
		if err := it.Error(); err != nil {
			return nil, err
		}
	case WorkersCollection:
		it := rawdb.IterateWorkers(e.db, queueID)
		for it.Next() && len(docs) < limit {
			collect(it.Worker())
		}
		it.Release()
		if err := it.Error(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// UpdateCollection applies a raw field update to every record of a
// collection matching the filter, scoped to the caller's queue. Update keys
// are dotted paths into the record document; engine owned fields are
// rejected, not silently dropped. Derived dispatch entries are kept in sync
// for task updates. Returns the number of records rewritten. Available only
// with unsafe behavior enabled.
func (e *Engine) UpdateCollection(queueID, collection string, filter, update types.Document) (int, error) {
	if !e.config.AllowUnsafe {
		return 0, ErrUnsafeDisabled
	}
	if err := validCollection(collection); err != nil {
		return 0, err
	}
	if len(update) == 0 {
		return 0, invalidf("empty update document")
	}
	for key := range update {
		root, _, _ := strings.Cut(key, ".")
		if protectedFields[root] {
			return 0, invalidf("field %q is engine owned and cannot be updated", key)
		}
	}
	pred, err := filters.Compile(filter)
	if err != nil {
		return 0, invalid(err)
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return 0, err
	}
	var (
		now      = types.NowMilli()
		batch    = e.db.NewBatch()
		modified int
	)
	switch collection {
	case QueuesCollection:
		queue := rawdb.ReadQueue(e.db, queueID)
		if pred.Match(recordDocument(queue)) {
			patched := new(types.Queue)
			if err := patchRecord(queue, update, patched); err != nil {
				return 0, err
			}
			patched.PasswordHash = queue.PasswordHash // projected away in the document form
			patched.LastModified = now
			rawdb.WriteQueue(batch, patched)
			modified++
		}
	case TasksCollection:
		it := rawdb.IterateTasks(e.db, queueID)
		for it.Next() {
			task := it.Task()
			if !pred.Match(recordDocument(task)) {
				continue
			}
			patched := new(types.Task)
			if err := patchRecord(task, update, patched); err != nil {
				it.Release()
				return 0, err
			}
			patched.LastModified = now
			// The dispatch key embeds the priority, rewrite the entry.
			if task.Status == types.TaskPending {
				rawdb.DeleteDispatchEntry(batch, task)
				rawdb.WriteDispatchEntry(batch, patched)
			}
			rawdb.WriteTask(batch, patched)
			modified++
		}
		it.Release()
		if err := it.Error(); err != nil {
			return 0, err
		}
	case WorkersCollection:
		it := rawdb.IterateWorkers(e.db, queueID)
		for it.Next() {
			worker := it.Worker()
			if !pred.Match(recordDocument(worker)) {
				continue
			}
			patched := new(types.Worker)
			if err := patchRecord(worker, update, patched); err != nil {
				it.Release()
				return 0, err
			}
			patched.LastModified = now
			rawdb.WriteWorker(batch, patched)
			modified++
		}
		it.Release()
		if err := it.Error(); err != nil {
			return 0, err
		}
	}
	if modified == 0 {
		return 0, nil
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	e.log.Warn("Unsafe collection update applied", "queue", queueID, "collection", collection, "modified", modified)
	return modified, nil
}

// patchRecord applies dotted-path assignments to the document form of a
// record and decodes the result back into out, catching type-breaking
// updates before anything is stored.
func patchRecord(record any, update types.Document, out any) error {
	doc := recordDocument(record)
	for key, value := range update {
		doc.Set(key, value)
	}
	blob, err := json.Marshal(doc)
	if err != nil {
		return invalidf("update produces unencodable record: %v", err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return invalidf("update breaks the record shape: %v", err)
	}
	return nil
}
