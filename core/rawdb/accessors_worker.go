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

package rawdb

import (
	"encoding/json"

	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/taskdb"
)

// ReadWorker retrieves the worker record, or nil if it does not exist.
func ReadWorker(db taskdb.KeyValueReader, queueID, workerID string) *types.Worker {
	data, _ := db.Get(workerKey(queueID, workerID))
	if len(data) == 0 {
		return nil
	}
	worker := new(types.Worker)
	if err := json.Unmarshal(data, worker); err != nil {
		log.Crit("Invalid worker JSON", "queue", queueID, "worker", workerID, "err", err)
	}
	return worker
}

// WriteWorker stores a worker record.
func WriteWorker(db taskdb.KeyValueWriter, worker *types.Worker) {
	data, err := json.Marshal(worker)
	if err != nil {
		log.Crit("Failed to JSON encode worker", "worker", worker.ID, "err", err)
	}
	if err := db.Put(workerKey(worker.QueueID, worker.ID), data); err != nil {
		log.Crit("Failed to store worker", "worker", worker.ID, "err", err)
	}
}

// DeleteWorker removes the worker record.
func DeleteWorker(db taskdb.KeyValueWriter, queueID, workerID string) {
	if err := db.Delete(workerKey(queueID, workerID)); err != nil {
		log.Crit("Failed to delete worker", "worker", workerID, "err", err)
	}
}

// HasWorkers reports whether the queue holds any worker records.
func HasWorkers(db taskdb.Iteratee, queueID string) bool {
	it := db.NewIterator(workerQueuePrefix(queueID), nil)
	defer it.Release()
	return it.Next()
}

// WorkerIterator walks the worker records of one queue in workerID order.
type WorkerIterator struct {
	inner     taskdb.Iterator
	prefixLen int
}

// IterateWorkers creates a WorkerIterator over all workers of a queue.
func IterateWorkers(db taskdb.Iteratee, queueID string) *WorkerIterator {
	prefix := workerQueuePrefix(queueID)
	return &WorkerIterator{
		inner:     db.NewIterator(prefix, nil),
		prefixLen: len(prefix),
	}
}

// Next moves the iterator to the next worker. It returns false when the
// iterator is exhausted.
func (it *WorkerIterator) Next() bool {
	return it.inner.Next()
}

// WorkerID returns the ID of the current worker.
func (it *WorkerIterator) WorkerID() string {
	return string(it.inner.Key()[it.prefixLen:])
}

// Worker decodes and returns the current worker record.
func (it *WorkerIterator) Worker() *types.Worker {
	worker := new(types.Worker)
	if err := json.Unmarshal(it.inner.Value(), worker); err != nil {
		log.Crit("Invalid worker JSON", "key", it.inner.Key(), "err", err)
	}
	return worker
}

// Release releases the associated resources.
func (it *WorkerIterator) Release() {
	it.inner.Release()
}

// Error returns any accumulated error.
func (it *WorkerIterator) Error() error {
	return it.inner.Error()
}
