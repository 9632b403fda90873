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

// ReadTask retrieves the task record, or nil if it does not exist.
func ReadTask(db taskdb.KeyValueReader, queueID, taskID string) *types.Task {
	data, _ := db.Get(taskKey(queueID, taskID))
	if len(data) == 0 {
		return nil
	}
	task := new(types.Task)
	if err := json.Unmarshal(data, task); err != nil {
		log.Crit("Invalid task JSON", "queue", queueID, "task", taskID, "err", err)
	}
	return task
}

// WriteTask stores a task record.
func WriteTask(db taskdb.KeyValueWriter, task *types.Task) {
	data, err := json.Marshal(task)
	if err != nil {
		log.Crit("Failed to JSON encode task", "task", task.ID, "err", err)
	}
	if err := db.Put(taskKey(task.QueueID, task.ID), data); err != nil {
		log.Crit("Failed to store task", "task", task.ID, "err", err)
	}
}

// DeleteTask removes the task record.
func DeleteTask(db taskdb.KeyValueWriter, queueID, taskID string) {
	if err := db.Delete(taskKey(queueID, taskID)); err != nil {
		log.Crit("Failed to delete task", "task", taskID, "err", err)
	}
}

// HasTasks reports whether the queue holds any task records.
func HasTasks(db taskdb.Iteratee, queueID string) bool {
	it := db.NewIterator(taskQueuePrefix(queueID), nil)
	defer it.Release()
	return it.Next()
}

// TaskIterator walks the task records of one queue in taskID order.
type TaskIterator struct {
	inner     taskdb.Iterator
	prefixLen int
}

// IterateTasks creates a TaskIterator over all tasks of a queue.
func IterateTasks(db taskdb.Iteratee, queueID string) *TaskIterator {
	prefix := taskQueuePrefix(queueID)
	return &TaskIterator{
		inner:     db.NewIterator(prefix, nil),
		prefixLen: len(prefix),
	}
}

// Next moves the iterator to the next task. It returns false when the
// iterator is exhausted.
func (it *TaskIterator) Next() bool {
	return it.inner.Next()
}

// TaskID returns the ID of the current task.
func (it *TaskIterator) TaskID() string {
	return string(it.inner.Key()[it.prefixLen:])
}

// Task decodes and returns the current task record.
func (it *TaskIterator) Task() *types.Task {
	task := new(types.Task)
	if err := json.Unmarshal(it.inner.Value(), task); err != nil {
		log.Crit("Invalid task JSON", "key", it.inner.Key(), "err", err)
	}
	return task
}

// Release releases the associated resources.
func (it *TaskIterator) Release() {
	it.inner.Release()
}

// Error returns any accumulated error.
func (it *TaskIterator) Error() error {
	return it.inner.Error()
}

// WriteDispatchEntry adds a pending task to the dispatch order index.
func WriteDispatchEntry(db taskdb.KeyValueWriter, task *types.Task) {
	if err := db.Put(dispatchKey(task.QueueID, task.Priority, task.CreatedAt, task.ID), nil); err != nil {
		log.Crit("Failed to store dispatch entry", "task", task.ID, "err", err)
	}
}

// DeleteDispatchEntry removes a task from the dispatch order index. The
// caller passes the same priority and creation time the entry was written
// with, both kept on the task record.
func DeleteDispatchEntry(db taskdb.KeyValueWriter, task *types.Task) {
	if err := db.Delete(dispatchKey(task.QueueID, task.Priority, task.CreatedAt, task.ID)); err != nil {
		log.Crit("Failed to delete dispatch entry", "task", task.ID, "err", err)
	}
}

// DispatchIterator walks the dispatch order index of one queue: priority
// descending, submission time ascending.
type DispatchIterator struct {
	inner     taskdb.Iterator
	prefixLen int
}

// IterateDispatchOrder creates a DispatchIterator for a queue.
func IterateDispatchOrder(db taskdb.Iteratee, queueID string) *DispatchIterator {
	prefix := dispatchQueuePrefix(queueID)
	return &DispatchIterator{
		inner:     db.NewIterator(prefix, nil),
		prefixLen: len(prefix),
	}
}

// Next moves the iterator to the next entry. It returns false when the
// index is exhausted.
func (it *DispatchIterator) Next() bool {
	return it.inner.Next()
}

// TaskID returns the task ID of the current entry.
func (it *DispatchIterator) TaskID() string {
	return string(it.inner.Key()[it.prefixLen+16:])
}

// Priority returns the priority of the current entry.
func (it *DispatchIterator) Priority() int64 {
	key := it.inner.Key()
	return decodeRevPriority(key[it.prefixLen : it.prefixLen+8])
}

// Release releases the associated resources.
func (it *DispatchIterator) Release() {
	it.inner.Release()
}

// Error returns any accumulated error.
func (it *DispatchIterator) Error() error {
	return it.inner.Error()
}

// WriteRunningEntry marks a task in the running index scanned by the
// reaper.
func WriteRunningEntry(db taskdb.KeyValueWriter, queueID, taskID string) {
	if err := db.Put(runningKey(queueID, taskID), nil); err != nil {
		log.Crit("Failed to store running entry", "task", taskID, "err", err)
	}
}

// DeleteRunningEntry removes a task from the running index.
func DeleteRunningEntry(db taskdb.KeyValueWriter, queueID, taskID string) {
	if err := db.Delete(runningKey(queueID, taskID)); err != nil {
		log.Crit("Failed to delete running entry", "task", taskID, "err", err)
	}
}

// ReadRunningTaskIDs returns the IDs in the running index of a queue, up
// to limit entries (0 means no limit).
func ReadRunningTaskIDs(db taskdb.Iteratee, queueID string, limit int) []string {
	prefix := runningQueuePrefix(queueID)
	it := db.NewIterator(prefix, nil)
	defer it.Release()

	var ids []string
	for it.Next() {
		ids = append(ids, string(it.Key()[len(prefix):]))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		log.Crit("Failed to iterate running index", "queue", queueID, "err", err)
	}
	return ids
}
