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

// ReadQueue retrieves the queue record, or nil if it does not exist.
func ReadQueue(db taskdb.KeyValueReader, queueID string) *types.Queue {
	data, _ := db.Get(queueKey(queueID))
	if len(data) == 0 {
		return nil
	}
	queue := new(types.Queue)
	if err := json.Unmarshal(data, queue); err != nil {
		log.Crit("Invalid queue JSON", "queue", queueID, "err", err)
	}
	return queue
}

// WriteQueue stores a queue record.
func WriteQueue(db taskdb.KeyValueWriter, queue *types.Queue) {
	data, err := json.Marshal(queue)
	if err != nil {
		log.Crit("Failed to JSON encode queue", "queue", queue.ID, "err", err)
	}
	if err := db.Put(queueKey(queue.ID), data); err != nil {
		log.Crit("Failed to store queue", "queue", queue.ID, "err", err)
	}
}

// DeleteQueue removes the queue record.
func DeleteQueue(db taskdb.KeyValueWriter, queueID string) {
	if err := db.Delete(queueKey(queueID)); err != nil {
		log.Crit("Failed to delete queue", "queue", queueID, "err", err)
	}
}

// ReadQueueIDByName resolves a queue name through the unique name index,
// returning the empty string if the name is not taken.
func ReadQueueIDByName(db taskdb.KeyValueReader, name string) string {
	data, _ := db.Get(queueNameKey(name))
	return string(data)
}

// WriteQueueNameIndex stores the name -> queueID mapping.
func WriteQueueNameIndex(db taskdb.KeyValueWriter, name, queueID string) {
	if err := db.Put(queueNameKey(name), []byte(queueID)); err != nil {
		log.Crit("Failed to store queue name index", "name", name, "err", err)
	}
}

// DeleteQueueNameIndex removes the name -> queueID mapping.
func DeleteQueueNameIndex(db taskdb.KeyValueWriter, name string) {
	if err := db.Delete(queueNameKey(name)); err != nil {
		log.Crit("Failed to delete queue name index", "name", name, "err", err)
	}
}

// ReadAllQueues retrieves every queue record. The reaper uses this to plan
// its sweeps.
func ReadAllQueues(db taskdb.Iteratee) []*types.Queue {
	it := db.NewIterator(queuePrefix, nil)
	defer it.Release()

	var queues []*types.Queue
	for it.Next() {
		queue := new(types.Queue)
		if err := json.Unmarshal(it.Value(), queue); err != nil {
			log.Crit("Invalid queue JSON", "key", it.Key(), "err", err)
		}
		queues = append(queues, queue)
	}
	if err := it.Error(); err != nil {
		log.Crit("Failed to iterate queues", "err", err)
	}
	return queues
}
