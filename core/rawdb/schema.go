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

// Package rawdb contains a collection of low level database accessors.
package rawdb

import "encoding/binary"

// The fields below define the low level database schema prefixing. Queue,
// task and worker IDs are canonical RFC 4122 strings, so every ID segment
// is a fixed 36 bytes and key suffixes parse by offset.
var (
	// Data item prefixes (use single byte to avoid mixing data types).
	queuePrefix     = []byte("q") // queuePrefix + queueID -> queue JSON
	queueNamePrefix = []byte("n") // queueNamePrefix + queueName -> queueID
	taskPrefix      = []byte("t") // taskPrefix + queueID + taskID -> task JSON
	workerPrefix    = []byte("w") // workerPrefix + queueID + workerID -> worker JSON
	runningPrefix   = []byte("r") // runningPrefix + queueID + taskID -> nil

	// dispatchPrefix + queueID + revPriority (uint64 big endian) +
	// createdAt (uint64 big endian) + taskID -> nil. Ascending key order
	// is dispatch order: priority descending, then submission ascending.
	dispatchPrefix = []byte("p")

	eventPrefix       = []byte("e") // eventPrefix + queueID + sequence (uint64 big endian) -> snappy(event JSON)
	journalHeadPrefix = []byte("s") // journalHeadPrefix + queueID -> sequence (uint64 big endian)
)

// idLength is the byte length of a canonical UUID string.
const idLength = 36

// encodeBigEndian encodes a number as big endian uint64.
func encodeBigEndian(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

// encodeRevPriority maps a priority onto a big endian key segment whose
// ascending byte order is descending priority order. The sign bit flip
// makes the int64 ordering total before the complement reverses it.
func encodeRevPriority(priority int64) []byte {
	return encodeBigEndian(^(uint64(priority) ^ (1 << 63)))
}

// decodeRevPriority is the inverse of encodeRevPriority.
func decodeRevPriority(enc []byte) int64 {
	return int64(^binary.BigEndian.Uint64(enc) ^ (1 << 63))
}

// queueKey = queuePrefix + queueID
func queueKey(queueID string) []byte {
	return append(queuePrefix, queueID...)
}

// queueNameKey = queueNamePrefix + queueName
func queueNameKey(name string) []byte {
	return append(queueNamePrefix, name...)
}

// taskKey = taskPrefix + queueID + taskID
func taskKey(queueID, taskID string) []byte {
	return append(append(taskPrefix, queueID...), taskID...)
}

// taskQueuePrefix = taskPrefix + queueID
func taskQueuePrefix(queueID string) []byte {
	return append(taskPrefix, queueID...)
}

// workerKey = workerPrefix + queueID + workerID
func workerKey(queueID, workerID string) []byte {
	return append(append(workerPrefix, queueID...), workerID...)
}

// workerQueuePrefix = workerPrefix + queueID
func workerQueuePrefix(queueID string) []byte {
	return append(workerPrefix, queueID...)
}

// dispatchKey = dispatchPrefix + queueID + revPriority + createdAt + taskID
func dispatchKey(queueID string, priority int64, createdAt uint64, taskID string) []byte {
	key := append(append(dispatchPrefix, queueID...), encodeRevPriority(priority)...)
	return append(append(key, encodeBigEndian(createdAt)...), taskID...)
}

// dispatchQueuePrefix = dispatchPrefix + queueID
func dispatchQueuePrefix(queueID string) []byte {
	return append(dispatchPrefix, queueID...)
}

// runningKey = runningPrefix + queueID + taskID
func runningKey(queueID, taskID string) []byte {
	return append(append(runningPrefix, queueID...), taskID...)
}

// runningQueuePrefix = runningPrefix + queueID
func runningQueuePrefix(queueID string) []byte {
	return append(runningPrefix, queueID...)
}

// eventKey = eventPrefix + queueID + sequence (uint64 big endian)
func eventKey(queueID string, sequence uint64) []byte {
	return append(append(eventPrefix, queueID...), encodeBigEndian(sequence)...)
}

// eventQueuePrefix = eventPrefix + queueID
func eventQueuePrefix(queueID string) []byte {
	return append(eventPrefix, queueID...)
}

// journalHeadKey = journalHeadPrefix + queueID
func journalHeadKey(queueID string) []byte {
	return append(journalHeadPrefix, queueID...)
}
