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
	"encoding/binary"
	"encoding/json"

	"github.com/golang/snappy"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/metrics"
	"github.com/taskhive/go-taskhive/taskdb"
)

var (
	journalWriteCounter = metrics.NewRegisteredCounter("rawdb/journal/writes", nil)
	journalBytesMeter   = metrics.NewRegisteredMeter("rawdb/journal/bytes", nil)
)

// ReadJournalHead retrieves the highest assigned event sequence of a
// queue, or zero if the journal is empty.
func ReadJournalHead(db taskdb.KeyValueReader, queueID string) uint64 {
	data, _ := db.Get(journalHeadKey(queueID))
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// WriteJournalHead stores the highest assigned event sequence of a queue.
// It is staged in the same batch as the event carrying that sequence, so
// head and journal cannot diverge.
func WriteJournalHead(db taskdb.KeyValueWriter, queueID string, sequence uint64) {
	if err := db.Put(journalHeadKey(queueID), encodeBigEndian(sequence)); err != nil {
		log.Crit("Failed to store journal head", "queue", queueID, "err", err)
	}
}

// HasEvent reports whether a (queue, sequence) journal slot is occupied.
func HasEvent(db taskdb.KeyValueReader, queueID string, sequence uint64) bool {
	ok, _ := db.Has(eventKey(queueID, sequence))
	return ok
}

// ReadEvent retrieves the journal event at a sequence, or nil if the slot
// is empty.
func ReadEvent(db taskdb.KeyValueReader, queueID string, sequence uint64) *types.Event {
	data, _ := db.Get(eventKey(queueID, sequence))
	if len(data) == 0 {
		return nil
	}
	return decodeEvent(data, eventKey(queueID, sequence))
}

// WriteEvent stores a journal event under its (queue, sequence) key,
// snappy compressed.
func WriteEvent(db taskdb.KeyValueWriter, event *types.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Crit("Failed to JSON encode event", "queue", event.QueueID, "sequence", event.Sequence, "err", err)
	}
	blob := snappy.Encode(nil, data)
	if err := db.Put(eventKey(event.QueueID, event.Sequence), blob); err != nil {
		log.Crit("Failed to store event", "queue", event.QueueID, "sequence", event.Sequence, "err", err)
	}
	journalWriteCounter.Inc(1)
	journalBytesMeter.Mark(int64(len(blob)))
}

func decodeEvent(blob []byte, key []byte) *types.Event {
	data, err := snappy.Decode(nil, blob)
	if err != nil {
		log.Crit("Corrupt event blob", "key", key, "err", err)
	}
	event := new(types.Event)
	if err := json.Unmarshal(data, event); err != nil {
		log.Crit("Invalid event JSON", "key", key, "err", err)
	}
	return event
}

// EventIterator walks the journal of one queue in sequence order.
type EventIterator struct {
	inner     taskdb.Iterator
	prefixLen int
}

// IterateEvents creates an EventIterator over the journal of a queue,
// starting at the given sequence (inclusive).
func IterateEvents(db taskdb.Iteratee, queueID string, start uint64) *EventIterator {
	prefix := eventQueuePrefix(queueID)
	return &EventIterator{
		inner:     db.NewIterator(prefix, encodeBigEndian(start)),
		prefixLen: len(prefix),
	}
}

// Next moves the iterator to the next event. It returns false when the
// journal is exhausted.
func (it *EventIterator) Next() bool {
	return it.inner.Next()
}

// Sequence returns the sequence number of the current event.
func (it *EventIterator) Sequence() uint64 {
	key := it.inner.Key()
	return binary.BigEndian.Uint64(key[it.prefixLen:])
}

// Event decodes and returns the current event.
func (it *EventIterator) Event() *types.Event {
	return decodeEvent(it.inner.Value(), it.inner.Key())
}

// Release releases the associated resources.
func (it *EventIterator) Release() {
	it.inner.Release()
}

// Error returns any accumulated error.
func (it *EventIterator) Error() error {
	return it.inner.Error()
}
