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
	"fmt"

	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/taskdb"
	"github.com/taskhive/go-taskhive/taskdb/leveldb"
	"github.com/taskhive/go-taskhive/taskdb/memorydb"
	"github.com/taskhive/go-taskhive/taskdb/pebble"
)

const (
	dbMemory  = "memory"
	dbLeveldb = "leveldb"
	dbPebble  = "pebble"
)

// NewMemoryDatabase creates an ephemeral in-memory key-value database.
func NewMemoryDatabase() taskdb.Database {
	return memorydb.New()
}

// NewLevelDBDatabase creates a persistent key-value database backed by
// goleveldb.
func NewLevelDBDatabase(file string, cache int, handles int, namespace string, readonly bool) (taskdb.Database, error) {
	db, err := leveldb.New(file, cache, handles, namespace, readonly)
	if err != nil {
		return nil, err
	}
	log.Info("Using LevelDB as the backing database", "path", file)
	return db, nil
}

// NewPebbleDBDatabase creates a persistent key-value database backed by
// pebble.
func NewPebbleDBDatabase(file string, cache int, handles int, namespace string, readonly, ephemeral bool) (taskdb.Database, error) {
	db, err := pebble.New(file, cache, handles, namespace, readonly, ephemeral)
	if err != nil {
		return nil, err
	}
	log.Info("Using Pebble as the backing database", "path", file)
	return db, nil
}

// OpenOptions contains the options to apply when opening the database.
type OpenOptions struct {
	Type      string // "memory" | "leveldb" | "pebble"
	Directory string
	Namespace string
	Cache     int // megabytes
	Handles   int
	ReadOnly  bool
	Ephemeral bool
}

// Open opens the backing database, selecting the engine from the options.
// An empty type means leveldb when a directory is configured and an
// in-memory store otherwise.
func Open(o OpenOptions) (taskdb.Database, error) {
	typ := o.Type
	if typ == "" {
		if o.Directory == "" {
			typ = dbMemory
		} else {
			typ = dbLeveldb
		}
	}
	switch typ {
	case dbMemory:
		return NewMemoryDatabase(), nil
	case dbLeveldb:
		if o.Directory == "" {
			return nil, fmt.Errorf("leveldb engine requires a data directory")
		}
		return NewLevelDBDatabase(o.Directory, o.Cache, o.Handles, o.Namespace, o.ReadOnly)
	case dbPebble:
		if o.Directory == "" {
			return nil, fmt.Errorf("pebble engine requires a data directory")
		}
		return NewPebbleDBDatabase(o.Directory, o.Cache, o.Handles, o.Namespace, o.ReadOnly, o.Ephemeral)
	default:
		return nil, fmt.Errorf("unknown database engine %q", o.Type)
	}
}

// WipeQueue purges every record keyed under a queue: tasks, workers, the
// dispatch and running indexes, the journal and its head. The queue record
// and name index entry are the caller's to remove, it knows the name.
func WipeQueue(db taskdb.Writer, queueID string) {
	for _, prefix := range [][]byte{
		taskQueuePrefix(queueID),
		workerQueuePrefix(queueID),
		dispatchQueuePrefix(queueID),
		runningQueuePrefix(queueID),
		eventQueuePrefix(queueID),
	} {
		r := util.BytesPrefix(prefix)
		if err := db.DeleteRange(r.Start, r.Limit); err != nil {
			log.Crit("Failed to purge queue range", "queue", queueID, "prefix", string(prefix[:1]), "err", err)
		}
	}
	if err := db.Delete(journalHeadKey(queueID)); err != nil {
		log.Crit("Failed to delete journal head", "queue", queueID, "err", err)
	}
}
