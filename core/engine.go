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

// Package core implements the task lifecycle engine: the authoritative task
// and worker state machines, the priority dispatch with atomic claim, the
// heartbeat and timeout reaper, the retry policy and the per-queue event
// journal surfacing every state transition.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/event"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/taskdb"
)

// QueueChangeKind enumerates the queue lifecycle notifications delivered by
// SubscribeQueueChanges.
type QueueChangeKind int

const (
	QueueCreated QueueChangeKind = iota
	QueueUpdated
	QueueDeleted
)

// QueueChange notifies in-process observers, the credential cache above all,
// that a queue record changed. It is delivered after the change committed.
type QueueChange struct {
	Kind    QueueChangeKind
	QueueID string
	Name    string // queue name after the change; last name for deletions
}

// Engine mediates every task, worker and queue mutation of the hive. All
// writes of one transition are staged into a single batch and committed
// atomically under the owning queue's critical section; the journal event
// recording the transition is part of the same batch, so record and journal
// cannot diverge.
type Engine struct {
	config Config
	db     taskdb.Database
	log    log.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex // per-queue critical sections
	nameMu sync.Mutex             // serializes queue name index claims

	subsMu sync.Mutex
	subs   map[string]map[*journalSub]struct{}

	queueFeed event.FeedOf[QueueChange]
	scope     event.SubscriptionScope

	startStop sync.Mutex
	quit      chan struct{} // closed on Stop, ends the reaper loop
	wg        sync.WaitGroup
	started   bool
	stopped   bool
}

// New creates a lifecycle engine on top of the given database. The engine is
// fully operational for request handling; Start only adds the periodic
// timeout reaper.
func New(db taskdb.Database, config Config) *Engine {
	config = config.sanitize()
	return &Engine{
		config: config,
		db:     db,
		log:    config.Logger,
		locks:  make(map[string]*sync.Mutex),
		subs:   make(map[string]map[*journalSub]struct{}),
		quit:   make(chan struct{}),
	}
}

// Start launches the periodic timeout reaper.
func (e *Engine) Start() error {
	e.startStop.Lock()
	defer e.startStop.Unlock()

	if e.stopped {
		return ErrEngineStopped
	}
	if e.started {
		return nil
	}
	e.started = true

	e.wg.Add(1)
	go e.reaperLoop()

	e.log.Info("Lifecycle engine started", "interval", e.config.PeriodicTaskInterval, "sweeplimit", e.config.ReaperLimit)
	return nil
}

// Stop terminates the reaper loop, waits for an in-flight sweep to finish
// and tears down all live event subscriptions. The engine must not be used
// afterwards.
func (e *Engine) Stop() error {
	e.startStop.Lock()
	defer e.startStop.Unlock()

	if e.stopped {
		return ErrEngineStopped
	}
	e.stopped = true

	close(e.quit)
	e.wg.Wait()
	e.scope.Close()

	// End the journal streams; subscribers observe a clean EOF.
	e.subsMu.Lock()
	for _, subs := range e.subs {
		for sub := range subs {
			sub.terminate()
		}
	}
	e.subs = make(map[string]map[*journalSub]struct{})
	e.subsMu.Unlock()

	e.log.Info("Lifecycle engine stopped")
	return nil
}

// Ping verifies that the backing store answers, used by the full health
// probe.
func (e *Engine) Ping() error {
	_, err := e.db.Stat()
	return err
}

// AllowUnsafe reports whether the raw collection operations are enabled.
func (e *Engine) AllowUnsafe() bool {
	return e.config.AllowUnsafe
}

// SubscribeQueueChanges sends queue lifecycle notifications to the given
// channel. The consumer must keep draining promptly; queue mutations block
// on delivery.
func (e *Engine) SubscribeQueueChanges(ch chan<- QueueChange) event.Subscription {
	return e.scope.Track(e.queueFeed.Subscribe(ch))
}

// queueLock returns the mutex serializing all mutations of one queue.
func (e *Engine) queueLock(queueID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()

	lock, ok := e.locks[queueID]
	if !ok {
		lock = new(sync.Mutex)
		e.locks[queueID] = lock
	}
	return lock
}

// dropQueueLock forgets the mutex of a deleted queue. The caller must hold
// the lock itself, guaranteeing no other operation is inside the critical
// section.
func (e *Engine) dropQueueLock(queueID string) {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	delete(e.locks, queueID)
}

// commitRetries bounds how many attempts a transient store failure is given
// before the error surfaces to the caller.
const commitRetries = 3

// commit flushes the staged writes of one transition and hands its journal
// events to the live subscribers. The caller holds the queue lock, so the
// publish order equals the commit order. Transient store failures are
// retried with exponential backoff before surfacing.
func (e *Engine) commit(batch taskdb.Batch, events []*types.Event) error {
	err := batch.Write()
	for attempt, wait := 0, 10*time.Millisecond; err != nil && attempt < commitRetries && isTemporary(err); attempt, wait = attempt+1, wait*2 {
		e.log.Warn("Transient store failure, retrying commit", "attempt", attempt+1, "err", err)
		time.Sleep(wait)
		err = batch.Write()
	}
	if err != nil {
		return fmt.Errorf("store write failed: %w", err)
	}
	for _, ev := range events {
		e.publishEvent(ev)
	}
	return nil
}

// isTemporary reports whether the error advertises itself as retryable, the
// convention syscall and net errors follow.
func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

// recordDocument converts a record into its JSON document form, the shape
// the filter predicates match against.
func recordDocument(record any) types.Document {
	blob, err := json.Marshal(record)
	if err != nil {
		log.Crit("Failed to JSON encode record", "err", err)
	}
	var doc types.Document
	if err := json.Unmarshal(blob, &doc); err != nil {
		log.Crit("Failed to decode record document", "err", err)
	}
	return doc
}
