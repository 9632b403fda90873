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
	"sync"

	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/event"
	"github.com/taskhive/go-taskhive/metrics"
	"github.com/taskhive/go-taskhive/taskdb"
)

var (
	eventPublishCounter = metrics.NewRegisteredCounter("hive/journal/published", nil)
	eventDropCounter    = metrics.NewRegisteredCounter("hive/journal/drops", nil)
	eventSubGauge       = metrics.NewRegisteredGauge("hive/journal/subscribers", nil)
)

// journalSub is the engine side of one live event subscription. Events are
// buffered in a bounded backlog; if the consumer cannot keep up, the
// subscription is failed with ErrEventOverflow instead of stalling commits.
type journalSub struct {
	backlog chan *types.Event
	quit    chan struct{} // closed to end the stream, fail set before
	once    sync.Once
	fail    error // nil for a clean shutdown
}

func (s *journalSub) close(err error) {
	s.once.Do(func() {
		s.fail = err
		close(s.quit)
	})
}

// terminate ends the stream cleanly; the subscriber sees EOF.
func (s *journalSub) terminate() {
	s.close(nil)
}

// stageEvents assigns the next sequence numbers of the queue's journal to
// the given events and stages them, together with the advanced head pointer,
// into the batch. The caller holds the queue lock, making head reads and
// advances race free.
func (e *Engine) stageEvents(batch taskdb.Batch, queueID string, events []*types.Event) {
	if len(events) == 0 {
		return
	}
	head := rawdb.ReadJournalHead(e.db, queueID)
	for _, ev := range events {
		head++
		ev.Sequence = head
		rawdb.WriteEvent(batch, ev)
	}
	rawdb.WriteJournalHead(batch, queueID, head)
}

// publishEvent hands one committed event to the live subscribers of its
// queue. Subscribers whose backlog is full are dropped on the spot; the
// journal is persistent, so a dropped consumer can resubscribe and replay.
func (e *Engine) publishEvent(ev *types.Event) {
	eventPublishCounter.Inc(1)

	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for sub := range e.subs[ev.QueueID] {
		select {
		case sub.backlog <- ev:
		default:
			sub.close(ErrEventOverflow)
			delete(e.subs[ev.QueueID], sub)
			eventDropCounter.Inc(1)
			e.log.Warn("Event subscriber lagging, dropped", "queue", ev.QueueID, "sequence", ev.Sequence)
		}
	}
}

// removeSub unregisters a subscription after its producer terminated.
func (e *Engine) removeSub(queueID string, sub *journalSub) {
	e.subsMu.Lock()
	if subs := e.subs[queueID]; subs != nil {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(e.subs, queueID)
		}
	}
	e.subsMu.Unlock()
	eventSubGauge.Dec(1)
}

// dropQueueSubs cleanly ends every live subscription of a deleted queue.
// Called under the queue lock after the deletion committed.
func (e *Engine) dropQueueSubs(queueID string) {
	e.subsMu.Lock()
	for sub := range e.subs[queueID] {
		sub.terminate()
	}
	delete(e.subs, queueID)
	e.subsMu.Unlock()
}

// JournalHead returns the highest assigned event sequence of a queue, zero
// if no transition was ever journaled.
func (e *Engine) JournalHead(queueID string) (uint64, error) {
	if rawdb.ReadQueue(e.db, queueID) == nil {
		return 0, ErrQueueNotFound
	}
	return rawdb.ReadJournalHead(e.db, queueID), nil
}

// Events replays up to limit persisted journal events of a queue with
// sequence numbers strictly greater than since, in sequence order. A zero
// limit applies no bound.
func (e *Engine) Events(queueID string, since uint64, limit int) ([]*types.Event, error) {
	if rawdb.ReadQueue(e.db, queueID) == nil {
		return nil, ErrQueueNotFound
	}
	it := rawdb.IterateEvents(e.db, queueID, since+1)
	defer it.Release()

	var events []*types.Event
	for it.Next() {
		events = append(events, it.Event())
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return events, nil
}

// SubscribeEvents streams the journal of a queue to the given channel,
// starting with the persisted events after since (pass the current head to
// receive live events only) and continuing with transitions as they commit.
// The handoff between replay and live delivery is gap free and duplicate
// free.
//
// The subscription fails with ErrEventOverflow if the consumer falls more
// than the configured backlog behind; it ends cleanly when the queue is
// deleted or the engine shuts down.
func (e *Engine) SubscribeEvents(queueID string, since uint64, ch chan<- *types.Event) (event.Subscription, error) {
	if e.closed() {
		return nil, ErrEngineStopped
	}
	if rawdb.ReadQueue(e.db, queueID) == nil {
		return nil, ErrQueueNotFound
	}
	sub := &journalSub{
		backlog: make(chan *types.Event, e.config.EventBacklog),
		quit:    make(chan struct{}),
	}
	e.subsMu.Lock()
	subs := e.subs[queueID]
	if subs == nil {
		subs = make(map[*journalSub]struct{})
		e.subs[queueID] = subs
	}
	subs[sub] = struct{}{}
	e.subsMu.Unlock()
	eventSubGauge.Inc(1)

	// The queue may have been deleted between the existence check and the
	// registration; recheck now that deletion would terminate us.
	if rawdb.ReadQueue(e.db, queueID) == nil {
		e.removeSub(queueID, sub)
		return nil, ErrQueueNotFound
	}

	producer := func(unsub <-chan struct{}) error {
		defer e.removeSub(queueID, sub)

		// Replay the persisted tail first. The backlog was registered
		// before the iterator was created, so everything committed since
		// is either visible to the iterator or buffered; the sequence
		// cursor weeds out the overlap.
		last := since
		it := rawdb.IterateEvents(e.db, queueID, since+1)
		for it.Next() {
			ev := it.Event()
			select {
			case ch <- ev:
				last = ev.Sequence
			case <-unsub:
				it.Release()
				return nil
			case <-sub.quit:
				it.Release()
				return sub.fail
			}
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return err
		}
		// Live tail.
		for {
			select {
			case ev := <-sub.backlog:
				if ev.Sequence <= last {
					continue
				}
				select {
				case ch <- ev:
					last = ev.Sequence
				case <-unsub:
					return nil
				case <-sub.quit:
					return sub.fail
				}
			case <-unsub:
				return nil
			case <-sub.quit:
				return sub.fail
			}
		}
	}
	return e.scope.Track(event.NewSubscription(producer)), nil
}

// closed reports whether Stop has been called.
func (e *Engine) closed() bool {
	e.startStop.Lock()
	defer e.startStop.Unlock()
	return e.stopped
}
