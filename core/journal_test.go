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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/internal/testlog"
	"github.com/taskhive/go-taskhive/log"
)

// runTasks submits n tasks and drives each through fetch and success,
// journaling two events per task.
func runTasks(t *testing.T, engine *Engine, queueID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		task, err := engine.SubmitTask(queueID, TaskSpec{})
		require.NoError(t, err)
		_, found, err := engine.FetchTask(queueID, FetchRequest{StartHeartbeat: true})
		require.NoError(t, err)
		require.True(t, found)
		_, err = engine.ReportTaskStatus(queueID, task.ID, "success", nil)
		require.NoError(t, err)
	}
}

// recvEvents drains count events from the channel, failing the test when
// the stream stalls.
func recvEvents(t *testing.T, ch <-chan *types.Event, count int) []*types.Event {
	t.Helper()
	events := make([]*types.Event, 0, count)
	for len(events) < count {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("event stream stalled after %d of %d events", len(events), count)
		}
	}
	return events
}

// TestJournalContiguous verifies the journal core promise: one event per
// committed transition, sequences dense from one, submissions journal
// nothing.
func TestJournalContiguous(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	head, err := engine.JournalHead(queue.ID)
	require.NoError(t, err)
	assert.Zero(t, head)

	runTasks(t, engine, queue.ID, 5)

	head, err = engine.JournalHead(queue.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), head, "two transitions per task")

	events, err := engine.Events(queue.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence, "journal sequences must be dense")
		assert.Equal(t, queue.ID, ev.QueueID)
		assert.Equal(t, types.StateTransitionEvent, ev.Type)
		assert.Equal(t, types.TaskEntity, ev.EntityType)
		assert.NotZero(t, ev.Timestamp)
		assert.NotEmpty(t, ev.EntityData)
	}
}

func TestEventsReplay(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	runTasks(t, engine, queue.ID, 3) // journal head 6

	tail, err := engine.Events(queue.ID, 4, 0)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(5), tail[0].Sequence)
	assert.Equal(t, uint64(6), tail[1].Sequence)

	limited, err := engine.Events(queue.ID, 0, 3)
	require.NoError(t, err)
	require.Len(t, limited, 3)
	assert.Equal(t, uint64(1), limited[0].Sequence)

	empty, err := engine.Events(queue.ID, 6, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = engine.Events("no-such-queue", 0, 0)
	assert.ErrorIs(t, err, ErrQueueNotFound)
	_, err = engine.JournalHead("no-such-queue")
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestSubscribeLive(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	ch := make(chan *types.Event, 16)
	sub, err := engine.SubscribeEvents(queue.ID, 0, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	task, err := engine.SubmitTask(queue.ID, TaskSpec{})
	require.NoError(t, err)
	_, found, err := engine.FetchTask(queue.ID, FetchRequest{StartHeartbeat: true})
	require.NoError(t, err)
	require.True(t, found)
	_, err = engine.ReportTaskStatus(queue.ID, task.ID, "success", nil)
	require.NoError(t, err)

	events := recvEvents(t, ch, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, "pending", events[0].OldState)
	assert.Equal(t, "running", events[0].NewState)
	assert.Equal(t, uint64(2), events[1].Sequence)
	assert.Equal(t, "success", events[1].NewState)

	// Unsubscribing ends the stream cleanly.
	sub.Unsubscribe()
	assert.Nil(t, <-sub.Err())
}

// TestSubscribeReplayHandoff subscribes into a journal with history while
// new transitions keep committing: the stream must be gap free and duplicate
// free across the replay-to-live seam.
func TestSubscribeReplayHandoff(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	runTasks(t, engine, queue.ID, 2) // events 1..4 persisted

	ch := make(chan *types.Event, 32)
	sub, err := engine.SubscribeEvents(queue.ID, 0, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Commit more transitions while the replay races on.
	runTasks(t, engine, queue.ID, 3) // events 5..10

	events := recvEvents(t, ch, 10)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence, "handoff must neither skip nor repeat")
	}
}

func TestSubscribeSinceCursor(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	runTasks(t, engine, queue.ID, 2) // events 1..4

	ch := make(chan *types.Event, 16)
	sub, err := engine.SubscribeEvents(queue.ID, 3, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	events := recvEvents(t, ch, 1)
	assert.Equal(t, uint64(4), events[0].Sequence, "replay starts after the cursor")
}

// TestSubscribeOverflow starves a subscriber until its backlog overflows;
// the subscription must fail with ErrEventOverflow instead of stalling
// commits.
func TestSubscribeOverflow(t *testing.T) {
	config := DefaultConfig
	config.EventBacklog = 2
	config.Logger = testlog.Logger(t, log.LvlInfo)
	engine := New(rawdb.NewMemoryDatabase(), config)
	t.Cleanup(func() { engine.Stop() })

	queue, err := engine.CreateQueue("overflow", "pw", nil)
	require.NoError(t, err)

	ch := make(chan *types.Event) // never drained
	sub, err := engine.SubscribeEvents(queue.ID, 0, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := 0; i < 4; i++ {
		_, err := engine.SubmitTask(queue.ID, TaskSpec{})
		require.NoError(t, err)
		_, found, err := engine.FetchTask(queue.ID, FetchRequest{})
		require.NoError(t, err)
		require.True(t, found)
	}
	select {
	case err := <-sub.Err():
		assert.ErrorIs(t, err, ErrEventOverflow)
	case <-time.After(2 * time.Second):
		t.Fatal("starved subscription never overflowed")
	}
}

func TestSubscribeQueueDeleted(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	ch := make(chan *types.Event, 16)
	sub, err := engine.SubscribeEvents(queue.ID, 0, ch)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, engine.DeleteQueue(queue.ID, true))

	// Deleting the queue ends the stream cleanly, not as an error.
	select {
	case err := <-sub.Err():
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription survived queue deletion")
	}

	_, err = engine.SubscribeEvents(queue.ID, 0, ch)
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestSubscribeEngineStop(t *testing.T) {
	engine := New(rawdb.NewMemoryDatabase(), Config{Logger: testlog.Logger(t, log.LvlInfo)})
	queue, err := engine.CreateQueue("stopping", "pw", nil)
	require.NoError(t, err)

	ch := make(chan *types.Event, 16)
	sub, err := engine.SubscribeEvents(queue.ID, 0, ch)
	require.NoError(t, err)

	require.NoError(t, engine.Stop())

	select {
	case err := <-sub.Err():
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription survived engine shutdown")
	}
}

func TestSubscribeUnknownQueue(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.SubscribeEvents("no-such-queue", 0, make(chan *types.Event, 1))
	assert.ErrorIs(t, err, ErrQueueNotFound)
}
