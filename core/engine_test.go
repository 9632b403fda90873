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

// newTestEngine creates an engine on a throwaway in-memory store. The
// reaper is not started; tests drive sweeps explicitly.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	config := DefaultConfig
	config.Logger = testlog.Logger(t, log.LvlInfo)
	engine := New(rawdb.NewMemoryDatabase(), config)
	t.Cleanup(func() { engine.Stop() })
	return engine
}

// newTestQueue registers the queue most tests operate on.
func newTestQueue(t *testing.T, engine *Engine) *types.Queue {
	t.Helper()
	queue, err := engine.CreateQueue("test-queue", "swordfish", types.Document{"owner": "hive-tests"})
	require.NoError(t, err)
	return queue
}

// submitTask queues a task with the given priority, sleeping a moment so
// consecutive submissions get distinguishable creation times.
func submitTask(t *testing.T, engine *Engine, queueID, name string, priority int64) *types.Task {
	t.Helper()
	task, err := engine.SubmitTask(queueID, TaskSpec{Name: name, Priority: &priority})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	return task
}

// fetchTask claims the next task for a worker and requires one to exist.
func fetchTask(t *testing.T, engine *Engine, queueID, workerID string) *types.Task {
	t.Helper()
	task, found, err := engine.FetchTask(queueID, FetchRequest{WorkerID: workerID, StartHeartbeat: true})
	require.NoError(t, err)
	require.True(t, found, "expected an eligible task")
	return task
}

func TestEngineStartStop(t *testing.T) {
	engine := New(rawdb.NewMemoryDatabase(), Config{Logger: testlog.Logger(t, log.LvlInfo)})

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Start(), "second start should be a no-op")
	require.NoError(t, engine.Stop())
	assert.ErrorIs(t, engine.Stop(), ErrEngineStopped)
	assert.ErrorIs(t, engine.Start(), ErrEngineStopped)
}

func TestEnginePing(t *testing.T) {
	engine := newTestEngine(t)
	assert.NoError(t, engine.Ping())
}

func TestSubscribeAfterStop(t *testing.T) {
	engine := New(rawdb.NewMemoryDatabase(), Config{Logger: testlog.Logger(t, log.LvlInfo)})
	queue, err := engine.CreateQueue("stopped", "pw", nil)
	require.NoError(t, err)
	require.NoError(t, engine.Stop())

	_, err = engine.SubscribeEvents(queue.ID, 0, make(chan *types.Event, 1))
	assert.ErrorIs(t, err, ErrEngineStopped)
}

func TestQueueChangeFeed(t *testing.T) {
	engine := newTestEngine(t)

	ch := make(chan QueueChange, 8)
	sub := engine.SubscribeQueueChanges(ch)
	defer sub.Unsubscribe()

	queue, err := engine.CreateQueue("feed-queue", "pw", nil)
	require.NoError(t, err)

	name := "feed-queue-renamed"
	_, err = engine.UpdateQueue(queue.ID, QueueUpdate{Name: &name})
	require.NoError(t, err)

	require.NoError(t, engine.DeleteQueue(queue.ID, true))

	want := []QueueChange{
		{Kind: QueueCreated, QueueID: queue.ID, Name: "feed-queue"},
		{Kind: QueueUpdated, QueueID: queue.ID, Name: name},
		{Kind: QueueDeleted, QueueID: queue.ID, Name: name},
	}
	for _, change := range want {
		select {
		case got := <-ch:
			assert.Equal(t, change, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v notification", change.Kind)
		}
	}
}
