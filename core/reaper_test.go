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

// backdateTask shifts the stored liveness timestamps of a task into the
// past, simulating elapsed wall clock time without sleeping it away.
func backdateTask(t *testing.T, engine *Engine, queueID, taskID string, by time.Duration) {
	t.Helper()
	task := rawdb.ReadTask(engine.db, queueID, taskID)
	require.NotNil(t, task)
	ms := uint64(by / time.Millisecond)
	if task.LastHeartbeat > 0 {
		task.LastHeartbeat -= ms
	}
	if task.StartTime > 0 {
		task.StartTime -= ms
	}
	rawdb.WriteTask(engine.db, task)
}

// TestSweepHeartbeatTimeout reaps a task whose heartbeat went silent: the
// first timeout requeues it with a note and a charged retry, the second one
// past the budget fails it terminally with the counter clamped.
func TestSweepHeartbeatTimeout(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	w1, err := engine.CreateWorker(queue.ID, WorkerSpec{})
	require.NoError(t, err)
	w2, err := engine.CreateWorker(queue.ID, WorkerSpec{})
	require.NoError(t, err)
	submitted, err := engine.SubmitTask(queue.ID, TaskSpec{
		HeartbeatTimeout: float64ptr(30),
		MaxRetries:       uint64ptr(1),
	})
	require.NoError(t, err)
	fetchTask(t, engine, queue.ID, w1.ID)

	// A healthy heartbeat survives the sweep.
	reaped, err := engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Zero(t, reaped)

	backdateTask(t, engine, queue.ID, submitted.ID, 31*time.Second)
	reaped, err = engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	task, err := engine.Task(queue.ID, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, task.Status)
	assert.Equal(t, uint64(1), task.Retries)
	assert.Empty(t, task.WorkerID)
	assert.Zero(t, task.LastHeartbeat)
	assert.Equal(t, "heartbeat timeout", task.Summary[errorNoteKey])

	// The silent worker was charged one failure.
	worker, err := engine.Worker(queue.ID, w1.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), worker.Retries)

	// Budget spent: the next timeout is terminal.
	fetchTask(t, engine, queue.ID, w2.ID)
	backdateTask(t, engine, queue.ID, submitted.ID, 31*time.Second)
	reaped, err = engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	task, err = engine.Task(queue.ID, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, uint64(1), task.Retries)
	assert.Empty(t, rawdb.ReadRunningTaskIDs(engine.db, queue.ID, 0))
}

// TestSweepTaskTimeout reaps on the wall clock cap alone: heartbeats are
// disabled, yet the execution limit still fires, and it fails the task
// terminally with retry budget to spare.
func TestSweepTaskTimeout(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	submitted, err := engine.SubmitTask(queue.ID, TaskSpec{
		HeartbeatTimeout: float64ptr(0),
		TaskTimeout:      60,
		MaxRetries:       uint64ptr(5),
	})
	require.NoError(t, err)
	_, found, err := engine.FetchTask(queue.ID, FetchRequest{StartHeartbeat: true})
	require.NoError(t, err)
	require.True(t, found)

	backdateTask(t, engine, queue.ID, submitted.ID, 61*time.Second)
	reaped, err := engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	task, err := engine.Task(queue.ID, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Zero(t, task.Retries, "the wall clock cap spends no retry")
	assert.Equal(t, "task timeout", task.Summary[errorNoteKey])
	assert.Empty(t, rawdb.ReadRunningTaskIDs(engine.db, queue.ID, 0))
}

// TestSweepNeverReapsDisabled leaves tasks without timeouts alone no matter
// how long they run, and never touches non-running tasks.
func TestSweepNeverReapsDisabled(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	immortal, err := engine.SubmitTask(queue.ID, TaskSpec{HeartbeatTimeout: float64ptr(0)})
	require.NoError(t, err)
	_, found, err := engine.FetchTask(queue.ID, FetchRequest{StartHeartbeat: true})
	require.NoError(t, err)
	require.True(t, found)

	// A pending task is never a timeout candidate, whatever its age.
	aged := submitTask(t, engine, queue.ID, "", types.PriorityMedium)
	backdateTask(t, engine, queue.ID, immortal.ID, 24*time.Hour)
	backdateTask(t, engine, queue.ID, aged.ID, 24*time.Hour)

	reaped, err := engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Zero(t, reaped)

	task, err := engine.Task(queue.ID, immortal.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskRunning, task.Status)
}

func TestSweepIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	submitted, err := engine.SubmitTask(queue.ID, TaskSpec{
		HeartbeatTimeout: float64ptr(30),
		MaxRetries:       uint64ptr(0),
	})
	require.NoError(t, err)
	_, found, err := engine.FetchTask(queue.ID, FetchRequest{StartHeartbeat: true})
	require.NoError(t, err)
	require.True(t, found)

	backdateTask(t, engine, queue.ID, submitted.ID, 31*time.Second)
	reaped, err := engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	reaped, err = engine.SweepTimeouts()
	require.NoError(t, err)
	assert.Zero(t, reaped, "a reaped task must not be reaped again")
}

// TestSweepCrashesWorker exhausts a worker's failure budget through timeouts
// alone.
func TestSweepCrashesWorker(t *testing.T) {
	engine := newTestEngine(t)
	queue := newTestQueue(t, engine)

	worker, err := engine.CreateWorker(queue.ID, WorkerSpec{MaxRetries: uint64ptr(1)})
	require.NoError(t, err)
	submitted, err := engine.SubmitTask(queue.ID, TaskSpec{HeartbeatTimeout: float64ptr(30)})
	require.NoError(t, err)
	fetchTask(t, engine, queue.ID, worker.ID)

	backdateTask(t, engine, queue.ID, submitted.ID, 31*time.Second)
	reaped, err := engine.SweepTimeouts()
	require.NoError(t, err)
	require.Equal(t, 1, reaped)

	got, err := engine.Worker(queue.ID, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WorkerCrashed, got.Status)
}

// TestReaperLoop runs the background reaper end to end on a short tick.
func TestReaperLoop(t *testing.T) {
	config := DefaultConfig
	config.PeriodicTaskInterval = 10 * time.Millisecond
	config.Logger = testlog.Logger(t, log.LvlInfo)

	engine := New(rawdb.NewMemoryDatabase(), config)
	require.NoError(t, engine.Start())
	t.Cleanup(func() { engine.Stop() })

	queue, err := engine.CreateQueue("reaper-live", "pw", nil)
	require.NoError(t, err)
	submitted, err := engine.SubmitTask(queue.ID, TaskSpec{HeartbeatTimeout: float64ptr(30)})
	require.NoError(t, err)
	_, found, err := engine.FetchTask(queue.ID, FetchRequest{StartHeartbeat: true})
	require.NoError(t, err)
	require.True(t, found)

	backdateTask(t, engine, queue.ID, submitted.ID, 31*time.Second)

	require.Eventually(t, func() bool {
		task, err := engine.Task(queue.ID, submitted.ID)
		return err == nil && task.Status == types.TaskPending
	}, 2*time.Second, 10*time.Millisecond, "reaper loop never requeued the task")
}
