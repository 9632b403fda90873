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
	"sync/atomic"
	"time"

	"github.com/taskhive/go-taskhive/common"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/metrics"
	"golang.org/x/sync/errgroup"
)

var (
	reaperSweepTimer     = metrics.NewRegisteredTimer("hive/reaper/sweeps", nil)
	reaperTimeoutCounter = metrics.NewRegisteredCounter("hive/reaper/timeouts", nil)
)

// reaperLoop drives periodic timeout sweeps until the engine stops. A sweep
// in flight when the stop signal arrives runs to completion.
func (e *Engine) reaperLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.PeriodicTaskInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if reaped, err := e.SweepTimeouts(); err != nil {
				e.log.Error("Timeout sweep failed", "reaped", reaped, "err", err)
			} else if reaped > 0 {
				e.log.Info("Timeout sweep reaped tasks", "reaped", reaped, "elapsed", common.PrettyDuration(time.Since(start)))
			}
		case <-e.quit:
			return
		}
	}
}

// SweepTimeouts scans all queues for running tasks whose heartbeat went
// silent or whose execution exceeded its wall clock cap and drives each
// through the failure branch: heartbeat silence requeues while the retry
// budget lasts, the wall clock cap fails terminally regardless. The bound
// workers are charged one failure each.
//
// Queues are swept concurrently up to the configured parallelism, at most
// ReaperLimit candidates per queue per sweep; the remainder is picked up by
// the next tick. A failing queue does not stop the others. Returns the
// number of reaped tasks.
func (e *Engine) SweepTimeouts() (int, error) {
	defer reaperSweepTimer.UpdateSince(time.Now())

	var (
		group errgroup.Group
		total atomic.Int64
	)
	group.SetLimit(e.config.ReaperConcurrency)
	for _, queue := range rawdb.ReadAllQueues(e.db) {
		queue := queue
		group.Go(func() error {
			reaped, err := e.sweepQueue(queue.ID)
			total.Add(reaped)
			return err
		})
	}
	err := group.Wait()
	return int(total.Load()), err
}

// sweepQueue reaps the overdue running tasks of one queue. Candidates are
// listed outside the critical section and rechecked under it, so racing
// reports simply win.
func (e *Engine) sweepQueue(queueID string) (int64, error) {
	ids := rawdb.ReadRunningTaskIDs(e.db, queueID, e.config.ReaperLimit)
	if len(ids) == 0 {
		return 0, nil
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	// The queue may have been deleted since listing.
	if rawdb.ReadQueue(e.db, queueID) == nil {
		return 0, nil
	}
	var (
		now    = types.NowMilli()
		reaped int64
	)
	for _, taskID := range ids {
		task := rawdb.ReadTask(e.db, queueID, taskID)
		if task == nil || task.Status != types.TaskRunning {
			continue
		}
		reason := timeoutReason(task, now)
		if reason == "" {
			continue
		}
		// Each timeout commits on its own, an error mid-sweep loses only
		// the remainder of this queue's pass.
		batch := e.db.NewBatch()
		if task.Summary == nil {
			task.Summary = types.Document{}
		}
		task.Summary[errorNoteKey] = reason
		worker := task.WorkerID

		// A silent heartbeat spends one retry; the wall clock cap is
		// terminal no matter the budget.
		events := []*types.Event{e.stageTaskFailure(batch, task, now, reason == reasonHeartbeatTimeout)}
		if worker != "" {
			if w := rawdb.ReadWorker(e.db, queueID, worker); w != nil {
				if ev := e.stageWorkerFailure(batch, w, now); ev != nil {
					events = append(events, ev)
				}
			}
		}
		e.stageEvents(batch, queueID, events)
		if err := e.commit(batch, events); err != nil {
			return reaped, err
		}
		reaperTimeoutCounter.Inc(1)
		reaped++
		e.log.Debug("Task timed out", "queue", queueID, "task", taskID, "reason", reason, "status", task.Status)
	}
	return reaped, nil
}

const (
	reasonHeartbeatTimeout = "heartbeat timeout"
	reasonTaskTimeout      = "task timeout"
)

// timeoutReason reports why a running task is overdue, or empty if it is
// healthy. The wall clock cap fires independently of heartbeats and takes
// precedence when both are overdue; heartbeat reaping needs a seeded
// heartbeat and a positive timeout.
func timeoutReason(task *types.Task, now uint64) string {
	if task.TaskTimeout > 0 && task.StartTime > 0 &&
		int64((now-task.StartTime)/1000) > task.TaskTimeout {
		return reasonTaskTimeout
	}
	if task.LastHeartbeat > 0 && task.HeartbeatTimeout > 0 &&
		float64(now-task.LastHeartbeat)/1000 > task.HeartbeatTimeout {
		return reasonHeartbeatTimeout
	}
	return ""
}
