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
	"fmt"

	"github.com/taskhive/go-taskhive/core/filters"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/metrics"
	"github.com/taskhive/go-taskhive/taskdb"
)

var (
	workerCreateCounter = metrics.NewRegisteredCounter("hive/workers/created", nil)
	workerCrashCounter  = metrics.NewRegisteredCounter("hive/workers/crashed", nil)
)

// WorkerSpec describes a worker registration.
type WorkerSpec struct {
	Name       string
	Metadata   types.Document
	MaxRetries *uint64 // consecutive failure budget, nil selects the default
}

// WorkerQuery selects workers for a listing. All set conditions must hold.
type WorkerQuery struct {
	WorkerID string
	Name     string
	Offset   int
	Limit    int
	Filter   types.Document
}

// CreateWorker registers a new executor identity in a queue. Workers start
// ACTIVE; registration journals no event.
func (e *Engine) CreateWorker(queueID string, spec WorkerSpec) (*types.Worker, error) {
	if spec.Name != "" {
		if err := types.ValidateName("worker name", spec.Name); err != nil {
			return nil, invalid(err)
		}
	}
	if err := spec.Metadata.ValidateKeys(); err != nil {
		return nil, invalid(err)
	}
	retries := types.DefaultMaxRetries
	if spec.MaxRetries != nil {
		retries = *spec.MaxRetries
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	now := types.NowMilli()
	worker := &types.Worker{
		ID:           newID(),
		QueueID:      queueID,
		Name:         spec.Name,
		Status:       types.WorkerActive,
		Metadata:     spec.Metadata.Copy(),
		MaxRetries:   retries,
		CreatedAt:    now,
		LastModified: now,
	}
	batch := e.db.NewBatch()
	rawdb.WriteWorker(batch, worker)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	workerCreateCounter.Inc(1)
	e.log.Debug("Worker registered", "queue", queueID, "worker", worker.ID, "name", worker.Name)
	return worker, nil
}

// Worker retrieves a worker record.
func (e *Engine) Worker(queueID, workerID string) (*types.Worker, error) {
	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	worker := rawdb.ReadWorker(e.db, queueID, workerID)
	if worker == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	return worker, nil
}

// Workers lists the workers of a queue matching the query, in worker ID
// order.
func (e *Engine) Workers(queueID string, query WorkerQuery) ([]*types.Worker, error) {
	limit, err := sanitizePage(query.Offset, query.Limit)
	if err != nil {
		return nil, err
	}
	pred, err := filters.Compile(query.Filter)
	if err != nil {
		return nil, invalid(err)
	}
	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	match := func(worker *types.Worker) bool {
		if query.Name != "" && worker.Name != query.Name {
			return false
		}
		return pred.Match(recordDocument(worker))
	}
	if query.WorkerID != "" {
		worker := rawdb.ReadWorker(e.db, queueID, query.WorkerID)
		if worker == nil || !match(worker) || query.Offset > 0 {
			return nil, nil
		}
		return []*types.Worker{worker}, nil
	}
	it := rawdb.IterateWorkers(e.db, queueID)
	defer it.Release()

	var (
		workers []*types.Worker
		skipped int
	)
	for it.Next() && len(workers) < limit {
		worker := it.Worker()
		if !match(worker) {
			continue
		}
		if skipped < query.Offset {
			skipped++
			continue
		}
		workers = append(workers, worker)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return workers, nil
}

// ReportWorkerStatus applies an administrative worker state report. Legal
// reports are "active", "suspended" and "failed"; CRASHED is entered by the
// engine alone when the failure budget runs out. Reactivation resets the
// consecutive failure counter. Re-reporting the current state is an
// accepted no-op without a journal event.
func (e *Engine) ReportWorkerStatus(queueID, workerID, status string) (*types.Worker, error) {
	var next types.WorkerStatus
	if err := next.UnmarshalText([]byte(status)); err != nil {
		return nil, invalid(err)
	}
	if next == types.WorkerCrashed {
		return nil, invalidf("workers cannot be reported crashed, crashes are driven by the failure budget")
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	worker := rawdb.ReadWorker(e.db, queueID, workerID)
	if worker == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	old := worker.Status
	if !old.CanTransition(next) {
		return nil, fmt.Errorf("%w: worker cannot go from %s to %s", ErrInvalidTransition, old, next)
	}
	worker.Status = next
	if next == types.WorkerActive {
		worker.Retries = 0
	}
	worker.LastModified = types.NowMilli()

	batch := e.db.NewBatch()
	rawdb.WriteWorker(batch, worker)

	var events []*types.Event
	if old != next {
		events = append(events, types.NewWorkerTransition(worker, old, next))
	}
	e.stageEvents(batch, queueID, events)
	if err := e.commit(batch, events); err != nil {
		return nil, err
	}
	e.log.Debug("Worker status reported", "queue", queueID, "worker", workerID, "status", next)
	return worker, nil
}

// DeleteWorker removes a worker registration. Tasks the worker is still
// running are handled per cascade: with cascade the engine treats each of
// them as a worker failure, requeueing or failing per retry budget; without
// cascade the deletion is refused while such tasks exist.
func (e *Engine) DeleteWorker(queueID, workerID string, cascade bool) error {
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return err
	}
	worker := rawdb.ReadWorker(e.db, queueID, workerID)
	if worker == nil {
		return fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	var held []*types.Task
	for _, taskID := range rawdb.ReadRunningTaskIDs(e.db, queueID, 0) {
		if task := rawdb.ReadTask(e.db, queueID, taskID); task != nil && task.WorkerID == workerID {
			held = append(held, task)
		}
	}
	if len(held) > 0 && !cascade {
		return fmt.Errorf("%w: worker %s runs %d task(s)", ErrWorkerHoldsTasks, workerID, len(held))
	}
	var (
		now    = types.NowMilli()
		batch  = e.db.NewBatch()
		events []*types.Event
	)
	for _, task := range held {
		if task.Summary == nil {
			task.Summary = types.Document{}
		}
		task.Summary[errorNoteKey] = "worker deleted"
		events = append(events, e.stageTaskFailure(batch, task, now, true))
	}
	rawdb.DeleteWorker(batch, queueID, workerID)
	e.stageEvents(batch, queueID, events)
	if err := e.commit(batch, events); err != nil {
		return err
	}
	e.log.Debug("Worker deleted", "queue", queueID, "worker", workerID, "released", len(held))
	return nil
}

// stageWorkerFailure charges one failure against a worker. The status only
// changes when the consecutive failure budget runs out, which crashes the
// worker; the returned transition event is nil otherwise.
func (e *Engine) stageWorkerFailure(batch taskdb.Batch, worker *types.Worker, now uint64) *types.Event {
	worker.Retries++
	worker.LastModified = now

	var ev *types.Event
	if worker.Retries >= worker.MaxRetries && worker.Status == types.WorkerActive {
		worker.Status = types.WorkerCrashed
		ev = types.NewWorkerTransition(worker, types.WorkerActive, types.WorkerCrashed)
		workerCrashCounter.Inc(1)
		e.log.Warn("Worker crashed on failure budget", "queue", worker.QueueID, "worker", worker.ID, "retries", worker.Retries)
	}
	rawdb.WriteWorker(batch, worker)
	return ev
}
