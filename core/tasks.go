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
	"time"

	"github.com/taskhive/go-taskhive/common"
	"github.com/taskhive/go-taskhive/core/filters"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/metrics"
	"github.com/taskhive/go-taskhive/taskdb"
)

var (
	taskSubmitCounter  = metrics.NewRegisteredCounter("hive/tasks/submitted", nil)
	taskFetchCounter   = metrics.NewRegisteredCounter("hive/tasks/fetched", nil)
	taskFetchMissMeter = metrics.NewRegisteredMeter("hive/tasks/fetchmiss", nil)
	taskSuccessCounter = metrics.NewRegisteredCounter("hive/tasks/succeeded", nil)
	taskFailedCounter  = metrics.NewRegisteredCounter("hive/tasks/failed", nil)
	taskRequeueCounter = metrics.NewRegisteredCounter("hive/tasks/requeued", nil)
	taskCancelCounter  = metrics.NewRegisteredCounter("hive/tasks/cancelled", nil)
)

const (
	// maxListLimit caps a single listing page.
	maxListLimit = 1000

	// defaultListLimit applies when a listing request names no limit.
	defaultListLimit = 100

	// lastWorkerKey is the summary slot recording which worker failed the
	// task last, consulted by the dispatcher's anti-stickiness pass.
	lastWorkerKey = "_last_worker"

	// errorNoteKey is the summary slot carrying the engine's own failure
	// notes, written when a transition is driven without a worker report.
	errorNoteKey = "taskhive_error"
)

// TaskSpec describes one task submission. Zero documents are stored as
// empty; a nil MaxRetries or Priority selects the defaults.
type TaskSpec struct {
	Name             string
	Args             types.Document
	Metadata         types.Document
	Cmd              types.Command
	HeartbeatTimeout *float64 // seconds, nil selects the default, 0 disables
	TaskTimeout      int64    // seconds, 0 disables the wall clock cap
	MaxRetries       *uint64
	Priority         *int64
}

// TaskQuery selects tasks for a listing. All set conditions must hold.
type TaskQuery struct {
	TaskID string
	Name   string
	Offset int
	Limit  int // 0 selects the default page size
	Filter types.Document
}

// FetchRequest describes a dispatch attempt by a worker.
type FetchRequest struct {
	WorkerID       string         // optional executor identity to bind the claim to
	ETAMax         string         // optional duration string capping this attempt's execution
	StartHeartbeat bool           // seed last_heartbeat at claim time
	RequiredFields []string       // dotted paths the task args must contain
	ExtraFilter    types.Document // predicate over the task record
}

// TaskUpdate is an administrative task edit. Nil fields keep their stored
// value; document fields deep-merge unless named in ReplaceFields, which
// makes the new value overwrite wholesale. Setting Status to "pending"
// requeues the task from any state, terminals included, and resets its
// retry counter.
type TaskUpdate struct {
	ReplaceFields    []string
	Name             *string
	Status           *string
	Priority         *int64
	HeartbeatTimeout *float64
	TaskTimeout      *int64
	MaxRetries       *uint64
	Cmd              *types.Command
	Args             types.Document
	Metadata         types.Document
	Summary          types.Document
}

// SubmitTask queues a new task and returns its record. Submissions do not
// journal an event; the journal records lifecycle transitions only.
func (e *Engine) SubmitTask(queueID string, spec TaskSpec) (*types.Task, error) {
	if spec.Name != "" {
		if err := types.ValidateName("task name", spec.Name); err != nil {
			return nil, invalid(err)
		}
	}
	if err := spec.Args.ValidateKeys(); err != nil {
		return nil, invalid(err)
	}
	if err := spec.Metadata.ValidateKeys(); err != nil {
		return nil, invalid(err)
	}
	heartbeat := types.DefaultHeartbeatTimeout
	if spec.HeartbeatTimeout != nil {
		if *spec.HeartbeatTimeout < 0 {
			return nil, invalidf("heartbeat timeout must not be negative")
		}
		heartbeat = *spec.HeartbeatTimeout
	}
	if spec.TaskTimeout < 0 {
		return nil, invalidf("task timeout must not be negative")
	}
	retries := types.DefaultMaxRetries
	if spec.MaxRetries != nil {
		retries = *spec.MaxRetries
	}
	priority := types.PriorityMedium
	if spec.Priority != nil {
		if *spec.Priority < 0 {
			return nil, invalidf("priority must not be negative")
		}
		priority = *spec.Priority
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	now := types.NowMilli()
	task := &types.Task{
		ID:               newID(),
		QueueID:          queueID,
		Name:             spec.Name,
		Status:           types.TaskPending,
		CreatedAt:        now,
		LastModified:     now,
		HeartbeatTimeout: heartbeat,
		TaskTimeout:      spec.TaskTimeout,
		MaxRetries:       retries,
		Priority:         priority,
		Metadata:         spec.Metadata.Copy(),
		Args:             spec.Args.Copy(),
		Cmd:              spec.Cmd.Copy(),
		Summary:          types.Document{},
	}
	batch := e.db.NewBatch()
	rawdb.WriteTask(batch, task)
	rawdb.WriteDispatchEntry(batch, task)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	taskSubmitCounter.Inc(1)
	e.log.Debug("Task submitted", "queue", queueID, "task", task.ID, "name", task.Name, "priority", priority)
	return task, nil
}

// Task retrieves a task record.
func (e *Engine) Task(queueID, taskID string) (*types.Task, error) {
	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	task := rawdb.ReadTask(e.db, queueID, taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// Tasks lists the tasks of a queue matching the query, in task ID order.
func (e *Engine) Tasks(queueID string, query TaskQuery) ([]*types.Task, error) {
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
	match := func(task *types.Task) bool {
		if query.Name != "" && task.Name != query.Name {
			return false
		}
		return pred.Match(recordDocument(task))
	}
	// A task ID condition pins a single record, skip the scan.
	if query.TaskID != "" {
		task := rawdb.ReadTask(e.db, queueID, query.TaskID)
		if task == nil || !match(task) || query.Offset > 0 {
			return nil, nil
		}
		return []*types.Task{task}, nil
	}
	it := rawdb.IterateTasks(e.db, queueID)
	defer it.Release()

	var (
		tasks   []*types.Task
		skipped int
	)
	for it.Next() && len(tasks) < limit {
		task := it.Task()
		if !match(task) {
			continue
		}
		if skipped < query.Offset {
			skipped++
			continue
		}
		tasks = append(tasks, task)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// sanitizePage validates listing paging parameters, applying the default
// and maximum page size.
func sanitizePage(offset, limit int) (int, error) {
	if offset < 0 {
		return 0, invalidf("offset must not be negative")
	}
	switch {
	case limit < 0:
		return 0, invalidf("limit must not be negative")
	case limit == 0:
		return defaultListLimit, nil
	case limit > maxListLimit:
		return 0, invalidf("limit %d exceeds the maximum of %d", limit, maxListLimit)
	}
	return limit, nil
}

// FetchTask atomically claims the next eligible pending task for execution:
// highest priority first, submission order within a priority. The claimed
// task enters RUNNING bound to the requesting worker. The boolean result
// reports whether any eligible task existed; exhaustion is not an error.
//
// When a worker ID is given, a soft anti-stickiness pass prefers tasks whose
// last failure was caused by a different worker, falling back to sticky
// candidates only when nothing else is eligible.
func (e *Engine) FetchTask(queueID string, req FetchRequest) (*types.Task, bool, error) {
	var timeout int64
	if req.ETAMax != "" {
		d, err := common.ParseTimeout(req.ETAMax)
		if err != nil {
			return nil, false, invalidf("eta_max: %v", err)
		}
		if timeout = int64(d / time.Second); timeout < 1 {
			timeout = 1
		}
	}
	pred, err := filters.Compile(req.ExtraFilter)
	if err != nil {
		return nil, false, invalid(err)
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, false, err
	}
	if req.WorkerID != "" {
		worker := rawdb.ReadWorker(e.db, queueID, req.WorkerID)
		if worker == nil {
			return nil, false, fmt.Errorf("%w: %s", ErrWorkerNotFound, req.WorkerID)
		}
		if worker.Status != types.WorkerActive {
			return nil, false, fmt.Errorf("%w: worker %q is %s", ErrWorkerNotAvailable, req.WorkerID, worker.Status)
		}
	}
	eligible := func(task *types.Task) bool {
		if task == nil || task.Status != types.TaskPending {
			return false
		}
		for _, path := range req.RequiredFields {
			if !task.Args.Has(path) {
				return false
			}
		}
		return pred.Match(recordDocument(task))
	}
	var sticky *types.Task // fallback candidate skipped by anti-stickiness

	it := rawdb.IterateDispatchOrder(e.db, queueID)
	defer it.Release()

	for it.Next() {
		task := rawdb.ReadTask(e.db, queueID, it.TaskID())
		if !eligible(task) {
			continue
		}
		if req.WorkerID != "" {
			if last, ok := task.Summary.Get(lastWorkerKey); ok && last == req.WorkerID {
				if sticky == nil {
					sticky = task
				}
				continue
			}
		}
		return e.claimTask(task, req, timeout)
	}
	if err := it.Error(); err != nil {
		return nil, false, err
	}
	if sticky != nil {
		return e.claimTask(sticky, req, timeout)
	}
	taskFetchMissMeter.Mark(1)
	return nil, false, nil
}

// claimTask transitions a pending task to RUNNING for the requesting worker
// and commits the claim. The caller holds the queue lock.
func (e *Engine) claimTask(task *types.Task, req FetchRequest, timeout int64) (*types.Task, bool, error) {
	now := types.NowMilli()
	batch := e.db.NewBatch()
	rawdb.DeleteDispatchEntry(batch, task)

	task.Status = types.TaskRunning
	task.WorkerID = req.WorkerID
	if task.StartTime == 0 {
		task.StartTime = now
	}
	if req.StartHeartbeat {
		task.LastHeartbeat = now
	} else {
		task.LastHeartbeat = 0
	}
	if timeout > 0 {
		task.TaskTimeout = timeout
	}
	task.LastModified = now
	rawdb.WriteTask(batch, task)
	rawdb.WriteRunningEntry(batch, task.QueueID, task.ID)

	events := []*types.Event{types.NewTaskTransition(task, types.TaskPending, types.TaskRunning)}
	e.stageEvents(batch, task.QueueID, events)
	if err := e.commit(batch, events); err != nil {
		return nil, false, err
	}
	taskFetchCounter.Inc(1)
	e.log.Debug("Task claimed", "queue", task.QueueID, "task", task.ID, "worker", req.WorkerID)
	return task, true, nil
}

// ReportTaskStatus applies a worker's execution report to a task. "success"
// completes a running task; "failed" requeues it while the retry budget
// lasts and fails it terminally after; "cancelled" withdraws a pending or
// running task. The summary update deep-merges into the stored summary on
// every accepted report.
//
// Failed reports also charge one failure against the bound worker, crashing
// it when its consecutive failure budget runs out.
func (e *Engine) ReportTaskStatus(queueID, taskID, status string, summary types.Document) (*types.Task, error) {
	if err := summary.ValidateKeys(); err != nil {
		return nil, invalid(err)
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	task := rawdb.ReadTask(e.db, queueID, taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	var (
		now    = types.NowMilli()
		old    = task.Status
		batch  = e.db.NewBatch()
		events []*types.Event
	)
	task.Summary = types.MergeDocuments(task.Summary, summary)

	switch status {
	case "success":
		if old != types.TaskRunning {
			return nil, fmt.Errorf("%w: cannot report success on %s task", ErrInvalidTransition, old)
		}
		worker := task.WorkerID
		task.Status = types.TaskSuccess
		task.WorkerID = ""
		task.LastModified = now
		rawdb.WriteTask(batch, task)
		rawdb.DeleteRunningEntry(batch, queueID, taskID)
		events = append(events, types.NewTaskTransition(task, old, types.TaskSuccess))

		// A success wipes the worker's consecutive failure streak.
		if worker != "" {
			if w := rawdb.ReadWorker(e.db, queueID, worker); w != nil && w.Status == types.WorkerActive && w.Retries > 0 {
				w.Retries = 0
				w.LastModified = now
				rawdb.WriteWorker(batch, w)
			}
		}
		taskSuccessCounter.Inc(1)

	case "failed":
		if old != types.TaskRunning {
			return nil, fmt.Errorf("%w: cannot report failure on %s task", ErrInvalidTransition, old)
		}
		worker := task.WorkerID
		events = append(events, e.stageTaskFailure(batch, task, now, true))
		if worker != "" {
			if w := rawdb.ReadWorker(e.db, queueID, worker); w != nil {
				if ev := e.stageWorkerFailure(batch, w, now); ev != nil {
					events = append(events, ev)
				}
			}
		}

	case "cancelled":
		if !old.CanTransition(types.TaskCancelled) {
			return nil, fmt.Errorf("%w: cannot cancel %s task", ErrInvalidTransition, old)
		}
		task.Status = types.TaskCancelled
		task.WorkerID = ""
		task.LastModified = now
		rawdb.WriteTask(batch, task)
		switch old {
		case types.TaskPending:
			rawdb.DeleteDispatchEntry(batch, task)
		case types.TaskRunning:
			rawdb.DeleteRunningEntry(batch, queueID, taskID)
		}
		events = append(events, types.NewTaskTransition(task, old, types.TaskCancelled))
		taskCancelCounter.Inc(1)

	default:
		return nil, invalidf("unknown report status %q, want \"success\", \"failed\" or \"cancelled\"", status)
	}
	e.stageEvents(batch, queueID, events)
	if err := e.commit(batch, events); err != nil {
		return nil, err
	}
	e.log.Debug("Task status reported", "queue", queueID, "task", taskID, "status", task.Status, "retries", task.Retries)
	return task, nil
}

// stageTaskFailure applies the failure branch to a running task: requeue
// with an incremented retry counter while the budget lasts, terminal FAILED
// once spent or when requeueing is disallowed outright. The retry counter
// never exceeds the budget. Returns the staged transition event.
func (e *Engine) stageTaskFailure(batch taskdb.Batch, task *types.Task, now uint64, requeue bool) *types.Event {
	old := task.Status
	worker := task.WorkerID

	task.WorkerID = ""
	task.LastModified = now
	if requeue && task.Retries < task.MaxRetries {
		task.Retries++
		task.Status = types.TaskPending
		task.LastHeartbeat = 0
		if worker != "" {
			if task.Summary == nil {
				task.Summary = types.Document{}
			}
			task.Summary[lastWorkerKey] = worker
		}
		rawdb.WriteDispatchEntry(batch, task)
		taskRequeueCounter.Inc(1)
	} else {
		task.Status = types.TaskFailed
		taskFailedCounter.Inc(1)
	}
	rawdb.WriteTask(batch, task)
	rawdb.DeleteRunningEntry(batch, task.QueueID, task.ID)
	return types.NewTaskTransition(task, old, task.Status)
}

// RefreshTaskHeartbeat moves a running task's liveness timestamp forward.
// Only running tasks carry a heartbeat; anything else reports not found,
// matching what a worker whose task was reaped away should observe.
func (e *Engine) RefreshTaskHeartbeat(queueID, taskID string) (*types.Task, error) {
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	task := rawdb.ReadTask(e.db, queueID, taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != types.TaskRunning {
		return nil, fmt.Errorf("%w: task %s is %s, not running", ErrTaskNotFound, taskID, task.Status)
	}
	task.LastHeartbeat = types.NowMilli()

	batch := e.db.NewBatch()
	rawdb.WriteTask(batch, task)
	if err := batch.Write(); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask edits task fields administratively. Document fields deep-merge
// into the record unless listed in ReplaceFields; scalars overwrite when
// set. A status of "pending" requeues the task from any state, resetting
// its retry counter and releasing its worker, and journals the transition.
func (e *Engine) UpdateTask(queueID, taskID string, upd TaskUpdate) (*types.Task, error) {
	if upd.Status != nil && *upd.Status != types.TaskPending.String() {
		return nil, invalidf("task updates may only reset status to %q, got %q", types.TaskPending.String(), *upd.Status)
	}
	for _, doc := range []types.Document{upd.Args, upd.Metadata, upd.Summary} {
		if err := doc.ValidateKeys(); err != nil {
			return nil, invalid(err)
		}
	}
	if upd.Name != nil && *upd.Name != "" {
		if err := types.ValidateName("task name", *upd.Name); err != nil {
			return nil, invalid(err)
		}
	}
	if upd.Priority != nil && *upd.Priority < 0 {
		return nil, invalidf("priority must not be negative")
	}
	if upd.HeartbeatTimeout != nil && *upd.HeartbeatTimeout < 0 {
		return nil, invalidf("heartbeat timeout must not be negative")
	}
	if upd.TaskTimeout != nil && *upd.TaskTimeout < 0 {
		return nil, invalidf("task timeout must not be negative")
	}
	replace := make(map[string]bool, len(upd.ReplaceFields))
	for _, field := range upd.ReplaceFields {
		replace[field] = true
	}
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return nil, err
	}
	task := rawdb.ReadTask(e.db, queueID, taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	var (
		now   = types.NowMilli()
		old   = task.Status
		batch = e.db.NewBatch()
	)
	// The dispatch key embeds priority and creation time, so drop the old
	// entry before mutating and re-add one afterwards if still pending.
	if old == types.TaskPending {
		rawdb.DeleteDispatchEntry(batch, task)
	}
	if upd.Name != nil {
		task.Name = *upd.Name
	}
	if upd.Priority != nil {
		task.Priority = *upd.Priority
	}
	if upd.HeartbeatTimeout != nil {
		task.HeartbeatTimeout = *upd.HeartbeatTimeout
	}
	if upd.TaskTimeout != nil {
		task.TaskTimeout = *upd.TaskTimeout
	}
	if upd.MaxRetries != nil {
		task.MaxRetries = *upd.MaxRetries
	}
	if upd.Cmd != nil {
		task.Cmd = upd.Cmd.Copy()
	}
	task.Args = applyDocumentUpdate(task.Args, upd.Args, replace["args"])
	task.Metadata = applyDocumentUpdate(task.Metadata, upd.Metadata, replace["metadata"])
	task.Summary = applyDocumentUpdate(task.Summary, upd.Summary, replace["summary"])

	var events []*types.Event
	if upd.Status != nil {
		// Admin reset: requeue from any state, terminals included.
		task.Status = types.TaskPending
		task.Retries = 0
		task.WorkerID = ""
		task.LastHeartbeat = 0
		if old == types.TaskRunning {
			rawdb.DeleteRunningEntry(batch, queueID, taskID)
		}
		if old != types.TaskPending {
			events = append(events, types.NewTaskTransition(task, old, types.TaskPending))
		}
	}
	task.LastModified = now
	if task.Status == types.TaskPending {
		rawdb.WriteDispatchEntry(batch, task)
	}
	rawdb.WriteTask(batch, task)
	e.stageEvents(batch, queueID, events)
	if err := e.commit(batch, events); err != nil {
		return nil, err
	}
	e.log.Debug("Task updated", "queue", queueID, "task", taskID, "reset", upd.Status != nil)
	return task, nil
}

// applyDocumentUpdate merges or replaces one document field of a task
// update. A nil patch keeps the stored document even in replace mode.
func applyDocumentUpdate(base, patch types.Document, replace bool) types.Document {
	if patch == nil {
		return base
	}
	if replace {
		return patch.Copy()
	}
	return types.MergeDocuments(base, patch)
}

// DeleteTask removes a task record and its index entries. Deletions are not
// lifecycle transitions and journal no event.
func (e *Engine) DeleteTask(queueID, taskID string) error {
	lock := e.queueLock(queueID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.requireQueue(queueID); err != nil {
		return err
	}
	task := rawdb.ReadTask(e.db, queueID, taskID)
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	batch := e.db.NewBatch()
	rawdb.DeleteTask(batch, queueID, taskID)
	switch task.Status {
	case types.TaskPending:
		rawdb.DeleteDispatchEntry(batch, task)
	case types.TaskRunning:
		rawdb.DeleteRunningEntry(batch, queueID, taskID)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	e.log.Debug("Task deleted", "queue", queueID, "task", taskID)
	return nil
}
