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

package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive/go-taskhive/core/types"
)

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("tasks", "pw")

	var submitted TaskSubmitResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{
		TaskName: "train",
		Args:     map[string]interface{}{"epochs": 3.0},
		Cmd:      types.Command{Line: "python train.py"},
	}, "tasks", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var listing TaskLsResponse
	resp = srv.request(http.MethodGet, "/api/v1/queues/me/tasks?task_name=train", nil, "tasks", "pw", &listing)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, listing.Found)
	require.Len(t, listing.Content, 1)
	assert.Equal(t, submitted.TaskID, listing.Content[0].ID)
	assert.Equal(t, types.TaskPending, listing.Content[0].Status)

	var fetched TaskFetchResponse
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "tasks", "pw", &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, fetched.Found)
	assert.Equal(t, submitted.TaskID, fetched.Task.ID)
	assert.Equal(t, types.TaskRunning, fetched.Task.Status)
	assert.NotZero(t, fetched.Task.LastHeartbeat)

	// Heartbeat while running, then report the outcome.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/heartbeat", nil, "tasks", "pw", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var done types.Task
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/status", &TaskStatusUpdateRequest{
		Status:  "success",
		Summary: map[string]interface{}{"loss": 0.01},
	}, "tasks", "pw", &done)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.TaskSuccess, done.Status)

	// Heartbeats on settled tasks report not found.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/heartbeat", nil, "tasks", "pw", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Settled means the dispatcher has nothing left.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "tasks", "pw", &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, fetched.Found)
	assert.Nil(t, fetched.Task)
}

func TestTaskValidationErrors(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("strict", "pw")

	// Malformed body.
	req, err := http.NewRequest(http.MethodPost, srv.http.URL+"/api/v1/queues/me/tasks", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.SetBasicAuth("strict", "pw")
	resp, err := srv.http.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Dotted metadata keys are rejected on the way in.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{
		Metadata: map[string]interface{}{"bad.key": 1},
	}, "strict", "pw", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Unknown replace_fields entry.
	var submitted TaskSubmitResponse
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{}, "strict", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = srv.request(http.MethodPut, "/api/v1/queues/me/tasks/"+submitted.TaskID, &TaskUpdateRequest{
		ReplaceFields: []string{"retries"},
	}, "strict", "pw", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Reporting an unknown status string.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/status", &TaskStatusUpdateRequest{
		Status: "finished",
	}, "strict", "pw", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	// Malformed pagination parameter.
	resp = srv.request(http.MethodGet, "/api/v1/queues/me/tasks?limit=-3", nil, "strict", "pw", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestTaskTransitionConflict(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("conflict", "pw")

	var submitted TaskSubmitResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{}, "conflict", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// success straight from pending is not a legal transition.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/status", &TaskStatusUpdateRequest{
		Status: "success",
	}, "conflict", "pw", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The record did not move.
	var task types.Task
	resp = srv.request(http.MethodGet, "/api/v1/queues/me/tasks/"+submitted.TaskID, nil, "conflict", "pw", &task)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.TaskPending, task.Status)
}

func TestTaskAdminReset(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("reset", "pw")

	var submitted TaskSubmitResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{}, "reset", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fetched TaskFetchResponse
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "reset", "pw", &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, fetched.Found)

	var done types.Task
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/status", &TaskStatusUpdateRequest{
		Status: "cancelled",
	}, "reset", "pw", &done)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Requeue from the terminal state through the admin edit.
	var reset types.Task
	resp = srv.request(http.MethodPut, "/api/v1/queues/me/tasks/"+submitted.TaskID, &TaskUpdateRequest{
		Status: strptr("pending"),
	}, "reset", "pw", &reset)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.TaskPending, reset.Status)
	assert.Zero(t, reset.Retries)
	assert.Empty(t, reset.WorkerID)

	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "reset", "pw", &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, fetched.Found)
}

func TestWorkerLifecycle(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("crew", "pw")

	var created WorkerCreateResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues/me/workers", &WorkerCreateRequest{
		WorkerName: "gpu-0",
	}, "crew", "pw", &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var worker types.Worker
	resp = srv.request(http.MethodGet, "/api/v1/queues/me/workers/"+created.WorkerID, nil, "crew", "pw", &worker)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.WorkerActive, worker.Status)

	resp = srv.request(http.MethodPost, "/api/v1/queues/me/workers/"+created.WorkerID+"/status", &WorkerStatusUpdateRequest{
		Status: "suspended",
	}, "crew", "pw", &worker)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, types.WorkerSuspended, worker.Status)

	// A suspended worker cannot claim work.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{
		WorkerID: created.WorkerID,
	}, "crew", "pw", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// crashed is engine-owned and cannot be requested.
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/workers/"+created.WorkerID+"/status", &WorkerStatusUpdateRequest{
		Status: "crashed",
	}, "crew", "pw", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var listing WorkerLsResponse
	resp = srv.request(http.MethodGet, "/api/v1/queues/me/workers", nil, "crew", "pw", &listing)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, listing.Found)
	require.Len(t, listing.Content, 1)

	resp = srv.request(http.MethodDelete, "/api/v1/queues/me/workers/"+created.WorkerID, nil, "crew", "pw", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = srv.request(http.MethodGet, "/api/v1/queues/me/workers/"+created.WorkerID, nil, "crew", "pw", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnsafeSurfaceGate(t *testing.T) {
	t.Parallel()

	// Disabled by default: the route answers 403 regardless of payload.
	locked := newTestServer(t, false)
	locked.createQueue("vault", "pw")
	resp := locked.request(http.MethodPost, "/api/v1/queues/me/query", &QueryCollectionRequest{
		Collection: "tasks",
	}, "vault", "pw", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Enabled: raw documents come back.
	open := newTestServer(t, true)
	open.createQueue("vault", "pw")
	var submitted TaskSubmitResponse
	resp = open.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{
		TaskName: "raw",
	}, "vault", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result QueryCollectionResponse
	resp = open.request(http.MethodPost, "/api/v1/queues/me/query", &QueryCollectionRequest{
		Collection: "tasks",
		Query:      map[string]interface{}{"task_name": "raw"},
	}, "vault", "pw", &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, result.Found)
	require.Len(t, result.Content, 1)
	assert.Equal(t, submitted.TaskID, result.Content[0]["task_id"])

	// Raw update touches user fields only.
	var updated UpdateCollectionResponse
	resp = open.request(http.MethodPost, "/api/v1/queues/me/update", &UpdateCollectionRequest{
		Collection: "tasks",
		Query:      map[string]interface{}{"task_name": "raw"},
		Update:     map[string]interface{}{"metadata": map[string]interface{}{"tag": "x"}},
	}, "vault", "pw", &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, updated.Modified)

	// Unknown collections fail validation.
	resp = open.request(http.MethodPost, "/api/v1/queues/me/query", &QueryCollectionRequest{
		Collection: "secrets",
	}, "vault", "pw", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
