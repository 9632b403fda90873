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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/core/rawdb"
	"github.com/taskhive/go-taskhive/internal/testlog"
	"github.com/taskhive/go-taskhive/log"
)

// testServer hosts a fresh engine behind the HTTP interface.
type testServer struct {
	t      *testing.T
	http   *httptest.Server
	engine *core.Engine
}

func newTestServer(t *testing.T, unsafe bool) *testServer {
	t.Helper()

	config := core.DefaultConfig
	config.PeriodicTaskInterval = time.Hour // sweeps run on demand in tests
	config.AllowUnsafe = unsafe
	config.Logger = testlog.Logger(t, log.LvlInfo)

	engine := core.New(rawdb.NewMemoryDatabase(), config)
	require.NoError(t, engine.Start())
	t.Cleanup(func() { engine.Stop() })

	srv := NewServer(engine, Config{
		EventPingInterval: 50 * time.Millisecond,
		Logger:            testlog.Logger(t, log.LvlInfo),
	})
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testServer{t: t, http: ts, engine: engine}
}

// request runs one JSON request and decodes the response body into out when
// a target is given. Credentials are attached when name is non-empty.
func (s *testServer) request(method, path string, body interface{}, name, password string, out interface{}) *http.Response {
	s.t.Helper()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.http.URL+path, payload)
	require.NoError(s.t, err)
	if name != "" {
		req.SetBasicAuth(name, password)
	}
	resp, err := s.http.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp
}

// createQueue registers a queue over the API and returns its id.
func (s *testServer) createQueue(name, password string) string {
	s.t.Helper()

	var created QueueCreateResponse
	resp := s.request(http.MethodPost, "/api/v1/queues", &QueueCreateRequest{
		QueueName: name,
		Password:  password,
	}, "", "", &created)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(s.t, created.QueueID)
	return created.QueueID
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)

	var health map[string]string
	resp := srv.request(http.MethodGet, "/health", nil, "", "", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"connection": "ok"}, health)

	var full map[string]string
	resp = srv.request(http.MethodGet, "/health/full", nil, "", "", &full)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", full["status"])
	assert.Equal(t, "connected", full["database"])
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("auth-queue", "hunter2")

	// No credentials at all.
	resp := srv.request(http.MethodGet, "/api/v1/queues/me", nil, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Basic", resp.Header.Get("WWW-Authenticate"))

	// Wrong password and unknown queue look identical.
	resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "auth-queue", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "no-such-queue", "hunter2", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid credentials resolve the queue, hash withheld.
	var queue map[string]interface{}
	resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "auth-queue", "hunter2", &queue)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "auth-queue", queue["queue_name"])
	assert.NotContains(t, queue, "password_hash")
}

func TestAuthCacheInvalidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("cache-queue", "first")

	// Warm the credential cache.
	resp := srv.request(http.MethodGet, "/api/v1/queues/me", nil, "cache-queue", "first", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.request(http.MethodPut, "/api/v1/queues/me", &QueueUpdateRequest{
		NewPassword: strptr("second"),
	}, "cache-queue", "first", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The old password must stop working even though it was cached.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "cache-queue", "first", nil)
		if resp.StatusCode == http.StatusUnauthorized || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "cache-queue", "second", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateQueueConflicts(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("dup-queue", "pw")

	var detail errorResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues", &QueueCreateRequest{
		QueueName: "dup-queue",
		Password:  "other",
	}, "", "", &detail)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, detail.Detail)

	// Illegal name is a validation failure, not a conflict.
	resp = srv.request(http.MethodPost, "/api/v1/queues", &QueueCreateRequest{
		QueueName: "bad name!",
		Password:  "pw",
	}, "", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestQueueRenameAndDelete(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("old-name", "pw")

	resp := srv.request(http.MethodPut, "/api/v1/queues/me", &QueueUpdateRequest{
		NewQueueName: strptr("new-name"),
	}, "old-name", "pw", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "new-name", "pw", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A queue holding tasks refuses plain deletion.
	var submitted TaskSubmitResponse
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{
		Args: map[string]interface{}{"step": 1},
	}, "new-name", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.request(http.MethodDelete, "/api/v1/queues/me", nil, "new-name", "pw", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = srv.request(http.MethodDelete, "/api/v1/queues/me?cascade_delete=true", nil, "new-name", "pw", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = srv.request(http.MethodGet, "/api/v1/queues/me", nil, "new-name", "pw", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMetricsRouteDisabled(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)

	// Collection is off in tests, the route must say so.
	resp := srv.request(http.MethodGet, "/debug/metrics", nil, "", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func strptr(s string) *string { return &s }
