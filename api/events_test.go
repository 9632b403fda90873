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
	"bufio"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseFrame is one parsed server-sent event.
type sseFrame struct {
	event string
	id    string
	data  string
}

// openStream starts an SSE subscription and returns a reader positioned at
// the first frame. The response body is closed with the test.
func openStream(t *testing.T, srv *testServer, name, password, path string) *bufio.Reader {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, srv.http.URL+path, nil)
	require.NoError(t, err)
	req.SetBasicAuth(name, password)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

// nextFrame reads frames until one that is not a keepalive ping arrives.
func nextFrame(t *testing.T, r *bufio.Reader) sseFrame {
	t.Helper()
	for {
		var frame sseFrame
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				break
			}
			switch {
			case strings.HasPrefix(line, "event: "):
				frame.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "id: "):
				frame.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "data: "):
				frame.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if frame.event != "ping" {
			return frame
		}
	}
}

func TestEventStreamSSE(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("stream", "pw")

	stream := openStream(t, srv, "stream", "pw", "/api/v1/queues/me/events?since_sequence=0")

	hello := nextFrame(t, stream)
	require.Equal(t, "connection", hello.event)
	var sub EventSubscriptionResponse
	require.NoError(t, json.Unmarshal([]byte(hello.data), &sub))
	assert.Equal(t, "connected", sub.Status)
	assert.NotEmpty(t, sub.ClientID)

	// Drive a transition; submission itself journals nothing.
	var submitted TaskSubmitResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{
		TaskName: "observed",
	}, "stream", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fetched TaskFetchResponse
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "stream", "pw", &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, fetched.Found)

	frame := nextFrame(t, stream)
	require.Equal(t, "event", frame.event)
	assert.Equal(t, "1", frame.id)
	var claimed EventResponse
	require.NoError(t, json.Unmarshal([]byte(frame.data), &claimed))
	assert.Equal(t, uint64(1), claimed.Sequence)
	assert.Equal(t, "pending", claimed.Event.OldState)
	assert.Equal(t, "running", claimed.Event.NewState)
	assert.Equal(t, submitted.TaskID, claimed.Event.EntityID)

	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/status", &TaskStatusUpdateRequest{
		Status: "success",
	}, "stream", "pw", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frame = nextFrame(t, stream)
	require.Equal(t, "event", frame.event)
	var done EventResponse
	require.NoError(t, json.Unmarshal([]byte(frame.data), &done))
	assert.Equal(t, uint64(2), done.Sequence)
	assert.Equal(t, "running", done.Event.OldState)
	assert.Equal(t, "success", done.Event.NewState)
}

func TestEventStreamReplay(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("replay", "pw")

	// Two journaled transitions before anyone subscribes.
	var submitted TaskSubmitResponse
	resp := srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{}, "replay", "pw", &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var fetched TaskFetchResponse
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "replay", "pw", &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, fetched.Found)
	resp = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/"+submitted.TaskID+"/status", &TaskStatusUpdateRequest{
		Status: "failed",
	}, "replay", "pw", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Backfill from the start: both transitions replay in order.
	stream := openStream(t, srv, "replay", "pw", "/api/v1/queues/me/events?since_sequence=0")
	require.Equal(t, "connection", nextFrame(t, stream).event)

	first := nextFrame(t, stream)
	second := nextFrame(t, stream)
	assert.Equal(t, "1", first.id)
	assert.Equal(t, "2", second.id)

	// A tail subscription skips history: the head cursor is in the
	// connection frame for clients to resume from.
	tail := openStream(t, srv, "replay", "pw", "/api/v1/queues/me/events")
	hello := nextFrame(t, tail)
	require.Equal(t, "connection", hello.event)
	assert.Equal(t, "2", hello.id)
}

func TestEventStreamBadCursor(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("cursor", "pw")

	req, err := http.NewRequest(http.MethodGet, srv.http.URL+"/api/v1/queues/me/events?since_sequence=banana", nil)
	require.NoError(t, err)
	req.SetBasicAuth("cursor", "pw")
	resp, err := srv.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEventStreamWebsocket(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("wire", "pw")

	wsURL := "ws" + strings.TrimPrefix(srv.http.URL, "http") + "/api/v1/queues/me/events?since_sequence=0"
	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("wire:pw")))

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var sub EventSubscriptionResponse
	require.NoError(t, conn.ReadJSON(&sub))
	assert.Equal(t, "connected", sub.Status)
	assert.NotEmpty(t, sub.ClientID)

	var submitted TaskSubmitResponse
	r := srv.request(http.MethodPost, "/api/v1/queues/me/tasks", &TaskSubmitRequest{}, "wire", "pw", &submitted)
	require.Equal(t, http.StatusCreated, r.StatusCode)
	var fetched TaskFetchResponse
	r = srv.request(http.MethodPost, "/api/v1/queues/me/tasks/next", &TaskFetchRequest{}, "wire", "pw", &fetched)
	require.Equal(t, http.StatusOK, r.StatusCode)
	require.True(t, fetched.Found)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev EventResponse
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, uint64(1), ev.Sequence)
	assert.Equal(t, "running", ev.Event.NewState)
}

func TestEventStreamEndsOnQueueDelete(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, false)
	srv.createQueue("doomed", "pw")

	stream := openStream(t, srv, "doomed", "pw", "/api/v1/queues/me/events")
	require.Equal(t, "connection", nextFrame(t, stream).event)

	resp := srv.request(http.MethodDelete, "/api/v1/queues/me", nil, "doomed", "pw", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The stream reaches EOF once the queue is gone; pings may still be
	// in flight before the close lands.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := stream.ReadString('\n'); err != nil {
			return
		}
		require.False(t, time.Now().After(deadline), "stream did not close after queue deletion")
	}
}
