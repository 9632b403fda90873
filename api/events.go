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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/core/types"
	"github.com/taskhive/go-taskhive/event"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/metrics"
)

const (
	// streamRetryMillis is the reconnect delay suggested to SSE clients
	// on the opening frame.
	streamRetryMillis = 3000

	wsReadBuffer       = 1024
	wsWriteBuffer      = 1024
	wsPingWriteTimeout = 5 * time.Second
	wsPongTimeout      = 30 * time.Second
)

var (
	streamOpenGauge    = metrics.NewRegisteredGauge("hive/api/streams", nil)
	streamEventCounter = metrics.NewRegisteredCounter("hive/api/streams/events", nil)
	streamResyncMeter  = metrics.NewRegisteredMeter("hive/api/streams/resyncs", nil)
)

var wsBufferPool = new(sync.Pool)

// streamEvents serves the journal of the authenticated queue as a live
// stream, server-sent events by default, JSON messages over a websocket
// when the request asks for an upgrade. A since_sequence parameter replays
// the persisted journal from right after that sequence before going live;
// without it the stream starts at the current head.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	queue := authQueue(r.Context())

	since, err := s.streamStart(queue.ID, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ch := make(chan *types.Event, s.config.EventBuffer)
	sub, err := s.engine.SubscribeEvents(queue.ID, since, ch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer sub.Unsubscribe()

	clientID := uuid.NewString()
	s.log.Debug("Event stream opened", "queue", queue.ID, "client", clientID, "since", since)
	streamOpenGauge.Inc(1)
	defer streamOpenGauge.Dec(1)

	if websocket.IsWebSocketUpgrade(r) {
		s.streamWebsocket(w, r, clientID, since, ch, sub)
		return
	}
	s.streamSSE(w, r, clientID, since, ch, sub)
}

// streamStart resolves the starting sequence cursor of a stream request.
func (s *Server) streamStart(queueID string, r *http.Request) (uint64, error) {
	if raw := r.URL.Query().Get("since_sequence"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, invalidParam("since_sequence", raw)
		}
		return since, nil
	}
	return s.engine.JournalHead(queueID)
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, clientID string, since uint64, ch chan *types.Event, sub event.Subscription) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, errors.New("response writer does not support streaming"))
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // keep reverse proxies from batching frames
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "connection", since, streamRetryMillis, &EventSubscriptionResponse{
		Status:   "connected",
		ClientID: clientID,
	})
	flusher.Flush()

	ticker := time.NewTicker(s.config.EventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-ch:
			streamEventCounter.Inc(1)
			if err := writeSSE(w, "event", ev.Sequence, 0, eventEnvelope(ev)); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := io.WriteString(w, "event: ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case err := <-sub.Err():
			// Flush events that were delivered before the stream ended.
			for {
				select {
				case ev := <-ch:
					streamEventCounter.Inc(1)
					writeSSE(w, "event", ev.Sequence, 0, eventEnvelope(ev))
				default:
					if errors.Is(err, core.ErrEventOverflow) {
						streamResyncMeter.Mark(1)
						s.log.Debug("Event stream overflowed", "client", clientID)
						writeSSE(w, "resync", 0, streamRetryMillis, &errorResponse{
							Detail: "stream fell behind the journal, reconnect with since_sequence",
						})
					}
					flusher.Flush()
					return
				}
			}

		case <-r.Context().Done():
			return
		}
	}
}

// writeSSE frames one server-sent event. The id line carries the journal
// sequence so interrupted clients know where to resume; retry is only sent
// when positive.
func writeSSE(w io.Writer, kind string, id uint64, retry int, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if retry > 0 {
		_, err = fmt.Fprintf(w, "event: %s\nid: %d\nretry: %d\ndata: %s\n\n", kind, id, retry, data)
	} else {
		_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", kind, id, data)
	}
	return err
}

func eventEnvelope(ev *types.Event) *EventResponse {
	return &EventResponse{Sequence: ev.Sequence, Timestamp: ev.Timestamp, Event: ev}
}

func (s *Server) streamWebsocket(w http.ResponseWriter, r *http.Request, clientID string, since uint64, ch chan *types.Event, sub event.Subscription) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBuffer,
		WriteBufferSize: wsWriteBuffer,
		WriteBufferPool: wsBufferPool,
		CheckOrigin:     wsOriginValidator(s.config.WSOrigins, s.log),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// Reader side only services control frames; clients do not speak.
	closed := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Time{})
		return nil
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(&EventSubscriptionResponse{Status: "connected", ClientID: clientID}); err != nil {
		return
	}
	ticker := time.NewTicker(s.config.EventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-ch:
			streamEventCounter.Inc(1)
			if err := conn.WriteJSON(eventEnvelope(ev)); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsPingWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsPongTimeout))

		case err := <-sub.Err():
			for {
				select {
				case ev := <-ch:
					streamEventCounter.Inc(1)
					conn.WriteJSON(eventEnvelope(ev))
				default:
					code := websocket.CloseNormalClosure
					reason := "stream ended"
					if errors.Is(err, core.ErrEventOverflow) {
						streamResyncMeter.Mark(1)
						code = websocket.CloseTryAgainLater
						reason = "stream fell behind the journal, reconnect with since_sequence"
					}
					msg := websocket.FormatCloseMessage(code, reason)
					conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsPingWriteTimeout))
					return
				}
			}

		case <-closed:
			return

		case <-r.Context().Done():
			return
		}
	}
}

// wsOriginValidator implements browser-origin checking for websocket
// upgrades. Requests without an Origin header always pass; browsers always
// set one and non-browser clients gain nothing from forging it.
func wsOriginValidator(allowed []string, logger log.Logger) func(*http.Request) bool {
	origins := mapset.NewSet[string]()
	allowAll := false
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		if origin != "" {
			origins.Add(strings.ToLower(origin))
		}
	}
	// Allow localhost when nothing is configured.
	if origins.Cardinality() == 0 {
		origins.Add("http://localhost")
		if hostname, err := os.Hostname(); err == nil {
			origins.Add("http://" + strings.ToLower(hostname))
		}
	}
	return func(req *http.Request) bool {
		if _, ok := req.Header["Origin"]; !ok {
			return true
		}
		origin := strings.ToLower(req.Header.Get("Origin"))
		if allowAll || origins.Contains(origin) {
			return true
		}
		logger.Warn("Rejected WebSocket connection", "origin", origin)
		return false
	}
}
