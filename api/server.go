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

// Package api exposes the lifecycle engine over HTTP. Routes follow the
// /api/v1 layout with queue-scoped operations mounted behind HTTP Basic
// authentication, one queue per credential pair. State-changing calls
// translate engine errors into {detail} bodies with predictable status
// codes; the event journal streams over SSE or WebSocket.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/internal/version"
	"github.com/taskhive/go-taskhive/log"
	"github.com/taskhive/go-taskhive/metrics"
)

// Config tunes the HTTP surface.
type Config struct {
	// EventPingInterval is the keepalive cadence on event streams.
	EventPingInterval time.Duration

	// EventBuffer is the per-stream delivery buffer. A subscriber that
	// falls this far behind the journal is told to resync.
	EventBuffer int

	// WSOrigins lists Origin values accepted for websocket upgrades on
	// the event stream. Empty allows only non-browser clients and local
	// pages; "*" allows everything.
	WSOrigins []string

	// Logger is a custom logger for the request plumbing.
	Logger log.Logger `toml:"-"`
}

// DefaultConfig carries the stream settings used when none are given.
var DefaultConfig = Config{
	EventPingInterval: 15 * time.Second,
	EventBuffer:       64,
}

// Server dispatches HTTP requests to a lifecycle engine.
type Server struct {
	engine *core.Engine
	config Config
	log    log.Logger
	auth   *authenticator
}

// NewServer wraps an engine with the HTTP interface. The caller owns the
// engine's lifecycle; Close releases only what the server itself holds.
func NewServer(engine *core.Engine, config Config) *Server {
	if config.EventPingInterval <= 0 {
		config.EventPingInterval = DefaultConfig.EventPingInterval
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultConfig.EventBuffer
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Root()
	}
	return &Server{
		engine: engine,
		config: config,
		log:    logger,
		auth:   newAuthenticator(engine, logger),
	}
}

// Close tears down the server's bookkeeping. In-flight requests are the
// HTTP server's business, not ours.
func (s *Server) Close() {
	s.auth.close()
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.SetHeader("Server", version.ClientName("hived")))

	r.Get("/health", s.health)
	r.Get("/health/full", s.fullHealth)
	r.Get("/debug/metrics", s.metricsSnapshot)

	r.Post("/api/v1/queues", s.createQueue)
	r.Route("/api/v1/queues/me", func(r chi.Router) {
		r.Use(s.auth.middleware)

		r.Get("/", s.getQueue)
		r.Put("/", s.updateQueue)
		r.Delete("/", s.deleteQueue)

		r.Post("/tasks", s.submitTask)
		r.Get("/tasks", s.listTasks)
		r.Post("/tasks/next", s.fetchTask)
		r.Get("/tasks/{taskID}", s.getTask)
		r.Put("/tasks/{taskID}", s.updateTask)
		r.Delete("/tasks/{taskID}", s.deleteTask)
		r.Post("/tasks/{taskID}/status", s.reportTaskStatus)
		r.Post("/tasks/{taskID}/heartbeat", s.refreshTaskHeartbeat)

		r.Post("/workers", s.createWorker)
		r.Get("/workers", s.listWorkers)
		r.Get("/workers/{workerID}", s.getWorker)
		r.Delete("/workers/{workerID}", s.deleteWorker)
		r.Post("/workers/{workerID}/status", s.reportWorkerStatus)

		r.Get("/events", s.streamEvents)

		r.Post("/query", s.queryCollection)
		r.Post("/update", s.updateCollection)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"connection": "ok"})
}

// fullHealth checks that the backing store still answers.
func (s *Server) fullHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(); err != nil {
		s.log.Error("Health probe failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":   "unhealthy",
			"database": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "connected",
	})
}

// metricsSnapshot dumps the metrics registry. Without --metrics there is
// nothing to report and the route says so instead of serving zeroes.
func (s *Server) metricsSnapshot(w http.ResponseWriter, r *http.Request) {
	if !metrics.Enabled {
		writeJSON(w, http.StatusNotFound, &errorResponse{Detail: "metrics collection is disabled"})
		return
	}
	writeJSON(w, http.StatusOK, metrics.DefaultRegistry.GetAll())
}
