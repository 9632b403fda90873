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
	"strconv"

	"github.com/taskhive/go-taskhive/core"
)

func (s *Server) createQueue(w http.ResponseWriter, r *http.Request) {
	var req QueueCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	queue, err := s.engine.CreateQueue(req.QueueName, req.Password, req.Metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &QueueCreateResponse{QueueID: queue.ID})
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authQueue(r.Context()).Redacted())
}

func (s *Server) updateQueue(w http.ResponseWriter, r *http.Request) {
	var req QueueUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	queue, err := s.engine.UpdateQueue(authQueue(r.Context()).ID, core.QueueUpdate{
		Name:     req.NewQueueName,
		Password: req.NewPassword,
		Metadata: req.MetadataUpdate,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queue.Redacted())
}

func (s *Server) deleteQueue(w http.ResponseWriter, r *http.Request) {
	cascade, err := boolParam(r, "cascade_delete", false)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.DeleteQueue(authQueue(r.Context()).ID, cascade); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// boolParam parses an optional boolean query parameter.
func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, invalidParam(name, raw)
	}
	return val, nil
}
