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

	"github.com/go-chi/chi/v5"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/core/types"
)

func (s *Server) createWorker(w http.ResponseWriter, r *http.Request) {
	var req WorkerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	worker, err := s.engine.CreateWorker(authQueue(r.Context()).ID, core.WorkerSpec{
		Name:       req.WorkerName,
		Metadata:   req.Metadata,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &WorkerCreateResponse{WorkerID: worker.ID})
}

func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	filter, err := docParam(r, "extra_filter")
	if err != nil {
		s.writeError(w, err)
		return
	}
	workers, err := s.engine.Workers(authQueue(r.Context()).ID, core.WorkerQuery{
		WorkerID: r.URL.Query().Get("worker_id"),
		Name:     r.URL.Query().Get("worker_name"),
		Offset:   offset,
		Limit:    limit,
		Filter:   filter,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if workers == nil {
		workers = []*types.Worker{} // an empty listing is [], never null
	}
	writeJSON(w, http.StatusOK, &WorkerLsResponse{Found: len(workers) > 0, Content: workers})
}

func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := s.engine.Worker(authQueue(r.Context()).ID, chi.URLParam(r, "workerID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) deleteWorker(w http.ResponseWriter, r *http.Request) {
	cascade, err := boolParam(r, "cascade_update", true)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.DeleteWorker(authQueue(r.Context()).ID, chi.URLParam(r, "workerID"), cascade); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reportWorkerStatus(w http.ResponseWriter, r *http.Request) {
	var req WorkerStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	worker, err := s.engine.ReportWorkerStatus(authQueue(r.Context()).ID, chi.URLParam(r, "workerID"), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}
