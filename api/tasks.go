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

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	var req TaskSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.engine.SubmitTask(authQueue(r.Context()).ID, core.TaskSpec{
		Name:             req.TaskName,
		Args:             req.Args,
		Metadata:         req.Metadata,
		Cmd:              req.Cmd,
		HeartbeatTimeout: req.HeartbeatTimeout,
		TaskTimeout:      req.TaskTimeout,
		MaxRetries:       req.MaxRetries,
		Priority:         req.Priority,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &TaskSubmitResponse{TaskID: task.ID})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
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
	tasks, err := s.engine.Tasks(authQueue(r.Context()).ID, core.TaskQuery{
		TaskID: r.URL.Query().Get("task_id"),
		Name:   r.URL.Query().Get("task_name"),
		Offset: offset,
		Limit:  limit,
		Filter: filter,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*types.Task{} // an empty listing is [], never null
	}
	writeJSON(w, http.StatusOK, &TaskLsResponse{Found: len(tasks) > 0, Content: tasks})
}

func (s *Server) fetchTask(w http.ResponseWriter, r *http.Request) {
	var req TaskFetchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	startHeartbeat := req.StartHeartbeat == nil || *req.StartHeartbeat
	task, found, err := s.engine.FetchTask(authQueue(r.Context()).ID, core.FetchRequest{
		WorkerID:       req.WorkerID,
		ETAMax:         req.ETAMax,
		StartHeartbeat: startHeartbeat,
		RequiredFields: req.RequiredFields,
		ExtraFilter:    req.ExtraFilter,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &TaskFetchResponse{Found: found, Task: task})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.engine.Task(authQueue(r.Context()).ID, chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := validateReplaceFields(req.ReplaceFields); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.engine.UpdateTask(authQueue(r.Context()).ID, chi.URLParam(r, "taskID"), core.TaskUpdate{
		ReplaceFields:    req.ReplaceFields,
		Name:             req.TaskName,
		Status:           req.Status,
		Priority:         req.Priority,
		HeartbeatTimeout: req.HeartbeatTimeout,
		TaskTimeout:      req.TaskTimeout,
		MaxRetries:       req.MaxRetries,
		Cmd:              req.Cmd,
		Args:             req.Args,
		Metadata:         req.Metadata,
		Summary:          req.Summary,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteTask(authQueue(r.Context()).ID, chi.URLParam(r, "taskID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reportTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req TaskStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := s.engine.ReportTaskStatus(authQueue(r.Context()).ID, chi.URLParam(r, "taskID"), req.Status, req.Summary)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) refreshTaskHeartbeat(w http.ResponseWriter, r *http.Request) {
	task, err := s.engine.RefreshTaskHeartbeat(authQueue(r.Context()).ID, chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
