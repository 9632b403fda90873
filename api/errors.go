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
	"net/http"

	"github.com/taskhive/go-taskhive/core"
)

// errorResponse is the uniform error body. The detail string is meant for
// humans operating a client, not for programmatic dispatch; clients should
// switch on the status code.
type errorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps engine errors onto HTTP status codes. Anything the engine
// did not classify is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case core.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrQueueExists),
		errors.Is(err, core.ErrQueueNotEmpty),
		errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrWorkerNotAvailable),
		errors.Is(err, core.ErrWorkerHoldsTasks):
		return http.StatusConflict
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnsafeDisabled):
		return http.StatusForbidden
	case errors.Is(err, core.ErrEngineStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		// Internal failures carry storage details the caller has no
		// business seeing. Log them, hand out a generic line.
		s.log.Error("Request failed", "err", err)
		detail = "internal server error"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Basic")
	}
	writeJSON(w, status, &errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}
