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
	"fmt"
	"io"
	"net/http"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/taskhive/go-taskhive/core"
	"github.com/taskhive/go-taskhive/core/types"
)

// Wire types of the HTTP interface. Field names are part of the protocol;
// changing them breaks deployed clients.

// QueueCreateRequest registers a new queue.
type QueueCreateRequest struct {
	QueueName string         `json:"queue_name"`
	Password  string         `json:"password"`
	Metadata  types.Document `json:"metadata,omitempty"`
}

// QueueCreateResponse acknowledges a registration.
type QueueCreateResponse struct {
	QueueID string `json:"queue_id"`
}

// QueueUpdateRequest edits the authenticated queue. Nil fields keep their
// stored value; MetadataUpdate deep-merges into the stored metadata.
type QueueUpdateRequest struct {
	NewQueueName   *string        `json:"new_queue_name,omitempty"`
	NewPassword    *string        `json:"new_password,omitempty"`
	MetadataUpdate types.Document `json:"metadata_update,omitempty"`
}

// TaskSubmitRequest queues one task.
type TaskSubmitRequest struct {
	TaskName         string         `json:"task_name,omitempty"`
	Args             types.Document `json:"args,omitempty"`
	Metadata         types.Document `json:"metadata,omitempty"`
	Cmd              types.Command  `json:"cmd,omitempty"`
	HeartbeatTimeout *float64       `json:"heartbeat_timeout,omitempty"`
	TaskTimeout      int64          `json:"task_timeout,omitempty"`
	MaxRetries       *uint64        `json:"max_retries,omitempty"`
	Priority         *int64         `json:"priority,omitempty"`
}

// TaskSubmitResponse acknowledges a submission.
type TaskSubmitResponse struct {
	TaskID string `json:"task_id"`
}

// TaskFetchRequest claims the next available task for a worker.
type TaskFetchRequest struct {
	WorkerID string `json:"worker_id,omitempty"`
	ETAMax   string `json:"eta_max,omitempty"`
	// HeartbeatTimeout is accepted for wire compatibility; the timeout
	// stored on the task governs the claim.
	HeartbeatTimeout *float64       `json:"heartbeat_timeout,omitempty"`
	StartHeartbeat   *bool          `json:"start_heartbeat,omitempty"` // nil means true
	RequiredFields   []string       `json:"required_fields,omitempty"`
	ExtraFilter      types.Document `json:"extra_filter,omitempty"`
}

// TaskFetchResponse reports a dispatch attempt. Task is set only when a
// claim was made.
type TaskFetchResponse struct {
	Found bool        `json:"found"`
	Task  *types.Task `json:"task,omitempty"`
}

// TaskLsResponse pages through matching tasks.
type TaskLsResponse struct {
	Found   bool          `json:"found"`
	Content []*types.Task `json:"content"`
}

// TaskStatusUpdateRequest reports the outcome of a claimed task.
type TaskStatusUpdateRequest struct {
	Status string `json:"status"`
	// WorkerID is accepted for wire compatibility; the binding recorded
	// at claim time identifies the reporter.
	WorkerID string         `json:"worker_id,omitempty"`
	Summary  types.Document `json:"summary,omitempty"`
}

// TaskUpdateRequest is an administrative task edit. Document fields
// deep-merge unless named in ReplaceFields.
type TaskUpdateRequest struct {
	ReplaceFields    []string       `json:"replace_fields,omitempty"`
	TaskName         *string        `json:"task_name,omitempty"`
	Status           *string        `json:"status,omitempty"`
	Priority         *int64         `json:"priority,omitempty"`
	HeartbeatTimeout *float64       `json:"heartbeat_timeout,omitempty"`
	TaskTimeout      *int64         `json:"task_timeout,omitempty"`
	MaxRetries       *uint64        `json:"max_retries,omitempty"`
	Cmd              *types.Command `json:"cmd,omitempty"`
	Args             types.Document `json:"args,omitempty"`
	Metadata         types.Document `json:"metadata,omitempty"`
	Summary          types.Document `json:"summary,omitempty"`
}

// WorkerCreateRequest registers an executor identity.
type WorkerCreateRequest struct {
	WorkerName string         `json:"worker_name,omitempty"`
	Metadata   types.Document `json:"metadata,omitempty"`
	MaxRetries *uint64        `json:"max_retries,omitempty"`
}

// WorkerCreateResponse acknowledges a registration.
type WorkerCreateResponse struct {
	WorkerID string `json:"worker_id"`
}

// WorkerLsResponse pages through matching workers.
type WorkerLsResponse struct {
	Found   bool            `json:"found"`
	Content []*types.Worker `json:"content"`
}

// WorkerStatusUpdateRequest drives a worker's state by hand.
type WorkerStatusUpdateRequest struct {
	Status string `json:"status"`
}

// QueryCollectionRequest is the unsafe raw read surface.
type QueryCollectionRequest struct {
	Collection string         `json:"collection"`
	Query      types.Document `json:"query,omitempty"`
	Offset     int            `json:"offset,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

// QueryCollectionResponse carries raw matching documents.
type QueryCollectionResponse struct {
	Found   bool             `json:"found"`
	Content []types.Document `json:"content"`
}

// UpdateCollectionRequest is the unsafe raw write surface.
type UpdateCollectionRequest struct {
	Collection string         `json:"collection"`
	Query      types.Document `json:"query"`
	Update     types.Document `json:"update"`
}

// UpdateCollectionResponse reports how many documents an unsafe update
// touched.
type UpdateCollectionResponse struct {
	Modified int `json:"modified"`
}

// EventSubscriptionResponse opens an event stream.
type EventSubscriptionResponse struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
}

// EventResponse frames one journal entry for streaming.
type EventResponse struct {
	Sequence  uint64       `json:"sequence"`
	Timestamp uint64       `json:"timestamp"`
	Event     *types.Event `json:"event"`
}

// replaceableFields are the update request fields whose names may appear in
// replace_fields. Only the document-valued ones make a semantic difference,
// but the scalar names are accepted since replacing equals assigning there.
var replaceableFields = mapset.NewSet(
	"args", "metadata", "summary", "cmd",
	"task_name", "status", "priority",
	"heartbeat_timeout", "task_timeout", "max_retries",
)

func validateReplaceFields(fields []string) error {
	for _, name := range fields {
		if !replaceableFields.Contains(name) {
			return fmt.Errorf("%w: unknown replace_fields entry %q", core.ErrValidation, name)
		}
	}
	return nil
}

// decodeJSON reads one JSON request body into v. An empty body is accepted
// and leaves v untouched, matching requests where every field is optional.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("%w: malformed request body: %v", core.ErrValidation, err)
	}
	return nil
}

func invalidParam(name, raw string) error {
	return fmt.Errorf("%w: malformed query parameter %s=%q", core.ErrValidation, name, raw)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, invalidParam(name, raw)
	}
	return val, nil
}

// docParam parses an optional JSON document query parameter.
func docParam(r *http.Request, name string) (types.Document, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	var doc types.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, invalidParam(name, raw)
	}
	return doc, nil
}
