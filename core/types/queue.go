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

package types

// Queue is a named, password protected namespace of tasks and workers. The
// password hash never leaves the server; API responses use the redacted
// form.
type Queue struct {
	ID           string   `json:"queue_id"`
	Name         string   `json:"queue_name"`
	PasswordHash string   `json:"password_hash,omitempty"`
	CreatedAt    uint64   `json:"created_at"`
	LastModified uint64   `json:"last_modified"`
	Metadata     Document `json:"metadata,omitempty"`
}

// Copy creates a deep copy of the queue.
func (q *Queue) Copy() *Queue {
	cpy := *q
	cpy.Metadata = q.Metadata.Copy()
	return &cpy
}

// Redacted returns a copy of the queue with the password hash stripped, the
// shape handed out over the API.
func (q *Queue) Redacted() *Queue {
	cpy := q.Copy()
	cpy.PasswordHash = ""
	return cpy
}
