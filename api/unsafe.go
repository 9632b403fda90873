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

	"github.com/taskhive/go-taskhive/core/types"
)

// The raw collection surface maps straight onto the engine's unsafe
// operations. The engine enforces the allow-unsafe gate and the queue
// scoping; these handlers only shuttle documents.

func (s *Server) queryCollection(w http.ResponseWriter, r *http.Request) {
	var req QueryCollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	docs, err := s.engine.QueryCollection(authQueue(r.Context()).ID, req.Collection, req.Query, req.Limit, req.Offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []types.Document{} // an empty listing is [], never null
	}
	writeJSON(w, http.StatusOK, &QueryCollectionResponse{Found: len(docs) > 0, Content: docs})
}

func (s *Server) updateCollection(w http.ResponseWriter, r *http.Request) {
	var req UpdateCollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	modified, err := s.engine.UpdateCollection(authQueue(r.Context()).ID, req.Collection, req.Query, req.Update)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &UpdateCollectionResponse{Modified: modified})
}
