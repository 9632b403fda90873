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

import (
	"fmt"
	"strings"
)

// Document is a free-form JSON subtree under user control: task args and
// summaries, queue and worker metadata. The hive stores documents opaquely,
// only key legality is enforced on the way in. Values are the JSON scalar
// types plus []any and map[string]any, as produced by encoding/json.
type Document map[string]any

// ValidateKeys checks every mapping key in the document tree for legality.
// Dots and dollar signs are rejected anywhere in a key to keep dotted-path
// lookups and filter documents unambiguous.
func (d Document) ValidateKeys() error {
	for key, value := range d {
		if strings.ContainsAny(key, ".$") {
			return fmt.Errorf("illegal document key %q, keys must not contain '.' or '$'", key)
		}
		if sub, ok := value.(map[string]any); ok {
			if err := Document(sub).ValidateKeys(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copy creates a deep copy of the document. Nested maps and slices are
// duplicated, scalars are shared.
func (d Document) Copy() Document {
	if d == nil {
		return nil
	}
	cpy := make(Document, len(d))
	for key, value := range d {
		cpy[key] = copyValue(value)
	}
	return cpy
}

func copyValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		return map[string]any(Document(value).Copy())
	case Document:
		return map[string]any(value.Copy())
	case []any:
		cpy := make([]any, len(value))
		for i, elem := range value {
			cpy[i] = copyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// Get resolves a dotted path inside the document and reports whether it
// exists. Path segments index nested mappings only, never list elements.
func (d Document) Get(path string) (any, bool) {
	var (
		current any = map[string]any(d)
		ok      bool
	)
	if d == nil {
		return nil, false
	}
	for _, segment := range strings.Split(path, ".") {
		node, isMap := asMap(current)
		if !isMap {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Has reports whether a dotted path exists in the document.
func (d Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

// Set assigns a value at a dotted path, creating intermediate mappings as
// needed. Intermediate non-mapping values are overwritten.
func (d Document) Set(path string, value any) {
	segments := strings.Split(path, ".")
	node := map[string]any(d)
	for _, segment := range segments[:len(segments)-1] {
		next, isMap := asMap(node[segment])
		if !isMap {
			next = make(map[string]any)
			node[segment] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

// Delete removes the value at a dotted path, if present.
func (d Document) Delete(path string) {
	segments := strings.Split(path, ".")
	node := map[string]any(d)
	for _, segment := range segments[:len(segments)-1] {
		next, isMap := asMap(node[segment])
		if !isMap {
			return
		}
		node = next
	}
	delete(node, segments[len(segments)-1])
}

func asMap(v any) (map[string]any, bool) {
	switch value := v.(type) {
	case map[string]any:
		return value, true
	case Document:
		return map[string]any(value), true
	default:
		return nil, false
	}
}

// MergeDocuments returns the deep merge of patch into base. Mappings recurse,
// every other value overwrites wholesale, lists included. Neither input is
// mutated; the merge is right-biased on conflicting scalar keys.
func MergeDocuments(base, patch Document) Document {
	if patch == nil {
		return base.Copy()
	}
	merged := base.Copy()
	if merged == nil {
		merged = make(Document, len(patch))
	}
	for key, value := range patch {
		patchMap, patchIsMap := asMap(value)
		baseMap, baseIsMap := asMap(merged[key])
		if patchIsMap && baseIsMap {
			merged[key] = map[string]any(MergeDocuments(Document(baseMap), Document(patchMap)))
			continue
		}
		merged[key] = copyValue(value)
	}
	return merged
}

// MergeDelta is MergeDocuments with tombstones: a null value in the delta
// deletes the key instead of storing null. Queue metadata updates use this
// form.
func MergeDelta(base, delta Document) Document {
	if delta == nil {
		return base.Copy()
	}
	merged := base.Copy()
	if merged == nil {
		merged = make(Document, len(delta))
	}
	for key, value := range delta {
		if value == nil {
			delete(merged, key)
			continue
		}
		deltaMap, deltaIsMap := asMap(value)
		baseMap, baseIsMap := asMap(merged[key])
		if deltaIsMap && baseIsMap {
			merged[key] = map[string]any(MergeDelta(Document(baseMap), Document(deltaMap)))
			continue
		}
		merged[key] = copyValue(value)
	}
	return merged
}
