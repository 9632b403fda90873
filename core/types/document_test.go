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
	"reflect"
	"testing"
)

func TestDocumentValidateKeys(t *testing.T) {
	tests := []struct {
		doc Document
		ok  bool
	}{
		{Document{}, true},
		{Document{"a": 1, "b_c": "x"}, true},
		{Document{"a": map[string]any{"nested-key": true}}, true},
		{Document{"a.b": 1}, false},
		{Document{"$set": 1}, false},
		{Document{"a": map[string]any{"$gt": 5}}, false},
		{Document{"a": map[string]any{"deep": map[string]any{"x.y": 1}}}, false},
	}
	for i, tt := range tests {
		err := tt.doc.ValidateKeys()
		if tt.ok && err != nil {
			t.Errorf("test %d: unexpected error: %v", i, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("test %d: invalid keys accepted", i)
		}
	}
}

func TestDocumentPaths(t *testing.T) {
	doc := Document{
		"job": map[string]any{
			"env":  map[string]any{"CUDA": "11.8"},
			"name": "train",
		},
		"count": 3.0,
	}
	if v, ok := doc.Get("job.env.CUDA"); !ok || v != "11.8" {
		t.Errorf("Get(job.env.CUDA) = %v, %v", v, ok)
	}
	if v, ok := doc.Get("count"); !ok || v != 3.0 {
		t.Errorf("Get(count) = %v, %v", v, ok)
	}
	if _, ok := doc.Get("job.missing"); ok {
		t.Error("Get on missing path reported ok")
	}
	if _, ok := doc.Get("count.sub"); ok {
		t.Error("Get through scalar reported ok")
	}
	if !doc.Has("job.name") || doc.Has("job.env.PATH") {
		t.Error("Has gave wrong answers")
	}

	doc.Set("job.env.PATH", "/usr/bin")
	if v, _ := doc.Get("job.env.PATH"); v != "/usr/bin" {
		t.Errorf("Set did not stick: %v", v)
	}
	doc.Set("fresh.leaf", true)
	if v, _ := doc.Get("fresh.leaf"); v != true {
		t.Errorf("Set did not create intermediates: %v", v)
	}
	doc.Set("count.sub", 1.0)
	if v, _ := doc.Get("count.sub"); v != 1.0 {
		t.Errorf("Set did not overwrite scalar intermediate: %v", v)
	}

	doc.Delete("job.env.CUDA")
	if doc.Has("job.env.CUDA") {
		t.Error("Delete left the key behind")
	}
	doc.Delete("job.env.CUDA") // idempotent
	doc.Delete("no.such.path")
}

func TestDocumentCopy(t *testing.T) {
	doc := Document{
		"a": map[string]any{"b": []any{1.0, map[string]any{"c": "x"}}},
	}
	cpy := doc.Copy()

	inner, _ := cpy.Get("a.b")
	inner.([]any)[1].(map[string]any)["c"] = "mutated"
	cpy.Set("a.fresh", true)

	orig, _ := doc.Get("a.b")
	if got := orig.([]any)[1].(map[string]any)["c"]; got != "x" {
		t.Errorf("mutating copy changed original: %v", got)
	}
	if doc.Has("a.fresh") {
		t.Error("copy shares maps with original")
	}
}

func TestMergeDocuments(t *testing.T) {
	base := Document{
		"metrics": map[string]any{"loss": 0.5, "step": 10.0},
		"note":    "first",
	}
	patch := Document{
		"metrics": map[string]any{"loss": 0.25},
		"done":    true,
	}
	merged := MergeDocuments(base, patch)

	want := Document{
		"metrics": map[string]any{"loss": 0.25, "step": 10.0},
		"note":    "first",
		"done":    true,
	}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("merged = %v, want %v", merged, want)
	}
	// Neither input may be mutated.
	if base["metrics"].(map[string]any)["loss"] != 0.5 {
		t.Error("merge mutated base")
	}
	if len(patch["metrics"].(map[string]any)) != 1 {
		t.Error("merge mutated patch")
	}
}

func TestMergeDocumentsListsReplace(t *testing.T) {
	base := Document{"tags": []any{"a", "b"}}
	patch := Document{"tags": []any{"c"}}
	merged := MergeDocuments(base, patch)
	if !reflect.DeepEqual(merged["tags"], []any{"c"}) {
		t.Errorf("lists must replace wholesale, got %v", merged["tags"])
	}
}

func TestMergeDocumentsNil(t *testing.T) {
	if merged := MergeDocuments(nil, Document{"a": 1.0}); merged["a"] != 1.0 {
		t.Errorf("nil base merge = %v", merged)
	}
	if merged := MergeDocuments(Document{"a": 1.0}, nil); merged["a"] != 1.0 {
		t.Errorf("nil patch merge = %v", merged)
	}
}

func TestMergeDelta(t *testing.T) {
	base := Document{
		"keep":   "yes",
		"drop":   "no",
		"nested": map[string]any{"x": 1.0, "y": 2.0},
	}
	delta := Document{
		"drop":   nil,
		"nested": map[string]any{"y": nil, "z": 3.0},
		"added":  true,
	}
	merged := MergeDelta(base, delta)

	want := Document{
		"keep":   "yes",
		"nested": map[string]any{"x": 1.0, "z": 3.0},
		"added":  true,
	}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("merged = %v, want %v", merged, want)
	}
	if _, ok := base["drop"]; !ok {
		t.Error("delta merge mutated base")
	}
}
