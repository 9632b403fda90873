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

package filters

import (
	"testing"

	"github.com/taskhive/go-taskhive/core/types"
)

// sample is a task document the way it looks after a JSON round trip:
// numbers are float64, nested maps are map[string]any.
var sample = types.Document{
	"task_name": "train-resnet",
	"status":    "pending",
	"priority":  10.0,
	"retries":   0.0,
	"worker_id": nil,
	"args": map[string]any{
		"lr":     0.1,
		"epochs": 90.0,
		"model":  map[string]any{"depth": 50.0},
	},
	"tags": []any{"vision", "baseline"},
}

func TestPredicateMatch(t *testing.T) {
	tests := []struct {
		name   string
		filter types.Document
		want   bool
	}{
		{"empty filter", types.Document{}, true},
		{"top level equality", types.Document{"status": "pending"}, true},
		{"top level mismatch", types.Document{"status": "running"}, false},
		{"dotted path", types.Document{"args.model.depth": 50}, true},
		{"dotted path int vs float", types.Document{"priority": 10}, true},
		{"missing path", types.Document{"args.batch": 64}, false},
		{"null matches missing", types.Document{"args.batch": nil}, true},
		{"null matches explicit null", types.Document{"worker_id": nil}, true},
		{"subdocument equality", types.Document{"args.model": map[string]any{"depth": 50.0}}, true},
		{"subdocument mismatch", types.Document{"args.model": map[string]any{"depth": 18.0}}, false},
		{"list equality", types.Document{"tags": []any{"vision", "baseline"}}, true},
		{"list order matters", types.Document{"tags": []any{"baseline", "vision"}}, false},

		{"$eq", types.Document{"priority": map[string]any{"$eq": 10}}, true},
		{"$ne", types.Document{"status": map[string]any{"$ne": "running"}}, true},
		{"$ne equal value", types.Document{"status": map[string]any{"$ne": "pending"}}, false},
		{"$ne missing field", types.Document{"args.batch": map[string]any{"$ne": 64}}, true},
		{"$gt", types.Document{"priority": map[string]any{"$gt": 5}}, true},
		{"$gt equal", types.Document{"priority": map[string]any{"$gt": 10}}, false},
		{"$gte equal", types.Document{"priority": map[string]any{"$gte": 10}}, true},
		{"$lt", types.Document{"args.lr": map[string]any{"$lt": 1}}, true},
		{"$lte", types.Document{"args.epochs": map[string]any{"$lte": 90}}, true},
		{"$gt string", types.Document{"task_name": map[string]any{"$gt": "a"}}, true},
		{"$gt cross type", types.Document{"task_name": map[string]any{"$gt": 5}}, false},
		{"$gt missing", types.Document{"args.batch": map[string]any{"$gt": 5}}, false},
		{"range conjunction", types.Document{"priority": map[string]any{"$gte": 0, "$lt": 20}}, true},

		{"$in", types.Document{"status": map[string]any{"$in": []any{"pending", "running"}}}, true},
		{"$in no match", types.Document{"status": map[string]any{"$in": []any{"failed"}}}, false},
		{"$in null matches missing", types.Document{"args.batch": map[string]any{"$in": []any{nil}}}, true},
		{"$nin", types.Document{"status": map[string]any{"$nin": []any{"failed", "cancelled"}}}, true},
		{"$nin hit", types.Document{"status": map[string]any{"$nin": []any{"pending"}}}, false},
		{"$nin missing field", types.Document{"args.batch": map[string]any{"$nin": []any{64}}}, true},

		{"$exists true", types.Document{"args.lr": map[string]any{"$exists": true}}, true},
		{"$exists false", types.Document{"args.batch": map[string]any{"$exists": false}}, true},
		{"$exists null field", types.Document{"worker_id": map[string]any{"$exists": true}}, true},

		{"$regex", types.Document{"task_name": map[string]any{"$regex": "^train-"}}, true},
		{"$regex no match", types.Document{"task_name": map[string]any{"$regex": "^eval-"}}, false},
		{"$regex non-string", types.Document{"priority": map[string]any{"$regex": "1"}}, false},

		{"$not", types.Document{"status": map[string]any{"$not": map[string]any{"$eq": "running"}}}, true},
		{"$not hit", types.Document{"priority": map[string]any{"$not": map[string]any{"$gte": 5}}}, false},

		{"$and", types.Document{"$and": []any{
			map[string]any{"status": "pending"},
			map[string]any{"priority": map[string]any{"$gt": 5}},
		}}, true},
		{"$and short", types.Document{"$and": []any{
			map[string]any{"status": "pending"},
			map[string]any{"priority": map[string]any{"$gt": 50}},
		}}, false},
		{"$or", types.Document{"$or": []any{
			map[string]any{"status": "running"},
			map[string]any{"priority": 10},
		}}, true},
		{"$or none", types.Document{"$or": []any{
			map[string]any{"status": "running"},
			map[string]any{"priority": 0},
		}}, false},
		{"nested logic", types.Document{"$or": []any{
			map[string]any{"$and": []any{
				map[string]any{"status": "pending"},
				map[string]any{"args.lr": map[string]any{"$lt": 0.5}},
			}},
			map[string]any{"task_name": "other"},
		}}, true},

		{"fields conjoin", types.Document{"status": "pending", "priority": 10}, true},
		{"fields conjoin miss", types.Document{"status": "pending", "priority": 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := Compile(tt.filter)
			if err != nil {
				t.Fatalf("failed to compile filter: %v", err)
			}
			if have := pred.Match(sample); have != tt.want {
				t.Errorf("match = %v, want %v", have, tt.want)
			}
		})
	}
}

func TestCompileNil(t *testing.T) {
	pred, err := Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile nil filter: %v", err)
	}
	if !pred.Match(sample) || !pred.Match(types.Document{}) {
		t.Error("nil filter must match everything")
	}
}

func TestCompileErrors(t *testing.T) {
	bad := []types.Document{
		{"$where": "this.priority > 5"},
		{"status": map[string]any{"$near": 1}},
		{"status": map[string]any{"$eq": "pending", "extra": 1}},
		{"$and": "not-a-list"},
		{"$or": []any{"not-a-doc"}},
		{"status": map[string]any{"$in": "pending"}},
		{"status": map[string]any{"$exists": "yes"}},
		{"task_name": map[string]any{"$regex": "(["}},
		{"task_name": map[string]any{"$regex": 42}},
		{"status": map[string]any{"$not": "pending"}},
	}
	for i, filter := range bad {
		if _, err := Compile(filter); err == nil {
			t.Errorf("filter %d compiled without error: %v", i, filter)
		}
	}
}
