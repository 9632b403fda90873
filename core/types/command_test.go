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
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestCommandJSON(t *testing.T) {
	tests := []struct {
		input string
		want  Command
		out   string
	}{
		{`"python train.py"`, Command{Line: "python train.py"}, `"python train.py"`},
		{`["python","train.py","--lr","0.1"]`, Command{Argv: []string{"python", "train.py", "--lr", "0.1"}}, `["python","train.py","--lr","0.1"]`},
		{`[]`, Command{Argv: []string{}}, `[]`},
		{`""`, Command{}, `""`},
	}
	for _, tt := range tests {
		var cmd Command
		if err := json.Unmarshal([]byte(tt.input), &cmd); err != nil {
			t.Fatalf("failed to unmarshal %s: %v", tt.input, err)
		}
		if !reflect.DeepEqual(cmd, tt.want) {
			t.Errorf("input %s: have %+v, want %+v", tt.input, cmd, tt.want)
		}
		blob, err := json.Marshal(cmd)
		if err != nil {
			t.Fatalf("failed to marshal %+v: %v", cmd, err)
		}
		if string(blob) != tt.out {
			t.Errorf("input %s: marshaled to %s, want %s", tt.input, blob, tt.out)
		}
	}
}

func TestCommandJSONInvalid(t *testing.T) {
	for _, input := range []string{`42`, `{"cmd":"x"}`, `[1,2]`, `true`} {
		var cmd Command
		if err := json.Unmarshal([]byte(input), &cmd); err == nil {
			t.Errorf("input %s accepted as command", input)
		}
	}
}

func TestCommandZero(t *testing.T) {
	var cmd Command
	if !cmd.IsZero() {
		t.Error("zero command not reported zero")
	}
	blob, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("failed to marshal zero command: %v", err)
	}
	if string(blob) != `""` {
		t.Errorf("zero command marshaled to %s", blob)
	}
	if cmd.String() != "" {
		t.Errorf("zero command string is %q", cmd.String())
	}
	argv := Command{Argv: []string{"echo", "hi"}}
	if argv.String() != "echo hi" {
		t.Errorf("argv string is %q", argv.String())
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"q", "my-queue", "train_v2", "A1234567890"}
	for _, name := range valid {
		if err := ValidateName("queue name", name); err != nil {
			t.Errorf("name %q rejected: %v", name, err)
		}
	}
	invalid := []string{"", "has space", "sla/sh", "dot.ted", "ünïcode", strings.Repeat("a", 101)}
	for _, name := range invalid {
		if err := ValidateName("queue name", name); err == nil {
			t.Errorf("name %q accepted", name)
		}
	}
}
