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
	"fmt"
	"strings"
)

// Command is the executable payload of a task. Submitters provide it either
// as a single command line or as an argv vector; the hive stores whichever
// form arrived and never interprets it.
type Command struct {
	Line string   // command as one line, when submitted as a string
	Argv []string // command as a vector, when submitted as a list
}

// IsZero reports whether no command was supplied.
func (c Command) IsZero() bool {
	return c.Line == "" && c.Argv == nil
}

// String implements the stringer interface, joining vector commands for
// display.
func (c Command) String() string {
	if c.Argv != nil {
		return strings.Join(c.Argv, " ")
	}
	return c.Line
}

// MarshalJSON implements json.Marshaler, emitting the form the command was
// submitted in.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Argv != nil {
		return json.Marshal(c.Argv)
	}
	return json.Marshal(c.Line)
}

// UnmarshalJSON implements json.Unmarshaler, accepting a JSON string or an
// array of strings.
func (c *Command) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Argv)
	}
	var line string
	if err := json.Unmarshal(data, &line); err != nil {
		return fmt.Errorf("command must be a string or a list of strings")
	}
	c.Line = line
	return nil
}

// Copy creates a copy of the command with a detached argv slice.
func (c Command) Copy() Command {
	cpy := c
	if c.Argv != nil {
		cpy.Argv = make([]string, len(c.Argv))
		copy(cpy.Argv, c.Argv)
	}
	return cpy
}
