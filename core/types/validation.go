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
	"regexp"
)

// nameRegexp constrains queue, task and worker names. Names are embedded in
// URLs and log lines, so only a conservative character set is allowed.
var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ValidateName checks that a user supplied name is non-empty, at most 100
// characters and built from letters, digits, underscores and hyphens. The
// kind argument names the field in the returned error.
func ValidateName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%s %q is invalid, allowed are up to 100 letters, digits, underscores and hyphens", kind, name)
	}
	return nil
}
