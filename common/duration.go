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

package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PrettyDuration is a pretty printed version of a time.Duration value that
// rounds the format to the most significant time unit.
type PrettyDuration time.Duration

var prettyDurationRe = []string{"h", "m", "s", "ms", "µs", "ns"}

// String implements the Stringer interface, allowing pretty printing of
// duration values rounded to three decimals.
func (d PrettyDuration) String() string {
	label := time.Duration(d).String()
	if match := strings.IndexAny(label, "."); match >= 0 {
		// Trim the fractional part to three digits, keep the unit suffix.
		for _, unit := range prettyDurationRe {
			if strings.HasSuffix(label, unit) {
				trimmed := label[:len(label)-len(unit)]
				if dot := strings.IndexByte(trimmed, '.'); dot >= 0 && len(trimmed) > dot+4 {
					trimmed = trimmed[:dot+4]
				}
				return trimmed + unit
			}
		}
	}
	return label
}

// unitScale maps timeout units to their length. Larger units must precede
// smaller ones in a compound timeout string.
var unitScale = map[byte]time.Duration{
	'd': 24 * time.Hour,
	'h': time.Hour,
	'm': time.Minute,
	's': time.Second,
}

// ParseTimeout converts a human timeout expression into a duration. Accepted
// forms are a bare number of seconds ("90", "1.5") or a sequence of
// number+unit tokens in decreasing unit order ("2d", "1h30m", "1.5h",
// "10m30s"). Whitespace between tokens is ignored.
func ParseTimeout(s string) (time.Duration, error) {
	in := strings.TrimSpace(strings.ToLower(s))
	if in == "" {
		return 0, errors.New("empty timeout")
	}
	// Fast path: a bare number means seconds.
	if sec, err := strconv.ParseFloat(in, 64); err == nil {
		if sec <= 0 {
			return 0, fmt.Errorf("non-positive timeout %q", s)
		}
		return time.Duration(sec * float64(time.Second)), nil
	}
	var (
		total    time.Duration
		lastUnit = 2 * unitScale['d'] // sentinel above every unit
		pos      = 0
	)
	for pos < len(in) {
		if in[pos] == ' ' {
			pos++
			continue
		}
		start := pos
		for pos < len(in) && (in[pos] >= '0' && in[pos] <= '9' || in[pos] == '.') {
			pos++
		}
		if start == pos {
			return 0, fmt.Errorf("invalid timeout %q", s)
		}
		value, err := strconv.ParseFloat(in[start:pos], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q", s)
		}
		if pos >= len(in) {
			// Trailing bare number counts as seconds.
			total += time.Duration(value * float64(time.Second))
			break
		}
		scale, ok := unitScale[in[pos]]
		if !ok {
			return 0, fmt.Errorf("invalid timeout unit %q in %q", string(in[pos]), s)
		}
		if scale >= lastUnit {
			return 0, fmt.Errorf("invalid timeout %q", s)
		}
		lastUnit = scale
		pos++
		total += time.Duration(value * float64(scale))
	}
	if total <= 0 {
		return 0, fmt.Errorf("non-positive timeout %q", s)
	}
	return total, nil
}
