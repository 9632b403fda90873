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

// Package filters implements the document predicate language accepted by
// task listing, dispatch and the gated collection query surface.
//
// A filter is a JSON document. Plain keys are dotted field paths matched
// for equality; a value that is itself a document of $-operators applies
// those operators to the field instead. Supported operators: $eq, $ne,
// $gt, $gte, $lt, $lte, $in, $nin, $exists, $regex, $not on fields and
// $and, $or on documents. Comparisons are typed: numbers order as numbers,
// strings as strings, anything else never satisfies a range operator.
package filters

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taskhive/go-taskhive/core/types"
)

// Predicate is a compiled filter, safe for concurrent use.
type Predicate struct {
	root matcher
}

// Compile validates a filter document and compiles it into a Predicate.
// Unknown operators and malformed operands are rejected here, never at
// match time. A nil or empty filter compiles to a match-all predicate.
func Compile(filter types.Document) (*Predicate, error) {
	root, err := compileDoc(filter)
	if err != nil {
		return nil, err
	}
	return &Predicate{root: root}, nil
}

// Match reports whether the document satisfies the predicate.
func (p *Predicate) Match(doc types.Document) bool {
	return p.root.matches(doc)
}

type matcher interface {
	matches(doc types.Document) bool
}

// andMatcher succeeds when all children do. The empty conjunction is the
// match-all predicate.
type andMatcher []matcher

func (m andMatcher) matches(doc types.Document) bool {
	for _, child := range m {
		if !child.matches(doc) {
			return false
		}
	}
	return true
}

type orMatcher []matcher

func (m orMatcher) matches(doc types.Document) bool {
	for _, child := range m {
		if child.matches(doc) {
			return true
		}
	}
	return false
}

// fieldMatcher applies a conjunction of conditions to one dotted path.
type fieldMatcher struct {
	path  string
	conds []condition
}

func (m *fieldMatcher) matches(doc types.Document) bool {
	v, present := doc.Get(m.path)
	for _, cond := range m.conds {
		if !cond.holds(v, present) {
			return false
		}
	}
	return true
}

type condition interface {
	holds(v any, present bool) bool
}

func compileDoc(filter types.Document) (matcher, error) {
	var children andMatcher
	for key, operand := range filter {
		switch {
		case key == "$and" || key == "$or":
			list, err := compileDocList(key, operand)
			if err != nil {
				return nil, err
			}
			if key == "$and" {
				children = append(children, andMatcher(list))
			} else {
				children = append(children, orMatcher(list))
			}
		case strings.HasPrefix(key, "$"):
			return nil, fmt.Errorf("unknown operator %q", key)
		default:
			conds, err := compileField(key, operand)
			if err != nil {
				return nil, err
			}
			children = append(children, &fieldMatcher{path: key, conds: conds})
		}
	}
	return children, nil
}

func compileDocList(op string, operand any) ([]matcher, error) {
	list, ok := operand.([]any)
	if !ok {
		return nil, fmt.Errorf("%s expects a list of filter documents", op)
	}
	matchers := make([]matcher, 0, len(list))
	for _, elem := range list {
		doc, ok := asDocument(elem)
		if !ok {
			return nil, fmt.Errorf("%s expects a list of filter documents", op)
		}
		m, err := compileDoc(doc)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// compileField turns one field operand into its conditions. An operand
// document either consists entirely of operators or is matched as a plain
// sub-document; mixing the two is rejected.
func compileField(path string, operand any) ([]condition, error) {
	doc, ok := asDocument(operand)
	if !ok || !hasOperator(doc) {
		return []condition{eqCond{want: operand}}, nil
	}
	return compileConds(path, doc)
}

func compileConds(path string, doc types.Document) ([]condition, error) {
	conds := make([]condition, 0, len(doc))
	for op, arg := range doc {
		cond, err := compileCond(path, op, arg)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func compileCond(path, op string, arg any) (condition, error) {
	switch op {
	case "$eq":
		return eqCond{want: arg}, nil
	case "$ne":
		return neCond{want: arg}, nil
	case "$gt", "$gte", "$lt", "$lte":
		return ordCond{op: op, want: arg}, nil
	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return nil, fmt.Errorf("%s on %q expects a list", op, path)
		}
		return inCond{list: list, negate: op == "$nin"}, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("$exists on %q expects a boolean", path)
		}
		return existsCond{want: want}, nil
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("$regex on %q expects a string pattern", path)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("$regex on %q: %v", path, err)
		}
		return regexCond{re: re}, nil
	case "$not":
		doc, ok := asDocument(arg)
		if !ok || !hasOperator(doc) {
			return nil, fmt.Errorf("$not on %q expects an operator document", path)
		}
		inner, err := compileConds(path, doc)
		if err != nil {
			return nil, err
		}
		return notCond{inner: inner}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

// The equality family treats a missing field as null, so {"worker_id":
// null} matches tasks that never carried the field.

type eqCond struct{ want any }

func (c eqCond) holds(v any, present bool) bool {
	if !present {
		v = nil
	}
	return equal(v, c.want)
}

type neCond struct{ want any }

func (c neCond) holds(v any, present bool) bool {
	if !present {
		v = nil
	}
	return !equal(v, c.want)
}

type ordCond struct {
	op   string
	want any
}

func (c ordCond) holds(v any, present bool) bool {
	if !present {
		return false
	}
	cmp, ok := compare(v, c.want)
	if !ok {
		return false
	}
	switch c.op {
	case "$gt":
		return cmp > 0
	case "$gte":
		return cmp >= 0
	case "$lt":
		return cmp < 0
	default:
		return cmp <= 0
	}
}

type inCond struct {
	list   []any
	negate bool
}

func (c inCond) holds(v any, present bool) bool {
	if !present {
		v = nil
	}
	for _, want := range c.list {
		if equal(v, want) {
			return !c.negate
		}
	}
	return c.negate
}

type existsCond struct{ want bool }

func (c existsCond) holds(v any, present bool) bool {
	return present == c.want
}

type regexCond struct{ re *regexp.Regexp }

func (c regexCond) holds(v any, present bool) bool {
	if !present {
		return false
	}
	s, ok := v.(string)
	return ok && c.re.MatchString(s)
}

// notCond inverts an operator conjunction. Like $ne, it matches documents
// missing the field.
type notCond struct{ inner []condition }

func (c notCond) holds(v any, present bool) bool {
	for _, cond := range c.inner {
		if !cond.holds(v, present) {
			return true
		}
	}
	return false
}

func hasOperator(doc types.Document) bool {
	for key := range doc {
		if strings.HasPrefix(key, "$") {
			return true
		}
	}
	return false
}

func asDocument(v any) (types.Document, bool) {
	switch m := v.(type) {
	case types.Document:
		return m, true
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// equal compares two JSON values. Numbers compare numerically regardless
// of their Go representation; containers compare structurally.
func equal(a, b any) bool {
	if fa, aok := toFloat(a); aok {
		fb, bok := toFloat(b)
		return bok && fa == fb
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		am, aok := asDocument(a)
		bm, bok := asDocument(b)
		if !aok || !bok || len(am) != len(bm) {
			return false
		}
		for key, avv := range am {
			bvv, ok := bm[key]
			if !ok || !equal(avv, bvv) {
				return false
			}
		}
		return true
	}
}

// compare orders two values of the same kind. Numbers and strings are
// ordered; everything else reports not comparable.
func compare(a, b any) (int, bool) {
	if fa, aok := toFloat(a); aok {
		fb, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if sa, aok := a.(string); aok {
		sb, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
