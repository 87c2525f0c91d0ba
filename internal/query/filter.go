package query

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
)

// Record is one serialized topology record, as produced by the record
// types' ToMap and by JSON decoding.
type Record = map[string]any

// Filter selects records. Implementations treat malformed or unknown
// conditions as "no match" rather than failing; callers filter over
// snapshots whose field sets vary between versions.
type Filter interface {
	Matches(record Record) bool
}

// Predicate adapts a plain function to a Filter for same-process
// callers.
type Predicate func(record Record) bool

func (p Predicate) Matches(record Record) bool { return p(record) }

// Spec is the structured, JSON-compatible filter form: a mapping from
// field name to either a literal (exact match) or an operator object
// such as {"gte": 10}. Field conditions combine with AND; the reserved
// "or" key holds a list of sub-specs of which at least one must match.
type Spec map[string]any

const orKey = "or"

// ParseSpec decodes a JSON filter document.
func ParseSpec(raw []byte) (Spec, error) {
	var s Spec
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func (s Spec) Matches(record Record) bool {
	for field, condition := range s {
		if field == orKey {
			if !matchOr(record, condition) {
				return false
			}
			continue
		}
		value, ok := record[field]
		if !ok {
			return false
		}
		if !matchCondition(value, condition) {
			return false
		}
	}
	return true
}

// matchOr evaluates the reserved "or" list, short-circuiting on the
// first matching branch. Malformed branches never match.
func matchOr(record Record, condition any) bool {
	branches, ok := asList(condition)
	if !ok {
		return false
	}
	for _, branch := range branches {
		sub, ok := asMap(branch)
		if !ok {
			continue
		}
		if Spec(sub).Matches(record) {
			return true
		}
	}
	return false
}

// matchCondition applies one field condition: an operator object runs
// its operators ANDed together, anything else is an exact match.
func matchCondition(value, condition any) bool {
	if ops, ok := operatorObject(condition); ok {
		return matchOperators(value, ops)
	}
	return opEq(value, condition)
}

func matchOperators(value any, ops map[string]any) bool {
	for name, operand := range ops {
		op, known := lookupOperator(name)
		if !known {
			return false
		}
		if !op(value, operand) {
			return false
		}
	}
	return true
}

// operatorObject reports whether the condition is an operator object.
// A map with at least one known operator key is treated as one; any
// other map is an exact-match literal.
func operatorObject(condition any) (map[string]any, bool) {
	m, ok := asMap(condition)
	if !ok {
		return nil, false
	}
	for name := range m {
		if _, known := lookupOperator(name); known {
			return m, true
		}
	}
	return nil, false
}

type opFunc func(value, operand any) bool

func lookupOperator(name string) (opFunc, bool) {
	switch name {
	case "eq":
		return opEq, true
	case "ne":
		return opNe, true
	case "lt":
		return opLt, true
	case "lte":
		return opLte, true
	case "gt":
		return opGt, true
	case "gte":
		return opGte, true
	case "in":
		return opIn, true
	case "contains":
		return opContains, true
	case "icontains":
		return opIContains, true
	case "regex":
		return opRegex, true
	case "any":
		return opAny, true
	case "all":
		return opAll, true
	}
	return nil, false
}

func opEq(value, operand any) bool { return equal(value, operand) }

func opNe(value, operand any) bool { return !equal(value, operand) }

func opLt(value, operand any) bool { c, ok := compare(value, operand); return ok && c < 0 }

func opLte(value, operand any) bool { c, ok := compare(value, operand); return ok && c <= 0 }

func opGt(value, operand any) bool { c, ok := compare(value, operand); return ok && c > 0 }

func opGte(value, operand any) bool { c, ok := compare(value, operand); return ok && c >= 0 }

// opIn tests membership of the field value in the operand collection.
// A string operand keeps substring semantics, mirroring the containment
// checks callers would otherwise write inline.
func opIn(value, operand any) bool {
	if s, ok := operand.(string); ok {
		sub, ok := value.(string)
		return ok && strings.Contains(s, sub)
	}
	items, ok := asList(operand)
	if !ok {
		return false
	}
	for _, item := range items {
		if equal(value, item) {
			return true
		}
	}
	return false
}

// opContains tests the field for containment: substring for strings,
// membership for lists, key presence for maps.
func opContains(value, operand any) bool {
	if s, ok := value.(string); ok {
		needle, ok := operand.(string)
		return ok && strings.Contains(s, needle)
	}
	items, ok := elements(value)
	if !ok {
		return false
	}
	for _, item := range items {
		if equal(item, operand) {
			return true
		}
	}
	return false
}

func opIContains(value, operand any) bool {
	needle, ok := operand.(string)
	if !ok {
		return false
	}
	needle = strings.ToLower(needle)
	if s, ok := value.(string); ok {
		return strings.Contains(strings.ToLower(s), needle)
	}
	items, ok := elements(value)
	if !ok {
		return false
	}
	for _, item := range items {
		if s, ok := item.(string); ok && strings.ToLower(s) == needle {
			return true
		}
	}
	return false
}

// opRegex matches the field's string value against the operand pattern.
// An invalid pattern never matches.
func opRegex(value, operand any) bool {
	pattern, ok := operand.(string)
	if !ok {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// opAny matches when at least one field element satisfies the operand:
// a nested operator object applies per element, a literal collection
// tests for a non-empty intersection.
func opAny(value, operand any) bool {
	items, ok := elements(value)
	if !ok {
		return false
	}
	if ops, ok := operatorObject(operand); ok {
		for _, item := range items {
			if matchOperators(item, ops) {
				return true
			}
		}
		return false
	}
	wanted := literalSet(operand)
	for _, item := range items {
		for _, w := range wanted {
			if equal(item, w) {
				return true
			}
		}
	}
	return false
}

// opAll matches when every element satisfies a nested operator object,
// or when a literal operand collection is a subset of the field
// elements.
func opAll(value, operand any) bool {
	items, ok := elements(value)
	if !ok {
		return false
	}
	if ops, ok := operatorObject(operand); ok {
		for _, item := range items {
			if !matchOperators(item, ops) {
				return false
			}
		}
		return true
	}
	for _, w := range literalSet(operand) {
		found := false
		for _, item := range items {
			if equal(item, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// equal compares with numeric coercion so 10, int64(10) and 10.0
// (JSON's float64) compare equal regardless of decoding path.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two values, numerically when both are numbers and
// lexicographically when both are strings. Nil or mismatched types do
// not order.
func compare(value, operand any) (int, bool) {
	if value == nil || operand == nil {
		return 0, false
	}
	if fv, ok := toFloat(value); ok {
		fo, ok := toFloat(operand)
		if !ok {
			return 0, false
		}
		switch {
		case fv < fo:
			return -1, true
		case fv > fo:
			return 1, true
		}
		return 0, true
	}
	sv, okV := value.(string)
	so, okO := operand.(string)
	if okV && okO {
		return strings.Compare(sv, so), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// elements returns the field's elements: list items as-is, map keys as
// strings.
func elements(value any) ([]any, bool) {
	if items, ok := asList(value); ok {
		return items, true
	}
	if m, ok := value.(map[string]any); ok {
		keys := make([]any, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		return keys, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, 0, len(items))
		for _, s := range items {
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Spec:
		return m, true
	}
	return nil, false
}

// literalSet widens a bare literal into a one-element collection.
func literalSet(operand any) []any {
	if items, ok := asList(operand); ok {
		return items
	}
	return []any{operand}
}

// Apply returns the records accepted by the filter. A nil filter keeps
// everything.
func Apply(records []Record, filter Filter) []Record {
	if filter == nil {
		return records
	}
	matched := make([]Record, 0, len(records))
	for _, record := range records {
		if filter.Matches(record) {
			matched = append(matched, record)
		}
	}
	return matched
}
