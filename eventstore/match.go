package eventstore

import (
	"encoding/json"
	"math/big"
	"slices"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

type MatchPathString = string

const matchPathSeparator = "."

// matchJSON keeps numbers as json.Number so that large integers are compared exactly.
var matchJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

/***** MatchPredicate *****/

// MatchPredicate compares the payload value found at a dot-separated path with an expected value.
type MatchPredicate struct {
	path MatchPathString
	val  any
}

// P builds a MatchPredicate, e.g. P("customer.id", "c-42").
func P(path MatchPathString, val any) MatchPredicate {
	return MatchPredicate{path: path, val: val}
}

func (mp MatchPredicate) Path() MatchPathString {
	return mp.path
}

func (mp MatchPredicate) Val() any {
	return mp.val
}

/***** Match *****/

// Match is a set of payload predicates which must all hold for an event to match.
// The zero Match matches every event.
type Match struct {
	predicates []MatchPredicate
}

// MatchAllOf builds a Match from one or multiple predicates.
//
// It sanitizes the input:
//   - removing predicates with an empty path
//   - sorting the predicates by path
//   - keeping only the first predicate per path
func MatchAllOf(predicate MatchPredicate, predicates ...MatchPredicate) Match {
	all := append([]MatchPredicate{predicate}, predicates...)

	sanitized := make([]MatchPredicate, 0, len(all))
	for _, p := range all {
		if p.path == "" {
			continue
		}

		if slices.ContainsFunc(sanitized, func(existing MatchPredicate) bool { return existing.path == p.path }) {
			continue
		}

		sanitized = append(sanitized, p)
	}

	slices.SortStableFunc(sanitized, func(a, b MatchPredicate) int {
		return strings.Compare(a.path, b.path)
	})

	return Match{predicates: sanitized}
}

// MatchFromMap builds a Match from a path → value map, the shape loosely typed callers tend to have.
func MatchFromMap(fields map[string]any) Match {
	if len(fields) == 0 {
		return Match{}
	}

	predicates := make([]MatchPredicate, 0, len(fields))
	for path, val := range fields {
		predicates = append(predicates, P(path, val))
	}

	return MatchAllOf(predicates[0], predicates[1:]...)
}

func (m Match) Predicates() []MatchPredicate {
	return m.predicates
}

func (m Match) IsEmpty() bool {
	return len(m.predicates) == 0
}

// Matches reports whether every predicate holds for the given JSON payload.
// A payload that is not valid JSON only matches the empty Match.
func (m Match) Matches(payload json.RawMessage) bool {
	if m.IsEmpty() {
		return true
	}

	var doc any
	if len(payload) == 0 || matchJSON.Unmarshal(payload, &doc) != nil {
		return false
	}

	for _, predicate := range m.predicates {
		found, ok := lookupPath(doc, predicate.path)
		if !ok {
			return false
		}

		if !matchValuesEqual(found, normalizeMatchValue(predicate.val)) {
			return false
		}
	}

	return true
}

// lookupPath walks a decoded JSON document along a dot-separated path.
// Numeric segments index into arrays.
func lookupPath(doc any, path MatchPathString) (any, bool) {
	current := doc

	for _, segment := range strings.Split(path, matchPathSeparator) {
		switch node := current.(type) {
		case map[string]any:
			next, exists := node[segment]
			if !exists {
				return nil, false
			}
			current = next

		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]

		default:
			return nil, false
		}
	}

	return current, true
}

// normalizeMatchValue brings an expected Go value into the shape a decoded JSON value has,
// e.g. all numbers become json.Number.
func normalizeMatchValue(val any) any {
	raw, err := matchJSON.Marshal(val)
	if err != nil {
		return val
	}

	var normalized any
	if err = matchJSON.Unmarshal(raw, &normalized); err != nil {
		return val
	}

	return normalized
}

// matchValuesEqual compares two decoded JSON values. Numbers are equal when their values are,
// so 12, 12.0 and 1.2e1 all match each other.
func matchValuesEqual(a, b any) bool {
	switch x := a.(type) {
	case json.Number:
		y, ok := b.(json.Number)
		return ok && numbersEqual(x, y)

	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}

		for key, xv := range x {
			yv, exists := y[key]
			if !exists || !matchValuesEqual(xv, yv) {
				return false
			}
		}

		return true

	case []any:
		y, ok := b.([]any)
		return ok && slices.EqualFunc(x, y, matchValuesEqual)

	default:
		return a == b
	}
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}

	x, okX := new(big.Rat).SetString(a.String())
	y, okY := new(big.Rat).SetString(b.String())

	return okX && okY && x.Cmp(y) == 0
}
