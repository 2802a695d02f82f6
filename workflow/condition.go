package workflow

import (
	"reflect"
	"strings"
)

// Condition is the sealed union of branch predicates. Evaluation is total
// over a snapshot of shared workflow data: unknown paths yield false for both
// Exists and Equals, never an error.
type Condition interface{ evaluate(data map[string]any) bool }

// True always matches.
type True struct{}

func (True) evaluate(map[string]any) bool { return true }

// False never matches.
type False struct{}

func (False) evaluate(map[string]any) bool { return false }

// Equals matches when the value at the dotted Path equals Value.
type Equals struct {
	Path  string
	Value any
}

func (c Equals) evaluate(data map[string]any) bool {
	v, ok := lookupPath(data, c.Path)
	if !ok {
		return false
	}
	return equalValues(v, c.Value)
}

// Exists matches when the dotted Path resolves to any value.
type Exists struct {
	Path string
}

func (c Exists) evaluate(data map[string]any) bool {
	_, ok := lookupPath(data, c.Path)
	return ok
}

// And matches when every child matches. An empty And matches.
type And []Condition

func (c And) evaluate(data map[string]any) bool {
	for _, child := range c {
		if !child.evaluate(data) {
			return false
		}
	}
	return true
}

// Or matches when any child matches. An empty Or does not match.
type Or []Condition

func (c Or) evaluate(data map[string]any) bool {
	for _, child := range c {
		if child.evaluate(data) {
			return true
		}
	}
	return false
}

// Not inverts its child.
type Not struct {
	Condition Condition
}

func (c Not) evaluate(data map[string]any) bool {
	if c.Condition == nil {
		return true
	}
	return !c.Condition.evaluate(data)
}

// Evaluate runs a condition against a data snapshot. A nil condition matches,
// so optional conditions read naturally at call sites.
func Evaluate(c Condition, data map[string]any) bool {
	if c == nil {
		return true
	}
	return c.evaluate(data)
}

// lookupPath walks a dotted path through nested string-keyed maps.
func lookupPath(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// equalValues compares with numeric tolerance so 3 == 3.0 regardless of
// whether the value came from Go code or decoded JSON.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
