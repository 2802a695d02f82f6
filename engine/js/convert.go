package js

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// exportValue converts a goja value into the host value union. Integers
// normalize to float64 so script results look the same regardless of engine.
func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return normalize(v.Export())
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	default:
		return v
	}
}

// hostToJS prepares a host value for the runtime. Scalars, maps and slices
// pass through; any other structured type travels through its JSON shape so
// scripts see plain objects instead of reflected Go structs.
func hostToJS(v any) any {
	switch v.(type) {
	case nil, bool, int, int64, float64, string, []any, []string, map[string]any:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return string(raw)
		}
		return decoded
	}
}

// stringifyValue renders a host value for text chunks. Strings pass through,
// everything else renders as JSON.
func stringifyValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
