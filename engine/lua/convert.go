package lua

import (
	"encoding/json"
	"fmt"

	glua "github.com/yuin/gopher-lua"
)

// goToLua converts a host value into its Lua projection. Scalars map
// directly, slices become array tables, maps become hash tables, and any
// other structured type travels through its JSON shape.
func goToLua(L *glua.LState, v any) glua.LValue {
	switch x := v.(type) {
	case nil:
		return glua.LNil
	case bool:
		return glua.LBool(x)
	case int:
		return glua.LNumber(x)
	case int64:
		return glua.LNumber(x)
	case float64:
		return glua.LNumber(x)
	case string:
		return glua.LString(x)
	case []any:
		tbl := L.NewTable()
		for _, item := range x {
			tbl.Append(goToLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for _, item := range x {
			tbl.Append(glua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range x {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return glua.LString(fmt.Sprintf("%v", x))
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return glua.LString(string(raw))
		}
		return goToLua(L, decoded)
	}
}

// luaToGo converts a Lua value into the host value union. Tables with a
// positive array length become slices, everything else becomes a string
// keyed map. Numbers always come back as float64, matching JSON decoding.
func luaToGo(lv glua.LValue) any {
	switch v := lv.(type) {
	case *glua.LNilType:
		return nil
	case glua.LBool:
		return bool(v)
	case glua.LNumber:
		return float64(v)
	case glua.LString:
		return string(v)
	case *glua.LTable:
		if n := v.MaxN(); n > 0 {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, luaToGo(v.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		v.ForEach(func(k, val glua.LValue) {
			m[k.String()] = luaToGo(val)
		})
		return m
	default:
		return lv.String()
	}
}

// luaToMap converts a table argument into a string keyed map; non-tables and
// array tables yield an empty map.
func luaToMap(lv glua.LValue) map[string]any {
	if m, ok := luaToGo(lv).(map[string]any); ok {
		return m
	}
	return map[string]any{}
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
