package modules

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LuaToGo converts a Lua value to a Go value
func LuaToGo(v lua.LValue) interface{} {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			arr := make([]interface{}, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, LuaToGo(val.RawGetInt(i)))
			}
			return arr
		}
		obj := make(map[string]interface{})
		val.ForEach(func(k, v lua.LValue) {
			obj[lua.LVAsString(k)] = LuaToGo(v)
		})
		return obj
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

// stringList reads an array of strings from a Lua table.
func stringList(tbl *lua.LTable) ([]string, error) {
	out := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		s, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok {
			return nil, fmt.Errorf("element %d is %s, want string", i, tbl.RawGetInt(i).Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}

// numberField reads an optional number field, falling back to def.
func numberField(tbl *lua.LTable, name string, def float64) (float64, error) {
	switch v := tbl.RawGetString(name).(type) {
	case *lua.LNilType:
		return def, nil
	case lua.LNumber:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("field %q is %s, want number", name, v.Type())
	}
}

// stringField reads a required string field.
func stringField(tbl *lua.LTable, name string) (string, error) {
	v, ok := tbl.RawGetString(name).(lua.LString)
	if !ok {
		return "", fmt.Errorf("field %q is missing or not a string", name)
	}
	return string(v), nil
}
