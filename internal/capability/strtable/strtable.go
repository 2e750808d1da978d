// Package strtable registers the `str` capability table: serialization
// helpers between a flat Lua table and the application/x-lua-table
// key=value line format used by a few bin programs to pass structured
// data through plain-text pipes.
package strtable

import (
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Register installs the str table on L.
func Register(L *lua.LState) {
	tbl := L.NewTable()

	tbl.RawSetString("serialize_table", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckTable(1)
		var lines []string
		t.ForEach(func(k, v lua.LValue) {
			key, keyOK := valueToString(k)
			val, valOK := valueToString(v)
			if !keyOK || !valOK {
				return
			}
			lines = append(lines, key+"="+val)
		})
		L.Push(lua.LString(strings.Join(lines, "\n")))
		return 1
	}))

	tbl.RawSetString("parse_table", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		out := L.NewTable()
		if s == "" {
			L.Push(out)
			return 1
		}
		for _, line := range strings.Split(s, "\n") {
			line = strings.TrimSpace(line)
			idx := strings.Index(line, "=")
			if idx <= 0 {
				continue
			}
			key := strings.TrimSpace(line[:idx])
			val := strings.TrimSpace(line[idx+1:])
			if key == "" {
				continue
			}
			L.SetField(out, key, lua.LString(val))
		}
		L.Push(out)
		return 1
	}))

	L.SetGlobal("str", tbl)
}

// valueToString converts a Lua value into its line-format representation.
// The bool return distinguishes a genuine empty string from a type this
// format can't carry (table, function, nil, userdata) — callers must not
// collapse the two the way a bare "" return would.
func valueToString(v lua.LValue) (string, bool) {
	switch v.Type() {
	case lua.LTString:
		return v.String(), true
	case lua.LTNumber:
		return strconv.FormatFloat(float64(v.(lua.LNumber)), 'f', -1, 64), true
	case lua.LTBool:
		return v.String(), true
	default:
		return "", false
	}
}
