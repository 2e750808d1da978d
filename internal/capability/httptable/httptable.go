// Package httptable registers the `http` capability table: a minimal
// HTTP/1.1-shaped request/response builder and parser layered over the
// net table's raw string payloads, used by curl-style bin programs and
// ssh-server-like daemons.
package httptable

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Register installs the http table on L.
func Register(L *lua.LState) {
	tbl := L.NewTable()

	tbl.RawSetString("build_request", L.NewFunction(func(L *lua.LState) int {
		method := strings.ToUpper(L.CheckString(1))
		path := L.CheckString(2)
		body := L.OptString(3, "")

		var b strings.Builder
		fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)
		if body != "" {
			fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
		}
		b.WriteString("\r\n")
		b.WriteString(body)

		L.Push(lua.LString(b.String()))
		return 1
	}))

	tbl.RawSetString("parse_request", L.NewFunction(func(L *lua.LState) int {
		raw := L.CheckString(1)
		req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		defer req.Body.Close()
		body, _ := io.ReadAll(req.Body)

		t := L.NewTable()
		L.SetField(t, "method", lua.LString(req.Method))
		L.SetField(t, "path", lua.LString(req.URL.Path))
		L.SetField(t, "headers", headersToTable(L, textproto.MIMEHeader(req.Header)))
		L.SetField(t, "body", lua.LString(string(body)))
		L.Push(t)
		return 1
	}))

	tbl.RawSetString("build_response", L.NewFunction(func(L *lua.LState) int {
		status := int(L.CheckNumber(1))
		body := L.OptString(2, "")
		var headers *lua.LTable
		if t, ok := L.Get(3).(*lua.LTable); ok {
			headers = t
		}

		var b strings.Builder
		fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
		if headers != nil {
			headers.ForEach(func(k, v lua.LValue) {
				fmt.Fprintf(&b, "%s: %s\r\n", k.String(), v.String())
			})
		}
		fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(body))
		b.WriteString(body)

		L.Push(lua.LString(b.String()))
		return 1
	}))

	tbl.RawSetString("parse_response", L.NewFunction(func(L *lua.LState) int {
		raw := L.CheckString(1)
		resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), nil)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		t := L.NewTable()
		L.SetField(t, "status", lua.LNumber(resp.StatusCode))
		L.SetField(t, "reason", lua.LString(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" ")))
		L.SetField(t, "headers", headersToTable(L, textproto.MIMEHeader(resp.Header)))
		L.SetField(t, "body", lua.LString(string(body)))
		L.Push(t)
		return 1
	}))

	L.SetGlobal("http", tbl)
}

func headersToTable(L *lua.LState, h textproto.MIMEHeader) *lua.LTable {
	out := L.NewTable()
	i := 1
	for k, vs := range h {
		for _, v := range vs {
			row := L.NewTable()
			row.RawSetInt(1, lua.LString(k))
			row.RawSetInt(2, lua.LString(v))
			out.RawSetInt(i, row)
			i++
		}
	}
	return out
}
