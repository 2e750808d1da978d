// Package fstable registers the `fs` capability table: the filesystem
// surface every sandboxed script sees (fs.read, fs.write, fs.ls, fs.rm,
// fs.mkdir), backed by an opaque persistence collaborator rather than a
// real filesystem.
package fstable

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/oriys/shardvm/internal/tickctx"
)

// Entry is one directory listing row returned by fs.ls.
type Entry struct {
	Name  string
	Type  string // "file" | "dir"
	Size  int64
	Owner string
}

// Store is the persistence collaborator backing the fs table. A VM owns
// one content-addressable filesystem tree; paths are absolute strings
// resolved by the caller (the shell) before reaching here. uid is the
// calling process's current_uid, forwarded on every call so the
// implementation can enforce owner-based access checks.
type Store interface {
	Read(vmID, path string, uid int) (string, bool, error)
	Write(vmID, path, content string, mode *int, uid int) error
	List(vmID, path string, uid int) ([]Entry, error)
	Remove(vmID, path string, uid int) error
	MkdirAll(vmID, path string, uid int) error
}

// Register installs the fs table on L, resolving the active VM via
// holder on every call.
func Register(L *lua.LState, holder *tickctx.Holder, store Store) {
	tbl := L.NewTable()

	L.SetField(tbl, "read", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		ctx := holder.Get()
		if ctx == nil {
			L.Push(lua.LNil)
			return 1
		}
		content, ok, err := store.Read(ctx.VMID, path, ctx.CurrentUID)
		if err != nil || !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(content))
		return 1
	}))

	L.SetField(tbl, "write", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		content := L.OptString(2, "")
		var mode *int
		if m, ok := L.Get(3).(lua.LNumber); ok {
			v := int(m)
			mode = &v
		}
		ctx := holder.Get()
		if ctx == nil {
			L.Push(lua.LFalse)
			return 1
		}
		if err := store.Write(ctx.VMID, path, content, mode, ctx.CurrentUID); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))

	L.SetField(tbl, "ls", L.NewFunction(func(L *lua.LState) int {
		path := L.OptString(1, ".")
		ctx := holder.Get()
		out := L.NewTable()
		if ctx == nil {
			L.Push(out)
			return 1
		}
		entries, err := store.List(ctx.VMID, path, ctx.CurrentUID)
		if err != nil {
			L.Push(out)
			return 1
		}
		for i, e := range entries {
			row := L.NewTable()
			L.SetField(row, "name", lua.LString(e.Name))
			L.SetField(row, "type", lua.LString(e.Type))
			L.SetField(row, "size", lua.LNumber(e.Size))
			L.SetField(row, "owner", lua.LString(e.Owner))
			out.RawSetInt(i+1, row)
		}
		L.Push(out)
		return 1
	}))

	L.SetField(tbl, "rm", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		ctx := holder.Get()
		if ctx == nil {
			L.Push(lua.LFalse)
			return 1
		}
		if err := store.Remove(ctx.VMID, path, ctx.CurrentUID); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))

	L.SetField(tbl, "mkdir", L.NewFunction(func(L *lua.LState) int {
		path := L.CheckString(1)
		ctx := holder.Get()
		if ctx == nil {
			L.Push(lua.LFalse)
			return 1
		}
		if err := store.MkdirAll(ctx.VMID, path, ctx.CurrentUID); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		return 1
	}))

	L.SetGlobal("fs", tbl)
}
