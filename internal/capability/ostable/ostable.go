// Package ostable registers the `os` capability table and the `io`
// global overrides every sandboxed process uses for its own stdin and
// stdout: os.get_args, os.spawn, os.spawn_path, os.process_status,
// os.read_stdout, os.write_stdin, os.parse_cmd, io.read, io.write.
package ostable

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/oriys/shardvm/internal/cmdline"
	"github.com/oriys/shardvm/internal/tickctx"
)

// Register installs the os table and io overrides on L.
func Register(L *lua.LState, holder *tickctx.Holder) {
	os := L.NewTable()

	os.RawSetString("get_args", L.NewFunction(func(L *lua.LState) int {
		out := L.NewTable()
		if ctx := holder.Get(); ctx != nil {
			for i, a := range ctx.ProcessArgs {
				out.RawSetInt(i+1, lua.LString(a))
			}
		}
		L.Push(out)
		return 1
	}))

	os.RawSetString("spawn", L.NewFunction(func(L *lua.LState) int {
		return spawn(L, holder, true)
	}))

	os.RawSetString("spawn_path", L.NewFunction(func(L *lua.LState) int {
		return spawn(L, holder, false)
	}))

	os.RawSetString("process_status", L.NewFunction(func(L *lua.LState) int {
		pid := uint64(L.CheckNumber(1))
		ctx := holder.Get()
		if ctx == nil {
			L.Push(lua.LString("not_found"))
			return 1
		}
		status, ok := ctx.ProcessStatus[pid]
		if !ok {
			L.Push(lua.LString("not_found"))
			return 1
		}
		L.Push(lua.LString(status))
		return 1
	}))

	os.RawSetString("read_stdout", L.NewFunction(func(L *lua.LState) int {
		pid := uint64(L.CheckNumber(1))
		ctx := holder.Get()
		if ctx == nil {
			L.Push(lua.LNil)
			return 1
		}
		out, ok := ctx.ProcessStdout[pid]
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(out))
		return 1
	}))

	os.RawSetString("write_stdin", L.NewFunction(func(L *lua.LState) int {
		pid := uint64(L.CheckNumber(1))
		line := L.CheckString(2)
		ctx := holder.Get()
		if ctx != nil {
			ctx.StdinInjectQueue = append(ctx.StdinInjectQueue, tickctx.StdinInject{PID: pid, Line: line})
		}
		return 0
	}))

	os.RawSetString("parse_cmd", L.NewFunction(func(L *lua.LState) int {
		line := L.CheckString(1)
		program, args := cmdline.Parse(line)
		t := L.NewTable()
		L.SetField(t, "program", lua.LString(program))
		argsTbl := L.NewTable()
		for i, a := range args {
			argsTbl.RawSetInt(i+1, lua.LString(a))
		}
		L.SetField(t, "args", argsTbl)
		L.Push(t)
		return 1
	}))

	L.SetGlobal("os", os)

	io := L.NewTable()

	io.RawSetString("read", L.NewFunction(func(L *lua.LState) int {
		ctx := holder.Get()
		if ctx == nil || ctx.CurrentStdin == nil {
			L.Push(lua.LNil)
			return 1
		}
		if line, ok := ctx.CurrentStdin.Pop(); ok {
			L.Push(lua.LString(line))
			return 1
		}
		// No input yet: yield this coroutine and retry next tick.
		return L.Yield(lua.LNil)
	}))

	io.RawSetString("write", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		if ctx := holder.Get(); ctx != nil && ctx.CurrentStdout != nil {
			ctx.CurrentStdout.Write(s)
		}
		return 0
	}))

	L.SetGlobal("io", io)
}

func spawn(L *lua.LState, holder *tickctx.Holder, fromBin bool) int {
	name := L.CheckString(1)

	var args []string
	if t, ok := L.Get(2).(*lua.LTable); ok {
		t.ForEach(func(_, v lua.LValue) {
			args = append(args, v.String())
		})
	}

	forwardStdout := false
	if t, ok := L.Get(3).(*lua.LTable); ok {
		if v := L.GetField(t, "forward_stdout"); v == lua.LTrue {
			forwardStdout = true
		}
	}

	ctx := holder.Get()
	if ctx == nil {
		L.Push(lua.LNil)
		return 1
	}

	pid := ctx.AllocatePID()
	ctx.SpawnQueue = append(ctx.SpawnQueue, tickctx.SpawnQueueItem{
		PID:    pid,
		Parent: ctx.CurrentPID,
		Spec: tickctx.SpawnSpec{
			FromBin:       fromBin,
			Name:          name,
			Args:          args,
			UID:           ctx.CurrentUID,
			Username:      ctx.CurrentUsername,
			ForwardStdout: forwardStdout,
			ParentPID:     ctx.CurrentPID,
		},
	})

	L.Push(lua.LNumber(pid))
	return 1
}
