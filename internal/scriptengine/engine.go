// Package scriptengine hosts the embedded Lua runtime every VM's OS ticks
// against. One *lua.LState is shared across every VM; capability tables
// read and write exclusively through the tickctx.Context swapped in
// immediately before a tick, never through closures that would leak
// state across VMs.
package scriptengine

import (
	"context"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ResumeState reports how a process's coroutine left a single Resume
// call: still running (yielded), finished normally, or errored out.
type ResumeState int

const (
	Yielded ResumeState = iota
	Finished
	Errored
)

// Engine owns the shared Lua state and registers every capability table
// on it exactly once at construction.
type Engine struct {
	L *lua.LState

	// Quantum bounds how long a single Resume call may run before being
	// aborted as a runaway script. gopher-lua has no per-instruction
	// yield hook like the original's mlua interrupt; this wall-clock
	// budget is the idiomatic substitute (see DESIGN.md). Well-behaved
	// scripts never hit it because every blocking call (io.read,
	// net.recv-style polling loops) yields cooperatively on its own.
	Quantum time.Duration
}

// Coroutine is one process's independent thread of Lua execution.
type Coroutine struct {
	thread *lua.LState
	fn     *lua.LFunction
	status ResumeState
	err    error
}

// New creates an Engine with a sandboxed Lua state. register is called
// once with the new state so callers can install capability tables
// (fs, net, os, http, str, card) before any script runs.
func New(quantum time.Duration, register func(*lua.LState)) *Engine {
	if quantum <= 0 {
		quantum = 50 * time.Millisecond
	}
	L := lua.NewState(lua.Options{
		CallStackSize:       120,
		RegistrySize:        1 << 14,
		SkipOpenLibs:        false,
		IncludeGoStackTrace: false,
	})

	if register != nil {
		register(L)
	}

	return &Engine{L: L, Quantum: quantum}
}

func (e *Engine) Close() {
	e.L.Close()
}

// Compile loads source into a fresh, not-yet-started coroutine.
func (e *Engine) Compile(source string) (*Coroutine, error) {
	fn, err := e.L.LoadString(source)
	if err != nil {
		return nil, fmt.Errorf("scriptengine: compile: %w", err)
	}
	thread, _ := e.L.NewThread()
	return &Coroutine{thread: thread, fn: fn}, nil
}

// Resume runs co for at most the engine's quantum, returning whether it
// yielded, finished, or errored. Resuming a Finished or Errored
// coroutine is a no-op that repeats the prior terminal state.
func (e *Engine) Resume(co *Coroutine) ResumeState {
	if co.status == Finished || co.status == Errored {
		return co.status
	}

	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), e.Quantum)
	defer cancel()
	co.thread.SetContext(ctx)

	var resumeErr error
	var resumeState lua.ResumeState

	go func() {
		defer close(done)
		if co.fn != nil {
			resumeState, _, resumeErr = e.L.Resume(co.thread, co.fn)
			co.fn = nil // first resume consumes the entry function
		} else {
			resumeState, _, resumeErr = e.L.Resume(co.thread, nil)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		<-done
	}

	switch resumeState {
	case lua.ResumeYield:
		co.status = Yielded
	case lua.ResumeOK:
		co.status = Finished
	default:
		co.status = Errored
		co.err = resumeErr
	}
	return co.status
}

func (co *Coroutine) Err() error { return co.err }
