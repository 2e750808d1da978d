// Package vmos implements the per-VM operating system: the process
// table, its tick procedure, and the pipe semantics every spawned
// process's stdin/stdout goes through.
package vmos

import (
	"github.com/oriys/shardvm/internal/scriptengine"
	"github.com/oriys/shardvm/internal/tickctx"
)

// Process is one running (or just-finished) script instance inside a
// VM: a coroutine plus the stdin/stdout buffers capability tables read
// and write through the active tickctx.Context.
type Process struct {
	PID      uint64
	ParentPID uint64
	UID      int
	Username string
	Args     []string

	co *scriptengine.Coroutine

	Stdin  *tickctx.StdinQueue
	Stdout *tickctx.StdoutBuffer

	finished bool
	errored  bool

	// ForwardStdout mirrors this process's stdout into its parent's own
	// stdout buffer, the way a shell forwards its child's output.
	ForwardStdout bool
	forwardedLen  int
}

func NewProcess(pid, parentPID uint64, uid int, username string, args []string, co *scriptengine.Coroutine, forwardStdout bool) *Process {
	return &Process{
		PID:           pid,
		ParentPID:     parentPID,
		UID:           uid,
		Username:      username,
		Args:          args,
		co:            co,
		Stdin:         tickctx.NewStdinQueue(),
		Stdout:        tickctx.NewStdoutBuffer(),
		ForwardStdout: forwardStdout,
	}
}

func (p *Process) IsFinished() bool { return p.finished }

// Errored reports whether the process's coroutine ended via a Lua error
// rather than a clean return.
func (p *Process) Errored() bool { return p.errored }

// Status mirrors the original's process_status_map values.
func (p *Process) Status() string {
	if p.finished {
		return "finished"
	}
	return "running"
}

// Tick resumes this process's coroutine for at most one quantum. Errors
// are treated the same as a clean finish: a runaway or failing script
// never blocks the rest of the VM's tick.
func (p *Process) Tick(engine *scriptengine.Engine) {
	if p.finished {
		return
	}
	switch engine.Resume(p.co) {
	case scriptengine.Finished:
		p.finished = true
	case scriptengine.Errored:
		p.finished = true
		p.errored = true
	case scriptengine.Yielded:
	}
}
