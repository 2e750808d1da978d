// Package gameloop drives the VM Manager: the fixed-cadence tick that
// advances every VM's OS by one quantum, applies deferred spawn/stdin
// effects, and keeps the network fabric and player-facing hubs in sync.
package gameloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oriys/shardvm/internal/binprograms"
	"github.com/oriys/shardvm/internal/capability/fstable"
	"github.com/oriys/shardvm/internal/hubs"
	"github.com/oriys/shardvm/internal/logging"
	"github.com/oriys/shardvm/internal/metrics"
	"github.com/oriys/shardvm/internal/netfabric"
	"github.com/oriys/shardvm/internal/observability"
	"github.com/oriys/shardvm/internal/scriptengine"
	"github.com/oriys/shardvm/internal/tickctx"
	"github.com/oriys/shardvm/internal/vmos"
)

// Loop owns every VM on this host and advances them one tick at a time.
// A single Engine (and therefore a single *lua.LState) is shared across
// every VM; the Holder is what makes that safe, since only one VM's
// Context is ever visible to the capability tables at a time.
type Loop struct {
	mu  sync.Mutex
	vms map[string]*vmos.VM

	engine *scriptengine.Engine
	holder *tickctx.Holder
	ctx    *tickctx.Context

	router   *netfabric.Router
	realizer vmos.SpawnRealizer
	conns    *NetConnector

	terminals *hubs.TerminalHub
	spies     *hubs.ProcessSpyHub
	runs      *hubs.ProcessRunHub

	log *slog.Logger

	tickCount uint64

	pendingSpawnMu sync.Mutex
	pendingSpawns  map[string][]*pendingSpawn
}

// pendingSpawn is an external (non-script) spawn request waiting to be
// realized on its VM's own tick goroutine, so vm.OS is never mutated
// from outside the tick loop.
type pendingSpawn struct {
	uid      int
	username string
	binName  string
	args     []string
	result   chan spawnResult
}

type spawnResult struct {
	proc *vmos.Process
	err  error
}

// New builds a Loop around an already-registered Engine. The engine's
// capability tables must share holder, and realizer must know how to
// turn a deferred spawn spec into a runnable coroutine.
func New(engine *scriptengine.Engine, holder *tickctx.Holder, router *netfabric.Router, realizer vmos.SpawnRealizer, conns *NetConnector, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		vms:           make(map[string]*vmos.VM),
		engine:        engine,
		holder:        holder,
		ctx:           tickctx.New(),
		router:        router,
		realizer:      realizer,
		conns:         conns,
		pendingSpawns: make(map[string][]*pendingSpawn),
		terminals:     hubs.NewTerminalHub(),
		spies:         hubs.NewProcessSpyHub(),
		runs:      hubs.NewProcessRunHub(),
		log:       log,
	}
}

func (l *Loop) Terminals() *hubs.TerminalHub { return l.terminals }
func (l *Loop) Spies() *hubs.ProcessSpyHub    { return l.spies }
func (l *Loop) Runs() *hubs.ProcessRunHub     { return l.runs }

// AddVM registers a new VM, wiring its NIC into the router if it has
// one, and seeds it with the default /bin programs as PID 1's siblings
// are spawned (the init process itself is left to the caller).
func (l *Loop) AddVM(vm *vmos.VM) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vms[vm.ID] = vm
	if vm.NIC != nil && l.router != nil {
		l.router.RegisterVM(vm.NIC.IP, vm.ID)
	}
}

func (l *Loop) RemoveVM(vmID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vm, ok := l.vms[vmID]
	if !ok {
		return
	}
	if vm.NIC != nil && l.router != nil {
		l.router.UnregisterVM(vm.NIC.IP)
	}
	if l.conns != nil {
		l.conns.RemoveVM(vmID)
	}
	delete(l.vms, vmID)
}

func (l *Loop) VM(vmID string) (*vmos.VM, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vm, ok := l.vms[vmID]
	return vm, ok
}

// Spawn creates a new top-level process running binName on vmID,
// outside of any script's os.spawn call — the path the Run RPC uses to
// execute a one-shot program on a player's behalf. The request is
// queued and realized on the VM's own tick goroutine (the same
// tick-boundary mechanism ApplyPostTick uses for script-issued spawns),
// so vm.OS is never touched from the calling goroutine.
func (l *Loop) Spawn(vmID string, uid int, username, binName string, args []string) (*vmos.Process, error) {
	l.mu.Lock()
	_, ok := l.vms[vmID]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("gameloop: no such vm %q", vmID)
	}

	req := &pendingSpawn{uid: uid, username: username, binName: binName, args: args, result: make(chan spawnResult, 1)}
	l.pendingSpawnMu.Lock()
	l.pendingSpawns[vmID] = append(l.pendingSpawns[vmID], req)
	l.pendingSpawnMu.Unlock()

	res := <-req.result
	return res.proc, res.err
}

// drainPendingSpawns realizes every queued external spawn request for
// vm, called only from the tick goroutine that owns vm.OS.
func (l *Loop) drainPendingSpawns(vm *vmos.VM) {
	l.pendingSpawnMu.Lock()
	reqs := l.pendingSpawns[vm.ID]
	delete(l.pendingSpawns, vm.ID)
	l.pendingSpawnMu.Unlock()

	for _, req := range reqs {
		co, err := l.realizer.Realize(l.engine, vm.ID, tickctx.SpawnSpec{
			FromBin: true, Name: req.binName, Args: req.args, UID: req.uid, Username: req.username,
		})
		if err != nil {
			req.result <- spawnResult{err: err}
			continue
		}
		proc := vmos.NewProcess(vm.OS.NextPID, 0, req.uid, req.username, req.args, co, false)
		vm.OS.AddProcess(proc)
		req.result <- spawnResult{proc: proc}
	}
}

// Run ticks every VM on the interval until ctx-equivalent stop channel
// fires. Tests drive Tick directly instead of calling Run.
func (l *Loop) Run(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick advances every VM by exactly one quantum, in a fixed (sorted-by-
// insertion) order, then applies every hub's once-per-tick maintenance.
func (l *Loop) Tick() {
	started := time.Now()

	l.mu.Lock()
	vms := make([]*vmos.VM, 0, len(l.vms))
	for _, vm := range l.vms {
		vms = append(vms, vm)
	}
	l.mu.Unlock()

	l.holder.Set(l.ctx)
	defer l.holder.Set(nil)

	processCount := 0
	for _, vm := range vms {
		_, span := observability.StartSpan(context.Background(), "gameloop.tick_vm",
			observability.AttrVMID.String(vm.ID), observability.AttrTick.Int64(int64(l.tickCount)))
		l.tickVM(vm)
		processCount += len(vm.OS.Processes)
		span.SetAttributes(observability.AttrProcessCount.Int(len(vm.OS.Processes)))
		observability.SetSpanOK(span)
		span.End()
	}

	l.tickCount++
	l.driveTerminals(vms)
	l.driveSpies(vms)
	l.driveRuns(vms)

	m := metrics.Global()
	m.RecordTick(time.Since(started))
	m.SetActiveVMs(len(vms))
	m.SetActiveProcesses(processCount)
	m.SetHubSessions(len(l.terminals.Sessions()), len(l.spies.Connections()), len(l.runs.Active()))
}

func (l *Loop) tickVM(vm *vmos.VM) {
	l.drainPendingSpawns(vm)

	ip := vm.IP()
	l.ctx.SetVM(vm.ID, vm.Hostname, ip)
	l.ctx.SyncNextPID(vm.OS.NextPID)

	if l.conns != nil {
		l.conns.SetVMIP(vm.ID, ip)
	}

	if l.router != nil {
		inbound := l.router.DrainInbound(vm.ID)
		if l.conns != nil {
			inbound = l.conns.DeliverConnectionPackets(vm.ID, inbound)
		}
		l.ctx.NetInbound = inbound
	}

	status, stdout := vm.OS.BuildSnapshots()
	l.ctx.ProcessStatus = status
	l.ctx.ProcessStdout = stdout
	l.ctx.MergeLastStdoutOfFinished()

	for _, p := range vm.OS.Processes {
		l.ctx.CurrentPID = p.PID
		l.ctx.CurrentUID = p.UID
		l.ctx.CurrentUsername = p.Username
		l.ctx.SetCurrentProcess(p.Stdin, p.Stdout, p.Args)

		started := time.Now()
		p.Tick(l.engine)
		logging.Default().Log(&logging.RequestLog{
			RequestID:  fmt.Sprintf("%s:%d:%d", vm.ID, p.PID, l.tickCount),
			Function:   processLabel(p),
			FunctionID: vm.ID,
			DurationMs: time.Since(started).Milliseconds(),
			ColdStart:  l.tickCount == 0,
			Success:    !p.Errored(),
		})
	}

	finished := vm.OS.Reap()
	for pid, out := range finished {
		l.ctx.LastStdoutOfFinished[pid] = out
		logging.GetOutputStore().Store(fmt.Sprintf("%s:%d", vm.ID, pid), vm.ID, out, "")
	}

	if err := vm.OS.ApplyPostTick(l.ctx, l.engine, l.realizer, l.router, ip); err != nil {
		l.log.Warn("gameloop: post-tick apply failed", "vm", vm.ID, "error", err)
	}
	vm.OS.ForwardChildStdout()

	if l.router != nil && ip != "" {
		l.router.ClearListening(ip)
		for _, port := range l.ctx.ListeningPorts {
			l.router.SetListening(ip, port)
		}
	}
}

func (l *Loop) driveTerminals(vms []*vmos.VM) {
	byID := indexVMs(vms)
	for _, sess := range l.terminals.Sessions() {
		vm, ok := byID[sess.VMID]
		if !ok {
			continue
		}
		proc, ok := vm.OS.Lookup(sess.PID)
		if !ok {
			continue
		}
		for _, line := range sess.DrainStdin() {
			proc.Stdin.Push(line)
		}
		sess.PushStdoutSuffix(proc.Stdout.String())
	}
}

func (l *Loop) driveSpies(vms []*vmos.VM) {
	byID := indexVMs(vms)
	for _, conn := range l.spies.Connections() {
		vm, ok := byID[conn.VMID]
		if !ok {
			continue
		}

		pids := make([]uint64, 0, len(vm.OS.Processes))
		for _, p := range vm.OS.Processes {
			pids = append(pids, p.PID)
		}
		conn.PushProcessList(pids)

		for _, pid := range conn.SubscribedPIDs() {
			proc, ok := vm.OS.Lookup(pid)
			if !ok {
				conn.PushProcessGone(pid)
				continue
			}
			conn.PushStdout(pid, proc.Stdout.String())
		}
	}
}

func (l *Loop) driveRuns(vms []*vmos.VM) {
	byID := indexVMs(vms)
	now := time.Now()
	for _, run := range l.runs.Active() {
		_, span := observability.StartSpan(context.Background(), "gameloop.drive_run",
			observability.AttrRunVMID.String(run.VMID), observability.AttrRunPID.Int64(int64(run.PID)))

		vm, ok := byID[run.VMID]
		if !ok {
			l.runs.Unregister(run.VMID, run.PID)
			observability.SetSpanOK(span)
			span.End()
			continue
		}
		proc, ok := vm.OS.Lookup(run.PID)
		if !ok {
			run.Finish(0)
			l.runs.Unregister(run.VMID, run.PID)
			observability.SetSpanOK(span)
			span.End()
			continue
		}
		if run.TimedOut(now) {
			run.PushStdout(hubs.CurlTimeoutResponse)
			run.Finish(124)
			l.runs.Unregister(run.VMID, run.PID)
			span.SetAttributes(observability.AttrRunTimedOut.Bool(true))
			observability.SetSpanOK(span)
			span.End()
			continue
		}
		run.PushStdout(proc.Stdout.String())
		if proc.IsFinished() {
			run.Finish(0)
			l.runs.Unregister(run.VMID, run.PID)
		}
		observability.SetSpanOK(span)
		span.End()
	}
}

// processLabel names a process for the request log. vmos.Process doesn't
// retain the binary name it was spawned from, only its argv, so PID is
// the only stable identifier available at this layer.
func processLabel(p *vmos.Process) string {
	return fmt.Sprintf("pid:%d", p.PID)
}

func indexVMs(vms []*vmos.VM) map[string]*vmos.VM {
	out := make(map[string]*vmos.VM, len(vms))
	for _, vm := range vms {
		out[vm.ID] = vm
	}
	return out
}

// BinRealizer resolves a deferred spawn request against the default
// /bin programs first, falling back to the VM's own filesystem for
// anything the player wrote or overwrote there.
type BinRealizer struct {
	Store fstable.Store
}

func (r *BinRealizer) Realize(engine *scriptengine.Engine, vmID string, spec tickctx.SpawnSpec) (*scriptengine.Coroutine, error) {
	var source string

	if spec.FromBin {
		if r.Store != nil {
			if content, ok, err := r.Store.Read(vmID, "/bin/"+spec.Name, spec.UID); err != nil {
				return nil, err
			} else if ok {
				source = content
			}
		}
		if source == "" {
			src, ok := binprograms.Lookup(spec.Name)
			if !ok {
				return nil, fmt.Errorf("gameloop: no such bin program %q", spec.Name)
			}
			source = src
		}
	} else {
		if r.Store == nil {
			return nil, fmt.Errorf("gameloop: spawn_path requires a filesystem store")
		}
		content, ok, err := r.Store.Read(vmID, spec.Name, spec.UID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("gameloop: no such file %q", spec.Name)
		}
		source = content
	}

	return engine.Compile(source)
}
