package vmos

import (
	"fmt"

	"github.com/oriys/shardvm/internal/netfabric"
	"github.com/oriys/shardvm/internal/scriptengine"
	"github.com/oriys/shardvm/internal/tickctx"
)

// VM is one in-world machine: an identity, an optional NIC, and the
// OS that owns its process table.
type VM struct {
	ID       string
	Hostname string
	NIC      *netfabric.NIC // nil if this VM has no network interface
	OS       *VmOs
}

func NewVM(id, hostname string, nic *netfabric.NIC) *VM {
	return &VM{ID: id, Hostname: hostname, NIC: nic, OS: NewVmOs()}
}

func (v *VM) IP() string {
	if v.NIC == nil {
		return ""
	}
	return v.NIC.IP
}

// VmOs owns one VM's process table and PID allocator.
type VmOs struct {
	Processes []*Process
	NextPID   uint64

	// byPID indexes Processes for O(1) status/stdout/stdin lookups.
	byPID map[uint64]*Process
}

func NewVmOs() *VmOs {
	return &VmOs{NextPID: 1, byPID: make(map[uint64]*Process)}
}

func (os *VmOs) Lookup(pid uint64) (*Process, bool) {
	p, ok := os.byPID[pid]
	return p, ok
}

// AddProcess inserts a process realized from a spawn request,
// registering it by PID.
func (os *VmOs) AddProcess(p *Process) {
	os.Processes = append(os.Processes, p)
	os.byPID[p.PID] = p
	if p.PID >= os.NextPID {
		os.NextPID = p.PID + 1
	}
}

// Reap removes every finished process whose one-tick stdout grace
// period has elapsed, returning their final stdout keyed by PID so the
// caller can feed tickctx.Context.LastStdoutOfFinished for one more
// tick before they disappear from ProcessStatus entirely.
func (os *VmOs) Reap() map[uint64]string {
	finishedStdout := make(map[uint64]string)
	remaining := os.Processes[:0]
	for _, p := range os.Processes {
		if p.IsFinished() {
			finishedStdout[p.PID] = p.Stdout.String()
			delete(os.byPID, p.PID)
			continue
		}
		remaining = append(remaining, p)
	}
	os.Processes = remaining
	return finishedStdout
}

// BuildSnapshots returns the process-status and process-stdout
// snapshots the tick context is primed with at the start of a tick.
func (os *VmOs) BuildSnapshots() (status map[uint64]string, stdout map[uint64]string) {
	status = make(map[uint64]string, len(os.Processes))
	stdout = make(map[uint64]string, len(os.Processes))
	for _, p := range os.Processes {
		status[p.PID] = p.Status()
		stdout[p.PID] = p.Stdout.String()
	}
	return status, stdout
}

// SpawnRealizer creates the concrete Process a deferred spawn request
// describes, looking the source up from /bin or from the filesystem.
type SpawnRealizer interface {
	Realize(engine *scriptengine.Engine, vmID string, spec tickctx.SpawnSpec) (*scriptengine.Coroutine, error)
}

// ApplyPostTick realizes the VM's spawn queue, injects stdin lines, and
// forwards outbound packets into the shared router — the three
// post-tick effects every VM's tick must apply exactly once.
func (os *VmOs) ApplyPostTick(ctx *tickctx.Context, engine *scriptengine.Engine, realizer SpawnRealizer, router *netfabric.Router, srcIP string) error {
	for _, item := range ctx.SpawnQueue {
		co, err := realizer.Realize(engine, ctx.VMID, item.Spec)
		if err != nil {
			continue
		}
		p := NewProcess(item.PID, item.Parent, item.Spec.UID, item.Spec.Username, item.Spec.Args, co, item.Spec.ForwardStdout)
		os.AddProcess(p)
	}

	for _, inj := range ctx.StdinInjectQueue {
		if p, ok := os.byPID[inj.PID]; ok {
			p.Stdin.Push(inj.Line)
		}
	}

	if router != nil {
		for _, pkt := range ctx.NetOutbound {
			pkt.SrcIP = srcIP
			if err := router.Route(pkt); err != nil {
				return fmt.Errorf("vmos: routing outbound packet: %w", err)
			}
		}
	}
	return nil
}

// ForwardChildStdout mirrors stdout produced by children marked
// ForwardStdout into their parent's stdout buffer. Called once per
// tick, after every process has run, so the shell sees its child's
// output as if it had written it directly.
func (os *VmOs) ForwardChildStdout() {
	for _, child := range os.Processes {
		if !child.ForwardStdout {
			continue
		}
		parent, ok := os.byPID[child.ParentPID]
		if !ok {
			continue
		}
		full := child.Stdout.String()
		if len(full) > child.forwardedLen {
			parent.Stdout.Write(full[child.forwardedLen:])
			child.forwardedLen = len(full)
		}
	}
}
