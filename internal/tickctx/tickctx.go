// Package tickctx holds the per-engine Tick Context: the one piece of
// mutable state every capability table reads and writes while a single
// VM is being ticked. The game loop swaps its fields for each VM in turn,
// so the engine never holds a reference to anything that outlives the
// VM currently being ticked.
package tickctx

import (
	"sync"

	"github.com/oriys/shardvm/internal/netfabric"
)

// SpawnSpec names what a deferred os.spawn/os.spawn_path call should
// create once the tick finishes.
type SpawnSpec struct {
	FromBin  bool   // true: Name is a /bin program name; false: Name is a filesystem path
	Name     string
	Args     []string
	UID      int
	Username string
	// ForwardStdout mirrors this child's stdout into the parent's own
	// stdout buffer, the way the shell's spawned children do.
	ForwardStdout bool
	ParentPID     uint64
}

// SpawnQueueItem is one reserved-but-not-yet-realized spawn request.
type SpawnQueueItem struct {
	PID    uint64
	Parent uint64
	Spec   SpawnSpec
}

// StdinInject is a deferred os.write_stdin call, applied after the tick.
type StdinInject struct {
	PID  uint64
	Line string
}

// Context is swapped onto the script engine immediately before a VM's
// tick and cleared immediately after. No capability table may retain a
// pointer into it once the tick that filled it has ended.
type Context struct {
	mu sync.Mutex

	VMID        string
	Hostname    string
	IP          string // dotted-quad, "" if the VM has no NIC

	CurrentPID      uint64
	CurrentUID      int
	CurrentUsername string

	// Network buffers. Lua calls (net.send/net.recv/net.listen) only ever
	// touch these; the VM OS syncs them with the NIC before and after tick.
	NetOutbound     []netfabric.Packet
	NetInbound      []netfabric.Packet
	ListeningPorts  []int

	// Current process I/O, set once per process resume.
	CurrentStdin  *StdinQueue
	CurrentStdout *StdoutBuffer
	ProcessArgs   []string

	// PID allocation. Lua's os.spawn/os.spawn_path reserve a PID
	// synchronously by post-incrementing this counter.
	NextPID uint64

	SpawnQueue []SpawnQueueItem

	// Snapshots built once at the start of a VM's tick.
	ProcessStatus map[uint64]string
	ProcessStdout map[uint64]string

	// Stdout of processes that finished during the previous tick, merged
	// into ProcessStdout for exactly one more tick so os.read_stdout(pid)
	// still resolves right after exit.
	LastStdoutOfFinished map[uint64]string

	StdinInjectQueue []StdinInject
}

// New returns an empty Context, ready to be primed with SetVM.
func New() *Context {
	return &Context{
		CurrentUsername:      "root",
		NextPID:              1,
		ProcessStatus:        make(map[uint64]string),
		ProcessStdout:        make(map[uint64]string),
		LastStdoutOfFinished: make(map[uint64]string),
	}
}

// SetVM resets the context for the given VM's upcoming tick, clearing
// everything that must not leak across VM boundaries.
func (c *Context) SetVM(vmID, hostname, ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.VMID = vmID
	c.Hostname = hostname
	c.IP = ip
	c.CurrentPID = 0
	c.CurrentUID = 0
	c.CurrentUsername = "root"
	c.NetOutbound = nil
	c.NetInbound = nil
	c.ListeningPorts = nil
	c.CurrentStdin = nil
	c.CurrentStdout = nil
	c.ProcessArgs = nil
	c.SpawnQueue = nil
	c.ProcessStatus = make(map[uint64]string)
	c.StdinInjectQueue = nil
	c.ProcessStdout = make(map[uint64]string)
}

// MergeLastStdoutOfFinished folds the previous tick's just-finished
// stdout into this tick's snapshot, then clears it — giving
// os.read_stdout(pid) exactly one tick of grace after a process exits.
func (c *Context) MergeLastStdoutOfFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for pid, s := range c.LastStdoutOfFinished {
		c.ProcessStdout[pid] = s
	}
	c.LastStdoutOfFinished = make(map[uint64]string)
}

// SetCurrentProcess primes per-process I/O and args immediately before
// that process is resumed.
func (c *Context) SetCurrentProcess(stdin *StdinQueue, stdout *StdoutBuffer, args []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CurrentStdin = stdin
	c.CurrentStdout = stdout
	c.ProcessArgs = args
}

// SyncNextPID raises the PID counter to n if the VM's own process table
// has already issued PIDs past where this shared Context's counter sits
// — necessary because one Context is reused across every VM in a tick,
// so each VM's turn must resume PID allocation from its own high-water
// mark, not the previous VM's.
func (c *Context) SyncNextPID(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.NextPID {
		c.NextPID = n
	}
}

// AllocatePID reserves and returns the next PID, post-incrementing the
// counter the way the original's spawn callbacks do.
func (c *Context) AllocatePID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	pid := c.NextPID
	c.NextPID++
	return pid
}

// StdinQueue is a process's pending input lines, shared between the
// capability tables (io.read/os.write_stdin) and the VM OS.
type StdinQueue struct {
	mu    sync.Mutex
	lines []string
}

func NewStdinQueue() *StdinQueue { return &StdinQueue{} }

func (q *StdinQueue) Push(line string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lines = append(q.lines, line)
}

func (q *StdinQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.lines) == 0 {
		return "", false
	}
	line := q.lines[0]
	q.lines = q.lines[1:]
	return line, true
}

// Holder is the single indirection every capability table closes over:
// the engine is constructed once, but the Context it should read and
// write changes every tick. The game loop calls Set immediately before
// ticking a VM and clears it immediately after.
type Holder struct {
	mu  sync.Mutex
	ctx *Context
}

func NewHolder() *Holder { return &Holder{} }

func (h *Holder) Set(c *Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctx = c
}

// Get returns the active context, or nil if called outside a tick.
func (h *Holder) Get() *Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx
}

// StdoutBuffer accumulates a process's stdout across its whole lifetime.
type StdoutBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func NewStdoutBuffer() *StdoutBuffer { return &StdoutBuffer{} }

func (b *StdoutBuffer) Write(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, s...)
}

func (b *StdoutBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *StdoutBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
