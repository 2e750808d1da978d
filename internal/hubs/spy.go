package hubs

import (
	"sync"

	"github.com/google/uuid"
)

// SpyDownstreamMsg is one message the game loop or the gRPC recv task
// sends to a spy connection's send task.
type SpyDownstreamMsg struct {
	Kind    SpyMsgKind
	PID     uint64
	Text    string
	PIDList []uint64
}

type SpyMsgKind int

const (
	SpyProcessList SpyMsgKind = iota
	SpyStdout
	SpyStdinChunk
	SpyProcessGone
	SpyError
)

type spySubscription struct {
	stdinTx       chan string
	stdinRx       chan string
	lastStdoutLen int
}

// SpyConnection is one client's multi-PID observation stream: it can
// subscribe to several PIDs on one VM and receives process-list
// snapshots, stdout, and stdin echoes for each.
type SpyConnection struct {
	PlayerID string
	VMID     string

	downstream chan SpyDownstreamMsg

	mu            sync.Mutex
	subscriptions map[uint64]*spySubscription
}

func (c *SpyConnection) Downstream() <-chan SpyDownstreamMsg { return c.downstream }

func (c *SpyConnection) Subscribe(pid uint64) chan<- string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[pid]
	if !ok {
		sub = &spySubscription{stdinTx: make(chan string, 32), stdinRx: make(chan string, 32)}
		c.subscriptions[pid] = sub
	}
	return sub.stdinTx
}

func (c *SpyConnection) Unsubscribe(pid uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, pid)
}

// SubscribedPIDs returns the PIDs currently being observed.
func (c *SpyConnection) SubscribedPIDs() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.subscriptions))
	for pid := range c.subscriptions {
		out = append(out, pid)
	}
	return out
}

// PushStdout sends the unseen suffix of a subscribed PID's stdout.
func (c *SpyConnection) PushStdout(pid uint64, full string) {
	c.mu.Lock()
	sub, ok := c.subscriptions[pid]
	c.mu.Unlock()
	if !ok || len(full) <= sub.lastStdoutLen {
		return
	}
	suffix := full[sub.lastStdoutLen:]
	sub.lastStdoutLen = len(full)
	select {
	case c.downstream <- SpyDownstreamMsg{Kind: SpyStdout, PID: pid, Text: suffix}:
	default:
	}
}

// PushProcessList sends a snapshot of every live PID on the VM.
func (c *SpyConnection) PushProcessList(pids []uint64) {
	select {
	case c.downstream <- SpyDownstreamMsg{Kind: SpyProcessList, PIDList: pids}:
	default:
	}
}

// PushProcessGone drops a subscription whose process no longer exists
// and notifies the client it's gone.
func (c *SpyConnection) PushProcessGone(pid uint64) {
	c.mu.Lock()
	delete(c.subscriptions, pid)
	c.mu.Unlock()
	select {
	case c.downstream <- SpyDownstreamMsg{Kind: SpyProcessGone, PID: pid}:
	default:
	}
}

// ProcessSpyHub tracks every active spy connection by connection ID.
type ProcessSpyHub struct {
	mu          sync.Mutex
	connections map[string]*SpyConnection
}

func NewProcessSpyHub() *ProcessSpyHub {
	return &ProcessSpyHub{connections: make(map[string]*SpyConnection)}
}

func (h *ProcessSpyHub) Open(playerID, vmID string) (connID string, conn *SpyConnection) {
	conn = &SpyConnection{
		PlayerID:      playerID,
		VMID:          vmID,
		downstream:    make(chan SpyDownstreamMsg, 64),
		subscriptions: make(map[uint64]*spySubscription),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	id := uuid.NewString()
	h.connections[id] = conn
	return id, conn
}

func (h *ProcessSpyHub) Close(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.connections[connID]; ok {
		close(conn.downstream)
		delete(h.connections, connID)
	}
}

func (h *ProcessSpyHub) Connections() []*SpyConnection {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*SpyConnection, 0, len(h.connections))
	for _, c := range h.connections {
		out = append(out, c)
	}
	return out
}
