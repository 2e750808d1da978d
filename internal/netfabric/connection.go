package netfabric

import (
	"fmt"
	"sync"
)

// ephemeralRange is the default local-port window net.connect allocates
// from; it never overlaps with ports a script has explicitly bound via
// net.listen.
type ephemeralRange struct {
	start, end int
}

// Connection is the point-to-point binding created by net.connect: an
// ephemeral local port bound to one PID, plus a queue of packets
// addressed to that port.
type Connection struct {
	LocalPort  int
	RemoteIP   string
	RemotePort int
	PID        uint64

	mu      sync.Mutex
	inbound []Packet
}

func (c *Connection) pushInbound(pkt Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, pkt)
}

// PopInbound removes and returns the oldest packet queued for this
// connection, if any. Exported for capability tables in other packages
// (nettable's net.connect-returned object) that poll it from Lua.
func (c *Connection) PopInbound() (Packet, bool) {
	return c.popInbound()
}

func (c *Connection) popInbound() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		return Packet{}, false
	}
	pkt := c.inbound[0]
	c.inbound = c.inbound[1:]
	return pkt, true
}

// ConnectionTable allocates ephemeral ports for a single VM's NIC and
// tracks the live Connection bound to each one.
type ConnectionTable struct {
	mu          sync.Mutex
	ephemeral   ephemeralRange
	next        int
	byPort      map[int]*Connection
	listenCheck func(port int) bool
}

// NewConnectionTable creates a table allocating ports in [start, end].
// listenCheck reports whether a port is already bound by a net.listen
// call, so ephemeral allocation never collides with it.
func NewConnectionTable(start, end int, listenCheck func(port int) bool) *ConnectionTable {
	if listenCheck == nil {
		listenCheck = func(int) bool { return false }
	}
	return &ConnectionTable{
		ephemeral:   ephemeralRange{start, end},
		next:        start,
		byPort:      make(map[int]*Connection),
		listenCheck: listenCheck,
	}
}

// Connect allocates the next free ephemeral port and binds it to pid.
func (t *ConnectionTable) Connect(remoteIP string, remotePort int, pid uint64) (*Connection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.ephemeral.end - t.ephemeral.start + 1
	for i := 0; i < span; i++ {
		port := t.ephemeral.start + (t.next-t.ephemeral.start+i)%span
		if _, used := t.byPort[port]; used {
			continue
		}
		if t.listenCheck(port) {
			continue
		}
		t.next = port + 1
		conn := &Connection{LocalPort: port, RemoteIP: remoteIP, RemotePort: remotePort, PID: pid}
		t.byPort[port] = conn
		return conn, nil
	}
	return nil, fmt.Errorf("netfabric: no free ephemeral ports in [%d, %d]", t.ephemeral.start, t.ephemeral.end)
}

func (t *ConnectionTable) Lookup(port int) (*Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byPort[port]
	return c, ok
}

func (t *ConnectionTable) Close(port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byPort, port)
}

// Deliver routes an inbound packet to the connection bound to its
// destination port, if one exists.
func (t *ConnectionTable) Deliver(pkt Packet) bool {
	t.mu.Lock()
	conn, ok := t.byPort[pkt.DstPort]
	t.mu.Unlock()
	if !ok {
		return false
	}
	conn.pushInbound(pkt)
	return true
}
