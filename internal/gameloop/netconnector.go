package gameloop

import (
	"fmt"
	"sync"

	"github.com/oriys/shardvm/internal/netfabric"
)

// NetConnector is the Loop's implementation of nettable.Connector: it
// owns one netfabric.ConnectionTable per VM (ephemeral ports are a
// per-machine resource) plus the single DNS resolver shared by every
// VM on the host. router is consulted so a VM's ephemeral-port allocator
// never hands out a port the VM itself is listening on.
type NetConnector struct {
	resolver *netfabric.DNSResolver
	router   *netfabric.Router

	ephemeralStart, ephemeralEnd int

	mu     sync.Mutex
	tables map[string]*netfabric.ConnectionTable
	vmIPs  map[string]string
}

func NewNetConnector(resolver *netfabric.DNSResolver, router *netfabric.Router, ephemeralStart, ephemeralEnd int) *NetConnector {
	if ephemeralStart <= 0 || ephemeralEnd <= ephemeralStart {
		ephemeralStart, ephemeralEnd = 32768, 60999
	}
	return &NetConnector{
		resolver:       resolver,
		router:         router,
		ephemeralStart: ephemeralStart,
		ephemeralEnd:   ephemeralEnd,
		tables:         make(map[string]*netfabric.ConnectionTable),
		vmIPs:          make(map[string]string),
	}
}

func (n *NetConnector) Resolve(hostname string) (string, bool) {
	return n.resolver.Resolve(hostname)
}

// SetVMIP records vmID's current NIC address, so tableFor's listen-check
// closure knows which router-side listen table to consult. Called once
// per VM per tick from gameloop.tickVM, before any capability call that
// might allocate an ephemeral port.
func (n *NetConnector) SetVMIP(vmID, ip string) {
	n.mu.Lock()
	n.vmIPs[vmID] = ip
	n.mu.Unlock()
}

func (n *NetConnector) tableFor(vmID string) *netfabric.ConnectionTable {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.tables[vmID]
	if !ok {
		var listenCheck func(port int) bool
		if n.router != nil {
			listenCheck = func(port int) bool {
				n.mu.Lock()
				ip := n.vmIPs[vmID]
				n.mu.Unlock()
				return n.router.IsListening(ip, port)
			}
		}
		t = netfabric.NewConnectionTable(n.ephemeralStart, n.ephemeralEnd, listenCheck)
		n.tables[vmID] = t
	}
	return t
}

func (n *NetConnector) Connect(vmID string, remoteIP string, remotePort int, pid uint64) (*netfabric.Connection, error) {
	t := n.tableFor(vmID)
	conn, err := t.Connect(remoteIP, remotePort, pid)
	if err != nil {
		return nil, fmt.Errorf("gameloop: %w", err)
	}
	return conn, nil
}

// DeliverConnectionPackets hands each inbound packet to vmID's
// ConnectionTable; packets with no matching ephemeral-port connection
// are returned unchanged for the plain net.recv queue.
func (n *NetConnector) DeliverConnectionPackets(vmID string, pkts []netfabric.Packet) []netfabric.Packet {
	n.mu.Lock()
	t, ok := n.tables[vmID]
	n.mu.Unlock()
	if !ok {
		return pkts
	}

	rest := pkts[:0:0]
	for _, pkt := range pkts {
		if !t.Deliver(pkt) {
			rest = append(rest, pkt)
		}
	}
	return rest
}

// RemoveVM drops vmID's connection table, freeing its ephemeral ports.
func (n *NetConnector) RemoveVM(vmID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.tables, vmID)
}
