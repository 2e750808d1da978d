package netfabric

import (
	"fmt"
	"sync"

	"github.com/oriys/shardvm/internal/metrics"
)

// Sink delivers a packet somewhere other than this host's local VM
// registry — the pluggable cross-host half of the router. The default
// implementation is LocalOnlySink, which simply drops anything it's
// handed; a Redis-backed sink can be substituted to forward packets to
// other game-server pods.
type Sink interface {
	// Send forwards a packet whose destination IP isn't local to this
	// router. Returns an error if the remote side is unreachable; the
	// router treats that identically to "destination VM is down".
	Send(pkt Packet) error
}

// LocalOnlySink drops every packet handed to it. It's the default sink
// for a single-process deployment with no cross-host bus configured.
type LocalOnlySink struct{}

func (LocalOnlySink) Send(Packet) error { return nil }

// Router tracks which VM owns which IP on this host and which ports each
// VM is currently listening on, and queues inbound packets for delivery
// on the destination VM's next tick.
type Router struct {
	mu sync.Mutex

	vmRegistry  map[string]string      // ip -> vm id
	listenTable map[string]map[int]bool // ip -> set of listening ports
	inbound     map[string][]Packet    // vm id -> packets queued for next tick

	sink Sink
}

func NewRouter(sink Sink) *Router {
	if sink == nil {
		sink = LocalOnlySink{}
	}
	return &Router{
		vmRegistry:  make(map[string]string),
		listenTable: make(map[string]map[int]bool),
		inbound:     make(map[string][]Packet),
		sink:        sink,
	}
}

// RegisterVM marks ip as local to vmID. Deliveries to this IP are queued
// locally instead of handed to the cross-host sink.
func (r *Router) RegisterVM(ip, vmID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vmRegistry[ip] = vmID
}

// UnregisterVM removes a VM's IP from the local registry, e.g. on
// shutdown.
func (r *Router) UnregisterVM(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.vmRegistry, ip)
	delete(r.listenTable, ip)
	delete(r.inbound, ip)
}

func (r *Router) IsLocal(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.vmRegistry[ip]
	return ok
}

// SetListening records that ip is listening on port. Idempotent.
func (r *Router) SetListening(ip string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports, ok := r.listenTable[ip]
	if !ok {
		ports = make(map[int]bool)
		r.listenTable[ip] = ports
	}
	ports[port] = true
}

// ClearListening drops every listening port for ip, called at the start
// of a VM's tick before its script re-declares what it's listening on.
func (r *Router) ClearListening(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listenTable, ip)
}

func (r *Router) IsListening(ip string, port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listenTable[ip][port]
}

// Route delivers pkt to its destination. Local destinations are queued
// for that VM's next tick; anything else goes to the configured Sink.
func (r *Router) Route(pkt Packet) error {
	r.mu.Lock()
	vmID, local := r.vmRegistry[pkt.DstIP]
	r.mu.Unlock()

	if !local {
		if err := r.sink.Send(pkt); err != nil {
			metrics.Global().RecordPacketDropped()
			return err
		}
		metrics.Global().RecordPacketRouted()
		return nil
	}

	r.mu.Lock()
	r.inbound[vmID] = append(r.inbound[vmID], pkt)
	r.mu.Unlock()
	metrics.Global().RecordPacketRouted()
	return nil
}

// DrainInbound removes and returns every packet queued for vmID.
func (r *Router) DrainInbound(vmID string) []Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkts := r.inbound[vmID]
	delete(r.inbound, vmID)
	return pkts
}

// DeliverInbound pushes a packet arriving from the cross-host sink
// straight into a local VM's inbound queue, bypassing Route's sink
// dispatch (it's already been routed once, by the remote host).
func (r *Router) DeliverInbound(vmID string, pkt Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inbound[vmID]; !ok {
		if _, known := r.vmRegistry[pkt.DstIP]; !known {
			return fmt.Errorf("netfabric: unknown local vm %s", vmID)
		}
	}
	r.inbound[vmID] = append(r.inbound[vmID], pkt)
	return nil
}
