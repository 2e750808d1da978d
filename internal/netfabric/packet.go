// Package netfabric implements the in-memory network layer shared by all
// VMs on a host: packets, NICs, a router that maps IPs to VMs, ephemeral
// connections, and a DNS resolver. It has no notion of real sockets or
// real IP stacks — everything is a plain in-process data structure.
package netfabric

// Packet is the unit of delivery between two NICs. Payload is carried as
// a string since every capability table that touches it speaks Lua
// strings, not raw bytes.
type Packet struct {
	SrcIP   string
	SrcPort int
	DstIP   string
	DstPort int
	Payload string
}
