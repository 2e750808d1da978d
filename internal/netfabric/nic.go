package netfabric

// NIC is the virtual network card attached to one VM: an IP within a
// subnet. VMs without a NIC have no IP and every net.* call that needs
// one fails cleanly at the capability-table layer.
type NIC struct {
	IP     string
	Subnet string
}
