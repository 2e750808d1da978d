package netfabric

// maxCNAMEHops bounds CNAME chain resolution so a cycle can't hang a
// lookup forever.
const maxCNAMEHops = 10

// DNSResolver is an in-memory A/PTR/CNAME resolver, one per host-wide
// network fabric (shared across every VM's NIC, not per-VM).
type DNSResolver struct {
	aRecords     map[string]string // hostname -> ip
	ptrRecords   map[string]string // ip -> hostname
	cnameRecords map[string]string // alias -> canonical hostname
}

func NewDNSResolver() *DNSResolver {
	return &DNSResolver{
		aRecords:     make(map[string]string),
		ptrRecords:   make(map[string]string),
		cnameRecords: make(map[string]string),
	}
}

// Resolve follows CNAME chains (up to maxCNAMEHops) down to an A record.
func (d *DNSResolver) Resolve(hostname string) (string, bool) {
	current := hostname
	for i := 0; i < maxCNAMEHops; i++ {
		if ip, ok := d.aRecords[current]; ok {
			return ip, true
		}
		canonical, ok := d.cnameRecords[current]
		if !ok {
			return "", false
		}
		current = canonical
	}
	return "", false
}

// RegisterA adds a hostname -> ip record, also registering the reverse
// PTR record.
func (d *DNSResolver) RegisterA(hostname, ip string) {
	d.aRecords[hostname] = ip
	d.ptrRecords[ip] = hostname
}

// UnregisterA removes a hostname's A record and its PTR.
func (d *DNSResolver) UnregisterA(hostname string) {
	if ip, ok := d.aRecords[hostname]; ok {
		delete(d.aRecords, hostname)
		delete(d.ptrRecords, ip)
	}
}

func (d *DNSResolver) ReverseLookup(ip string) (string, bool) {
	host, ok := d.ptrRecords[ip]
	return host, ok
}

func (d *DNSResolver) RegisterCNAME(alias, canonical string) {
	d.cnameRecords[alias] = canonical
}

func (d *DNSResolver) ResolveCNAME(alias string) (string, bool) {
	canonical, ok := d.cnameRecords[alias]
	return canonical, ok
}

func (d *DNSResolver) AllARecords() map[string]string {
	out := make(map[string]string, len(d.aRecords))
	for k, v := range d.aRecords {
		out[k] = v
	}
	return out
}
