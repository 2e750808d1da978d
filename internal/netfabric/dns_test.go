package netfabric

import "testing"

func TestDNSRegisterAndResolve(t *testing.T) {
	d := NewDNSResolver()
	d.RegisterA("web-srv.internal", "10.0.1.10")

	ip, ok := d.Resolve("web-srv.internal")
	if !ok || ip != "10.0.1.10" {
		t.Fatalf("Resolve = (%q, %v), want (10.0.1.10, true)", ip, ok)
	}
}

func TestDNSReverseLookup(t *testing.T) {
	d := NewDNSResolver()
	d.RegisterA("db-prod.internal", "10.0.1.10")

	host, ok := d.ReverseLookup("10.0.1.10")
	if !ok || host != "db-prod.internal" {
		t.Fatalf("ReverseLookup = (%q, %v), want (db-prod.internal, true)", host, ok)
	}
}

func TestDNSCNAMEResolution(t *testing.T) {
	d := NewDNSResolver()
	d.RegisterA("web-srv-01.internal", "10.0.1.10")
	d.RegisterCNAME("www.internal", "web-srv-01.internal")

	ip, ok := d.Resolve("www.internal")
	if !ok || ip != "10.0.1.10" {
		t.Fatalf("Resolve(www.internal) = (%q, %v), want (10.0.1.10, true)", ip, ok)
	}
}

func TestDNSCNAMEChain(t *testing.T) {
	d := NewDNSResolver()
	d.RegisterA("real-host.internal", "10.0.1.10")
	d.RegisterCNAME("alias1.internal", "real-host.internal")
	d.RegisterCNAME("alias2.internal", "alias1.internal")

	ip, ok := d.Resolve("alias2.internal")
	if !ok || ip != "10.0.1.10" {
		t.Fatalf("Resolve(alias2.internal) = (%q, %v), want (10.0.1.10, true)", ip, ok)
	}
}

func TestDNSUnresolvedReturnsFalse(t *testing.T) {
	d := NewDNSResolver()
	if _, ok := d.Resolve("nonexistent.internal"); ok {
		t.Fatal("expected Resolve to fail for unregistered hostname")
	}
}

func TestDNSUnregister(t *testing.T) {
	d := NewDNSResolver()
	d.RegisterA("temp.internal", "10.0.1.10")
	if _, ok := d.Resolve("temp.internal"); !ok {
		t.Fatal("expected temp.internal to resolve before unregister")
	}

	d.UnregisterA("temp.internal")
	if _, ok := d.Resolve("temp.internal"); ok {
		t.Fatal("expected temp.internal to be gone after unregister")
	}
	if _, ok := d.ReverseLookup("10.0.1.10"); ok {
		t.Fatal("expected PTR record to be gone after unregister")
	}
}

func TestDNSCNAMELoopTerminates(t *testing.T) {
	d := NewDNSResolver()
	d.RegisterCNAME("a.internal", "b.internal")
	d.RegisterCNAME("b.internal", "a.internal")

	if _, ok := d.Resolve("a.internal"); ok {
		t.Fatal("expected a CNAME cycle to fail to resolve, not hang")
	}
}
