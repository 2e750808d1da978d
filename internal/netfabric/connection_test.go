package netfabric

import "testing"

func TestConnectionTableAllocatesDistinctPorts(t *testing.T) {
	ct := NewConnectionTable(32768, 32770, nil)

	c1, err := ct.Connect("10.0.1.5", 80, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c2, err := ct.Connect("10.0.1.5", 80, 2)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c1.LocalPort == c2.LocalPort {
		t.Fatalf("expected distinct ephemeral ports, got %d twice", c1.LocalPort)
	}
}

func TestConnectionTableAvoidsListeningPorts(t *testing.T) {
	ct := NewConnectionTable(32768, 32769, func(port int) bool { return port == 32768 })

	c, err := ct.Connect("10.0.1.5", 80, 1)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.LocalPort != 32769 {
		t.Fatalf("LocalPort = %d, want 32769 (32768 is reserved by listenCheck)", c.LocalPort)
	}
}

func TestConnectionTableExhaustion(t *testing.T) {
	ct := NewConnectionTable(32768, 32768, nil)
	if _, err := ct.Connect("10.0.1.5", 80, 1); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := ct.Connect("10.0.1.5", 80, 2); err == nil {
		t.Fatal("expected exhaustion error on second Connect")
	}
}

func TestConnectionDeliver(t *testing.T) {
	ct := NewConnectionTable(32768, 32769, nil)
	conn, _ := ct.Connect("10.0.1.5", 80, 1)

	ok := ct.Deliver(Packet{SrcIP: "10.0.1.5", SrcPort: 80, DstPort: conn.LocalPort, Payload: "reply"})
	if !ok {
		t.Fatal("expected Deliver to find the connection")
	}
	pkt, ok := conn.popInbound()
	if !ok || pkt.Payload != "reply" {
		t.Fatalf("popInbound = (%v, %v), want (reply, true)", pkt, ok)
	}
}
