package netfabric

import "testing"

func TestRouterLocalDelivery(t *testing.T) {
	r := NewRouter(nil)
	r.RegisterVM("10.0.1.2", "vm-a")

	err := r.Route(Packet{SrcIP: "10.0.1.3", DstIP: "10.0.1.2", DstPort: 80, Payload: "hi"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}

	pkts := r.DrainInbound("vm-a")
	if len(pkts) != 1 || pkts[0].Payload != "hi" {
		t.Fatalf("DrainInbound = %v, want one packet with payload hi", pkts)
	}
	if len(r.DrainInbound("vm-a")) != 0 {
		t.Fatal("expected inbound queue to be empty after drain")
	}
}

func TestRouterNonLocalGoesToSink(t *testing.T) {
	sink := &recordingSink{}
	r := NewRouter(sink)

	_ = r.Route(Packet{DstIP: "10.0.2.2", Payload: "remote"})
	if len(sink.sent) != 1 || sink.sent[0].Payload != "remote" {
		t.Fatalf("sink.sent = %v, want one packet", sink.sent)
	}
}

func TestRouterListeningPorts(t *testing.T) {
	r := NewRouter(nil)
	r.SetListening("10.0.1.2", 22)
	if !r.IsListening("10.0.1.2", 22) {
		t.Fatal("expected port 22 to be listening")
	}
	r.ClearListening("10.0.1.2")
	if r.IsListening("10.0.1.2", 22) {
		t.Fatal("expected listening ports cleared")
	}
}

type recordingSink struct {
	sent []Packet
}

func (s *recordingSink) Send(pkt Packet) error {
	s.sent = append(s.sent, pkt)
	return nil
}
