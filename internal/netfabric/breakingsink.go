package netfabric

import (
	"fmt"

	"github.com/oriys/shardvm/internal/circuitbreaker"
)

// BreakingSink wraps another Sink with a circuit breaker, so a cross-host
// bus outage degrades to fast per-packet failures instead of every VM's
// tick blocking on Redis timeouts one packet at a time.
type BreakingSink struct {
	inner   Sink
	breaker *circuitbreaker.Breaker
}

func NewBreakingSink(inner Sink, cfg circuitbreaker.Config) *BreakingSink {
	return &BreakingSink{inner: inner, breaker: circuitbreaker.New(cfg)}
}

func (s *BreakingSink) Send(pkt Packet) error {
	if !s.breaker.Allow() {
		return fmt.Errorf("netfabric: cross-host bus circuit open, dropping packet to %s", pkt.DstIP)
	}
	if err := s.inner.Send(pkt); err != nil {
		s.breaker.RecordFailure()
		return err
	}
	s.breaker.RecordSuccess()
	return nil
}
