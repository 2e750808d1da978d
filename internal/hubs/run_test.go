package hubs

import (
	"testing"
	"time"
)

func TestActiveRunTimedOut(t *testing.T) {
	r := &ActiveRun{StartedAt: time.Now().Add(-RunTimeout - time.Second)}
	if !r.TimedOut(time.Now()) {
		t.Fatal("expected run older than RunTimeout to be timed out")
	}
}

func TestActiveRunNotTimedOut(t *testing.T) {
	r := &ActiveRun{StartedAt: time.Now()}
	if r.TimedOut(time.Now()) {
		t.Fatal("expected a fresh run to not be timed out")
	}
}

func TestProcessRunHubRegisterUnregister(t *testing.T) {
	h := NewProcessRunHub()
	h.Register("vm-1", 7, "curl", time.Now())
	if len(h.Active()) != 1 {
		t.Fatalf("Active() = %d, want 1", len(h.Active()))
	}
	h.Unregister("vm-1", 7)
	if len(h.Active()) != 0 {
		t.Fatalf("Active() after Unregister = %d, want 0", len(h.Active()))
	}
}

func TestActiveRunPushStdoutIncremental(t *testing.T) {
	r := &ActiveRun{stream: make(chan RunStreamMsg, 4)}
	r.PushStdout("ab")
	r.PushStdout("abc")

	msg1 := <-r.stream
	msg2 := <-r.stream
	if msg1.Stdout != "ab" || msg2.Stdout != "c" {
		t.Fatalf("got %q then %q, want \"ab\" then \"c\"", msg1.Stdout, msg2.Stdout)
	}
}
