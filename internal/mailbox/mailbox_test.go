package mailbox

import "testing"

func TestSubscribeReceivesNotification(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("player@shardvm.internal")
	defer cancel()

	h.NotifyNewEmail("player@shardvm.internal", "payload")

	select {
	case evt := <-ch:
		if evt.Kind != NewEmail || evt.Email != "payload" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("expected an event to be queued")
	}
}

func TestNotifyWithoutSubscriberIsNoop(t *testing.T) {
	h := NewHub()
	h.NotifyNewEmail("nobody@shardvm.internal", "x") // must not panic
}

func TestCancelRemovesSubscriber(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("a@shardvm.internal")
	cancel()

	h.mu.Lock()
	_, exists := h.subs["a@shardvm.internal"]
	h.mu.Unlock()
	if exists {
		t.Fatal("expected subscriber list to be removed after cancel")
	}
}
