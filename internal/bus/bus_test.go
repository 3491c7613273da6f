package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("bridge.", 10)
	defer sub.Cancel()

	b.Publish(Event{Kind: "bridge.connected", Timestamp: time.Now(), Payload: "telegram"})

	select {
	case evt := <-sub.C:
		if evt.Kind != "bridge.connected" {
			t.Errorf("got kind %q, want bridge.connected", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	sub := b.Subscribe("session.", 10)
	defer sub.Cancel()

	b.Publish(Event{Kind: "bridge.connected"})
	b.Publish(Event{Kind: "session.state_changed"})

	select {
	case evt := <-sub.C:
		if evt.Kind != "session.state_changed" {
			t.Errorf("got kind %q, want session.state_changed", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-sub.C:
		t.Errorf("unexpected second event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancel(t *testing.T) {
	b := New()
	sub := b.Subscribe("bridge.", 10)
	sub.Cancel()
	sub.Cancel() // idempotent

	b.Publish(Event{Kind: "bridge.connected"})

	select {
	case evt := <-sub.C:
		t.Errorf("received event after cancel: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe("bridge.", 1)
	defer sub.Cancel()

	b.Publish(Event{Kind: "bridge.one"})
	// Buffer is full; this one is dropped instead of blocking.
	b.Publish(Event{Kind: "bridge.two"})

	evt := <-sub.C
	if evt.Kind != "bridge.one" {
		t.Errorf("got %q, want bridge.one", evt.Kind)
	}
	select {
	case evt := <-sub.C:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
