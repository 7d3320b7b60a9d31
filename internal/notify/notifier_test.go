package notify

import (
	"testing"
	"time"
)

func TestSubscribeAndBroadcast(t *testing.T) {
	b := NewBroadcaster(4)

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	b.Broadcast(Event{Reason: "goal-enqueued"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Reason != "goal-enqueued" {
				t.Errorf("subscriber %d: expected goal-enqueued, got %q", i, ev.Reason)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBroadcastWithoutSubscribersIsSwallowed(t *testing.T) {
	b := NewBroadcaster(4)
	// Must not panic or block.
	b.Broadcast(Event{Reason: "nobody-listening"})
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(1)
	ch, cancel := b.Subscribe()
	defer cancel()

	// Fill the buffer, then overflow it; neither call may block.
	b.Broadcast(Event{Reason: "first"})
	b.Broadcast(Event{Reason: "second"})

	ev := <-ch
	if ev.Reason != "first" {
		t.Errorf("expected the buffered event, got %q", ev.Reason)
	}
	select {
	case ev := <-ch:
		t.Errorf("expected the overflow event dropped, got %q", ev.Reason)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(4)
	ch, cancel := b.Subscribe()

	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	cancel()
	cancel() // idempotent

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", b.SubscriberCount())
	}
	if _, open := <-ch; open {
		t.Error("expected the channel closed after cancel")
	}
}
