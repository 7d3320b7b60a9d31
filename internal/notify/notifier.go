// Package notify provides best-effort change notifications. Consumers
// subscribe explicitly; a slow or absent consumer never blocks or fails
// the publisher.
package notify

import (
	"sync"

	"goalpilot/internal/logging"
)

// Event describes a state change.
type Event struct {
	Reason  string      `json:"reason"`
	Payload interface{} `json:"payload,omitempty"`
}

// Broadcaster fans Events out to subscribers over bounded channels.
// Broadcast is fire-and-forget: if a subscriber's buffer is full the
// event is dropped for that subscriber.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

// NewBroadcaster creates a Broadcaster whose subscriber channels hold up
// to buffer pending events each.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new consumer. The returned cancel function
// removes the subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Broadcast delivers ev to every subscriber without blocking.
func (b *Broadcaster) Broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop rather than block the loop.
			logging.Get(logging.CategoryNotify).Warn("dropped event %q for slow subscriber", ev.Reason)
		}
	}
	logging.Get(logging.CategoryNotify).Debug("broadcast %q to %d subscribers", ev.Reason, len(b.subs))
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
