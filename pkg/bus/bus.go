// Package bus provides in-process publish/subscribe fan-out of change
// notifications to live subscribers. Delivery is best-effort and unpersisted:
// a subscriber attached after a publish never sees it.
package bus

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event is one named change notification with a JSON payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// Subscription is one live subscriber's receive handle. C is closed when the
// subscription is removed, either by Unsubscribe or by the broadcaster
// evicting a subscriber that stopped draining.
type Subscription struct {
	id uint64
	C  <-chan Event
}

// Broadcaster owns the subscriber set and fans published events out to every
// live subscription. Safe for concurrent publishers and subscriber churn.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Event
	closed bool
	buffer int
	logger *slog.Logger
}

// New creates a Broadcaster whose subscribers buffer up to buffer events.
func New(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new live subscriber.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return &Subscription{C: ch}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	return &Subscription{id: id, C: ch}
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call more
// than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(ch)
	}
}

// Publish marshals payload and delivers the event to every subscriber in
// publish order. A subscriber whose buffer is full is evicted so one stuck
// consumer cannot stall the rest.
func (b *Broadcaster) Publish(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("failed to marshal broadcast payload", "event", name, "error", err)
		return
	}
	ev := Event{Name: name, Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("evicting slow subscriber", "event", name)
			delete(b.subs, id)
			close(ch)
		}
	}
}

// SubscriberCount reports the current number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Shutdown removes every subscriber and rejects future subscriptions.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
