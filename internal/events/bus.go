package events

import (
	"sync"

	"github.com/brandlens/perception-orchestrator/internal/domain"
)

// TopicAll receives events from every execution
const TopicAll = "all"

// subscriberBuffer bounds how many undelivered events a slow subscriber
// may hold before it starts missing events.
const subscriberBuffer = 64

// Bus fans out batch events to per-execution subscribers and to a global
// wildcard set. Delivery is at-most-once and best-effort: a full or
// disconnected subscriber simply misses events. Ordering is guaranteed
// only within a single execution's stream, which has a single writer.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[chan domain.BatchEvent]struct{}
	closed bool
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{
		topics: make(map[string]map[chan domain.BatchEvent]struct{}),
	}
}

// Subscribe registers a subscriber for one execution's events.
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe(executionID string) (<-chan domain.BatchEvent, func()) {
	return b.subscribe(executionID)
}

// SubscribeAll registers a subscriber for events from all executions
func (b *Bus) SubscribeAll() (<-chan domain.BatchEvent, func()) {
	return b.subscribe(TopicAll)
}

func (b *Bus) subscribe(topic string) (<-chan domain.BatchEvent, func()) {
	ch := make(chan domain.BatchEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[chan domain.BatchEvent]struct{})
	}
	b.topics[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.topics[topic]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.topics, topic)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers the event synchronously, scoped subscribers first,
// then the wildcard set. Sends never block the publisher.
func (b *Bus) Publish(event domain.BatchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for ch := range b.topics[event.BatchExecutionID] {
		select {
		case ch <- event:
		default: // subscriber is behind; drop
		}
	}
	for ch := range b.topics[TopicAll] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of subscribers for a topic
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close closes all subscriber channels and rejects further publishes
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.topics {
		for ch := range subs {
			close(ch)
		}
		delete(b.topics, topic)
	}
}
