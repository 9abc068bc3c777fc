package events

import "sync"

// Topic names an event stream on the bus. Packages that publish declare
// their topics and payload types next to each other, so subscribers match
// on constants rather than ad hoc strings.
type Topic string

type subscriber struct {
	id int
	fn func(payload any)
}

// Bus is a minimal publish/subscribe fan-out. Subscribers for a topic are
// invoked in subscription order, synchronously on the publishing goroutine.
// Handlers must therefore be quick and must not publish back onto the same
// topic.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[Topic][]subscriber
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscriber)}
}

// Subscribe registers fn for topic and returns a cancel function that
// removes the subscription. Cancel is safe to call more than once.
func (b *Bus) Subscribe(topic Topic, fn func(payload any)) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[topic] = append(b.subs[topic], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, sub := range list {
				if sub.id == id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers payload to every subscriber of topic in subscription
// order. Publishing to a topic with no subscribers is a no-op.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	list := b.subs[topic]
	subs := make([]subscriber, len(list))
	copy(subs, list)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(payload)
	}
}
