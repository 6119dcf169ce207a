package events

import "sync"

// Bus fans events out to in-process subscribers without ever blocking a
// publisher: messages to a subscriber with no buffer room are dropped, so a
// slow websocket can never stall the trading path.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[Event]map[int]chan any
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[Event]map[int]chan any)}
}

// Subscribe registers a buffered listener for one event. The returned
// function cancels the subscription and closes the channel; calling it more
// than once is safe.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[e] == nil {
		b.topics[e] = make(map[int]chan any)
	}
	id := b.nextID
	b.nextID++
	ch := make(chan any, buffer)
	b.topics[e][id] = ch

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.topics[e][id]; ok {
				delete(b.topics[e], id)
				close(c)
			}
		})
	}
	return ch, unsub
}

// Publish delivers payload to every subscriber of e that has buffer room.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
