package reset

import "sync"

// subscriberBufferSize is the channel buffer for each event subscriber.
// Transitions are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans out per-engine reset state transitions to subscribers, for
// live observation of recovery over SSE. It is safe for concurrent use.
//
// Topics are keyed by engine name and live as long as the broker: an
// engine can be reset any number of times, so topics never close on
// their own, only when the broker shuts down.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	closed bool
}

type eventTopic struct {
	subs   map[int]chan string
	nextID int
}

// NewBroker creates a new reset event broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*eventTopic)}
}

// Subscribe returns a channel that receives reset state transitions for
// the given engine and an unsubscribe function. After CloseAll, the
// returned channel is immediately closed.
func (b *Broker) Subscribe(engineName string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	t, ok := b.topics[engineName]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan string)}
		b.topics[engineName] = t
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish sends an event line to all subscribers of the given engine.
// Events are dropped for subscribers whose buffers are full so a slow
// consumer can never stall a reset in flight.
func (b *Broker) Publish(engineName, event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[engineName]
	if !ok || b.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// CloseAll shuts the broker down, closing every subscriber channel.
// Future Subscribe calls return a closed channel.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, t := range b.topics {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
	}
}
