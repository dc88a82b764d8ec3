package block

import (
	"sync"
)

// Notifier broadcasts "a new block was stored" signals to subscribers.
// Signals coalesce: a subscriber that has not consumed the previous signal
// sees a single pending one, so a slow reader never blocks the producer.
// Subscribers re-read the store to find out what changed.
type Notifier struct {
	mu     sync.Mutex
	subs   map[uint64]chan struct{}
	nextID uint64
	done   chan struct{}
	closed bool
}

// NewNotifier returns an open notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[uint64]chan struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber. The returned func unsubscribes and must
// be called once the subscriber is done.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan struct{}, 1)
	if n.closed {
		return ch, func() {}
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	return ch, func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Notify signals every subscriber without blocking.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close marks the end of the block stream. Close is idempotent.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.done)
	clear(n.subs)
}

// Done is closed once the notifier is closed.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

// Subscribers returns the number of active subscribers.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
