package protocol

import "sync"

const subscriberBuffer = 64

// Hub fans events out to subscribers in publish order. Clients embed it to
// implement Subscribe.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *subscriber) detach() {
	s.once.Do(func() { close(s.done) })
}

// Subscribe registers a new subscriber. The returned function detaches it;
// calling it more than once is fine.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		sub.detach()
	} else {
		if h.subs == nil {
			h.subs = make(map[*subscriber]struct{})
		}
		h.subs[sub] = struct{}{}
	}
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.detach()
	}
}

// Publish delivers ev to every current subscriber, blocking on slow ones
// until they read or detach. It returns false once the hub is closed.
func (h *Hub) Publish(ev Event) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
	return true
}

// Close detaches every subscriber; later publishes are dropped
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.detach()
	}
	h.subs = nil
}

// Closed reports whether Close was called
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
