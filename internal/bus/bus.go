// Package bus is the in-process fan-out of engine events to observers such
// as the WebSocket gateway.
//
// Publishing never blocks and never applies back-pressure: each subscriber
// owns a bounded queue, and when it overflows the oldest queued events are
// dropped and replaced, with a lagged(n) notice delivered once the queue has
// room again.
package bus

import (
	"log/slog"
	"sync"
)

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logger.With("component", "bus"),
	}
}

// Subscription is one observer's bounded event queue.
type Subscription struct {
	bus *Bus
	ch  chan Event

	mu     sync.Mutex
	lagged int  // events dropped since the last lagged notice
	closed bool
}

// Subscribe attaches an observer with the given queue size.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{bus: b, ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Events returns the subscriber's receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Publish delivers evt to every subscriber without blocking the caller.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		sub.deliver(evt)
	}
}

// deliver enqueues evt, dropping the oldest queued event on overflow. Once
// room exists again a single lagged notice summarizing the drops is injected
// ahead of normal traffic.
func (s *Subscription) deliver(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.lagged > 0 {
		notice := NewLagged(s.lagged)
		select {
		case s.ch <- notice:
			s.lagged = 0
		default:
		}
	}

	select {
	case s.ch <- evt:
		return
	default:
	}

	// Queue full: drop the oldest and retry once.
	select {
	case <-s.ch:
		s.lagged++
	default:
	}
	select {
	case s.ch <- evt:
	default:
		s.lagged++
	}
}
