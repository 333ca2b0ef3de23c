// Package eventbus carries small in-process notifications from the
// scheduling engine to whoever cares (notifications, logging, status),
// without the engine knowing its audience.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one notification. Data holds a typed payload from events.go,
// keyed by Type. Payloads should stay small and JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks; a subscriber
// that stops draining its buffer loses events rather than stalling the
// publisher.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	// Dropped counts events discarded because a subscriber's buffer was
	// full. Monotonic, never reset.
	Dropped() uint64
}

// New returns an in-memory Bus. It runs no goroutines of its own; delivery
// happens on the publisher's stack.
func New() Bus {
	return &fanout{subs: map[uint64]chan Event{}}
}

type fanout struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Snapshot the subscriber set first; sends happen without the lock so
	// Subscribe and Unsubscribe never wait on a slow consumer.
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		b.deliver(ch, e)
	}
}

// deliver attempts one non-blocking send. The recover covers a subscriber
// closing its channel between the snapshot and the send; that race loses
// the event but must not take down the publisher.
func (b *fanout) deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
		b.dropped.Add(1)
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *fanout) Dropped() uint64 { return b.dropped.Load() }
