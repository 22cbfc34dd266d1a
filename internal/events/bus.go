// Package events is the in-process pub/sub fabric between the decision loops
// and their sinks (audit log, notifiers, recorder, metrics, relay).
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/lagbot/internal/domain"
)

// defaultBuffer is the per-subscriber channel depth.
const defaultBuffer = 256

// Bus fans typed events out to subscribers over buffered channels. Publish
// never blocks: when a subscriber's buffer is full the event is dropped for
// that subscriber and counted.
type Bus struct {
	log    *slog.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool

	dropped atomic.Uint64
}

type subscriber struct {
	ch    chan domain.Event
	kinds map[domain.EventKind]struct{} // empty means all kinds
}

// NewBus creates a bus. A non-positive buffer falls back to the default.
func NewBus(logger *slog.Logger, buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		log:    logger.With(slog.String("component", "event_bus")),
		buffer: buffer,
		subs:   make(map[int]*subscriber),
	}
}

// Subscribe registers a listener for the given kinds, or for every event when
// no kinds are named. The returned cancel func detaches the subscriber and
// closes its channel; it is safe to call more than once.
func (b *Bus) Subscribe(kinds ...domain.EventKind) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, b.buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[domain.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Publish delivers evt to every subscriber interested in its kind. Slow
// subscribers lose the event rather than stalling the publisher.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, want := sub.kinds[evt.Kind()]; !want {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			// Subscriber's buffer is full; drop the event.
			b.dropped.Add(1)
			b.log.Warn("dropping event for slow subscriber",
				slog.String("kind", string(evt.Kind())))
		}
	}
}

// Dropped reports how many events have been discarded for slow subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close detaches every subscriber and closes their channels. Publishing after
// Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
