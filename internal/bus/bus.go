package bus

import (
	"sync"

	"infusioncore/internal/core"
)

// Bus is the non-blocking pub/sub fan-out for core.Event, carrying
// state-transition and calibration notifications to any number of
// collaborators (structured logging, dashboards). Grounded on the
// teacher's internal/bus, generalized from a single trade-channel
// broadcaster to the event type this module actually produces.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan core.Event
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make([]chan core.Event, 0),
	}
}

// Subscribe returns a read-only channel of future events.
func (b *Bus) Subscribe(bufferSize int) <-chan core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan core.Event, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish fans an event out to every subscriber. Non-blocking: a slow or
// full subscriber simply misses the event rather than stalling the core's
// tick goroutine. Satisfies core.EventSink.
func (b *Bus) Publish(ev core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
