// Package eventbus fans sweep progress out to interested consumers (metric
// sinks, publishers, progress logging) without coupling them to the driver.
package eventbus

import (
	"sync"
	"time"

	"github.com/latecast/latecast/core/model"
)

// PointEvent announces one computed sweep point.
type PointEvent struct {
	LeaveTime time.Time
	Estimate  model.LatenessEstimate
	Gap       bool
	Index     int
	Total     int
}

// Bus is a publish/subscribe fan-out for sweep progress. Delivery is
// non-blocking: a slow subscriber drops events rather than stalling the
// sweep.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan PointEvent
	closed bool
}

// New creates a new Bus.
func New() *Bus { return &Bus{} }

// Publish sends the event to all subscribers.
func (b *Bus) Publish(e PointEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan PointEvent {
	ch := make(chan PointEvent, 64)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan PointEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if (<-chan PointEvent)(ch) == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and clears the list.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
