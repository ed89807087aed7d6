package events

import (
	"sync"
)

// Feed fans a stream of snapshots out to subscribers, keeping only the latest
// undelivered value per subscriber. A slow reader never blocks the publisher;
// it skips straight to the newest snapshot.
//
// Callers that need ordering across publications must serialise Publish
// (the owning component does so under its own mutex).
type Feed[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

// NewFeed creates an empty feed
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]chan T)}
}

// Subscribe registers a subscriber primed with initial.
// The returned cancel func is idempotent and closes the channel.
func (f *Feed[T]) Subscribe(initial T) (<-chan T, func()) {
	ch := make(chan T, 1)
	ch <- initial

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish replaces each subscriber's pending value with v
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// Len returns the number of active subscribers
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscriber channel. Later subscriptions receive only their initial value.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
