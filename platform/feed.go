package platform

import "sync"

type subscriber struct {
	kind ReactionKind
	ch   chan ReactionEvent
	done chan struct{}
}

// Feed - Fans reaction events out to every subscriber of the matching kind
type Feed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscriber
	buffer int
}

// NewFeed - Create a feed with a per-subscriber buffer
func NewFeed(buffer int) *Feed {
	return &Feed{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe - Receive events of one kind until the returned cancel func is called.
// The channel is never closed, consumers stop on their own context.
func (f *Feed) Subscribe(kind ReactionKind) (<-chan ReactionEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	sub := &subscriber{kind: kind, ch: make(chan ReactionEvent, f.buffer), done: make(chan struct{})}
	f.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.done)
		})
	}
}

// Publish - Deliver an event, blocking on full subscribers until they read or unsubscribe
func (f *Feed) Publish(ev ReactionEvent) {
	f.mu.RLock()
	targets := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		if s.kind == ev.Kind {
			targets = append(targets, s)
		}
	}
	f.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- ev:
		case <-s.done:
		}
	}
}

// Subscribers - Number of active subscribers
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
