package bus

import (
	"strings"
	"sync"
)

// Bus is the in-process notification channel between the coordinator and
// whatever observes it (the shell, or a test harness). Subscribers filter
// by kind prefix; publishing never blocks.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*Subscription
}

// Subscription is a live bus subscription. Events arrive on C until
// Cancel is called.
type Subscription struct {
	C      <-chan Event
	ch     chan Event
	prefix string
	cancel func()
}

// Cancel removes the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscribe registers interest in events whose Kind starts with prefix.
// bufSize bounds how many undelivered events are held before newer ones
// are dropped for this subscriber.
func (b *Bus) Subscribe(prefix string, bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch, prefix: prefix}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	sub.cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return sub
}

// Publish delivers evt to every matching subscriber. A subscriber with a
// full buffer misses the event rather than stalling the publisher.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}
