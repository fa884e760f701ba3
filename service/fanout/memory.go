package fanout

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker for tests and single-node runs.
// Several gateway instances can share one MemoryBroker to simulate the
// cross-process channel. Delivery is synchronous in publish order, which
// gives the same per-channel ordering as the real brokers.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[int]*memorySubscription
	nextID int
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[int]*memorySubscription)}
}

func (b *MemoryBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	targets := make([]*memorySubscription, 0, len(b.subs[channel]))
	for _, s := range b.subs[channel] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.h(channel, payload)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string, h Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]*memorySubscription)
	}
	b.nextID++
	s := &memorySubscription{b: b, channel: channel, id: b.nextID, h: h}
	b.subs[channel][s.id] = s
	return s, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]map[int]*memorySubscription)
	b.closed = true
	return nil
}

type memorySubscription struct {
	b       *MemoryBroker
	channel string
	id      int
	h       Handler
}

func (s *memorySubscription) Unsubscribe() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if m := s.b.subs[s.channel]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(s.b.subs, s.channel)
		}
	}
	return nil
}
