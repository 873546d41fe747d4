package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

const memorySubscriptionBuffer = 256

// MemoryBus is an in-memory implementation of MessageBus.
// It supports wildcards but does not persist messages.
type MemoryBus struct {
	mu            sync.RWMutex
	subscriptions map[string][]*memorySubscription
	closed        atomic.Bool
	dropped       atomic.Uint64
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscriptions: make(map[string][]*memorySubscription),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	msg := &Message{
		Subject: subject,
		Data:    append([]byte(nil), data...),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := make(map[*memorySubscription]struct{})
	for pattern, subs := range b.subscriptions {
		if !MatchSubject(pattern, subject) {
			continue
		}
		for _, sub := range subs {
			if sub.closed.Load() {
				continue
			}
			// A grouped subscription may match through more than one subject.
			if _, seen := delivered[sub]; seen {
				continue
			}
			delivered[sub] = struct{}{}
			// Non-blocking send to avoid deadlocks
			select {
			case sub.messages <- msg:
			default:
				b.dropped.Add(1)
			}
		}
	}

	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	return b.SubscribeMany(ctx, []string{subject}, handler)
}

// SubscribeMany delivers every subject through one queue, so messages keep
// the order in which they were published whatever their subject.
func (b *MemoryBus) SubscribeMany(ctx context.Context, subjects []string, handler MessageHandler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if len(subjects) == 0 {
		return nil, errNoSubjects
	}

	sub := &memorySubscription{
		id:       ulid.Make().String(),
		subjects: append([]string(nil), subjects...),
		messages: make(chan *Message, memorySubscriptionBuffer),
		handler:  handler,
		bus:      b,
		stop:     make(chan struct{}),
	}

	b.mu.Lock()
	for _, subject := range sub.subjects {
		b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	}
	b.mu.Unlock()

	go sub.run(ctx)

	return sub, nil
}

// Dropped returns how many messages were discarded because a subscriber's
// buffer was full.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.shutdown()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)

	return nil
}

// memorySubscription implements Subscription for MemoryBus.
type memorySubscription struct {
	id       string
	subjects []string
	messages chan *Message
	handler  MessageHandler
	bus      *MemoryBus
	closed   atomic.Bool
	stop     chan struct{}
	once     sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	if s.closed.Load() {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	for _, subject := range s.subjects {
		subs := s.bus.subscriptions[subject]
		for i, sub := range subs {
			if sub.id == s.id {
				s.bus.subscriptions[subject] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
	s.shutdown()

	return nil
}

func (s *memorySubscription) Subject() string {
	return strings.Join(s.subjects, ",")
}

func (s *memorySubscription) shutdown() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.stop)
	})
}

func (s *memorySubscription) run(ctx context.Context) {
	for {
		select {
		case msg := <-s.messages:
			s.handler(msg)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// MatchSubject checks if a subject matches a pattern with wildcards.
// Supports "*" for single token and ">" for multiple tokens.
func MatchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	subjectParts := strings.Split(subject, ".")

	pi, si := 0, 0
	for pi < len(patternParts) && si < len(subjectParts) {
		switch patternParts[pi] {
		case "*":
			pi++
			si++
		case ">":
			// Matches one or more tokens (must be last)
			return true
		default:
			if patternParts[pi] != subjectParts[si] {
				return false
			}
			pi++
			si++
		}
	}

	return pi == len(patternParts) && si == len(subjectParts)
}
