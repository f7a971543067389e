package bus

import (
	"errors"
	"sync"

	"github.com/tanq16/reload-entangle/internal/common"
)

var ErrClosed = errors.New("broadcast stream closed")

type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func New() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// Publish enqueues msg on every subscription. It never waits for a
// subscriber to consume.
func (b *Broadcaster) Publish(msg common.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs {
		sub.push(msg)
	}
	return nil
}

// Subscribe starts a feed that observes every message published from now on.
// Subscribing to a closed broadcaster returns an already terminated feed.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := newSubscription(b)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.end()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close ends every feed after it has delivered what was already queued.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.end()
	}
	clear(b.subs)
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Subscription is one independent consumer of the stream. Its queue is
// unbounded so a slow consumer never stalls the publisher.
type Subscription struct {
	b      *Broadcaster
	mu     sync.Mutex
	queue  []common.Message
	ended  bool
	signal chan struct{}
	done   chan struct{}
	out    chan common.Message
	once   sync.Once
}

func newSubscription(b *Broadcaster) *Subscription {
	s := &Subscription{
		b:      b,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan common.Message),
	}
	go s.pump()
	return s
}

// C is closed when the feed terminates.
func (s *Subscription) C() <-chan common.Message {
	return s.out
}

// Close stops the feed immediately, dropping anything still queued.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.done)
	})
}

func (s *Subscription) push(msg common.Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.signal:
		case <-s.done:
			return
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				ended := s.ended
				s.mu.Unlock()
				if ended {
					return
				}
				break
			}
			msg := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}
