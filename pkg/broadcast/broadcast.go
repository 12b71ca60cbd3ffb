package broadcast

import (
	"context"
	"sync"
)

// Message wraps a payload of type T.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the
	// subscription ends.
	Receive(ctx context.Context) <-chan Message[T]

	// Close ends the subscription. It is idempotent.
	Close() error
}

// Broadcaster fans messages out to every live subscriber.
// Delivery is best effort: a subscriber whose buffer is full misses the
// message instead of stalling the publisher.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber that lives until ctx is done or
	// Close is called on it.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast publishes msg to all subscribers.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close shuts the broadcaster down and closes all subscribers.
	Close() error
}

type subscriber[T any] struct {
	ch      chan Message[T]
	mu      sync.RWMutex
	closed  bool
	onClose func()
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan Message[T], max(bufferSize, 1))}
}

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

// send delivers without blocking and reports whether msg was accepted.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func closedSubscriber[T any]() *subscriber[T] {
	sub := newSubscriber[T](1)
	_ = sub.Close()
	return sub
}
