// Package bus implements the generic event fan-out described in
// spec.md §4.7: a blocking "stream" delivery style for iterator-like
// consumers, and a drop-oldest "callback" style for fire-and-forget
// subscribers, both safe to subscribe/unsubscribe concurrently with an
// active publish.
package bus

import (
	"sync"
)

// Bus fans a stream of T values out to an arbitrary number of subscribers.
// The zero value is not usable — construct with New.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[*subscriber[T]]struct{}
}

type subscriber[T any] struct {
	ch       chan T
	callback func(T)

	closedCh  chan struct{}
	closeOnce sync.Once
}

func newSubscriber[T any](queueSize int, callback func(T)) *subscriber[T] {
	return &subscriber[T]{
		ch:       make(chan T, queueSize),
		callback: callback,
		closedCh: make(chan struct{}),
	}
}

func (s *subscriber[T]) close() {
	s.closeOnce.Do(func() { close(s.closedCh) })
}

// New returns an empty Bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[*subscriber[T]]struct{})}
}

// Publish delivers v to every current subscriber. Callback subscribers
// receive it from their own dedicated goroutine (drop-oldest on a full
// queue); stream subscribers receive it by blocking channel send, applying
// backpressure to Publish itself — callers that need Publish to never block
// must size their stream queues generously or prefer the callback style.
//
// The subscriber set is snapshotted under lock and the lock is released
// before any send is attempted, so a subscriber that stalls can never hold
// Publish hostage to the point of blocking Close/unsubscribe: those only
// ever need the lock long enough to remove the map entry (spec.md §4.7,
// §9 — scoped acquisition with guaranteed release on scope exit).
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	subs := make([]*subscriber[T], 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.callback != nil {
			select {
			case s.ch <- v:
			case <-s.closedCh:
			default:
				// Drop-oldest: make room by discarding the stalest queued
				// value, then retry once. If a racing receiver already
				// drained it, the retry send succeeds without loss.
				select {
				case <-s.ch:
				default:
				}
				select {
				case s.ch <- v:
				case <-s.closedCh:
				default:
				}
			}
			continue
		}
		// A stream subscriber's Close always wins a race against a stalled
		// send: closedCh is closed exactly once by unsubscribe, so this
		// select can never block forever even if the consumer stopped
		// reading Values().
		select {
		case s.ch <- v:
		case <-s.closedCh:
		}
	}
}

// Subscribe registers a callback invoked for every published value on its
// own goroutine, with a bounded queue of queueSize that drops the oldest
// queued value when full rather than blocking Publish. A panic inside
// handler is recovered per-invocation, so it cannot take down the
// subscription's goroutine or any other subscriber.
func (b *Bus[T]) Subscribe(handler func(T), queueSize int) (unsubscribe func()) {
	if queueSize <= 0 {
		queueSize = 1
	}
	s := newSubscriber[T](queueSize, handler)

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		for {
			select {
			case v := <-s.ch:
				b.invoke(handler, v)
			case <-s.closedCh:
				// Deliver whatever was already queued before exiting.
				for {
					select {
					case v := <-s.ch:
						b.invoke(handler, v)
					default:
						return
					}
				}
			}
		}
	}()

	return func() { b.unsubscribe(s) }
}

func (b *Bus[T]) invoke(handler func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking subscriber must not take down the bus or any
			// other subscriber; the caller sees nothing but a dropped
			// delivery for this one event.
			_ = r
		}
	}()
	handler(v)
}

// Stream is an iterator-style subscription: Values() yields every published
// value in order, blocking Publish (and thus every other stream
// subscriber's delivery) until this one keeps up within queueSize. Close
// releases the subscription; it is safe to call once, idempotently.
type Stream[T any] struct {
	bus *Bus[T]
	sub *subscriber[T]
}

// Stream registers a blocking, bounded-queue subscription.
func (b *Bus[T]) Stream(queueSize int) *Stream[T] {
	if queueSize <= 0 {
		queueSize = 1
	}
	s := newSubscriber[T](queueSize, nil)
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return &Stream[T]{bus: b, sub: s}
}

// Values returns the channel of published values. It is never closed by
// Close: after Close, no further values are delivered to it, but a caller
// ranging over it directly would hang rather than observe a close. Callers
// should stop reading once they've called Close instead of relying on the
// channel closing out from under them.
func (st *Stream[T]) Values() <-chan T {
	return st.sub.ch
}

// Close unsubscribes the stream. It always completes promptly, even if
// Publish is concurrently blocked trying to send to this subscriber.
func (st *Stream[T]) Close() {
	st.bus.unsubscribe(st.sub)
}

func (b *Bus[T]) unsubscribe(s *subscriber[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
	s.close()
}

// Len returns the current number of live subscribers (for tests).
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
