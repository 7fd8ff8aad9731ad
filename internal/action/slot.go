package action

import "sync"

// slot is a single-value, latest-wins handoff between one producer and one
// consumer. Send never blocks and never fails; an unconsumed value is simply
// overwritten. It replaces a queue on purpose: the consumer only ever wants
// the newest value, and a queue would reintroduce backpressure and staleness.
type slot[T any] struct {
	mu     sync.Mutex
	value  T
	ready  bool
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Send stores v as the pending value, reporting whether an unconsumed value
// was overwritten. Sends after Close are dropped.
func (s *slot[T]) Send(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	overwrote := s.ready
	s.value = v
	s.ready = true
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return overwrote
}

// Recv blocks until a value is pending or the slot is closed. After Close it
// still hands out one final pending value before reporting false, so a tail
// value sent just before teardown is not lost.
func (s *slot[T]) Recv() (T, bool) {
	for {
		s.mu.Lock()
		if s.ready {
			v := s.value
			var zero T
			s.value = zero
			s.ready = false
			s.mu.Unlock()
			return v, true
		}
		if s.closed {
			s.mu.Unlock()
			var zero T
			return zero, false
		}
		s.mu.Unlock()
		select {
		case <-s.wake:
		case <-s.done:
		}
	}
}

// HasPending reports whether an unconsumed value is waiting.
func (s *slot[T]) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Peek returns the pending value without consuming it.
func (s *slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Close drops the producer side. Idempotent.
func (s *slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// Done is closed once the producer side is dropped.
func (s *slot[T]) Done() <-chan struct{} {
	return s.done
}
