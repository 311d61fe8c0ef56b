package acpsdk

import (
	"iter"
	"sync"
)

// UpdateStream is the consumer end of one turn. Production is push-based
// (the connection's read loop translates notifications and pushes them
// here); consumption is pull-based via Updates. The buffer is unbounded by
// design: a slow consumer accumulates updates instead of exerting
// backpressure on the transport.
//
// The stream always terminates: the turn completing, erroring, or being
// cancelled closes it.
type UpdateStream struct {
	mu     sync.Mutex
	items  []SessionUpdate
	closed bool

	reason StopReason
	err    error

	// signal wakes a blocked consumer; capacity 1 so producers never block.
	signal chan struct{}
}

func newUpdateStream() *UpdateStream {
	return &UpdateStream{signal: make(chan struct{}, 1)}
}

// push enqueues one update. Updates pushed after close are dropped.
func (s *UpdateStream) push(update SessionUpdate) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return
	}

	s.items = append(s.items, update)
	s.mu.Unlock()

	s.wake()
}

// closeWith records the turn's outcome and closes the stream. Already
// buffered updates are still delivered; a consumer blocked on an empty
// stream is released immediately. Idempotent: only the first call records
// the outcome.
func (s *UpdateStream) closeWith(reason StopReason, err error) {
	s.mu.Lock()

	if !s.closed {
		s.closed = true
		s.reason = reason
		s.err = err
	}

	s.mu.Unlock()

	s.wake()
}

func (s *UpdateStream) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// next blocks until an update is available or the stream has closed and
// drained.
func (s *UpdateStream) next() (SessionUpdate, bool) {
	for {
		s.mu.Lock()

		if len(s.items) > 0 {
			update := s.items[0]
			s.items = s.items[1:]
			s.mu.Unlock()

			return update, true
		}

		if s.closed {
			s.mu.Unlock()

			return nil, false
		}

		s.mu.Unlock()

		<-s.signal
	}
}

// Updates returns an iterator over the turn's updates. The iterator ends
// when the turn completes, errors, or is cancelled; check Err and
// StopReason afterwards for the outcome.
func (s *UpdateStream) Updates() iter.Seq[SessionUpdate] {
	return func(yield func(SessionUpdate) bool) {
		for {
			update, ok := s.next()
			if !ok {
				return
			}

			if !yield(update) {
				return
			}
		}
	}
}

// StopReason reports why the turn ended. Valid once Updates has finished.
func (s *UpdateStream) StopReason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reason
}

// Err reports the failure that ended the turn, or nil if it completed or
// was cancelled. Valid once Updates has finished.
func (s *UpdateStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}
