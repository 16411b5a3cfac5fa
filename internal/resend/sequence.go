// Package resend implements the resend handler from spec.md §4.7
// (component C7): an ordered list of pluggable strategies, a lazy
// sequence abstraction with pause/resume/cancel, and per-source
// bookkeeping of in-flight requests.
package resend

import (
	"context"
	"sync"

	"frameworks/network/internal/message"
)

// Sequence is the lazy Message sequence from spec.md §9 "Streams → lazy
// sequences": a producer pushes items (Emit/Fail/Close) while a consumer
// pulls them (Next) and may Pause/Resume/Cancel at any time. It is safe
// for one producer and one consumer goroutine to use concurrently.
type Sequence struct {
	items chan message.StreamMessage
	errc  chan error
	done  chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

// NewSequence constructs an empty, unpaused sequence.
func NewSequence() *Sequence {
	return &Sequence{
		items:    make(chan message.StreamMessage, 16),
		errc:     make(chan error, 1),
		done:     make(chan struct{}),
		resumeCh: make(chan struct{}),
	}
}

// Emit delivers msg to the consumer, blocking while the sequence is
// paused. It returns false if the sequence has already been closed or
// cancelled, in which case the producer must stop.
func (s *Sequence) Emit(msg message.StreamMessage) bool {
	if !s.waitIfPaused() {
		return false
	}
	select {
	case s.items <- msg:
		return true
	case <-s.done:
		return false
	}
}

// Fail records a terminal error for the consumer and closes the
// sequence.
func (s *Sequence) Fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
	s.Close()
}

// Close ends the sequence with no error; idempotent.
func (s *Sequence) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Cancel is the consumer-side counterpart of Close: it tells the
// producer to stop (Emit starts returning false) and unblocks any
// pending Next call.
func (s *Sequence) Cancel() {
	s.Close()
}

// Next blocks until an item, an error, or the end of the sequence is
// available, or ctx is done. ok is false once the sequence is exhausted
// with no error.
func (s *Sequence) Next(ctx context.Context) (msg message.StreamMessage, err error, ok bool) {
	select {
	case msg, open := <-s.items:
		if open {
			return msg, nil, true
		}
	default:
	}

	select {
	case msg = <-s.items:
		return msg, nil, true
	case err = <-s.errc:
		return message.StreamMessage{}, err, false
	case <-s.done:
		select {
		case msg = <-s.items:
			return msg, nil, true
		default:
		}
		return message.StreamMessage{}, nil, false
	case <-ctx.Done():
		return message.StreamMessage{}, ctx.Err(), false
	}
}

// Pause suspends delivery: future Emit calls block until Resume.
func (s *Sequence) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.paused = true
		s.resumeCh = make(chan struct{})
	}
}

// Resume releases any Emit call blocked by a prior Pause.
func (s *Sequence) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.paused = false
		close(s.resumeCh)
	}
}

// waitIfPaused blocks the calling (producer) goroutine while paused,
// returning false if the sequence is cancelled/closed meanwhile.
func (s *Sequence) waitIfPaused() bool {
	s.mu.Lock()
	paused := s.paused
	resumeCh := s.resumeCh
	s.mu.Unlock()
	if !paused {
		return true
	}
	select {
	case <-resumeCh:
		return true
	case <-s.done:
		return false
	}
}
