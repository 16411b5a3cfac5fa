package resend

import (
	"context"
	"sort"
	"sync"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

// InMemoryStore is the local-storage resend strategy: an in-process,
// per-stream-key buffer of recently published messages. It is the
// "local in-memory storage" arm from spec.md §4.7 — explicitly kept out
// of core scope as a pluggable collaborator, so this implementation is
// deliberately a plain slice rather than reaching for a third-party
// cache: it exists only to exercise the Strategy contract in tests and
// small single-process deployments, never as the system's durable store.
type InMemoryStore struct {
	mu    sync.RWMutex
	byKey map[streamkey.Key][]message.StreamMessage
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byKey: make(map[streamkey.Key][]message.StreamMessage)}
}

// Append records msg, keeping each key's buffer sorted by (timestamp,
// sequenceNumber).
func (s *InMemoryStore) Append(msg message.StreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := msg.StreamKey()
	msgs := s.byKey[key]
	idx := sort.Search(len(msgs), func(i int) bool { return msg.ID.Ref().Less(msgs[i].ID.Ref()) })
	msgs = append(msgs, message.StreamMessage{})
	copy(msgs[idx+1:], msgs[idx:])
	msgs[idx] = msg
	s.byKey[key] = msgs
}

// Name identifies the strategy for logging.
func (s *InMemoryStore) Name() string { return "in-memory" }

// Resend implements Strategy.
func (s *InMemoryStore) Resend(ctx context.Context, req Request) (*Sequence, error) {
	s.mu.RLock()
	msgs := append([]message.StreamMessage(nil), s.byKey[req.Key]...)
	s.mu.RUnlock()

	selected := selectMessages(msgs, req)

	seq := NewSequence()
	go func() {
		defer seq.Close()
		for _, m := range selected {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if !seq.Emit(m) {
				return
			}
		}
	}()
	return seq, nil
}

func selectMessages(msgs []message.StreamMessage, req Request) []message.StreamMessage {
	switch req.Kind {
	case KindLast:
		n := req.Count
		if n <= 0 {
			return nil
		}
		if n > len(msgs) {
			n = len(msgs)
		}
		return msgs[len(msgs)-n:]
	case KindFrom:
		out := make([]message.StreamMessage, 0, len(msgs))
		for _, m := range msgs {
			ref := m.ID.Ref()
			if ref.Equal(req.From) || req.From.Less(ref) {
				out = append(out, m)
			}
		}
		return out
	case KindRange:
		out := make([]message.StreamMessage, 0, len(msgs))
		for _, m := range msgs {
			ref := m.ID.Ref()
			if (ref.Equal(req.From) || req.From.Less(ref)) && (ref.Equal(req.To) || ref.Less(req.To)) {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
