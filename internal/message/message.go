// Package message defines the wire-level message identity and the
// ordering rules used for deduplication across the overlay.
package message

import (
	"frameworks/network/internal/streamkey"
)

// Ref is a (timestamp, sequenceNumber) pair, the minimal ordering key
// within a (publisherId, msgChainId) chain.
type Ref struct {
	Timestamp      int64
	SequenceNumber int64
}

// Less reports whether r sorts strictly before o in the lexicographic
// (timestamp, sequenceNumber) order.
func (r Ref) Less(o Ref) bool {
	if r.Timestamp != o.Timestamp {
		return r.Timestamp < o.Timestamp
	}
	return r.SequenceNumber < o.SequenceNumber
}

// Equal reports whether r and o identify the same point in a chain.
func (r Ref) Equal(o Ref) bool {
	return r.Timestamp == o.Timestamp && r.SequenceNumber == o.SequenceNumber
}

// ChainKey identifies a (publisherId, msgChainId) dedup chain.
type ChainKey struct {
	PublisherID string
	MsgChainID  string
}

// ID is the full message identifier from spec.md §3.
type ID struct {
	Key            streamkey.Key
	Timestamp      int64
	SequenceNumber int64
	PublisherID    string
	MsgChainID     string
}

// Ref extracts the ordering reference from an ID.
func (id ID) Ref() Ref {
	return Ref{Timestamp: id.Timestamp, SequenceNumber: id.SequenceNumber}
}

// Chain extracts the dedup chain key from an ID.
func (id ID) Chain() ChainKey {
	return ChainKey{PublisherID: id.PublisherID, MsgChainID: id.MsgChainID}
}

// StreamMessage is a full published message: identity, an optional
// previous-message reference used only for dedup/gap bookkeeping, opaque
// content, and an opaque signature envelope the core never inspects.
type StreamMessage struct {
	ID        ID
	PrevRef   *Ref
	Content   []byte
	Signature []byte
}

// StreamKey is a convenience accessor for the message's stream key.
func (m StreamMessage) StreamKey() streamkey.Key {
	return m.ID.Key
}
