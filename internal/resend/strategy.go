package resend

import (
	"context"
	"errors"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

// Errors from spec.md §7 "Resend errors".
var (
	ErrStrategyError   = errors.New("resend: strategy failed")
	ErrStrategyTimeout = errors.New("resend: strategy timed out")
)

// Kind is the shape of a resend request (spec.md §4.3 node↔node
// ResendLastRequest/ResendFromRequest/ResendRangeRequest).
type Kind int

const (
	KindLast Kind = iota
	KindFrom
	KindRange
)

// Request is the strategy-facing view of a resend ask, independent of
// the wire request type it was decoded from.
type Request struct {
	Kind      Kind
	RequestID string
	Key       streamkey.Key
	Count     int         // KindLast
	From      message.Ref // KindFrom, KindRange
	To        message.Ref // KindRange
}

// Strategy is a pluggable source of historical messages (spec.md §4.7:
// local in-memory storage, ask-one-storage-peer, ask-many-storage-peers).
type Strategy interface {
	Name() string
	Resend(ctx context.Context, req Request) (*Sequence, error)
}
