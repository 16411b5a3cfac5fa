package protocol

import (
	"github.com/google/uuid"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

// sender is the subset of wsproto.Endpoint the adapters depend on. Kept
// narrow so the adapters can be unit-tested with a fake.
type sender interface {
	Send(peerID string, frame []byte) error
}

// NodeAdapter encodes and sends the node↔node control messages from
// spec.md §4.3 over a wsproto.Endpoint.
type NodeAdapter struct {
	endpoint sender
	codec    Codec
}

// NewNodeAdapter constructs a node↔node adapter.
func NewNodeAdapter(endpoint sender, codec Codec) *NodeAdapter {
	if codec == nil {
		codec = NewJSONCodec()
	}
	return &NodeAdapter{endpoint: endpoint, codec: codec}
}

func mintID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (a *NodeAdapter) sendEncoded(peerID string, v any) error {
	frame, err := a.codec.Encode(v)
	if err != nil {
		return err
	}
	return a.endpoint.Send(peerID, frame)
}

// SendBroadcast fans a freshly published message out to peerID.
func (a *NodeAdapter) SendBroadcast(peerID string, requestID string, msg message.StreamMessage) error {
	return a.sendEncoded(peerID, BroadcastMessage{RequestID: mintID(requestID), Message: msg})
}

// SendUnicast delivers a single historical message directly to peerID.
func (a *NodeAdapter) SendUnicast(peerID string, requestID string, msg message.StreamMessage) error {
	return a.sendEncoded(peerID, UnicastMessage{RequestID: mintID(requestID), Message: msg})
}

// SendSubscribe asks peerID to register us as inbound for key.
func (a *NodeAdapter) SendSubscribe(peerID string, requestID string, key streamkey.Key) error {
	return a.sendEncoded(peerID, SubscribeRequest{RequestID: mintID(requestID), Key: key})
}

// SendUnsubscribe asks peerID to drop us for key.
func (a *NodeAdapter) SendUnsubscribe(peerID string, requestID string, key streamkey.Key) error {
	return a.sendEncoded(peerID, UnsubscribeRequest{RequestID: mintID(requestID), Key: key})
}

// SendResendLast requests the last count messages of key from peerID.
func (a *NodeAdapter) SendResendLast(peerID string, requestID string, key streamkey.Key, count int) error {
	return a.sendEncoded(peerID, ResendLastRequest{RequestID: mintID(requestID), Key: key, Count: count})
}

// SendResendFrom requests every message of key from from onward.
func (a *NodeAdapter) SendResendFrom(peerID string, requestID string, key streamkey.Key, from message.Ref) error {
	return a.sendEncoded(peerID, ResendFromRequest{RequestID: mintID(requestID), Key: key, From: from})
}

// SendResendRange requests every message of key within [from, to].
func (a *NodeAdapter) SendResendRange(peerID string, requestID string, key streamkey.Key, from, to message.Ref) error {
	return a.sendEncoded(peerID, ResendRangeRequest{RequestID: mintID(requestID), Key: key, From: from, To: to})
}

// SendResendResponseResending announces that a resend has begun.
func (a *NodeAdapter) SendResendResponseResending(peerID string, requestID string, key streamkey.Key) error {
	return a.sendEncoded(peerID, ResendResponseResending{RequestID: requestID, Key: key})
}

// SendResendResponseResent announces that a resend completed successfully.
func (a *NodeAdapter) SendResendResponseResent(peerID string, requestID string, key streamkey.Key) error {
	return a.sendEncoded(peerID, ResendResponseResent{RequestID: requestID, Key: key})
}

// SendResendResponseNoResend announces that no strategy produced anything.
func (a *NodeAdapter) SendResendResponseNoResend(peerID string, requestID string, key streamkey.Key) error {
	return a.sendEncoded(peerID, ResendResponseNoResend{RequestID: requestID, Key: key})
}

// Decode decodes an inbound frame into one of the node↔node message types.
func (a *NodeAdapter) Decode(frame []byte) (any, error) {
	return a.codec.Decode(frame)
}
