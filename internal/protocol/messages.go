// Package protocol implements the two tagged-union control-message
// adapters from spec.md §4.3: node↔node and tracker↔node. Both speak
// through a pluggable Codec over a wsproto.Endpoint.
package protocol

import (
	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

// Frame tags. The codec uses these to route a decoded payload back to its
// concrete Go type.
const (
	TagBroadcastMessage        = "BroadcastMessage"
	TagUnicastMessage          = "UnicastMessage"
	TagSubscribeRequest        = "SubscribeRequest"
	TagUnsubscribeRequest      = "UnsubscribeRequest"
	TagResendLastRequest       = "ResendLastRequest"
	TagResendFromRequest       = "ResendFromRequest"
	TagResendRangeRequest      = "ResendRangeRequest"
	TagResendResponseResending = "ResendResponseResending"
	TagResendResponseResent    = "ResendResponseResent"
	TagResendResponseNoResend  = "ResendResponseNoResend"
	TagStatusMessage           = "StatusMessage"
	TagInstructionMessage      = "InstructionMessage"
	TagStorageNodesRequest     = "StorageNodesRequest"
	TagStorageNodesResponse    = "StorageNodesResponse"
)

// BroadcastMessage carries a freshly published message fanned out to
// every outbound neighbour of its stream key.
type BroadcastMessage struct {
	RequestID string                `json:"requestId"`
	Message   message.StreamMessage `json:"message"`
}

// UnicastMessage carries a single historical message directly to the
// peer that requested it (a resend response item).
type UnicastMessage struct {
	RequestID string                `json:"requestId"`
	Message   message.StreamMessage `json:"message"`
}

// SubscribeRequest asks the receiver to register the sender as an inbound
// neighbour for Key.
type SubscribeRequest struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
}

// UnsubscribeRequest asks the receiver to drop the sender from both its
// inbound and outbound sets for Key.
type UnsubscribeRequest struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
}

// ResendLastRequest asks for the last Count messages of Key.
type ResendLastRequest struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
	Count     int           `json:"count"`
}

// ResendFromRequest asks for every message of Key from From onward.
type ResendFromRequest struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
	From      message.Ref   `json:"from"`
}

// ResendRangeRequest asks for every message of Key in [From, To].
type ResendRangeRequest struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
	From      message.Ref   `json:"from"`
	To        message.Ref   `json:"to"`
}

// ResendResponseResending announces that a resend for RequestID has begun.
type ResendResponseResending struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
}

// ResendResponseResent announces that a resend for RequestID completed
// having produced at least one message.
type ResendResponseResent struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
}

// ResendResponseNoResend announces that no strategy produced anything
// for RequestID.
type ResendResponseNoResend struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
}

// StreamStatus is one stream key's entry within a StatusMessage.
type StreamStatus struct {
	Key      streamkey.Key `json:"key"`
	Outbound []string      `json:"outbound"`
	Counter  int64         `json:"counter"`
}

// StatusMessage is periodically sent node→tracker, one entry per
// currently subscribed stream key.
type StatusMessage struct {
	Streams []StreamStatus `json:"streams"`
}

// InstructionMessage is sent tracker→node: the addresses this node
// should have as forwarding neighbours for Key, with a per-key strictly
// increasing Counter.
type InstructionMessage struct {
	Key           streamkey.Key `json:"key"`
	NodeAddresses []string      `json:"nodeAddresses"`
	Counter       int64         `json:"counter"`
}

// StorageNodesRequest asks the tracker for storage peers subscribed to Key.
type StorageNodesRequest struct {
	RequestID string        `json:"requestId"`
	Key       streamkey.Key `json:"key"`
}

// StorageNodesResponse answers a StorageNodesRequest.
type StorageNodesResponse struct {
	RequestID     string        `json:"requestId"`
	Key           streamkey.Key `json:"key"`
	NodeAddresses []string      `json:"nodeAddresses"`
}
