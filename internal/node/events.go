package node

import (
	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

// EventType is the closed set of events the node engine emits to ops
// handlers and metrics collectors (spec.md §4.5).
type EventType string

const (
	EventNodeSubscribed   EventType = "NODE_SUBSCRIBED"
	EventNodeUnsubscribed EventType = "NODE_UNSUBSCRIBED"
	EventNodeDisconnected EventType = "NODE_DISCONNECTED"
	EventMessageReceived  EventType = "MESSAGE_RECEIVED"
)

// Event is the tagged union the engine publishes on its Bus.
type Event struct {
	Type    EventType
	Peer    string
	Address string // advertised URL, set on NODE_DISCONNECTED
	Key     streamkey.Key
	Message message.StreamMessage
}
