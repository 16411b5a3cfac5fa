package wsproto

import "frameworks/network/internal/peer"

// EventType is the closed set of events the endpoint emits (spec.md §6
// "Events emitted").
type EventType string

const (
	EventPeerConnected    EventType = "PEER_CONNECTED"
	EventPeerDisconnected EventType = "PEER_DISCONNECTED"
	EventMessageReceived  EventType = "MESSAGE_RECEIVED"
	EventHighBackPressure EventType = "HIGH_BACK_PRESSURE"
	EventLowBackPressure  EventType = "LOW_BACK_PRESSURE"
)

// Event is the tagged union of everything the WS endpoint reports to its
// owner (the node or tracker engine). The engine reads these off a single
// channel so all reactions to transport activity are serialised through
// its own event loop.
type Event struct {
	Type    EventType
	Peer    peer.Info
	Address string // the peer's advertised URL, known even after book cleanup
	Payload []byte
	Reason  string
}
