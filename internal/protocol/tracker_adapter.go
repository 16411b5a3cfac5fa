package protocol

import (
	"frameworks/network/internal/streamkey"
)

// TrackerAdapter encodes and sends the tracker↔node control messages from
// spec.md §4.3 over a wsproto.Endpoint.
type TrackerAdapter struct {
	endpoint sender
	codec    Codec
}

// NewTrackerAdapter constructs a tracker↔node adapter.
func NewTrackerAdapter(endpoint sender, codec Codec) *TrackerAdapter {
	if codec == nil {
		codec = NewJSONCodec()
	}
	return &TrackerAdapter{endpoint: endpoint, codec: codec}
}

func (a *TrackerAdapter) sendEncoded(peerID string, v any) error {
	frame, err := a.codec.Encode(v)
	if err != nil {
		return err
	}
	return a.endpoint.Send(peerID, frame)
}

// SendStatus sends a node's current status to its tracker.
func (a *TrackerAdapter) SendStatus(trackerID string, status StatusMessage) error {
	return a.sendEncoded(trackerID, status)
}

// SendInstruction sends a tracker's routing instruction to a node.
func (a *TrackerAdapter) SendInstruction(nodeID string, key streamkey.Key, nodeAddresses []string, counter int64) error {
	return a.sendEncoded(nodeID, InstructionMessage{Key: key, NodeAddresses: nodeAddresses, Counter: counter})
}

// SendStorageNodesRequest asks the tracker for storage peers of key.
func (a *TrackerAdapter) SendStorageNodesRequest(trackerID string, requestID string, key streamkey.Key) error {
	return a.sendEncoded(trackerID, StorageNodesRequest{RequestID: mintID(requestID), Key: key})
}

// SendStorageNodesResponse answers a StorageNodesRequest.
func (a *TrackerAdapter) SendStorageNodesResponse(nodeID string, requestID string, key streamkey.Key, nodeAddresses []string) error {
	return a.sendEncoded(nodeID, StorageNodesResponse{RequestID: requestID, Key: key, NodeAddresses: nodeAddresses})
}

// Decode decodes an inbound frame into one of the tracker↔node message types.
func (a *TrackerAdapter) Decode(frame []byte) (any, error) {
	return a.codec.Decode(frame)
}
