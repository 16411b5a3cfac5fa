package protocol

import (
	"testing"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

func mustStreamMessage(key streamkey.Key) message.StreamMessage {
	return message.StreamMessage{
		ID: message.ID{
			Key:            key,
			Timestamp:      1,
			SequenceNumber: 0,
			PublisherID:    "pub",
			MsgChainID:     "chain",
		},
		Content: []byte("payload"),
	}
}

type fakeSender struct {
	lastPeerID string
	lastFrame  []byte
	sendErr    error
}

func (f *fakeSender) Send(peerID string, frame []byte) error {
	f.lastPeerID = peerID
	f.lastFrame = frame
	return f.sendErr
}

func TestNodeAdapter_SendSubscribeMintsRequestID(t *testing.T) {
	fs := &fakeSender{}
	codec := NewJSONCodec()
	adapter := NewNodeAdapter(fs, codec)
	key := mustKey(t, "s", 0)

	if err := adapter.SendSubscribe("peer-b", "", key); err != nil {
		t.Fatalf("SendSubscribe: %v", err)
	}

	decoded, err := codec.Decode(fs.lastFrame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	req, ok := decoded.(SubscribeRequest)
	if !ok {
		t.Fatalf("expected SubscribeRequest, got %T", decoded)
	}
	if req.RequestID == "" {
		t.Fatalf("expected a minted request id")
	}
	if fs.lastPeerID != "peer-b" {
		t.Fatalf("expected send to peer-b, got %q", fs.lastPeerID)
	}
}

func TestNodeAdapter_SendBroadcastPreservesExplicitRequestID(t *testing.T) {
	fs := &fakeSender{}
	codec := NewJSONCodec()
	adapter := NewNodeAdapter(fs, codec)
	key := mustKey(t, "s", 0)

	err := adapter.SendBroadcast("peer-b", "fixed-id", mustStreamMessage(key))
	if err != nil {
		t.Fatalf("SendBroadcast: %v", err)
	}

	decoded, err := codec.Decode(fs.lastFrame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	msg, ok := decoded.(BroadcastMessage)
	if !ok {
		t.Fatalf("expected BroadcastMessage, got %T", decoded)
	}
	if msg.RequestID != "fixed-id" {
		t.Fatalf("expected request id to be preserved, got %q", msg.RequestID)
	}
}
