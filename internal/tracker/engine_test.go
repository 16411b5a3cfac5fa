package tracker

import (
	"sync"
	"testing"

	"frameworks/network/internal/peer"
	"frameworks/network/internal/protocol"
	"frameworks/network/internal/streamkey"
	"frameworks/network/internal/wsproto"
	"frameworks/network/pkg/logging"
)

// fakeTransport is a minimal, in-memory stand-in for *wsproto.Endpoint
// that records every frame sent to each peer id, used to drive the
// Tracker's event handling without a real network (mirrors
// internal/node's fakeTransport).
type fakeTransport struct {
	mu     sync.Mutex
	events chan wsproto.Event
	sent   map[string][][]byte
	closed map[string]string
	book   *peer.Book
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan wsproto.Event, 64),
		sent:   make(map[string][][]byte),
		closed: make(map[string]string),
		book:   peer.NewBook(),
	}
}

func (f *fakeTransport) Events() <-chan wsproto.Event { return f.events }

func (f *fakeTransport) Send(peerID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[peerID] = append(f.sent[peerID], frame)
	return nil
}

func (f *fakeTransport) Close(peerID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[peerID] = reason
}

func (f *fakeTransport) Book() *peer.Book { return f.book }

func (f *fakeTransport) framesTo(peerID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent[peerID]...)
}

func testTracker(t *testing.T, maxNeighbours int) (*Tracker, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	logger := logging.NewLogger()
	logger.SetLevel(logging.ErrorLevel)
	trk := NewTracker(peer.Info{ID: "tracker-1", Type: peer.TypeTracker}, tr, protocol.NewJSONCodec(), maxNeighbours, logger)
	return trk, tr
}

func testKey(t *testing.T, id string, p int) streamkey.Key {
	t.Helper()
	k, err := streamkey.New(id, p)
	if err != nil {
		t.Fatalf("streamkey.New: %v", err)
	}
	return k
}

func statusPayload(t *testing.T, trk *Tracker, keys ...streamkey.Key) []byte {
	t.Helper()
	streams := make([]protocol.StreamStatus, 0, len(keys))
	for _, k := range keys {
		streams = append(streams, protocol.StreamStatus{Key: k})
	}
	frame, err := protocol.NewJSONCodec().Encode(protocol.StatusMessage{Streams: streams})
	if err != nil {
		t.Fatalf("encoding status message: %v", err)
	}
	return frame
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestHandleMessage_StatusSubscribesNewNode(t *testing.T) {
	trk, _ := testTracker(t, 4)
	key := testKey(t, "s", 0)

	trk.handleMessage(peer.Info{ID: "nodeA", Type: peer.TypeNode}, statusPayload(t, trk, key))

	if !contains(trk.manager.Subscribers(key), "nodeA") {
		t.Fatalf("expected nodeA to be a subscriber of key after the first status report")
	}
	if got := trk.statusKeys["nodeA"]; len(got) != 1 {
		t.Fatalf("expected statusKeys to record one key for nodeA, got %d", len(got))
	}
}

// TestHandleMessage_DroppedKeyIsTreatedAsUnsubscribe is spec.md §8
// scenario S2: a status that stops reporting a previously-reported key
// must be treated like an explicit per-key unsubscribe, not a full
// disconnect.
func TestHandleMessage_DroppedKeyIsTreatedAsUnsubscribe(t *testing.T) {
	trk, tr := testTracker(t, 4)
	keyA := testKey(t, "a", 0)
	keyB := testKey(t, "b", 0)

	trk.handleMessage(peer.Info{ID: "nodeA", Type: peer.TypeNode}, statusPayload(t, trk, keyA, keyB))
	if len(trk.statusKeys["nodeA"]) != 2 {
		t.Fatalf("expected both keys tracked after first status")
	}

	trk.handleMessage(peer.Info{ID: "nodeA", Type: peer.TypeNode}, statusPayload(t, trk, keyA))

	if _, ok := trk.statusKeys["nodeA"][keyB]; ok {
		t.Fatalf("expected keyB to be dropped from statusKeys")
	}
	if contains(trk.manager.Subscribers(keyB), "nodeA") {
		t.Fatalf("expected nodeA to be removed as a subscriber of keyB")
	}
	_ = tr
}

func TestHandleEvent_PeerDisconnectedClearsStatusKeysAndSendsInstructions(t *testing.T) {
	trk, tr := testTracker(t, 4)
	key := testKey(t, "s", 0)

	trk.handleMessage(peer.Info{ID: "nodeA", Type: peer.TypeNode}, statusPayload(t, trk, key))
	trk.handleMessage(peer.Info{ID: "nodeB", Type: peer.TypeNode}, statusPayload(t, trk, key))
	tr.book.Put("nodeA", "ws://nodeA:1")
	tr.book.Put("nodeB", "ws://nodeB:1")

	// Count the frames nodeB received while the overlay between nodeA and
	// nodeB was formed, so the instruction caused by the disconnect stands out.
	before := len(tr.framesTo("nodeB"))
	trk.handleEvent(wsproto.Event{Type: wsproto.EventPeerDisconnected, Peer: peer.Info{ID: "nodeA"}})

	if _, ok := trk.statusKeys["nodeA"]; ok {
		t.Fatalf("expected statusKeys entry for nodeA to be cleared on disconnect")
	}
	if contains(trk.manager.Subscribers(key), "nodeA") {
		t.Fatalf("expected nodeA removed from the key's subscribers")
	}
	if got := len(tr.framesTo("nodeB")); got != before+1 {
		t.Fatalf("expected one fresh instruction for nodeB after nodeA disconnected, got %d new frames", got-before)
	}
}

func TestHandleMessage_StorageNodesRequestAnswersWithStorageSubscribers(t *testing.T) {
	trk, tr := testTracker(t, 4)
	key := testKey(t, "s", 0)

	trk.handleEvent(wsproto.Event{Type: wsproto.EventPeerConnected, Peer: peer.Info{ID: "storage1", Type: peer.TypeStorage}})
	trk.handleMessage(peer.Info{ID: "storage1", Type: peer.TypeStorage}, statusPayload(t, trk, key))
	tr.book.Put("storage1", "ws://storage1:1")

	req, err := protocol.NewJSONCodec().Encode(protocol.StorageNodesRequest{RequestID: "r1", Key: key})
	if err != nil {
		t.Fatalf("encoding storage nodes request: %v", err)
	}
	trk.handleMessage(peer.Info{ID: "nodeA", Type: peer.TypeNode}, req)

	frames := tr.framesTo("nodeA")
	if len(frames) != 1 {
		t.Fatalf("expected exactly one response frame to nodeA, got %d", len(frames))
	}
	decoded, err := protocol.NewJSONCodec().Decode(frames[0])
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	resp, ok := decoded.(protocol.StorageNodesResponse)
	if !ok {
		t.Fatalf("expected a StorageNodesResponse, got %T", decoded)
	}
	if len(resp.NodeAddresses) != 1 || resp.NodeAddresses[0] != "ws://storage1:1" {
		t.Fatalf("unexpected storage addresses: %+v", resp.NodeAddresses)
	}
}

func TestHandleMessage_UnreadableFrameClosesConnection(t *testing.T) {
	trk, tr := testTracker(t, 4)

	trk.handleMessage(peer.Info{ID: "nodeA"}, []byte("not json"))

	if reason, ok := tr.closed["nodeA"]; !ok || reason != wsproto.ReasonMissingRequiredParam {
		t.Fatalf("expected nodeA to be closed with ReasonMissingRequiredParam, got %q (closed=%v)", reason, ok)
	}
}

func TestGetTopology_ReflectsManagerSnapshot(t *testing.T) {
	trk, _ := testTracker(t, 4)
	key := testKey(t, "s", 0)

	trk.handleMessage(peer.Info{ID: "nodeA"}, statusPayload(t, trk, key))
	trk.handleMessage(peer.Info{ID: "nodeB"}, statusPayload(t, trk, key))

	topo := trk.GetTopology()
	if len(topo[key.String()]) != 2 {
		t.Fatalf("expected two nodes in the topology snapshot, got %d", len(topo[key.String()]))
	}
}
