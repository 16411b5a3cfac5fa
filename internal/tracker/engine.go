package tracker

import (
	"context"

	"frameworks/network/internal/peer"
	"frameworks/network/internal/protocol"
	"frameworks/network/internal/streamkey"
	"frameworks/network/internal/wsproto"
	"frameworks/network/pkg/logging"
)

// transport is the subset of wsproto.Endpoint the Tracker depends on,
// narrowed so it can be exercised against a fake in tests (mirrors
// internal/node's transport interface).
type transport interface {
	Events() <-chan wsproto.Event
	Send(peerID string, frame []byte) error
	Close(peerID string, reason string)
	Book() *peer.Book
}

// Tracker wires the topology Manager to a live wsproto.Endpoint: it
// reacts to node statuses and disconnections, and turns the resulting
// Instructions into outbound InstructionMessage sends. It is the
// operational embodiment of C6's network-facing operations.
type Tracker struct {
	self     peer.Info
	endpoint transport
	adapter  *protocol.TrackerAdapter
	manager  *Manager
	logger   logging.Logger

	peers map[string]peer.Info

	// statusKeys remembers the stream keys each node last reported in a
	// StatusMessage, so a status that drops a previously-reported key is
	// recognised as a per-key unsubscribe (spec.md §8 scenario S2) rather
	// than requiring a full node disconnect.
	statusKeys map[string]map[streamkey.Key]struct{}
}

// NewTracker constructs a Tracker bound to endpoint.
func NewTracker(self peer.Info, endpoint transport, codec protocol.Codec, maxNeighbours int, logger logging.Logger) *Tracker {
	return &Tracker{
		self:       self,
		endpoint:   endpoint,
		adapter:    protocol.NewTrackerAdapter(endpoint, codec),
		manager:    NewManager(maxNeighbours),
		logger:     logger,
		peers:      make(map[string]peer.Info),
		statusKeys: make(map[string]map[streamkey.Key]struct{}),
	}
}

// Run drains endpoint events until ctx is cancelled or the endpoint
// stops, serialising every reaction through this single goroutine
// (spec.md §5 "single-threaded cooperative").
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case ev, ok := <-t.endpoint.Events():
			if !ok {
				return nil
			}
			t.handleEvent(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Tracker) handleEvent(ev wsproto.Event) {
	switch ev.Type {
	case wsproto.EventPeerConnected:
		t.peers[ev.Peer.ID] = ev.Peer
	case wsproto.EventPeerDisconnected:
		delete(t.peers, ev.Peer.ID)
		delete(t.statusKeys, ev.Peer.ID)
		t.sendInstructions(t.manager.OnNodeDisconnected(ev.Peer.ID))
	case wsproto.EventMessageReceived:
		t.handleMessage(ev.Peer, ev.Payload)
	case wsproto.EventHighBackPressure, wsproto.EventLowBackPressure:
		// No tracker-level reaction beyond what the transport already
		// did; logged for operator visibility only.
		t.logger.WithField("peer", ev.Peer.ID).Debug("tracker: back pressure event")
	}
}

func (t *Tracker) handleMessage(p peer.Info, payload []byte) {
	decoded, err := t.adapter.Decode(payload)
	if err != nil {
		t.logger.WithError(err).Warn("tracker: dropping unreadable frame")
		t.endpoint.Close(p.ID, wsproto.ReasonMissingRequiredParam)
		return
	}

	switch m := decoded.(type) {
	case protocol.StatusMessage:
		keys := make([]streamkey.Key, 0, len(m.Streams))
		reported := make(map[streamkey.Key]struct{}, len(m.Streams))
		for _, s := range m.Streams {
			keys = append(keys, s.Key)
			reported[s.Key] = struct{}{}
		}

		var instrs []Instruction
		for key := range t.statusKeys[p.ID] {
			if _, stillReported := reported[key]; stillReported {
				continue
			}
			instrs = append(instrs, t.manager.LeaveKey(key, p.ID)...)
		}
		instrs = append(instrs, t.manager.OnStatus(p.ID, keys)...)
		t.statusKeys[p.ID] = reported
		t.sendInstructions(instrs)
	case protocol.StorageNodesRequest:
		addrs := t.storageAddresses(m.Key)
		if err := t.adapter.SendStorageNodesResponse(p.ID, m.RequestID, m.Key, addrs); err != nil {
			t.logger.WithError(err).Warn("tracker: failed to answer storage nodes request")
		}
	default:
		t.logger.WithField("peer", p.ID).Warn("tracker: unexpected message type from node")
	}
}

func (t *Tracker) sendInstructions(instrs []Instruction) {
	for _, instr := range instrs {
		addrs := t.addressesFor(instr.NeighbourIDs)
		if err := t.adapter.SendInstruction(instr.NodeID, instr.Key, addrs, instr.Counter); err != nil {
			t.logger.WithError(err).Warn("tracker: failed to send instruction")
		}
	}
}

func (t *Tracker) addressesFor(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if addr, err := t.endpoint.Book().AddressOf(id); err == nil {
			out = append(out, addr)
		}
	}
	return out
}

func (t *Tracker) storageAddresses(key streamkey.Key) []string {
	var out []string
	for _, id := range t.manager.Subscribers(key) {
		info, ok := t.peers[id]
		if !ok || !info.IsStorage() {
			continue
		}
		if addr, err := t.endpoint.Book().AddressOf(id); err == nil {
			out = append(out, addr)
		}
	}
	return out
}

// GetTopology exposes the topology manager's snapshot for the ops
// /topology endpoint.
func (t *Tracker) GetTopology() map[string]map[string][]string {
	return t.manager.GetTopology()
}
