// Package streammanager implements the per-node bookkeeping of subscribed
// stream keys, their neighbour sets, and per-chain dedup state (spec.md
// §3 "Stream state" and component C4). A Manager is owned exclusively by
// one node; all access happens from the node's single event loop, but the
// type is internally synchronized so status snapshots can be taken from a
// concurrent HTTP handler without racing the engine goroutine.
package streammanager

import (
	"sync"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
)

// State is the per-stream-key bookkeeping described in spec.md §3.
type State struct {
	Inbound        map[string]struct{}
	Outbound       map[string]struct{}
	LastMsgByChain map[message.ChainKey]message.Ref
	Counter        int64
}

func newState() *State {
	return &State{
		Inbound:        make(map[string]struct{}),
		Outbound:       make(map[string]struct{}),
		LastMsgByChain: make(map[message.ChainKey]message.Ref),
	}
}

// Manager owns the set of currently subscribed stream keys for one node.
type Manager struct {
	mu      sync.Mutex
	streams map[streamkey.Key]*State
}

// New creates an empty stream manager.
func New() *Manager {
	return &Manager{streams: make(map[streamkey.Key]*State)}
}

// Ensure makes sure key is present (subscribe is idempotent) and returns
// whether the key was newly added.
func (m *Manager) Ensure(key streamkey.Key) (added bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.streams[key]; ok {
		return false
	}
	m.streams[key] = newState()
	return true
}

// Has reports whether key is currently subscribed.
func (m *Manager) Has(key streamkey.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.streams[key]
	return ok
}

// Remove drops all state for key (unsubscribe).
func (m *Manager) Remove(key streamkey.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, key)
}

// Keys returns a snapshot of currently subscribed stream keys.
func (m *Manager) Keys() []streamkey.Key {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]streamkey.Key, 0, len(m.streams))
	for k := range m.streams {
		keys = append(keys, k)
	}
	return keys
}

func (m *Manager) state(key streamkey.Key) *State {
	s, ok := m.streams[key]
	if !ok {
		s = newState()
		m.streams[key] = s
	}
	return s
}

// AddInbound records that peerID may now publish data for key to us.
func (m *Manager) AddInbound(key streamkey.Key, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state(key).Inbound[peerID] = struct{}{}
}

// RemoveInbound revokes peerID's inbound standing for key.
func (m *Manager) RemoveInbound(key streamkey.Key, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[key]; ok {
		delete(s.Inbound, peerID)
	}
}

// AddOutbound records peerID as a forwarding neighbour for key.
func (m *Manager) AddOutbound(key streamkey.Key, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state(key).Outbound[peerID] = struct{}{}
}

// RemoveOutbound removes peerID as a forwarding neighbour for key.
func (m *Manager) RemoveOutbound(key streamkey.Key, peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.streams[key]; ok {
		delete(s.Outbound, peerID)
	}
}

// IsInbound reports whether peerID is a registered inbound neighbour for key.
func (m *Manager) IsInbound(key streamkey.Key, peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return false
	}
	_, ok = s.Inbound[peerID]
	return ok
}

// Inbound returns a snapshot of key's inbound neighbour ids.
func (m *Manager) Inbound(key streamkey.Key) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return nil
	}
	return snapshot(s.Inbound)
}

// IsOutbound reports whether peerID is a registered outbound neighbour for key.
func (m *Manager) IsOutbound(key streamkey.Key, peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return false
	}
	_, ok = s.Outbound[peerID]
	return ok
}

// Outbound returns a snapshot of key's outbound neighbour ids.
func (m *Manager) Outbound(key streamkey.Key) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return nil
	}
	return snapshot(s.Outbound)
}

// OutboundExcept returns key's outbound neighbours excluding the given peer.
func (m *Manager) OutboundExcept(key streamkey.Key, except string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.Outbound))
	for id := range s.Outbound {
		if id != except {
			out = append(out, id)
		}
	}
	return out
}

func snapshot(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Counter returns the last instruction counter observed for key.
func (m *Manager) Counter(key streamkey.Key) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[key]
	if !ok {
		return 0
	}
	return s.Counter
}

// AcceptCounter applies the monotonicity rule from spec.md §4.5: an
// instruction whose counter is strictly smaller than the one already
// observed for key is dropped. Returns true if counter was accepted (and
// stored), false if it should be ignored.
func (m *Manager) AcceptCounter(key streamkey.Key, counter int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(key)
	if counter < s.Counter {
		return false
	}
	s.Counter = counter
	return true
}

// Dedup applies the monotone-dedup rule from spec.md §3 invariant I4: a
// message is accepted (and lastMsgByChain advanced) only if its
// (timestamp, sequenceNumber) is strictly greater than the last one seen
// for its (publisherId, msgChainId) chain. Returns true if the message is
// fresh and should be delivered/forwarded.
func (m *Manager) Dedup(key streamkey.Key, id message.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(key)
	chain := id.Chain()
	ref := id.Ref()

	last, seen := s.LastMsgByChain[chain]
	if seen && !last.Less(ref) {
		return false
	}
	s.LastMsgByChain[chain] = ref
	return true
}

// RemovePeer removes peerID from every stream's inbound and outbound sets,
// returning the keys where the peer had any standing (used to decide
// whether the underlying connection should be closed, spec.md §4.5).
func (m *Manager) RemovePeer(peerID string) []streamkey.Key {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []streamkey.Key
	for key, s := range m.streams {
		_, inbound := s.Inbound[peerID]
		_, outbound := s.Outbound[peerID]
		if inbound || outbound {
			delete(s.Inbound, peerID)
			delete(s.Outbound, peerID)
			affected = append(affected, key)
		}
	}
	return affected
}

// SharesStream reports whether peerID is an inbound or outbound neighbour
// of any currently subscribed stream key.
func (m *Manager) SharesStream(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.streams {
		if _, ok := s.Inbound[peerID]; ok {
			return true
		}
		if _, ok := s.Outbound[peerID]; ok {
			return true
		}
	}
	return false
}
