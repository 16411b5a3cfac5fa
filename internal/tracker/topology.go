// Package tracker implements the topology manager from spec.md §4.6
// (component C6): per-stream-key overlay graphs, neighbour selection, and
// the instructions that keep nodes' outbound sets in sync with them.
package tracker

import (
	"sort"
	"sync"

	"frameworks/network/internal/streamkey"
)

// Instruction is what the engine layer turns into a protocol
// InstructionMessage and sends to NodeID.
type Instruction struct {
	Key          streamkey.Key
	NodeID       string
	NeighbourIDs []string
	Counter      int64
}

// overlay is one stream key's peer graph. order records insertion order,
// since spec.md §4.6 requires the tie-break ("fewest neighbours first,
// breaking ties by insertion order") to be deterministic — something a
// plain Go map cannot provide on its own.
type overlay struct {
	order      []string
	neighbours map[string]map[string]struct{}
}

func newOverlay() *overlay {
	return &overlay{neighbours: make(map[string]map[string]struct{})}
}

func (o *overlay) ensureNode(id string) {
	if _, ok := o.neighbours[id]; ok {
		return
	}
	o.neighbours[id] = make(map[string]struct{})
	o.order = append(o.order, id)
}

func (o *overlay) removeNode(id string) (affected []string) {
	nbrs, ok := o.neighbours[id]
	if !ok {
		return nil
	}
	for n := range nbrs {
		delete(o.neighbours[n], id)
		affected = append(affected, n)
	}
	delete(o.neighbours, id)
	for i, oid := range o.order {
		if oid == id {
			o.order = append(o.order[:i:i], o.order[i+1:]...)
			break
		}
	}
	sort.Strings(affected) // deterministic return order for callers/tests
	return affected
}

func (o *overlay) degree(id string) int {
	return len(o.neighbours[id])
}

func (o *overlay) isEmpty() bool {
	return len(o.neighbours) == 0
}

// neighbourList returns id's current neighbours in insertion order.
func (o *overlay) neighbourList(id string) []string {
	nbrs := o.neighbours[id]
	out := make([]string, 0, len(nbrs))
	for _, candidate := range o.order {
		if _, ok := nbrs[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// setEdges replaces id's neighbour set with targets, maintaining the
// symmetric-edge invariant (spec.md §3 invariant I3), and reports which
// neighbours gained or lost an edge to id as a side effect.
func (o *overlay) setEdges(id string, targets map[string]struct{}) (changed []string) {
	changedSet := make(map[string]struct{})
	current := o.neighbours[id]

	for t := range targets {
		if _, ok := current[t]; ok {
			continue
		}
		o.ensureNode(t)
		current[t] = struct{}{}
		o.neighbours[t][id] = struct{}{}
		changedSet[t] = struct{}{}
	}
	for t := range current {
		if _, ok := targets[t]; ok {
			continue
		}
		delete(current, t)
		if nb, ok := o.neighbours[t]; ok {
			delete(nb, id)
		}
		changedSet[t] = struct{}{}
	}

	for t := range changedSet {
		changed = append(changed, t)
	}
	sort.Strings(changed)
	return changed
}

// selectNeighbours implements the C6 selection rule: up to max nodes
// other than nodeID, preferring the fewest current neighbours, tied by
// insertion order. A node that already has max neighbours is only kept if
// it is already a neighbour of nodeID.
func selectNeighbours(o *overlay, nodeID string, max int) map[string]struct{} {
	type candidate struct {
		id     string
		degree int
		order  int
	}
	candidates := make([]candidate, 0, len(o.order))
	for i, id := range o.order {
		if id == nodeID {
			continue
		}
		if _, linked := o.neighbours[nodeID][id]; !linked && o.degree(id) >= max {
			continue
		}
		candidates = append(candidates, candidate{id: id, degree: o.degree(id), order: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].degree != candidates[j].degree {
			return candidates[i].degree < candidates[j].degree
		}
		return candidates[i].order < candidates[j].order
	})

	out := make(map[string]struct{})
	for i := 0; i < len(candidates) && i < max; i++ {
		out[candidates[i].id] = struct{}{}
	}
	return out
}

// Manager is the tracker's topology manager, owned exclusively by one
// tracker process.
type Manager struct {
	mu            sync.Mutex
	maxNeighbours int
	overlays      map[streamkey.Key]*overlay
	counters      map[streamkey.Key]int64
}

// NewManager constructs a topology manager with the given max fan-out
// per node (spec.md §6 "maxNeighbours", default 4).
func NewManager(maxNeighbours int) *Manager {
	if maxNeighbours <= 0 {
		maxNeighbours = 4
	}
	return &Manager{
		maxNeighbours: maxNeighbours,
		overlays:      make(map[streamkey.Key]*overlay),
		counters:      make(map[streamkey.Key]int64),
	}
}

func (m *Manager) overlayFor(key streamkey.Key) *overlay {
	o, ok := m.overlays[key]
	if !ok {
		o = newOverlay()
		m.overlays[key] = o
	}
	return o
}

func (m *Manager) bumpCounter(key streamkey.Key) int64 {
	m.counters[key]++
	return m.counters[key]
}

// OnStatus reconciles nodeID's membership and neighbour set for every
// reported stream key and returns, per key, one Instruction for nodeID
// and one for every other node whose neighbour set changed as a result,
// all carrying the key's next counter (spec.md §4.6 "onStatus").
func (m *Manager) OnStatus(nodeID string, keys []streamkey.Key) []Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Instruction
	for _, key := range keys {
		o := m.overlayFor(key)
		o.ensureNode(nodeID)

		targets := selectNeighbours(o, nodeID, m.maxNeighbours)
		changed := o.setEdges(nodeID, targets)

		affected := map[string]struct{}{nodeID: {}}
		for _, id := range changed {
			affected[id] = struct{}{}
		}
		if len(affected) == 0 {
			continue
		}

		counter := m.bumpCounter(key)
		ids := make([]string, 0, len(affected))
		for id := range affected {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, Instruction{Key: key, NodeID: id, NeighbourIDs: o.neighbourList(id), Counter: counter})
		}
	}
	return out
}

// OnNodeDisconnected removes nodeID from every overlay it participated
// in and returns a fresh Instruction for every node whose neighbour set
// changed as a result (spec.md §4.6 "onNodeDisconnected").
func (m *Manager) OnNodeDisconnected(nodeID string) []Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Instruction
	for key, o := range m.overlays {
		if _, present := o.neighbours[nodeID]; !present {
			continue
		}
		affected := o.removeNode(nodeID)
		if len(affected) > 0 {
			counter := m.bumpCounter(key)
			for _, id := range affected {
				out = append(out, Instruction{Key: key, NodeID: id, NeighbourIDs: o.neighbourList(id), Counter: counter})
			}
		}
		if o.isEmpty() {
			delete(m.overlays, key)
		}
	}
	return out
}

// LeaveKey removes nodeID from only key's overlay — the per-key analogue
// of OnNodeDisconnected, used when a node unsubscribes from one stream
// key while remaining connected to the tracker for others.
func (m *Manager) LeaveKey(key streamkey.Key, nodeID string) []Instruction {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.overlays[key]
	if !ok {
		return nil
	}
	affected := o.removeNode(nodeID)

	var out []Instruction
	if len(affected) > 0 {
		counter := m.bumpCounter(key)
		for _, id := range affected {
			out = append(out, Instruction{Key: key, NodeID: id, NeighbourIDs: o.neighbourList(id), Counter: counter})
		}
	}
	if o.isEmpty() {
		delete(m.overlays, key)
	}
	return out
}

// GetTopology returns a snapshot of every overlay: streamKey → nodeId →
// neighbour ids, in insertion order (spec.md §4.6 "getTopology").
func (m *Manager) GetTopology() map[string]map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]map[string][]string, len(m.overlays))
	for key, o := range m.overlays {
		nodes := make(map[string][]string, len(o.order))
		for _, id := range o.order {
			nodes[id] = append([]string(nil), o.neighbourList(id)...)
		}
		snapshot[key.String()] = nodes
	}
	return snapshot
}

// Subscribers returns the node ids currently present in key's overlay,
// in insertion order. Used by the engine layer to answer
// onStorageNodesRequest after filtering by peer type.
func (m *Manager) Subscribers(key streamkey.Key) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.overlays[key]
	if !ok {
		return nil
	}
	return append([]string(nil), o.order...)
}
