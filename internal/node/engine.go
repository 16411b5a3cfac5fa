// Package node implements the node engine from spec.md §4.5 (component
// C5): the subscription state machine that reacts to tracker
// instructions by opening/closing peer connections, forwards published
// messages, and deduplicates inbound data through the stream manager
// (internal/streammanager).
package node

import (
	"context"
	"strings"
	"sync"
	"time"

	"frameworks/network/internal/eventbus"
	"frameworks/network/internal/message"
	"frameworks/network/internal/peer"
	"frameworks/network/internal/protocol"
	"frameworks/network/internal/streamkey"
	"frameworks/network/internal/streammanager"
	"frameworks/network/internal/wsproto"
	"frameworks/network/pkg/logging"
)

const (
	defaultDisconnectionWaitTime = 30 * time.Second
	defaultStatusInterval        = 10 * time.Second
	defaultReconnectBaseDelay    = 2 * time.Second
	defaultReconnectMaxDelay     = 60 * time.Second
)

// transport is the subset of wsproto.Endpoint the engine depends on,
// narrowed so the engine can be exercised against a fake in tests.
type transport interface {
	Events() <-chan wsproto.Event
	Connect(ctx context.Context, peerURL string) (peer.Info, error)
	Send(peerID string, frame []byte) error
	Close(peerID string, reason string)
	Book() *peer.Book
}

// Config carries the construction parameters for an Engine (spec.md §6
// subset relevant to the node).
type Config struct {
	Self                  peer.Info
	AdvertisedURL         string
	TrackerURLs           []string
	DisconnectionWaitTime time.Duration
	StatusInterval        time.Duration
	ReconnectBaseDelay    time.Duration
	ReconnectMaxDelay     time.Duration
	Logger                logging.Logger
}

func (c *Config) applyDefaults() {
	if c.DisconnectionWaitTime <= 0 {
		c.DisconnectionWaitTime = defaultDisconnectionWaitTime
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = defaultStatusInterval
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
}

// Engine is the node engine: one instance owns one node's subscription
// state, its neighbour connections, and its relationship with its
// bootstrap trackers. It is driven by a single Run goroutine that drains
// transport events, matching the single-threaded cooperative model of
// spec.md §5.
type Engine struct {
	cfg       Config
	transport transport
	node      *protocol.NodeAdapter
	trackerP  *protocol.TrackerAdapter
	manager   *streammanager.Manager
	logger    logging.Logger
	bus       *eventbus.Bus[Event]

	ctx context.Context

	mu               sync.Mutex
	trackerIDByURL   map[string]string
	trackerURLByID   map[string]string
	pending          map[streamkey.Key]map[string]struct{} // addresses awaiting connect-then-subscribe
	disconnectTimers map[string]*time.Timer

	onResend func(msg any, sourcePeerID string)
}

// New constructs a node Engine bound to transport (normally a
// *wsproto.Endpoint).
func New(cfg Config, tr transport, codec protocol.Codec) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:              cfg,
		transport:        tr,
		node:             protocol.NewNodeAdapter(tr, codec),
		trackerP:         protocol.NewTrackerAdapter(tr, codec),
		manager:          streammanager.New(),
		logger:           cfg.Logger,
		bus:              eventbus.New[Event](),
		ctx:              context.Background(),
		trackerIDByURL:   make(map[string]string),
		trackerURLByID:   make(map[string]string),
		pending:          make(map[streamkey.Key]map[string]struct{}),
		disconnectTimers: make(map[string]*time.Timer),
	}
}

// Events exposes the engine's event bus for ops/metrics observers.
func (e *Engine) Events() *eventbus.Bus[Event] {
	return e.bus
}

// SetResendCallback installs the handler invoked for decoded resend
// requests and responses arriving over the node↔node protocol; the
// resend package (C7) is wired in by the process entrypoint, not by the
// engine itself, keeping the two components independently testable.
func (e *Engine) SetResendCallback(fn func(msg any, sourcePeerID string)) {
	e.onResend = fn
}

// StreamManager exposes the underlying bookkeeping for read-only ops
// reporting (GET /status).
func (e *Engine) StreamManager() *streammanager.Manager {
	return e.manager
}

// NodeProtocol exposes the node↔node adapter so a process entrypoint can
// wire a resend.Handler to respond over the same connections the engine
// uses, without the engine depending on the resend package itself.
func (e *Engine) NodeProtocol() *protocol.NodeAdapter {
	return e.node
}

// Run connects to every bootstrap tracker and then drains transport
// events until ctx is cancelled or the transport's event channel closes.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx

	for _, url := range e.cfg.TrackerURLs {
		go e.maintainTracker(ctx, url)
	}

	ticker := time.NewTicker(e.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-e.transport.Events():
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		case <-ticker.C:
			e.broadcastStatus()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Subscribe ensures key is present in the stream manager and announces
// the (idempotent) status to every known tracker (spec.md §4.5
// "subscribe").
func (e *Engine) Subscribe(streamID string, partition int) error {
	key, err := streamkey.New(streamID, partition)
	if err != nil {
		return err
	}
	e.manager.Ensure(key)
	e.broadcastStatus()
	return nil
}

// Unsubscribe removes key from the subscribed set, tells every inbound
// and outbound neighbour of key to drop it, and re-evaluates whether
// those neighbours should be disconnected (spec.md §4.5 "unsubscribe").
// A call for a key that was never subscribed is a no-op.
func (e *Engine) Unsubscribe(streamID string, partition int) error {
	key, err := streamkey.New(streamID, partition)
	if err != nil {
		return err
	}
	if !e.manager.Has(key) {
		return nil
	}

	neighbours := unionStrings(e.manager.Inbound(key), e.manager.Outbound(key))
	for _, peerID := range neighbours {
		if err := e.node.SendUnsubscribe(peerID, "", key); err != nil {
			e.logger.WithError(err).WithField("peer", peerID).Warn("node: failed to notify neighbour of unsubscribe")
		}
	}

	e.manager.Remove(key)
	e.broadcastStatus()

	for _, peerID := range neighbours {
		e.evaluateDisconnect(peerID)
	}
	return nil
}

// Publish dedup-checks msg against the chain's last reference and, if
// fresh, fans it out to every outbound neighbour of its stream key
// (spec.md §4.5 "publish").
func (e *Engine) Publish(msg message.StreamMessage) error {
	key := msg.StreamKey()
	if !e.manager.Dedup(key, msg.ID) {
		return nil
	}
	for _, peerID := range e.manager.Outbound(key) {
		e.sendBroadcast(peerID, msg)
	}
	return nil
}

func (e *Engine) sendBroadcast(peerID string, msg message.StreamMessage) {
	if err := e.node.SendBroadcast(peerID, "", msg); err != nil {
		e.logger.WithError(err).WithField("peer", peerID).Warn("node: broadcast send failed")
		e.transport.Close(peerID, "send failure")
	}
}

// onData is the reaction to an inbound BroadcastMessage (spec.md §4.5
// "onData"): messages from a non-inbound neighbour are dropped (pull
// subscription is enforced), duplicates are dropped, and fresh messages
// are fanned out to every outbound neighbour except the sender and
// delivered locally via MESSAGE_RECEIVED.
func (e *Engine) onData(msg message.StreamMessage, source string) {
	key := msg.StreamKey()
	if !e.manager.IsInbound(key, source) {
		e.logger.WithFields(logging.Fields{"peer": source, "key": key.String()}).
			Debug("node: dropping data from non-inbound neighbour")
		return
	}
	if !e.manager.Dedup(key, msg.ID) {
		return
	}
	for _, peerID := range e.manager.OutboundExcept(key, source) {
		e.sendBroadcast(peerID, msg)
	}
	e.bus.Emit(Event{Type: EventMessageReceived, Peer: source, Key: key, Message: msg})
}

// onSubscribe registers source as an inbound neighbour for req.Key
// (spec.md §4.5 "onSubscribe").
func (e *Engine) onSubscribe(req protocol.SubscribeRequest, source string) {
	e.manager.AddInbound(req.Key, source)
	e.bus.Emit(Event{Type: EventNodeSubscribed, Peer: source, Key: req.Key})
}

// onUnsubscribe removes source from both inbound and outbound for
// req.Key and disconnects the underlying socket if no shared stream
// remains (spec.md §4.5 "onUnsubscribe").
func (e *Engine) onUnsubscribe(req protocol.UnsubscribeRequest, source string) {
	e.manager.RemoveInbound(req.Key, source)
	e.manager.RemoveOutbound(req.Key, source)
	e.bus.Emit(Event{Type: EventNodeUnsubscribed, Peer: source, Key: req.Key})
	e.evaluateDisconnect(source)
}

// onInstruction reconciles outbound(key) with the tracker's target
// neighbour set (spec.md §4.5 "onInstruction"). Instructions whose counter
// is strictly smaller than the last accepted one for the key are dropped
// silently; an equal counter is accepted.
func (e *Engine) onInstruction(instr protocol.InstructionMessage, trackerID string) {
	if !e.manager.AcceptCounter(instr.Key, instr.Counter) {
		return
	}

	targetAddrs := make(map[string]struct{}, len(instr.NodeAddresses))
	for _, addr := range instr.NodeAddresses {
		if sameAdvertisedURL(addr, e.cfg.AdvertisedURL) {
			continue
		}
		targetAddrs[addr] = struct{}{}
	}

	targetIDs := make(map[string]struct{}, len(targetAddrs))
	for addr := range targetAddrs {
		peerID, ok := e.resolveOrConnect(instr.Key, addr)
		if !ok {
			continue
		}
		targetIDs[peerID] = struct{}{}
	}

	for id := range targetIDs {
		if e.manager.IsOutbound(instr.Key, id) {
			continue
		}
		if err := e.node.SendSubscribe(id, "", instr.Key); err != nil {
			e.logger.WithError(err).WithField("peer", id).Warn("node: failed to subscribe to new neighbour")
			e.transport.Close(id, "send failure")
			continue
		}
		e.manager.AddOutbound(instr.Key, id)
	}

	for _, id := range e.manager.Outbound(instr.Key) {
		if _, keep := targetIDs[id]; keep {
			continue
		}
		if err := e.node.SendUnsubscribe(id, "", instr.Key); err != nil {
			e.logger.WithError(err).WithField("peer", id).Warn("node: failed to unsubscribe stale neighbour")
		}
		e.manager.RemoveOutbound(instr.Key, id)
		e.evaluateDisconnect(id)
	}

	e.broadcastStatus()
}

// resolveOrConnect resolves addr to a live peer id, dialing it if no
// connection exists yet. The pending map records in-flight
// connect-then-subscribe attempts (spec.md §4.5 node state); since this
// engine's transport.Connect call is itself a suspension point that
// resolves synchronously, the entry is cleared again before returning.
func (e *Engine) resolveOrConnect(key streamkey.Key, addr string) (string, bool) {
	if id, err := e.transport.Book().IDOf(addr); err == nil {
		return id, true
	}

	e.markPending(key, addr)
	defer e.clearPending(key, addr)

	info, err := e.transport.Connect(e.ctx, addr)
	if err != nil {
		e.logger.WithError(err).WithField("address", addr).Warn("node: failed to connect to instructed neighbour")
		return "", false
	}
	return info.ID, true
}

func (e *Engine) markPending(key streamkey.Key, addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.pending[key]
	if !ok {
		set = make(map[string]struct{})
		e.pending[key] = set
	}
	set[addr] = struct{}{}
}

func (e *Engine) clearPending(key streamkey.Key, addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.pending[key]; ok {
		delete(set, addr)
		if len(set) == 0 {
			delete(e.pending, key)
		}
	}
}

// evaluateDisconnect schedules peerID's connection to be closed after
// DisconnectionWaitTime if it no longer shares any subscribed stream
// with us, re-checking just before closing to avoid racing a fresh
// subscribe (spec.md §8 "the p–q socket is closed within the configured
// grace period").
func (e *Engine) evaluateDisconnect(peerID string) {
	if e.isTracker(peerID) || e.manager.SharesStream(peerID) {
		return
	}

	e.mu.Lock()
	if _, scheduled := e.disconnectTimers[peerID]; scheduled {
		e.mu.Unlock()
		return
	}
	timer := time.AfterFunc(e.cfg.DisconnectionWaitTime, func() {
		e.mu.Lock()
		delete(e.disconnectTimers, peerID)
		e.mu.Unlock()
		if e.manager.SharesStream(peerID) {
			return
		}
		e.transport.Close(peerID, wsproto.ReasonNoSharedStreams)
	})
	e.disconnectTimers[peerID] = timer
	e.mu.Unlock()
}

func (e *Engine) isTracker(peerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.trackerURLByID[peerID]
	return ok
}

// broadcastStatus sends a full StatusMessage — covering every currently
// subscribed key — to each known tracker. Sending the complete set lets
// the tracker detect a key that has dropped out of the report (a
// per-key unsubscribe) as well as additions, without a dedicated wire
// message for "leave this one key" (spec.md §4.5 "Status message").
func (e *Engine) broadcastStatus() {
	keys := e.manager.Keys()
	msg := e.buildStatus(keys)

	e.mu.Lock()
	trackers := make([]string, 0, len(e.trackerIDByURL))
	for _, id := range e.trackerIDByURL {
		trackers = append(trackers, id)
	}
	e.mu.Unlock()

	for _, trackerID := range trackers {
		if err := e.trackerP.SendStatus(trackerID, msg); err != nil {
			e.logger.WithError(err).WithField("tracker", trackerID).Warn("node: failed to send status")
		}
	}
}

func (e *Engine) buildStatus(keys []streamkey.Key) protocol.StatusMessage {
	streams := make([]protocol.StreamStatus, 0, len(keys))
	for _, key := range keys {
		streams = append(streams, protocol.StreamStatus{
			Key:      key,
			Outbound: e.manager.Outbound(key),
			Counter:  e.manager.Counter(key),
		})
	}
	return protocol.StatusMessage{Streams: streams}
}

func (e *Engine) handleEvent(ev wsproto.Event) {
	switch ev.Type {
	case wsproto.EventPeerDisconnected:
		e.handleDisconnect(ev.Peer.ID, ev.Address)
	case wsproto.EventMessageReceived:
		e.handleMessage(ev.Peer.ID, ev.Payload)
	case wsproto.EventHighBackPressure, wsproto.EventLowBackPressure:
		e.logger.WithField("peer", ev.Peer.ID).Debug("node: back pressure event")
	}
}

func (e *Engine) handleDisconnect(peerID, address string) {
	e.mu.Lock()
	url, wasTracker := e.trackerURLByID[peerID]
	if wasTracker {
		delete(e.trackerURLByID, peerID)
		delete(e.trackerIDByURL, url)
	}
	if timer, ok := e.disconnectTimers[peerID]; ok {
		timer.Stop()
		delete(e.disconnectTimers, peerID)
	}
	e.mu.Unlock()

	affected := e.manager.RemovePeer(peerID)

	if wasTracker {
		e.logger.WithField("tracker", peerID).Warn("node: lost tracker connection, reconnecting")
		go e.maintainTracker(e.ctx, url)
		return
	}
	if len(affected) > 0 {
		addr := address
		if addr == "" {
			addr = peerID
		}
		e.bus.Emit(Event{Type: EventNodeDisconnected, Peer: peerID, Address: addr})
	}
}

func (e *Engine) handleMessage(peerID string, payload []byte) {
	decoded, err := e.node.Decode(payload)
	if err != nil {
		e.logger.WithError(err).WithField("peer", peerID).Warn("node: dropping unreadable frame")
		e.transport.Close(peerID, wsproto.ReasonMissingRequiredParam)
		return
	}

	switch m := decoded.(type) {
	case protocol.BroadcastMessage:
		e.onData(m.Message, peerID)
	case protocol.UnicastMessage:
		e.bus.Emit(Event{Type: EventMessageReceived, Peer: peerID, Key: m.Message.StreamKey(), Message: m.Message})
	case protocol.SubscribeRequest:
		e.onSubscribe(m, peerID)
	case protocol.UnsubscribeRequest:
		e.onUnsubscribe(m, peerID)
	case protocol.InstructionMessage:
		e.onInstruction(m, peerID)
	case protocol.ResendLastRequest, protocol.ResendFromRequest, protocol.ResendRangeRequest,
		protocol.ResendResponseResending, protocol.ResendResponseResent, protocol.ResendResponseNoResend,
		protocol.StorageNodesResponse:
		if e.onResend != nil {
			e.onResend(m, peerID)
		}
	default:
		e.logger.WithField("peer", peerID).Warn("node: unexpected message type")
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sameAdvertisedURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
