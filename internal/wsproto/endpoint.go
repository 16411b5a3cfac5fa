// Package wsproto implements the bidirectional WebSocket transport
// described in spec.md §4.2 (component C2): symmetric dial/accept, one
// live connection per peer enforced via a lexicographic tiebreak,
// back-pressure watermark signalling, and ping-based liveness detection.
package wsproto

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"frameworks/network/internal/peer"
	"frameworks/network/pkg/logging"
)

const (
	highWatermark = 2 * 1024 * 1024 // HIGH, spec.md §6 "Back pressure"
	lowWatermark  = 1 * 1024 * 1024 // LOW

	defaultPingInterval = 5 * time.Second
	writeWait           = 10 * time.Second
)

// Config carries the construction parameters for an Endpoint (spec.md §6
// "Configuration (recognised options)" subset relevant to the transport).
type Config struct {
	Self          peer.Info
	AdvertisedURL string
	ListenAddr    string // host:port to accept inbound upgrades on
	PingInterval  time.Duration
	Logger        logging.Logger

	// CertFile and KeyFile optionally switch the inbound listener to TLS
	// (spec.md §6 "optionally with TLS key/cert"). Both must be set
	// together; leaving them blank serves plain ws://.
	CertFile string
	KeyFile  string
}

// Endpoint is the C2 WS Endpoint: it owns at most one live connection per
// peer, dials outbound connections, accepts inbound ones on ListenAddr,
// and reports everything through a single Events() channel so the owning
// engine can serialise its reaction to transport activity.
type Endpoint struct {
	cfg    Config
	book   *peer.Book
	logger logging.Logger

	upgrader websocket.Upgrader
	dialer   websocket.Dialer
	server   *http.Server

	mu    sync.Mutex
	conns map[string]*connection // keyed by peer ID

	events chan Event
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Endpoint. It does not start listening until Start is
// called.
func New(cfg Config, book *peer.Book) *Endpoint {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Endpoint{
		cfg:    cfg,
		book:   book,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:  make(map[string]*connection),
		events: make(chan Event, 256),
		stopCh: make(chan struct{}),
	}
}

// Events returns the channel of transport events. The owner must drain it.
func (e *Endpoint) Events() <-chan Event {
	return e.events
}

// AdvertisedURL returns this endpoint's own advertised WebSocket URL.
func (e *Endpoint) AdvertisedURL() string {
	return e.cfg.AdvertisedURL
}

// Book exposes the shared peer identifier ↔ address book.
func (e *Endpoint) Book() *peer.Book {
	return e.book
}

// Start begins accepting inbound WebSocket upgrades on cfg.ListenAddr and
// starts the shared liveness ticker. It returns once the listener is up;
// serving happens on a background goroutine.
func (e *Endpoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", e.handleUpgrade)
	e.server = &http.Server{Addr: e.cfg.ListenAddr, Handler: mux}

	ln, err := newListener(e.cfg.ListenAddr, e.cfg.CertFile, e.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("wsproto: listen on %s: %w", e.cfg.ListenAddr, err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.logger.WithError(err).Error("wsproto: endpoint server stopped unexpectedly")
		}
	}()

	e.wg.Add(1)
	go e.livenessLoop()

	return nil
}

// Connect opens an outbound WebSocket to peerURL (spec.md §6 "connect").
func (e *Endpoint) Connect(ctx context.Context, peerURL string) (peer.Info, error) {
	select {
	case <-e.stopCh:
		return peer.Info{}, ErrStopped
	default:
	}

	if sameURL(peerURL, e.cfg.AdvertisedURL) {
		return peer.Info{}, ErrOwnAddress
	}

	dialURL, err := addAddressParam(peerURL, e.cfg.AdvertisedURL)
	if err != nil {
		return peer.Info{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	header := http.Header{}
	header.Set(HeaderPeerID, e.cfg.Self.ID)
	header.Set(HeaderPeerTyp, string(e.cfg.Self.Type))

	conn, resp, err := e.dialer.DialContext(ctx, dialURL, header)
	if err != nil {
		return peer.Info{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	remoteID := resp.Header.Get(HeaderPeerID)
	remoteTyp := resp.Header.Get(HeaderPeerTyp)
	if remoteID == "" || remoteTyp == "" {
		conn.Close()
		return peer.Info{}, ErrHeadersMissing
	}
	remote, err := peer.New(remoteID, peer.Type(remoteTyp))
	if err != nil {
		conn.Close()
		return peer.Info{}, fmt.Errorf("%w: %v", ErrHeadersMissing, err)
	}

	c := newConnection(remote, peerURL, dirOutbound, conn)
	if !e.register(c) {
		conn.Close()
		return peer.Info{}, ErrDuplicate
	}

	e.book.Put(remote.ID, peerURL)
	e.startPumps(c)
	e.emit(Event{Type: EventPeerConnected, Peer: remote})
	return remote, nil
}

// Send queues frame for delivery to peerID (spec.md §6 "send").
func (e *Endpoint) Send(peerID string, frame []byte) error {
	e.mu.Lock()
	c, ok := e.conns[peerID]
	e.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	if !c.enqueue(frame) {
		return ErrSendFailed
	}
	e.evaluateBackPressure(c)
	return nil
}

// Close closes the connection to peerID with the given close reason,
// using code 1000 (spec.md §6 "close"). Transport errors are swallowed.
func (e *Endpoint) Close(peerID, reason string) {
	e.mu.Lock()
	c, ok := e.conns[peerID]
	if ok {
		delete(e.conns, peerID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	e.teardown(c, CodeNormal, reason, false)
}

// Stop closes every live connection with GRACEFUL_SHUTDOWN and stops
// accepting new ones.
func (e *Endpoint) Stop(ctx context.Context) error {
	select {
	case <-e.stopCh:
		return nil
	default:
		close(e.stopCh)
	}

	e.mu.Lock()
	conns := make([]*connection, 0, len(e.conns))
	for id, c := range e.conns {
		conns = append(conns, c)
		delete(e.conns, id)
	}
	e.mu.Unlock()

	for _, c := range conns {
		e.teardown(c, CodeNormal, ReasonGracefulShutdown, false)
	}

	var err error
	if e.server != nil {
		err = e.server.Shutdown(ctx)
	}
	e.wg.Wait()
	close(e.events)
	return err
}

// register enforces the "one connection per peer" invariant and the
// duplicate-socket tiebreak from spec.md §6. It returns false if c lost
// the tiebreak and must be discarded by the caller.
func (e *Endpoint) register(c *connection) bool {
	e.mu.Lock()

	existing, dup := e.conns[c.peerInfo.ID]
	if !dup {
		e.conns[c.peerInfo.ID] = c
		e.mu.Unlock()
		return true
	}

	// Duplicate socket: exactly one connection may survive. The survivor
	// is whichever of {existing, c} was dialed by the peer whose
	// advertised URL is lexicographically greater (spec.md §8 "when
	// p.url < q.url and both dial simultaneously, the socket opened by q
	// survives").
	greaterIsSelf := e.cfg.AdvertisedURL > existing.address

	dialedByGreater := func(conn *connection) bool {
		if greaterIsSelf {
			return conn.dir == dirOutbound // self dialed it
		}
		return conn.dir == dirInbound // remote dialed it
	}

	newSurvives := dialedByGreater(c)
	oldSurvives := dialedByGreater(existing)

	if newSurvives && !oldSurvives {
		e.conns[c.peerInfo.ID] = c
		e.mu.Unlock()
		e.teardown(existing, CodeProtocol, ReasonDuplicateConnection, true)
		return true
	}

	// Either the existing connection survives, or the comparison is
	// degenerate (shouldn't happen given distinct directions) — keep it.
	e.mu.Unlock()
	return false
}

// teardown closes a connection's underlying socket and reports its
// departure. Callers are responsible for removing c from e.conns under
// e.mu before calling teardown; teardown itself never touches e.conns, so
// it is safe to call without holding the lock.
func (e *Endpoint) teardown(c *connection, code int, reason string, silent bool) {
	if !c.markClosed(nil) {
		return // already torn down by someone else
	}
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
	if !silent {
		e.emit(Event{Type: EventPeerDisconnected, Peer: c.peerInfo, Address: c.address, Reason: reason})
	}
	e.book.Remove(c.peerInfo.ID)
}

// handleUpgrade accepts an inbound WebSocket upgrade (spec.md §6
// "Incoming upgrade"). Our own PeerInfo is always returned in the
// response headers so the dialer can complete its handshake even when we
// are about to reject this connection at the protocol layer.
func (e *Endpoint) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get(ParamAddress)
	remoteID := r.Header.Get(HeaderPeerID)
	remoteTyp := r.Header.Get(HeaderPeerTyp)

	responseHeader := http.Header{}
	responseHeader.Set(HeaderPeerID, e.cfg.Self.ID)
	responseHeader.Set(HeaderPeerTyp, string(e.cfg.Self.Type))

	conn, err := e.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		e.logger.WithError(err).Warn("wsproto: upgrade handshake failed")
		return
	}

	if address == "" || remoteID == "" || remoteTyp == "" {
		e.rejectUpgrade(conn, ReasonMissingRequiredParam)
		return
	}
	remote, err := peer.New(remoteID, peer.Type(remoteTyp))
	if err != nil {
		e.rejectUpgrade(conn, ReasonMissingRequiredParam)
		return
	}

	c := newConnection(remote, address, dirInbound, conn)
	if !e.register(c) {
		e.rejectUpgrade(conn, ReasonDuplicateConnection)
		return
	}

	e.book.Put(remote.ID, address)
	e.startPumps(c)
	e.emit(Event{Type: EventPeerConnected, Peer: remote})
}

func (e *Endpoint) rejectUpgrade(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(CodeProtocol, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

func (e *Endpoint) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.stopCh:
	}
}

func addAddressParam(peerURL, ownURL string) (string, error) {
	u, err := url.Parse(peerURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(ParamAddress, ownURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
