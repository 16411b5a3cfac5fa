package wsproto

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"frameworks/network/internal/peer"
)

// direction records which side dialed a connection, needed by the
// duplicate-socket tiebreak (spec.md §6 "Duplicate-socket tiebreaker").
type direction int

const (
	dirOutbound direction = iota // we dialed the peer
	dirInbound                   // the peer dialed us
)

// connection is the live-connection record from spec.md §3 "Connection
// record": peer identity, transport address, buffered-bytes tracking for
// back pressure, RTT estimate, and ping/pong liveness bookkeeping.
type connection struct {
	peerInfo  peer.Info
	address   string // the peer's advertised URL
	dir       direction
	conn      *websocket.Conn

	mu            sync.Mutex
	bufferedBytes int
	highPressure  bool

	rtt          time.Duration
	rttStart     time.Time
	pongReceived bool
	pingSent     bool

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newConnection(info peer.Info, address string, dir direction, conn *websocket.Conn) *connection {
	return &connection{
		peerInfo:     info,
		address:      address,
		dir:          dir,
		conn:         conn,
		pongReceived: true,
		send:         make(chan []byte, 256),
		closed:       make(chan struct{}),
	}
}

// enqueue tracks bytes as buffered (for back-pressure accounting) and
// queues the frame for the write pump. It returns false if the
// connection's send queue is already being drained down (connection
// closing).
func (c *connection) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	c.mu.Lock()
	c.bufferedBytes += len(frame)
	c.mu.Unlock()

	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	}
}

// settle is invoked by the write pump once a frame has actually been
// written to the socket, draining its contribution to bufferedBytes.
func (c *connection) settle(n int) {
	c.mu.Lock()
	c.bufferedBytes -= n
	if c.bufferedBytes < 0 {
		c.bufferedBytes = 0
	}
	c.mu.Unlock()
}

// pressureTransition reports whether the high-pressure flag flips
// (becameHigh) or clears (becameLow) given the HIGH/LOW watermarks in spec.md §6
// "Back pressure". The sticky flag itself is updated in place.
func (c *connection) pressureTransition() (becameHigh, becameLow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.highPressure && c.bufferedBytes > highWatermark {
		c.highPressure = true
		return true, false
	}
	if c.highPressure && c.bufferedBytes < lowWatermark {
		c.highPressure = false
		return false, true
	}
	return false, false
}

// markClosed marks the connection as closed exactly once, returning true
// if this call is the one that performed the transition.
func (c *connection) markClosed(err error) bool {
	didClose := false
	c.closeOnce.Do(func() {
		didClose = true
		c.closeErr = err
		close(c.closed)
	})
	return didClose
}

func (c *connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
