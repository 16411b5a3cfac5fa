package wsproto

import (
	"time"

	"github.com/gorilla/websocket"
)

func (e *Endpoint) startPumps(c *connection) {
	e.wg.Add(2)
	go e.readPump(c)
	go e.writePump(c)
}

// readPump relays inbound frames as MESSAGE_RECEIVED events and tracks
// pong replies for the liveness check. It returns, and reports the peer
// as gone, as soon as the underlying socket errors.
func (e *Endpoint) readPump(c *connection) {
	defer e.wg.Done()

	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.pongReceived = true
		c.rtt = time.Since(c.rttStart)
		c.mu.Unlock()
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			e.handleTransportError(c, err)
			return
		}
		e.emit(Event{Type: EventMessageReceived, Peer: c.peerInfo, Payload: payload})
	}
}

// writePump drains the connection's send queue onto the socket, settling
// the buffered-bytes counter and re-evaluating back pressure after every
// write (spec.md §6 "the drain transport event triggers the same
// evaluation").
func (e *Endpoint) writePump(c *connection) {
	defer e.wg.Done()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.BinaryMessage, frame)
			c.settle(len(frame))
			if err != nil {
				e.handleTransportError(c, err)
				return
			}
			e.evaluateBackPressure(c)
		case <-c.closed:
			return
		}
	}
}

// handleTransportError tears down a connection that failed on its own
// (read/write error, not a locally-initiated close) and reports it as
// PEER_DISCONNECTED.
func (e *Endpoint) handleTransportError(c *connection, err error) {
	e.mu.Lock()
	if cur, ok := e.conns[c.peerInfo.ID]; ok && cur == c {
		delete(e.conns, c.peerInfo.ID)
	}
	e.mu.Unlock()

	if !c.markClosed(err) {
		return
	}
	_ = c.conn.Close()
	reason := "transport error"
	if err != nil {
		reason = err.Error()
	}
	e.emit(Event{Type: EventPeerDisconnected, Peer: c.peerInfo, Address: c.address, Reason: reason})
	e.book.Remove(c.peerInfo.ID)
}

func (e *Endpoint) evaluateBackPressure(c *connection) {
	becameHigh, becameLow := c.pressureTransition()
	if becameHigh {
		e.emit(Event{Type: EventHighBackPressure, Peer: c.peerInfo})
	}
	if becameLow {
		e.emit(Event{Type: EventLowBackPressure, Peer: c.peerInfo})
	}
}

// livenessLoop implements spec.md §6 "Liveness": every PingInterval, each
// live connection that did not answer the previous ping is terminated
// with DEAD_CONNECTION; otherwise a new ping is sent and rttStart/
// pongReceived are reset.
func (e *Endpoint) livenessLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.checkLiveness()
		case <-e.stopCh:
			return
		}
	}
}

func (e *Endpoint) checkLiveness() {
	e.mu.Lock()
	conns := make([]*connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	for _, c := range conns {
		c.mu.Lock()
		awaitingPong := c.pingSent && !c.pongReceived
		c.mu.Unlock()

		if awaitingPong {
			e.mu.Lock()
			if cur, ok := e.conns[c.peerInfo.ID]; ok && cur == c {
				delete(e.conns, c.peerInfo.ID)
			}
			e.mu.Unlock()
			e.teardown(c, CodeProtocol, ReasonDeadConnection, false)
			continue
		}

		c.mu.Lock()
		c.pingSent = true
		c.pongReceived = false
		c.rttStart = time.Now()
		c.mu.Unlock()
		_ = c.conn.WriteControl(websocket.PingMessage, nil, deadline)
	}
}
