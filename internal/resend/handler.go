package resend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"frameworks/network/internal/message"
	"frameworks/network/internal/streamkey"
	"frameworks/network/pkg/logging"
)

const defaultMaxInactivity = 5 * time.Minute

// responder is the subset of *protocol.NodeAdapter the handler needs to
// talk back to the requester; kept narrow for testability.
type responder interface {
	SendUnicast(peerID, requestID string, msg message.StreamMessage) error
	SendResendResponseResending(peerID, requestID string, key streamkey.Key) error
	SendResendResponseResent(peerID, requestID string, key streamkey.Key) error
	SendResendResponseNoResend(peerID, requestID string, key streamkey.Key) error
}

// Handler implements the resend algorithm from spec.md §4.7: an ordered
// list of strategies is tried in turn for each request, the first
// satisfactory one (at least one message) wins, and every in-flight
// request is tracked per source so a disconnecting peer's outstanding
// resends can be cancelled and reported back to the caller.
type Handler struct {
	strategies    []Strategy
	responder     responder
	notifyError   func(req Request, source string, err error)
	maxInactivity time.Duration
	logger        logging.Logger

	mu          sync.Mutex
	bySource    map[string]map[*Context]struct{}
	sourceLocks map[string]*sync.Mutex
}

// NewHandler constructs a resend handler over strategies, tried in the
// given order, delivering responses to peers through responder.
func NewHandler(strategies []Strategy, responder responder, logger logging.Logger) *Handler {
	return &Handler{
		strategies:    strategies,
		responder:     responder,
		maxInactivity: defaultMaxInactivity,
		logger:        logger,
		bySource:      make(map[string]map[*Context]struct{}),
		sourceLocks:   make(map[string]*sync.Mutex),
	}
}

// SetMaxInactivity overrides the default maxInactivityPeriodInMs (5m).
func (h *Handler) SetMaxInactivity(d time.Duration) { h.maxInactivity = d }

// SetNotifyError installs the callback invoked on StrategyError/StrategyTimeout.
func (h *Handler) SetNotifyError(fn func(req Request, source string, err error)) {
	h.notifyError = fn
}

// Context is the handle returned for an in-flight resend, exposing the
// pause/resume/cancel operations from spec.md §4.7.
type Context struct {
	Request   Request
	Source    string
	StartTime time.Time

	mu      sync.Mutex
	current *Sequence
	stopped bool
	cancel  context.CancelFunc
}

func (c *Context) setCurrent(seq *Sequence) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = seq
	if c.stopped {
		seq.Cancel()
	}
}

func (c *Context) clearCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

func (c *Context) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Pause suspends delivery of the currently active downstream sequence.
func (c *Context) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Pause()
	}
}

// Resume releases a previously paused downstream sequence.
func (c *Context) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Resume()
	}
}

// Cancel stops the resend: ctx.stop = true, and the active downstream
// sequence (if any) is destroyed immediately.
func (c *Context) Cancel() {
	c.mu.Lock()
	c.stopped = true
	cur := c.current
	cancel := c.cancel
	c.mu.Unlock()
	if cur != nil {
		cur.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// Handle opens a resend for req from source and runs the strategy loop
// in the background, returning the tracking Context immediately.
func (h *Handler) Handle(req Request, source string) *Context {
	base, cancel := context.WithCancel(context.Background())
	rctx := &Context{Request: req, Source: source, StartTime: time.Now(), cancel: cancel}
	h.register(source, rctx)

	go func() {
		defer h.unregister(source, rctx)
		defer cancel()

		lock := h.sourceLock(source)
		lock.Lock()
		defer lock.Unlock()

		h.run(base, req, source, rctx)
	}()

	return rctx
}

func (h *Handler) run(ctx context.Context, req Request, source string, rctx *Context) {
	if err := h.responder.SendResendResponseResending(source, req.RequestID, req.Key); err != nil && h.logger != nil {
		h.logger.WithError(err).WithField("source", source).Warn("resend: resending notice failed")
	}

	satisfied := false

	for _, strat := range h.strategies {
		if rctx.isStopped() {
			return
		}

		seq, err := strat.Resend(ctx, req)
		if err != nil {
			h.reportError(req, source, err)
			continue
		}

		rctx.setCurrent(seq)
		count := h.drain(ctx, seq, req, source)
		rctx.clearCurrent()

		if rctx.isStopped() {
			return
		}
		if count > 0 {
			satisfied = true
			break
		}
	}

	var sendErr error
	if satisfied {
		sendErr = h.responder.SendResendResponseResent(source, req.RequestID, req.Key)
	} else {
		sendErr = h.responder.SendResendResponseNoResend(source, req.RequestID, req.Key)
	}
	if sendErr != nil && h.logger != nil {
		h.logger.WithError(sendErr).WithField("source", source).Warn("resend: response send failed")
	}
}

// drain pulls every item from seq, forwarding it as a unicast message to
// source, until the sequence ends, errors, or stalls for maxInactivity.
func (h *Handler) drain(ctx context.Context, seq *Sequence, req Request, source string) int {
	count := 0
	for {
		iterCtx, cancel := context.WithTimeout(ctx, h.maxInactivity)
		msg, err, ok := seq.Next(iterCtx)
		cancel()

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			h.reportError(req, source, fmt.Errorf("%w: no activity for %s", ErrStrategyTimeout, h.maxInactivity))
			seq.Cancel()
			return count
		case errors.Is(err, context.Canceled):
			seq.Cancel()
			return count
		case err != nil:
			h.reportError(req, source, fmt.Errorf("%w: %v", ErrStrategyError, err))
			seq.Cancel()
			return count
		case !ok:
			return count
		}

		count++
		if sendErr := h.responder.SendUnicast(source, req.RequestID, msg); sendErr != nil {
			if h.logger != nil {
				h.logger.WithError(sendErr).WithField("source", source).Warn("resend: send failed")
			}
			seq.Cancel()
			return count
		}
	}
}

func (h *Handler) reportError(req Request, source string, err error) {
	if h.notifyError != nil {
		h.notifyError(req, source, err)
	}
}

func (h *Handler) sourceLock(source string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.sourceLocks[source]
	if !ok {
		l = &sync.Mutex{}
		h.sourceLocks[source] = l
	}
	return l
}

func (h *Handler) register(source string, rctx *Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.bySource[source]
	if !ok {
		set = make(map[*Context]struct{})
		h.bySource[source] = set
	}
	set[rctx] = struct{}{}
}

func (h *Handler) unregister(source string, rctx *Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.bySource[source]
	if !ok {
		return
	}
	delete(set, rctx)
	if len(set) == 0 {
		delete(h.bySource, source)
	}
}

// CancelSource cancels every outstanding resend for source (used when the
// peer disconnects) and returns their original requests so the caller can
// re-inform whatever logic needs to react.
func (h *Handler) CancelSource(source string) []Request {
	h.mu.Lock()
	set := h.bySource[source]
	ctxs := make([]*Context, 0, len(set))
	for c := range set {
		ctxs = append(ctxs, c)
	}
	h.mu.Unlock()

	reqs := make([]Request, 0, len(ctxs))
	for _, c := range ctxs {
		reqs = append(reqs, c.Request)
		c.Cancel()
	}
	return reqs
}

// NumOngoingResends reports the count of in-flight resend contexts.
func (h *Handler) NumOngoingResends() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.bySource {
		n += len(set)
	}
	return n
}

// MeanAge reports the mean age of every in-flight resend context.
func (h *Handler) MeanAge() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	var total time.Duration
	n := 0
	for _, set := range h.bySource {
		for c := range set {
			total += now.Sub(c.StartTime)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / time.Duration(n)
}
