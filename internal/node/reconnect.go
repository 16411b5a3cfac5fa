package node

import (
	"context"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"frameworks/network/internal/peer"
)

// maintainTracker dials url until it succeeds or ctx is cancelled, driven
// by a failsafe-go retry policy with exponential backoff from
// ReconnectBaseDelay up to ReconnectMaxDelay (spec.md §4.5 "Tracker
// reconnects are bootstrapped from the tracker URL list on disconnection
// with exponential backoff"). WithMaxRetries(-1) keeps retrying
// indefinitely; WithContext ties the policy to ctx so cancellation
// short-circuits it. On success it records the tracker's id and
// immediately reports the node's full current status so the tracker
// learns about any streams subscribed while disconnected.
func (e *Engine) maintainTracker(ctx context.Context, url string) {
	policy := retrypolicy.NewBuilder[peer.Info]().
		WithBackoff(e.cfg.ReconnectBaseDelay, e.cfg.ReconnectMaxDelay).
		WithMaxRetries(-1).
		WithJitterFactor(0.1).
		Build()

	info, err := failsafe.With(policy).WithContext(ctx).Get(func() (peer.Info, error) {
		info, connErr := e.transport.Connect(ctx, url)
		if connErr != nil {
			e.logger.WithError(connErr).WithField("tracker_url", url).Warn("node: tracker connect failed, retrying")
		}
		return info, connErr
	})
	if err != nil {
		return
	}

	e.mu.Lock()
	e.trackerIDByURL[url] = info.ID
	e.trackerURLByID[info.ID] = url
	e.mu.Unlock()

	e.logger.WithField("tracker", info.ID).Info("node: connected to tracker")
	e.broadcastStatus()
}
