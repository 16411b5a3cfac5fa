// Command tracker runs the overlay tracker process: it accepts node
// connections, computes per-stream-key neighbour topologies, and serves
// the supplemented ops surface (health, metrics, topology snapshot).
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/network/internal/metrics"
	"frameworks/network/internal/peer"
	"frameworks/network/internal/protocol"
	"frameworks/network/internal/tracker"
	"frameworks/network/internal/wsproto"
	"frameworks/network/pkg/config"
	"frameworks/network/pkg/logging"
	"frameworks/network/pkg/monitoring"
	"frameworks/network/pkg/server"
	"frameworks/network/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("tracker")
	config.LoadEnv(logger)

	id := config.GetEnv("TRACKER_ID", "tracker")
	host := config.GetEnv("HOST", "0.0.0.0")
	wsPort := config.GetEnv("PORT", "32400")
	advertised := config.GetEnv("ADVERTISED_WS_URL", fmt.Sprintf("ws://%s:%s/ws", host, wsPort))
	maxNeighbours := config.GetEnvInt("MAX_NEIGHBOURS", 4)
	pingInterval := time.Duration(config.GetEnvInt("PING_INTERVAL_MS", 5000)) * time.Millisecond
	opsPort := config.GetEnv("OPS_PORT", "32401")

	bootstrap, err := config.LoadBootstrap(config.GetEnv("BOOTSTRAP_FILE", ""))
	if err != nil {
		logger.WithError(err).Fatal("tracker: failed to load bootstrap file")
	}

	self, err := peer.New(id, peer.TypeTracker)
	if err != nil {
		logger.WithError(err).Fatal("tracker: invalid tracker id")
	}

	book := peer.NewBook()
	bootstrap.SeedBook(book)

	certFile, keyFile := config.TLSFiles()

	endpoint := wsproto.New(wsproto.Config{
		Self:          self,
		AdvertisedURL: advertised,
		ListenAddr:    host + ":" + wsPort,
		PingInterval:  pingInterval,
		Logger:        logger,
		CertFile:      certFile,
		KeyFile:       keyFile,
	}, book)

	trk := tracker.NewTracker(self, endpoint, protocol.NewJSONCodec(), maxNeighbours, logger)

	healthChecker := monitoring.NewHealthChecker("tracker", version.Version)
	healthChecker.AddCheck("transport", func() monitoring.CheckResult {
		return monitoring.CheckResult{Status: monitoring.StatusHealthy, Message: "endpoint accepting connections"}
	})
	metricsCollector := monitoring.NewMetricsCollector("tracker", version.Version, version.GitCommit)
	overlay := metrics.New(metricsCollector)

	router := server.SetupServiceRouter(logger, "tracker", healthChecker, metricsCollector)
	router.GET("/topology", func(c *gin.Context) {
		c.JSON(http.StatusOK, trk.GetTopology())
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := endpoint.Start(ctx); err != nil {
		logger.WithError(err).Fatal("tracker: failed to start transport")
	}

	go func() {
		if err := trk.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("tracker: run loop exited")
		}
	}()

	go reportTopologySize(ctx, trk, overlay)

	serverConfig := server.DefaultConfig("tracker", opsPort)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Error("tracker: ops server stopped with error")
	}

	logger.Info("tracker: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := endpoint.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("tracker: transport shutdown error")
	}
}

// reportTopologySize periodically reflects the overlay's total
// node-to-node edge count into the ops surface's connection gauge.
func reportTopologySize(ctx context.Context, trk *tracker.Tracker, overlay *metrics.Overlay) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			links := 0
			for _, nodes := range trk.GetTopology() {
				for _, neighbours := range nodes {
					links += len(neighbours)
				}
			}
			// Each edge is listed under both of its ends.
			overlay.SetPeerConnections("node", links/2)
		case <-ctx.Done():
			return
		}
	}
}
