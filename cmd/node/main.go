// Command node runs a streaming overlay node: it connects to its
// bootstrap trackers, maintains subscriptions and forwarding neighbours
// per the tracker's instructions, forwards published messages, answers
// resend requests, and serves the supplemented ops surface (health,
// metrics, status snapshot).
package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"frameworks/network/internal/metrics"
	"frameworks/network/internal/node"
	"frameworks/network/internal/peer"
	"frameworks/network/internal/protocol"
	"frameworks/network/internal/resend"
	"frameworks/network/internal/wsproto"
	"frameworks/network/pkg/config"
	"frameworks/network/pkg/logging"
	"frameworks/network/pkg/monitoring"
	redisutil "frameworks/network/pkg/redis"
	"frameworks/network/pkg/server"
	"frameworks/network/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("node")
	config.LoadEnv(logger)

	id := config.GetEnv("NODE_ID", "node")
	host := config.GetEnv("HOST", "0.0.0.0")
	wsPort := config.GetEnv("PORT", "33371")
	advertised := config.GetEnv("ADVERTISED_WS_URL", fmt.Sprintf("ws://%s:%s/ws", host, wsPort))
	trackerURLs := splitNonEmpty(config.GetEnv("TRACKERS", ""))
	pingInterval := time.Duration(config.GetEnvInt("PING_INTERVAL_MS", 5000)) * time.Millisecond
	disconnectionWait := time.Duration(config.GetEnvInt("DISCONNECTION_WAIT_MS", 30000)) * time.Millisecond
	statusInterval := time.Duration(config.GetEnvInt("STATUS_INTERVAL_MS", 10000)) * time.Millisecond
	maxInactivity := time.Duration(config.GetEnvInt("MAX_INACTIVITY_MS", 300000)) * time.Millisecond
	opsPort := config.GetEnv("OPS_PORT", "33372")
	redisAddr := config.GetEnv("REDIS_ADDR", "")

	bootstrap, err := config.LoadBootstrap(config.GetEnv("BOOTSTRAP_FILE", ""))
	if err != nil {
		logger.WithError(err).Fatal("node: failed to load bootstrap file")
	}
	trackerURLs = bootstrap.MergeTrackerURLs(trackerURLs)

	self, err := peer.New(id, peer.TypeNode)
	if err != nil {
		logger.WithError(err).Fatal("node: invalid node id")
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

	codec := protocol.NewJSONCodec()
	eng := node.New(node.Config{
		Self:                  self,
		AdvertisedURL:         advertised,
		TrackerURLs:           trackerURLs,
		DisconnectionWaitTime: disconnectionWait,
		StatusInterval:        statusInterval,
		Logger:                logger,
	}, endpoint, codec)

	handler, redisClient := buildResendHandler(eng, maxInactivity, redisAddr, logger)
	eng.SetResendCallback(func(msg any, source string) {
		if req, ok := resend.RequestFromWire(msg); ok {
			handler.Handle(req, source)
		}
	})
	eng.Events().Subscribe(func(ev node.Event) {
		if ev.Type == node.EventNodeDisconnected {
			handler.CancelSource(ev.Peer)
		}
	})

	healthChecker := monitoring.NewHealthChecker("node", version.Version)
	healthChecker.AddCheck("transport", func() monitoring.CheckResult {
		return monitoring.CheckResult{Status: monitoring.StatusHealthy, Message: "endpoint accepting connections"}
	})
	if redisClient != nil {
		healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	}
	metricsCollector := monitoring.NewMetricsCollector("node", version.Version, version.GitCommit)
	overlay := metrics.New(metricsCollector)

	router := server.SetupServiceRouter(logger, "node", healthChecker, metricsCollector)
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, statusSnapshot(eng))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := endpoint.Start(ctx); err != nil {
		logger.WithError(err).Fatal("node: failed to start transport")
	}

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("node: run loop exited")
		}
	}()

	go reportResendMetrics(ctx, handler, overlay)

	serverConfig := server.DefaultConfig("node", opsPort)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Error("node: ops server stopped with error")
	}

	logger.Info("node: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := endpoint.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("node: transport shutdown error")
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// buildResendHandler assembles the resend strategy chain: an in-memory
// store, tried first, falling back to a Redis-backed store when
// REDIS_ADDR is configured (spec.md §4.7's ordered strategy list).
func buildResendHandler(eng *node.Engine, maxInactivity time.Duration, redisAddr string, logger logging.Logger) (*resend.Handler, goredis.UniversalClient) {
	inMemory := resend.NewInMemoryStore()
	strategies := []resend.Strategy{inMemory}

	var client goredis.UniversalClient
	var redisStore *resend.RedisStore
	if redisAddr != "" {
		c, err := redisutil.NewUniversalClient(context.Background(), redisutil.Config{
			Mode:  redisutil.ModeSingle,
			Addrs: []string{redisAddr},
		})
		if err != nil {
			logger.WithError(err).Warn("node: redis resend store unavailable, continuing with in-memory only")
		} else {
			client = c
			redisStore = resend.NewRedisStore(client, "resend")
			strategies = append(strategies, redisStore)
		}
	}

	// Every message this node receives, whether forwarded by a neighbour or
	// delivered as somebody else's resend, becomes a candidate for our own
	// resend strategies to answer later. Messages published locally through
	// Engine.Publish emit no MESSAGE_RECEIVED event and are not stored here.
	eng.Events().Subscribe(func(ev node.Event) {
		if ev.Type != node.EventMessageReceived {
			return
		}
		inMemory.Append(ev.Message)
		if redisStore != nil {
			if err := redisStore.Append(context.Background(), ev.Message); err != nil {
				logger.WithError(err).Warn("node: failed to persist message to redis resend store")
			}
		}
	})

	handler := resend.NewHandler(strategies, eng.NodeProtocol(), logger)
	handler.SetMaxInactivity(maxInactivity)
	handler.SetNotifyError(func(req resend.Request, source string, err error) {
		logger.WithError(err).WithField("source", source).Warn("node: resend strategy failed")
	})
	return handler, client
}

func statusSnapshot(eng *node.Engine) map[string]any {
	mgr := eng.StreamManager()
	keys := mgr.Keys()
	streams := make(map[string]any, len(keys))
	for _, key := range keys {
		streams[key.String()] = map[string]any{
			"inbound":  mgr.Inbound(key),
			"outbound": mgr.Outbound(key),
			"counter":  mgr.Counter(key),
		}
	}
	return map[string]any{"streams": streams}
}

func reportResendMetrics(ctx context.Context, handler *resend.Handler, overlay *metrics.Overlay) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			overlay.SetResendOngoing(handler.NumOngoingResends())
			overlay.SetResendMeanAge(handler.MeanAge())
		case <-ctx.Done():
			return
		}
	}
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
