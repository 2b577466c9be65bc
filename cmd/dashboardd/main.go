// dashboardd serves the traffic map dashboard's data layer: cached road
// capacity estimates and a polled feed of live chokepoint clusters.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/trafficlens/datalayer/internal/cache/redisstore"
	"github.com/trafficlens/datalayer/internal/config"
	"github.com/trafficlens/datalayer/internal/estimate"
	"github.com/trafficlens/datalayer/internal/httpclient"
	kafkainv "github.com/trafficlens/datalayer/internal/invalidation/kafka"
	"github.com/trafficlens/datalayer/internal/logger"
	"github.com/trafficlens/datalayer/internal/observability"
	"github.com/trafficlens/datalayer/internal/poller"
	"github.com/trafficlens/datalayer/internal/server"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "dashboardd",
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	log.Info("starting dashboardd",
		"addr", cfg.Addr,
		"version", Version,
		"estimate_url", cfg.EstimateURL,
		"clusters_url", cfg.ClustersURL,
		"redis", cfg.RedisAddr != "",
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.NewOutbound()

	var shared estimate.SharedStore
	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			// the shared tier is an optimization; run memory-only instead
			log.Warn("redis unavailable, continuing without shared tier", "err", err)
		} else {
			defer func() { _ = rc.Close() }()
			shared = rc
		}
	}

	estimates := estimate.New(estimate.Config{
		Precision:          cfg.BucketPrecision,
		TTL:                cfg.EstimateTTL,
		MaxEntries:         cfg.EstimateMaxEntries,
		ChunkSize:          cfg.BatchChunk,
		FallbackMultiplier: cfg.FallbackMultiplier,
		OpTimeout:          cfg.CacheOpTimeout,
	}, estimate.NewHTTPFetcher(cfg.EstimateURL, httpClient), estimate.Options{
		Logger: log,
		Shared: shared,
	})

	live := poller.New(poller.Config{
		Interval: cfg.PollInterval,
		Timeout:  cfg.FetchTimeout,
	}, poller.NewClustersClient(cfg.ClustersURL, httpClient), log)
	live.Start(ctx, cfg.ClusterQuery)
	defer live.Stop()

	if cfg.Invalidation.Enabled {
		runner := kafkainv.New(kafkainv.Config{
			Enabled:   true,
			Brokers:   strings.Split(cfg.Invalidation.Brokers, ","),
			Topic:     cfg.Invalidation.Topic,
			GroupID:   cfg.Invalidation.GroupID,
			Precision: cfg.BucketPrecision,
		}, estimates, log)
		if err := runner.Start(ctx); err != nil {
			log.Error("invalidation runner failed to start", "err", err)
			return 1
		}
		defer runner.Stop()
	}

	api := server.NewAPI(log, estimates, live)
	if err := server.Run(ctx, cfg.Addr, api.Router(), log); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}
