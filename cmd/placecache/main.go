package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/openpoi/placecache/internal/api"
	"github.com/openpoi/placecache/internal/core/config"
	"github.com/openpoi/placecache/internal/core/observability"
	"github.com/openpoi/placecache/internal/core/server"
	"github.com/openpoi/placecache/internal/invalidation/kafkaconsumer"
	"github.com/openpoi/placecache/internal/logger"
	"github.com/openpoi/placecache/internal/places"
	"github.com/openpoi/placecache/internal/remote"
	"github.com/openpoi/placecache/internal/store/localstore"
	"github.com/openpoi/placecache/internal/store/redisstore"
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
		Component: "placecache",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting placecache",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisAddr,
		"places_table", cfg.PlacesTable)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local store is best-effort: without Redis the service runs
	// remote-only with caching disabled.
	var rc *redisstore.Client
	if cfg.RedisAddr != "" {
		var err error
		rc, err = redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Warn("local store unreachable, running without cache", "err", err)
			rc = nil
		}
	}
	store := localstore.New(rc, cfg.CacheOpTimeout, zl)
	if err := store.Initialize(ctx); err != nil {
		appLog.Warn("cache disabled", "err", err)
	}

	if cfg.PostgresDSN == "" {
		appLog.Error("POSTGRES_DSN is required")
		return 1
	}
	src, err := remote.OpenPostgres(cfg.PostgresDSN)
	if err != nil {
		appLog.Error("remote store setup failed", "err", err)
		return 1
	}
	defer func() { _ = src.Close() }()

	schema := remote.ReviewSchema{
		Tables:     cfg.ReviewTables,
		JoinFields: cfg.ReviewJoinFields,
	}
	fetcher := remote.NewFetcher(src, store, schema, cfg.PlacesTable, cfg.RowLimit, zl)
	svc := places.NewService(store, fetcher, cfg.CacheDuration, zl)

	// Initial load: cache-hit publishes immediately and refreshes in
	// the background; otherwise this blocks on the first remote fetch.
	svc.Load(ctx)

	handler := api.NewHandler(svc, appLog)
	router := api.Router(cfg, appLog, handler, store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Addr, appLog, router)
	})
	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromService(cfg.Invalidation), appLog, store)
		g.Go(func() error {
			return consumer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	svc.WaitBackground()
	appLog.Info("server stopped")
	return 0
}
