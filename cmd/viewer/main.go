package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/geojson-viewer/internal/cache"
	"github.com/mohammed-shakir/geojson-viewer/internal/cache/memstore"
	"github.com/mohammed-shakir/geojson-viewer/internal/cache/redisstore"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/config"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/httpclient"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/router"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/server"
	"github.com/mohammed-shakir/geojson-viewer/internal/ingest"
	"github.com/mohammed-shakir/geojson-viewer/internal/logger"
	h3mapper "github.com/mohammed-shakir/geojson-viewer/internal/mapper/h3"
	"github.com/mohammed-shakir/geojson-viewer/internal/metrics"
	"github.com/mohammed-shakir/geojson-viewer/internal/session"
	"github.com/mohammed-shakir/geojson-viewer/internal/viewevents"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "viewer",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	appLog.Info("starting viewer",
		"addr", cfg.Addr,
		"version", Version,
		"store", cfg.StoreDriver,
		"ingest", cfg.Ingest.Enabled,
		"view_events", cfg.ViewEvents.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		appLog.Error("store setup failed", "driver", cfg.StoreDriver, "err", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	m, err := h3mapper.New(cfg.PickH3Res)
	if err != nil {
		appLog.Error("mapper setup failed", "err", err)
		return 1
	}

	var opts []session.Option
	if cfg.ViewEvents.Enabled {
		pub, err := viewevents.NewPublisher(cfg.ViewEvents.Brokers, cfg.ViewEvents.Topic, cfg.ViewEvents.QueueSize, zl)
		if err != nil {
			appLog.Error("view events setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, session.WithEvents(pub))
	}

	reg, err := session.New(store, m, session.Config{
		TTL:                cfg.SessionTTL,
		MaxSessions:        cfg.MaxSessions,
		SeriesCacheSize:    cfg.SeriesCacheSize,
		MaxCellsPerFeature: cfg.MaxCellsPerFeature,
	}, &zl, opts...)
	if err != nil {
		appLog.Error("session registry setup failed", "err", err)
		return 1
	}

	runner := ingest.New(cfg.Ingest, reg, ingest.Options{Logger: appLog, Register: p.Registerer()})
	if err := runner.Start(ctx); err != nil {
		appLog.Error("ingest start failed", "err", err)
		return 1
	}
	defer runner.Stop()

	var fetcher router.Fetcher
	if len(cfg.FetchAllowedHosts) > 0 {
		fetcher = httpclient.Fetcher{
			Client: httpclient.NewOutbound(cfg.FetchTimeout),
			Allow:  httpclient.NewAllowlist(cfg.FetchAllowedHosts),
		}
	}
	api := router.NewAPI(reg, fetcher, cfg.MaxDocumentBytes, appLog)

	srvOpts := server.Options{Store: store, Ingest: runner}
	if cfg.Metrics.Enabled {
		srvOpts.Metrics = p.Handler()
		srvOpts.MetricsPath = p.Path()
	}
	h := server.NewHandler(appLog, api, srvOpts)

	if err := server.Run(ctx, cfg.Addr, appLog, h); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return memstore.New(cfg.MemStoreSize, cfg.SessionTTL), nil
	}
	return redisstore.New(ctx, cfg.RedisAddr,
		redisstore.WithReadTimeout(cfg.StoreOpTimeout),
		redisstore.WithWriteTimeout(cfg.StoreOpTimeout),
	)
}
