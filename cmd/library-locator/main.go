package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/library-locator/internal/cache"
	"github.com/mohammed-shakir/library-locator/internal/cache/memstore"
	"github.com/mohammed-shakir/library-locator/internal/cache/redisstore"
	"github.com/mohammed-shakir/library-locator/internal/catalog"
	"github.com/mohammed-shakir/library-locator/internal/core/config"
	"github.com/mohammed-shakir/library-locator/internal/core/health"
	"github.com/mohammed-shakir/library-locator/internal/core/httpclient"
	"github.com/mohammed-shakir/library-locator/internal/core/observability"
	"github.com/mohammed-shakir/library-locator/internal/core/router"
	"github.com/mohammed-shakir/library-locator/internal/core/server"
	"github.com/mohammed-shakir/library-locator/internal/geocoder"
	"github.com/mohammed-shakir/library-locator/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/library-locator/internal/locator"
	"github.com/mohammed-shakir/library-locator/internal/logger"
	"github.com/mohammed-shakir/library-locator/internal/lookupevents"
	h3mapper "github.com/mohammed-shakir/library-locator/internal/mapper/h3"
	"github.com/mohammed-shakir/library-locator/internal/metrics"
	"github.com/mohammed-shakir/library-locator/internal/region"
	"github.com/mohammed-shakir/library-locator/internal/resolver"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// a missing .env is fine; real deployments use the environment
	_ = godotenv.Load(*envFile)

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "library-locator",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	slog.SetDefault(appLog)

	if err := cfg.Validate(); err != nil {
		appLog.Error("invalid configuration", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), cfg.Metrics.Enabled)
	observability.ExposeBuildInfo(Version)

	appLog.Info("starting library-locator",
		"addr", cfg.Addr,
		"version", Version,
		"search_cache", cfg.SearchCache,
		"regions_version", region.Default().Version())

	hc := httpclient.NewOutbound(cfg.CatalogSearchTimeout)

	geo, err := geocoder.New(geocoder.Config{
		BaseURL: cfg.GeocoderBaseURL,
		APIKey:  cfg.VWorldAPIKey,
		Domain:  cfg.GeocoderDomain,
		Layer:   cfg.GeocoderLayer,
		Timeout: cfg.GeocoderTimeout,
	}, hc, appLog.With("component", "geocoder"))
	if err != nil {
		appLog.Error("geocoder setup failed", "err", err)
		return 1
	}

	cat, err := catalog.New(catalog.Config{
		BaseURL:             cfg.CatalogBaseURL,
		APIKey:              cfg.LibraryAPIKey,
		SearchTimeout:       cfg.CatalogSearchTimeout,
		AvailabilityTimeout: cfg.AvailabilityTimeout,
		RPS:                 cfg.CatalogRPS,
		Burst:               cfg.CatalogBurst,
	}, hc, appLog.With("component", "catalog"))
	if err != nil {
		appLog.Error("catalog setup failed", "err", err)
		return 1
	}

	ready := map[string]health.Check{}
	var provider locator.Catalog = cat
	var store cache.Interface

	switch cfg.SearchCache {
	case "memory":
		store = memstore.New(cfg.SearchCacheSize)
	case "redis":
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Error("redis setup failed", "err", err, "addr", cfg.RedisAddr)
			return 1
		}
		defer func() { _ = rc.Close() }()
		store = rc
		ready["redis"] = rc.Ping
	}
	if store != nil {
		provider = catalog.NewCached(cat, store, cfg.SearchCacheTTL, cfg.CacheOpTimeout, appLog.With("component", "search_cache"))
	}

	cells := h3mapper.New()
	table := region.Default()

	res := resolver.New(geo, table,
		resolver.WithCacheTTL(cfg.RegionCacheTTL),
		resolver.WithCacheRadius(cfg.RegionCacheRadiusM),
		resolver.WithLogger(appLog.With("component", "resolver")),
	)

	locOpts := []locator.Option{
		locator.WithMaxConcurrent(cfg.AvailabilityMaxConcurrent),
		locator.WithLogger(appLog.With("component", "locator")),
	}
	if cfg.LookupEvents.Enabled {
		pub, err := lookupevents.NewPublisher(config.SplitCSV(cfg.LookupEvents.Brokers),
			cfg.LookupEvents.Topic, cfg.LookupEvents.Queue, appLog.With("component", "lookupevents"))
		if err != nil {
			appLog.Error("lookup events setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("lookup events close", "err", err)
			}
		}()
		locOpts = append(locOpts, locator.WithObserver(pub.Observer(cells, cfg.LogCellRes)))
	}
	loc := locator.New(res, provider, locOpts...)

	if cfg.Invalidation.Enabled {
		if store == nil {
			appLog.Warn("invalidation enabled without a search cache; consumer not started")
		} else {
			cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), appLog.With("component", "invalidation"), &zl, store, table)
			go func() {
				if err := cons.Start(ctx); err != nil {
					appLog.Error("invalidation consumer stopped", "err", err)
				}
			}()
		}
	}

	opts := server.Options{
		Handlers: &router.Handlers{
			Logger:  appLog,
			Finder:  loc,
			Cells:   cells,
			CellRes: cfg.LogCellRes,
		},
		Ready: ready,
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Addr != "" {
			go func() {
				if err := p.Serve(ctx, appLog); err != nil {
					appLog.Error("metrics server exited", "err", err)
				}
			}()
		} else {
			opts.Metrics = p.Handler()
		}
	}

	if err := server.Run(ctx, cfg, appLog, opts); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
