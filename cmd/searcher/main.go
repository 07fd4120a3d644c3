package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	songDir := flag.String("songs", "", "with the memory backend, load songs from this directory at startup")
	artistDir := flag.String("artists", "", "with the memory backend, load artists from this directory at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "backend", cfg.Indexer.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	backends, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	var seg tokenizer.Segmenter
	if cfg.Indexer.DictPath != "" {
		dictSeg, err := tokenizer.NewSegoSegmenter(cfg.Indexer.DictPath)
		if err != nil {
			slog.Error("failed to load segmentation dictionary", "error", err)
			os.Exit(1)
		}
		seg = dictSeg
		slog.Info("segmentation dictionary loaded", "path", cfg.Indexer.DictPath)
	}
	tok := tokenizer.New(seg)
	builder := indexer.NewBuilder(backends.Catalog, backends.Index, tok, m)

	if cfg.Indexer.Backend == config.BackendMemory && (*songDir != "" || *artistDir != "") {
		if _, err := loader.New(backends.Catalog, nil).Load(ctx, loader.Options{SongDir: *songDir, ArtistDir: *artistDir}); err != nil {
			slog.Error("failed to load catalog", "error", err)
			os.Exit(1)
		}
		if _, err := builder.BuildAll(ctx, indexer.BuildOptions{Clear: true}); err != nil {
			slog.Error("failed to build index", "error", err)
			os.Exit(1)
		}
	}

	checker := health.NewChecker()
	if backends.DB != nil {
		checker.Register("postgres", health.PingCheck(backends.DB.Ping, false))
	}

	var rankCache *cache.RankingCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.New(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, ranking cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			rankCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, true))
			slog.Info("ranking cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	execCfg := executor.Config{
		QueryTimeout: cfg.Search.QueryTimeout,
		MaxResults:   cfg.Search.MaxResults,
		Metrics:      m,
	}
	opts := handler.Options{}
	if rankCache != nil {
		execCfg.Cache = rankCache
		opts.Cache = rankCache
	}
	exec := executor.New(backends.Catalog, backends.Index, tok, execCfg)

	aggregator := analytics.NewAggregator()
	var analyticsPublisher analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		analyticsPublisher = analyticsProducer

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.Handle())
		defer analyticsConsumer.Close()
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		rebuildProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexRebuild)
		defer rebuildProducer.Close()
		opts.Rebuilds = rebuildProducer

		if rankCache != nil {
			completeConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, rankCache.HandleIndexComplete())
			defer completeConsumer.Close()
			go func() {
				if err := completeConsumer.Start(ctx); err != nil {
					slog.Error("index-complete consumer error", "error", err)
				}
			}()
		}
		slog.Info("kafka wiring enabled", "brokers", cfg.Kafka.Brokers)
	} else {
		opts.Rebuilds = &localRebuilds{
			ctx:    ctx,
			handle: consumer.HandleRebuild(builder, &localInvalidator{cache: rankCache}, cfg.Indexer.BuildTimeout),
		}
		slog.Info("kafka disabled, analytics and rebuilds run in process")
	}

	collector := analytics.NewCollector(analyticsPublisher, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()
	opts.Tracker = collector

	var history analytics.History
	if backends.DB != nil && cfg.Analytics.SnapshotInterval > 0 {
		snapshots := snapshot.NewStore(backends.DB)
		history = func(ctx context.Context, limit int) (any, error) {
			return snapshots.List(ctx, limit)
		}
		go snapshots.Run(ctx, aggregator, cfg.Analytics.SnapshotInterval)
	}
	analyticsH := analytics.NewHandler(aggregator, history)
	var historyRoute http.Handler = http.HandlerFunc(analyticsH.History)
	if cfg.Admin.RequireKey {
		opts.Admin = apikey.Require(apikey.NewStore(backends.DB))
		historyRoute = opts.Admin(historyRoute)
		slog.Info("admin endpoints require an api key")
	}

	h := handler.New(exec, backends.Catalog, cfg.Search.PageSize, opts)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.Handle("GET /api/v1/analytics/history", historyRoute)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ctx, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// localRebuilds runs rebuild commands in a goroutine of this process, the
// same way the indexer service handles them from Kafka.
type localRebuilds struct {
	ctx    context.Context
	handle kafka.MessageHandler
}

func (l *localRebuilds) Publish(ctx context.Context, event kafka.Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return err
	}
	runCtx := logger.WithRequestID(l.ctx, logger.RequestID(ctx))
	go func() {
		if err := l.handle(runCtx, []byte(event.Key), value); err != nil {
			slog.Error("in-process rebuild failed", "error", err)
		}
	}()
	return nil
}

// localInvalidator drops cached rankings when an in-process build
// completes.
type localInvalidator struct {
	cache *cache.RankingCache
}

func (l *localInvalidator) Publish(ctx context.Context, event kafka.Event) error {
	if l.cache == nil {
		return nil
	}
	value, err := json.Marshal(event.Value)
	if err != nil {
		return err
	}
	return l.cache.HandleIndexComplete()(ctx, []byte(event.Key), value)
}
