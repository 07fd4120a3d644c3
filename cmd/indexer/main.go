package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	collection := flag.String("collection", indexer.ScopeAll, "collection to build: song, artist or all")
	clearIndex := flag.Bool("clear", false, "delete the existing index before building")
	appendMode := flag.Bool("append", false, "build on top of a populated index (duplicates postings)")
	listen := flag.Bool("listen", false, "consume rebuild commands from kafka instead of building once")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "backend", cfg.Indexer.Backend, "listen", *listen)

	if cfg.Indexer.Backend == config.BackendMemory {
		slog.Error("the memory backend does not persist an index; run the searcher with -songs/-artists instead")
		os.Exit(1)
	}

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
	}
	builder := indexer.NewBuilder(backends.Catalog, backends.Index, tokenizer.New(seg), m)

	var completed consumer.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		completed = producer
	}

	if *listen {
		if !cfg.Kafka.Enabled {
			slog.Error("-listen requires kafka to be enabled")
			os.Exit(1)
		}
		kafkaConsumer := kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.IndexRebuild,
			consumer.HandleRebuild(builder, completed, cfg.Indexer.BuildTimeout),
		)
		defer kafkaConsumer.Close()
		rebuildConsumer := consumer.New(kafkaConsumer)

		slog.Info("indexer ready, consuming rebuild commands",
			"topic", cfg.Kafka.Topics.IndexRebuild,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := rebuildConsumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
		slog.Info("indexer stopped")
		return
	}

	cmd := indexer.RebuildCommand{
		Collection:  *collection,
		Clear:       *clearIndex,
		Append:      *appendMode,
		RequestedAt: time.Now().UTC(),
	}
	if err := cmd.Validate(); err != nil {
		slog.Error("invalid build request", "error", err)
		os.Exit(2)
	}
	cols, _ := cmd.Collections()

	if cfg.Indexer.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Indexer.BuildTimeout)
		defer cancel()
	}

	failed := false
	for _, c := range cols {
		report, err := builder.Build(ctx, c, cmd.Options())
		if err != nil {
			slog.Error("build failed", "collection", c, "error", err)
			failed = true
			continue
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		if completed != nil {
			if err := completed.Publish(ctx, kafka.Event{Key: string(c), Value: indexer.CompleteEvent(report)}); err != nil {
				slog.Warn("failed to announce completed build", "collection", c, "error", err)
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}
