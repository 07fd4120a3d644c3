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

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	songDir := flag.String("songs", "", "directory holding song_intro/")
	artistDir := flag.String("artists", "", "directory holding artist_intro/ and artist_song_ids/")
	clearCatalog := flag.Bool("clear", false, "empty the catalog before loading")
	rebuild := flag.Bool("rebuild", false, "queue a clearing rebuild of every collection after loading")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *songDir == "" && *artistDir == "" {
		fmt.Fprintln(os.Stderr, "at least one of -songs or -artists is required")
		os.Exit(2)
	}
	if cfg.Indexer.Backend == config.BackendMemory {
		slog.Error("the memory backend does not persist a catalog; run the searcher with -songs/-artists instead")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := store.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	var publisher loader.Publisher
	if *rebuild {
		if !cfg.Kafka.Enabled {
			slog.Error("-rebuild requires kafka to be enabled; run the indexer with -clear instead")
			os.Exit(1)
		}
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexRebuild)
		defer producer.Close()
		publisher = producer
	}

	report, err := loader.New(backends.Catalog, publisher).Load(ctx, loader.Options{
		SongDir:   *songDir,
		ArtistDir: *artistDir,
		Clear:     *clearCatalog,
		Rebuild:   *rebuild,
	})
	if err != nil {
		slog.Error("catalog load failed", "error", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}
