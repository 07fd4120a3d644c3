// Package consumer runs index rebuilds requested over Kafka and announces
// finished builds.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
)

// Builder is the part of indexer.Builder the consumer drives.
type Builder interface {
	Build(ctx context.Context, c catalog.Collection, opts indexer.BuildOptions) (*indexer.BuildReport, error)
}

type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// RebuildConsumer wraps a Kafka consumer on the index-rebuild topic.
type RebuildConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *RebuildConsumer {
	return &RebuildConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "rebuild-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (rc *RebuildConsumer) Start(ctx context.Context) error {
	rc.logger.Info("rebuild consumer starting")
	return rc.consumer.Start(ctx)
}

// HandleRebuild returns a MessageHandler that runs the requested builds one
// collection at a time and publishes an IndexCompleteEvent for each success.
// Malformed or invalid commands are logged and committed so they are not
// redelivered. A build refused because the index is populated or another
// build holds the collection is also dropped. completed may be nil.
func HandleRebuild(b Builder, completed Publisher, timeout time.Duration) kafka.MessageHandler {
	log := slog.Default().With("component", "rebuild-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		cmd, err := kafka.DecodeJSON[indexer.RebuildCommand](value)
		if err != nil {
			log.Error("failed to decode rebuild command", "error", err, "key", string(key))
			return nil
		}
		if cmd.RequestID != "" && logger.RequestID(ctx) == "" {
			ctx = logger.WithRequestID(ctx, cmd.RequestID)
		}
		reqLog := logger.FromContext(ctx).With("component", "rebuild-consumer")
		if err := cmd.Validate(); err != nil {
			reqLog.Error("rejecting rebuild command", "error", err, "collection", cmd.Collection)
			return nil
		}
		cols, _ := cmd.Collections()

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		for _, c := range cols {
			report, err := b.Build(ctx, c, cmd.Options())
			switch {
			case errors.Is(err, apperrors.ErrIndexNotEmpty), errors.Is(err, apperrors.ErrBuildInProgress):
				reqLog.Warn("rebuild skipped", "collection", c, "reason", err)
				continue
			case err != nil:
				return fmt.Errorf("rebuilding %s: %w", c, err)
			}
			if completed == nil {
				continue
			}
			event := kafka.Event{Key: string(c), Value: indexer.CompleteEvent(report)}
			if err := completed.Publish(ctx, event); err != nil {
				reqLog.Error("failed to announce completed build", "collection", c, "run_id", report.RunID, "error", err)
			}
		}
		return nil
	}
}
