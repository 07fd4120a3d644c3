// Package store opens the catalog and index backends selected by
// configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store/boltstore"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store/pgstore"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
)

// CatalogStore is the read and write side of the catalog.
type CatalogStore interface {
	catalog.Store
	catalog.Writer
}

type Backends struct {
	Catalog CatalogStore
	Index   index.Store
	// DB is nil for the memory backend.
	DB *postgres.Client

	closers []func() error
}

// Open connects the configured backend. With "memory" both catalog and
// index live in process and start empty. "bolt" keeps the catalog in
// PostgreSQL and the postings in a local bbolt file. "postgres" keeps
// both in PostgreSQL. The schema is migrated on open.
func Open(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}
	switch cfg.Indexer.Backend {
	case config.BackendMemory:
		b.Catalog = catalog.NewMemoryStore()
		b.Index = index.NewMemoryIndex()
		slog.Info("using in-memory catalog and index")
		return b, nil
	case config.BackendBolt, config.BackendPostgres:
	default:
		return nil, fmt.Errorf("unknown indexer backend %q", cfg.Indexer.Backend)
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	b.DB = db
	b.closers = append(b.closers, db.Close)
	if err := pgstore.Migrate(ctx, db); err != nil {
		b.Close()
		return nil, err
	}
	b.Catalog = pgstore.NewCatalogStore(db)

	switch cfg.Indexer.Backend {
	case config.BackendBolt:
		bs, err := boltstore.Open(cfg.Indexer.BoltPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, bs.Close)
		b.Index = bs
		slog.Info("using postgres catalog with bolt index", "path", cfg.Indexer.BoltPath)
	default:
		b.Index = pgstore.NewIndexStore(db)
		slog.Info("using postgres catalog and index", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	return b, nil
}

// Close releases the backends in reverse order of opening.
func (b *Backends) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}
