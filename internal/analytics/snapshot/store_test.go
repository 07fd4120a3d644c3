package snapshot

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/store/pgstore"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	port, _ := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "songsite_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "songsite"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 1,
	}
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	require.NoError(t, pgstore.Migrate(ctx, db))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE analytics_snapshots RESTART IDENTITY`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func TestSaveAndList(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	store := NewStore(db)

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.Save(ctx, analytics.AggregatedStats{TotalSearches: 1}))
	require.NoError(t, store.Save(ctx, analytics.AggregatedStats{TotalSearches: 2}))

	snaps, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.EqualValues(t, 2, snaps[0].Stats.TotalSearches)

	latest, err = store.Latest(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, latest.Stats.TotalSearches)
}

type fixedStats analytics.AggregatedStats

func (f fixedStats) Stats() analytics.AggregatedStats { return analytics.AggregatedStats(f) }

func TestRunSavesOnShutdown(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := NewStore(db)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, fixedStats{TotalSearches: 7}, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.EqualValues(t, 7, latest.Stats.TotalSearches)
}
