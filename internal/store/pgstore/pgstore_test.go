package pgstore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
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
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnectAttempts: 1,
	}
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Skipf("skipping: postgres unavailable: %v", err)
	}
	require.NoError(t, Migrate(ctx, db))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE postings, segments, song_artists, songs, artists RESTART IDENTITY CASCADE`)
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

func strPtr(s string) *string { return &s }

func TestCatalogStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	store := NewCatalogStore(db)

	full := &catalog.Artist{
		Name:        "周杰伦",
		Alias:       []string{"Jay Chou"},
		OriginalID:  strPtr("6452"),
		Intro:       strPtr("华语流行歌手"),
		MasterWorks: []string{"晴天", "七里香"},
		OriginalURL: strPtr("https://music.163.com/artist?id=6452"),
	}
	require.NoError(t, store.UpsertArtist(ctx, full))
	stub := &catalog.Artist{Name: "X", OriginalURL: strPtr(" ")}
	require.NoError(t, store.UpsertArtist(ctx, stub))

	song := &catalog.Song{Name: "晴天", Lyrics: "故事的小黄花", OriginalID: "186016"}
	require.NoError(t, store.UpsertSong(ctx, song))
	require.NoError(t, store.LinkSongArtist(ctx, song.ID, full.ID))
	require.NoError(t, store.LinkSongArtist(ctx, song.ID, stub.ID))
	require.NoError(t, store.LinkSongArtist(ctx, song.ID, stub.ID))

	got, err := store.GetSong(ctx, song.ID)
	require.NoError(t, err)
	assert.Equal(t, []catalog.ArtistRef{{ID: full.ID, Name: "周杰伦"}, {ID: stub.ID, Name: "X"}}, got.Artists)

	n, err := store.CountEligible(ctx, catalog.Artists)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "blank url is stored as missing")

	a, err := store.ArtistByOriginalID(ctx, "6452")
	require.NoError(t, err)
	assert.Equal(t, []string{"晴天", "七里香"}, a.MasterWorks)

	_, err = store.GetArtist(ctx, 9999)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestEligibilityMatchesMemoryStore(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	store := NewCatalogStore(db)
	mem := catalog.NewMemoryStore()

	urls := []string{"https://music.163.com/artist?id=1", "\t", " \r\n", "\u3000", " https://music.163.com/artist?id=2 "}
	for i, u := range urls {
		// Raw inserts skip the blank-URL normalization of UpsertArtist.
		_, err := db.DB.ExecContext(ctx,
			`INSERT INTO artists (name, original_id, original_url) VALUES ($1, $2, $3)`,
			"a"+strconv.Itoa(i), strconv.Itoa(i), u)
		require.NoError(t, err)
		mem.PutArtist(&catalog.Artist{ID: int64(i + 1), Name: "a" + strconv.Itoa(i), OriginalURL: strPtr(u)})
	}

	want, err := mem.CountEligible(ctx, catalog.Artists)
	require.NoError(t, err)
	got, err := store.CountEligible(ctx, catalog.Artists)
	require.NoError(t, err)
	assert.EqualValues(t, 2, want)
	assert.Equal(t, want, got)
}

func TestIndexStoreBuild(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	cat := NewCatalogStore(db)
	idx := NewIndexStore(db)

	for i, lyrics := range []string{"sun sun moon", "moon moon star"} {
		s := &catalog.Song{Name: "s", Lyrics: lyrics, OriginalID: strconv.Itoa(i + 1)}
		require.NoError(t, cat.UpsertSong(ctx, s))
	}

	b := indexer.NewBuilder(cat, idx, tokenizer.New(tokenizer.RuneSegmenter{}), nil)
	_, err := b.Build(ctx, catalog.Songs, indexer.BuildOptions{Clear: true})
	require.NoError(t, err)
	first, err := idx.Snapshot(ctx, catalog.Songs)
	require.NoError(t, err)

	_, err = b.Build(ctx, catalog.Songs, indexer.BuildOptions{Clear: true})
	require.NoError(t, err)
	second, err := idx.Snapshot(ctx, catalog.Songs)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	seg, postings, err := idx.Lookup(ctx, catalog.Songs, "moon")
	require.NoError(t, err)
	assert.EqualValues(t, 2, seg.DF)
	assert.Len(t, postings, 2)

	_, _, err = idx.Lookup(ctx, catalog.Artists, "moon")
	assert.ErrorIs(t, err, apperrors.ErrSegmentNotFound)

	_, err = b.Build(ctx, catalog.Songs, indexer.BuildOptions{})
	assert.ErrorIs(t, err, apperrors.ErrIndexNotEmpty)
}

func TestIndexStoreAdvisoryLock(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	idx := NewIndexStore(db)

	unlock, err := idx.LockCollection(ctx, catalog.Songs)
	require.NoError(t, err)

	_, err = idx.LockCollection(ctx, catalog.Songs)
	assert.ErrorIs(t, err, apperrors.ErrBuildInProgress)

	other, err := idx.LockCollection(ctx, catalog.Artists)
	require.NoError(t, err)
	other()

	unlock()
	again, err := idx.LockCollection(ctx, catalog.Songs)
	require.NoError(t, err)
	again()
}
