// Package pgstore keeps the catalog and the inverted index in PostgreSQL.
package pgstore

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
)

// Schema creates every table the services use. It is safe to run on each
// start.
const Schema = `
CREATE TABLE IF NOT EXISTS artists (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    alias        TEXT[] NOT NULL DEFAULT '{}',
    original_id  TEXT UNIQUE,
    intro        TEXT,
    history      TEXT,
    master_works TEXT[] NOT NULL DEFAULT '{}',
    milestones   TEXT[] NOT NULL DEFAULT '{}',
    original_url TEXT
);
CREATE INDEX IF NOT EXISTS idx_artists_name ON artists(name);

CREATE TABLE IF NOT EXISTS songs (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    alias        TEXT,
    lyrics       TEXT NOT NULL DEFAULT '',
    original_id  TEXT NOT NULL UNIQUE,
    original_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS song_artists (
    id        BIGSERIAL PRIMARY KEY,
    song_id   BIGINT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
    artist_id BIGINT NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
    UNIQUE (song_id, artist_id)
);

-- One vocabulary per collection; postings die with their segment.
CREATE TABLE IF NOT EXISTS segments (
    id         BIGSERIAL PRIMARY KEY,
    collection TEXT NOT NULL,
    token      TEXT NOT NULL,
    df         BIGINT NOT NULL CHECK (df > 0),
    UNIQUE (collection, token)
);

CREATE TABLE IF NOT EXISTS postings (
    id         BIGSERIAL PRIMARY KEY,
    segment_id BIGINT NOT NULL REFERENCES segments(id) ON DELETE CASCADE,
    article_id BIGINT NOT NULL,
    tf         BIGINT NOT NULL CHECK (tf > 0)
);
CREATE INDEX IF NOT EXISTS idx_postings_segment ON postings(segment_id);

CREATE TABLE IF NOT EXISTS api_keys (
    id           BIGSERIAL PRIMARY KEY,
    key_hash     TEXT NOT NULL UNIQUE,
    name         TEXT NOT NULL,
    is_active    BOOLEAN NOT NULL DEFAULT true,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at   TIMESTAMPTZ,
    last_used_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

func Migrate(ctx context.Context, db *postgres.Client) error {
	if _, err := db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
