// Package apikey guards the administrative endpoints (index rebuilds and
// analytics history) with keys stored as SHA-256 hashes in PostgreSQL.
// Raw keys are generated with crypto/rand and shown only once.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

type KeyInfo struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Store validates and manages keys in the api_keys table.
type Store struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey-store"),
	}
}

// Validate returns the active key matching rawKey and stamps its last use.
func (s *Store) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var info KeyInfo
	var expiresAt, lastUsed sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, created_at, expires_at, last_used_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.CreatedAt, &expiresAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		if expiresAt.Time.Before(s.now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	if lastUsed.Valid {
		info.LastUsedAt = &lastUsed.Time
	}

	if _, err := s.db.DB.ExecContext(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, info.ID); err != nil {
		s.logger.Warn("failed to record key use", "key_id", info.ID, "error", err)
	}
	return &info, nil
}

// Create stores a new key and returns the raw value. It cannot be
// recovered later.
func (s *Store) Create(ctx context.Context, name string, ttl time.Duration) (string, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if ttl > 0 {
		expiry = sql.NullTime{Time: s.now().Add(ttl), Valid: true}
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, expires_at) VALUES ($1, $2, $3)`,
		HashKey(rawKey), name, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	s.logger.Info("api key created", "name", name, "ttl", ttl)
	return rawKey, nil
}

// Revoke deactivates the key with the given id.
func (s *Store) Revoke(ctx context.Context, id int64) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE id = $1 AND is_active`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	s.logger.Info("api key revoked", "key_id", id)
	return nil
}

// List returns the active keys, newest first.
func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, created_at, expires_at, last_used_at
		 FROM api_keys WHERE is_active ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var k KeyInfo
		var expiresAt, lastUsed sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &expiresAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		if lastUsed.Valid {
			k.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
