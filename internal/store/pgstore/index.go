package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
)

// IndexStore implements index.Store and index.Locker over the segments and
// postings tables.
type IndexStore struct {
	db *postgres.Client
}

func NewIndexStore(db *postgres.Client) *IndexStore {
	return &IndexStore{db: db}
}

func (s *IndexStore) Clear(ctx context.Context, c catalog.Collection) error {
	if _, err := s.db.DB.ExecContext(ctx, `DELETE FROM segments WHERE collection = $1`, string(c)); err != nil {
		return fmt.Errorf("clearing %s segments: %w", c, err)
	}
	return nil
}

func (s *IndexStore) SegmentCount(ctx context.Context, c catalog.Collection) (int64, error) {
	var n int64
	err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments WHERE collection = $1`, string(c)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s segments: %w", c, err)
	}
	return n, nil
}

// AddDocument upserts every segment and inserts its posting in one
// transaction. Tokens are processed in sorted order so concurrent writers
// lock segment rows in the same order.
func (s *IndexStore) AddDocument(ctx context.Context, c catalog.Collection, docID int64, termFreqs map[string]int) error {
	if len(termFreqs) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(termFreqs))
	for t := range termFreqs {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx,
			`INSERT INTO segments (collection, token, df) VALUES ($1, $2, 1)
			 ON CONFLICT (collection, token) DO UPDATE SET df = segments.df + 1
			 RETURNING id`)
		if err != nil {
			return fmt.Errorf("preparing segment upsert: %w", err)
		}
		defer upsert.Close()
		insert, err := tx.PrepareContext(ctx,
			`INSERT INTO postings (segment_id, article_id, tf) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("preparing posting insert: %w", err)
		}
		defer insert.Close()

		for _, token := range tokens {
			var segmentID int64
			if err := upsert.QueryRowContext(ctx, string(c), token).Scan(&segmentID); err != nil {
				return fmt.Errorf("upserting segment %q: %w", token, err)
			}
			if _, err := insert.ExecContext(ctx, segmentID, docID, termFreqs[token]); err != nil {
				return fmt.Errorf("inserting posting for %q: %w", token, err)
			}
		}
		return nil
	})
}

func (s *IndexStore) Lookup(ctx context.Context, c catalog.Collection, token string) (index.Segment, index.PostingList, error) {
	seg := index.Segment{Token: token}
	var segmentID int64
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, df FROM segments WHERE collection = $1 AND token = $2`, string(c), token,
	).Scan(&segmentID, &seg.DF)
	if errors.Is(err, sql.ErrNoRows) {
		return index.Segment{}, nil, fmt.Errorf("%s segment %q: %w", c, token, apperrors.ErrSegmentNotFound)
	}
	if err != nil {
		return index.Segment{}, nil, fmt.Errorf("looking up segment %q: %w", token, err)
	}

	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT article_id, tf FROM postings WHERE segment_id = $1 ORDER BY id`, segmentID)
	if err != nil {
		return index.Segment{}, nil, fmt.Errorf("querying postings of %q: %w", token, err)
	}
	defer rows.Close()
	var postings index.PostingList
	for rows.Next() {
		var p index.Posting
		if err := rows.Scan(&p.ArticleID, &p.TF); err != nil {
			return index.Segment{}, nil, fmt.Errorf("scanning posting: %w", err)
		}
		postings = append(postings, p)
	}
	return seg, postings, rows.Err()
}

func (s *IndexStore) Snapshot(ctx context.Context, c catalog.Collection) ([]index.TermEntry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT s.token, s.df, p.article_id, p.tf
		   FROM segments s JOIN postings p ON p.segment_id = s.id
		  WHERE s.collection = $1
		  ORDER BY s.token COLLATE "C", p.id`, string(c))
	if err != nil {
		return nil, fmt.Errorf("querying %s snapshot: %w", c, err)
	}
	defer rows.Close()

	var entries []index.TermEntry
	for rows.Next() {
		var seg index.Segment
		var p index.Posting
		if err := rows.Scan(&seg.Token, &seg.DF, &p.ArticleID, &p.TF); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if n := len(entries); n == 0 || entries[n-1].Segment.Token != seg.Token {
			entries = append(entries, index.TermEntry{Segment: seg})
		}
		last := &entries[len(entries)-1]
		last.Postings = append(last.Postings, p)
	}
	return entries, rows.Err()
}

// LockCollection takes a session advisory lock keyed by the collection on a
// dedicated connection, so builders in other processes are excluded too.
func (s *IndexStore) LockCollection(ctx context.Context, c catalog.Collection) (func(), error) {
	conn, err := s.db.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock connection: %w", err)
	}
	var locked bool
	key := "songsearch.index." + string(c)
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&locked); err != nil {
		conn.Close()
		return nil, fmt.Errorf("taking advisory lock: %w", err)
	}
	if !locked {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", c, apperrors.ErrBuildInProgress)
	}
	return func() {
		conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, key)
		conn.Close()
	}, nil
}

var (
	_ index.Store  = (*IndexStore)(nil)
	_ index.Locker = (*IndexStore)(nil)
)
