// Package boltstore keeps the inverted index in a single bbolt file, for
// deployments that search a catalog without a PostgreSQL index.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Layout per collection c:
//
//	<c>.segments  token -> {"df": n}
//	<c>.postings  token -> bucket of sequence -> {"article_id": id, "tf": n}
type Store struct {
	db *bolt.DB
}

type segmentValue struct {
	DF int64 `json:"df"`
}

func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt index %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range catalog.All {
			if _, err := tx.CreateBucketIfNotExists(segmentsBucket(c)); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(postingsBucket(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func segmentsBucket(c catalog.Collection) []byte { return []byte(string(c) + ".segments") }
func postingsBucket(c catalog.Collection) []byte { return []byte(string(c) + ".postings") }

func (s *Store) Clear(_ context.Context, c catalog.Collection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{segmentsBucket(c), postingsBucket(c)} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("dropping %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("recreating %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) SegmentCount(_ context.Context, c catalog.Collection) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(segmentsBucket(c))
		if b == nil {
			return nil
		}
		n = int64(b.Stats().KeyN)
		return nil
	})
	return n, err
}

// AddDocument applies the whole document in one write transaction.
func (s *Store) AddDocument(_ context.Context, c catalog.Collection, docID int64, termFreqs map[string]int) error {
	if len(termFreqs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		segs := tx.Bucket(segmentsBucket(c))
		posts := tx.Bucket(postingsBucket(c))
		if segs == nil || posts == nil {
			return fmt.Errorf("%w: no buckets for %q", apperrors.ErrInvalidCollection, c)
		}
		for token, tf := range termFreqs {
			key := []byte(token)
			var sv segmentValue
			if raw := segs.Get(key); raw != nil {
				if err := json.Unmarshal(raw, &sv); err != nil {
					return fmt.Errorf("decoding segment %q: %w", token, err)
				}
			}
			sv.DF++
			raw, err := json.Marshal(sv)
			if err != nil {
				return err
			}
			if err := segs.Put(key, raw); err != nil {
				return fmt.Errorf("writing segment %q: %w", token, err)
			}

			list, err := posts.CreateBucketIfNotExists(key)
			if err != nil {
				return fmt.Errorf("creating postings of %q: %w", token, err)
			}
			seq, err := list.NextSequence()
			if err != nil {
				return err
			}
			val, err := json.Marshal(index.Posting{ArticleID: docID, TF: int64(tf)})
			if err != nil {
				return err
			}
			if err := list.Put(itob(seq), val); err != nil {
				return fmt.Errorf("writing posting of %q: %w", token, err)
			}
		}
		return nil
	})
}

func (s *Store) Lookup(_ context.Context, c catalog.Collection, token string) (index.Segment, index.PostingList, error) {
	seg := index.Segment{Token: token}
	var postings index.PostingList
	err := s.db.View(func(tx *bolt.Tx) error {
		segs := tx.Bucket(segmentsBucket(c))
		var raw []byte
		if segs != nil {
			raw = segs.Get([]byte(token))
		}
		if raw == nil {
			return fmt.Errorf("%s segment %q: %w", c, token, apperrors.ErrSegmentNotFound)
		}
		var sv segmentValue
		if err := json.Unmarshal(raw, &sv); err != nil {
			return fmt.Errorf("decoding segment %q: %w", token, err)
		}
		seg.DF = sv.DF
		var err error
		postings, err = readPostings(tx.Bucket(postingsBucket(c)), token)
		return err
	})
	if err != nil {
		return index.Segment{}, nil, err
	}
	return seg, postings, nil
}

// Snapshot walks segments in key order, which is byte order of the token.
func (s *Store) Snapshot(_ context.Context, c catalog.Collection) ([]index.TermEntry, error) {
	var entries []index.TermEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		segs := tx.Bucket(segmentsBucket(c))
		if segs == nil {
			return nil
		}
		posts := tx.Bucket(postingsBucket(c))
		return segs.ForEach(func(k, v []byte) error {
			var sv segmentValue
			if err := json.Unmarshal(v, &sv); err != nil {
				return fmt.Errorf("decoding segment %q: %w", k, err)
			}
			postings, err := readPostings(posts, string(k))
			if err != nil {
				return err
			}
			entries = append(entries, index.TermEntry{
				Segment:  index.Segment{Token: string(k), DF: sv.DF},
				Postings: postings,
			})
			return nil
		})
	})
	return entries, err
}

func readPostings(posts *bolt.Bucket, token string) (index.PostingList, error) {
	if posts == nil {
		return nil, nil
	}
	list := posts.Bucket([]byte(token))
	if list == nil {
		return nil, nil
	}
	var out index.PostingList
	err := list.ForEach(func(_, v []byte) error {
		var p index.Posting
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("decoding posting of %q: %w", token, err)
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

var _ index.Store = (*Store)(nil)
