// Package index defines the inverted index model shared by every storage
// backend: per-collection segments with a document frequency, each owning a
// list of (document, term frequency) postings.
package index

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
)

// Segment is one token of a collection's vocabulary.
type Segment struct {
	Token string `json:"token"`
	DF    int64  `json:"df"`
}

type Posting struct {
	ArticleID int64 `json:"article_id"`
	TF        int64 `json:"tf"`
}

type PostingList []Posting

// TermEntry is a segment with all its postings, as returned by Snapshot.
type TermEntry struct {
	Segment  Segment
	Postings PostingList
}

// Store persists segments and postings.
type Store interface {
	// Clear deletes every segment and posting of c.
	Clear(ctx context.Context, c catalog.Collection) error
	// SegmentCount returns the number of distinct tokens indexed for c.
	SegmentCount(ctx context.Context, c catalog.Collection) (int64, error)
	// AddDocument folds one document into the index atomically: for each
	// token it creates the segment with df=1 or increments df by one, then
	// appends the posting (docID, tf).
	AddDocument(ctx context.Context, c catalog.Collection, docID int64, termFreqs map[string]int) error
	// Lookup returns the segment and postings for token, or
	// ErrSegmentNotFound.
	Lookup(ctx context.Context, c catalog.Collection, token string) (Segment, PostingList, error)
	// Snapshot returns every segment of c sorted by token, postings in
	// insertion order.
	Snapshot(ctx context.Context, c catalog.Collection) ([]TermEntry, error)
}

// Locker is implemented by stores that can exclude concurrent builders
// across processes. The returned func releases the lock.
type Locker interface {
	LockCollection(ctx context.Context, c catalog.Collection) (unlock func(), err error)
}
