package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
)

type memSegment struct {
	df       int64
	postings PostingList
}

// MemoryIndex keeps every collection's segments in maps guarded by one
// RWMutex.
type MemoryIndex struct {
	mu       sync.RWMutex
	segments map[catalog.Collection]map[string]*memSegment
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		segments: make(map[catalog.Collection]map[string]*memSegment),
	}
}

func (m *MemoryIndex) Clear(_ context.Context, c catalog.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.segments, c)
	return nil
}

func (m *MemoryIndex) SegmentCount(_ context.Context, c catalog.Collection) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.segments[c])), nil
}

func (m *MemoryIndex) AddDocument(_ context.Context, c catalog.Collection, docID int64, termFreqs map[string]int) error {
	if len(termFreqs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	segs, ok := m.segments[c]
	if !ok {
		segs = make(map[string]*memSegment)
		m.segments[c] = segs
	}
	for token, tf := range termFreqs {
		seg, exists := segs[token]
		if !exists {
			seg = &memSegment{df: 1}
			segs[token] = seg
		} else {
			seg.df++
		}
		seg.postings = append(seg.postings, Posting{ArticleID: docID, TF: int64(tf)})
	}
	return nil
}

func (m *MemoryIndex) Lookup(_ context.Context, c catalog.Collection, token string) (Segment, PostingList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seg, ok := m.segments[c][token]
	if !ok {
		return Segment{}, nil, fmt.Errorf("%s segment %q: %w", c, token, apperrors.ErrSegmentNotFound)
	}
	postings := make(PostingList, len(seg.postings))
	copy(postings, seg.postings)
	return Segment{Token: token, DF: seg.df}, postings, nil
}

func (m *MemoryIndex) Snapshot(_ context.Context, c catalog.Collection) ([]TermEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.segments[c]))
	for token, seg := range m.segments[c] {
		postings := make(PostingList, len(seg.postings))
		copy(postings, seg.postings)
		entries = append(entries, TermEntry{
			Segment:  Segment{Token: token, DF: seg.df},
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Segment.Token < entries[j].Segment.Token
	})
	return entries, nil
}
