package catalog

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
)

// MemoryStore is a Store and Writer backed by maps. It serves tests and the
// memory index backend.
type MemoryStore struct {
	mu         sync.RWMutex
	songs      map[int64]*Song
	artists    map[int64]*Artist
	links      map[int64][]int64
	nextSong   int64
	nextArtist int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		songs:   make(map[int64]*Song),
		artists: make(map[int64]*Artist),
		links:   make(map[int64][]int64),
	}
}

// PutSong stores s under its own ID, replacing any previous record, and
// links it to the artists named in s.Artists. Artists are created as
// name-only stubs when their id is unknown.
func (m *MemoryStore) PutSong(s *Song) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Artists = nil
	m.songs[s.ID] = &cp
	m.nextSong = max(m.nextSong, s.ID)
	m.links[s.ID] = nil
	for _, ref := range s.Artists {
		if _, ok := m.artists[ref.ID]; !ok {
			m.artists[ref.ID] = &Artist{ID: ref.ID, Name: ref.Name}
			m.nextArtist = max(m.nextArtist, ref.ID)
		}
		m.links[s.ID] = append(m.links[s.ID], ref.ID)
	}
}

// PutArtist stores a under its own ID, replacing any previous record.
func (m *MemoryStore) PutArtist(a *Artist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.artists[a.ID] = &cp
	m.nextArtist = max(m.nextArtist, a.ID)
}

func (m *MemoryStore) EachSong(ctx context.Context, fn func(*Song) error) error {
	m.mu.RLock()
	ids := sortedKeys(m.songs)
	m.mu.RUnlock()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mu.RLock()
		s, ok := m.songs[id]
		var song *Song
		if ok {
			song = m.songWithArtists(s)
		}
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(song); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) EachEligibleArtist(ctx context.Context, fn func(*Artist) error) error {
	m.mu.RLock()
	ids := sortedKeys(m.artists)
	m.mu.RUnlock()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mu.RLock()
		a, ok := m.artists[id]
		var cp Artist
		if ok {
			cp = *a
		}
		m.mu.RUnlock()
		if !ok || !cp.Eligible() {
			continue
		}
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) CountEligible(_ context.Context, c Collection) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch c {
	case Songs:
		return int64(len(m.songs)), nil
	case Artists:
		var n int64
		for _, a := range m.artists {
			if a.Eligible() {
				n++
			}
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidCollection, c)
}

func (m *MemoryStore) SongsByIDs(_ context.Context, ids []int64) ([]*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Song, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.songs[id]; ok {
			out = append(out, m.songWithArtists(s))
		}
	}
	return out, nil
}

func (m *MemoryStore) ArtistsByIDs(_ context.Context, ids []int64) ([]*Artist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Artist, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.artists[id]; ok {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetSong(_ context.Context, id int64) (*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.songs[id]
	if !ok {
		return nil, fmt.Errorf("song %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return m.songWithArtists(s), nil
}

func (m *MemoryStore) GetArtist(_ context.Context, id int64) (*Artist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.artists[id]
	if !ok {
		return nil, fmt.Errorf("artist %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListSongs(_ context.Context, offset, limit int) ([]*Song, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := sortedKeys(m.songs)
	page := paginate(ids, offset, limit)
	out := make([]*Song, 0, len(page))
	for _, id := range page {
		out = append(out, m.songWithArtists(m.songs[id]))
	}
	return out, int64(len(ids)), nil
}

func (m *MemoryStore) ListArtists(_ context.Context, offset, limit int) ([]*Artist, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var eligible []int64
	for _, id := range sortedKeys(m.artists) {
		if m.artists[id].Eligible() {
			eligible = append(eligible, id)
		}
	}
	page := paginate(eligible, offset, limit)
	out := make([]*Artist, 0, len(page))
	for _, id := range page {
		cp := *m.artists[id]
		out = append(out, &cp)
	}
	return out, int64(len(eligible)), nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songs = make(map[int64]*Song)
	m.artists = make(map[int64]*Artist)
	m.links = make(map[int64][]int64)
	m.nextSong, m.nextArtist = 0, 0
	return nil
}

func (m *MemoryStore) UpsertArtist(_ context.Context, a *Artist) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.OriginalID != nil {
		for id, existing := range m.artists {
			if existing.OriginalID != nil && *existing.OriginalID == *a.OriginalID {
				a.ID = id
				cp := *a
				m.artists[id] = &cp
				return nil
			}
		}
	}
	m.nextArtist++
	a.ID = m.nextArtist
	cp := *a
	m.artists[a.ID] = &cp
	return nil
}

func (m *MemoryStore) ArtistByOriginalID(_ context.Context, originalID string) (*Artist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range sortedKeys(m.artists) {
		a := m.artists[id]
		if a.OriginalID != nil && *a.OriginalID == originalID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("artist original id %s: %w", originalID, apperrors.ErrDocumentNotFound)
}

func (m *MemoryStore) ArtistByName(_ context.Context, name string) (*Artist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range sortedKeys(m.artists) {
		if a := m.artists[id]; a.Name == name {
			cp := *a
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("artist %q: %w", name, apperrors.ErrDocumentNotFound)
}

func (m *MemoryStore) UpsertSong(_ context.Context, s *Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Artists = nil
	for id, existing := range m.songs {
		if existing.OriginalID == s.OriginalID {
			s.ID = id
			cp.ID = id
			m.songs[id] = &cp
			return nil
		}
	}
	m.nextSong++
	s.ID = m.nextSong
	cp.ID = s.ID
	m.songs[s.ID] = &cp
	return nil
}

func (m *MemoryStore) SongByOriginalID(_ context.Context, originalID string) (*Song, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.songs {
		if s.OriginalID == originalID {
			return m.songWithArtists(s), nil
		}
	}
	return nil, fmt.Errorf("song original id %s: %w", originalID, apperrors.ErrDocumentNotFound)
}

func (m *MemoryStore) LinkSongArtist(_ context.Context, songID, artistID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.songs[songID]; !ok {
		return fmt.Errorf("song %d: %w", songID, apperrors.ErrDocumentNotFound)
	}
	if _, ok := m.artists[artistID]; !ok {
		return fmt.Errorf("artist %d: %w", artistID, apperrors.ErrDocumentNotFound)
	}
	if !slices.Contains(m.links[songID], artistID) {
		m.links[songID] = append(m.links[songID], artistID)
	}
	return nil
}

// songWithArtists copies s and fills Artists from the link table. Callers
// hold m.mu.
func (m *MemoryStore) songWithArtists(s *Song) *Song {
	cp := *s
	cp.Artists = make([]ArtistRef, 0, len(m.links[s.ID]))
	for _, aid := range m.links[s.ID] {
		if a, ok := m.artists[aid]; ok {
			cp.Artists = append(cp.Artists, ArtistRef{ID: a.ID, Name: a.Name})
		}
	}
	return &cp
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func paginate(ids []int64, offset, limit int) []int64 {
	if offset >= len(ids) || offset < 0 {
		return nil
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return ids[offset:end]
}
