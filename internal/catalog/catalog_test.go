package catalog

import (
	"context"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseCollection(t *testing.T) {
	c, err := ParseCollection("song")
	require.NoError(t, err)
	assert.Equal(t, Songs, c)

	_, err = ParseCollection("album")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCollection)

	_, err = ParseCollection("Song")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCollection)
}

func TestArtistEligible(t *testing.T) {
	tests := []struct {
		name string
		url  *string
		want bool
	}{
		{"with url", strPtr("https://music.163.com/artist?id=1"), true},
		{"nil url", nil, false},
		{"blank url", strPtr("  "), false},
		{"tab url", strPtr("\t"), false},
		{"mixed whitespace", strPtr(" \r\n\v\f"), false},
		{"ideographic space", strPtr("\u3000"), false},
		{"padded url", strPtr(" https://music.163.com/artist?id=1\t"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Artist{Name: "X", OriginalURL: tt.url}
			assert.Equal(t, tt.want, a.Eligible())
		})
	}
}

func seeded(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore()
	m.PutArtist(&Artist{ID: 1, Name: "周杰伦", OriginalURL: strPtr("https://music.163.com/artist?id=6452")})
	m.PutArtist(&Artist{ID: 2, Name: "方文山"})
	m.PutSong(&Song{ID: 10, Name: "晴天", Lyrics: "故事的小黄花", Artists: []ArtistRef{{ID: 1, Name: "周杰伦"}, {ID: 2, Name: "方文山"}}})
	m.PutSong(&Song{ID: 11, Name: "七里香", Lyrics: "窗外的麻雀", Artists: []ArtistRef{{ID: 3, Name: "X"}}})
	return m
}

func TestMemoryStoreEligibility(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	n, err := m.CountEligible(ctx, Artists)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = m.CountEligible(ctx, Songs)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var seen []int64
	require.NoError(t, m.EachEligibleArtist(ctx, func(a *Artist) error {
		seen = append(seen, a.ID)
		return nil
	}))
	assert.Equal(t, []int64{1}, seen)

	artists, total, err := m.ListArtists(ctx, 0, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, artists, 1)
	assert.Equal(t, "周杰伦", artists[0].Name)
}

func TestMemoryStoreSongArtists(t *testing.T) {
	m := seeded(t)
	s, err := m.GetSong(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, []ArtistRef{{ID: 3, Name: "X"}}, s.Artists)

	stub, err := m.GetArtist(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, stub.Eligible())

	_, err = m.GetSong(context.Background(), 99)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestMemoryStoreWriter(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	a := &Artist{Name: "A", OriginalID: strPtr("6452"), OriginalURL: strPtr("u")}
	require.NoError(t, m.UpsertArtist(ctx, a))
	again := &Artist{Name: "A2", OriginalID: strPtr("6452"), OriginalURL: strPtr("u")}
	require.NoError(t, m.UpsertArtist(ctx, again))
	assert.Equal(t, a.ID, again.ID)

	s := &Song{Name: "S", OriginalID: "186016"}
	require.NoError(t, m.UpsertSong(ctx, s))
	require.NoError(t, m.LinkSongArtist(ctx, s.ID, a.ID))
	require.NoError(t, m.LinkSongArtist(ctx, s.ID, a.ID))

	got, err := m.SongByOriginalID(ctx, "186016")
	require.NoError(t, err)
	assert.Equal(t, []ArtistRef{{ID: a.ID, Name: "A2"}}, got.Artists)

	require.NoError(t, m.Clear(ctx))
	_, total, err := m.ListSongs(ctx, 0, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListSongsPagination(t *testing.T) {
	m := NewMemoryStore()
	for i := int64(1); i <= 25; i++ {
		m.PutSong(&Song{ID: i, Name: "s"})
	}
	page, total, err := m.ListSongs(context.Background(), 20, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	require.Len(t, page, 5)
	assert.EqualValues(t, 21, page[0].ID)
}
