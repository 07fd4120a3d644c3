// Package catalog holds the song and artist records that the index is built
// from and that search results are materialized into.
package catalog

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
)

// Collection names one of the two searchable document sets. Segments of
// different collections never share a namespace.
type Collection string

const (
	Songs   Collection = "song"
	Artists Collection = "artist"
)

// All lists every collection in build order.
var All = []Collection{Songs, Artists}

func (c Collection) Valid() bool {
	return c == Songs || c == Artists
}

func (c Collection) String() string {
	return string(c)
}

// ParseCollection accepts "song" or "artist" exactly.
func ParseCollection(s string) (Collection, error) {
	c := Collection(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidCollection, s)
	}
	return c, nil
}

// ArtistRef is the part of an artist a song carries for indexing and
// display.
type ArtistRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Song struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Alias       *string     `json:"alias,omitempty"`
	Lyrics      string      `json:"lyrics"`
	OriginalID  string      `json:"original_id"`
	OriginalURL string      `json:"original_url"`
	Artists     []ArtistRef `json:"artists"`
}

// Artist is either a full profile scraped from its own page or a name-only
// stub created because it appears on a song. Only full profiles carry an
// OriginalURL.
type Artist struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Alias       []string `json:"alias,omitempty"`
	OriginalID  *string  `json:"original_id,omitempty"`
	Intro       *string  `json:"intro,omitempty"`
	History     *string  `json:"history,omitempty"`
	MasterWorks []string `json:"master_works,omitempty"`
	Milestones  []string `json:"milestones,omitempty"`
	OriginalURL *string  `json:"original_url,omitempty"`
}

// URLBlank holds the characters an original URL may consist of and still
// count as missing. The PostgreSQL store trims the same set.
const URLBlank = " \t\n\v\f\r\u0085\u00a0\u3000"

// BlankURL reports whether u is empty after trimming URLBlank.
func BlankURL(u string) bool {
	return strings.Trim(u, URLBlank) == ""
}

// Eligible reports whether the artist belongs to the searchable artist set.
// Indexing and scoring both use this rule.
func (a *Artist) Eligible() bool {
	return a.OriginalURL != nil && !BlankURL(*a.OriginalURL)
}

// Document is a song or an artist as returned by materialization.
type Document interface {
	DocID() int64
}

func (s *Song) DocID() int64   { return s.ID }
func (a *Artist) DocID() int64 { return a.ID }

// Store is the read side of the catalog used by the index builder, the
// search executor and the catalog endpoints.
type Store interface {
	// EachSong calls fn for every song, in ascending id order. A non-nil
	// error from fn stops the walk and is returned.
	EachSong(ctx context.Context, fn func(*Song) error) error
	// EachEligibleArtist is EachSong for artists passing Eligible.
	EachEligibleArtist(ctx context.Context, fn func(*Artist) error) error
	// CountEligible returns N for idf: all songs, or eligible artists.
	CountEligible(ctx context.Context, c Collection) (int64, error)

	// SongsByIDs and ArtistsByIDs return the stored records among ids in no
	// particular order. Unknown ids are ignored.
	SongsByIDs(ctx context.Context, ids []int64) ([]*Song, error)
	ArtistsByIDs(ctx context.Context, ids []int64) ([]*Artist, error)

	GetSong(ctx context.Context, id int64) (*Song, error)
	GetArtist(ctx context.Context, id int64) (*Artist, error)
	ListSongs(ctx context.Context, offset, limit int) ([]*Song, int64, error)
	// ListArtists pages through eligible artists only.
	ListArtists(ctx context.Context, offset, limit int) ([]*Artist, int64, error)
}

// Writer is the write side used by the loader.
type Writer interface {
	Clear(ctx context.Context) error
	// UpsertArtist inserts a, or updates the artist with the same
	// OriginalID, and sets a.ID.
	UpsertArtist(ctx context.Context, a *Artist) error
	ArtistByOriginalID(ctx context.Context, originalID string) (*Artist, error)
	ArtistByName(ctx context.Context, name string) (*Artist, error)
	// UpsertSong inserts s, or updates the song with the same OriginalID,
	// and sets s.ID. s.Artists is ignored; use LinkSongArtist.
	UpsertSong(ctx context.Context, s *Song) error
	SongByOriginalID(ctx context.Context, originalID string) (*Song, error)
	LinkSongArtist(ctx context.Context, songID, artistID int64) error
}
