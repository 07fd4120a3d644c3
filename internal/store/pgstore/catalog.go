package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/postgres"
	"github.com/lib/pq"
)

const (
	songColumns   = `id, name, alias, lyrics, original_id, original_url`
	artistColumns = `id, name, alias, original_id, intro, history, master_works, milestones, original_url`
	eligibleWhere = `original_url IS NOT NULL AND btrim(original_url, '` + catalog.URLBlank + `') <> ''`

	walkBatch = 500
)

// CatalogStore implements catalog.Store and catalog.Writer.
type CatalogStore struct {
	db *postgres.Client
}

func NewCatalogStore(db *postgres.Client) *CatalogStore {
	return &CatalogStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(r rowScanner) (*catalog.Song, error) {
	var s catalog.Song
	var alias sql.NullString
	if err := r.Scan(&s.ID, &s.Name, &alias, &s.Lyrics, &s.OriginalID, &s.OriginalURL); err != nil {
		return nil, err
	}
	if alias.Valid {
		s.Alias = &alias.String
	}
	s.Artists = []catalog.ArtistRef{}
	return &s, nil
}

func scanArtist(r rowScanner) (*catalog.Artist, error) {
	var a catalog.Artist
	var originalID, intro, history, url sql.NullString
	err := r.Scan(&a.ID, &a.Name, pq.Array(&a.Alias), &originalID, &intro, &history,
		pq.Array(&a.MasterWorks), pq.Array(&a.Milestones), &url)
	if err != nil {
		return nil, err
	}
	a.OriginalID = nullable(originalID)
	a.Intro = nullable(intro)
	a.History = nullable(history)
	a.OriginalURL = nullable(url)
	return &a, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func (s *CatalogStore) querySongs(ctx context.Context, query string, args ...any) ([]*catalog.Song, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying songs: %w", err)
	}
	defer rows.Close()
	var songs []*catalog.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning song: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachArtists(ctx, songs); err != nil {
		return nil, err
	}
	return songs, nil
}

func (s *CatalogStore) queryArtists(ctx context.Context, query string, args ...any) ([]*catalog.Artist, error) {
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying artists: %w", err)
	}
	defer rows.Close()
	var artists []*catalog.Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// attachArtists fills Artists for every song in one query, keeping link
// insertion order.
func (s *CatalogStore) attachArtists(ctx context.Context, songs []*catalog.Song) error {
	if len(songs) == 0 {
		return nil
	}
	byID := make(map[int64]*catalog.Song, len(songs))
	ids := make([]int64, 0, len(songs))
	for _, song := range songs {
		byID[song.ID] = song
		ids = append(ids, song.ID)
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT sa.song_id, a.id, a.name
		   FROM song_artists sa JOIN artists a ON a.id = sa.artist_id
		  WHERE sa.song_id = ANY($1)
		  ORDER BY sa.song_id, sa.id`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("querying song artists: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var songID int64
		var ref catalog.ArtistRef
		if err := rows.Scan(&songID, &ref.ID, &ref.Name); err != nil {
			return fmt.Errorf("scanning song artist: %w", err)
		}
		if song, ok := byID[songID]; ok {
			song.Artists = append(song.Artists, ref)
		}
	}
	return rows.Err()
}

// EachSong walks songs in id order, one batch at a time, so no result set
// stays open while fn runs.
func (s *CatalogStore) EachSong(ctx context.Context, fn func(*catalog.Song) error) error {
	var after int64
	for {
		batch, err := s.querySongs(ctx,
			`SELECT `+songColumns+` FROM songs WHERE id > $1 ORDER BY id LIMIT $2`, after, walkBatch)
		if err != nil {
			return err
		}
		for _, song := range batch {
			if err := fn(song); err != nil {
				return err
			}
		}
		if len(batch) < walkBatch {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

func (s *CatalogStore) EachEligibleArtist(ctx context.Context, fn func(*catalog.Artist) error) error {
	var after int64
	for {
		batch, err := s.queryArtists(ctx,
			`SELECT `+artistColumns+` FROM artists WHERE `+eligibleWhere+` AND id > $1 ORDER BY id LIMIT $2`,
			after, walkBatch)
		if err != nil {
			return err
		}
		for _, a := range batch {
			if err := fn(a); err != nil {
				return err
			}
		}
		if len(batch) < walkBatch {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}

func (s *CatalogStore) CountEligible(ctx context.Context, c catalog.Collection) (int64, error) {
	var query string
	switch c {
	case catalog.Songs:
		query = `SELECT COUNT(*) FROM songs`
	case catalog.Artists:
		query = `SELECT COUNT(*) FROM artists WHERE ` + eligibleWhere
	default:
		return 0, fmt.Errorf("%w: %q", apperrors.ErrInvalidCollection, c)
	}
	var n int64
	if err := s.db.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", c, err)
	}
	return n, nil
}

func (s *CatalogStore) SongsByIDs(ctx context.Context, ids []int64) ([]*catalog.Song, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.querySongs(ctx, `SELECT `+songColumns+` FROM songs WHERE id = ANY($1)`, pq.Array(ids))
}

func (s *CatalogStore) ArtistsByIDs(ctx context.Context, ids []int64) ([]*catalog.Artist, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryArtists(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = ANY($1)`, pq.Array(ids))
}

func (s *CatalogStore) GetSong(ctx context.Context, id int64) (*catalog.Song, error) {
	songs, err := s.querySongs(ctx, `SELECT `+songColumns+` FROM songs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("song %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	return songs[0], nil
}

func (s *CatalogStore) GetArtist(ctx context.Context, id int64) (*catalog.Artist, error) {
	a, err := scanArtist(s.db.DB.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artist %d: %w", id, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist %d: %w", id, err)
	}
	return a, nil
}

func (s *CatalogStore) ListSongs(ctx context.Context, offset, limit int) ([]*catalog.Song, int64, error) {
	var total int64
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting songs: %w", err)
	}
	songs, err := s.querySongs(ctx,
		`SELECT `+songColumns+` FROM songs ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	return songs, total, err
}

func (s *CatalogStore) ListArtists(ctx context.Context, offset, limit int) ([]*catalog.Artist, int64, error) {
	total, err := s.CountEligible(ctx, catalog.Artists)
	if err != nil {
		return nil, 0, err
	}
	artists, err := s.queryArtists(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE `+eligibleWhere+` ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset)
	return artists, total, err
}

// Clear deletes the whole catalog. The index is left alone.
func (s *CatalogStore) Clear(ctx context.Context) error {
	_, err := s.db.DB.ExecContext(ctx, `TRUNCATE song_artists, songs, artists RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("clearing catalog: %w", err)
	}
	return nil
}

func (s *CatalogStore) UpsertArtist(ctx context.Context, a *catalog.Artist) error {
	url := a.OriginalURL
	if url != nil && catalog.BlankURL(*url) {
		url = nil
	}
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO artists (name, alias, original_id, intro, history, master_works, milestones, original_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (original_id) DO UPDATE SET
		     name = EXCLUDED.name, alias = EXCLUDED.alias, intro = EXCLUDED.intro,
		     history = EXCLUDED.history, master_works = EXCLUDED.master_works,
		     milestones = EXCLUDED.milestones, original_url = EXCLUDED.original_url
		 RETURNING id`,
		a.Name, pq.Array(nonNil(a.Alias)), a.OriginalID, a.Intro, a.History,
		pq.Array(nonNil(a.MasterWorks)), pq.Array(nonNil(a.Milestones)), url,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("upserting artist %q: %w", a.Name, err)
	}
	return nil
}

func (s *CatalogStore) ArtistByOriginalID(ctx context.Context, originalID string) (*catalog.Artist, error) {
	a, err := scanArtist(s.db.DB.QueryRowContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE original_id = $1`, originalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artist original id %s: %w", originalID, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by original id: %w", err)
	}
	return a, nil
}

func (s *CatalogStore) ArtistByName(ctx context.Context, name string) (*catalog.Artist, error) {
	a, err := scanArtist(s.db.DB.QueryRowContext(ctx,
		`SELECT `+artistColumns+` FROM artists WHERE name = $1 ORDER BY id LIMIT 1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artist %q: %w", name, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by name: %w", err)
	}
	return a, nil
}

func (s *CatalogStore) UpsertSong(ctx context.Context, song *catalog.Song) error {
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO songs (name, alias, lyrics, original_id, original_url)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (original_id) DO UPDATE SET
		     name = EXCLUDED.name, alias = EXCLUDED.alias, lyrics = EXCLUDED.lyrics,
		     original_url = EXCLUDED.original_url
		 RETURNING id`,
		song.Name, song.Alias, song.Lyrics, song.OriginalID, song.OriginalURL,
	).Scan(&song.ID)
	if err != nil {
		return fmt.Errorf("upserting song %q: %w", song.Name, err)
	}
	return nil
}

func (s *CatalogStore) SongByOriginalID(ctx context.Context, originalID string) (*catalog.Song, error) {
	songs, err := s.querySongs(ctx, `SELECT `+songColumns+` FROM songs WHERE original_id = $1`, originalID)
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("song original id %s: %w", originalID, apperrors.ErrDocumentNotFound)
	}
	return songs[0], nil
}

func (s *CatalogStore) LinkSongArtist(ctx context.Context, songID, artistID int64) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO song_artists (song_id, artist_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		songID, artistID)
	if err != nil {
		return fmt.Errorf("linking song %d to artist %d: %w", songID, artistID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
