// Package loader reads scraped song and artist JSON files into the catalog.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"golang.org/x/sync/errgroup"
)

const (
	songIntroDir     = "song_intro"
	artistIntroDir   = "artist_intro"
	artistSongIDsDir = "artist_song_ids"

	decodeWorkers = 8
)

var artistSongsFile = regexp.MustCompile(`^artist(.+)songs\.json$`)

// Publisher sends the rebuild command after a load.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Options struct {
	// SongDir holds song_intro/. ArtistDir holds artist_intro/ and
	// artist_song_ids/. Either may be empty to skip that part.
	SongDir   string
	ArtistDir string
	// Clear empties the catalog first.
	Clear bool
	// Rebuild publishes a clearing rebuild of every collection when the
	// load succeeds.
	Rebuild bool
}

type Report struct {
	Artists       int           `json:"artists"`
	StubArtists   int           `json:"stub_artists"`
	Songs         int           `json:"songs"`
	Links         int           `json:"links"`
	Invalid       int           `json:"invalid"`
	UnknownSongs  int           `json:"unknown_songs"`
	RebuildQueued bool          `json:"rebuild_queued"`
	Elapsed       time.Duration `json:"elapsed"`
}

type Loader struct {
	writer    catalog.Writer
	publisher Publisher
	logger    *slog.Logger
}

// New builds a loader. publisher may be nil when Rebuild is never set.
func New(w catalog.Writer, publisher Publisher) *Loader {
	return &Loader{
		writer:    w,
		publisher: publisher,
		logger:    slog.Default().With("component", "catalog-loader"),
	}
}

// Load imports artists, then songs, then the artist song lists. Files that
// fail to decode abort the load; records that fail validation are logged
// and counted.
func (l *Loader) Load(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if opts.Rebuild && l.publisher == nil {
		return nil, fmt.Errorf("%w: rebuild requested without a publisher", apperrors.ErrInvalidInput)
	}
	if opts.Clear {
		if err := l.writer.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clearing catalog: %w", err)
		}
		l.logger.Info("catalog cleared")
	}

	if opts.ArtistDir != "" {
		if err := l.loadArtists(ctx, filepath.Join(opts.ArtistDir, artistIntroDir), report); err != nil {
			return report, err
		}
	}
	if opts.SongDir != "" {
		if err := l.loadSongs(ctx, filepath.Join(opts.SongDir, songIntroDir), report); err != nil {
			return report, err
		}
	}
	if opts.ArtistDir != "" {
		if err := l.loadArtistSongs(ctx, filepath.Join(opts.ArtistDir, artistSongIDsDir), report); err != nil {
			return report, err
		}
	}

	if opts.Rebuild {
		cmd := indexer.RebuildCommand{
			Collection:  indexer.ScopeAll,
			Clear:       true,
			RequestedAt: time.Now().UTC(),
		}
		if err := l.publisher.Publish(ctx, kafka.Event{Key: indexer.ScopeAll, Value: cmd}); err != nil {
			return report, fmt.Errorf("queueing rebuild: %w", err)
		}
		report.RebuildQueued = true
	}

	report.Elapsed = time.Since(start)
	l.logger.Info("catalog load complete",
		"artists", report.Artists,
		"stub_artists", report.StubArtists,
		"songs", report.Songs,
		"links", report.Links,
		"invalid", report.Invalid,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

func (l *Loader) loadArtists(ctx context.Context, dir string, report *Report) error {
	records, err := decodeDir[ingestion.ArtistRecord](ctx, dir)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := validator.ValidateArtist(&rec.value); err != nil {
			report.Invalid++
			l.logger.Warn("skipping invalid artist", "file", rec.file, "error", err)
			continue
		}
		a := artistFromRecord(&rec.value)
		if !a.Eligible() {
			l.logger.Warn("artist has no url or id, it will not be searchable", "file", rec.file, "name", a.Name)
		}
		if err := l.writer.UpsertArtist(ctx, a); err != nil {
			return fmt.Errorf("storing artist from %s: %w", rec.file, err)
		}
		report.Artists++
	}
	return nil
}

func (l *Loader) loadSongs(ctx context.Context, dir string, report *Report) error {
	records, err := decodeDir[ingestion.SongRecord](ctx, dir)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := validator.ValidateSong(&rec.value); err != nil {
			report.Invalid++
			l.logger.Warn("skipping invalid song", "file", rec.file, "error", err)
			continue
		}
		s := songFromRecord(&rec.value)
		if err := l.writer.UpsertSong(ctx, s); err != nil {
			return fmt.Errorf("storing song from %s: %w", rec.file, err)
		}
		for _, ref := range rec.value.Artists {
			artistID, err := l.resolveArtist(ctx, ref, report)
			if err != nil {
				return fmt.Errorf("resolving artist %q of %s: %w", ref.Name, rec.file, err)
			}
			if err := l.writer.LinkSongArtist(ctx, s.ID, artistID); err != nil {
				return fmt.Errorf("linking song %d to artist %d: %w", s.ID, artistID, err)
			}
			report.Links++
		}
		report.Songs++
	}
	return nil
}

// resolveArtist finds the artist by original id, then by name, creating a
// name-only stub when neither matches.
func (l *Loader) resolveArtist(ctx context.Context, ref ingestion.ArtistRef, report *Report) (int64, error) {
	if ref.OriginalID != "" {
		a, err := l.writer.ArtistByOriginalID(ctx, ref.OriginalID)
		if err == nil {
			return a.ID, nil
		}
		if !errors.Is(err, apperrors.ErrDocumentNotFound) {
			return 0, err
		}
	}
	a, err := l.writer.ArtistByName(ctx, ref.Name)
	if err == nil {
		return a.ID, nil
	}
	if !errors.Is(err, apperrors.ErrDocumentNotFound) {
		return 0, err
	}
	stub := &catalog.Artist{Name: ref.Name}
	if ref.OriginalID != "" {
		stub.OriginalID = &ref.OriginalID
	}
	if err := l.writer.UpsertArtist(ctx, stub); err != nil {
		return 0, err
	}
	report.StubArtists++
	return stub.ID, nil
}

func (l *Loader) loadArtistSongs(ctx context.Context, dir string, report *Report) error {
	records, err := decodeDir[[]flexID](ctx, dir)
	if err != nil {
		return err
	}
	for _, rec := range records {
		m := artistSongsFile.FindStringSubmatch(filepath.Base(rec.file))
		if m == nil {
			l.logger.Warn("unexpected file in artist song lists", "file", rec.file)
			continue
		}
		artist, err := l.writer.ArtistByOriginalID(ctx, m[1])
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			l.logger.Warn("song list for unknown artist", "file", rec.file, "original_id", m[1])
			continue
		}
		if err != nil {
			return err
		}
		for _, songID := range rec.value {
			song, err := l.writer.SongByOriginalID(ctx, string(songID))
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				report.UnknownSongs++
				continue
			}
			if err != nil {
				return err
			}
			if err := l.writer.LinkSongArtist(ctx, song.ID, artist.ID); err != nil {
				return err
			}
			report.Links++
		}
	}
	return nil
}

func artistFromRecord(r *ingestion.ArtistRecord) *catalog.Artist {
	a := &catalog.Artist{
		Name:        strings.TrimSpace(r.Name),
		MasterWorks: r.Intro.MasterWorks,
		Milestones:  r.Intro.Milestones,
	}
	for _, alias := range r.Alias {
		if alias = strings.TrimSpace(alias); alias != "" {
			a.Alias = append(a.Alias, alias)
		}
	}
	a.OriginalID = optional(r.OriginalID)
	a.OriginalURL = optional(r.URL())
	a.Intro = optional(r.Intro.Intro)
	a.History = optional(r.Intro.History)
	return a
}

func songFromRecord(r *ingestion.SongRecord) *catalog.Song {
	return &catalog.Song{
		Name:        strings.TrimSpace(r.Name),
		Alias:       optional(r.Alias),
		Lyrics:      r.Lyrics,
		OriginalID:  r.OriginalID,
		OriginalURL: r.URL(),
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// flexID accepts a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type decoded[T any] struct {
	file  string
	value T
}

// decodeDir decodes every *.json file of dir concurrently and returns them
// in file name order. A missing directory yields nothing.
func decodeDir[T any](ctx context.Context, dir string) ([]decoded[T], error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	out := make([]decoded[T], len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeWorkers)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			out[i].file = file
			if err := json.Unmarshal(data, &out[i].value); err != nil {
				return fmt.Errorf("decoding %s: %w", file, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
