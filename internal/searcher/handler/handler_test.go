package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

type trackerFunc func(analytics.SearchEvent)

func (f trackerFunc) Track(e analytics.SearchEvent) { f(e) }

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func newServer(t *testing.T, opts Options) *http.ServeMux {
	t.Helper()
	cat := catalog.NewMemoryStore()
	cat.PutArtist(&catalog.Artist{ID: 1, Name: "Luna", OriginalURL: ptr("https://music.163.com/artist?id=1")})
	cat.PutSong(&catalog.Song{ID: 1, Name: "A", Lyrics: "sun sun moon"})
	cat.PutSong(&catalog.Song{ID: 2, Name: "B", Lyrics: "moon moon star",
		Artists: []catalog.ArtistRef{{ID: 2, Name: "X"}}})
	for i := int64(3); i <= 25; i++ {
		cat.PutSong(&catalog.Song{ID: i, Name: fmt.Sprintf("filler %d", i), Lyrics: "la"})
	}

	tok := tokenizer.New(nil)
	idx := index.NewMemoryIndex()
	_, err := indexer.NewBuilder(cat, idx, tok, nil).BuildAll(context.Background(), indexer.BuildOptions{Clear: true})
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(executor.New(cat, idx, tok, executor.Config{}), cat, 20, opts).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestSearchStates(t *testing.T) {
	mux := newServer(t, Options{})
	tests := []struct {
		name   string
		target string
		status int
		state  string
	}{
		{"empty form", "/api/v1/search", http.StatusOK, "empty_form"},
		{"missing query", "/api/v1/search?query=&collection=song", http.StatusBadRequest, "missing_query"},
		{"missing collection", "/api/v1/search?query=moon", http.StatusBadRequest, "missing_collection"},
		{"invalid collection", "/api/v1/search?query=moon&collection=album", http.StatusBadRequest, "invalid_collection"},
		{"no results", "/api/v1/search?query=zzzz&collection=artist", http.StatusOK, "no_results"},
		{"ok", "/api/v1/search?query=moon&collection=song", http.StatusOK, "ok"},
		{"class_ alias", "/api/v1/search?query=moon&class_=song", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.state, decode(t, rec)["state"])
		})
	}
}

func TestSearchResultOrderAndElapsed(t *testing.T) {
	mux := newServer(t, Options{})
	rec := do(mux, http.MethodGet, "/api/v1/search?query=moon&collection=song", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body executorResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Results, 2)
	assert.EqualValues(t, 2, body.Results[0].ID)
	assert.EqualValues(t, 1, body.Results[1].ID)
	assert.Equal(t, "B", body.Results[0].Document.Name)
	assert.Regexp(t, `^\d+\.\d{3}$`, body.Elapsed)
}

type executorResult struct {
	State   string `json:"state"`
	Elapsed string `json:"elapsed"`
	Results []struct {
		ID       int64 `json:"id"`
		Document struct {
			Name string `json:"name"`
		} `json:"document"`
	} `json:"results"`
}

func TestSearchTracksEvents(t *testing.T) {
	var events []analytics.SearchEvent
	mux := newServer(t, Options{Tracker: trackerFunc(func(e analytics.SearchEvent) {
		events = append(events, e)
	})})

	do(mux, http.MethodGet, "/api/v1/search?query=moon&collection=song", "")
	do(mux, http.MethodGet, "/api/v1/search?collection=song", "")

	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].State)
	assert.Equal(t, 2, events[0].Results)
	assert.Equal(t, "song", events[0].Collection)
	assert.Equal(t, "missing_query", events[1].State)
}

func TestListSongsPaginates(t *testing.T) {
	mux := newServer(t, Options{})

	rec := do(mux, http.MethodGet, "/api/v1/songs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 25, body["total"])
	assert.EqualValues(t, 2, body["pages"])
	assert.Len(t, body["items"], 20)

	rec = do(mux, http.MethodGet, "/api/v1/songs?page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 5)

	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/songs?page=3", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/v1/songs?page=zero", "").Code)
}

func TestListArtistsOnlyEligible(t *testing.T) {
	mux := newServer(t, Options{})
	rec := do(mux, http.MethodGet, "/api/v1/artists", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
}

func TestGetDocument(t *testing.T) {
	mux := newServer(t, Options{})

	rec := do(mux, http.MethodGet, "/api/v1/songs/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "B", body["name"])
	assert.Len(t, body["artists"], 1)

	rec = do(mux, http.MethodGet, "/api/v1/artists/2", "")
	require.Equal(t, http.StatusOK, rec.Code, "stub artists still have a detail page")

	assert.Equal(t, http.StatusNotFound, do(mux, http.MethodGet, "/api/v1/songs/999", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodGet, "/api/v1/artists/abc", "").Code)
}

func TestRebuildPublishesCommand(t *testing.T) {
	pub := &fakePublisher{}
	mux := newServer(t, Options{Rebuilds: pub})

	rec := do(mux, http.MethodPost, "/api/v1/index/rebuild", `{"collection":"all","clear":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 1)
	cmd, ok := pub.events[0].Value.(indexer.RebuildCommand)
	require.True(t, ok)
	assert.Equal(t, "all", cmd.Collection)
	assert.True(t, cmd.Clear)
	assert.False(t, cmd.RequestedAt.IsZero())
}

func TestRebuildRejectsBadCommands(t *testing.T) {
	pub := &fakePublisher{}
	mux := newServer(t, Options{Rebuilds: pub})

	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPost, "/api/v1/index/rebuild", `{"collection":"album"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPost, "/api/v1/index/rebuild", `{"collection":"song","clear":true,"append":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(mux, http.MethodPost, "/api/v1/index/rebuild", `{`).Code)
	assert.Empty(t, pub.events)

	pub.err = errors.New("broker down")
	assert.Equal(t, http.StatusServiceUnavailable, do(mux, http.MethodPost, "/api/v1/index/rebuild", `{"collection":"song"}`).Code)

	disabled := newServer(t, Options{})
	assert.Equal(t, http.StatusServiceUnavailable, do(disabled, http.MethodPost, "/api/v1/index/rebuild", `{"collection":"song"}`).Code)
}

func TestRebuildAdminGuard(t *testing.T) {
	pub := &fakePublisher{}
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	mux := newServer(t, Options{Rebuilds: pub, Admin: deny})

	assert.Equal(t, http.StatusUnauthorized, do(mux, http.MethodPost, "/api/v1/index/rebuild", `{"collection":"song"}`).Code)
	assert.Empty(t, pub.events)
	assert.Equal(t, http.StatusOK, do(mux, http.MethodGet, "/api/v1/search?query=moon&collection=song", "").Code)
}

type fixedStats struct{ hits, misses int64 }

func (f fixedStats) Stats() (int64, int64) { return f.hits, f.misses }

func TestCacheStats(t *testing.T) {
	mux := newServer(t, Options{Cache: fixedStats{hits: 3, misses: 1}})
	body := decode(t, do(mux, http.MethodGet, "/api/v1/cache/stats", ""))
	assert.Equal(t, "75.0%", body["hit_rate"])

	disabled := newServer(t, Options{})
	assert.Equal(t, "disabled", decode(t, do(disabled, http.MethodGet, "/api/v1/cache/stats", ""))["status"])
}
