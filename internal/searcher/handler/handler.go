// Package handler exposes search, catalog browsing and the rebuild trigger
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, req *parser.Request) (*executor.Result, error)
}

type Tracker interface {
	Track(event analytics.SearchEvent)
}

// Publisher sends rebuild commands to the indexer service.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type CacheStats interface {
	Stats() (hits, misses int64)
}

// Options holds the optional collaborators. Nil fields disable the
// corresponding feature.
type Options struct {
	Tracker  Tracker
	Rebuilds Publisher
	Cache    CacheStats
	// Admin wraps the rebuild route, typically with API key checks.
	Admin func(http.Handler) http.Handler
}

type Handler struct {
	executor SearchExecutor
	catalog  catalog.Store
	pageSize int
	opts     Options
	logger   *slog.Logger
}

func New(exec SearchExecutor, cat catalog.Store, pageSize int, opts Options) *Handler {
	return &Handler{
		executor: exec,
		catalog:  cat,
		pageSize: pageSize,
		opts:     opts,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/songs", h.ListSongs)
	mux.HandleFunc("GET /api/v1/songs/{id}", h.GetSong)
	mux.HandleFunc("GET /api/v1/artists", h.ListArtists)
	mux.HandleFunc("GET /api/v1/artists/{id}", h.GetArtist)
	var rebuild http.Handler = http.HandlerFunc(h.Rebuild)
	if h.opts.Admin != nil {
		rebuild = h.opts.Admin(rebuild)
	}
	mux.Handle("POST /api/v1/index/rebuild", rebuild)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

var stateMessages = map[parser.State]string{
	parser.StateMissingQuery:      "please enter a query",
	parser.StateMissingCollection: "please choose what to search: song or artist",
	parser.StateInvalidCollection: "collection must be song or artist",
}

// Search answers GET /api/v1/search?query=...&collection=song|artist. The
// collection may also be sent as class_.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	query := optionalParam(q, "query")
	collection := optionalParam(q, "collection")
	if collection == nil {
		collection = optionalParam(q, "class_")
	}

	req := parser.Parse(query, collection)
	result, err := h.executor.Execute(ctx, req)
	if err != nil && result == nil {
		log.Error("search execution failed", "query", req.Query, "collection", req.Collection, "error", err)
		h.track(ctx, req, nil, start)
		status := apperrors.HTTPStatusCode(err)
		message := "search failed"
		if errors.Is(err, apperrors.ErrTimeout) {
			message = "search timed out"
		}
		h.writeJSON(w, status, map[string]string{"state": "error", "error": message})
		return
	}
	h.track(ctx, req, result, start)

	if err != nil {
		h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{
			"state": string(result.State),
			"error": stateMessages[result.State],
		})
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func optionalParam(q map[string][]string, name string) *string {
	vals, ok := q[name]
	if !ok || len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

func (h *Handler) track(ctx context.Context, req *parser.Request, result *executor.Result, start time.Time) {
	if h.opts.Tracker == nil {
		return
	}
	event := analytics.SearchEvent{
		Query:      req.Query,
		Collection: req.Collection.String(),
		State:      "error",
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
		RequestID:  middleware.GetRequestID(ctx),
	}
	if result != nil {
		event.State = string(result.State)
		event.Results = len(result.Results)
		event.CacheHit = result.CacheHit
	}
	h.opts.Tracker.Track(event)
}

type page struct {
	Items    any   `json:"items"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	Pages    int64 `json:"pages"`
}

func (h *Handler) ListSongs(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, func(ctx context.Context, offset, limit int) (any, int64, error) {
		return h.catalog.ListSongs(ctx, offset, limit)
	})
}

// ListArtists pages through artists with a source page; name-only stubs are
// not listed.
func (h *Handler) ListArtists(w http.ResponseWriter, r *http.Request) {
	h.listPage(w, r, func(ctx context.Context, offset, limit int) (any, int64, error) {
		return h.catalog.ListArtists(ctx, offset, limit)
	})
}

func (h *Handler) listPage(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, offset, limit int) (any, int64, error)) {
	n := 1
	if v := r.URL.Query().Get("page"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		n = parsed
	}
	items, total, err := list(r.Context(), (n-1)*h.pageSize, h.pageSize)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing catalog failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	pages := (total + int64(h.pageSize) - 1) / int64(h.pageSize)
	if n > 1 && int64(n) > pages {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("page %d does not exist", n))
		return
	}
	h.writeJSON(w, http.StatusOK, page{Items: items, Page: n, PageSize: h.pageSize, Total: total, Pages: pages})
}

func (h *Handler) GetSong(w http.ResponseWriter, r *http.Request) {
	h.getDocument(w, r, func(ctx context.Context, id int64) (any, error) {
		return h.catalog.GetSong(ctx, id)
	})
}

func (h *Handler) GetArtist(w http.ResponseWriter, r *http.Request) {
	h.getDocument(w, r, func(ctx context.Context, id int64) (any, error) {
		return h.catalog.GetArtist(ctx, id)
	})
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request, get func(ctx context.Context, id int64) (any, error)) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	doc, err := get(r.Context(), id)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(r.Context()).Error("fetching document failed", "id", id, "error", err)
			h.writeError(w, status, "fetching document failed")
			return
		}
		h.writeError(w, status, "document not found")
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// Rebuild publishes a rebuild command for the indexer service. The body is
// {"collection": "song"|"artist"|"all", "clear": bool, "append": bool}.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.opts.Rebuilds == nil {
		h.writeError(w, http.StatusServiceUnavailable, "rebuild commands are disabled")
		return
	}
	var cmd indexer.RebuildCommand
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&cmd); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := cmd.Validate(); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	cmd.RequestedAt = time.Now().UTC()
	cmd.RequestID = middleware.GetRequestID(r.Context())

	if err := h.opts.Rebuilds.Publish(r.Context(), kafka.Event{Key: cmd.Collection, Value: cmd}); err != nil {
		logger.FromContext(r.Context()).Error("publishing rebuild command failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "could not queue rebuild")
		return
	}
	logger.FromContext(r.Context()).Info("rebuild queued", "collection", cmd.Collection, "clear", cmd.Clear, "append", cmd.Append)
	h.writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "command": cmd})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.opts.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
