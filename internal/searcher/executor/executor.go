// Package executor runs a parsed search request: tokenize, look up
// postings, rank with TF-IDF and materialize the ranked ids into documents.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/tracing"
)

type Tokenizer interface {
	Tokenize(text string) []string
}

// RankCache memoizes rankings per collection and query.
type RankCache interface {
	GetOrCompute(ctx context.Context, c catalog.Collection, query string,
		compute func() ([]ranker.ScoredDoc, error)) ([]ranker.ScoredDoc, bool, error)
}

type Hit struct {
	ID       int64            `json:"id"`
	Score    float64          `json:"score"`
	Document catalog.Document `json:"document"`
}

type Result struct {
	State      parser.State       `json:"state"`
	Query      string             `json:"query,omitempty"`
	Collection catalog.Collection `json:"collection,omitempty"`
	TotalHits  int                `json:"total_hits"`
	Results    []Hit              `json:"results,omitempty"`
	Elapsed    string             `json:"elapsed,omitempty"`
	ElapsedMS  int64              `json:"elapsed_ms"`
	CacheHit   bool               `json:"cache_hit"`
}

type Config struct {
	// QueryTimeout bounds one search. Zero disables it.
	QueryTimeout time.Duration
	// MaxResults truncates the ranking. Zero keeps every match.
	MaxResults int
	Cache      RankCache
	Metrics    *metrics.Metrics
}

type Executor struct {
	catalog catalog.Store
	index   index.Store
	tok     Tokenizer
	cfg     Config
	logger  *slog.Logger
}

func New(cat catalog.Store, idx index.Store, tok Tokenizer, cfg Config) *Executor {
	return &Executor{
		catalog: cat,
		index:   idx,
		tok:     tok,
		cfg:     cfg,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// Execute answers req. Requests that did not parse to StateReady return a
// Result carrying their state together with req.Err().
func (e *Executor) Execute(ctx context.Context, req *parser.Request) (*Result, error) {
	if req.State != parser.StateReady {
		e.countQuery(req.Collection, req.State)
		return &Result{State: req.State, Query: req.Query}, req.Err()
	}

	start := time.Now()
	ctx, span := tracing.Start(ctx, "search", logger.RequestID(ctx))
	span.SetAttr("collection", req.Collection.String())
	defer func() {
		span.End()
		span.Log(logger.FromContext(ctx))
	}()

	var result *Result
	err := resilience.WithTimeout(ctx, e.cfg.QueryTimeout, "search", func(ctx context.Context) error {
		r, err := e.run(ctx, req)
		result = r
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		e.countQuery(req.Collection, "error")
		return nil, err
	}
	result.Elapsed = fmt.Sprintf("%.3f", elapsed.Seconds())
	result.ElapsedMS = elapsed.Milliseconds()

	e.observe(req.Collection, result, elapsed)
	logger.FromContext(ctx).Info("query executed",
		"query", req.Query,
		"collection", req.Collection,
		"state", result.State,
		"results", len(result.Results),
		"cache_hit", result.CacheHit,
		"elapsed_ms", result.ElapsedMS,
	)
	return result, nil
}

// run writes only to its own Result; a timed-out run may still be finishing
// after Execute has returned.
func (e *Executor) run(ctx context.Context, req *parser.Request) (*Result, error) {
	result := &Result{Query: req.Query, Collection: req.Collection}
	var ranked []ranker.ScoredDoc
	var err error
	if e.cfg.Cache != nil {
		ranked, result.CacheHit, err = e.cfg.Cache.GetOrCompute(ctx, req.Collection, req.Query, func() ([]ranker.ScoredDoc, error) {
			return e.Rank(ctx, req.Collection, req.Query)
		})
	} else {
		ranked, err = e.Rank(ctx, req.Collection, req.Query)
	}
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		result.State = parser.StateNoResults
		return result, nil
	}

	ids := make([]int64, len(ranked))
	scores := make(map[int64]float64, len(ranked))
	for i, d := range ranked {
		ids[i] = d.DocID
		scores[d.DocID] = d.Score
	}
	docs, err := e.Materialize(ctx, req.Collection, ids)
	if err != nil {
		return nil, err
	}
	result.Results = make([]Hit, 0, len(docs))
	for _, d := range docs {
		result.Results = append(result.Results, Hit{ID: d.DocID(), Score: scores[d.DocID()], Document: d})
	}
	result.TotalHits = len(result.Results)
	if result.TotalHits == 0 {
		result.State = parser.StateNoResults
		return result, nil
	}
	result.State = parser.StateOK
	return result, nil
}

// Rank tokenizes query and scores every document of c that shares a token
// with it. Query tokens are not deduplicated. Tokens without a segment are
// skipped.
func (e *Executor) Rank(ctx context.Context, c catalog.Collection, query string) ([]ranker.ScoredDoc, error) {
	ctx, span := tracing.Start(ctx, "rank", "")
	defer span.End()
	tokens := e.tok.Tokenize(query)
	span.SetAttr("tokens", len(tokens))
	if len(tokens) == 0 {
		return nil, nil
	}
	total, err := e.catalog.CountEligible(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("counting %s documents: %w", c, err)
	}

	found := make(map[string]*ranker.Match, len(tokens))
	missing := make(map[string]struct{})
	matches := make([]ranker.Match, 0, len(tokens))
	for _, token := range tokens {
		if m, ok := found[token]; ok {
			matches = append(matches, *m)
			continue
		}
		if _, ok := missing[token]; ok {
			continue
		}
		seg, postings, err := e.index.Lookup(ctx, c, token)
		if errors.Is(err, apperrors.ErrSegmentNotFound) {
			missing[token] = struct{}{}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", token, err)
		}
		m := &ranker.Match{Segment: seg, Postings: postings}
		found[token] = m
		matches = append(matches, *m)
	}
	span.SetAttr("matched_tokens", len(matches))
	if len(matches) == 0 {
		return nil, nil
	}
	return ranker.Rank(matches, total, e.cfg.MaxResults), nil
}

// Materialize fetches the documents for ids and returns them in exactly the
// order of ids. Ids with no stored document are dropped.
func (e *Executor) Materialize(ctx context.Context, c catalog.Collection, ids []int64) ([]catalog.Document, error) {
	ctx, span := tracing.Start(ctx, "materialize", "")
	defer span.End()
	span.SetAttr("ids", len(ids))
	var docs []catalog.Document
	switch c {
	case catalog.Songs:
		songs, err := e.catalog.SongsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("fetching songs: %w", err)
		}
		for _, s := range songs {
			docs = append(docs, s)
		}
	case catalog.Artists:
		artists, err := e.catalog.ArtistsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("fetching artists: %w", err)
		}
		for _, a := range artists {
			docs = append(docs, a)
		}
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidCollection, c)
	}

	ordered := permute(ids, docs)
	if len(ordered) < len(ids) {
		logger.FromContext(ctx).Warn("ranked documents missing from catalog",
			"collection", c, "ranked", len(ids), "found", len(ordered))
	}
	return ordered, nil
}

func permute(ids []int64, docs []catalog.Document) []catalog.Document {
	byID := make(map[int64]catalog.Document, len(docs))
	for _, d := range docs {
		byID[d.DocID()] = d
	}
	out := make([]catalog.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (e *Executor) countQuery(c catalog.Collection, state parser.State) {
	if e.cfg.Metrics == nil {
		return
	}
	e.cfg.Metrics.SearchQueriesTotal.WithLabelValues(c.String(), string(state)).Inc()
}

func (e *Executor) observe(c catalog.Collection, r *Result, elapsed time.Duration) {
	if e.cfg.Metrics == nil {
		return
	}
	cacheStatus := "none"
	if e.cfg.Cache != nil {
		cacheStatus = "miss"
		if r.CacheHit {
			cacheStatus = "hit"
		}
	}
	e.countQuery(c, r.State)
	e.cfg.Metrics.SearchLatency.WithLabelValues(c.String(), cacheStatus).Observe(elapsed.Seconds())
	e.cfg.Metrics.SearchResultsCount.WithLabelValues(c.String()).Observe(float64(len(r.Results)))
}
