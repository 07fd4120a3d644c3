// Package indexer builds the per-collection inverted index from the catalog.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/assembler"
	"github.com/Adithya-Monish-Kumar-K/songsearch/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/songsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// BuildOptions controls how an existing index is treated.
type BuildOptions struct {
	// Clear deletes the collection's segments and postings first.
	Clear bool
	// Append allows building on top of a populated index without clearing.
	// Every document is added again, so df doubles and postings are
	// duplicated. Only useful to reproduce legacy additive builds.
	Append bool
}

type BuildReport struct {
	RunID      string             `json:"run_id"`
	Collection catalog.Collection `json:"collection"`
	Cleared    bool               `json:"cleared"`
	Documents  int                `json:"documents"`
	Skipped    int                `json:"skipped"`
	Segments   int64              `json:"segments"`
	Postings   int64              `json:"postings"`
	Elapsed    time.Duration      `json:"elapsed"`
}

type Builder struct {
	catalog catalog.Store
	index   index.Store
	tok     assembler.Tokenizer
	metrics *metrics.Metrics
	logger  *slog.Logger
	locks   map[catalog.Collection]*sync.Mutex
}

// NewBuilder wires a builder. m may be nil.
func NewBuilder(cat catalog.Store, idx index.Store, tok assembler.Tokenizer, m *metrics.Metrics) *Builder {
	locks := make(map[catalog.Collection]*sync.Mutex, len(catalog.All))
	for _, c := range catalog.All {
		locks[c] = &sync.Mutex{}
	}
	return &Builder{
		catalog: cat,
		index:   idx,
		tok:     tok,
		metrics: m,
		logger:  slog.Default().With("component", "index-builder"),
		locks:   locks,
	}
}

// Build indexes every eligible document of c. Only one build per
// collection runs at a time; a concurrent call fails with
// ErrBuildInProgress. Without Clear or Append a populated collection is
// refused with ErrIndexNotEmpty.
func (b *Builder) Build(ctx context.Context, c catalog.Collection, opts BuildOptions) (*BuildReport, error) {
	mu, ok := b.locks[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidCollection, c)
	}
	if !mu.TryLock() {
		return nil, fmt.Errorf("%s: %w", c, apperrors.ErrBuildInProgress)
	}
	defer mu.Unlock()

	if locker, ok := b.index.(index.Locker); ok {
		unlock, err := locker.LockCollection(ctx, c)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	report := &BuildReport{
		RunID:      uuid.NewString(),
		Collection: c,
		Cleared:    opts.Clear,
	}
	logger := b.logger.With("run_id", report.RunID, "collection", c)
	start := time.Now()

	err := b.build(ctx, c, opts, report, logger)
	report.Elapsed = time.Since(start)
	if err != nil {
		b.observe(c, "failed", report)
		logger.Error("index build failed", "error", err, "documents", report.Documents)
		return report, err
	}

	report.Segments, err = b.index.SegmentCount(ctx, c)
	if err != nil {
		return report, fmt.Errorf("counting %s segments: %w", c, err)
	}
	b.observe(c, "ok", report)
	logger.Info("index build complete",
		"documents", report.Documents,
		"skipped", report.Skipped,
		"segments", report.Segments,
		"postings", report.Postings,
		"elapsed", report.Elapsed,
	)
	return report, nil
}

// BuildAll builds every collection concurrently. Their segment namespaces
// are disjoint, so the builds do not interfere.
func (b *Builder) BuildAll(ctx context.Context, opts BuildOptions) ([]*BuildReport, error) {
	reports := make([]*BuildReport, len(catalog.All))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range catalog.All {
		g.Go(func() error {
			r, err := b.Build(gctx, c, opts)
			reports[i] = r
			return err
		})
	}
	return reports, g.Wait()
}

func (b *Builder) build(ctx context.Context, c catalog.Collection, opts BuildOptions, report *BuildReport, logger *slog.Logger) error {
	if opts.Clear {
		logger.Info("clearing existing index")
		if err := b.index.Clear(ctx, c); err != nil {
			return fmt.Errorf("clearing %s index: %w", c, err)
		}
	} else {
		n, err := b.index.SegmentCount(ctx, c)
		if err != nil {
			return fmt.Errorf("counting %s segments: %w", c, err)
		}
		if n > 0 {
			if !opts.Append {
				return apperrors.Newf(apperrors.ErrIndexNotEmpty, http.StatusConflict,
					"%s index has %d segments; rebuild with clear", c, n)
			}
			logger.Warn("appending to populated index; df and postings will be duplicated", "segments", n)
		}
	}

	add := func(docID int64, tokens []string) error {
		report.Documents++
		tf := assembler.TermFrequencies(tokens)
		if len(tf) == 0 {
			report.Skipped++
			return nil
		}
		if err := b.index.AddDocument(ctx, c, docID, tf); err != nil {
			return fmt.Errorf("indexing %s %d: %w", c, docID, err)
		}
		report.Postings += int64(len(tf))
		if b.metrics != nil {
			b.metrics.DocsIndexedTotal.WithLabelValues(c.String()).Inc()
		}
		logger.Debug("document indexed", "doc_id", docID, "distinct_tokens", len(tf))
		return nil
	}

	switch c {
	case catalog.Songs:
		return b.catalog.EachSong(ctx, func(s *catalog.Song) error {
			return add(s.ID, assembler.Song(b.tok, s))
		})
	case catalog.Artists:
		return b.catalog.EachEligibleArtist(ctx, func(a *catalog.Artist) error {
			return add(a.ID, assembler.Artist(b.tok, a))
		})
	}
	return fmt.Errorf("%w: %q", apperrors.ErrInvalidCollection, c)
}

func (b *Builder) observe(c catalog.Collection, status string, r *BuildReport) {
	if b.metrics == nil {
		return
	}
	b.metrics.IndexBuildsTotal.WithLabelValues(c.String(), status).Inc()
	if status == "ok" {
		b.metrics.IndexBuildDuration.WithLabelValues(c.String()).Observe(r.Elapsed.Seconds())
		b.metrics.IndexSegments.WithLabelValues(c.String()).Set(float64(r.Segments))
	}
}
