// Package analytics tracks search usage: handlers publish one event per
// search, and an aggregator consuming the topic keeps running statistics.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/songsearch/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches    int64            `json:"total_searches"`
	ByState          map[string]int64 `json:"by_state"`
	ByCollection     map[string]int64 `json:"by_collection"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	NoResultCount    int64            `json:"no_result_count"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	TopQueries       []QueryCount     `json:"top_queries"`
	NoResultQueries  []QueryCount     `json:"no_result_queries"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu              sync.RWMutex
	totalSearches   int64
	byState         map[string]int64
	byCollection    map[string]int64
	cacheHits       int64
	cacheMisses     int64
	latencies       []int64
	queryCounts     map[string]int64
	noResultQueries map[string]int64
	startTime       time.Time
	now             func() time.Time
	logger          *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byState:         make(map[string]int64),
		byCollection:    make(map[string]int64),
		latencies:       make([]int64, 0, 1024),
		queryCounts:     make(map[string]int64),
		noResultQueries: make(map[string]int64),
		startTime:       time.Now(),
		now:             time.Now,
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// Handle returns the Kafka handler feeding the aggregator. Undecodable
// messages are logged and skipped.
func (a *Aggregator) Handle() kafka.MessageHandler {
	return func(_ context.Context, _, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		a.Record(event)
		return nil
	}
}

// Publish records a SearchEvent value directly, letting a Collector feed
// the aggregator in process when Kafka is disabled.
func (a *Aggregator) Publish(_ context.Context, e kafka.Event) error {
	event, ok := e.Value.(SearchEvent)
	if !ok {
		return fmt.Errorf("unexpected analytics event type %T", e.Value)
	}
	a.Record(event)
	return nil
}

func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	a.byState[event.State]++
	if event.Collection != "" {
		a.byCollection[event.Collection]++
	}
	if !event.answered() {
		return
	}

	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) == maxLatencySamples {
		copy(a.latencies, a.latencies[1:])
		a.latencies = a.latencies[:maxLatencySamples-1]
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.State == stateNoResults {
		a.noResultQueries[event.Query]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches: a.totalSearches,
		ByState:       copyCounts(a.byState),
		ByCollection:  copyCounts(a.byCollection),
		CacheHits:     a.cacheHits,
		CacheMisses:   a.cacheMisses,
		NoResultCount: a.byState[stateNoResults],
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.NoResultQueries = topN(a.noResultQueries, 10)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts render stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
