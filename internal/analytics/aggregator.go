package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	Answers          int64         `json:"answers"`
	StreamedAnswers  int64         `json:"streamed_answers"`
	Summaries        int64         `json:"summaries"`
	Ingests          int64         `json:"ingests"`
	IngestsSkipped   int64         `json:"ingests_skipped"`
	ChunksIndexed    int64         `json:"chunks_indexed"`
	Errors           int64         `json:"errors"`
	AbandonedStreams int64         `json:"abandoned_streams"`
	CacheHits        int64         `json:"cache_hits"`
	CacheMisses      int64         `json:"cache_misses"`
	CacheHitRate     float64       `json:"cache_hit_rate"`
	AvgLatencyMs     float64       `json:"avg_latency_ms"`
	P50LatencyMs     int64         `json:"p50_latency_ms"`
	P95LatencyMs     int64         `json:"p95_latency_ms"`
	P99LatencyMs     int64         `json:"p99_latency_ms"`
	TopVideos        []NamedCount  `json:"top_videos"`
	TopQuestions     []NamedCount  `json:"top_questions"`
	QueriesPerMinute float64       `json:"queries_per_minute"`
	Uptime           time.Duration `json:"uptime_ns"`
}

type NamedCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregator folds analytics events into running totals. Latency samples
// cover queries that finished (cache hits included) and are capped at the
// most recent maxLatencySamples.
type Aggregator struct {
	mu            sync.RWMutex
	stats         AggregatedStats
	latencies     []int64
	videoCounts   map[string]int64
	questionCount map[string]int64
	startTime     time.Time
	logger        *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:     make([]int64, 0, 1024),
		videoCounts:   make(map[string]int64),
		questionCount: make(map[string]int64),
		startTime:     time.Now(),
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes events by their "type" field. Unknown or malformed
// events are logged and committed.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var head struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &head); err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		switch head.Type {
		case EventAnswer, EventSummary:
			ev, err := kafka.DecodeJSON[QueryEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode query event", "error", err)
				return nil
			}
			agg.RecordQuery(ev)
		case EventIngest:
			ev, err := kafka.DecodeJSON[IngestEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode ingest event", "error", err)
				return nil
			}
			agg.RecordIngest(ev)
		default:
			agg.logger.Warn("ignoring analytics event of unknown type", "type", head.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordQuery(ev QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case EventSummary:
		a.stats.Summaries++
	default:
		a.stats.Answers++
		if ev.Mode == "stream" {
			a.stats.StreamedAnswers++
		}
		if ev.Question != "" {
			a.questionCount[ev.Question]++
		}
	}
	a.videoCounts[ev.VideoID]++

	switch ev.Outcome {
	case OutcomeError, OutcomeIncomplete:
		a.stats.Errors++
		return
	case OutcomeAbandoned:
		a.stats.AbandonedStreams++
		return
	}
	if ev.CacheHit {
		a.stats.CacheHits++
	} else if ev.Outcome == OutcomeOK {
		a.stats.CacheMisses++
	}
	if len(a.latencies) == maxLatencySamples {
		a.latencies = a.latencies[1:]
	}
	a.latencies = append(a.latencies, ev.LatencyMs)
}

func (a *Aggregator) RecordIngest(ev IngestEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Outcome {
	case OutcomeOK:
		a.stats.Ingests++
		a.stats.ChunksIndexed += int64(ev.Chunks)
	case OutcomeSkipped:
		a.stats.IngestsSkipped++
	default:
		a.stats.Errors++
	}
}

// Restore seeds the totals from a persisted snapshot. Latency samples are
// not persisted and start empty.
func (a *Aggregator) Restore(snap AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = snap
	a.stats.TopVideos, a.stats.TopQuestions = nil, nil
	for _, v := range snap.TopVideos {
		a.videoCounts[v.Name] += v.Count
	}
	for _, q := range snap.TopQuestions {
		a.questionCount[q.Name] += q.Count
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if total := stats.CacheHits + stats.CacheMisses; total > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(total)
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
	stats.TopVideos = topN(a.videoCounts, 10)
	stats.TopQuestions = topN(a.questionCount, 10)
	stats.Uptime = time.Since(a.startTime)
	if elapsed := stats.Uptime.Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.Answers+stats.Summaries) / elapsed
	}
	return stats
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

// topN orders by count, then name, so equal counts list deterministically.
func topN(counts map[string]int64, n int) []NamedCount {
	result := make([]NamedCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, NamedCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
