// Package engine answers questions about ingested videos. Every query runs
// the same pipeline: check the response cache, retrieve transcript
// passages, generate with the language model and cache the result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

type SearchMethod string

const (
	MethodVector  SearchMethod = "vector"
	MethodKeyword SearchMethod = "keyword"
	MethodHybrid  SearchMethod = "hybrid"
)

// ParseSearchMethod validates user input. Empty input selects hybrid.
func ParseSearchMethod(s string) (SearchMethod, error) {
	switch m := SearchMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MethodHybrid, nil
	case MethodVector, MethodKeyword, MethodHybrid:
		return m, nil
	default:
		return "", apperrors.Validation("search method %q: want vector, keyword or hybrid", s)
	}
}

// VectorWeight maps a method to the blend weight of the vector path.
// Unknown methods blend like hybrid.
func VectorWeight(m SearchMethod) float64 {
	switch m {
	case MethodVector:
		return 1.0
	case MethodKeyword:
		return 0.0
	default:
		return 0.7
	}
}

type QueryOptions struct {
	SearchMethod SearchMethod
	// K is the number of passages to retrieve; zero uses the default.
	K int
}

// Verification is a post-hoc quality check on an answer. This engine never
// produces one; the fields exist so the response shape is stable.
type Verification struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

type Answer struct {
	Response      string        `json:"response"`
	Hallucination *Verification `json:"hallucination"`
	Relevance     *Verification `json:"relevance"`
	Cached        bool          `json:"cached"`
}

type Retriever interface {
	Search(ctx context.Context, videoID, query string, vectorWeight float64, k int) ([]retrieval.Passage, error)
	Document(ctx context.Context, videoID string, limit int) ([]retrieval.Passage, error)
}

type Ingester interface {
	Ingest(ctx context.Context, ref string, opts ingest.Options) (string, error)
}

type Config struct {
	DefaultK         int
	SummaryMaxChunks int
	// SingleFlight collapses concurrent identical batch answers and
	// summaries into one generation. Streams are never shared.
	SingleFlight bool
}

// Deps are the collaborators of an Engine. Tracker and Metrics may be nil.
type Deps struct {
	Cache     cache.Store
	Retriever Retriever
	LLM       llm.Client
	Ingester  Ingester
	Tracker   analytics.Tracker
	Metrics   *metrics.Metrics
}

type Engine struct {
	cache     cache.Store
	retriever Retriever
	llm       llm.Client
	ingester  Ingester
	tracker   analytics.Tracker
	metrics   *metrics.Metrics
	cfg       Config
	group     singleflight.Group
	logger    *slog.Logger
}

func New(deps Deps, cfg Config) *Engine {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 4
	}
	if cfg.SummaryMaxChunks <= 0 {
		cfg.SummaryMaxChunks = 1000
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = analytics.Discard{}
	}
	return &Engine{
		cache:     deps.Cache,
		retriever: deps.Retriever,
		llm:       deps.LLM,
		ingester:  deps.Ingester,
		tracker:   tracker,
		metrics:   deps.Metrics,
		cfg:       cfg,
		logger:    slog.Default().With("component", "engine"),
	}
}

// Ingest makes a video answerable and returns its id.
func (e *Engine) Ingest(ctx context.Context, ref string, opts ingest.Options) (string, error) {
	if e.ingester == nil {
		return "", apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "ingestion is not configured")
	}
	return e.ingester.Ingest(ctx, ref, opts)
}

// Answer returns a complete answer to question. A cached answer is
// returned as is; otherwise the answer is generated from the retrieved
// passages and cached. Failures are never cached.
func (e *Engine) Answer(ctx context.Context, videoID, question string, opts QueryOptions) (*Answer, error) {
	if err := validateQuery(videoID, question); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = logger.WithVideoID(ctx, videoID)
	ctx, span := tracing.StartChildSpan(ctx, "answer")
	defer span.End()
	log := logger.FromContext(ctx).With("component", "engine")

	if text, ok := e.lookup(ctx, videoID, question); ok {
		span.SetAttr("cache_hit", true)
		e.metrics.ObserveAnswer("batch", "hit", time.Since(start).Seconds())
		e.trackAnswer(ctx, start, videoID, question, "batch", opts, 0, true, analytics.OutcomeOK)
		return &Answer{Response: text, Cached: true}, nil
	}

	type result struct {
		text     string
		passages int
	}
	generate := func() (any, error) {
		passages, contextText, err := e.retrieve(ctx, videoID, question, opts)
		if err != nil {
			return nil, err
		}
		gen, err := e.llm.Generate(ctx, question, contextText)
		if err != nil {
			return nil, err
		}
		e.store(ctx, videoID, question, gen.Response)
		return result{text: gen.Response, passages: len(passages)}, nil
	}

	var (
		v   any
		err error
	)
	if e.cfg.SingleFlight {
		v, err, _ = e.group.Do("answer\x00"+videoID+"\x00"+question, generate)
	} else {
		v, err = generate()
	}
	if err != nil {
		span.RecordError(err)
		log.Error("answer failed", "error", err)
		e.metrics.ObserveAnswer("batch", "error", 0)
		e.trackAnswer(ctx, start, videoID, question, "batch", opts, 0, false, analytics.OutcomeError)
		return nil, err
	}
	res := v.(result)
	e.metrics.ObserveAnswer("batch", "miss", time.Since(start).Seconds())
	e.trackAnswer(ctx, start, videoID, question, "batch", opts, res.passages, false, analytics.OutcomeOK)
	log.Info("answer generated", "passages", res.passages, "latency_ms", time.Since(start).Milliseconds())
	return &Answer{Response: res.text}, nil
}

// Invalidate drops every cached response for videoID and reports how many
// were removed. The processed marker is kept, so the video is not
// re-ingested.
func (e *Engine) Invalidate(ctx context.Context, videoID string) (int64, error) {
	if strings.TrimSpace(videoID) == "" {
		return 0, apperrors.Validation("video id is required")
	}
	n, err := e.cache.Invalidate(ctx, videoID)
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	logger.FromContext(ctx).Info("cache invalidated", "video_id", videoID, "removed", n)
	return n, nil
}

// lookup reads the response cache. A failing cache degrades to a miss so
// a cache outage never fails a query.
func (e *Engine) lookup(ctx context.Context, videoID, key string) (string, bool) {
	text, ok, err := e.cache.Get(ctx, videoID, key)
	if err != nil {
		logger.FromContext(ctx).Warn("cache read failed, treating as miss", "error", err)
		ok = false
	}
	e.metrics.ObserveCache(ok)
	return text, ok
}

// store writes a successful result. Write failures are logged and the
// result is still returned to the caller.
func (e *Engine) store(ctx context.Context, videoID, key, text string) {
	if err := e.cache.Put(ctx, videoID, key, text); err != nil {
		logger.FromContext(ctx).Error("cache write failed", "error", err)
	}
}

// retrieve fetches passages and builds the model context from them in
// retrieval order.
func (e *Engine) retrieve(ctx context.Context, videoID, question string, opts QueryOptions) ([]retrieval.Passage, string, error) {
	ctx, span := tracing.StartChildSpan(ctx, "retrieve")
	defer span.End()

	k := opts.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	passages, err := e.retriever.Search(ctx, videoID, question, VectorWeight(opts.SearchMethod), k)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	span.SetAttr("passages", len(passages))
	return passages, joinPassages(passages), nil
}

func joinPassages(passages []retrieval.Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

func validateQuery(videoID, question string) error {
	if strings.TrimSpace(videoID) == "" {
		return apperrors.Validation("video id is required")
	}
	if strings.TrimSpace(question) == "" {
		return apperrors.Validation("question is required")
	}
	return nil
}

func (e *Engine) trackAnswer(ctx context.Context, start time.Time, videoID, question, mode string, opts QueryOptions, passages int, hit bool, outcome string) {
	ev := analytics.NewQueryEvent(ctx, analytics.EventAnswer, videoID, start)
	ev.Question = question
	ev.Mode = mode
	ev.SearchMethod = string(opts.SearchMethod)
	ev.Passages = passages
	ev.CacheHit = hit
	ev.Outcome = outcome
	e.tracker.Track(ev)
}
