package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/tracing"
)

// errNoTranscript is handled locally and never reaches callers.
var errNoTranscript = fmt.Errorf("transcript is blank: %w", apperrors.ErrEmptyContent)

// Summarize returns a summary of the whole transcript at the requested
// length, cached per video and length. A video with no transcript text
// summarises to "" without calling the model, and that result is not
// cached.
func (e *Engine) Summarize(ctx context.Context, videoID string, length llm.SummaryLength) (string, error) {
	if strings.TrimSpace(videoID) == "" {
		return "", apperrors.Validation("video id is required")
	}
	length, err := llm.ParseSummaryLength(string(length))
	if err != nil {
		return "", err
	}
	start := time.Now()
	ctx = logger.WithVideoID(ctx, videoID)
	ctx, span := tracing.StartChildSpan(ctx, "summarize")
	defer span.End()
	log := logger.FromContext(ctx).With("component", "engine")
	key := cache.SummaryKey(string(length))

	track := func(outcome string, hit bool) {
		ev := analytics.NewQueryEvent(ctx, analytics.EventSummary, videoID, start)
		ev.Mode = string(length)
		ev.CacheHit = hit
		ev.Outcome = outcome
		e.tracker.Track(ev)
	}

	if text, ok := e.lookup(ctx, videoID, key); ok {
		e.metrics.ObserveSummary(string(length), "hit")
		track(analytics.OutcomeOK, true)
		return text, nil
	}

	summarize := func() (any, error) {
		passages, err := e.retriever.Document(ctx, videoID, e.cfg.SummaryMaxChunks)
		if err != nil {
			return nil, err
		}
		transcript := joinPassages(passages)
		if strings.TrimSpace(transcript) == "" {
			return nil, errNoTranscript
		}
		summary, err := e.llm.Summarize(ctx, transcript, length)
		if err != nil {
			return nil, err
		}
		e.store(ctx, videoID, key, summary)
		return summary, nil
	}

	var v any
	if e.cfg.SingleFlight {
		v, err, _ = e.group.Do("summary\x00"+videoID+"\x00"+string(length), summarize)
	} else {
		v, err = summarize()
	}
	switch {
	case errors.Is(err, errNoTranscript):
		log.Warn("no transcript text to summarise")
		e.metrics.ObserveSummary(string(length), "empty")
		track(analytics.OutcomeEmpty, false)
		return "", nil
	case err != nil:
		span.RecordError(err)
		log.Error("summary failed", "error", err)
		e.metrics.ObserveSummary(string(length), "error")
		track(analytics.OutcomeError, false)
		return "", err
	}
	e.metrics.ObserveSummary(string(length), "miss")
	track(analytics.OutcomeOK, false)
	return v.(string), nil
}
