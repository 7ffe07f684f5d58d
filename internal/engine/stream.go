package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/tracing"
)

// ErrStreamClosed is returned by Recv on a stream closed before its
// terminal chunk was delivered.
var ErrStreamClosed = errors.New("answer stream closed before completion")

// AnswerStream delivers an answer token by token. Non-terminal chunks
// carry tokens only; the last chunk has IsComplete set and carries the
// final response. Recv returns io.EOF after the terminal chunk. An
// AnswerStream is not safe for concurrent use.
type AnswerStream struct {
	e        *Engine
	ctx      context.Context
	span     *tracing.Span
	log      *slog.Logger
	start    time.Time
	videoID  string
	question string
	opts     QueryOptions
	passages int

	upstream llm.TokenStream
	pending  *llm.StreamChunk
	buf      strings.Builder
	hit      bool

	done      bool
	completed bool
	closed    bool
	err       error
}

// Stream starts a streamed answer. A cache hit yields a single terminal
// chunk with the cached text. Otherwise tokens are forwarded as the model
// produces them and the full response is cached once the model finishes;
// a stream closed or failed before that writes nothing.
func (e *Engine) Stream(ctx context.Context, videoID, question string, opts QueryOptions) (*AnswerStream, error) {
	if err := validateQuery(videoID, question); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = logger.WithVideoID(ctx, videoID)
	ctx, span := tracing.StartChildSpan(ctx, "stream")
	s := &AnswerStream{
		e:        e,
		ctx:      ctx,
		span:     span,
		log:      logger.FromContext(ctx).With("component", "engine"),
		start:    start,
		videoID:  videoID,
		question: question,
		opts:     opts,
	}

	if text, ok := e.lookup(ctx, videoID, question); ok {
		span.SetAttr("cache_hit", true)
		s.hit = true
		s.pending = &llm.StreamChunk{Token: text, IsComplete: true, ProcessedResponse: text}
		return s, nil
	}

	passages, contextText, err := e.retrieve(ctx, videoID, question, opts)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.passages = len(passages)
	upstream, err := e.llm.Stream(ctx, question, contextText)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.upstream = upstream
	return s, nil
}

// Cached reports whether the stream replays a cached answer.
func (s *AnswerStream) Cached() bool { return s.hit }

func (s *AnswerStream) Recv() (llm.StreamChunk, error) {
	if s.err != nil {
		return llm.StreamChunk{}, s.err
	}
	if s.closed && !s.completed {
		return llm.StreamChunk{}, ErrStreamClosed
	}
	if s.done || s.closed {
		return llm.StreamChunk{}, io.EOF
	}
	if s.hit {
		c := *s.pending
		s.pending = nil
		s.finish(analytics.OutcomeOK, "hit")
		return c, nil
	}
	if s.pending != nil {
		return s.complete(*s.pending), nil
	}

	for {
		c, err := s.upstream.Recv()
		if errors.Is(err, io.EOF) {
			err = apperrors.New(apperrors.ErrStreamIncomplete, http.StatusBadGateway,
				"model stream ended without a final chunk")
			s.fail(err)
			return llm.StreamChunk{}, err
		}
		if err != nil {
			if ctxErr := s.ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			s.fail(err)
			return llm.StreamChunk{}, err
		}

		if c.IsComplete {
			if c.Token == "" {
				return s.complete(c), nil
			}
			// Forward the trailing token first; the terminal chunk follows
			// on the next call.
			s.buf.WriteString(c.Token)
			s.pending = &c
			s.e.metrics.ObserveStreamToken()
			return llm.StreamChunk{Token: c.Token}, nil
		}
		if c.Token == "" {
			continue
		}
		s.buf.WriteString(c.Token)
		s.e.metrics.ObserveStreamToken()
		return llm.StreamChunk{Token: c.Token}, nil
	}
}

// complete caches the final response and builds the terminal chunk. The
// model's processed response wins over the concatenated tokens when it is
// non-empty.
func (s *AnswerStream) complete(terminal llm.StreamChunk) llm.StreamChunk {
	final := terminal.ProcessedResponse
	if final == "" {
		final = s.buf.String()
	}
	s.pending = nil
	s.e.store(s.ctx, s.videoID, s.question, final)
	s.finish(analytics.OutcomeOK, "miss")
	s.log.Info("stream finished", "passages", s.passages, "latency_ms", time.Since(s.start).Milliseconds())
	return llm.StreamChunk{IsComplete: true, ProcessedResponse: final}
}

// Close abandons the stream. Closing after the terminal chunk only
// releases resources; closing before it makes later Recv calls return
// ErrStreamClosed. Close is idempotent.
func (s *AnswerStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.done && s.err == nil {
		s.e.metrics.ObserveStreamAbandoned()
		s.e.trackAnswer(s.ctx, s.start, s.videoID, s.question, "stream", s.opts, s.passages, s.hit, analytics.OutcomeAbandoned)
		s.log.Info("stream abandoned before completion", "tokens_buffered", s.buf.Len())
		s.done = true
		s.span.End()
	}
	return s.release()
}

func (s *AnswerStream) finish(outcome, label string) {
	s.done = true
	s.completed = true
	s.e.metrics.ObserveAnswer("stream", label, time.Since(s.start).Seconds())
	s.e.trackAnswer(s.ctx, s.start, s.videoID, s.question, "stream", s.opts, s.passages, s.hit, outcome)
	s.span.End()
	if err := s.release(); err != nil {
		s.log.Warn("closing model stream failed", "error", err)
	}
}

func (s *AnswerStream) fail(err error) {
	s.err = err
	s.done = true
	s.span.RecordError(err)
	s.log.Error("stream failed", "error", err)
	s.e.metrics.ObserveAnswer("stream", "error", 0)
	outcome := analytics.OutcomeError
	switch {
	case errors.Is(err, apperrors.ErrStreamIncomplete):
		outcome = analytics.OutcomeIncomplete
	case errors.Is(err, context.Canceled):
		outcome = analytics.OutcomeAbandoned
	}
	s.e.trackAnswer(s.ctx, s.start, s.videoID, s.question, "stream", s.opts, s.passages, false, outcome)
	s.span.End()
	_ = s.release()
}

func (s *AnswerStream) release() error {
	if s.upstream == nil {
		return nil
	}
	u := s.upstream
	s.upstream = nil
	return u.Close()
}
