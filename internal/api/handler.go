// Package api exposes the engine over HTTP: ingestion, batch and streamed
// answers, summaries and cache invalidation.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
)

const maxBodyBytes = 1 << 20

type Engine interface {
	Ingest(ctx context.Context, ref string, opts ingest.Options) (string, error)
	Answer(ctx context.Context, videoID, question string, opts engine.QueryOptions) (*engine.Answer, error)
	Stream(ctx context.Context, videoID, question string, opts engine.QueryOptions) (*engine.AnswerStream, error)
	Summarize(ctx context.Context, videoID string, length llm.SummaryLength) (string, error)
	Invalidate(ctx context.Context, videoID string) (int64, error)
}

// Enqueuer queues ingestion for the ingester service.
type Enqueuer interface {
	Enqueue(ctx context.Context, req *ingest.Request) (*ingest.Response, error)
}

// Timeouts bound the two answer modes. The ask route picks its timeout
// from the body, so it is applied here rather than by middleware.
type Timeouts struct {
	Request time.Duration
	Stream  time.Duration
}

type Handler struct {
	engine   Engine
	queue    Enqueuer
	timeouts Timeouts
	logger   *slog.Logger
}

// New builds the handler. queue may be nil, in which case asynchronous
// ingestion requests are refused.
func New(e Engine, queue Enqueuer, timeouts Timeouts) *Handler {
	return &Handler{
		engine:   e,
		queue:    queue,
		timeouts: timeouts,
		logger:   slog.Default().With("component", "api"),
	}
}

type AskRequest struct {
	Question     string `json:"question"`
	SearchMethod string `json:"search_method"`
	K            int    `json:"k"`
	Stream       bool   `json:"stream"`
}

type SummaryRequest struct {
	Length string `json:"length"`
}

type SummaryResponse struct {
	VideoID string `json:"video_id"`
	Length  string `json:"length"`
	Summary string `json:"summary"`
}

// Ingest handles POST /api/v1/videos.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req ingest.Request
	if !h.decode(w, r, &req) {
		return
	}
	if err := ingest.ValidateRequest(&req); err != nil {
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": ve.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Async {
		if h.queue == nil {
			h.writeError(w, http.StatusServiceUnavailable, "asynchronous ingestion is disabled")
			return
		}
		resp, err := h.queue.Enqueue(ctx, &req)
		if err != nil {
			h.fail(w, r, "queueing ingestion failed", err)
			return
		}
		status := http.StatusAccepted
		if resp.Status == ingest.StatusIndexed {
			status = http.StatusOK
		}
		h.writeJSON(w, status, resp)
		return
	}

	videoID, err := h.engine.Ingest(ctx, req.URL, req.Options())
	if err != nil {
		h.fail(w, r, "ingestion failed", err)
		return
	}
	log.Info("video ingested", "video_id", videoID)
	h.writeJSON(w, http.StatusOK, ingest.Response{VideoID: videoID, Status: ingest.StatusIndexed})
}

// Ask handles POST /api/v1/videos/{id}/ask. The answer is streamed as
// server-sent events when the body sets "stream" or the client accepts
// text/event-stream.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")
	var req AskRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := engine.ParseSearchMethod(req.SearchMethod)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.K < 0 || req.K > 50 {
		h.writeError(w, http.StatusBadRequest, "k must be between 1 and 50")
		return
	}
	opts := engine.QueryOptions{SearchMethod: method, K: req.K}

	if req.Stream || acceptsEventStream(r) {
		h.stream(w, r, videoID, req.Question, opts)
		return
	}
	ctx := r.Context()
	if h.timeouts.Request > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeouts.Request)
		defer cancel()
	}
	answer, err := h.engine.Answer(ctx, videoID, req.Question, opts)
	if err != nil {
		h.fail(w, r, "answer failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

// stream writes one "data:" frame per chunk. Errors before the first frame
// get a normal JSON error response; later errors end the stream with an
// "error" event and no terminal chunk.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, videoID, question string, opts engine.QueryOptions) {
	ctx := r.Context()
	if h.timeouts.Stream > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeouts.Stream)
		defer cancel()
	}
	log := logger.FromContext(ctx)

	s, err := h.engine.Stream(ctx, videoID, question, opts)
	if err != nil {
		h.fail(w, r, "answer failed", err)
		return
	}
	defer s.Close()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil && r.Context().Err() != nil {
				log.Info("client went away mid-stream")
				return
			}
			log.Error("stream failed", "error", err)
			_ = writeEvent(w, "error", map[string]any{
				"error":  publicMessage(err, "stream failed"),
				"status": apperrors.HTTPStatusCode(err),
			})
			_ = rc.Flush()
			return
		}
		if err := writeEvent(w, "", chunk); err != nil {
			log.Info("stream write failed, abandoning", "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			log.Warn("response does not support flushing", "error", err)
		}
	}
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// Summary handles POST /api/v1/videos/{id}/summary. An empty body asks
// for a medium summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")
	var req SummaryRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	length, err := llm.ParseSummaryLength(req.Length)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.engine.Summarize(r.Context(), videoID, length)
	if err != nil {
		h.fail(w, r, "summary failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, SummaryResponse{VideoID: videoID, Length: string(length), Summary: summary})
}

// InvalidateCache handles DELETE /api/v1/videos/{id}/cache.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("id")
	n, err := h.engine.Invalidate(r.Context(), videoID)
	if err != nil {
		h.fail(w, r, "cache invalidation failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"video_id": videoID, "removed": n})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail logs err and answers with the status its kind maps to. Server-side
// failures get the generic message; client errors carry their own.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error(message, "error", err, "status_code", status)
	h.writeError(w, status, publicMessage(err, message))
}

func publicMessage(err error, fallback string) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && apperrors.HTTPStatusCode(err) < 500 {
		return appErr.Message
	}
	return fallback
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
