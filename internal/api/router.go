package api

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/middleware"
)

type RouterOptions struct {
	// RequestTimeout bounds summaries and cache calls; IngestTimeout bounds
	// synchronous ingestion. Ask applies its own Timeouts.
	RequestTimeout time.Duration
	IngestTimeout  time.Duration
	Health         *health.Checker
	Limiter        *Limiter // nil disables rate limiting
	Metrics        *metrics.Metrics
	CORS           CORSConfig
}

// NewRouter builds the HTTP handler.
//
//	POST   /api/v1/videos               ingest a video (sync or queued)
//	POST   /api/v1/videos/{id}/ask      answer a question (JSON or SSE)
//	POST   /api/v1/videos/{id}/summary  summarise the transcript
//	DELETE /api/v1/videos/{id}/cache    drop cached responses
//	GET    /health/live, /health/ready
//
// Middleware, outermost first: RequestID, CORS, RateLimit, Metrics, then a
// per-route Timeout where the route has a fixed budget.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	query := pkgmw.Timeout(opts.RequestTimeout)
	ingest := pkgmw.Timeout(opts.IngestTimeout)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/videos", ingest(http.HandlerFunc(h.Ingest)))
	mux.HandleFunc("POST /api/v1/videos/{id}/ask", h.Ask)
	mux.Handle("POST /api/v1/videos/{id}/summary", query(http.HandlerFunc(h.Summary)))
	mux.Handle("DELETE /api/v1/videos/{id}/cache", query(http.HandlerFunc(h.InvalidateCache)))
	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.Metrics != nil {
		chain = pkgmw.Metrics(opts.Metrics)(chain)
	}
	if opts.Limiter != nil {
		chain = RateLimit(opts.Limiter)(chain)
	}
	chain = CORS(opts.CORS)(chain)
	return pkgmw.RequestID(chain)
}
