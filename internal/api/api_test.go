package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/engine"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/health"
)

const vid = "dQw4w9WgXcQ"

type stubRetriever struct{}

func (stubRetriever) Search(_ context.Context, videoID, _ string, _ float64, _ int) ([]retrieval.Passage, error) {
	return []retrieval.Passage{{VideoID: videoID, Text: "Transcript passage."}}, nil
}

func (stubRetriever) Document(_ context.Context, videoID string, _ int) ([]retrieval.Passage, error) {
	return []retrieval.Passage{{VideoID: videoID, Text: "Whole transcript."}}, nil
}

type scriptedStream struct{ chunks []llm.StreamChunk }

func (s *scriptedStream) Recv() (llm.StreamChunk, error) {
	if len(s.chunks) == 0 {
		return llm.StreamChunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptedStream) Close() error { return nil }

type stubLLM struct{ chunks []llm.StreamChunk }

func (stubLLM) Generate(context.Context, string, string) (llm.Generation, error) {
	return llm.Generation{Response: "Batch answer."}, nil
}

func (l stubLLM) Stream(context.Context, string, string) (llm.TokenStream, error) {
	return &scriptedStream{chunks: append([]llm.StreamChunk(nil), l.chunks...)}, nil
}

func (stubLLM) Summarize(_ context.Context, _ string, length llm.SummaryLength) (string, error) {
	return "A " + string(length) + " summary.", nil
}

type stubIngester struct{}

func (stubIngester) Ingest(_ context.Context, ref string, _ ingest.Options) (string, error) {
	if strings.Contains(ref, "private") {
		return "", apperrors.External("yt-dlp", io.ErrUnexpectedEOF)
	}
	return vid, nil
}

type stubQueue struct{ reqs []*ingest.Request }

func (q *stubQueue) Enqueue(_ context.Context, req *ingest.Request) (*ingest.Response, error) {
	q.reqs = append(q.reqs, req)
	return &ingest.Response{VideoID: vid, Status: ingest.StatusQueued, JobID: "job-1"}, nil
}

type fixture struct {
	store  *cache.MemoryStore
	queue  *stubQueue
	server *httptest.Server
}

func newFixture(t *testing.T, chunks []llm.StreamChunk, withQueue bool, limiter *Limiter) *fixture {
	t.Helper()
	f := &fixture{store: cache.NewMemoryStore()}
	e := engine.New(engine.Deps{
		Cache:     f.store,
		Retriever: stubRetriever{},
		LLM:       stubLLM{chunks: chunks},
		Ingester:  stubIngester{},
	}, engine.Config{})

	var q Enqueuer
	if withQueue {
		f.queue = &stubQueue{}
		q = f.queue
	}
	h := New(e, q, Timeouts{Request: 5 * time.Second, Stream: 5 * time.Second})
	f.server = httptest.NewServer(NewRouter(h, RouterOptions{
		RequestTimeout: 5 * time.Second,
		IngestTimeout:  5 * time.Second,
		Health:         health.NewChecker(),
		Limiter:        limiter,
		CORS:           DefaultCORSConfig(),
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return m
}

// frames parses an event stream into (event, data) pairs.
func frames(t *testing.T, r io.Reader) [][2]string {
	t.Helper()
	var (
		out   [][2]string
		event string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			out = append(out, [2]string{event, strings.TrimPrefix(line, "data: ")})
			event = ""
		}
	}
	return out
}

func TestAskBatch(t *testing.T) {
	f := newFixture(t, nil, false, nil)
	resp := f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/ask", `{"question":"What?","search_method":"keyword","k":3}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["response"] != "Batch answer." || body["cached"] != false {
		t.Errorf("body = %v", body)
	}
	for _, k := range []string{"hallucination", "relevance"} {
		if v, ok := body[k]; !ok || v != nil {
			t.Errorf("%s = %v, %v; want explicit null", k, v, ok)
		}
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	body = decodeBody(t, f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/ask", `{"question":"What?"}`, nil))
	if body["cached"] != true {
		t.Errorf("second ask not cached: %v", body)
	}
}

func TestAskRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil, false, nil)
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"question":`},
		{"unknown field", `{"question":"q","temperature":1}`},
		{"bad method", `{"question":"q","search_method":"fuzzy"}`},
		{"bad k", `{"question":"q","k":500}`},
		{"blank question", `{"question":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/ask", tt.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if body := decodeBody(t, resp); body["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestAskStream(t *testing.T) {
	chunks := []llm.StreamChunk{{Token: "Hel"}, {Token: "lo"}, {IsComplete: true}}
	f := newFixture(t, chunks, false, nil)

	resp := f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/ask", `{"question":"Hi?","stream":true}`, nil)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	got := frames(t, resp.Body)
	if len(got) != 3 {
		t.Fatalf("frames = %v", got)
	}
	var last llm.StreamChunk
	if err := json.Unmarshal([]byte(got[2][1]), &last); err != nil {
		t.Fatal(err)
	}
	if !last.IsComplete || last.ProcessedResponse != "Hello" {
		t.Errorf("terminal = %+v", last)
	}
	if text, ok, _ := f.store.Get(context.Background(), vid, "Hi?"); !ok || text != "Hello" {
		t.Errorf("cache = %q, %v", text, ok)
	}

	// Accept header alone selects streaming too, and a hit replays the cache.
	resp = f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/ask", `{"question":"Hi?"}`, map[string]string{"Accept": "text/event-stream"})
	got = frames(t, resp.Body)
	if len(got) != 1 || !strings.Contains(got[0][1], `"token":"Hello"`) {
		t.Errorf("cached frames = %v", got)
	}
}

func TestAskStreamIncompleteEndsWithErrorEvent(t *testing.T) {
	f := newFixture(t, []llm.StreamChunk{{Token: "partial"}}, false, nil)
	resp := f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/ask", `{"question":"Hi?","stream":true}`, nil)
	got := frames(t, resp.Body)
	if len(got) != 2 {
		t.Fatalf("frames = %v", got)
	}
	if got[1][0] != "error" {
		t.Errorf("last frame event = %q, want error", got[1][0])
	}
	for _, fr := range got {
		if strings.Contains(fr[1], `"is_complete":true`) {
			t.Error("terminal chunk sent for an incomplete stream")
		}
	}
	if _, ok, _ := f.store.Get(context.Background(), vid, "Hi?"); ok {
		t.Error("incomplete stream cached")
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, nil, false, nil)
	resp := f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/summary", `{"length":"short"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got SummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Summary != "A short summary." || got.Length != "short" || got.VideoID != vid {
		t.Errorf("summary = %+v", got)
	}

	body := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/summary", "", nil))
	if body["length"] != "medium" {
		t.Errorf("default length = %v", body["length"])
	}
	if resp := f.do(t, http.MethodPost, "/api/v1/videos/"+vid+"/summary", `{"length":"epic"}`, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad length status = %d", resp.StatusCode)
	}
}

func TestIngest(t *testing.T) {
	f := newFixture(t, nil, true, nil)

	resp := f.do(t, http.MethodPost, "/api/v1/videos", `{"url":"https://youtu.be/`+vid+`","duration":"first_5_minutes"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["video_id"] != vid || body["status"] != "indexed" {
		t.Errorf("sync body = %v", body)
	}

	resp = f.do(t, http.MethodPost, "/api/v1/videos", `{"url":"https://youtu.be/`+vid+`","async":true}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("async status = %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["job_id"] != "job-1" {
		t.Errorf("async body = %v", body)
	}
	if len(f.queue.reqs) != 1 {
		t.Errorf("queued %d requests", len(f.queue.reqs))
	}

	resp = f.do(t, http.MethodPost, "/api/v1/videos", `{"url":"","duration":"forever"}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status = %d", resp.StatusCode)
	}
	fields, _ := decodeBody(t, resp)["fields"].(map[string]any)
	if _, ok := fields["url"]; !ok {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["duration"]; !ok {
		t.Errorf("fields = %v", fields)
	}

	resp = f.do(t, http.MethodPost, "/api/v1/videos", `{"url":"https://youtu.be/private"}`, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upstream failure status = %d", resp.StatusCode)
	}
}

func TestIngestAsyncWithoutQueue(t *testing.T) {
	f := newFixture(t, nil, false, nil)
	resp := f.do(t, http.MethodPost, "/api/v1/videos", `{"url":"https://youtu.be/x","async":true}`, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t, nil, false, nil)
	_ = f.store.Put(context.Background(), vid, "q1", "a1")
	_ = f.store.Put(context.Background(), vid, "summarize:short", "s")

	resp := f.do(t, http.MethodDelete, "/api/v1/videos/"+vid+"/cache", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["removed"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, nil, false, NewLimiter(2, time.Hour))
	path := "/api/v1/videos/" + vid + "/summary"
	for i := range 2 {
		if resp := f.do(t, http.MethodPost, path, "", nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}
	resp := f.do(t, http.MethodPost, path, "", nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third request status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if resp := f.do(t, http.MethodGet, "/health/live", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health limited: %d", resp.StatusCode)
	}
	other := f.do(t, http.MethodPost, path, "", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"})
	if other.StatusCode != http.StatusOK {
		t.Errorf("other client status = %d", other.StatusCode)
	}
}

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") || l.Allow("a") {
		t.Fatal("bucket should hold exactly 2 tokens")
	}
	now = now.Add(30 * time.Second)
	if !l.Allow("a") {
		t.Error("one token should refill after half a window")
	}
	if l.Allow("a") {
		t.Error("only one token should have refilled")
	}

	now = now.Add(3 * time.Minute)
	l.evictIdle()
	if len(l.buckets) != 0 {
		t.Errorf("idle bucket not evicted")
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil, false, nil)
	resp := f.do(t, http.MethodOptions, "/api/v1/videos", "", map[string]string{"Origin": "https://app.example"})
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}
}
