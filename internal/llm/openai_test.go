package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAI(config.OpenAIConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL + "/v1",
		ChatModel:      "gpt-test",
		MaxRetries:     3,
		RequestTimeout: 5 * time.Second,
	}, nil)
}

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func decodeChat(t *testing.T, r *http.Request) chatRequest {
	t.Helper()
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decoding request: %v", err)
	}
	return req
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		req := decodeChat(t, r)
		if req.Model != "gpt-test" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}
		if !strings.Contains(req.Messages[1].Content, "Question: What is X?") ||
			!strings.Contains(req.Messages[1].Content, "X is a letter.") {
			t.Errorf("user message = %q", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  X is a letter.  "},"finish_reason":"stop"}]}`)
	})

	got, err := c.Generate(context.Background(), "What is X?", "X is a letter.")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Response != "X is a letter." {
		t.Errorf("Response = %q", got.Response)
	}
}

func TestGenerateClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
	})

	_, err := c.Generate(context.Background(), "q", "ctx")
	if !errors.Is(err, apperrors.ErrExternalService) {
		t.Fatalf("err = %v, want external service kind", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestSummarizeUsesLengthInstruction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeChat(t, r)
		if !strings.Contains(req.Messages[1].Content, summaryInstructions[SummaryShort]) {
			t.Errorf("user message = %q", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c2","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Short summary."}}]}`)
	})
	got, err := c.Summarize(context.Background(), "long transcript", SummaryShort)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Short summary." {
		t.Errorf("summary = %q", got)
	}
}

func TestSummarizeLongTranscriptInSections(t *testing.T) {
	var calls atomic.Int32
	var final string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		req := decodeChat(t, r)
		content := "Part summary."
		if strings.Contains(req.Messages[1].Content, summaryInstructions[SummaryShort]) {
			final = req.Messages[1].Content
			content = "Combined summary."
		} else if !strings.Contains(req.Messages[1].Content, sectionInstruction) {
			t.Errorf("unexpected prompt %q", req.Messages[1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c3","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, content)
	})
	c.sectionChars = 40

	text := strings.Repeat("a", 30) + "\n\n" + strings.Repeat("b", 30) + "\n\n" + strings.Repeat("c", 30)
	got, err := c.Summarize(context.Background(), text, SummaryShort)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Combined summary." {
		t.Errorf("summary = %q", got)
	}
	if n := calls.Load(); n != 4 {
		t.Errorf("calls = %d, want 3 sections plus 1 combine", n)
	}
	if strings.Count(final, "Part summary.") != 3 {
		t.Errorf("combine prompt = %q", final)
	}
}

func TestSplitSections(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"fits", "one\n\ntwo", 100, []string{"one\n\ntwo"}},
		{"packs paragraphs", "aaaa\n\nbbbb\n\ncccc", 10, []string{"aaaa\n\nbbbb", "cccc"}},
		{"cuts long paragraph", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"keeps runes whole", "ééé", 3, []string{"é", "é", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSections(tt.text, tt.limit)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("splitSections = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamChunkJSON(t *testing.T) {
	tests := []struct {
		name  string
		chunk StreamChunk
		want  string
	}{
		{"token", StreamChunk{Token: "Hi"}, `{"token":"Hi","is_complete":false}`},
		{"terminal", StreamChunk{IsComplete: true, ProcessedResponse: "Hi."}, `{"token":"","is_complete":true,"processed_response":"Hi."}`},
		{"empty terminal", StreamChunk{IsComplete: true}, `{"token":"","is_complete":true,"processed_response":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.chunk)
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.want {
				t.Errorf("json = %s, want %s", b, tt.want)
			}
		})
	}
}

func TestStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if req := decodeChat(t, r); !req.Stream {
			t.Error("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		deltas := []string{`{"role":"assistant"}`, `{"content":"Hel"}`, `{"content":"lo"}`, `{"content":" "}`}
		for _, d := range deltas {
			fmt.Fprintf(w, "data: {\"id\":\"s1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":%s}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	s, err := c.Stream(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var tokens []string
	var last StreamChunk
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if chunk.IsComplete {
			last = chunk
			continue
		}
		tokens = append(tokens, chunk.Token)
	}
	if got := strings.Join(tokens, ""); got != "Hello " {
		t.Errorf("tokens = %q", got)
	}
	if !last.IsComplete || last.ProcessedResponse != "Hello" {
		t.Errorf("terminal chunk = %+v", last)
	}
}

func TestParseSummaryLength(t *testing.T) {
	tests := []struct {
		in      string
		want    SummaryLength
		wantErr bool
	}{
		{"", SummaryMedium, false},
		{"short", SummaryShort, false},
		{" LONG ", SummaryLong, false},
		{"tiny", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSummaryLength(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSummaryLength(%q) err = %v", tt.in, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("ParseSummaryLength(%q) err kind = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSummaryLength(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
