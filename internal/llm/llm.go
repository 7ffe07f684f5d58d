// Package llm defines the language model collaborator used to answer and
// summarise, plus its OpenAI-backed implementation.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
)

// Generation is a complete batch answer.
type Generation struct {
	Response string
}

// StreamChunk is one increment of a streamed answer. Exactly one chunk per
// stream has IsComplete set, and it is the last one. ProcessedResponse is
// only meaningful on that terminal chunk.
type StreamChunk struct {
	Token             string `json:"token"`
	IsComplete        bool   `json:"is_complete"`
	ProcessedResponse string `json:"processed_response,omitempty"`
}

// MarshalJSON always writes processed_response on the terminal chunk, even
// when empty, and never on token chunks.
func (c StreamChunk) MarshalJSON() ([]byte, error) {
	type wire struct {
		Token             string  `json:"token"`
		IsComplete        bool    `json:"is_complete"`
		ProcessedResponse *string `json:"processed_response,omitempty"`
	}
	w := wire{Token: c.Token, IsComplete: c.IsComplete}
	if c.IsComplete {
		w.ProcessedResponse = &c.ProcessedResponse
	}
	return json.Marshal(w)
}

// TokenStream yields chunks until Recv returns io.EOF. Close releases the
// upstream connection and may be called at any point.
type TokenStream interface {
	Recv() (StreamChunk, error)
	Close() error
}

type Client interface {
	Generate(ctx context.Context, question, contextText string) (Generation, error)
	Stream(ctx context.Context, question, contextText string) (TokenStream, error)
	Summarize(ctx context.Context, fullText string, length SummaryLength) (string, error)
}

type SummaryLength string

const (
	SummaryShort  SummaryLength = "short"
	SummaryMedium SummaryLength = "medium"
	SummaryLong   SummaryLength = "long"
)

// ParseSummaryLength maps user input onto a length. Empty input selects
// medium.
func ParseSummaryLength(s string) (SummaryLength, error) {
	switch l := SummaryLength(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return SummaryMedium, nil
	case SummaryShort, SummaryMedium, SummaryLong:
		return l, nil
	default:
		return "", apperrors.Validation("summary length %q: want short, medium or long", s)
	}
}
