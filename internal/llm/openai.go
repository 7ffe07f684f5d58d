package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultSectionChars keeps one summary prompt well inside the model
	// context window.
	defaultSectionChars = 48000
	sectionConcurrency  = 4
)

// OpenAIClient implements Client over the chat completions API.
type OpenAIClient struct {
	client *openai.Client
	guard  *provider.Guard
	cfg    config.OpenAIConfig
	logger *slog.Logger

	sectionChars int
}

func NewOpenAI(cfg config.OpenAIConfig, m *metrics.Metrics) *OpenAIClient {
	return &OpenAIClient{
		client: provider.NewClient(cfg),
		guard:  provider.NewGuard("openai-chat", cfg, m),
		cfg:    cfg,
		logger: slog.Default().With("component", "llm", "model", cfg.ChatModel),

		sectionChars: defaultSectionChars,
	}
}

func (c *OpenAIClient) request(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
}

func (c *OpenAIClient) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	var resp openai.ChatCompletionResponse
	err := c.guard.Call(ctx, op, func(ctx context.Context) error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.ErrExternalService, http.StatusBadGateway, "openai-chat "+op+": response has no choices")
	}
	c.logger.Debug("completion finished",
		"op", op,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Generate(ctx context.Context, question, contextText string) (Generation, error) {
	text, err := c.complete(ctx, "answer", c.request(answerMessages(question, contextText)))
	if err != nil {
		return Generation{}, err
	}
	return Generation{Response: text}, nil
}

// Summarize summarises fullText in one call when it fits a section.
// Longer transcripts are summarised section by section and the section
// summaries are then combined at the requested length.
func (c *OpenAIClient) Summarize(ctx context.Context, fullText string, length SummaryLength) (string, error) {
	sections := splitSections(fullText, c.sectionChars)
	if len(sections) <= 1 {
		return c.complete(ctx, "summarize", c.request(summaryMessages(fullText, length)))
	}

	parts := make([]string, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sectionConcurrency)
	for i, section := range sections {
		g.Go(func() error {
			text, err := c.complete(gctx, "summarize_section", c.request(sectionMessages(section, i+1, len(sections))))
			if err != nil {
				return err
			}
			parts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	c.logger.Info("summarised transcript in sections", "sections", len(sections))
	return c.complete(ctx, "summarize", c.request(combineMessages(parts, length)))
}

// splitSections packs paragraphs into sections of at most limit bytes. A
// paragraph longer than limit is cut on rune boundaries.
func splitSections(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}
	var (
		sections []string
		cur      strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			sections = append(sections, cur.String())
			cur.Reset()
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		for len(para) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(para[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			sections = append(sections, para[:cut])
			para = para[cut:]
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return sections
}

// Stream opens a streamed completion. Opening is retried under the guard;
// once tokens flow, failures surface from Recv without retry.
func (c *OpenAIClient) Stream(ctx context.Context, question, contextText string) (TokenStream, error) {
	req := c.request(answerMessages(question, contextText))
	req.Stream = true

	var s *openai.ChatCompletionStream
	err := c.guard.Open(ctx, "answer_stream", func(ctx context.Context) error {
		var err error
		s, err = c.client.CreateChatCompletionStream(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &openaiStream{stream: s}, nil
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
	text   strings.Builder
	done   bool
}

// Recv skips role-only and empty deltas. When the upstream ends it emits
// one terminal chunk carrying the trimmed full text, then io.EOF.
func (s *openaiStream) Recv() (StreamChunk, error) {
	if s.done {
		return StreamChunk{}, io.EOF
	}
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return StreamChunk{
				IsComplete:        true,
				ProcessedResponse: strings.TrimSpace(s.text.String()),
			}, nil
		}
		if err != nil {
			return StreamChunk{}, apperrors.External("openai-chat answer_stream", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		s.text.WriteString(token)
		return StreamChunk{Token: token}, nil
	}
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
