// Package transcribe turns audio files into transcript text with an
// OpenAI-compatible speech-to-text endpoint.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// Uploads take far longer than chat calls, so the per-attempt timeout never
// drops below this.
const minUploadTimeout = 5 * time.Minute

// Whisper implements ingest.Transcriber.
type Whisper struct {
	client *openai.Client
	guard  *provider.Guard
	model  string
	logger *slog.Logger
}

func NewWhisper(cfg config.OpenAIConfig, m *metrics.Metrics) *Whisper {
	gcfg := cfg
	if gcfg.RequestTimeout < minUploadTimeout {
		gcfg.RequestTimeout = minUploadTimeout
	}
	model := cfg.TranscriptionModel
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{
		client: provider.NewClient(cfg),
		guard:  provider.NewGuard("openai-whisper", gcfg, m),
		model:  model,
		logger: slog.Default().With("component", "transcribe"),
	}
}

// Transcribe uploads the file at audioPath. An empty language lets the
// model detect it.
func (w *Whisper) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrNotFound, err, "audio file")
	}
	start := time.Now()

	var resp openai.AudioResponse
	err = w.guard.Call(ctx, "transcribe", func(ctx context.Context) error {
		var err error
		resp, err = w.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    w.model,
			FilePath: audioPath,
			Language: language,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("transcribing %s: %w", audioPath, err)
	}

	text := strings.TrimSpace(resp.Text)
	logger.FromContext(ctx).Info("audio transcribed",
		"component", "transcribe",
		"bytes", info.Size(),
		"chars", len(text),
		"elapsed", time.Since(start),
	)
	return text, nil
}
