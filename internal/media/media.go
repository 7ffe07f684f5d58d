// Package media fetches a video's audio track to local disk with yt-dlp
// and trims it with ffmpeg. Files are reused across calls, so a video is
// downloaded at most once per media directory.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/internal/video"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// Runner executes an external program and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Downloader implements ingest.AudioSource. At most cfg.Workers external
// processes run at once across all callers.
type Downloader struct {
	cfg     config.IngestionConfig
	runner  Runner
	slots   *semaphore.Weighted
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg config.IngestionConfig, m *metrics.Metrics) *Downloader {
	return NewWithRunner(cfg, execRunner{}, m)
}

func NewWithRunner(cfg config.IngestionConfig, runner Runner, m *metrics.Metrics) *Downloader {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	return &Downloader{
		cfg:     cfg,
		runner:  runner,
		slots:   semaphore.NewWeighted(int64(cfg.Workers)),
		metrics: m,
		logger:  slog.Default().With("component", "media"),
	}
}

// Fetch returns the path of the audio for videoID, limited to d. The full
// track is stored as <id>.<format> and a trimmed copy as
// <id>_<duration>.<format>; either is reused when already present.
func (d *Downloader) Fetch(ctx context.Context, ref, videoID string, dur ingest.Duration) (string, error) {
	safe := video.SafeID(videoID)
	if safe == "" {
		return "", apperrors.Validation("video id %q has no usable characters", videoID)
	}
	if err := os.MkdirAll(d.cfg.MediaDir, 0o755); err != nil {
		return "", fmt.Errorf("creating media dir: %w", err)
	}
	log := logger.FromContext(ctx).With("component", "media")

	target := filepath.Join(d.cfg.MediaDir, safe+"."+d.cfg.AudioFormat)
	if exists(target) {
		log.Debug("reusing downloaded audio", "path", target)
	} else if err := d.download(ctx, ref, safe); err != nil {
		return "", err
	}

	limit := dur.Limit()
	if limit <= 0 {
		return target, nil
	}
	trimmed := filepath.Join(d.cfg.MediaDir, fmt.Sprintf("%s_%s.%s", safe, dur, d.cfg.AudioFormat))
	if exists(trimmed) {
		return trimmed, nil
	}
	if err := d.trim(ctx, target, trimmed, limit); err != nil {
		return "", err
	}
	log.Info("audio trimmed", "path", trimmed, "limit", limit)
	return trimmed, nil
}

// download picks the audio quality from the probed length: long videos
// use the lower bitrate.
func (d *Downloader) download(ctx context.Context, ref, safe string) error {
	length, err := d.probe(ctx, ref)
	if err != nil {
		return err
	}
	quality := d.cfg.AudioQuality
	if d.cfg.LongVideoThreshold > 0 && length > d.cfg.LongVideoThreshold {
		quality = d.cfg.LongAudioQuality
	}

	start := time.Now()
	out := filepath.Join(d.cfg.MediaDir, safe+".%(ext)s")
	_, err = d.run(ctx, d.cfg.YTDLPPath,
		"--no-playlist",
		"--extract-audio",
		"--audio-format", d.cfg.AudioFormat,
		"--audio-quality", quality,
		"-o", out,
		ref,
	)
	if err != nil {
		return err
	}
	d.logger.Info("audio downloaded",
		"video", safe,
		"length", length,
		"quality", quality,
		"elapsed", time.Since(start),
	)
	return nil
}

func (d *Downloader) probe(ctx context.Context, ref string) (time.Duration, error) {
	out, err := d.run(ctx, d.cfg.YTDLPPath, "--no-playlist", "--skip-download", "--print", "duration", ref)
	if err != nil {
		return 0, err
	}
	line := lastLine(out)
	secs, err := strconv.ParseFloat(line, 64)
	if err != nil {
		// Live streams and some extractors report no duration.
		d.logger.Warn("video length unknown, using default quality", "output", line)
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// trim writes the first limit of src to dst through a temporary file so a
// partial trim is never mistaken for a finished one.
func (d *Downloader) trim(ctx context.Context, src, dst string, limit time.Duration) error {
	tmp := strings.TrimSuffix(dst, "."+d.cfg.AudioFormat) + ".part." + d.cfg.AudioFormat
	_, err := d.run(ctx, d.cfg.FFmpegPath,
		"-y", "-loglevel", "error",
		"-i", src,
		"-t", strconv.FormatFloat(limit.Seconds(), 'f', -1, 64),
		"-c", "copy",
		tmp,
	)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("finalising trimmed audio: %w", err)
	}
	return nil
}

// run executes one external command inside a worker slot.
func (d *Downloader) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := d.slots.Acquire(ctx, 1); err != nil {
		return nil, apperrors.External(name, err)
	}
	d.metrics.WorkerBusy(1)
	defer func() {
		d.metrics.WorkerBusy(-1)
		d.slots.Release(1)
	}()

	out, err := d.runner.Run(ctx, name, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if msg := lastLine(out); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, apperrors.Wrap(apperrors.ErrInternal, err, name+" is not installed")
		}
		return nil, apperrors.External(name, err)
	}
	return out, nil
}

func lastLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
