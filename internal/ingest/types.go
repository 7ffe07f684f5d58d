// Package ingest turns a video reference into indexed transcript chunks:
// fetch audio, transcribe, split, index, then record the video as
// processed. It also carries the queued form of that work over Kafka.
package ingest

import (
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
)

// Duration selects how much of a video is ingested.
type Duration string

const (
	FullVideo      Duration = "full_video"
	First5Minutes  Duration = "first_5_minutes"
	First10Minutes Duration = "first_10_minutes"
	First30Minutes Duration = "first_30_minutes"
	First60Minutes Duration = "first_60_minutes"
)

var durationLimits = map[Duration]time.Duration{
	FullVideo:      0,
	First5Minutes:  5 * time.Minute,
	First10Minutes: 10 * time.Minute,
	First30Minutes: 30 * time.Minute,
	First60Minutes: 60 * time.Minute,
}

// ParseDuration validates s. Empty input selects the full video.
func ParseDuration(s string) (Duration, error) {
	if s == "" {
		return FullVideo, nil
	}
	d := Duration(s)
	if _, ok := durationLimits[d]; !ok {
		return "", apperrors.Validation("duration %q: want full_video or first_{5,10,30,60}_minutes", s)
	}
	return d, nil
}

// Limit is the length to keep, or 0 for the whole video.
func (d Duration) Limit() time.Duration {
	return durationLimits[d]
}

type Options struct {
	Duration Duration `json:"duration,omitempty"`
	Language string   `json:"language,omitempty"`
}

// Request is the JSON body of POST /api/v1/videos.
type Request struct {
	URL      string `json:"url"`
	Duration string `json:"duration"`
	Language string `json:"language"`
	Async    bool   `json:"async"`
}

// Options converts an already validated request.
func (r Request) Options() Options {
	d, _ := ParseDuration(r.Duration)
	return Options{Duration: d, Language: r.Language}
}

type Response struct {
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
	JobID   string `json:"job_id,omitempty"`
}

const (
	StatusIndexed = "indexed"
	StatusQueued  = "queued"
)

// Job is the Kafka payload for asynchronous ingestion.
type Job struct {
	JobID       string    `json:"job_id"`
	VideoID     string    `json:"video_id"`
	URL         string    `json:"url"`
	Options     Options   `json:"options"`
	RequestedAt time.Time `json:"requested_at"`
}
