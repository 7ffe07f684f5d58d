package ingest

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
)

const maxURLLength = 2048

// ValidationError holds per-field failure messages. It matches
// apperrors.ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrValidation }

func ValidateRequest(req *Request) error {
	errs := make(map[string]string)

	url := strings.TrimSpace(req.URL)
	if url == "" {
		errs["url"] = "url is required"
	} else if len(url) > maxURLLength {
		errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	}
	if _, err := ParseDuration(req.Duration); err != nil {
		errs["duration"] = "must be one of full_video, first_5_minutes, first_10_minutes, first_30_minutes, first_60_minutes"
	}
	if len(req.Language) > 16 {
		errs["language"] = "language must be a short language code"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	req.URL = url
	return nil
}
