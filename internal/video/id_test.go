package video

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
)

func TestExtractID(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/shorts/abcDEF12345", "abcDEF12345"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := ExtractID(tt.ref)
			if err != nil {
				t.Fatalf("ExtractID: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractIDFallsBackToHash(t *testing.T) {
	ref := "https://vimeo.com/123456"
	sum := md5.Sum([]byte(ref))
	want := hex.EncodeToString(sum[:])

	got, err := ExtractID(ref)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("ExtractID = %q, want %q", got, want)
	}
	again, _ := ExtractID(ref)
	if again != got {
		t.Error("fallback id is not deterministic")
	}
}

func TestExtractIDRejectsBlank(t *testing.T) {
	for _, ref := range []string{"", "   "} {
		if _, err := ExtractID(ref); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("ExtractID(%q) err = %v, want validation error", ref, err)
		}
	}
}

func TestSafeID(t *testing.T) {
	if got := SafeID("ab/c..d_e-f"); got != "abcd_e-f" {
		t.Errorf("SafeID = %q", got)
	}
}
