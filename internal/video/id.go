// Package video derives stable identifiers from video references.
package video

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/video-qa-platform/pkg/errors"
)

var (
	urlPattern  = regexp.MustCompile(`(youtu\.be/|youtube\.com/(watch\?(.*&)?v=|embed/|v/|shorts/))([^?&"'>]+)`)
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// ExtractID returns the platform id embedded in ref, or the hex MD5 of ref
// when no known URL shape matches. The result is deterministic for a given
// input. Blank references are rejected.
func ExtractID(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", apperrors.Validation("video reference is empty")
	}
	if m := urlPattern.FindStringSubmatch(ref); m != nil {
		return m[4], nil
	}
	sum := md5.Sum([]byte(ref))
	return hex.EncodeToString(sum[:]), nil
}

// SafeID strips characters that are unsafe in file names.
func SafeID(id string) string {
	return unsafeChars.ReplaceAllString(id, "")
}
