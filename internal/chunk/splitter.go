// Package chunk splits transcripts into ordered, overlapping passages sized
// for retrieval.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Chunk is one transcript passage. Index is stable within a video and
// starts at zero.
type Chunk struct {
	VideoID string `json:"video_id"`
	Index   int    `json:"chunk_index"`
	Text    string `json:"text"`
}

// Splitter packs whole sentences into chunks of at most Size bytes and
// repeats up to Overlap bytes of trailing words at the start of the next
// chunk. Sentences longer than Size are broken on word boundaries, so
// unpunctuated transcripts still split cleanly.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter clamps overlap into [0, size).
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split returns the chunks for text. Blank text yields no chunks; text that
// fits in one chunk yields exactly one.
func (s *Splitter) Split(videoID, text string) []Chunk {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	if len(text) <= s.size {
		return []Chunk{{VideoID: videoID, Index: 0, Text: text}}
	}

	var (
		chunks []Chunk
		cur    []string
		curLen int
	)
	add := func(u string) {
		if curLen > 0 {
			curLen++
		}
		cur = append(cur, u)
		curLen += len(u)
	}
	for _, u := range s.units(text) {
		if curLen > 0 && curLen+1+len(u) > s.size {
			body := strings.Join(cur, " ")
			chunks = append(chunks, Chunk{VideoID: videoID, Index: len(chunks), Text: body})
			cur, curLen = nil, 0
			if tail := s.tail(body); tail != "" && len(tail)+1+len(u) <= s.size {
				add(tail)
			}
		}
		add(u)
	}
	if curLen > 0 {
		chunks = append(chunks, Chunk{VideoID: videoID, Index: len(chunks), Text: strings.Join(cur, " ")})
	}
	return chunks
}

// units breaks text into sentences no longer than the chunk size.
func (s *Splitter) units(text string) []string {
	var out []string
	for _, sentence := range sentences(text) {
		if len(sentence) <= s.size {
			out = append(out, sentence)
			continue
		}
		out = append(out, s.wrapWords(sentence)...)
	}
	return out
}

func (s *Splitter) wrapWords(sentence string) []string {
	var (
		out []string
		b   strings.Builder
	)
	for _, w := range strings.Fields(sentence) {
		for len(w) > s.size {
			if b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
			}
			cut := runeBoundary(w, s.size)
			out = append(out, w[:cut])
			w = w[cut:]
		}
		if b.Len() > 0 && b.Len()+1+len(w) > s.size {
			out = append(out, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// tail returns the longest run of trailing words of body that fits in the
// overlap budget.
func (s *Splitter) tail(body string) string {
	if s.overlap == 0 {
		return ""
	}
	words := strings.Fields(body)
	n := 0
	start := len(words)
	for start > 0 {
		next := n + len(words[start-1])
		if n > 0 {
			next++
		}
		if next > s.overlap {
			break
		}
		n = next
		start--
	}
	if start == len(words) {
		return ""
	}
	return strings.Join(words[start:], " ")
}

// sentences splits after '.', '!' or '?' when followed by a space.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' {
				out = append(out, text[start:i+1])
				start = i + 2
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func runeBoundary(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return cut
}
