package chunk

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitEmptyAndShort(t *testing.T) {
	s := NewSplitter(100, 20)
	if got := s.Split("v1", "   \n\t "); got != nil {
		t.Errorf("blank transcript produced %d chunks", len(got))
	}
	got := s.Split("v1", "  Hello   world. ")
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	if got[0].Text != "Hello world." || got[0].Index != 0 || got[0].VideoID != "v1" {
		t.Errorf("chunk = %+v", got[0])
	}
}

func TestSplitRespectsSizeAndOrder(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about topic %d. ", i, i%7)
	}
	s := NewSplitter(200, 50)
	chunks := s.Split("vid", b.String())
	if len(chunks) < 5 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Text) > 200 {
			t.Errorf("chunk %d is %d bytes", i, len(c.Text))
		}
		if c.VideoID != "vid" {
			t.Errorf("chunk %d video id %q", i, c.VideoID)
		}
	}
	if !strings.Contains(chunks[len(chunks)-1].Text, "Sentence number 59") {
		t.Error("last sentence missing from final chunk")
	}
}

func TestSplitOverlapsNeighbours(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 40)
	s := NewSplitter(120, 30)
	chunks := s.Split("vid", text)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		tail := s.tail(chunks[i-1].Text)
		if tail == "" {
			t.Fatalf("chunk %d has no overlap tail", i-1)
		}
		if !strings.HasPrefix(chunks[i].Text, tail+" ") {
			t.Errorf("chunk %d does not start with the tail %q of chunk %d: %q", i, tail, i-1, chunks[i].Text)
		}
	}
}

func TestSplitUnpunctuatedAndLongWords(t *testing.T) {
	s := NewSplitter(50, 0)
	text := strings.Repeat("word ", 40) + strings.Repeat("x", 130)
	chunks := s.Split("vid", text)
	for _, c := range chunks {
		if len(c.Text) > 50 {
			t.Errorf("chunk exceeds size: %d bytes", len(c.Text))
		}
	}
	joined := strings.ReplaceAll(strings.Join(func() []string {
		out := make([]string, len(chunks))
		for i, c := range chunks {
			out[i] = c.Text
		}
		return out
	}(), ""), " ", "")
	if !strings.HasSuffix(joined, strings.Repeat("x", 130)) {
		t.Error("long word was not preserved across chunks")
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 500)
	if s.overlap >= s.size {
		t.Errorf("overlap %d not clamped below size %d", s.overlap, s.size)
	}
}
