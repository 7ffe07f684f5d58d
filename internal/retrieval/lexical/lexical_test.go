package lexical

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestWords(t *testing.T) {
	got := Words("What is the Transformer's attention, and why does it matter? A 2x speedup!")
	want := []string{"transformer", "attention", "matter", "2x", "speedup"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}

func TestStem(t *testing.T) {
	tests := []struct{ in, want string }{
		{"running", "runn"},
		{"relational", "relate"},
		{"libraries", "library"},
		{"cats", "cat"},
		{"class", "class"},
		{"go", "go"},
	}
	for _, tt := range tests {
		if got := stem(tt.in); got != tt.want {
			t.Errorf("stem(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	x := NewIndex()
	x.Add(0, "The speaker introduces the course and the instructors.")
	x.Add(1, "Gradient descent updates weights using the gradient of the loss.")
	x.Add(2, "We then compare gradient descent with other optimizers.")
	x.Add(3, "Closing remarks and thanks.")

	got := x.Search("how does gradient descent work", 10)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(got), got)
	}
	if got[0].ChunkIndex != 1 {
		t.Errorf("top chunk = %d, want 1", got[0].ChunkIndex)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %+v", got)
	}
}

func TestSearchTiesOrderedByChunkIndex(t *testing.T) {
	x := NewIndex()
	for _, i := range []int{5, 2, 9} {
		x.Add(i, "identical text about neural networks")
	}
	got := x.Search("neural", 0)
	var order []int
	for _, s := range got {
		order = append(order, s.ChunkIndex)
	}
	if !reflect.DeepEqual(order, []int{2, 5, 9}) {
		t.Errorf("order = %v, want [2 5 9]", order)
	}
}

func TestAddReplacesChunk(t *testing.T) {
	x := NewIndex()
	x.Add(0, "apples and oranges")
	x.Add(0, "bananas only")
	if got := x.Search("apples", 0); len(got) != 0 {
		t.Errorf("stale term still indexed: %+v", got)
	}
	if got := x.Search("bananas", 0); len(got) != 1 {
		t.Errorf("replacement not indexed: %+v", got)
	}
	if x.Len() != 1 {
		t.Errorf("Len = %d, want 1", x.Len())
	}
}

func TestSearchEmpty(t *testing.T) {
	x := NewIndex()
	if got := x.Search("anything", 5); got != nil {
		t.Errorf("empty index returned %+v", got)
	}
	x.Add(0, "some words")
	if got := x.Search("the and of", 5); got != nil {
		t.Errorf("stop-word query returned %+v", got)
	}
}

func BenchmarkSearch(b *testing.B) {
	x := NewIndex()
	for i := range 1000 {
		x.Add(i, fmt.Sprintf("chunk %d discusses topic%d and topic%d with examples of retrieval", i, i%37, i%11))
	}
	b.ResetTimer()
	for b.Loop() {
		x.Search("retrieval examples topic7", 16)
	}
}

func BenchmarkTerms(b *testing.B) {
	sentence := "So the model attends over every previous token, and that is why longer transcripts get slower to answer. "
	for _, size := range []int{100, 1000, 10000} {
		text := strings.Repeat(sentence, size/len(sentence)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				Terms(text)
			}
		})
	}
}

func BenchmarkTermsParallel(b *testing.B) {
	text := "Speakers explain gradient descent, learning rates and why normalisation keeps training stable."
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			Terms(text)
		}
	})
}
