package lexical

import (
	"math"
	"sort"
	"sync"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Scored is a chunk and its BM25 score for a query.
type Scored struct {
	ChunkIndex int
	Score      float64
}

// Index is an inverted index over one video's chunks. It is safe for
// concurrent use.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[int]int // term -> chunk index -> term frequency
	docLen   map[int]int
	totalLen int
}

func NewIndex() *Index {
	return &Index{
		postings: make(map[string]map[int]int),
		docLen:   make(map[int]int),
	}
}

// Add indexes text under chunkIndex. Adding the same index twice replaces
// the earlier text.
func (x *Index) Add(chunkIndex int, text string) {
	freqs := make(map[string]int)
	terms := Terms(text)
	for _, t := range terms {
		freqs[t]++
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if _, exists := x.docLen[chunkIndex]; exists {
		x.removeLocked(chunkIndex)
	}
	for term, tf := range freqs {
		docs, ok := x.postings[term]
		if !ok {
			docs = make(map[int]int)
			x.postings[term] = docs
		}
		docs[chunkIndex] = tf
	}
	x.docLen[chunkIndex] = len(terms)
	x.totalLen += len(terms)
}

func (x *Index) removeLocked(chunkIndex int) {
	for term, docs := range x.postings {
		if _, ok := docs[chunkIndex]; !ok {
			continue
		}
		delete(docs, chunkIndex)
		if len(docs) == 0 {
			delete(x.postings, term)
		}
	}
	x.totalLen -= x.docLen[chunkIndex]
	delete(x.docLen, chunkIndex)
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docLen)
}

// Search scores every chunk containing at least one query term and returns
// the best limit of them, highest score first and ties by chunk index.
// A non-positive limit returns all matches.
func (x *Index) Search(query string, limit int) []Scored {
	terms := uniqueTerms(query)

	x.mu.RLock()
	defer x.mu.RUnlock()
	n := len(x.docLen)
	if n == 0 || len(terms) == 0 {
		return nil
	}
	avgLen := float64(x.totalLen) / float64(n)

	scores := make(map[int]float64)
	for _, term := range terms {
		docs := x.postings[term]
		if len(docs) == 0 {
			continue
		}
		idf := idf(n, len(docs))
		for chunkIndex, tf := range docs {
			scores[chunkIndex] += idf * tfNorm(float64(tf), float64(x.docLen[chunkIndex]), avgLen)
		}
	}

	out := make([]Scored, 0, len(scores))
	for chunkIndex, s := range scores {
		out = append(out, Scored{ChunkIndex: chunkIndex, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func uniqueTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, t := range Terms(text) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	return terms
}

func idf(totalDocs, docFreq int) float64 {
	return math.Log((float64(totalDocs)-float64(docFreq))/(float64(docFreq)+0.5) + 1)
}

func tfNorm(tf, docLen, avgLen float64) float64 {
	if avgLen == 0 {
		return 0
	}
	return tf * (k1 + 1) / (tf + k1*(1-b+b*docLen/avgLen))
}
