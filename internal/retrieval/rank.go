package retrieval

import "container/heap"

// Blend normalises each path by its best score and combines them as
// w*vector + (1-w)*keyword. A chunk absent from a path scores 0 there, and
// negative raw scores count as 0.
func Blend(vector, keyword []Passage, w float64) []Passage {
	merged := make(map[int]*Passage)
	var order []int
	add := func(list []Passage, weight float64) {
		best := 0.0
		for _, p := range list {
			best = max(best, p.Score)
		}
		for _, p := range list {
			e, ok := merged[p.ChunkIndex]
			if !ok {
				cp := p
				cp.Score = 0
				e = &cp
				merged[p.ChunkIndex] = e
				order = append(order, p.ChunkIndex)
			}
			if best > 0 && p.Score > 0 {
				e.Score += weight * p.Score / best
			}
		}
	}
	if w > 0 {
		add(vector, w)
	}
	if w < 1 {
		add(keyword, 1-w)
	}

	out := make([]Passage, 0, len(merged))
	for _, idx := range order {
		out = append(out, *merged[idx])
	}
	return out
}

// TopK returns the k best passages ordered by score descending, ties by
// chunk index ascending.
func TopK(passages []Passage, k int) []Passage {
	if k <= 0 {
		return nil
	}
	h := &passageHeap{}
	for _, p := range passages {
		heap.Push(h, p)
		if h.Len() > k {
			heap.Pop(h)
		}
	}
	out := make([]Passage, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Passage)
	}
	return out
}

// passageHeap is a min-heap on rank: the root is the worst passage kept.
type passageHeap []Passage

func (h passageHeap) Len() int { return len(h) }

func (h passageHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].ChunkIndex > h[j].ChunkIndex
}

func (h passageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *passageHeap) Push(x any) { *h = append(*h, x.(Passage)) }

func (h *passageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
