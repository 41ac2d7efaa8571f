package rag

import "container/heap"

// scoreHeap is a min-heap of row indices ordered by score, so the weakest of
// the current top k sits at the root.
type scoreHeap struct {
	idx    []int
	scores []float32
}

func (h *scoreHeap) Len() int           { return len(h.idx) }
func (h *scoreHeap) Less(i, j int) bool { return h.scores[h.idx[i]] < h.scores[h.idx[j]] }
func (h *scoreHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *scoreHeap) Push(x any)         { h.idx = append(h.idx, x.(int)) }
func (h *scoreHeap) Pop() any {
	n := len(h.idx) - 1
	v := h.idx[n]
	h.idx = h.idx[:n]
	return v
}

// topK returns the indices of the k highest scores in no particular order.
// When k >= len(scores) every index is returned.
func topK(scores []float32, k int) []int {
	if k >= len(scores) {
		all := make([]int, len(scores))
		for i := range all {
			all[i] = i
		}
		return all
	}

	h := &scoreHeap{idx: make([]int, 0, k), scores: scores}
	for i, s := range scores {
		if h.Len() < k {
			heap.Push(h, i)
			continue
		}
		if s > scores[h.idx[0]] {
			h.idx[0] = i
			heap.Fix(h, 0)
		}
	}
	return h.idx
}
