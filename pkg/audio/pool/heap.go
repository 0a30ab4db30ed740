package pool

// victimHeap orders the in-use voices so the eviction candidate for the
// pool's steal policy is always at index 0. Ties fall back to slot order, so
// the lowest slot among equal candidates is evicted first.
type victimHeap struct {
	voices []*Voice
	oldest bool
}

func (h *victimHeap) Len() int { return len(h.voices) }

// Less reports whether voice i should be evicted before voice j.
func (h *victimHeap) Less(i, j int) bool {
	a, b := h.voices[i], h.voices[j]
	if h.oldest {
		if a.Start != b.Start {
			return a.Start < b.Start
		}
	} else if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.slot < b.slot
}

func (h *victimHeap) Swap(i, j int) {
	h.voices[i], h.voices[j] = h.voices[j], h.voices[i]
	h.voices[i].heapIndex = i
	h.voices[j].heapIndex = j
}

// Push appends x. Called by [container/heap.Push]; callers must not invoke
// this directly.
func (h *victimHeap) Push(x any) {
	v := x.(*Voice)
	v.heapIndex = len(h.voices)
	h.voices = append(h.voices, v)
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *victimHeap) Pop() any {
	old := h.voices
	n := len(old)
	v := old[n-1]
	old[n-1] = nil
	v.heapIndex = -1
	h.voices = old[:n-1]
	return v
}
