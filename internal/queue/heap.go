package queue

// pendingEntry orders the dispatch heap: lower priority number first, then
// insertion sequence for FIFO at equal priority.
type pendingEntry struct {
	id       string
	priority int
	seq      uint64
}

type pendingHeap []*pendingEntry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) { *h = append(*h, x.(*pendingEntry)) }

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
