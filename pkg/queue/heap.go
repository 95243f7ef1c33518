package queue

import "container/heap"

// requestHeap implements container/heap.Interface over *Request,
// encoding the scheduling comparator: plan-bound requests rank above
// ad-hoc ones, then higher Priority wins, then older CreatedAt wins
// (FIFO fairness), ties broken by RequestID.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	a, b := h[i], h[j]

	aPlan, bPlan := a.Options.PlanID != "", b.Options.PlanID != ""
	if aPlan != bPlan {
		return aPlan // plan-bound sorts first
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority // higher priority first
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt) // older first
	}
	return a.RequestID < b.RequestID
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) {
	*h = append(*h, x.(*Request))
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ = heap.Interface(&requestHeap{})
