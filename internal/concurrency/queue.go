package concurrency

import "container/heap"

type waiter struct {
	priority Priority
	seq      uint64
	ready    chan struct{}
	granted  bool
	index    int
}

// waitQueue is a max-heap on priority, FIFO by seq within a priority.
type waitQueue []*waiter

var _ heap.Interface = (*waitQueue)(nil)

func (q waitQueue) Len() int { return len(q) }

func (q waitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}
