package pipeline

import (
	"sync"

	"github.com/backmassage/retuner/internal/source"
)

// queue is the FIFO work queue shared by the workers.
type queue struct {
	mu    sync.Mutex
	items []*source.AudioSource
}

func newQueue(items []*source.AudioSource) *queue {
	return &queue{items: append([]*source.AudioSource(nil), items...)}
}

// pop removes and returns the head, or false when the queue is empty.
func (q *queue) pop() (*source.AudioSource, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	s := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return s, true
}

// drain empties the queue and returns what was left.
func (q *queue) drain() []*source.AudioSource {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.items
	q.items = nil
	return rest
}
