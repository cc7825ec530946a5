// Package memory provides the in-process job queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Queue errors.
var (
	ErrFull   = errors.New("queue full")
	ErrClosed = crawler.ErrQueueClosed
)

// Queue is a bounded FIFO of jobs. Enqueue never waits for space: a full
// queue rejects the job so callers can answer with backpressure.
type Queue struct {
	ch     chan crawler.QueueItem
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a queue holding at most capacity pending jobs.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan crawler.QueueItem, capacity)}
}

// Enqueue adds item or fails with ErrFull, ErrClosed or the context error.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return fmt.Errorf("enqueue %s: %w", item.JobID, ErrFull)
	}
}

// Dequeue blocks for the next job. After Close it drains what is left and
// then returns ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawler.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting jobs. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
