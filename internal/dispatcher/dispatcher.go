// Package dispatcher fans queued jobs out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/worker"
)

// DefaultConcurrency is the number of jobs run in parallel.
const DefaultConcurrency = 4

// Dispatcher owns the queue and its workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher over prebuilt workers.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// NewPool creates a Dispatcher with concurrency workers sharing runner.
func NewPool(queue crawler.Queue, runner worker.Runner, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	workers := make([]*worker.Worker, 0, concurrency)
	for i := range concurrency {
		workers = append(workers, worker.New(i+1, queue, runner, logger))
	}
	return New(queue, workers)
}

// Run starts all workers and blocks until every worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var g errgroup.Group
	for _, w := range d.workers {
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Workers reports the pool size.
func (d *Dispatcher) Workers() int {
	return len(d.workers)
}
