// Package worker runs queued snapshot jobs.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/metrics"
)

// Runner executes one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Worker consumes queue items one at a time.
type Worker struct {
	id     int
	queue  crawler.Queue
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(id int, queue crawler.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		logger: logger.Named("worker").With(zap.Int("worker", id)),
	}
}

// Run blocks, running jobs until ctx ends or the queue is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				w.logger.Debug("worker stopping", zap.Error(err))
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID), zap.Int("attempt", item.Attempt))
		metrics.JobStarted()
		// Failures are already recorded on the job.
		if err := w.runner.Run(ctx, item.JobID); err != nil {
			w.logger.Warn("job did not complete", zap.String("job_id", item.JobID), zap.Error(err))
		}
		metrics.JobFinished()
	}
}
