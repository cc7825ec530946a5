// Package pubsub implements the job queue on Google Cloud Pub/Sub so several
// sitesnap replicas can share one backlog.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Config names the topic jobs are published to and the subscription workers
// pull from.
type Config struct {
	Topic        string
	Subscription string
	// MaxOutstanding caps unacknowledged messages held by this process.
	MaxOutstanding int
}

// Queue implements crawler.Queue. A message is acknowledged once a worker
// has taken it, so a replica that dies mid-job leaves that job unfinished
// rather than running it twice.
type Queue struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	items     chan crawler.QueueItem
	startOnce sync.Once
	closeOnce sync.Once
	stop      context.CancelFunc
	stopped   chan struct{}
}

// New checks that the topic and subscription exist. The caller keeps
// ownership of client.
func New(ctx context.Context, client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	switch {
	case client == nil:
		return nil, errors.New("pubsub client is required")
	case cfg.Topic == "":
		return nil, errors.New("queue topic is required")
	case cfg.Subscription == "":
		return nil, errors.New("queue subscription is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check queue topic %q: %w", cfg.Topic, err)
	}
	if !ok {
		return nil, fmt.Errorf("queue topic %q does not exist", cfg.Topic)
	}
	sub := client.Subscription(cfg.Subscription)
	ok, err = sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check queue subscription %q: %w", cfg.Subscription, err)
	}
	if !ok {
		return nil, fmt.Errorf("queue subscription %q does not exist", cfg.Subscription)
	}
	if cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	}

	return &Queue{
		topic:   topic,
		sub:     sub,
		logger:  logger.Named("queue_pubsub"),
		items:   make(chan crawler.QueueItem),
		stopped: make(chan struct{}),
	}, nil
}

// Enqueue publishes item and waits for the server to accept it.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: map[string]string{"job_id": item.JobID}}
	if _, err := q.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.JobID, err)
	}
	return nil
}

// Dequeue blocks for the next job. The first call starts receiving.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	q.startOnce.Do(q.receive)
	select {
	case <-ctx.Done():
		return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.items:
		if !ok {
			return crawler.QueueItem{}, crawler.ErrQueueClosed
		}
		return item, nil
	}
}

func (q *Queue) receive() {
	ctx, cancel := context.WithCancel(context.Background())
	q.stop = cancel
	go func() {
		defer close(q.stopped)
		defer close(q.items)
		err := q.sub.Receive(ctx, func(mctx context.Context, msg *pubsub.Message) {
			var item crawler.QueueItem
			if err := json.Unmarshal(msg.Data, &item); err != nil || item.JobID == "" {
				q.logger.Error("dropping malformed queue message", zap.String("message_id", msg.ID), zap.Error(err))
				msg.Ack()
				return
			}
			item.Attempt = deliveryAttempt(msg, item.Attempt)
			select {
			case q.items <- item:
				msg.Ack()
			case <-mctx.Done():
				msg.Nack()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Error("queue receive stopped", zap.Error(err))
		}
	}()
}

// Close stops receiving and flushes pending publishes. Messages not yet taken
// by a worker are redelivered elsewhere.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.startOnce.Do(func() { close(q.items); close(q.stopped) })
		if q.stop != nil {
			q.stop()
		}
		<-q.stopped
		q.topic.Stop()
	})
}

func deliveryAttempt(msg *pubsub.Message, fallback int) int {
	if msg.DeliveryAttempt != nil {
		return *msg.DeliveryAttempt
	}
	return fallback
}
