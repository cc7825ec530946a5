package sinks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/progress"
)

// Notification is the payload published when a job reaches a terminal state.
type Notification struct {
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	URL        string    `json:"url"`
	ResultFile string    `json:"result_file,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotifySink publishes a Notification for every JOB_DONE and JOB_ERROR event.
type NotifySink struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifySink builds a sink publishing to topic.
func NewNotifySink(publisher crawler.Publisher, topic string, logger *zap.Logger) (*NotifySink, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{publisher: publisher, topic: topic, logger: logger.Named("notify")}, nil
}

// Consume publishes terminal events; other stages are ignored. Publishing
// continues past failures and the first error is returned.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	var firstErr error
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		msg := Notification{
			JobID:      evt.JobID,
			Status:     evt.Status,
			URL:        evt.URL,
			ResultFile: evt.ResultFile,
			Timestamp:  evt.TS.UTC(),
		}
		if evt.Stage == progress.StageJobError {
			msg.Error = evt.Note
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			s.logger.Warn("job notification failed", zap.String("job_id", evt.JobID), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("publish notification for %s: %w", evt.JobID, err)
			}
			continue
		}
		s.logger.Debug("job notification published", zap.String("job_id", evt.JobID), zap.String("message_id", id))
	}
	return firstErr
}

// Close implements progress.Sink.
func (s *NotifySink) Close(context.Context) error {
	return nil
}
