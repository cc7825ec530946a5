package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/progress"
)

// LogSink writes one structured line per event. Page events log at debug.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
		}
		switch evt.Stage {
		case progress.StagePageFound:
			fields = append(fields, zap.Int("status_code", evt.StatusCode), zap.Int64("bytes", evt.Bytes))
			s.logger.Debug("page found", fields...)
		case progress.StagePageRendered:
			s.logger.Debug("page rendered", fields...)
		case progress.StageJobError:
			fields = append(fields, zap.Duration("dur", evt.Dur), zap.String("error", evt.Note))
			s.logger.Warn("job failed", fields...)
		default:
			if evt.Mode != "" {
				fields = append(fields, zap.String("mode", evt.Mode))
			}
			if evt.Status != "" {
				fields = append(fields, zap.String("status", evt.Status))
			}
			if evt.ResultFile != "" {
				fields = append(fields, zap.String("result_file", evt.ResultFile))
			}
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("dur", evt.Dur))
			}
			s.logger.Info("job progress", fields...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
