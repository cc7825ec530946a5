package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// BufferSize is the capacity of the event channel.
	BufferSize int `mapstructure:"buffer_size"`
	// BatchSize flushes as soon as this many events are pending.
	BatchSize int `mapstructure:"batch_size"`
	// FlushInterval flushes pending events on a fixed cadence.
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// SinkTimeout bounds each Consume call.
	SinkTimeout time.Duration `mapstructure:"sink_timeout"`
}

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = 250 * time.Millisecond
	defaultSinkTimeout   = 5 * time.Second
	dropLogInterval      = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	return c
}

// Hub fans events out to sinks from a single background goroutine. Emit never
// blocks: when the buffer is full the event is dropped and counted.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	logger  *zap.Logger
	dropLog rate.Sometimes
	dropped atomic.Int64
	closed  atomic.Bool
	once    sync.Once
}

// NewHub starts a Hub delivering to sinks.
func NewHub(cfg Config, logger *zap.Logger, sinks ...Sink) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		logger:  logger.Named("progress"),
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.loop()
	return h
}

// Emit enqueues evt. Invalid events and events emitted after Close are ignored.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("progress events dropped", zap.Int64("dropped_total", h.dropped.Load()))
		})
	}
}

// Dropped returns the number of events lost to backpressure.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close stops accepting events, drains the buffer into the sinks, closes
// them and waits for the loop to exit or ctx to end.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.stop)
	})
	select {
	case <-h.done:
	case <-ctx.Done():
		return fmt.Errorf("close progress hub: %w", ctx.Err())
	}
	var firstErr error
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("close progress sink: %w", err)
			}
		}
	}
	return firstErr
}

func (h *Hub) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]Event, 0, h.cfg.BatchSize)
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.BatchSize {
				pending = h.deliver(pending)
			}
		case <-ticker.C:
			pending = h.deliver(pending)
		case <-h.stop:
			for {
				select {
				case evt := <-h.events:
					pending = append(pending, evt)
				default:
					h.deliver(pending)
					return
				}
			}
		}
	}
}

// deliver hands a copy of pending to every sink and returns pending emptied.
func (h *Hub) deliver(pending []Event) []Event {
	if len(pending) == 0 {
		return pending
	}
	batch := append([]Event(nil), pending...)
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed", zap.Int("events", len(batch)), zap.Error(err))
		}
		cancel()
	}
	return pending[:0]
}
