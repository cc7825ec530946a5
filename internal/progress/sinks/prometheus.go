package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitesnap/internal/progress"
)

// PrometheusSink derives job and page metrics from progress events.
type PrometheusSink struct {
	jobsStarted   *prometheus.CounterVec
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pagesFound    *prometheus.CounterVec
	pageBytes     prometheus.Counter
	pagesRendered prometheus.Counter

	running *runningSet
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_jobs_started_total",
			Help: "Snapshot jobs started, by crawl mode.",
		}, []string{"mode"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_jobs_completed_total",
			Help: "Snapshot jobs finished, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitesnap_jobs_running",
			Help: "Snapshot jobs currently running.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitesnap_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"result"}),
		pagesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitesnap_pages_found_total",
			Help: "Pages fetched during crawls, by HTTP status class.",
		}, []string{"status_class"}),
		pageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitesnap_page_bytes_total",
			Help: "Bytes downloaded for crawled pages.",
		}),
		pagesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitesnap_pages_rendered_total",
			Help: "Pages rendered for export.",
		}),
		running: &runningSet{ids: make(map[string]struct{})},
	}
	for _, c := range []prometheus.Collector{
		s.jobsStarted, s.jobsCompleted, s.jobsRunning, s.jobRuntime,
		s.pagesFound, s.pageBytes, s.pagesRendered,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			mode := evt.Mode
			if mode == "" {
				mode = "unknown"
			}
			s.jobsStarted.WithLabelValues(mode).Inc()
			if s.running.add(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone, progress.StageJobError:
			result := "success"
			if evt.Stage == progress.StageJobError {
				result = "error"
			}
			s.jobsCompleted.WithLabelValues(result).Inc()
			if evt.Dur > 0 {
				s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
			}
			if s.running.remove(evt.JobID) {
				s.jobsRunning.Dec()
			}
		case progress.StagePageFound:
			s.pagesFound.WithLabelValues(string(progress.ClassifyStatus(evt.StatusCode))).Inc()
			if evt.Bytes > 0 {
				s.pageBytes.Add(float64(evt.Bytes))
			}
		case progress.StagePageRendered:
			s.pagesRendered.Inc()
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runningSet keeps the gauge balanced when start or end events repeat.
type runningSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (r *runningSet) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runningSet) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
