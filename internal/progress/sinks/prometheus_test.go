package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "j1", TS: now, Stage: progress.StageJobStart, Mode: "recursive"},
		{JobID: "j1", TS: now, Stage: progress.StageJobStart, Mode: "recursive"},
		{JobID: "j1", TS: now, Stage: progress.StagePageFound, URL: "https://a.test/", StatusCode: 200, Bytes: 1024},
		{JobID: "j1", TS: now, Stage: progress.StagePageFound, URL: "https://a.test/x", StatusCode: 404},
		{JobID: "j1", TS: now, Stage: progress.StagePageRendered, URL: "https://a.test/"},
		{JobID: "j2", TS: now, Stage: progress.StageJobStart},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.jobsRunning), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.jobsStarted.WithLabelValues("recursive")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.jobsStarted.WithLabelValues("unknown")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pagesFound.WithLabelValues("2xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pagesFound.WithLabelValues("4xx")), 1e-9)
	require.InDelta(t, 1024.0, testutil.ToFloat64(sink.pageBytes), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.pagesRendered), 1e-9)

	done := []progress.Event{
		{JobID: "j1", TS: now, Stage: progress.StageJobDone, Dur: 12 * time.Second},
		{JobID: "j2", TS: now, Stage: progress.StageJobError, Dur: time.Second},
		{JobID: "j2", TS: now, Stage: progress.StageJobError},
	}
	require.NoError(t, sink.Consume(context.Background(), done))
	require.InDelta(t, 0.0, testutil.ToFloat64(sink.jobsRunning), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")), 1e-9)
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("error")), 1e-9)
	require.Equal(t, 2, testutil.CollectAndCount(sink.jobRuntime, "sitesnap_job_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
