package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeHost(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"http://example.com/path":  "example.com",
		"https://Example.com/path": "example.com",
		"example.com/path":         "example.com",
		"example.com:8080":         "example.com",
		"http://%":                 "unknown",
		"":                         "unknown",
	}
	for in, want := range cases {
		require.Equal(t, want, SanitizeHost(in), in)
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, "error", Outcome(0))
	require.Equal(t, "2xx", Outcome(200))
	require.Equal(t, "3xx", Outcome(301))
	require.Equal(t, "4xx", Outcome(404))
	require.Equal(t, "5xx", Outcome(502))
}

func TestObserveFunctionsInitLazily(t *testing.T) {
	t.Parallel()

	ObserveFetch("https://metrics.test/a", 200, 512, 20*time.Millisecond)
	ObserveFetch("https://metrics.test/b", 0, 0, time.Second)
	ObservePaceDelay(time.Second)
	ObserveRender("static", nil, time.Second)
	ObserveExport("pdf", errors.New("boom"))

	require.InDelta(t, 1.0, testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics.test", "2xx")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(fetchesTotal.WithLabelValues("metrics.test", "error")), 1e-9)
	require.InDelta(t, 512.0, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("metrics.test")), 1e-9)
	require.GreaterOrEqual(t, testutil.ToFloat64(exportsTotal.WithLabelValues("pdf", "error")), 1.0)
}

func FuzzSanitizeHost(f *testing.F) {
	for _, seed := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		if SanitizeHost(in) == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", in)
		}
	})
}
