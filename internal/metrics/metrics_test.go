package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExportMetrics_RegistersAndServes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewExportMetrics(reg)

	m.ResolutionFailures.WithLabelValues(ResolutionStorageError).Inc()
	m.Cycles.WithLabelValues("exported").Inc()
	m.Marked.Add(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionFailures.WithLabelValues(ResolutionStorageError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Marked))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `airdrop_sponsor_resolution_failures_total{reason="storage_error"} 1`)
	assert.Contains(t, string(body), `airdrop_export_cycles_total{outcome="exported"} 1`)
}

func TestNewExportMetrics_NilRegistry(t *testing.T) {
	m := NewExportMetrics(nil)
	assert.NotPanics(t, func() { m.Quarantined.Inc() })
}
