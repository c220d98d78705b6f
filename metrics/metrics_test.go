package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Exposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.JobsSubmitted.WithLabelValues("products", "delete").Inc()
	m.ItemsProcessed.WithLabelValues("products", "success").Add(3)
	m.JobDuration.WithLabelValues("products").Observe(0.2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ItemsProcessed.WithLabelValues("products", "success")))

	srv := httptest.NewServer(NewServer(":0", reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `bulk_jobs_submitted_total{collection="products",operation="delete"} 1`)
	assert.Contains(t, string(body), "bulk_job_duration_seconds_bucket")
}

func TestNew_PanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
