package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	assert.Same(t, DefaultRegistry(), DefaultRegistry())
}

func TestRecordComputation(t *testing.T) {
	r := NewRegistry()
	r.RecordComputation("OK", "NONE", 10*time.Millisecond)
	r.RecordComputation("OK", "NONE", 20*time.Millisecond)
	r.RecordComputation("FAILED", "NO_PATH_EXISTS", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ComputationsTotal.WithLabelValues("OK", "NONE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ComputationsTotal.WithLabelValues("FAILED", "NO_PATH_EXISTS")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.ComputationDuration))
}

func TestRecordCounters(t *testing.T) {
	r := NewRegistry()
	r.RecordMetricRetry(true)
	r.RecordMetricRetry(false)
	r.RecordMetricRetry(false)
	r.RecordSoftRelax()
	r.RecordFeasibility("unreachable")
	r.RecordConflictRetry()
	r.RecordTopology(nil, 6, 10)
	r.RecordTopology(errors.New("boom"), 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.MetricRetriesTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.MetricRetriesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SoftRelaxTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FeasibilityTotal.WithLabelValues("unreachable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ConflictRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TopologyRefreshes.WithLabelValues("error")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.TopologyNodes), "failed refresh keeps the last size")
	assert.Equal(t, 10.0, testutil.ToFloat64(r.TopologyLinks))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordComputation("OK", "NONE", time.Second)
		r.RecordMetricRetry(true)
		r.RecordSoftRelax()
		r.RecordFeasibility("feasible")
		r.RecordConflictRetry()
		r.RecordTopology(nil, 1, 1)
	})
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordComputation("OK", "NONE", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pce_path_computations_total{cause="NONE",result="OK"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
