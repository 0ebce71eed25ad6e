package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCountsAndServes(t *testing.T) {
	r := New()
	r.ObserveSimulation("ok", "scale", 20*time.Millisecond)
	r.ObserveSimulation("ok", "scale", 30*time.Millisecond)
	r.ObserveCollaborator("lifecycle", "error", time.Second)
	r.SnapshotFallback("lifecycle")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Simulations.WithLabelValues("ok", "scale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CollaboratorRequests.WithLabelValues("lifecycle", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SnapshotFallbacks.WithLabelValues("lifecycle")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "trendsim_simulations_total")
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.ObserveSimulation("ok", "scale", time.Millisecond)
	r.ObserveHTTP("/v1/health", "GET", "200", time.Millisecond)
	r.EventPublished("ok")
	r.WarmRun("ok")
	r.SetBreakerState("risk", 2)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
