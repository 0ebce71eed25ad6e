package warmer

import (
	"context"
	"errors"
	"testing"

	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/joelkehle/trendsim/internal/sources"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTrends []string

func (s staticTrends) TrendIDs(context.Context) ([]string, error) { return s, nil }

type failingTrends struct{}

func (failingTrends) TrendIDs(context.Context) ([]string, error) { return nil, errors.New("db closed") }

const fixture = `
trends:
  trend-a:
    lifecycle: {lifecycle_stage: growth, engagement_trend: 60}
    risk: {current_risk_score: 30, risk_trajectory: stable}
  trend-b:
    lifecycle: {lifecycle_stage: peak, engagement_trend: 80}
`

func TestRunOnceStoresSnapshots(t *testing.T) {
	f, err := sources.ParseFixture([]byte(fixture))
	require.NoError(t, err)
	snaps := sources.NewMemorySnapshots()
	reg := metrics.New()
	lc := &sources.CachedLifecycle{Live: f, Snapshots: snaps}
	risk := &sources.CachedRisk{Live: f, Snapshots: snaps}

	w := New(staticTrends{"trend-a", "trend-b"}, lc, risk, reg)
	rep, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Trends: 2, Refreshed: 1, Failed: 1}, rep)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WarmRuns.WithLabelValues("partial")))

	_, err = snaps.Load(context.Background(), "lifecycle:trend-b")
	assert.NoError(t, err)
	_, err = snaps.Load(context.Background(), "risk:trend-a")
	assert.NoError(t, err)
	_, err = snaps.Load(context.Background(), "risk:trend-b")
	assert.ErrorIs(t, err, sources.ErrNoSnapshot)
}

func TestRunOnceListFailure(t *testing.T) {
	reg := metrics.New()
	w := New(failingTrends{}, nil, nil, reg)
	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WarmRuns.WithLabelValues("error")))
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	w := New(staticTrends{}, nil, nil, nil)
	assert.Error(t, w.Register("every tuesday"))
	require.NoError(t, w.Register("*/15 * * * *"))
	assert.Len(t, w.Cron.Entries(), 1)
}

var _ simulation.LifecycleSource = (*sources.CachedLifecycle)(nil)

type downLifecycle struct{}

func (downLifecycle) QueryLifecycle(context.Context, string) (simulation.LifecycleData, error) {
	return simulation.LifecycleData{}, errors.New("connection refused")
}

func TestRunOnceCountsSnapshotFallbackAsFailed(t *testing.T) {
	f, err := sources.ParseFixture([]byte(fixture))
	require.NoError(t, err)
	snaps := sources.NewMemorySnapshots()
	ctx := context.Background()

	warm := New(staticTrends{"trend-a"}, &sources.CachedLifecycle{Live: f, Snapshots: snaps}, &sources.CachedRisk{Live: f, Snapshots: snaps}, nil)
	rep, err := warm.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Refreshed)

	reg := metrics.New()
	down := New(staticTrends{"trend-a"}, &sources.CachedLifecycle{Live: downLifecycle{}, Snapshots: snaps}, &sources.CachedRisk{Live: f, Snapshots: snaps}, reg)
	rep, err = down.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Trends: 1, Refreshed: 0, Failed: 1}, rep)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.WarmRuns.WithLabelValues("partial")))
}
