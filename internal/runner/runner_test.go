package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/trendsim/internal/events"
	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/scenariostore"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/joelkehle/trendsim/internal/sources"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	events []events.SimulationCompleted
	err    error
}

func (p *recordingPublisher) PublishCompleted(_ context.Context, ev events.SimulationCompleted) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

const fixture = `
trends:
  trend-123:
    lifecycle: {lifecycle_stage: growth, engagement_trend: 60, roi_trend: 55, historical_volatility: 30, as_of: 2026-02-28T00:00:00Z}
    risk: {current_risk_score: 40, risk_trajectory: stable, as_of: 2026-02-28T00:00:00Z}
`

func newTestRunner(t *testing.T, pub events.Publisher) *Runner {
	t.Helper()
	f, err := sources.ParseFixture([]byte(fixture))
	require.NoError(t, err)
	store, err := scenariostore.Open("sqlite", filepath.Join(t.TempDir(), "runner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	p := simulation.NewPipeline(simulation.DefaultConfig(),
		simulation.Sources{Lifecycle: f, Risk: f, Attribution: sources.ReferenceAttribution{}},
		simulation.WithClock(func() time.Time { return testNow }))
	return &Runner{Simulator: p, Scenarios: store, Events: pub, Metrics: metrics.New(), Now: func() time.Time { return testNow }}
}

func scenario() simulation.ScenarioInput {
	risk := 40.0
	return simulation.ScenarioInput{
		TrendContext: simulation.TrendContext{TrendID: "trend-123", LifecycleStage: simulation.StageGrowth, CurrentRiskScore: &risk},
		CampaignStrategy: simulation.CampaignStrategy{
			Type:             simulation.CampaignLongTermPaid,
			BudgetRange:      simulation.BudgetRange{Min: decimal.NewFromInt(20000), Max: decimal.NewFromInt(50000)},
			DurationDays:     30,
			CreatorTier:      simulation.TierMicro,
			ContentIntensity: simulation.IntensityMedium,
		},
		Constraints: simulation.Constraints{RiskTolerance: simulation.ToleranceMedium, MaxBudgetCap: decimal.NewFromInt(60000)},
	}
}

func TestSimulateStoredPersistsAndPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestRunner(t, pub)
	ctx := context.Background()

	sc, err := r.Scenarios.Create(ctx, scenario())
	require.NoError(t, err)

	out, err := r.SimulateStored(ctx, sc.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Version)

	rec, err := r.Scenarios.Get(ctx, sc.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.LastResult)
	assert.Equal(t, out.Response.DecisionInterpretation.RecommendedPosture, rec.LastResult.DecisionInterpretation.RecommendedPosture)

	require.Len(t, pub.events, 1)
	assert.Equal(t, sc.ID, pub.events[0].ScenarioID)
	assert.Equal(t, "trend-123", pub.events[0].TrendID)
	assert.Equal(t, testNow, pub.events[0].OccurredAt)
}

func TestPublishFailureDoesNotFailRun(t *testing.T) {
	r := newTestRunner(t, &recordingPublisher{err: errors.New("broker down")})
	_, err := r.Simulate(context.Background(), scenario(), nil)
	assert.NoError(t, err)
}

func TestSimulateRecordsValidationFailures(t *testing.T) {
	r := newTestRunner(t, nil)
	in := scenario()
	in.Constraints.MaxBudgetCap = decimal.NewFromInt(1000)

	_, err := r.Simulate(context.Background(), in, nil)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.Simulations.WithLabelValues(simulation.CodeBudgetConstraint, "none")))
}

func TestSimulateStoredUnknownScenario(t *testing.T) {
	r := newTestRunner(t, nil)
	_, err := r.SimulateStored(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, scenariostore.ErrNotFound)
}

func TestReportUsesVersionThatProducedResult(t *testing.T) {
	r := newTestRunner(t, nil)
	ctx := context.Background()

	sc, err := r.Scenarios.Create(ctx, scenario())
	require.NoError(t, err)
	_, err = r.Report(ctx, sc.ID)
	require.ErrorIs(t, err, ErrNotSimulated)

	_, err = r.SimulateStored(ctx, sc.ID, nil)
	require.NoError(t, err)

	next := scenario()
	next.CampaignStrategy.DurationDays = 60
	_, err = r.Scenarios.Update(ctx, sc.ID, next)
	require.NoError(t, err)

	rep, err := r.Report(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Meta.Version)
	assert.Equal(t, "trend-123", rep.Meta.TrendID)
	assert.Contains(t, rep.Markdown, "30 days")
	assert.NotContains(t, rep.Markdown, "60 days")
}
