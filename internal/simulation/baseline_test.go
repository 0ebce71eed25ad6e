package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBaselineFullCoverage(t *testing.T) {
	cfg := DefaultConfig()
	s := mustValidate(cfg, growthScenario())

	b := ExtractBaseline(context.Background(), cfg, testSources(), s, testNow)
	assert.Equal(t, 100.0, b.DataCoverage)
	assert.Equal(t, ConfidenceHigh, b.Confidence)
	assert.Equal(t, 1.0, b.Widening)
	assert.Equal(t, "lifecycle-test", b.EngagementTrend.Source)
	assert.Equal(t, "risk-test", b.CurrentRiskScore.Source)
	assert.Equal(t, []string{"saturation_watch"}, b.RiskIndicators)
	assert.Empty(t, b.Notes)
}

func TestExtractBaselineDegradesWhenLifecycleUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	s := mustValidate(cfg, growthScenario())
	src := testSources()
	src.Lifecycle = &fakeLifecycle{err: errUnreachable}

	b := ExtractBaseline(context.Background(), cfg, src, s, testNow)
	assert.InDelta(t, 33.33, b.DataCoverage, 0.001)
	assert.Equal(t, ConfidenceLow, b.Confidence)
	assert.Equal(t, cfg.Thresholds.LowCoverageWidening, b.Widening)
	assert.Equal(t, SourceDefault, b.EngagementTrend.Source)
	assert.Equal(t, cfg.Thresholds.NeutralMetric, b.EngagementTrend.Value)
	assert.False(t, b.EngagementTrend.Populated)
	require.NotEmpty(t, b.Notes)
	assert.Contains(t, b.Notes[0], "unavailable")
}

func TestExtractBaselineTimeoutCountsAsMissing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds.QueryTimeout = 20 * time.Millisecond
	s := mustValidate(cfg, growthScenario())
	src := testSources()
	src.Lifecycle = &fakeLifecycle{block: true}

	started := time.Now()
	b := ExtractBaseline(context.Background(), cfg, src, s, testNow)
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.InDelta(t, 33.33, b.DataCoverage, 0.001)
}

func TestExtractBaselineStaleDataUsesLastKnownValues(t *testing.T) {
	cfg := DefaultConfig()
	s := mustValidate(cfg, growthScenario())
	lc := freshLifecycle()
	lc.data.AsOf = testNow.Add(-10 * 24 * time.Hour)
	src := testSources()
	src.Lifecycle = lc

	b := ExtractBaseline(context.Background(), cfg, src, s, testNow)
	assert.Equal(t, 60.0, b.EngagementTrend.Value)
	assert.False(t, b.EngagementTrend.Fresh)
	assert.InDelta(t, 33.33, b.DataCoverage, 0.001)
	require.NotEmpty(t, b.Notes)
	assert.Contains(t, b.Notes[0], "stale")
}

func TestExtractBaselineClampsOutOfRangeMetrics(t *testing.T) {
	cfg := DefaultConfig()
	s := mustValidate(cfg, growthScenario())
	lc := freshLifecycle()
	lc.data.EngagementTrend = ptr(130)
	src := testSources()
	src.Lifecycle = lc

	b := ExtractBaseline(context.Background(), cfg, src, s, testNow)
	assert.Equal(t, 100.0, b.EngagementTrend.Value)
	assert.True(t, b.EngagementTrend.Clamped)
	assert.True(t, b.EngagementTrend.Populated)
	require.Len(t, b.Notes, 1)
	assert.Contains(t, b.Notes[0], "clamped")
}

func TestExtractBaselineRiskFallsBackToDeclaredScore(t *testing.T) {
	cfg := DefaultConfig()
	in := growthScenario()
	in.TrendContext.CurrentRiskScore = ptr(72)
	s := mustValidate(cfg, in)
	src := testSources()
	src.Risk = &fakeRisk{err: errUnreachable}

	b := ExtractBaseline(context.Background(), cfg, src, s, testNow)
	assert.Equal(t, 72.0, b.CurrentRiskScore.Value)
	assert.Equal(t, SourceScenario, b.CurrentRiskScore.Source)
	assert.Equal(t, TrajectoryStable, b.RiskTrajectory)
	assert.InDelta(t, 66.67, b.DataCoverage, 0.001)
	assert.Equal(t, ConfidenceMedium, b.Confidence)
}

func TestExtractBaselineConfidenceCappedByDeclaredConfidence(t *testing.T) {
	cfg := DefaultConfig()
	in := growthScenario()
	in.TrendContext.Confidence = ConfidenceLow
	s := mustValidate(cfg, in)

	b := ExtractBaseline(context.Background(), cfg, testSources(), s, testNow)
	assert.Equal(t, 100.0, b.DataCoverage)
	assert.Equal(t, ConfidenceLow, b.Confidence)
}

func TestExtractBaselineNotesStageMismatch(t *testing.T) {
	cfg := DefaultConfig()
	in := growthScenario()
	in.TrendContext.LifecycleStage = StagePeak
	s := mustValidate(cfg, in)

	b := ExtractBaseline(context.Background(), cfg, testSources(), s, testNow)
	require.Len(t, b.Notes, 1)
	assert.Contains(t, b.Notes[0], "differs from the observed stage")
}

func TestExtractBaselineRiskScoreMidpointWhenDeclaredDiffers(t *testing.T) {
	cfg := DefaultConfig()
	in := growthScenario()
	in.TrendContext.CurrentRiskScore = ptr(10)
	s := mustValidate(cfg, in)

	b := ExtractBaseline(context.Background(), cfg, testSources(), s, testNow)
	assert.Equal(t, 25.0, b.CurrentRiskScore.Value)
	assert.Equal(t, "risk-test", b.CurrentRiskScore.Source)
	assert.True(t, b.CurrentRiskScore.Populated)
	require.Len(t, b.Notes, 1)
	assert.Contains(t, b.Notes[0], "midpoint 25.00")
}
