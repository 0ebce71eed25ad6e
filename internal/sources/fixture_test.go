package sources

import (
	"context"
	"testing"
	"time"

	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoFixture = `
trends:
  trend-123:
    lifecycle:
      lifecycle_stage: growth
      engagement_trend: 60
      roi_trend: 55
      historical_volatility: 30
      as_of: 2026-02-28T00:00:00Z
    risk:
      current_risk_score: 40
      risk_trajectory: stable
      risk_indicators: [saturation_watch]
      as_of: 2026-02-28T00:00:00Z
  lifecycle-only:
    lifecycle:
      lifecycle_stage: emerging
`

func TestFixtureAnswersKnownTrends(t *testing.T) {
	f, err := ParseFixture([]byte(demoFixture))
	require.NoError(t, err)

	lc, err := f.QueryLifecycle(context.Background(), "trend-123")
	require.NoError(t, err)
	assert.Equal(t, simulation.StageGrowth, lc.LifecycleStage)
	require.NotNil(t, lc.HistoricalVolatility)
	assert.Equal(t, 30.0, *lc.HistoricalVolatility)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), lc.AsOf.UTC())

	risk, err := f.QueryRisk(context.Background(), "trend-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"saturation_watch"}, risk.RiskIndicators)

	_, err = f.QueryRisk(context.Background(), "lifecycle-only")
	var unknown *UnknownTrendError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "risk", unknown.Kind)
	assert.ElementsMatch(t, []string{"trend-123", "lifecycle-only"}, f.TrendIDs())
}

func TestReferenceAttributionOrdersAndDiscountsBudget(t *testing.T) {
	req := simulation.AttributionRequest{
		EngagementGrowthRange: simulation.RangeValue{Min: 20, Max: 45},
		ReachGrowthRange:      simulation.RangeValue{Min: 30, Max: 70},
		Budget:                simulation.RangeValue{Min: 10000, Max: 100000},
	}
	small, err := ReferenceAttribution{}.Attribute(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, small.ROIPercentRange.Min, small.ROIPercentRange.Max)
	assert.Equal(t, simulation.ConfidenceHigh, small.Confidence)

	req.Budget = simulation.RangeValue{Min: 100000, Max: 400000}
	big, err := ReferenceAttribution{}.Attribute(context.Background(), req)
	require.NoError(t, err)
	assert.Less(t, big.ROIPercentRange.Max, small.ROIPercentRange.Max)
}

func TestFixturePipelineRunsTheGrowthExample(t *testing.T) {
	f, err := ParseFixture([]byte(demoFixture))
	require.NoError(t, err)
	p := simulation.NewPipeline(simulation.DefaultConfig(), simulation.Sources{
		Lifecycle: f, Risk: f, Attribution: ReferenceAttribution{},
	}, simulation.WithClock(func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }))

	in := simulation.ScenarioInput{
		TrendContext: simulation.TrendContext{TrendID: "trend-123", TrendName: "Silent walking", Platform: "tiktok", LifecycleStage: simulation.StageGrowth, CurrentRiskScore: f64(40)},
		CampaignStrategy: simulation.CampaignStrategy{
			Type:             simulation.CampaignLongTermPaid,
			BudgetRange:      simulation.BudgetRange{Min: decimal.NewFromInt(20000), Max: decimal.NewFromInt(50000)},
			DurationDays:     30,
			CreatorTier:      simulation.TierMicro,
			ContentIntensity: simulation.IntensityMedium,
		},
		Assumptions: simulation.Assumptions{EngagementTrend: "optimistic", CreatorParticipation: "increasing", MarketNoise: simulation.NoiseLow},
		Constraints: simulation.Constraints{RiskTolerance: simulation.ToleranceMedium, MaxBudgetCap: decimal.NewFromInt(60000)},
	}
	res, err := p.Run(context.Background(), in)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.ROI.BreakEvenProbability, 90.0)
	assert.Equal(t, 100.0, res.Guardrails.DataCoverage)
}
