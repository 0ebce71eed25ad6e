package simulation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func ptr(v float64) *float64 { return &v }

type fakeLifecycle struct {
	data  LifecycleData
	err   error
	block bool
}

func (f *fakeLifecycle) QueryLifecycle(ctx context.Context, trendID string) (LifecycleData, error) {
	if f.block {
		<-ctx.Done()
		return LifecycleData{}, ctx.Err()
	}
	if f.err != nil {
		return LifecycleData{}, f.err
	}
	d := f.data
	d.TrendID = trendID
	return d, nil
}

type fakeRisk struct {
	data RiskData
	err  error
}

func (f *fakeRisk) QueryRisk(ctx context.Context, trendID string) (RiskData, error) {
	if f.err != nil {
		return RiskData{}, f.err
	}
	d := f.data
	d.TrendID = trendID
	return d, nil
}

// fakeAttribution derives ROI from the growth ranges it is handed so that
// wider growth ranges give a wider ROI range.
type fakeAttribution struct {
	err   error
	fixed *RangeValue
}

func (f *fakeAttribution) Attribute(ctx context.Context, req AttributionRequest) (AttributionResponse, error) {
	if f.err != nil {
		return AttributionResponse{}, f.err
	}
	if f.fixed != nil {
		return AttributionResponse{ROIPercentRange: *f.fixed, Confidence: ConfidenceHigh}, nil
	}
	return AttributionResponse{
		ROIPercentRange: RangeValue{
			Min: req.EngagementGrowthRange.Min - 10,
			Max: req.EngagementGrowthRange.Max + 0.2*req.ReachGrowthRange.Max,
		},
		Confidence: ConfidenceHigh,
	}, nil
}

type countingAttribution struct {
	fakeAttribution
	calls atomic.Int32
}

func (c *countingAttribution) Attribute(ctx context.Context, req AttributionRequest) (AttributionResponse, error) {
	c.calls.Add(1)
	return c.fakeAttribution.Attribute(ctx, req)
}

var errUnreachable = errors.New("connection refused")

func freshLifecycle() *fakeLifecycle {
	return &fakeLifecycle{data: LifecycleData{
		LifecycleStage:       StageGrowth,
		EngagementTrend:      ptr(60),
		ROITrend:             ptr(55),
		HistoricalVolatility: ptr(30),
		AsOf:                 testNow.Add(-24 * time.Hour),
		Source:               "lifecycle-test",
	}}
}

func freshRisk() *fakeRisk {
	return &fakeRisk{data: RiskData{
		CurrentRiskScore: ptr(40),
		RiskIndicators:   []string{"saturation_watch"},
		RiskTrajectory:   TrajectoryStable,
		AsOf:             testNow.Add(-2 * time.Hour),
		Source:           "risk-test",
	}}
}

func testSources() Sources {
	return Sources{Lifecycle: freshLifecycle(), Risk: freshRisk(), Attribution: &fakeAttribution{}}
}

// growthScenario is the optimistic growth-stage example: risk 40, accelerating
// engagement, increasing participation, low noise.
func growthScenario() ScenarioInput {
	return ScenarioInput{
		TrendContext: TrendContext{
			TrendID:          "trend-123",
			TrendName:        "Silent walking",
			Platform:         "tiktok",
			LifecycleStage:   StageGrowth,
			CurrentRiskScore: ptr(40),
		},
		CampaignStrategy: CampaignStrategy{
			Type:             CampaignLongTermPaid,
			BudgetRange:      BudgetRange{Min: decimal.NewFromInt(20000), Max: decimal.NewFromInt(50000)},
			DurationDays:     30,
			CreatorTier:      TierMicro,
			ContentIntensity: IntensityMedium,
		},
		Assumptions: Assumptions{
			EngagementTrend:      "optimistic",
			CreatorParticipation: "increasing",
			MarketNoise:          NoiseLow,
		},
		Constraints: Constraints{
			RiskTolerance: ToleranceMedium,
			MaxBudgetCap:  decimal.NewFromInt(60000),
		},
	}
}

func fullBaseline(cfg Config) Baseline {
	return Baseline{
		LifecycleStage:       StageGrowth,
		EngagementTrend:      Metric{Value: 60, Source: "test", Fresh: true, Populated: true},
		ROITrend:             Metric{Value: 55, Source: "test", Fresh: true, Populated: true},
		HistoricalVolatility: Metric{Value: 30, Source: "test", Fresh: true, Populated: true},
		CurrentRiskScore:     Metric{Value: 40, Source: "test", Fresh: true, Populated: true},
		RiskTrajectory:       TrajectoryStable,
		RiskIndicators:       []string{},
		DataCoverage:         100,
		Confidence:           ConfidenceHigh,
		Widening:             1,
		Notes:                []string{},
	}
}

func mustValidate(cfg Config, in ScenarioInput) ScenarioInput {
	out, _, err := Validate(cfg, in)
	if err != nil {
		panic(err)
	}
	return out
}
