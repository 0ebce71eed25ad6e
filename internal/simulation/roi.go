package simulation

import (
	"context"
	"errors"
	"math"
)

const (
	stageROI          = "roi"
	dependencyROI     = "roi_attribution"
	metricROI         = "roi_percent_range"
	fullProbability   = 100.0
	minEngagementBase = 1.0
)

var errAttributionMissing = errors.New("attribution source not configured")

// ComputeROI asks the attribution collaborator for a ROI range and derives the
// break-even and loss probabilities from it. Attribution has no fallback: any
// failure comes back as a *DependencyError.
func ComputeROI(ctx context.Context, cfg Config, src AttributionSource, s ScenarioInput, b Baseline, growth GrowthMetrics) (ROIMetrics, error) {
	if src == nil {
		return ROIMetrics{}, &DependencyError{Dependency: dependencyROI, Err: errAttributionMissing}
	}
	req := AttributionRequest{
		TrendID:               s.TrendContext.TrendID,
		EngagementGrowthRange: growth.EngagementGrowthPct,
		ReachGrowthRange:      growth.ReachGrowthPct,
		Budget:                RangeValue{Min: s.budgetMin(), Max: s.budgetMax()},
		DurationDays:          s.CampaignStrategy.DurationDays,
	}
	qctx, cancel := withQueryTimeout(ctx, cfg)
	defer cancel()
	resp, err := src.Attribute(qctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ROIMetrics{}, ctx.Err()
		}
		return ROIMetrics{}, &DependencyError{Dependency: dependencyROI, Err: err}
	}

	roi := ordered(stageROI, metricROI, resp.ROIPercentRange)
	roi = ordered(stageROI, metricROI, spread(roi, b.widening()))

	breakEven := breakEvenProbability(roi)
	penalty := budgetPenalty(cfg.Thresholds, s.budgetMax(), b.EngagementTrend.Value)
	if s.TrendContext.LifecycleStage.Fading() {
		penalty += cfg.Thresholds.DecliningLossBoost
	}
	breakEven = clamp(breakEven-penalty, 0, fullProbability)

	confidence := resp.Confidence
	if !confidence.Valid() {
		confidence = ConfidenceLow
	}
	return ROIMetrics{
		ROIPercentRange:       roi,
		BreakEvenProbability:  breakEven,
		LossProbability:       fullProbability - breakEven,
		AttributionConfidence: confidence,
	}, nil
}

// breakEvenProbability is the share of the ROI interval at or above zero,
// scaled to 0-100. Only its monotonicity in min and max is relied upon.
func breakEvenProbability(r RangeValue) float64 {
	switch {
	case r.Min >= 0:
		return fullProbability
	case r.Max < 0:
		return 0
	default:
		return r.Max / (r.Max - r.Min) * fullProbability
	}
}

// budgetPenalty grows with budget relative to the engagement the trend can
// absorb and is capped at MaxBudgetPenalty.
func budgetPenalty(t Thresholds, budgetMax, engagement float64) float64 {
	capacity := math.Max(engagement, minEngagementBase) * t.BudgetPerEngagementPoint
	if capacity <= 0 {
		return t.MaxBudgetPenalty
	}
	ratio := budgetMax / capacity
	return clamp((ratio-1)*t.BudgetPenaltySlope, 0, t.MaxBudgetPenalty)
}
