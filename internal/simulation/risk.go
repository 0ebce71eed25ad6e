package simulation

const (
	stageRisk  = "risk"
	metricRisk = "projected_risk_range"
)

// ProjectRisk starts from the current risk score and applies the additive
// shifts for campaign aggressiveness by stage, observed trajectory and content
// intensity. The trend compares the unclamped projected midpoint against the
// current score with a RiskStableBand tolerance either side; only the reported
// range is clamped to [0,100]. A low risk tolerance conflicts exactly when the
// trend is worsening.
func ProjectRisk(cfg Config, s ScenarioInput, b Baseline) RiskProjection {
	t := cfg.Thresholds
	rt := cfg.Risk
	current := b.CurrentRiskScore.Value
	stage := s.TrendContext.LifecycleStage
	cs := s.CampaignStrategy

	half := (t.RiskBaseSpread + b.HistoricalVolatility.Value*t.RiskVolatilitySpread) * lookup(rt.NoiseSpread, s.Assumptions.MarketNoise)
	r := RangeValue{Min: current - half, Max: current + half}

	delta := rt.shift(rt.aggressiveness(cs.Type), stage) + rt.Trajectory[b.RiskTrajectory] + rt.Intensity[cs.ContentIntensity]
	r = ordered(stageRisk, metricRisk, shift(r, delta))
	r = ordered(stageRisk, metricRisk, spread(r, b.widening()))
	mid := r.Midpoint()
	r = ordered(stageRisk, metricRisk, clampRange(r, 0, 100))

	trend := RiskStable
	switch {
	case mid > current+t.RiskStableBand:
		trend = RiskWorsening
	case mid < current-t.RiskStableBand:
		trend = RiskImproving
	}

	return RiskProjection{
		CurrentRiskScore:      current,
		ProjectedRiskRange:    r,
		RiskTrend:             trend,
		RiskToleranceConflict: s.Constraints.RiskTolerance == ToleranceLow && trend == RiskWorsening,
	}
}
