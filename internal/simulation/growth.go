package simulation

const (
	stageGrowth = "growth"

	metricEngagement    = "engagement_growth_pct"
	metricReach         = "reach_growth_pct"
	metricParticipation = "creator_participation_change_pct"
)

// ComputeGrowth derives the three growth ranges from the baseline engagement
// index, the campaign multiplier tables and the declared assumptions. It is
// pure: the sensitivity analyzer calls it once per alternate assumption set.
func ComputeGrowth(cfg Config, s ScenarioInput, b Baseline) GrowthMetrics {
	g := cfg.Growth
	cs := s.CampaignStrategy
	e := b.EngagementTrend.Value
	dur := g.durationFactor(cs.DurationDays)

	engagement := RangeValue{Min: 0.30 * e, Max: 0.60*e + 2}
	engagement = ordered(stageGrowth, metricEngagement, scaleBoth(engagement, g.Engagement.multiplier(cs)*dur))

	reach := RangeValue{Min: 0.40 * e, Max: 0.90*e + 3}
	reach = ordered(stageGrowth, metricReach, scaleBoth(reach, g.Reach.multiplier(cs)*dur))
	if cs.DurationDays > cfg.Thresholds.LongCampaignDays {
		reach = ordered(stageGrowth, metricReach, scaleUpper(reach, g.LongDurationReachPenalty))
	}
	if s.TrendContext.LifecycleStage == StagePeak {
		reach = ordered(stageGrowth, metricReach, scaleBoth(reach, g.PeakSaturationPenalty))
	}

	centre := (e - 40) * 0.3
	participation := RangeValue{Min: centre - 4, Max: centre + 6}
	participation = ordered(stageGrowth, metricParticipation, scaleBoth(participation, g.Participation.multiplier(cs)*dur))

	return GrowthMetrics{
		EngagementGrowthPct:           applyAssumptions(cfg, s.Assumptions, b, metricEngagement, engagement, 0),
		ReachGrowthPct:                applyAssumptions(cfg, s.Assumptions, b, metricReach, reach, 0),
		CreatorParticipationChangePct: applyAssumptions(cfg, s.Assumptions, b, metricParticipation, participation, -100),
	}
}

func applyAssumptions(cfg Config, a Assumptions, b Baseline, metric string, r RangeValue, floor float64) RangeValue {
	g := cfg.Growth
	r = ordered(stageGrowth, metric, scaleUpper(r, lookup(g.TrendUpper, a.EngagementTrend)))
	r = ordered(stageGrowth, metric, scaleBoth(r, lookup(g.ParticipationBoth, a.CreatorParticipation)))
	r = ordered(stageGrowth, metric, spread(r, lookup(g.NoiseSpread, a.MarketNoise)))
	r = ordered(stageGrowth, metric, spread(r, b.widening()))
	return ordered(stageGrowth, metric, floorAt(r, floor))
}
