package simulation

import (
	"fmt"
	"strings"
)

var engagementAliases = map[string]EngagementTrend{
	"accelerating": TrendAccelerating,
	"optimistic":   TrendAccelerating,
	"stable":       TrendStable,
	"neutral":      TrendStable,
	"decelerating": TrendDecelerating,
	"pessimistic":  TrendDecelerating,
}

var participationAliases = map[string]CreatorParticipation{
	"high":       ParticipationHigh,
	"increasing": ParticipationHigh,
	"medium":     ParticipationMedium,
	"stable":     ParticipationMedium,
	"low":        ParticipationLow,
	"declining":  ParticipationLow,
}

var noiseAliases = map[string]MarketNoise{
	"low":    NoiseLow,
	"medium": NoiseMedium,
	"high":   NoiseHigh,
}

type validation struct {
	failures []ValidationFailure
}

func (v *validation) fail(field, code, format string, args ...any) {
	v.failures = append(v.failures, ValidationFailure{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validate returns a normalized copy of in together with the names of the
// assumptions that were filled from defaults. Any failure is terminal for the
// simulation and every failure found is reported.
func Validate(cfg Config, in ScenarioInput) (ScenarioInput, []string, error) {
	out := normalizeScenario(in)
	v := &validation{}
	tc := out.TrendContext
	cs := out.CampaignStrategy
	cons := out.Constraints

	// (a) lifecycle x campaign compatibility
	if tc.LifecycleStage.Valid() && cs.Type.Valid() {
		if cfg.Compatibility[StageCampaign{tc.LifecycleStage, cs.Type}] == HighRisk && !cons.HighRiskAcknowledged {
			v.fail("campaign_strategy.type", CodeHighRiskUnacknowledged,
				"%s campaign on a %s trend is high-risk and requires constraints.high_risk_acknowledged", cs.Type, tc.LifecycleStage)
		}
	}

	// (b) budget cap
	if cons.MaxBudgetCap.IsPositive() && cs.BudgetRange.Max.GreaterThan(cons.MaxBudgetCap) {
		v.fail("campaign_strategy.budget_range.max", CodeBudgetConstraint,
			"budget max %s exceeds max_budget_cap %s", cs.BudgetRange.Max.String(), cons.MaxBudgetCap.String())
	}

	// (c) required fields
	if tc.TrendID == "" {
		v.fail("trend_context.trend_id", CodeMissingField, "trend_id is required")
	}
	checkEnum(v, "trend_context.lifecycle_stage", string(tc.LifecycleStage), tc.LifecycleStage.Valid())
	if tc.CurrentRiskScore == nil {
		v.fail("trend_context.current_risk_score", CodeMissingField, "current_risk_score is required")
	} else if s := *tc.CurrentRiskScore; s < 0 || s > 100 {
		v.fail("trend_context.current_risk_score", CodeInvalidValue, "current_risk_score %.2f outside [0,100]", s)
	}
	if tc.Confidence != "" && !tc.Confidence.Valid() {
		v.fail("trend_context.confidence", CodeInvalidValue, "unknown value %q", tc.Confidence)
	}
	checkEnum(v, "campaign_strategy.type", string(cs.Type), cs.Type.Valid())
	checkEnum(v, "campaign_strategy.creator_tier", string(cs.CreatorTier), cs.CreatorTier.Valid())
	checkEnum(v, "campaign_strategy.content_intensity", string(cs.ContentIntensity), cs.ContentIntensity.Valid())
	if cs.DurationDays <= 0 {
		v.fail("campaign_strategy.duration_days", CodeMissingField, "duration_days must be a positive number of days")
	}
	switch {
	case !cs.BudgetRange.Max.IsPositive():
		v.fail("campaign_strategy.budget_range.max", CodeMissingField, "budget_range.max is required and must be positive")
	case cs.BudgetRange.Min.IsNegative():
		v.fail("campaign_strategy.budget_range.min", CodeInvalidValue, "budget_range.min must not be negative")
	case cs.BudgetRange.Min.GreaterThan(cs.BudgetRange.Max):
		v.fail("campaign_strategy.budget_range", CodeInvalidValue, "budget_range.min %s exceeds max %s", cs.BudgetRange.Min.String(), cs.BudgetRange.Max.String())
	}
	checkEnum(v, "constraints.risk_tolerance", string(cons.RiskTolerance), cons.RiskTolerance.Valid())
	if !cons.MaxBudgetCap.IsPositive() {
		v.fail("constraints.max_budget_cap", CodeMissingField, "max_budget_cap is required and must be positive")
	}

	// (d) assumptions
	defaults := []string{}
	a := &out.Assumptions
	if a.EngagementTrend == "" {
		a.EngagementTrend = cfg.Defaults.EngagementTrend
		defaults = append(defaults, FactorEngagementTrend)
	} else if t, ok := engagementAliases[string(a.EngagementTrend)]; ok {
		a.EngagementTrend = t
	} else {
		v.fail("assumptions.engagement_trend", CodeInvalidAssumption, "unknown value %q", a.EngagementTrend)
	}
	if a.CreatorParticipation == "" {
		a.CreatorParticipation = cfg.Defaults.CreatorParticipation
		defaults = append(defaults, FactorCreatorParticipation)
	} else if p, ok := participationAliases[string(a.CreatorParticipation)]; ok {
		a.CreatorParticipation = p
	} else {
		v.fail("assumptions.creator_participation", CodeInvalidAssumption, "unknown value %q", a.CreatorParticipation)
	}
	if a.MarketNoise == "" {
		a.MarketNoise = cfg.Defaults.MarketNoise
		defaults = append(defaults, FactorMarketNoise)
	} else if n, ok := noiseAliases[string(a.MarketNoise)]; ok {
		a.MarketNoise = n
	} else {
		v.fail("assumptions.market_noise", CodeInvalidAssumption, "unknown value %q", a.MarketNoise)
	}

	if len(v.failures) > 0 {
		return ScenarioInput{}, nil, &ValidationError{Failures: v.failures}
	}
	return out, defaults, nil
}

func checkEnum(v *validation, field, value string, valid bool) {
	if value == "" {
		v.fail(field, CodeMissingField, "%s is required", field[strings.LastIndex(field, ".")+1:])
		return
	}
	if !valid {
		v.fail(field, CodeInvalidValue, "unknown value %q", value)
	}
}

func normalizeScenario(in ScenarioInput) ScenarioInput {
	out := in
	out.TrendContext.TrendID = strings.TrimSpace(in.TrendContext.TrendID)
	out.TrendContext.LifecycleStage = LifecycleStage(normalizeToken(string(in.TrendContext.LifecycleStage)))
	out.TrendContext.Confidence = ConfidenceLevel(normalizeToken(string(in.TrendContext.Confidence)))
	if in.TrendContext.CurrentRiskScore != nil {
		score := *in.TrendContext.CurrentRiskScore
		out.TrendContext.CurrentRiskScore = &score
	}
	out.CampaignStrategy.Type = CampaignType(normalizeToken(string(in.CampaignStrategy.Type)))
	out.CampaignStrategy.CreatorTier = CreatorTier(normalizeToken(string(in.CampaignStrategy.CreatorTier)))
	out.CampaignStrategy.ContentIntensity = ContentIntensity(normalizeToken(string(in.CampaignStrategy.ContentIntensity)))
	out.Assumptions.EngagementTrend = EngagementTrend(normalizeToken(string(in.Assumptions.EngagementTrend)))
	out.Assumptions.CreatorParticipation = CreatorParticipation(normalizeToken(string(in.Assumptions.CreatorParticipation)))
	out.Assumptions.MarketNoise = MarketNoise(normalizeToken(string(in.Assumptions.MarketNoise)))
	out.Constraints.RiskTolerance = RiskTolerance(normalizeToken(string(in.Constraints.RiskTolerance)))
	return out
}
