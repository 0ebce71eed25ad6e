package simulation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BuildMarkdown renders a planner-facing report from a completed run. It uses
// the same rounded numbers as the JSON response and carries no timestamp.
func BuildMarkdown(res SimulationResult) string {
	return renderMarkdown(res.Scenario, BuildResponse(res), res.StagesExecuted)
}

// BuildStoredMarkdown renders a report from a persisted response. Only
// successful runs are stored, so every stage is listed as executed.
func BuildStoredMarkdown(s ScenarioInput, resp SimulationResponse) string {
	return renderMarkdown(s, resp, StageOrder)
}

func renderMarkdown(s ScenarioInput, resp SimulationResponse, stages []string) string {
	tc := s.TrendContext
	cs := s.CampaignStrategy
	var b strings.Builder

	fmt.Fprintf(&b, "# Campaign Simulation Report\n\n")
	fmt.Fprintf(&b, "- Trend: %s", sanitize(tc.TrendID))
	if tc.TrendName != "" {
		fmt.Fprintf(&b, " (%s)", sanitize(tc.TrendName))
	}
	fmt.Fprintf(&b, "\n")
	if tc.Platform != "" {
		fmt.Fprintf(&b, "- Platform: %s\n", sanitize(tc.Platform))
	}
	if s.ScenarioID != "" {
		fmt.Fprintf(&b, "- Scenario ID: %s\n", sanitize(s.ScenarioID))
	}
	fmt.Fprintf(&b, "- Lifecycle stage: %s\n", tc.LifecycleStage)
	fmt.Fprintf(&b, "- Campaign: %s, %s creators, %s intensity, %d days\n", cs.Type, cs.CreatorTier, cs.ContentIntensity, cs.DurationDays)
	fmt.Fprintf(&b, "- Budget: %s to %s\n\n", fmtMoney(cs.BudgetRange.Min), fmtMoney(cs.BudgetRange.Max))
	fmt.Fprintf(&b, "%s\n\n", Disclaimer)

	sum := resp.SimulationSummary
	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "**%s** (confidence: %s)\n\n%s\n\n", sum.Label, sum.Confidence, sum.Outlook)

	fmt.Fprintf(&b, "## Expected Ranges\n\n")
	fmt.Fprintf(&b, "| Metric | Min | Max |\n|---|---:|---:|\n")
	writeRangeRow(&b, "Engagement growth %", resp.ExpectedGrowthMetrics.EngagementGrowthPct)
	writeRangeRow(&b, "Reach growth %", resp.ExpectedGrowthMetrics.ReachGrowthPct)
	writeRangeRow(&b, "Creator participation change %", resp.ExpectedGrowthMetrics.CreatorParticipationChangePct)
	writeRangeRow(&b, "ROI %", resp.ExpectedROIMetrics.ROIPercentRange)
	writeRangeRow(&b, "Projected risk score", resp.RiskProjection.ProjectedRiskRange)
	fmt.Fprintf(&b, "\n")
	roi := resp.ExpectedROIMetrics
	fmt.Fprintf(&b, "- Break-even probability: %.2f%%\n", roi.BreakEvenProbability)
	fmt.Fprintf(&b, "- Loss probability: %.2f%%\n", roi.LossProbability)
	fmt.Fprintf(&b, "- Attribution confidence: %s\n", roi.AttributionConfidence)
	rp := resp.RiskProjection
	fmt.Fprintf(&b, "- Current risk score: %.2f (trend: %s)\n", rp.CurrentRiskScore, rp.RiskTrend)
	if rp.RiskToleranceConflict {
		fmt.Fprintf(&b, "- Risk tolerance conflict: yes\n")
	}
	fmt.Fprintf(&b, "\n")

	d := resp.DecisionInterpretation
	fmt.Fprintf(&b, "## Recommendation: %s\n\n%s\n\n", strings.ToUpper(string(d.RecommendedPosture)), d.Rationale)
	fmt.Fprintf(&b, "### Opportunities\n\n")
	for _, o := range d.Opportunities {
		fmt.Fprintf(&b, "- %s\n", sanitize(o))
	}
	fmt.Fprintf(&b, "\n### Risks\n\n")
	for _, r := range d.Risks {
		fmt.Fprintf(&b, "- %s\n", sanitize(r))
	}
	fmt.Fprintf(&b, "\n")

	sens := resp.AssumptionSensitivity
	fmt.Fprintf(&b, "## Assumption Sensitivity\n\n")
	fmt.Fprintf(&b, "Most sensitive factor: **%s** (%s impact, %.2f points of range width)\n\n", sens.MostSensitiveFactor, sens.ImpactLevel, sens.ImpactMagnitude)
	fmt.Fprintf(&b, "%s\n\n", sanitize(sens.ImpactIfWrong))
	if len(sens.Factors) > 0 {
		fmt.Fprintf(&b, "| Assumption | Alternate value | Width change |\n|---|---|---:|\n")
		for _, f := range sens.Factors {
			fmt.Fprintf(&b, "| %s | %s | %.2f |\n", f.Factor, f.AlternateValue, f.WidthDelta)
		}
		fmt.Fprintf(&b, "\n")
	}

	g := resp.Guardrails
	fmt.Fprintf(&b, "## Guardrails\n\n")
	fmt.Fprintf(&b, "- Data coverage: %.2f%%\n", g.DataCoverage)
	if len(g.AppliedDefaults) > 0 {
		fmt.Fprintf(&b, "- Defaulted assumptions: %s\n", strings.Join(g.AppliedDefaults, ", "))
	}
	for _, n := range g.Notes {
		fmt.Fprintf(&b, "- %s\n", sanitize(n))
	}
	fmt.Fprintf(&b, "\n## Audit Trail\n\n")
	fmt.Fprintf(&b, "Stages executed: %s\n", strings.Join(stages, " → "))
	return b.String()
}

func writeRangeRow(b *strings.Builder, name string, r RangeValue) {
	fmt.Fprintf(b, "| %s | %.2f | %.2f |\n", name, r.Min, r.Max)
}

func sanitize(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	return strings.ReplaceAll(s, "|", "\\|")
}

// fmtMoney formats an amount with comma separators and no decimals.
func fmtMoney(d decimal.Decimal) string {
	s := d.Round(0).Abs().StringFixed(0)
	var b strings.Builder
	if d.Round(0).IsNegative() {
		b.WriteByte('-')
	}
	rem := len(s) % 3
	if rem > 0 {
		b.WriteString(s[:rem])
	}
	for i := rem; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
