package simulation

import "fmt"

type decisionFacts struct {
	stage      LifecycleStage
	breakEven  float64
	loss       float64
	riskTrend  RiskTrend
	growth     GrowthMetrics
	roi        ROIMetrics
	risk       RiskProjection
	coverage   float64
	partial    bool
	confidence ConfidenceLevel
}

type postureRule struct {
	posture   Posture
	rationale string
	match     func(t Thresholds, f decisionFacts) bool
}

// postureRules is evaluated top-down; the first match wins. The avoid rule
// sits above test_small so a fading trend with heavy loss exposure is never
// reported as a small test.
var postureRules = []postureRule{
	{
		posture:   PostureScale,
		rationale: "Break-even probability is high and risk is not rising.",
		match: func(t Thresholds, f decisionFacts) bool {
			return f.breakEven >= t.ScaleBreakEven && (f.riskTrend == RiskStable || f.riskTrend == RiskImproving)
		},
	},
	{
		posture:   PostureMonitor,
		rationale: "Break-even probability is moderate with a stable risk outlook.",
		match: func(t Thresholds, f decisionFacts) bool {
			return f.breakEven >= t.MonitorBreakEven && f.breakEven < t.ScaleBreakEven && f.riskTrend == RiskStable
		},
	},
	{
		posture:   PostureAvoid,
		rationale: "The trend is fading and loss probability is high.",
		match: func(t Thresholds, f decisionFacts) bool {
			return f.stage.Fading() && f.loss > t.AvoidLoss
		},
	},
	{
		posture:   PostureTestSmall,
		rationale: "Break-even probability is low or risk is rising; limit exposure to a small test.",
		match: func(t Thresholds, f decisionFacts) bool {
			return f.breakEven < t.MonitorBreakEven || f.riskTrend == RiskWorsening
		},
	},
}

const fallbackRationale = "No decisive threshold was crossed; keep watching the trend before committing budget."

// Interpret maps the computed ranges onto a posture and the templated
// opportunity and risk lists. Both lists are never empty.
func Interpret(cfg Config, s ScenarioInput, b Baseline, o outcome) (DecisionInterpretation, Summary) {
	f := decisionFacts{
		stage:      s.TrendContext.LifecycleStage,
		breakEven:  o.ROI.BreakEvenProbability,
		loss:       o.ROI.LossProbability,
		riskTrend:  o.Risk.RiskTrend,
		growth:     o.Growth,
		roi:        o.ROI,
		risk:       o.Risk,
		coverage:   b.DataCoverage,
		partial:    b.PartialData(cfg),
		confidence: minConfidence(b.Confidence, o.ROI.AttributionConfidence),
	}
	t := cfg.Thresholds

	decision := DecisionInterpretation{RecommendedPosture: PostureMonitor, Rationale: fallbackRationale}
	for _, r := range postureRules {
		if r.match(t, f) {
			decision.RecommendedPosture = r.posture
			decision.Rationale = r.rationale
			break
		}
	}
	decision.Opportunities = opportunities(t, f)
	decision.Risks = risks(t, f)
	return decision, summarize(t, decision.RecommendedPosture, f)
}

func opportunities(t Thresholds, f decisionFacts) []string {
	out := []string{}
	if f.breakEven >= t.ScaleBreakEven {
		out = append(out, fmt.Sprintf("Strong break-even outlook: %.2f%% probability of recovering spend.", f.breakEven))
	}
	if f.growth.ReachGrowthPct.Width() >= t.WideReachSpread {
		out = append(out, fmt.Sprintf("High reach potential: reach growth spans %s.", formatRange(f.growth.ReachGrowthPct)))
	}
	if f.growth.CreatorParticipationChangePct.Max > 0 {
		out = append(out, fmt.Sprintf("Creator participation could grow by up to %.2f%%.", f.growth.CreatorParticipationChangePct.Max))
	}
	if f.riskTrend == RiskImproving {
		out = append(out, "Risk profile expected to improve over the campaign.")
	}
	if f.stage == StageEmerging || f.stage == StageGrowth {
		out = append(out, fmt.Sprintf("Early %s stage leaves room for first-mover engagement.", f.stage))
	}
	if len(out) == 0 {
		out = append(out, "Limited upside identified; treat any spend as a capped learning exercise.")
	}
	return out
}

func risks(t Thresholds, f decisionFacts) []string {
	out := []string{}
	if f.riskTrend == RiskWorsening {
		out = append(out, fmt.Sprintf("Risk trajectory deteriorating: projected risk %s against a current score of %.2f.",
			formatPoints(f.risk.ProjectedRiskRange), f.risk.CurrentRiskScore))
	}
	if f.risk.RiskToleranceConflict {
		out = append(out, "Projected risk exceeds the declared low risk tolerance.")
	}
	if f.stage.Fading() {
		out = append(out, fmt.Sprintf("Trend is in the %s stage; audience attention is fading.", f.stage))
	}
	if f.roi.ROIPercentRange.Min < 0 {
		out = append(out, fmt.Sprintf("ROI range includes losses down to %.2f%%.", f.roi.ROIPercentRange.Min))
	}
	if f.loss > t.AvoidLoss {
		out = append(out, fmt.Sprintf("Loss probability of %.2f%% is high.", f.loss))
	}
	if f.partial {
		out = append(out, fmt.Sprintf("Only %.2f%% of baseline data was available; every range is wider than usual.", f.coverage))
	}
	if len(out) == 0 {
		out = append(out, "No risk threshold crossed; keep monitoring trend and risk signals.")
	}
	return out
}

func summarize(t Thresholds, p Posture, f decisionFacts) Summary {
	label := map[Posture]string{
		PostureScale:     "Strong opportunity",
		PostureMonitor:   "Moderate opportunity",
		PostureTestSmall: "Speculative opportunity",
		PostureAvoid:     "Unfavorable opportunity",
	}[p]
	var outlook string
	switch {
	case f.breakEven >= t.ScaleBreakEven:
		outlook = fmt.Sprintf("Positive: %.2f%% break-even probability with ROI %s.", f.breakEven, formatRange(f.roi.ROIPercentRange))
	case f.breakEven >= t.MonitorBreakEven:
		outlook = fmt.Sprintf("Mixed: %.2f%% break-even probability with ROI %s.", f.breakEven, formatRange(f.roi.ROIPercentRange))
	default:
		outlook = fmt.Sprintf("Negative: %.2f%% break-even probability with ROI %s.", f.breakEven, formatRange(f.roi.ROIPercentRange))
	}
	return Summary{Label: label, Outlook: outlook, Confidence: f.confidence}
}

func formatPoints(r RangeValue) string {
	return fmt.Sprintf("%.2f to %.2f", r.Min, r.Max)
}
