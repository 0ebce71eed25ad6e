package simulation

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

const stageSensitivity = "sensitivity"

// outcome is the slice of a result that growth, ROI and risk produce and that
// sensitivity compares across assumption sets.
type outcome struct {
	Growth GrowthMetrics
	ROI    ROIMetrics
	Risk   RiskProjection
}

// rerunFunc recomputes growth, ROI and risk for a perturbed scenario.
type rerunFunc func(ctx context.Context, s ScenarioInput) (outcome, error)

type variant struct {
	factor string
	value  string
	apply  func(ScenarioInput) ScenarioInput
}

// assumptionVariants lists every alternate value of each assumption, in
// factor order then enum order, skipping the value already in use.
func assumptionVariants(a Assumptions) []variant {
	var out []variant
	for _, v := range engagementTrends {
		if v == a.EngagementTrend {
			continue
		}
		out = append(out, variant{factor: FactorEngagementTrend, value: string(v), apply: func(s ScenarioInput) ScenarioInput {
			s.Assumptions.EngagementTrend = v
			return s
		}})
	}
	for _, v := range creatorParticipations {
		if v == a.CreatorParticipation {
			continue
		}
		out = append(out, variant{factor: FactorCreatorParticipation, value: string(v), apply: func(s ScenarioInput) ScenarioInput {
			s.Assumptions.CreatorParticipation = v
			return s
		}})
	}
	for _, v := range marketNoises {
		if v == a.MarketNoise {
			continue
		}
		out = append(out, variant{factor: FactorMarketNoise, value: string(v), apply: func(s ScenarioInput) ScenarioInput {
			s.Assumptions.MarketNoise = v
			return s
		}})
	}
	return out
}

// analyzeSensitivity re-runs the range stages once per variant, concurrently,
// and ranks the assumptions by how much they move output range widths. Ties
// go to the earlier factor.
func analyzeSensitivity(ctx context.Context, cfg Config, s ScenarioInput, base outcome, variants []variant, rerun rerunFunc) (AssumptionSensitivity, error) {
	results := make([]outcome, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			o, err := rerun(gctx, v.apply(s))
			if err != nil {
				return fmt.Errorf("%s=%s: %w", v.factor, v.value, err)
			}
			results[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AssumptionSensitivity{}, err
	}

	factors := make([]FactorImpact, 0, len(variants))
	best, bestDelta := -1, 0.0
	for i, v := range variants {
		delta := widthDelta(base, results[i])
		factors = append(factors, FactorImpact{Factor: v.factor, AlternateValue: v.value, WidthDelta: delta})
		if best < 0 || delta > bestDelta {
			best, bestDelta = i, delta
		}
	}
	if best < 0 {
		return AssumptionSensitivity{
			MostSensitiveFactor: FactorEngagementTrend,
			ImpactLevel:         ImpactLow,
			ImpactIfWrong:       "No alternate assumption values were available to compare.",
			Factors:             factors,
		}, nil
	}

	return AssumptionSensitivity{
		MostSensitiveFactor: variants[best].factor,
		ImpactLevel:         impactLevel(cfg.Thresholds, bestDelta),
		ImpactMagnitude:     bestDelta,
		ImpactIfWrong:       describeImpact(variants[best], base, results[best]),
		Factors:             factors,
	}, nil
}

// widthDelta sums the absolute width changes across the five range outputs.
func widthDelta(base, alt outcome) float64 {
	pairs := [][2]RangeValue{
		{base.Growth.EngagementGrowthPct, alt.Growth.EngagementGrowthPct},
		{base.Growth.ReachGrowthPct, alt.Growth.ReachGrowthPct},
		{base.Growth.CreatorParticipationChangePct, alt.Growth.CreatorParticipationChangePct},
		{base.ROI.ROIPercentRange, alt.ROI.ROIPercentRange},
		{base.Risk.ProjectedRiskRange, alt.Risk.ProjectedRiskRange},
	}
	total := 0.0
	for _, p := range pairs {
		total += math.Abs(p[1].Width() - p[0].Width())
	}
	return total
}

func impactLevel(t Thresholds, delta float64) ImpactLevel {
	switch {
	case delta >= t.ImpactHighAt:
		return ImpactHigh
	case delta >= t.ImpactMediumAt:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

func describeImpact(v variant, base, alt outcome) string {
	return fmt.Sprintf("If %s were %s, engagement growth would be %s (vs %s), ROI %s (vs %s) and break-even probability %.2f%% (vs %.2f%%).",
		v.factor, v.value,
		formatRange(alt.Growth.EngagementGrowthPct), formatRange(base.Growth.EngagementGrowthPct),
		formatRange(alt.ROI.ROIPercentRange), formatRange(base.ROI.ROIPercentRange),
		alt.ROI.BreakEvenProbability, base.ROI.BreakEvenProbability)
}

func formatRange(r RangeValue) string {
	return fmt.Sprintf("%.2f%% to %.2f%%", r.Min, r.Max)
}
