package simulation

import (
	"fmt"
	"strings"
)

const completeDataNote = "Complete data: every required baseline field was available and no caveats apply."

// GenerateGuardrails assembles the transparency notes in priority order.
// Triggered notes are all kept; the partial-data warning always leads.
func GenerateGuardrails(cfg Config, s ScenarioInput, b Baseline, risk RiskProjection, defaults []string) Guardrails {
	t := cfg.Thresholds
	notes := []string{}
	if b.PartialData(cfg) {
		notes = append(notes, fmt.Sprintf("Partial data: only %.2f%% of required baseline data was available; all ranges were widened by a factor of %.2f.",
			b.DataCoverage, b.widening()))
	}
	switch stage := s.TrendContext.LifecycleStage; stage {
	case StageEmerging, StageDormant:
		notes = append(notes, fmt.Sprintf("Limited precedent: %s trends have little comparable history, so ranges rest mostly on assumptions.", stage))
	}
	if lo, hi := s.budgetMin(), s.budgetMax(); lo < t.BudgetFloor || hi > t.BudgetCeiling {
		notes = append(notes, fmt.Sprintf("Extrapolation limit: a budget of %s to %s falls outside the calibrated range of %.0f to %.0f.",
			s.CampaignStrategy.BudgetRange.Min.StringFixed(2), s.CampaignStrategy.BudgetRange.Max.StringFixed(2), t.BudgetFloor, t.BudgetCeiling))
	}
	if risk.RiskToleranceConflict {
		notes = append(notes, fmt.Sprintf("Risk tolerance conflict: projected risk %s rises above the current score of %.2f under a low risk tolerance.",
			formatPoints(risk.ProjectedRiskRange), risk.CurrentRiskScore))
	}
	cs := s.CampaignStrategy
	if cfg.Compatibility[StageCampaign{s.TrendContext.LifecycleStage, cs.Type}] == HighRisk && s.Constraints.HighRiskAcknowledged {
		notes = append(notes, fmt.Sprintf("High-risk combination acknowledged: %s campaign on a %s trend.", cs.Type, s.TrendContext.LifecycleStage))
	}
	notes = append(notes, b.Notes...)
	if len(defaults) > 0 {
		notes = append(notes, fmt.Sprintf("Documented defaults were used for: %s.", strings.Join(defaults, ", ")))
	}
	if len(notes) == 0 {
		notes = append(notes, completeDataNote)
	}

	applied := make([]string, len(defaults))
	copy(applied, defaults)
	return Guardrails{
		DataCoverage:    b.DataCoverage,
		SystemNote:      strings.Join(append(append([]string{}, notes...), Disclaimer), " "),
		Notes:           notes,
		AppliedDefaults: applied,
	}
}
