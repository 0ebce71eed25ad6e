package simulation

import (
	"strings"

	"github.com/shopspring/decimal"
)

const Disclaimer = "This is a deterministic scenario model built from observed baseline metrics and declared assumptions. " +
	"Ranges express uncertainty; they are not forecasts."

type LifecycleStage string

const (
	StageEmerging LifecycleStage = "emerging"
	StageGrowth   LifecycleStage = "growth"
	StagePeak     LifecycleStage = "peak"
	StageDecline  LifecycleStage = "decline"
	StageDormant  LifecycleStage = "dormant"
)

var lifecycleStages = []LifecycleStage{StageEmerging, StageGrowth, StagePeak, StageDecline, StageDormant}

func (s LifecycleStage) Valid() bool { return contains(lifecycleStages, s) }

// Fading reports whether the trend is past its useful life.
func (s LifecycleStage) Fading() bool { return s == StageDecline || s == StageDormant }

type CampaignType string

const (
	CampaignShortTermInfluencer CampaignType = "short_term_influencer"
	CampaignLongTermPaid        CampaignType = "long_term_paid"
	CampaignOrganicOnly         CampaignType = "organic_only"
	CampaignMixed               CampaignType = "mixed"
)

var campaignTypes = []CampaignType{CampaignShortTermInfluencer, CampaignLongTermPaid, CampaignOrganicOnly, CampaignMixed}

func (c CampaignType) Valid() bool { return contains(campaignTypes, c) }

type CreatorTier string

const (
	TierNano  CreatorTier = "nano"
	TierMicro CreatorTier = "micro"
	TierMacro CreatorTier = "macro"
	TierMixed CreatorTier = "mixed"
)

var creatorTiers = []CreatorTier{TierNano, TierMicro, TierMacro, TierMixed}

func (t CreatorTier) Valid() bool { return contains(creatorTiers, t) }

type ContentIntensity string

const (
	IntensityLow    ContentIntensity = "low"
	IntensityMedium ContentIntensity = "medium"
	IntensityHigh   ContentIntensity = "high"
)

var contentIntensities = []ContentIntensity{IntensityLow, IntensityMedium, IntensityHigh}

func (c ContentIntensity) Valid() bool { return contains(contentIntensities, c) }

type EngagementTrend string

const (
	TrendAccelerating EngagementTrend = "accelerating"
	TrendStable       EngagementTrend = "stable"
	TrendDecelerating EngagementTrend = "decelerating"
)

var engagementTrends = []EngagementTrend{TrendAccelerating, TrendStable, TrendDecelerating}

func (e EngagementTrend) Valid() bool { return contains(engagementTrends, e) }

type CreatorParticipation string

const (
	ParticipationHigh   CreatorParticipation = "high"
	ParticipationMedium CreatorParticipation = "medium"
	ParticipationLow    CreatorParticipation = "low"
)

var creatorParticipations = []CreatorParticipation{ParticipationHigh, ParticipationMedium, ParticipationLow}

func (c CreatorParticipation) Valid() bool { return contains(creatorParticipations, c) }

type MarketNoise string

const (
	NoiseLow    MarketNoise = "low"
	NoiseMedium MarketNoise = "medium"
	NoiseHigh   MarketNoise = "high"
)

var marketNoises = []MarketNoise{NoiseLow, NoiseMedium, NoiseHigh}

func (m MarketNoise) Valid() bool { return contains(marketNoises, m) }

type RiskTolerance string

const (
	ToleranceLow    RiskTolerance = "low"
	ToleranceMedium RiskTolerance = "medium"
	ToleranceHigh   RiskTolerance = "high"
)

var riskTolerances = []RiskTolerance{ToleranceLow, ToleranceMedium, ToleranceHigh}

func (r RiskTolerance) Valid() bool { return contains(riskTolerances, r) }

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

var confidenceLevels = []ConfidenceLevel{ConfidenceLow, ConfidenceMedium, ConfidenceHigh}

func (c ConfidenceLevel) Valid() bool { return contains(confidenceLevels, c) }

func (c ConfidenceLevel) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

func minConfidence(a, b ConfidenceLevel) ConfidenceLevel {
	if !b.Valid() {
		return a
	}
	if !a.Valid() || b.rank() < a.rank() {
		return b
	}
	return a
}

type Posture string

const (
	PostureScale     Posture = "scale"
	PostureMonitor   Posture = "monitor"
	PostureTestSmall Posture = "test_small"
	PostureAvoid     Posture = "avoid"
)

type RiskTrend string

const (
	RiskImproving RiskTrend = "improving"
	RiskStable    RiskTrend = "stable"
	RiskWorsening RiskTrend = "worsening"
)

type RiskTrajectory string

const (
	TrajectoryIncreasing RiskTrajectory = "increasing"
	TrajectoryStable     RiskTrajectory = "stable"
	TrajectoryDecreasing RiskTrajectory = "decreasing"
)

var riskTrajectories = []RiskTrajectory{TrajectoryIncreasing, TrajectoryStable, TrajectoryDecreasing}

func (r RiskTrajectory) Valid() bool { return contains(riskTrajectories, r) }

type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

type Aggressiveness string

const (
	Aggressive  Aggressiveness = "aggressive"
	Balanced    Aggressiveness = "balanced"
	Sustainable Aggressiveness = "sustainable"
)

// Assumption factor names. Defaults are recorded and sensitivity ties are
// broken in this order.
const (
	FactorEngagementTrend      = "engagement_trend"
	FactorCreatorParticipation = "creator_participation"
	FactorMarketNoise          = "market_noise"
)

type TrendContext struct {
	TrendID          string          `json:"trend_id"`
	TrendName        string          `json:"trend_name,omitempty"`
	Platform         string          `json:"platform,omitempty"`
	LifecycleStage   LifecycleStage  `json:"lifecycle_stage"`
	CurrentRiskScore *float64        `json:"current_risk_score"`
	Confidence       ConfidenceLevel `json:"confidence,omitempty"`
}

type BudgetRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

type CampaignStrategy struct {
	Type             CampaignType     `json:"type"`
	BudgetRange      BudgetRange      `json:"budget_range"`
	DurationDays     int              `json:"duration_days"`
	CreatorTier      CreatorTier      `json:"creator_tier"`
	ContentIntensity ContentIntensity `json:"content_intensity"`
}

type Assumptions struct {
	EngagementTrend      EngagementTrend      `json:"engagement_trend,omitempty"`
	CreatorParticipation CreatorParticipation `json:"creator_participation,omitempty"`
	MarketNoise          MarketNoise          `json:"market_noise,omitempty"`
}

type Constraints struct {
	RiskTolerance        RiskTolerance   `json:"risk_tolerance"`
	MaxBudgetCap         decimal.Decimal `json:"max_budget_cap"`
	HighRiskAcknowledged bool            `json:"high_risk_acknowledged,omitempty"`
}

// ScenarioInput is never mutated after submission; the validator returns a
// normalized copy.
type ScenarioInput struct {
	ScenarioID       string           `json:"scenario_id,omitempty"`
	TrendContext     TrendContext     `json:"trend_context"`
	CampaignStrategy CampaignStrategy `json:"campaign_strategy"`
	Assumptions      Assumptions      `json:"assumptions"`
	Constraints      Constraints      `json:"constraints"`
}

func (s ScenarioInput) riskScore() float64 {
	if s.TrendContext.CurrentRiskScore == nil {
		return 0
	}
	return *s.TrendContext.CurrentRiskScore
}

func (s ScenarioInput) budgetMin() float64 { return s.CampaignStrategy.BudgetRange.Min.InexactFloat64() }
func (s ScenarioInput) budgetMax() float64 { return s.CampaignStrategy.BudgetRange.Max.InexactFloat64() }

type GrowthMetrics struct {
	EngagementGrowthPct           RangeValue `json:"engagement_growth_pct"`
	ReachGrowthPct                RangeValue `json:"reach_growth_pct"`
	CreatorParticipationChangePct RangeValue `json:"creator_participation_change_pct"`
}

type ROIMetrics struct {
	ROIPercentRange       RangeValue      `json:"roi_percent_range"`
	BreakEvenProbability  float64         `json:"break_even_probability"`
	LossProbability       float64         `json:"loss_probability"`
	AttributionConfidence ConfidenceLevel `json:"attribution_confidence"`
}

type RiskProjection struct {
	CurrentRiskScore      float64    `json:"current_risk_score"`
	ProjectedRiskRange    RangeValue `json:"projected_risk_range"`
	RiskTrend             RiskTrend  `json:"risk_trend"`
	RiskToleranceConflict bool       `json:"risk_tolerance_conflict"`
}

type DecisionInterpretation struct {
	RecommendedPosture Posture  `json:"recommended_posture"`
	Rationale          string   `json:"rationale"`
	Opportunities      []string `json:"opportunities"`
	Risks              []string `json:"risks"`
}

type FactorImpact struct {
	Factor         string  `json:"factor"`
	AlternateValue string  `json:"alternate_value"`
	WidthDelta     float64 `json:"width_delta"`
}

type AssumptionSensitivity struct {
	MostSensitiveFactor string         `json:"most_sensitive_factor"`
	ImpactLevel         ImpactLevel    `json:"impact_level"`
	ImpactMagnitude     float64        `json:"impact_magnitude"`
	ImpactIfWrong       string         `json:"impact_if_wrong"`
	Factors             []FactorImpact `json:"factors"`
}

type Guardrails struct {
	DataCoverage    float64  `json:"data_coverage"`
	SystemNote      string   `json:"system_note"`
	Notes           []string `json:"notes"`
	AppliedDefaults []string `json:"applied_defaults"`
}

type Summary struct {
	Label      string          `json:"label"`
	Outlook    string          `json:"outlook"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// SimulationResult is derived fresh for every run and never shared.
type SimulationResult struct {
	Scenario        ScenarioInput
	AppliedDefaults []string
	Baseline        Baseline
	Summary         Summary
	Growth          GrowthMetrics
	ROI             ROIMetrics
	Risk            RiskProjection
	Decision        DecisionInterpretation
	Sensitivity     AssumptionSensitivity
	Guardrails      Guardrails
	StagesExecuted  []string
}

// SimulationResponse is the success envelope. The seven sections are always present.
type SimulationResponse struct {
	SimulationSummary      Summary                `json:"simulation_summary"`
	ExpectedGrowthMetrics  GrowthMetrics          `json:"expected_growth_metrics"`
	ExpectedROIMetrics     ROIMetrics             `json:"expected_roi_metrics"`
	RiskProjection         RiskProjection         `json:"risk_projection"`
	DecisionInterpretation DecisionInterpretation `json:"decision_interpretation"`
	AssumptionSensitivity  AssumptionSensitivity  `json:"assumption_sensitivity"`
	Guardrails             Guardrails             `json:"guardrails"`
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
