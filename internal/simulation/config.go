package simulation

import "time"

// Config carries every tunable table and threshold. It is passed by value into
// each stage; nothing in the package reads process-wide state.
type Config struct {
	Thresholds    Thresholds
	Defaults      Assumptions
	Compatibility map[StageCampaign]Compatibility
	Growth        GrowthTables
	Risk          RiskTables
}

type StageCampaign struct {
	Stage    LifecycleStage
	Campaign CampaignType
}

type Compatibility string

const (
	Compatible Compatibility = "compatible"
	HighRisk   Compatibility = "high_risk"
)

type Thresholds struct {
	QueryTimeout             time.Duration `yaml:"query_timeout"`
	StaleAfter               time.Duration `yaml:"stale_after"`
	NeutralMetric            float64       `yaml:"neutral_metric"`
	LowCoverage              float64       `yaml:"low_coverage"`
	HighCoverage             float64       `yaml:"high_coverage"`
	LowCoverageWidening      float64       `yaml:"low_coverage_widening"`
	BudgetPerEngagementPoint float64       `yaml:"budget_per_engagement_point"`
	BudgetPenaltySlope       float64       `yaml:"budget_penalty_slope"`
	MaxBudgetPenalty         float64       `yaml:"max_budget_penalty"`
	DecliningLossBoost       float64       `yaml:"declining_loss_boost"`
	RiskBaseSpread           float64       `yaml:"risk_base_spread"`
	RiskVolatilitySpread     float64       `yaml:"risk_volatility_spread"`
	RiskStableBand           float64       `yaml:"risk_stable_band"`
	ImpactMediumAt           float64       `yaml:"impact_medium_at"`
	ImpactHighAt             float64       `yaml:"impact_high_at"`
	BudgetFloor              float64       `yaml:"budget_floor"`
	BudgetCeiling            float64       `yaml:"budget_ceiling"`
	ScaleBreakEven           float64       `yaml:"scale_break_even"`
	MonitorBreakEven         float64       `yaml:"monitor_break_even"`
	AvoidLoss                float64       `yaml:"avoid_loss"`
	LongCampaignDays         int           `yaml:"long_campaign_days"`
	WideReachSpread          float64       `yaml:"wide_reach_spread"`
}

type MetricTable struct {
	Campaign  map[CampaignType]float64
	Tier      map[CreatorTier]float64
	Intensity map[ContentIntensity]float64
}

func (t MetricTable) multiplier(c CampaignStrategy) float64 {
	return lookup(t.Campaign, c.Type) * lookup(t.Tier, c.CreatorTier) * lookup(t.Intensity, c.ContentIntensity)
}

type DurationBucket struct {
	MaxDays int // 0 means open-ended
	Factor  float64
}

type GrowthTables struct {
	Engagement               MetricTable
	Reach                    MetricTable
	Participation            MetricTable
	Duration                 []DurationBucket
	TrendUpper               map[EngagementTrend]float64
	ParticipationBoth        map[CreatorParticipation]float64
	NoiseSpread              map[MarketNoise]float64
	LongDurationReachPenalty float64
	PeakSaturationPenalty    float64
}

func (g GrowthTables) durationFactor(days int) float64 {
	for _, b := range g.Duration {
		if b.MaxDays == 0 || days <= b.MaxDays {
			return b.Factor
		}
	}
	return 1
}

type RiskTables struct {
	Aggressiveness map[CampaignType]Aggressiveness
	Shifts         map[Aggressiveness]map[LifecycleStage]float64
	Trajectory     map[RiskTrajectory]float64
	Intensity      map[ContentIntensity]float64
	NoiseSpread    map[MarketNoise]float64
}

func (r RiskTables) aggressiveness(c CampaignType) Aggressiveness {
	if a, ok := r.Aggressiveness[c]; ok {
		return a
	}
	return Balanced
}

func (r RiskTables) shift(a Aggressiveness, s LifecycleStage) float64 {
	return r.Shifts[a][s]
}

// lookup returns 1 for keys absent from a multiplier table.
func lookup[K comparable](m map[K]float64, k K) float64 {
	if v, ok := m[k]; ok {
		return v
	}
	return 1
}

func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			QueryTimeout:             3 * time.Second,
			StaleAfter:               7 * 24 * time.Hour,
			NeutralMetric:            50,
			LowCoverage:              50,
			HighCoverage:             80,
			LowCoverageWidening:      1.4,
			BudgetPerEngagementPoint: 2000,
			BudgetPenaltySlope:       10,
			MaxBudgetPenalty:         25,
			DecliningLossBoost:       15,
			RiskBaseSpread:           4,
			RiskVolatilitySpread:     0.1,
			RiskStableBand:           2,
			ImpactMediumAt:           5,
			ImpactHighAt:             15,
			BudgetFloor:              1000,
			BudgetCeiling:            500000,
			ScaleBreakEven:           70,
			MonitorBreakEven:         40,
			AvoidLoss:                60,
			LongCampaignDays:         90,
			WideReachSpread:          20,
		},
		Defaults: Assumptions{
			EngagementTrend:      TrendStable,
			CreatorParticipation: ParticipationMedium,
			MarketNoise:          NoiseMedium,
		},
		// Pairs not listed are compatible.
		Compatibility: map[StageCampaign]Compatibility{
			{StageDecline, CampaignShortTermInfluencer}: HighRisk,
			{StageDecline, CampaignLongTermPaid}:        HighRisk,
			{StageDormant, CampaignShortTermInfluencer}: HighRisk,
			{StageDormant, CampaignLongTermPaid}:        HighRisk,
			{StageDormant, CampaignMixed}:               HighRisk,
		},
		Growth: GrowthTables{
			Engagement: MetricTable{
				Campaign:  map[CampaignType]float64{CampaignShortTermInfluencer: 1.2, CampaignLongTermPaid: 1.0, CampaignOrganicOnly: 0.75, CampaignMixed: 1.1},
				Tier:      map[CreatorTier]float64{TierNano: 0.9, TierMicro: 1.0, TierMacro: 1.15, TierMixed: 1.05},
				Intensity: map[ContentIntensity]float64{IntensityLow: 0.85, IntensityMedium: 1.0, IntensityHigh: 1.15},
			},
			Reach: MetricTable{
				Campaign:  map[CampaignType]float64{CampaignShortTermInfluencer: 1.25, CampaignLongTermPaid: 1.1, CampaignOrganicOnly: 0.7, CampaignMixed: 1.1},
				Tier:      map[CreatorTier]float64{TierNano: 0.7, TierMicro: 0.85, TierMacro: 1.35, TierMixed: 1.0},
				Intensity: map[ContentIntensity]float64{IntensityLow: 0.9, IntensityMedium: 1.0, IntensityHigh: 1.1},
			},
			Participation: MetricTable{
				Campaign:  map[CampaignType]float64{CampaignShortTermInfluencer: 1.3, CampaignLongTermPaid: 0.9, CampaignOrganicOnly: 0.8, CampaignMixed: 1.1},
				Tier:      map[CreatorTier]float64{TierNano: 1.3, TierMicro: 1.2, TierMacro: 0.8, TierMixed: 1.0},
				Intensity: map[ContentIntensity]float64{IntensityLow: 0.9, IntensityMedium: 1.0, IntensityHigh: 1.1},
			},
			Duration: []DurationBucket{
				{MaxDays: 14, Factor: 0.8},
				{MaxDays: 30, Factor: 1.0},
				{MaxDays: 60, Factor: 1.1},
				{MaxDays: 90, Factor: 1.2},
				{MaxDays: 0, Factor: 1.25},
			},
			TrendUpper:               map[EngagementTrend]float64{TrendAccelerating: 1.25, TrendStable: 1.0, TrendDecelerating: 0.8},
			ParticipationBoth:        map[CreatorParticipation]float64{ParticipationHigh: 1.15, ParticipationMedium: 1.0, ParticipationLow: 0.8},
			NoiseSpread:              map[MarketNoise]float64{NoiseLow: 0.7, NoiseMedium: 1.0, NoiseHigh: 1.5},
			LongDurationReachPenalty: 0.85,
			PeakSaturationPenalty:    0.8,
		},
		Risk: RiskTables{
			Aggressiveness: map[CampaignType]Aggressiveness{
				CampaignShortTermInfluencer: Aggressive,
				CampaignMixed:               Balanced,
				CampaignLongTermPaid:        Sustainable,
				CampaignOrganicOnly:         Sustainable,
			},
			Shifts: map[Aggressiveness]map[LifecycleStage]float64{
				Aggressive:  {StageEmerging: 5, StageGrowth: 3, StagePeak: 15, StageDecline: 12, StageDormant: 10},
				Balanced:    {StageEmerging: 2, StageGrowth: 0, StagePeak: 6, StageDecline: 6, StageDormant: 5},
				Sustainable: {StageEmerging: -2, StageGrowth: -5, StagePeak: 2, StageDecline: 3, StageDormant: 2},
			},
			Trajectory:  map[RiskTrajectory]float64{TrajectoryIncreasing: 5, TrajectoryStable: 0, TrajectoryDecreasing: -3},
			Intensity:   map[ContentIntensity]float64{IntensityLow: -1, IntensityMedium: 0, IntensityHigh: 3},
			NoiseSpread: map[MarketNoise]float64{NoiseLow: 0.8, NoiseMedium: 1.0, NoiseHigh: 1.3},
		},
	}
}
