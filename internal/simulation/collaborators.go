package simulation

import (
	"context"
	"time"
)

// LifecycleData is the trend lifecycle collaborator's answer. Metrics are
// expected on a 0-100 scale; anything outside is clamped on the way in.
type LifecycleData struct {
	TrendID              string         `json:"trend_id"`
	LifecycleStage       LifecycleStage `json:"lifecycle_stage"`
	EngagementTrend      *float64       `json:"engagement_trend"`
	ROITrend             *float64       `json:"roi_trend"`
	HistoricalVolatility *float64       `json:"historical_volatility"`
	AsOf                 time.Time      `json:"as_of"`
	Source               string         `json:"source,omitempty"`
	LastKnown            bool           `json:"last_known,omitempty"`
}

type RiskData struct {
	TrendID          string         `json:"trend_id"`
	CurrentRiskScore *float64       `json:"current_risk_score"`
	RiskIndicators   []string       `json:"risk_indicators"`
	RiskTrajectory   RiskTrajectory `json:"risk_trajectory"`
	AsOf             time.Time      `json:"as_of"`
	Source           string         `json:"source,omitempty"`
	LastKnown        bool           `json:"last_known,omitempty"`
}

type AttributionRequest struct {
	TrendID               string     `json:"trend_id"`
	EngagementGrowthRange RangeValue `json:"engagement_growth_range"`
	ReachGrowthRange      RangeValue `json:"reach_growth_range"`
	Budget                RangeValue `json:"budget"`
	DurationDays          int        `json:"duration_days"`
}

type AttributionResponse struct {
	ROIPercentRange RangeValue      `json:"roi_percent_range"`
	Confidence      ConfidenceLevel `json:"confidence"`
}

type LifecycleSource interface {
	QueryLifecycle(ctx context.Context, trendID string) (LifecycleData, error)
}

type RiskSource interface {
	QueryRisk(ctx context.Context, trendID string) (RiskData, error)
}

// AttributionSource is a hard dependency: its failure fails the simulation.
type AttributionSource interface {
	Attribute(ctx context.Context, req AttributionRequest) (AttributionResponse, error)
}

// Sources bundles the collaborators a Pipeline queries.
type Sources struct {
	Lifecycle   LifecycleSource
	Risk        RiskSource
	Attribution AttributionSource
}

// withQueryTimeout bounds a single collaborator call. A non-positive timeout
// leaves the caller's deadline in charge.
func withQueryTimeout(ctx context.Context, cfg Config) (context.Context, context.CancelFunc) {
	if cfg.Thresholds.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Thresholds.QueryTimeout)
}
