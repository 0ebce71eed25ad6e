package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	SourceDefault   = "default"
	SourceScenario  = "scenario"
	sourceLifecycle = "lifecycle"
	sourceRisk      = "risk"
)

// requiredBaselineFields is the denominator for data coverage.
const requiredBaselineFields = 6

type Metric struct {
	Value     float64 `json:"value"`
	Source    string  `json:"source"`
	Fresh     bool    `json:"fresh"`
	Populated bool    `json:"populated"`
	Clamped   bool    `json:"clamped,omitempty"`
}

type Baseline struct {
	LifecycleStage       LifecycleStage  `json:"lifecycle_stage,omitempty"`
	EngagementTrend      Metric          `json:"engagement_trend"`
	ROITrend             Metric          `json:"roi_trend"`
	HistoricalVolatility Metric          `json:"historical_volatility"`
	CurrentRiskScore     Metric          `json:"current_risk_score"`
	RiskTrajectory       RiskTrajectory  `json:"risk_trajectory"`
	RiskIndicators       []string        `json:"risk_indicators"`
	DataCoverage         float64         `json:"data_coverage"`
	Confidence           ConfidenceLevel `json:"confidence"`
	Widening             float64         `json:"widening"`
	Notes                []string        `json:"notes"`
}

func (b Baseline) PartialData(cfg Config) bool { return b.DataCoverage < cfg.Thresholds.LowCoverage }

func (b Baseline) widening() float64 {
	if b.Widening <= 0 {
		return 1
	}
	return b.Widening
}

type lifecycleResult struct {
	data LifecycleData
	err  error
}

type riskResult struct {
	data RiskData
	err  error
}

// ExtractBaseline queries the lifecycle and risk collaborators concurrently and
// normalizes what comes back. It never fails: missing or stale inputs lower
// coverage and leave a note for the guardrails.
func ExtractBaseline(ctx context.Context, cfg Config, src Sources, scenario ScenarioInput, now time.Time) Baseline {
	trendID := scenario.TrendContext.TrendID
	var (
		wg sync.WaitGroup
		lc lifecycleResult
		rk riskResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		lc = queryLifecycle(ctx, cfg, src.Lifecycle, trendID)
	}()
	go func() {
		defer wg.Done()
		rk = queryRisk(ctx, cfg, src.Risk, trendID)
	}()
	wg.Wait()

	b := Baseline{RiskIndicators: []string{}, Notes: []string{}}
	populated := 0
	populated += applyLifecycle(cfg, &b, lc, now)
	populated += applyRisk(cfg, &b, rk, scenario, now)

	b.DataCoverage = round2(float64(populated) / requiredBaselineFields * 100)
	switch {
	case b.DataCoverage >= cfg.Thresholds.HighCoverage:
		b.Confidence = ConfidenceHigh
	case b.DataCoverage >= cfg.Thresholds.LowCoverage:
		b.Confidence = ConfidenceMedium
	default:
		b.Confidence = ConfidenceLow
	}
	b.Confidence = minConfidence(b.Confidence, scenario.TrendContext.Confidence)
	b.Widening = 1
	if b.PartialData(cfg) {
		b.Widening = cfg.Thresholds.LowCoverageWidening
	}
	if b.LifecycleStage != "" && b.LifecycleStage != scenario.TrendContext.LifecycleStage {
		b.Notes = append(b.Notes, fmt.Sprintf("Declared lifecycle stage %q differs from the observed stage %q; the declared stage was used.",
			scenario.TrendContext.LifecycleStage, b.LifecycleStage))
	}
	return b
}

func queryLifecycle(ctx context.Context, cfg Config, s LifecycleSource, trendID string) lifecycleResult {
	if s == nil {
		return lifecycleResult{err: fmt.Errorf("lifecycle source not configured")}
	}
	qctx, cancel := withQueryTimeout(ctx, cfg)
	defer cancel()
	d, err := s.QueryLifecycle(qctx, trendID)
	if err != nil {
		log.Warn().Err(err).Str("trend_id", trendID).Msg("lifecycle query failed; degrading")
	}
	return lifecycleResult{data: d, err: err}
}

func queryRisk(ctx context.Context, cfg Config, s RiskSource, trendID string) riskResult {
	if s == nil {
		return riskResult{err: fmt.Errorf("risk source not configured")}
	}
	qctx, cancel := withQueryTimeout(ctx, cfg)
	defer cancel()
	d, err := s.QueryRisk(qctx, trendID)
	if err != nil {
		log.Warn().Err(err).Str("trend_id", trendID).Msg("risk query failed; degrading")
	}
	return riskResult{data: d, err: err}
}

// fresh reports whether a response can count toward coverage. A zero AsOf
// means the collaborator did not report an age.
func fresh(cfg Config, asOf time.Time, lastKnown bool, now time.Time) bool {
	if lastKnown {
		return false
	}
	return asOf.IsZero() || now.Sub(asOf) <= cfg.Thresholds.StaleAfter
}

func applyLifecycle(cfg Config, b *Baseline, r lifecycleResult, now time.Time) int {
	neutral := Metric{Value: cfg.Thresholds.NeutralMetric, Source: SourceDefault}
	if r.err != nil {
		b.EngagementTrend, b.ROITrend, b.HistoricalVolatility = neutral, neutral, neutral
		b.Notes = append(b.Notes, "Trend lifecycle data unavailable; neutral defaults were used for engagement, ROI trend and volatility.")
		return 0
	}
	d := r.data
	source := d.Source
	if source == "" {
		source = sourceLifecycle
	}
	isFresh := fresh(cfg, d.AsOf, d.LastKnown, now)
	if !isFresh {
		b.Notes = append(b.Notes, fmt.Sprintf("Trend lifecycle data is stale (as of %s); last-known values were used.", d.AsOf.UTC().Format(time.DateOnly)))
	}

	populated := 0
	if d.LifecycleStage.Valid() {
		b.LifecycleStage = d.LifecycleStage
		if isFresh {
			populated++
		}
	}
	metric := func(name string, v *float64) Metric {
		if v == nil {
			b.Notes = append(b.Notes, fmt.Sprintf("Trend lifecycle source returned no %s; a neutral default was used.", name))
			return neutral
		}
		m := Metric{Value: clamp(*v, 0, 100), Source: source, Fresh: isFresh, Populated: isFresh}
		if m.Value != *v {
			m.Clamped = true
			b.Notes = append(b.Notes, fmt.Sprintf("Lifecycle %s %.2f was clamped to %.0f.", name, *v, m.Value))
		}
		if m.Populated {
			populated++
		}
		return m
	}
	b.EngagementTrend = metric("engagement_trend", d.EngagementTrend)
	b.ROITrend = metric("roi_trend", d.ROITrend)
	b.HistoricalVolatility = metric("historical_volatility", d.HistoricalVolatility)
	return populated
}

func applyRisk(cfg Config, b *Baseline, r riskResult, scenario ScenarioInput, now time.Time) int {
	declared := Metric{Value: scenario.riskScore(), Source: SourceScenario}
	b.RiskTrajectory = TrajectoryStable
	if r.err != nil {
		b.CurrentRiskScore = declared
		b.Notes = append(b.Notes, "Decline/risk data unavailable; the declared current risk score and a stable trajectory were used.")
		return 0
	}
	d := r.data
	source := d.Source
	if source == "" {
		source = sourceRisk
	}
	isFresh := fresh(cfg, d.AsOf, d.LastKnown, now)
	if !isFresh {
		b.Notes = append(b.Notes, fmt.Sprintf("Decline/risk data is stale (as of %s); last-known indicators were used with the declared risk score.", d.AsOf.UTC().Format(time.DateOnly)))
	}
	if len(d.RiskIndicators) > 0 {
		b.RiskIndicators = append(b.RiskIndicators, d.RiskIndicators...)
	}

	populated := 0
	switch {
	case d.CurrentRiskScore == nil:
		b.CurrentRiskScore = declared
		b.Notes = append(b.Notes, "Risk source returned no current_risk_score; the declared score was used.")
	case !isFresh:
		b.CurrentRiskScore = declared
	default:
		m := Metric{Value: clamp(*d.CurrentRiskScore, 0, 100), Source: source, Fresh: true, Populated: true}
		if m.Value != *d.CurrentRiskScore {
			m.Clamped = true
			b.Notes = append(b.Notes, fmt.Sprintf("Risk current_risk_score %.2f was clamped to %.0f.", *d.CurrentRiskScore, m.Value))
		}
		if observed := m.Value; observed != declared.Value {
			m.Value = round2((observed + declared.Value) / 2)
			b.Notes = append(b.Notes, fmt.Sprintf("Declared current risk score %.2f differs from the observed score %.2f; the projection starts at their midpoint %.2f.",
				declared.Value, observed, m.Value))
		}
		b.CurrentRiskScore = m
		populated++
	}
	if d.RiskTrajectory.Valid() {
		b.RiskTrajectory = d.RiskTrajectory
		if isFresh {
			populated++
		}
	}
	return populated
}
