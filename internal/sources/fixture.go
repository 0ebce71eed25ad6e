package sources

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joelkehle/trendsim/internal/simulation"
	"gopkg.in/yaml.v3"
)

// Fixture is a static collaborator backed by a YAML document, used for
// offline runs and demos:
//
//	trends:
//	  trend-123:
//	    lifecycle:
//	      lifecycle_stage: growth
//	      engagement_trend: 60
//	    risk:
//	      current_risk_score: 40
//	      risk_trajectory: stable
type Fixture struct {
	Trends map[string]fixtureTrend `yaml:"trends"`
}

type fixtureTrend struct {
	Lifecycle *fixtureLifecycle `yaml:"lifecycle"`
	Risk      *fixtureRisk      `yaml:"risk"`
}

type fixtureLifecycle struct {
	Stage                string    `yaml:"lifecycle_stage"`
	EngagementTrend      *float64  `yaml:"engagement_trend"`
	ROITrend             *float64  `yaml:"roi_trend"`
	HistoricalVolatility *float64  `yaml:"historical_volatility"`
	AsOf                 time.Time `yaml:"as_of"`
}

type fixtureRisk struct {
	CurrentRiskScore *float64  `yaml:"current_risk_score"`
	Trajectory       string    `yaml:"risk_trajectory"`
	Indicators       []string  `yaml:"risk_indicators"`
	AsOf             time.Time `yaml:"as_of"`
}

type UnknownTrendError struct {
	Kind    string
	TrendID string
}

func (e *UnknownTrendError) Error() string {
	return fmt.Sprintf("fixture has no %s data for trend %q", e.Kind, e.TrendID)
}

func LoadFixture(path string) (*Fixture, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(blob)
}

func ParseFixture(blob []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(blob, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if f.Trends == nil {
		f.Trends = map[string]fixtureTrend{}
	}
	return &f, nil
}

func (f *Fixture) QueryLifecycle(_ context.Context, trendID string) (simulation.LifecycleData, error) {
	t, ok := f.Trends[trendID]
	if !ok || t.Lifecycle == nil {
		return simulation.LifecycleData{}, &UnknownTrendError{Kind: lifecycleKind, TrendID: trendID}
	}
	l := t.Lifecycle
	return simulation.LifecycleData{
		TrendID:              trendID,
		LifecycleStage:       simulation.LifecycleStage(l.Stage),
		EngagementTrend:      l.EngagementTrend,
		ROITrend:             l.ROITrend,
		HistoricalVolatility: l.HistoricalVolatility,
		AsOf:                 l.AsOf,
		Source:               "fixture",
	}, nil
}

func (f *Fixture) QueryRisk(_ context.Context, trendID string) (simulation.RiskData, error) {
	t, ok := f.Trends[trendID]
	if !ok || t.Risk == nil {
		return simulation.RiskData{}, &UnknownTrendError{Kind: riskKind, TrendID: trendID}
	}
	r := t.Risk
	return simulation.RiskData{
		TrendID:          trendID,
		CurrentRiskScore: r.CurrentRiskScore,
		RiskIndicators:   append([]string(nil), r.Indicators...),
		RiskTrajectory:   simulation.RiskTrajectory(r.Trajectory),
		AsOf:             r.AsOf,
		Source:           "fixture",
	}, nil
}

// TrendIDs lists every trend the fixture knows, for the warmer.
func (f *Fixture) TrendIDs() []string {
	ids := make([]string, 0, len(f.Trends))
	for id := range f.Trends {
		ids = append(ids, id)
	}
	return ids
}
