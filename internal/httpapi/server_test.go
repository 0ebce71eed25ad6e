package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/report"
	"github.com/joelkehle/trendsim/internal/runner"
	"github.com/joelkehle/trendsim/internal/scenariostore"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/joelkehle/trendsim/internal/sources"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

const fixture = `
trends:
  trend-123:
    lifecycle: {lifecycle_stage: growth, engagement_trend: 60, roi_trend: 55, historical_volatility: 30, as_of: 2026-02-28T00:00:00Z}
    risk: {current_risk_score: 40, risk_trajectory: stable, as_of: 2026-02-28T00:00:00Z}
`

type stubPDF struct {
	meta report.Meta
	err  error
}

func (s *stubPDF) Render(_ context.Context, markdown string, meta report.Meta) ([]byte, error) {
	s.meta = meta
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.4 " + markdown[:10]), nil
}

func newTestServer(t *testing.T, pdf PDFRenderer) (http.Handler, *metrics.Registry) {
	t.Helper()
	f, err := sources.ParseFixture([]byte(fixture))
	require.NoError(t, err)
	store, err := scenariostore.Open("sqlite", filepath.Join(t.TempDir(), "api.db"),
		scenariostore.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := metrics.New()
	p := simulation.NewPipeline(simulation.DefaultConfig(),
		simulation.Sources{Lifecycle: f, Risk: f, Attribution: sources.ReferenceAttribution{}},
		simulation.WithClock(func() time.Time { return testNow }))
	r := &runner.Runner{Simulator: p, Scenarios: store, Metrics: reg, Now: func() time.Time { return testNow }}
	return NewServer(r, pdf, reg), reg
}

func scenario() simulation.ScenarioInput {
	risk := 40.0
	return simulation.ScenarioInput{
		TrendContext: simulation.TrendContext{TrendID: "trend-123", LifecycleStage: simulation.StageGrowth, CurrentRiskScore: &risk},
		CampaignStrategy: simulation.CampaignStrategy{
			Type:             simulation.CampaignLongTermPaid,
			BudgetRange:      simulation.BudgetRange{Min: decimal.NewFromInt(20000), Max: decimal.NewFromInt(50000)},
			DurationDays:     30,
			CreatorTier:      simulation.TierMicro,
			ContentIntensity: simulation.IntensityMedium,
		},
		Constraints: simulation.Constraints{RiskTolerance: simulation.ToleranceMedium, MaxBudgetCap: decimal.NewFromInt(60000)},
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trendsim_http_request_duration_seconds_count{method="GET",route="/v1/health",status="200"} 1`)
}

func TestAdHocSimulation(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := do(t, h, http.MethodPost, "/v1/simulations", scenario())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[simulation.SimulationResponse](t, rec)
	assert.NotEmpty(t, resp.DecisionInterpretation.RecommendedPosture)
	assert.Contains(t, resp.Guardrails.SystemNote, simulation.Disclaimer)
}

func TestSimulationFailuresUseErrorEnvelope(t *testing.T) {
	h, _ := newTestServer(t, nil)

	over := scenario()
	over.Constraints.MaxBudgetCap = decimal.NewFromInt(1000)
	rec := do(t, h, http.MethodPost, "/v1/simulations", over)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fail := decode[simulation.ErrorResponse](t, rec)
	assert.Equal(t, simulation.CodeBudgetConstraint, fail.ErrorCode)
	assert.NotEmpty(t, fail.ValidationFailures)
	assert.NotContains(t, rec.Body.String(), "expected_growth_metrics")

	rec = do(t, h, http.MethodPost, "/v1/simulations", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidJSON, decode[simulation.ErrorResponse](t, rec).ErrorCode)
}

func TestScenarioLifecycle(t *testing.T) {
	pdf := &stubPDF{}
	h, _ := newTestServer(t, pdf)

	in := scenario()
	in.ScenarioID = "launch-a"
	rec := do(t, h, http.MethodPost, "/v1/scenarios/", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/v1/scenarios/launch-a", rec.Header().Get("Location"))

	rec = do(t, h, http.MethodPost, "/v1/scenarios/", in)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a/report", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, codeNotSimulated, decode[simulation.ErrorResponse](t, rec).ErrorCode)

	in.CampaignStrategy.DurationDays = 45
	rec = do(t, h, http.MethodPut, "/v1/scenarios/launch-a", in)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[scenariostore.Scenario](t, rec).Version)

	rec = do(t, h, http.MethodPost, "/v1/scenarios/launch-a/simulate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("X-Scenario-Version"))

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[scenariostore.Record](t, rec)
	require.NotNil(t, got.LastResult)
	assert.Equal(t, 2, got.ResultVersion)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a/versions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decode[struct {
		Versions []scenariostore.Scenario `json:"versions"`
	}](t, rec)
	require.Len(t, versions.Versions, 2)
	assert.Equal(t, 30, versions.Versions[0].Input.CampaignStrategy.DurationDays)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Campaign Simulation Report"))
	assert.Contains(t, rec.Body.String(), "45 days")

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a/report?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `data-recommendation="true"`)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a/report?format=pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "launch-a", pdf.meta.ScenarioID)
	assert.Equal(t, 2, pdf.meta.Version)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/launch-a/report?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoredScenarioIsValidatedOnWrite(t *testing.T) {
	h, _ := newTestServer(t, nil)

	bad := scenario()
	bad.CampaignStrategy.DurationDays = 0
	rec := do(t, h, http.MethodPost, "/v1/scenarios/", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fail := decode[simulation.ErrorResponse](t, rec)
	assert.NotEmpty(t, fail.ValidationFailures)

	rec = do(t, h, http.MethodPut, "/v1/scenarios/missing", scenario())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/scenarios/missing/simulate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListScenariosFilters(t *testing.T) {
	h, _ := newTestServer(t, nil)
	for _, id := range []string{"a", "b"} {
		in := scenario()
		in.ScenarioID = id
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/scenarios/", in).Code)
	}

	type listBody struct {
		Scenarios []scenariostore.Scenario `json:"scenarios"`
		Count     int                      `json:"count"`
	}
	rec := do(t, h, http.MethodGet, "/v1/scenarios/?trend_id=trend-123&lifecycle_stage=growth&from=2026-03-01&to=2026-03-01", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[listBody](t, rec).Count)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[listBody](t, rec).Scenarios, 1)

	rec = do(t, h, http.MethodGet, "/v1/scenarios/?trend_id=other", nil)
	assert.Equal(t, 0, decode[listBody](t, rec).Count)

	for _, q := range []string{"lifecycle_stage=viral", "from=yesterday", "limit=-2"} {
		rec = do(t, h, http.MethodGet, "/v1/scenarios/?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestPDFFailuresAreReported(t *testing.T) {
	pdf := &stubPDF{err: errors.New("chrome missing")}
	h, _ := newTestServer(t, pdf)
	in := scenario()
	in.ScenarioID = "p"
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/scenarios/", in).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/scenarios/p/simulate", nil).Code)

	rec := do(t, h, http.MethodGet, "/v1/scenarios/p/report?format=pdf", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	h, _ = newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/scenarios/", in).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/scenarios/p/simulate", nil).Code)
	rec = do(t, h, http.MethodGet, "/v1/scenarios/p/report?format=pdf", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForCode(simulation.CodeHighRiskUnacknowledged))
	assert.Equal(t, http.StatusFailedDependency, statusForCode(simulation.CodeDependencyUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusForCode(simulation.CodeInternal))
}

func TestStoredScenarioIsNormalized(t *testing.T) {
	h, _ := newTestServer(t, nil)

	in := scenario()
	in.ScenarioID = "upper"
	in.TrendContext.LifecycleStage = "GROWTH"
	in.CampaignStrategy.Type = " Long_Term_Paid "
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/v1/scenarios/", in).Code)

	rec := do(t, h, http.MethodGet, "/v1/scenarios/?lifecycle_stage=growth", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Scenarios []scenariostore.Scenario `json:"scenarios"`
	}](t, rec)
	require.Len(t, list.Scenarios, 1)
	got := list.Scenarios[0]
	assert.Equal(t, simulation.StageGrowth, got.LifecycleStage)
	assert.Equal(t, simulation.StageGrowth, got.Input.TrendContext.LifecycleStage)
	assert.Equal(t, simulation.CampaignLongTermPaid, got.Input.CampaignStrategy.Type)
	assert.Empty(t, got.Input.Assumptions.MarketNoise)

	rec = do(t, h, http.MethodPost, "/v1/scenarios/upper/simulate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[simulation.SimulationResponse](t, rec)
	assert.Contains(t, resp.Guardrails.AppliedDefaults, simulation.FactorMarketNoise)
}
