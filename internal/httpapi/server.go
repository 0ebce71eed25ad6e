package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/report"
	"github.com/joelkehle/trendsim/internal/runner"
	"github.com/joelkehle/trendsim/internal/scenariostore"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/rs/zerolog/log"
)

const (
	codeInvalidJSON  = "invalid_json"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeNotSimulated = "not_simulated"
	codeBadQuery     = "invalid_query"
	codeUnavailable  = "unavailable"

	maxBodyBytes = 1 << 20
)

type PDFRenderer interface {
	Render(ctx context.Context, markdown string, meta report.Meta) ([]byte, error)
}

type Server struct {
	runner  *runner.Runner
	pdf     PDFRenderer
	metrics *metrics.Registry
}

// NewServer builds the HTTP API. pdf may be nil, in which case PDF reports
// answer 503.
func NewServer(r *runner.Runner, pdf PDFRenderer, reg *metrics.Registry) http.Handler {
	s := &Server{runner: r, pdf: pdf, metrics: reg}

	mux := chi.NewRouter()
	mux.Use(requestIDMiddleware)
	mux.Use(recoverMiddleware)
	mux.Use(s.observeMiddleware)

	mux.Get("/v1/health", s.handleHealth)
	mux.Method(http.MethodGet, "/metrics", reg.Handler())
	mux.Post("/v1/simulations", s.handleSimulate)
	mux.Route("/v1/scenarios", func(r chi.Router) {
		r.Post("/", s.handleCreateScenario)
		r.Get("/", s.handleListScenarios)
		r.Get("/{id}", s.handleGetScenario)
		r.Put("/{id}", s.handleUpdateScenario)
		r.Get("/{id}/versions", s.handleScenarioVersions)
		r.Post("/{id}/simulate", s.handleSimulateScenario)
		r.Get("/{id}/report", s.handleScenarioReport)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, simulation.ErrorResponse{
		ErrorCode:          code,
		ErrorMessage:       message,
		ValidationFailures: []simulation.ValidationFailure{},
	})
}

// writeError maps simulation and store errors onto the failure envelope.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scenariostore.ErrNotFound):
		writeFailure(w, http.StatusNotFound, codeNotFound, err.Error())
		return
	case errors.Is(err, scenariostore.ErrExists):
		writeFailure(w, http.StatusConflict, codeConflict, err.Error())
		return
	}
	resp := simulation.BuildErrorResponse(err)
	writeJSON(w, statusForCode(resp.ErrorCode), resp)
}

func statusForCode(code string) int {
	switch code {
	case simulation.CodeValidation, simulation.CodeBudgetConstraint, simulation.CodeHighRiskUnacknowledged,
		simulation.CodeMissingField, simulation.CodeInvalidValue, simulation.CodeInvalidAssumption:
		return http.StatusBadRequest
	case simulation.CodeDependencyUnavailable:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

func decodeScenario(w http.ResponseWriter, r *http.Request) (simulation.ScenarioInput, bool) {
	var in simulation.ScenarioInput
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(blob, &in)
	}
	if err != nil {
		writeFailure(w, http.StatusBadRequest, codeInvalidJSON, "invalid json: "+err.Error())
		return simulation.ScenarioInput{}, false
	}
	return in, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "trendsim"})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeScenario(w, r)
	if !ok {
		return
	}
	out, err := s.runner.Simulate(r.Context(), in, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Response)
}

// normalizeStored rejects scenarios that could never simulate and returns the
// normalized copy to persist. Defaulted assumptions stay unset so every later
// run still reports them as defaulted.
func (s *Server) normalizeStored(w http.ResponseWriter, in simulation.ScenarioInput) (simulation.ScenarioInput, bool) {
	out, defaults, err := simulation.Validate(s.runner.Simulator.Config(), in)
	if err != nil {
		writeError(w, err)
		return simulation.ScenarioInput{}, false
	}
	for _, f := range defaults {
		switch f {
		case simulation.FactorEngagementTrend:
			out.Assumptions.EngagementTrend = ""
		case simulation.FactorCreatorParticipation:
			out.Assumptions.CreatorParticipation = ""
		case simulation.FactorMarketNoise:
			out.Assumptions.MarketNoise = ""
		}
	}
	return out, true
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeScenario(w, r)
	if !ok {
		return
	}
	in, ok := s.normalizeStored(w, raw)
	if !ok {
		return
	}
	sc, err := s.runner.Scenarios.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/scenarios/"+sc.ID)
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeScenario(w, r)
	if !ok {
		return
	}
	in, ok := s.normalizeStored(w, raw)
	if !ok {
		return
	}
	sc, err := s.runner.Scenarios.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runner.Scenarios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleScenarioVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.runner.Scenarios.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scenariostore.Filter{
		TrendID:        strings.TrimSpace(q.Get("trend_id")),
		LifecycleStage: simulation.LifecycleStage(strings.TrimSpace(q.Get("lifecycle_stage"))),
	}
	if f.LifecycleStage != "" && !f.LifecycleStage.Valid() {
		writeFailure(w, http.StatusBadRequest, codeBadQuery, fmt.Sprintf("unknown lifecycle_stage %q", f.LifecycleStage))
		return
	}
	var err error
	if f.CreatedFrom, err = parseQueryTime(q.Get("from"), false); err != nil {
		writeFailure(w, http.StatusBadRequest, codeBadQuery, "from: "+err.Error())
		return
	}
	if f.CreatedTo, err = parseQueryTime(q.Get("to"), true); err != nil {
		writeFailure(w, http.StatusBadRequest, codeBadQuery, "to: "+err.Error())
		return
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeFailure(w, http.StatusBadRequest, codeBadQuery, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	list, err := s.runner.Scenarios.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": list, "count": len(list)})
}

// parseQueryTime accepts RFC 3339 or a bare date. A bare "to" date covers the
// whole day.
func parseQueryTime(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp or YYYY-MM-DD, got %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (s *Server) handleSimulateScenario(w http.ResponseWriter, r *http.Request) {
	out, err := s.runner.SimulateStored(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Scenario-Version", strconv.Itoa(out.Version))
	writeJSON(w, http.StatusOK, out.Response)
}

func (s *Server) handleScenarioReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, err := s.runner.Report(r.Context(), id)
	if errors.Is(err, runner.ErrNotSimulated) {
		writeFailure(w, http.StatusConflict, codeNotSimulated, err.Error())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	markdown, meta := rep.Markdown, rep.Meta

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, markdown)
	case "html":
		doc, err := report.HTML(markdown, meta)
		if err != nil {
			writeFailure(w, http.StatusInternalServerError, simulation.CodeInternal, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, doc)
	case "pdf":
		if s.pdf == nil {
			writeFailure(w, http.StatusServiceUnavailable, codeUnavailable, "pdf rendering is not configured")
			return
		}
		pdf, err := s.pdf.Render(r.Context(), markdown, meta)
		if err != nil {
			log.Error().Err(err).Str("scenario_id", id).Msg("pdf render failed")
			writeFailure(w, http.StatusInternalServerError, simulation.CodeInternal, "pdf render failed")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "simulation-"+id+".pdf"))
		_, _ = w.Write(pdf)
	default:
		writeFailure(w, http.StatusBadRequest, codeBadQuery, fmt.Sprintf("unknown report format %q", format))
	}
}

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panic")
				writeFailure(w, http.StatusInternalServerError, simulation.CodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(route, r.Method, strconv.Itoa(rec.status), elapsed)
		reqID, _ := r.Context().Value(ctxKeyRequestID).(string)
		log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("http request")
	})
}
