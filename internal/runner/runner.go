// Package runner executes simulations on behalf of the HTTP API and the bus
// agent: it records metrics, persists results for stored scenarios and
// publishes completion events.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/joelkehle/trendsim/internal/events"
	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/report"
	"github.com/joelkehle/trendsim/internal/scenariostore"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/rs/zerolog/log"
)

type Simulator interface {
	Config() simulation.Config
	RunWithProgress(ctx context.Context, in simulation.ScenarioInput, progress simulation.StageProgressFn) (simulation.SimulationResult, error)
}

// ScenarioStore is the subset of scenariostore.Store the runner and the API
// need.
type ScenarioStore interface {
	Create(ctx context.Context, in simulation.ScenarioInput) (scenariostore.Scenario, error)
	Get(ctx context.Context, id string) (scenariostore.Record, error)
	List(ctx context.Context, f scenariostore.Filter) ([]scenariostore.Scenario, error)
	Update(ctx context.Context, id string, in simulation.ScenarioInput) (scenariostore.Scenario, error)
	Versions(ctx context.Context, id string) ([]scenariostore.Scenario, error)
	SaveResult(ctx context.Context, id string, version int, resp simulation.SimulationResponse) error
}

type Runner struct {
	Simulator Simulator
	Scenarios ScenarioStore
	Events    events.Publisher
	Metrics   *metrics.Registry
	Now       func() time.Time
}

// Outcome is a finished run plus the scenario version it belongs to.
type Outcome struct {
	Result   simulation.SimulationResult
	Response simulation.SimulationResponse
	Version  int
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Simulate runs an ad-hoc scenario. Nothing is persisted.
func (r *Runner) Simulate(ctx context.Context, in simulation.ScenarioInput, progress simulation.StageProgressFn) (Outcome, error) {
	out, err := r.run(ctx, in, progress)
	if err != nil {
		return Outcome{}, err
	}
	r.publish(ctx, in.ScenarioID, 0, in.TrendContext.TrendID, out.Response)
	return out, nil
}

// SimulateStored runs the current version of a stored scenario and saves the
// response as its last result.
func (r *Runner) SimulateStored(ctx context.Context, id string, progress simulation.StageProgressFn) (Outcome, error) {
	rec, err := r.Scenarios.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	out, err := r.run(ctx, rec.Input, progress)
	if err != nil {
		return Outcome{}, err
	}
	out.Version = rec.Version
	if err := r.Scenarios.SaveResult(ctx, id, rec.Version, out.Response); err != nil {
		return Outcome{}, err
	}
	r.publish(ctx, id, rec.Version, rec.TrendID, out.Response)
	return out, nil
}

func (r *Runner) run(ctx context.Context, in simulation.ScenarioInput, progress simulation.StageProgressFn) (Outcome, error) {
	started := time.Now()
	res, err := r.Simulator.RunWithProgress(ctx, in, progress)
	if err != nil {
		r.Metrics.ObserveSimulation(simulation.BuildErrorResponse(err).ErrorCode, "none", time.Since(started))
		return Outcome{}, err
	}
	r.Metrics.ObserveSimulation("ok", string(res.Decision.RecommendedPosture), time.Since(started))
	return Outcome{Result: res, Response: simulation.BuildResponse(res)}, nil
}

// publish never fails the run; the result already exists.
func (r *Runner) publish(ctx context.Context, scenarioID string, version int, trendID string, resp simulation.SimulationResponse) {
	if r.Events == nil {
		return
	}
	ev := events.NewSimulationCompleted(scenarioID, version, trendID, resp, r.now())
	if err := r.Events.PublishCompleted(ctx, ev); err != nil {
		log.Warn().Err(err).Str("trend_id", trendID).Str("scenario_id", scenarioID).Msg("simulation.completed not published")
	}
}

// ErrNotSimulated means a stored scenario has no result to report on yet.
var ErrNotSimulated = errors.New("scenario has no simulation result yet")

// StoredReport is the markdown report of a scenario's last result together
// with the header metadata for HTML and PDF rendering.
type StoredReport struct {
	Markdown string
	Meta     report.Meta
}

// Report renders the last stored result. The input shown is the version that
// produced the result, which may be older than the current one.
func (r *Runner) Report(ctx context.Context, id string) (StoredReport, error) {
	rec, err := r.Scenarios.Get(ctx, id)
	if err != nil {
		return StoredReport{}, err
	}
	if rec.LastResult == nil {
		return StoredReport{}, ErrNotSimulated
	}
	input := rec.Input
	if rec.ResultVersion != rec.Version {
		versions, err := r.Scenarios.Versions(ctx, id)
		if err != nil {
			return StoredReport{}, err
		}
		for _, v := range versions {
			if v.Version == rec.ResultVersion {
				input = v.Input
			}
		}
	}
	return StoredReport{
		Markdown: simulation.BuildStoredMarkdown(input, *rec.LastResult),
		Meta: report.Meta{
			ScenarioID: rec.ID,
			Version:    rec.ResultVersion,
			TrendID:    input.TrendContext.TrendID,
			Posture:    rec.LastResult.DecisionInterpretation.RecommendedPosture,
			Confidence: rec.LastResult.SimulationSummary.Confidence,
		},
	}, nil
}
