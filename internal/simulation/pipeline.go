package simulation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	stageValidate  = "validate"
	stageBaseline  = "baseline"
	stageInterpret = "interpret"
	stageGuardrail = "guardrails"

	tracerName = "github.com/joelkehle/trendsim/internal/simulation"
)

// StageOrder lists the stages a successful run executes.
var StageOrder = []string{stageValidate, stageBaseline, stageGrowth, stageROI, stageRisk, stageSensitivity, stageInterpret, stageGuardrail}

type StageProgressFn func(stage, message string)

type Option func(*Pipeline)

// WithClock replaces the wall clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

type Pipeline struct {
	cfg     Config
	sources Sources
	now     func() time.Time
	tracer  trace.Tracer
}

func NewPipeline(cfg Config, src Sources, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, sources: src, now: time.Now, tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Config() Config { return p.cfg }

func (p *Pipeline) Run(ctx context.Context, in ScenarioInput) (SimulationResult, error) {
	return p.runWithProgress(ctx, in, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, in ScenarioInput, progress StageProgressFn) (SimulationResult, error) {
	return p.runWithProgress(ctx, in, progress)
}

func (p *Pipeline) runWithProgress(ctx context.Context, in ScenarioInput, progress StageProgressFn) (SimulationResult, error) {
	ctx, span := p.tracer.Start(ctx, "simulation.run", trace.WithAttributes(attribute.String("trend_id", in.TrendContext.TrendID)))
	defer span.End()
	started := time.Now()

	var res SimulationResult
	var cur outcome
	steps := []struct {
		name    string
		message string
		run     func(context.Context) error
	}{
		{stageValidate, "Validating scenario...", func(context.Context) error {
			s, defaults, err := Validate(p.cfg, in)
			if err != nil {
				return err
			}
			res.Scenario, res.AppliedDefaults = s, defaults
			return nil
		}},
		{stageBaseline, "Extracting baseline from lifecycle and risk sources...", func(ctx context.Context) error {
			res.Baseline = ExtractBaseline(ctx, p.cfg, p.sources, res.Scenario, p.now())
			return nil
		}},
		{stageGrowth, "Computing growth ranges...", func(context.Context) error {
			cur.Growth = ComputeGrowth(p.cfg, res.Scenario, res.Baseline)
			return nil
		}},
		{stageROI, "Requesting ROI attribution...", func(ctx context.Context) error {
			roi, err := ComputeROI(ctx, p.cfg, p.sources.Attribution, res.Scenario, res.Baseline, cur.Growth)
			cur.ROI = roi
			return err
		}},
		{stageRisk, "Projecting risk...", func(context.Context) error {
			cur.Risk = ProjectRisk(p.cfg, res.Scenario, res.Baseline)
			return nil
		}},
		{stageSensitivity, "Analyzing assumption sensitivity...", func(ctx context.Context) error {
			sens, err := analyzeSensitivity(ctx, p.cfg, res.Scenario, cur, assumptionVariants(res.Scenario.Assumptions), p.rerun(res.Baseline))
			res.Sensitivity = sens
			return err
		}},
		{stageInterpret, "Interpreting results...", func(context.Context) error {
			res.Decision, res.Summary = Interpret(p.cfg, res.Scenario, res.Baseline, cur)
			return nil
		}},
		{stageGuardrail, "Generating guardrails...", func(context.Context) error {
			res.Guardrails = GenerateGuardrails(p.cfg, res.Scenario, res.Baseline, cur.Risk, res.AppliedDefaults)
			return nil
		}},
	}

	for _, st := range steps {
		if err := p.runStage(ctx, &res, progress, st.name, st.message, st.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn().Err(err).Str("trend_id", in.TrendContext.TrendID).Str("stage", st.name).Msg("simulation stopped")
			return SimulationResult{}, err
		}
		if st.name == stageRisk {
			res.Growth, res.ROI, res.Risk = cur.Growth, cur.ROI, cur.Risk
		}
	}

	log.Info().
		Str("trend_id", res.Scenario.TrendContext.TrendID).
		Str("posture", string(res.Decision.RecommendedPosture)).
		Float64("data_coverage", res.Baseline.DataCoverage).
		Dur("elapsed", time.Since(started)).
		Msg("simulation complete")
	return res, nil
}

func (p *Pipeline) runStage(ctx context.Context, res *SimulationResult, progress StageProgressFn, name, message string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	emit(progress, name, message)
	ctx, span := p.tracer.Start(ctx, "simulation."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Stage: name, Err: err}
	}
	res.StagesExecuted = append(res.StagesExecuted, name)
	return nil
}

// rerun is the closure sensitivity analysis uses to recompute the range
// stages against a fixed baseline.
func (p *Pipeline) rerun(b Baseline) rerunFunc {
	return func(ctx context.Context, s ScenarioInput) (outcome, error) {
		growth := ComputeGrowth(p.cfg, s, b)
		roi, err := ComputeROI(ctx, p.cfg, p.sources.Attribution, s, b, growth)
		if err != nil {
			return outcome{}, err
		}
		return outcome{Growth: growth, ROI: roi, Risk: ProjectRisk(p.cfg, s, b)}, nil
	}
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}

// BuildResponse rounds every number to two decimals so that identical runs
// serialize to identical bytes.
func BuildResponse(res SimulationResult) SimulationResponse {
	breakEven := round2(res.ROI.BreakEvenProbability)
	factors := make([]FactorImpact, 0, len(res.Sensitivity.Factors))
	for _, f := range res.Sensitivity.Factors {
		f.WidthDelta = round2(f.WidthDelta)
		factors = append(factors, f)
	}
	sens := res.Sensitivity
	sens.ImpactMagnitude = round2(sens.ImpactMagnitude)
	sens.Factors = factors

	g := res.Guardrails
	g.DataCoverage = round2(g.DataCoverage)
	if g.Notes == nil {
		g.Notes = []string{}
	}
	if g.AppliedDefaults == nil {
		g.AppliedDefaults = []string{}
	}
	d := res.Decision
	if d.Opportunities == nil {
		d.Opportunities = []string{}
	}
	if d.Risks == nil {
		d.Risks = []string{}
	}

	return SimulationResponse{
		SimulationSummary: res.Summary,
		ExpectedGrowthMetrics: GrowthMetrics{
			EngagementGrowthPct:           res.Growth.EngagementGrowthPct.rounded(),
			ReachGrowthPct:                res.Growth.ReachGrowthPct.rounded(),
			CreatorParticipationChangePct: res.Growth.CreatorParticipationChangePct.rounded(),
		},
		ExpectedROIMetrics: ROIMetrics{
			ROIPercentRange:       res.ROI.ROIPercentRange.rounded(),
			BreakEvenProbability:  breakEven,
			LossProbability:       round2(fullProbability - breakEven),
			AttributionConfidence: res.ROI.AttributionConfidence,
		},
		RiskProjection: RiskProjection{
			CurrentRiskScore:      round2(res.Risk.CurrentRiskScore),
			ProjectedRiskRange:    res.Risk.ProjectedRiskRange.rounded(),
			RiskTrend:             res.Risk.RiskTrend,
			RiskToleranceConflict: res.Risk.RiskToleranceConflict,
		},
		DecisionInterpretation: d,
		AssumptionSensitivity:  sens,
		Guardrails:             g,
	}
}
