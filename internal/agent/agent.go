// Package agent runs the simulator as a pull-mode bus agent.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/trendsim/internal/busclient"
	"github.com/joelkehle/trendsim/internal/runner"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const CapabilityCampaignSimulation = "campaign-simulation"

type Bus interface {
	AgentID() string
	Register(ctx context.Context, capabilities []string, ttl time.Duration) error
	Poll(ctx context.Context, cursor int, wait time.Duration) ([]busclient.InboxEvent, int, error)
	Ack(ctx context.Context, messageID, status, reason string) error
	Event(ctx context.Context, messageID, eventType, body string, meta map[string]any) error
	Send(ctx context.Context, msg busclient.Message) (string, error)
}

type Runner interface {
	Simulate(ctx context.Context, in simulation.ScenarioInput, progress simulation.StageProgressFn) (runner.Outcome, error)
	SimulateStored(ctx context.Context, id string, progress simulation.StageProgressFn) (runner.Outcome, error)
}

type Config struct {
	PollWait    time.Duration
	Heartbeat   time.Duration
	TTL         time.Duration
	Concurrency int
}

type Agent struct {
	cfg    Config
	bus    Bus
	runner Runner
	cursor int
}

func New(cfg Config, bus Bus, r Runner) *Agent {
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 60 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 120 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Agent{cfg: cfg, bus: bus, runner: r}
}

// Run registers, then polls until ctx is cancelled. In-flight messages are
// finished before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}
	log.Info().Str("agent_id", a.bus.AgentID()).Str("capability", CapabilityCampaignSimulation).Msg("agent registered")
	go a.heartbeatLoop(ctx)

	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)
	defer func() { _ = g.Wait() }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, next, err := a.bus.Poll(ctx, a.cursor, a.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("inbox poll failed")
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		a.cursor = next
		for _, ev := range events {
			log.Info().Str("message_id", ev.MessageID).Str("from", ev.From).Str("conversation_id", ev.ConversationID).Msg("message received")
			g.Go(func() error {
				if err := a.Handle(ctx, ev); err != nil {
					log.Error().Err(err).Str("message_id", ev.MessageID).Msg("message handling failed")
				}
				return nil
			})
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.register(ctx); err != nil {
				log.Warn().Err(err).Msg("heartbeat register failed")
			}
		}
	}
}

func (a *Agent) register(ctx context.Context) error {
	return a.bus.Register(ctx, []string{CapabilityCampaignSimulation}, a.cfg.TTL)
}

// request is either a full scenario or a reference to a stored one.
type request struct {
	scenario simulation.ScenarioInput
	storedID string
}

func parseRequest(body string) (request, error) {
	var probe struct {
		ScenarioID   string          `json:"scenario_id"`
		TrendContext json.RawMessage `json:"trend_context"`
	}
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return request{}, fmt.Errorf("invalid request body: %w", err)
	}
	if len(probe.TrendContext) == 0 {
		if strings.TrimSpace(probe.ScenarioID) == "" {
			return request{}, errors.New("request needs trend_context or a stored scenario_id")
		}
		return request{storedID: strings.TrimSpace(probe.ScenarioID)}, nil
	}
	var in simulation.ScenarioInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return request{}, fmt.Errorf("invalid scenario: %w", err)
	}
	return request{scenario: in}, nil
}

// Handle processes one inbox message and always answers the sender, with
// either the response envelope or the failure envelope.
func (a *Agent) Handle(ctx context.Context, ev busclient.InboxEvent) error {
	if err := a.bus.Ack(ctx, ev.MessageID, "accepted", "running campaign simulation"); err != nil {
		return err
	}

	req, err := parseRequest(ev.Body)
	if err != nil {
		_ = a.bus.Event(ctx, ev.MessageID, "error", err.Error(), nil)
		_ = a.reply(ctx, ev, "error", simulation.ErrorResponse{
			ErrorCode:          simulation.CodeValidation,
			ErrorMessage:       err.Error(),
			ValidationFailures: []simulation.ValidationFailure{},
		}, map[string]any{"stage": "error", "status": "error"})
		return err
	}

	progress := func(stage, message string) {
		_ = a.bus.Event(ctx, ev.MessageID, "progress", message, map[string]any{"stage": stage})
	}
	var out runner.Outcome
	if req.storedID != "" {
		out, err = a.runner.SimulateStored(ctx, req.storedID, progress)
	} else {
		out, err = a.runner.Simulate(ctx, req.scenario, progress)
	}
	if err != nil {
		fail := simulation.BuildErrorResponse(err)
		_ = a.bus.Event(ctx, ev.MessageID, "error", err.Error(), map[string]any{"stage": simulation.StageNameFromError(err), "error_code": fail.ErrorCode})
		_ = a.reply(ctx, ev, "error", fail, map[string]any{"stage": "error", "status": "error", "error_code": fail.ErrorCode})
		return err
	}

	posture := out.Response.DecisionInterpretation.RecommendedPosture
	confidence := out.Response.SimulationSummary.Confidence
	if err := a.reply(ctx, ev, "response", out.Response, map[string]any{"stage": "done", "posture": posture, "confidence": confidence}); err != nil {
		_ = a.bus.Event(ctx, ev.MessageID, "error", "failed to send response", nil)
		return err
	}
	_ = a.bus.Event(ctx, ev.MessageID, "final", string(posture), map[string]any{"confidence": confidence, "version": out.Version})
	return nil
}

func (a *Agent) reply(ctx context.Context, ev busclient.InboxEvent, kind string, payload any, meta map[string]any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = a.bus.Send(ctx, busclient.Message{
		To:             ev.ReplyTo(),
		ConversationID: ev.ConversationID,
		RequestID:      fmt.Sprintf("campaign-simulation-%s-%s", kind, ev.MessageID),
		Type:           "response",
		Body:           string(blob),
		Meta:           meta,
	})
	return err
}
