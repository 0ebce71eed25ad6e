// Package events publishes simulation.completed notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/segmentio/kafka-go"
)

const TypeSimulationCompleted = "simulation.completed"

type SimulationCompleted struct {
	EventID              string                     `json:"event_id"`
	EventType            string                     `json:"event_type"`
	ScenarioID           string                     `json:"scenario_id,omitempty"`
	ScenarioVersion      int                        `json:"scenario_version,omitempty"`
	TrendID              string                     `json:"trend_id"`
	Posture              simulation.Posture         `json:"recommended_posture"`
	Label                string                     `json:"label"`
	Confidence           simulation.ConfidenceLevel `json:"confidence"`
	BreakEvenProbability float64                    `json:"break_even_probability"`
	DataCoverage         float64                    `json:"data_coverage"`
	OccurredAt           time.Time                  `json:"occurred_at"`
}

func NewSimulationCompleted(scenarioID string, version int, trendID string, resp simulation.SimulationResponse, at time.Time) SimulationCompleted {
	return SimulationCompleted{
		EventID:              uuid.NewString(),
		EventType:            TypeSimulationCompleted,
		ScenarioID:           scenarioID,
		ScenarioVersion:      version,
		TrendID:              trendID,
		Posture:              resp.DecisionInterpretation.RecommendedPosture,
		Label:                resp.SimulationSummary.Label,
		Confidence:           resp.SimulationSummary.Confidence,
		BreakEvenProbability: resp.ExpectedROIMetrics.BreakEvenProbability,
		DataCoverage:         resp.Guardrails.DataCoverage,
		OccurredAt:           at.UTC(),
	}
}

type Publisher interface {
	PublishCompleted(ctx context.Context, ev SimulationCompleted) error
	Close() error
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) PublishCompleted(context.Context, SimulationCompleted) error { return nil }
func (Noop) Close() error                                                 { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	metrics *metrics.Registry
}

func NewKafkaPublisher(brokers []string, topic string, reg *metrics.Registry) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		topic = TypeSimulationCompleted
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
		topic:   topic,
		metrics: reg,
	}, nil
}

// PublishCompleted keys messages by trend so one trend's events stay ordered.
func (p *KafkaPublisher) PublishCompleted(ctx context.Context, ev SimulationCompleted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventType, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(ev.TrendID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	})
	if err != nil {
		p.metrics.EventPublished("error")
		return fmt.Errorf("publish %s: %w", ev.EventType, err)
	}
	p.metrics.EventPublished("ok")
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }
