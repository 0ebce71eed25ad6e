package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/joelkehle/trendsim/internal/metrics"
	"github.com/joelkehle/trendsim/internal/simulation"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func completedEvent() SimulationCompleted {
	resp := simulation.SimulationResponse{
		SimulationSummary:      simulation.Summary{Label: "Strong opportunity", Confidence: simulation.ConfidenceHigh},
		ExpectedROIMetrics:     simulation.ROIMetrics{BreakEvenProbability: 92.5},
		DecisionInterpretation: simulation.DecisionInterpretation{RecommendedPosture: simulation.PostureScale},
		Guardrails:             simulation.Guardrails{DataCoverage: 100},
	}
	return NewSimulationCompleted("sc-1", 2, "trend-123", resp, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	w := &recordingWriter{}
	reg := metrics.New()
	p := &KafkaPublisher{writer: w, topic: "trendsim.simulation.completed", metrics: reg}

	ev := completedEvent()
	require.NoError(t, p.PublishCompleted(context.Background(), ev))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "trendsim.simulation.completed", msg.Topic)
	assert.Equal(t, "trend-123", string(msg.Key))

	var got SimulationCompleted
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, simulation.PostureScale, got.Posture)
	assert.Equal(t, 92.5, got.BreakEvenProbability)
	assert.Equal(t, 2, got.ScenarioVersion)
	assert.NotEmpty(t, got.EventID)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.EventsPublished.WithLabelValues("ok")))
}

func TestKafkaPublisherReportsWriteFailure(t *testing.T) {
	reg := metrics.New()
	p := &KafkaPublisher{writer: &recordingWriter{err: errors.New("leader not available")}, topic: "t", metrics: reg}
	err := p.PublishCompleted(context.Background(), completedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish simulation.completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.EventsPublished.WithLabelValues("error")))
}

func TestNewKafkaPublisherNeedsBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "", nil)
	assert.Error(t, err)
	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, TypeSimulationCompleted, p.topic)
	assert.NoError(t, p.Close())
}
