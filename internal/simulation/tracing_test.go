package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPipelineEmitsSpanPerStage(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	p := NewPipeline(DefaultConfig(), testSources(), WithClock(fixedClock), WithTracer(tp.Tracer("test")))

	_, err := p.Run(context.Background(), growthScenario())
	require.NoError(t, err)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	for _, stage := range StageOrder {
		assert.Contains(t, names, "simulation."+stage)
	}
	assert.Contains(t, names, "simulation.run")
}
