package telemetry

import (
	"context"
	"testing"

	"github.com/joelkehle/trendsim/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpointShutsDownCleanly(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{OTLPEndpoint: "127.0.0.1:4318", Insecure: true, SampleRatio: 0.5}, "test")
	require.NoError(t, err)
	// Nothing was recorded, so shutdown has nothing to flush.
	assert.NoError(t, shutdown(context.Background()))
}

func TestResourceCarriesServiceName(t *testing.T) {
	res := Resource("", "1.2.3")
	v, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "trendsim", v.AsString())
}

func TestRatioClamps(t *testing.T) {
	assert.Equal(t, 1.0, ratio(0))
	assert.Equal(t, 1.0, ratio(3))
	assert.Equal(t, 0.25, ratio(0.25))
}
