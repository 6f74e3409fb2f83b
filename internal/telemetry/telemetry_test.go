package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_ExportsWhenEndpointSet(t *testing.T) {
	shutdown, err := Init("salon-messaging-test", "localhost:4318")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NotNil(t, otel.GetTracerProvider())

	shutdown()
}

func TestInit_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Init("salon-messaging-test", "")
	require.NoError(t, err)
	assert.NotPanics(t, shutdown)
}

func TestInit_EmptyServiceName(t *testing.T) {
	shutdown, err := Init("", "localhost:4318")
	assert.Error(t, err)
	assert.Nil(t, shutdown)
}
