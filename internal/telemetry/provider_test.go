package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestConfigResource(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	res := Config{ClientID: "userA", Origin: "https://ps.pndsn.com"}.resource()
	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	require.Equal(t, "subclient", attrs["service.name"])
	require.Equal(t, "userA", attrs["client.id"])
	require.Equal(t, "https://ps.pndsn.com", attrs["client.origin"])

	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	require.Equal(t, "from-env", Config{ServiceName: "listener"}.serviceName())
	t.Setenv("OTEL_SERVICE_NAME", "")
	require.Equal(t, "listener", Config{ServiceName: "listener"}.serviceName())
}

func TestSetupTracingSampleRatio(t *testing.T) {
	_, err := SetupTracing(context.Background(), Config{SampleRatio: 1.5})
	require.Error(t, err)

	provider, err := SetupTracing(context.Background(), Config{SampleRatio: 1})
	require.NoError(t, err)
	require.NoError(t, provider.Shutdown(context.Background()))
}
