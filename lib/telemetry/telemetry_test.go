package telemetry

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormAttributesRedactsPasswords(t *testing.T) {
	attrs := formAttributes(url.Values{
		"eid": {"tutor"},
		"pw":  {"secret"},
	})
	require.Len(t, attrs, 2)
	for _, a := range attrs {
		require.NotContains(t, a.Value.AsString(), "secret")
	}
}

func TestEndpointTransport(t *testing.T) {
	require.Equal(t, "grpc", otlpEndpoint{GrpcEndpoint: "http://localhost:4317"}.transport())
	require.Equal(t, "http", otlpEndpoint{HttpEndpoint: "http://localhost:4318"}.transport())
}

func TestPerfStatsRecordWithoutProvider(t *testing.T) {
	require.NotPanics(t, func() {
		newPerfStats().record(context.Background())
	})
}
