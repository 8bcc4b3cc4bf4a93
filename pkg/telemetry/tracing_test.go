package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/optimal-cyber/launchpad-sub001/pkg/config"
)

func TestSetupTracingDefaults(t *testing.T) {
	ctx := context.Background()
	provider, err := SetupTracing(ctx, "launchpad-server", "test", config.TracingConfig{}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NoError(t, provider.Shutdown(ctx))
}

func TestSetupTracingRecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := NewSpanRecorder()
	writer := &captureWriter{}
	provider, err := SetupTracing(ctx, "launchpad-server", "test", config.TracingConfig{LogSpans: true, SampleRatio: 1}, zerolog.New(writer), recorder)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "ingest")
	span.End()
	require.NoError(t, provider.Shutdown(ctx))

	require.Equal(t, []string{"ingest"}, recorder.Names())
	require.NotEmpty(t, writer.entries)
}

func TestSetupTracingRejectsEmptyEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), "launchpad-server", "test", config.TracingConfig{Endpoint: "https://"}, zerolog.Nop())
	require.Error(t, err)
}
