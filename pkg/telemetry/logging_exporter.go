package telemetry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// spanLogger turns finished request and scan spans into log lines so a
// deployment without a collector still sees per-request timing. Failed
// spans are logged at warn level.
type spanLogger struct {
	logger zerolog.Logger
}

func newLoggingExporter(logger zerolog.Logger) sdktrace.SpanExporter {
	return &spanLogger{logger: logger}
}

func (s *spanLogger) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		status := span.Status()
		event := s.logger.Info()
		if status.Code == codes.Error {
			event = s.logger.Warn().Str("error", status.Description)
		}

		sc := span.SpanContext()
		event = event.
			Str("span_name", span.Name()).
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Float64("duration_ms", float64(span.EndTime().Sub(span.StartTime()).Microseconds())/1000)
		if parent := span.Parent(); parent.IsValid() {
			event = event.Str("parent_span_id", parent.SpanID().String())
		}

		if attrs := span.Attributes(); len(attrs) > 0 {
			fields := make(map[string]any, len(attrs))
			for _, kv := range attrs {
				fields[string(kv.Key)] = kv.Value.AsInterface()
			}
			event = event.Fields(fields)
		}
		event.Msg("span")
	}
	return nil
}

func (s *spanLogger) Shutdown(context.Context) error   { return nil }
func (s *spanLogger) ForceFlush(context.Context) error { return nil }

var _ sdktrace.SpanExporter = (*spanLogger)(nil)
