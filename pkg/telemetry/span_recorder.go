package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// SpanRecorder keeps finished spans in memory so tests can assert on
// request and scan instrumentation.
type SpanRecorder struct {
	mu    sync.Mutex
	ended []sdktrace.ReadOnlySpan
}

func NewSpanRecorder() *SpanRecorder {
	return &SpanRecorder{}
}

func (r *SpanRecorder) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (r *SpanRecorder) OnEnd(span sdktrace.ReadOnlySpan) {
	r.mu.Lock()
	r.ended = append(r.ended, span)
	r.mu.Unlock()
}

func (r *SpanRecorder) Shutdown(context.Context) error   { return nil }
func (r *SpanRecorder) ForceFlush(context.Context) error { return nil }

// Names returns the names of finished spans in completion order.
func (r *SpanRecorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.ended))
	for _, span := range r.ended {
		names = append(names, span.Name())
	}
	return names
}

// Attribute looks up key on the most recent span called name.
func (r *SpanRecorder) Attribute(name string, key attribute.Key) (attribute.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.ended) - 1; i >= 0; i-- {
		if r.ended[i].Name() != name {
			continue
		}
		for _, kv := range r.ended[i].Attributes() {
			if kv.Key == key {
				return kv.Value, true
			}
		}
		return attribute.Value{}, false
	}
	return attribute.Value{}, false
}

var _ sdktrace.SpanProcessor = (*SpanRecorder)(nil)
