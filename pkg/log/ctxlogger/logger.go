package ctxlogger

import (
	"context"
	"sync/atomic"

	"github.com/orgstream/orgstream/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type streamIDKey struct{}

var serviceName atomic.Pointer[string]

// SetServiceName configures the service name added to every log entry.
func SetServiceName(name string) {
	serviceName.Store(&name)
}

// ContextWithStreamID annotates the context with the event stream being worked on.
func ContextWithStreamID(ctx context.Context, streamID string) context.Context {
	if streamID == "" {
		return ctx
	}
	return context.WithValue(ctx, streamIDKey{}, streamID)
}

// FromContext returns a logger enriched with correlation metadata from context.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches the provided logger using metadata in the context.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 4)
	fields = append(fields, ExtractCorrelation(ctx))

	name := "unknown"
	if namePtr := serviceName.Load(); namePtr != nil {
		name = *namePtr
	}
	fields = append(fields, zap.String("service", name))

	if streamID, ok := ctx.Value(streamIDKey{}).(string); ok && streamID != "" {
		fields = append(fields, zap.String("stream_id", streamID))
	}

	return base.With(fields...)
}

// ExtractCorrelation pulls the correlation ID from the context.
func ExtractCorrelation(ctx context.Context) zap.Field {
	cid := correlation.ExtractCorrelationID(ctx)
	if cid == "" {
		_, cid = correlation.EnsureCorrelationID(ctx)
	}
	return zap.String("correlation_id", cid)
}
