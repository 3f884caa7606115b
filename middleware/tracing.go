package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/chunk"
)

// tracerName is the instrumentation scope name for engine tracing.
const tracerName = "github.com/cirquephotovideo/commerce-cloud-ai-sub007"

// Tracing returns middleware that wraps chunk execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: batch.chunk.id, batch.job.id,
// batch.chunk.ordinal, batch.retry_count. On error, the span status is
// set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *chunk.Chunk, next Handler) error {
		ctx, span := tracer.Start(ctx, "batch.chunk.execute",
			trace.WithAttributes(
				attribute.String("batch.chunk.id", c.ID.String()),
				attribute.String("batch.job.id", c.JobID.String()),
				attribute.Int("batch.chunk.ordinal", c.Ordinal),
				attribute.Int("batch.retry_count", c.RetryCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
