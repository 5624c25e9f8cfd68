package cqrs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies portal spans.
const TracerName = "github.com/tessera-id/portal"

// TracingMiddleware wraps each command in an OpenTelemetry span. A nil
// provider uses the global one.
func TracingMiddleware(tp trace.TracerProvider) Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(TracerName)

	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			ctx, span := tracer.Start(ctx, "command."+cmd.CommandType(),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			attrs := []attribute.KeyValue{
				attribute.String("portal.command.type", cmd.CommandType()),
				attribute.String("portal.actor.id", ActorFromContext(ctx).ID),
			}
			if aggCmd, ok := cmd.(AggregateCommand); ok && aggCmd.AggregateID() != "" {
				attrs = append(attrs, attribute.String("portal.command.aggregate_id", aggCmd.AggregateID()))
			}
			if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
				attrs = append(attrs, attribute.String("portal.correlation_id", correlationID))
			}
			span.SetAttributes(attrs...)

			result, err := next(ctx, cmd)

			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case result.IsError():
				span.RecordError(result.Error)
				span.SetStatus(codes.Error, result.Error.Error())
			default:
				span.SetStatus(codes.Ok, "")
				span.SetAttributes(
					attribute.String("portal.result.aggregate_id", result.AggregateID),
					attribute.Int64("portal.result.version", result.Version),
				)
			}
			return result, err
		}
	}
}
