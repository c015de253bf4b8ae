// Package storage holds helpers shared by the object store adapters.
package storage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteAndTrace runs call inside a client span named spanName. Errors are
// recorded on the span unless expected reports them as a normal outcome,
// such as a lookup of an object that has not been flushed yet.
func ExecuteAndTrace(
	ctx context.Context,
	tracer trace.Tracer,
	spanName string,
	attributes []attribute.KeyValue,
	expected func(error) bool,
	call func(ctx context.Context) error,
) error {
	ctx, span := tracer.Start(
		ctx,
		spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attributes...),
	)
	defer span.End()

	err := call(ctx)
	switch {
	case err == nil:
		return nil
	case expected != nil && expected(err):
		span.SetAttributes(attribute.String("outcome", err.Error()))
		return err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
}
