package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Span names
	SpanPlaceOrder   = "place_order"
	SpanMatchOrder   = "match_order"
	SpanCancelOrder  = "cancel_order"
	SpanPublishEvent = "publish_event"

	// Attribute keys
	AttributeMarket            = "market"
	AttributeOrderID           = "order.id"
	AttributeOrderSide         = "order.side"
	AttributeOrderRestriction  = "order.restriction"
	AttributeOrderQuantity     = "order.quantity"
	AttributeOrderPrice        = "order.price"
	AttributeBaseFilled        = "order.base_filled"
	AttributeRemainingQuantity = "order.remaining_quantity"
)

// StartOrderSpan starts a new span for order processing.
func StartOrderSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	var tracer trace.Tracer

	switch name {
	case SpanMatchOrder, SpanPublishEvent:
		tracer = GetMatchingEngineTracer()
	default:
		tracer = GetOrderAPITracer()
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span.
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
