package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// orderBookMetrics holds the singleton instance
	orderBookMetrics *OrderBookMetrics
	// meter is the global meter for order book metrics
	meter = otel.GetMeterProvider().Meter(instrumentationName)
)

// OrderBookMetrics holds metrics for order book operations
type OrderBookMetrics struct {
	ordersPlacedTotal   metric.Int64Counter
	ordersCanceledTotal metric.Int64Counter
	baseFilledTotal     metric.Int64Counter
	feesAccruedTotal    metric.Int64Counter
}

// GetOrderBookMetrics returns the OrderBookMetrics singleton
func GetOrderBookMetrics() *OrderBookMetrics {
	if orderBookMetrics == nil {
		ordersPlaced, err := meter.Int64Counter(
			"orderbook.orders_placed.total",
			metric.WithDescription("Total number of limit orders rested on the book"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}
		ordersCanceled, err := meter.Int64Counter(
			"orderbook.orders_canceled.total",
			metric.WithDescription("Total number of orders canceled or evicted"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}
		baseFilled, err := meter.Int64Counter(
			"orderbook.base_filled.total",
			metric.WithDescription("Total base quantity traded"),
			metric.WithUnit("{unit}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}
		feesAccrued, err := meter.Int64Counter(
			"orderbook.fees_accrued.total",
			metric.WithDescription("Net commission accrued to the fee pools"),
			metric.WithUnit("{unit}"),
		)
		if err != nil {
			return &OrderBookMetrics{}
		}

		orderBookMetrics = &OrderBookMetrics{
			ordersPlacedTotal:   ordersPlaced,
			ordersCanceledTotal: ordersCanceled,
			baseFilledTotal:     baseFilled,
			feesAccruedTotal:    feesAccrued,
		}
	}

	return orderBookMetrics
}

// RecordOrderPlaced increments the placed orders counter.
func (m *OrderBookMetrics) RecordOrderPlaced(ctx context.Context, market string) {
	if m.ordersPlacedTotal == nil {
		return
	}
	m.ordersPlacedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("market", market)))
}

// RecordOrderCanceled increments the canceled orders counter. Reason is
// "user" or "expired".
func (m *OrderBookMetrics) RecordOrderCanceled(ctx context.Context, market, reason string) {
	if m.ordersCanceledTotal == nil {
		return
	}
	m.ordersCanceledTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("market", market),
		attribute.String("reason", reason),
	))
}

// RecordFill accumulates traded base quantity and the pool's net fee cut.
func (m *OrderBookMetrics) RecordFill(ctx context.Context, market string, baseQuantity, netFee uint64) {
	if m.baseFilledTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("market", market))
	m.baseFilledTotal.Add(ctx, int64(baseQuantity), attrs)
	if netFee > 0 {
		m.feesAccruedTotal.Add(ctx, int64(netFee), attrs)
	}
}
