package server

import (
	"context"

	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/otel"
)

// marketMetricsSink feeds order book events into the OpenTelemetry order
// metrics. Events arrive synchronously under the market lock, so the sink
// does nothing blocking.
type marketMetricsSink struct {
	market string
}

func (s marketMetricsSink) OrderPlaced(core.OrderPlacedEvent) {
	otel.GetOrderBookMetrics().RecordOrderPlaced(context.Background(), s.market)
}

func (s marketMetricsSink) OrderCanceled(e core.OrderCanceledEvent) {
	otel.GetOrderBookMetrics().RecordOrderCanceled(context.Background(), s.market, e.Reason)
}

func (s marketMetricsSink) OrderFilled(e core.OrderFilledEvent) {
	otel.GetOrderBookMetrics().RecordFill(context.Background(), s.market, e.BaseQuantity, e.TakerCommission-e.MakerRebate)
}

// fanoutSink delivers each event to every sink in order.
type fanoutSink []core.EventSink

func (f fanoutSink) OrderPlaced(e core.OrderPlacedEvent) {
	for _, s := range f {
		s.OrderPlaced(e)
	}
}

func (f fanoutSink) OrderCanceled(e core.OrderCanceledEvent) {
	for _, s := range f {
		s.OrderCanceled(e)
	}
}

func (f fanoutSink) OrderFilled(e core.OrderFilledEvent) {
	for _, s := range f {
		s.OrderFilled(e)
	}
}
