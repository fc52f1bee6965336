package messaging

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/erain9/deepmatch/pkg/core"
)

const (
	sinkBuffer  = 4096
	sendTimeout = 5 * time.Second
)

// Sink adapts a MessageSender to the order book's EventSink. The book emits
// events synchronously while holding the market lock, so the sink hands them
// to a single publisher goroutine through a buffered channel. When the
// buffer is full the event is dropped and counted rather than stalling
// matching.
type Sink struct {
	market string
	sender MessageSender
	logger zerolog.Logger

	ch      chan *OrderEventMessage
	done    chan struct{}
	dropped atomic.Uint64
}

// NewSink starts a sink publishing events for the named market. Close it to
// flush and stop the publisher.
func NewSink(market string, sender MessageSender, logger zerolog.Logger) *Sink {
	s := &Sink{
		market: market,
		sender: sender,
		logger: logger.With().Str("market", market).Logger(),
		ch:     make(chan *OrderEventMessage, sinkBuffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	defer close(s.done)
	for msg := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := s.sender.SendOrderEvent(ctx, msg)
		cancel()
		if err != nil {
			s.logger.Error().Err(err).
				Str("type", string(msg.Type)).
				Uint64("order_id", msg.OrderID).
				Msg("Failed to publish order event")
		}
	}
}

// Close stops accepting events, waits for the queue to drain and closes the
// underlying sender.
func (s *Sink) Close() error {
	close(s.ch)
	<-s.done
	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn().Uint64("dropped", n).Msg("Dropped order events under backpressure")
	}
	return s.sender.Close()
}

func (s *Sink) enqueue(msg *OrderEventMessage) {
	msg.Market = s.market
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}

// OrderPlaced implements core.EventSink.
func (s *Sink) OrderPlaced(e core.OrderPlacedEvent) {
	s.enqueue(&OrderEventMessage{
		Type:      EventOrderPlaced,
		Timestamp: e.Timestamp,
		OrderID:   e.OrderID,
		Owner:     e.Owner,
		IsBid:     e.IsBid,
		Price:     e.Price,
		Quantity:  e.Quantity,
	})
}

// OrderCanceled implements core.EventSink.
func (s *Sink) OrderCanceled(e core.OrderCanceledEvent) {
	s.enqueue(&OrderEventMessage{
		Type:      EventOrderCanceled,
		Timestamp: e.Timestamp,
		OrderID:   e.OrderID,
		Owner:     e.Owner,
		IsBid:     e.IsBid,
		Price:     e.Price,
		Remaining: e.Remaining,
		Reason:    e.Reason,
	})
}

// OrderFilled implements core.EventSink.
func (s *Sink) OrderFilled(e core.OrderFilledEvent) {
	s.enqueue(&OrderEventMessage{
		Type:          EventOrderFilled,
		Timestamp:     e.Timestamp,
		OrderID:       e.MakerOrderID,
		Owner:         e.MakerOwner,
		IsBid:         !e.TakerIsBid,
		Price:         e.Price,
		Quantity:      e.BaseQuantity,
		TakerOwner:    e.TakerOwner,
		QuoteQuantity: e.QuoteQuantity,
		Commission:    e.TakerCommission,
		Rebate:        e.MakerRebate,
	})
}

var _ core.EventSink = (*Sink)(nil)
