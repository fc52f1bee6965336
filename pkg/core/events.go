package core

// Event reasons for OrderCanceled.
const (
	CancelReasonUser    = "user"
	CancelReasonExpired = "expired"
)

// OrderPlacedEvent is emitted when a limit order rests on the book.
type OrderPlacedEvent struct {
	OrderID   uint64 `json:"order_id"`
	Owner     string `json:"owner"`
	IsBid     bool   `json:"is_bid"`
	Price     uint64 `json:"price"`
	Quantity  uint64 `json:"quantity"`
	ExpireTs  int64  `json:"expire_timestamp"`
	Timestamp int64  `json:"timestamp"`
}

// OrderCanceledEvent is emitted when a resting order leaves the book without
// filling, either by user request or lazy expiry eviction.
type OrderCanceledEvent struct {
	OrderID   uint64 `json:"order_id"`
	Owner     string `json:"owner"`
	IsBid     bool   `json:"is_bid"`
	Price     uint64 `json:"price"`
	Remaining uint64 `json:"remaining"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// OrderFilledEvent is emitted once per maker order a taker trades against.
type OrderFilledEvent struct {
	MakerOrderID    uint64 `json:"maker_order_id"`
	MakerOwner      string `json:"maker_owner"`
	TakerOwner      string `json:"taker_owner"`
	TakerIsBid      bool   `json:"taker_is_bid"`
	Price           uint64 `json:"price"`
	BaseQuantity    uint64 `json:"base_quantity"`
	QuoteQuantity   uint64 `json:"quote_quantity"`
	TakerCommission uint64 `json:"taker_commission"`
	MakerRebate     uint64 `json:"maker_rebate"`
	MakerRemaining  uint64 `json:"maker_remaining"`
	Timestamp       int64  `json:"timestamp"`
}

// EventSink receives book lifecycle events. Sinks are called synchronously
// from inside book operations and must not call back into the book.
type EventSink interface {
	OrderPlaced(OrderPlacedEvent)
	OrderCanceled(OrderCanceledEvent)
	OrderFilled(OrderFilledEvent)
}

type nopSink struct{}

func (nopSink) OrderPlaced(OrderPlacedEvent)     {}
func (nopSink) OrderCanceled(OrderCanceledEvent) {}
func (nopSink) OrderFilled(OrderFilledEvent)     {}
