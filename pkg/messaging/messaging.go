package messaging

import "context"

// MessageSender defines an interface for publishing order events.
// This helps decouple the core package from specific implementations
// like Kafka in the queue package.
type MessageSender interface {
	SendOrderEvent(ctx context.Context, msg *OrderEventMessage) error
	Close() error
}

// EventType discriminates the payload of an OrderEventMessage.
type EventType string

const (
	EventOrderPlaced   EventType = "order_placed"
	EventOrderCanceled EventType = "order_canceled"
	EventOrderFilled   EventType = "order_filled"
)

// OrderEventMessage is the wire envelope for book lifecycle events. One flat
// shape covers all three event types; fields that do not apply are zero.
type OrderEventMessage struct {
	Type      EventType `json:"type"`
	Market    string    `json:"market"`
	Timestamp int64     `json:"timestamp"`

	OrderID  uint64 `json:"order_id"`
	Owner    string `json:"owner"`
	IsBid    bool   `json:"is_bid"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`

	// Cancellations.
	Remaining uint64 `json:"remaining,omitempty"`
	Reason    string `json:"reason,omitempty"`

	// Fills. OrderID and Owner above are the maker's.
	TakerOwner    string `json:"taker_owner,omitempty"`
	QuoteQuantity uint64 `json:"quote_quantity,omitempty"`
	Commission    uint64 `json:"commission,omitempty"`
	Rebate        uint64 `json:"rebate,omitempty"`
}
