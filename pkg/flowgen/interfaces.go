package flowgen

import (
	"context"

	"github.com/erain9/deepmatch/pkg/server"
)

// PriceFetcher defines the interface for fetching current market prices
type PriceFetcher interface {
	// FetchPrice returns the current market price for the configured symbol
	FetchPrice(ctx context.Context) (float64, error)
	// Close releases any resources held by the price fetcher
	Close() error
}

// OrderPlacer defines the interface for placing and canceling orders
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *server.PlaceOrderRequest) (*server.PlaceOrderResponse, error)
	CancelAllOrders(ctx context.Context, owner string) ([]string, error)
	Close() error
}

// QuotingStrategy turns a reference price into the set of orders to quote.
type QuotingStrategy interface {
	CalculateOrders(ctx context.Context, currentPrice float64) ([]*server.PlaceOrderRequest, error)
}
