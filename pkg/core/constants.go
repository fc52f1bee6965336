package core

import "errors"

const (
	// FloatScaling is the fixed-point scale for prices and rates: a price
	// of 2.5 quote per base unit is stored as 2_500_000_000, a fee of
	// 25 bps as 2_500_000.
	FloatScaling uint64 = 1_000_000_000

	// MinAskOrderID is the first ask order id. Bid ids count up from 0,
	// ask ids from here, so one comparison recovers the side from an id.
	MinAskOrderID uint64 = 1 << 63

	// MinPrice and MaxPrice bound market-order matching walks.
	MinPrice uint64 = 0
	MaxPrice uint64 = ^uint64(0)
)

// Errors
var (
	ErrInvalidPrice       = errors.New("price must be positive and tick-size aligned")
	ErrInvalidQuantity    = errors.New("quantity must be positive and lot-size aligned")
	ErrInvalidExpiry      = errors.New("expire timestamp must be in the future")
	ErrInvalidRestriction = errors.New("unknown order restriction")
	ErrInsufficientFunds  = errors.New("insufficient available balance")
	ErrUnauthorized       = errors.New("order belongs to another owner")
	ErrOrderNotFound      = errors.New("order not found")
	ErrFillOrKill         = errors.New("fill-or-kill order cannot be fully filled")
	ErrPostOrAbort        = errors.New("post-only order would take liquidity")
)
