package server

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erain9/deepmatch/pkg/core"
)

// The wire format carries prices, quantities and rates as decimal strings.
// Internally everything is a uint64 scaled by core.FloatScaling, so values
// are limited to nine fractional digits.
var scaleFactor = decimal.New(1, 9)

// ParseScaled converts a decimal string to FloatScaling-scaled units.
func ParseScaled(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("value %q must not be negative", s)
	}
	scaled := d.Mul(scaleFactor)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("value %q has more than 9 decimal places", s)
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("value %q is out of range", s)
	}
	return bi.Uint64(), nil
}

// FormatScaled renders FloatScaling-scaled units as a decimal string.
func FormatScaled(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -9).String()
}

func formatOrderID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseOrderID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid order id %q", s)
	}
	return id, nil
}

func parseSide(s string) (isBid bool, err error) {
	switch s {
	case "buy", "bid":
		return true, nil
	case "sell", "ask":
		return false, nil
	default:
		return false, fmt.Errorf("invalid side %q", s)
	}
}

func sideString(isBid bool) string {
	if isBid {
		return "buy"
	}
	return "sell"
}

func parseRestriction(s string) (core.Restriction, error) {
	switch s {
	case "", core.NoRestriction.String():
		return core.NoRestriction, nil
	case core.ImmediateOrCancel.String():
		return core.ImmediateOrCancel, nil
	case core.FillOrKill.String():
		return core.FillOrKill, nil
	case core.PostOrAbort.String():
		return core.PostOrAbort, nil
	default:
		return 0, fmt.Errorf("invalid restriction %q", s)
	}
}

// CreateMarketRequest registers a trading pair. Sizes and rates are decimal
// strings; the rates are fractions, so "0.0025" is 25 bps.
type CreateMarketRequest struct {
	Name            string `json:"name" binding:"required"`
	BaseAsset       string `json:"base_asset" binding:"required"`
	QuoteAsset      string `json:"quote_asset" binding:"required"`
	TickSize        string `json:"tick_size" binding:"required"`
	LotSize         string `json:"lot_size" binding:"required"`
	TakerFeeRate    string `json:"taker_fee_rate"`
	MakerRebateRate string `json:"maker_rebate_rate"`
}

// MarketResponse describes one market.
type MarketResponse struct {
	Name            string    `json:"name"`
	BaseAsset       string    `json:"base_asset"`
	QuoteAsset      string    `json:"quote_asset"`
	TickSize        string    `json:"tick_size"`
	LotSize         string    `json:"lot_size"`
	TakerFeeRate    string    `json:"taker_fee_rate"`
	MakerRebateRate string    `json:"maker_rebate_rate"`
	CreatedAt       time.Time `json:"created_at"`
	OpenOrders      int       `json:"open_orders"`
}

func marketResponse(info *MarketInfo) *MarketResponse {
	return &MarketResponse{
		Name:            info.Name,
		BaseAsset:       info.BaseAsset,
		QuoteAsset:      info.QuoteAsset,
		TickSize:        FormatScaled(info.TickSize),
		LotSize:         FormatScaled(info.LotSize),
		TakerFeeRate:    FormatScaled(info.TakerFeeRate),
		MakerRebateRate: FormatScaled(info.MakerRebateRate),
		CreatedAt:       info.CreatedAt,
		OpenOrders:      info.OpenOrders,
	}
}

// PlaceOrderRequest submits a limit or market order. Limit orders need a
// price and expiry; a market buy may give quote_quantity instead of
// quantity to spend a quote budget.
type PlaceOrderRequest struct {
	Owner         string `json:"owner" binding:"required"`
	Side          string `json:"side" binding:"required"`
	Type          string `json:"type" binding:"required"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	QuoteQuantity string `json:"quote_quantity"`
	Restriction   string `json:"restriction"`
	ExpireAt      int64  `json:"expire_at"`
}

// PlaceOrderResponse reports what a placement did. Order ids are decimal
// strings since ask ids exceed the safe integer range of JSON consumers.
type PlaceOrderResponse struct {
	OrderID       string `json:"order_id,omitempty"`
	Rested        bool   `json:"rested"`
	BaseFilled    string `json:"base_filled"`
	QuoteSpent    string `json:"quote_spent"`
	QuoteReceived string `json:"quote_received"`
	BaseSpent     string `json:"base_spent"`
	Unfilled      string `json:"unfilled"`
}

func placeOrderResponse(res *core.PlaceResult) *PlaceOrderResponse {
	out := &PlaceOrderResponse{
		Rested:        res.Rested,
		BaseFilled:    FormatScaled(res.BaseFilled),
		QuoteSpent:    FormatScaled(res.QuoteSpent),
		QuoteReceived: FormatScaled(res.QuoteReceived),
		BaseSpent:     FormatScaled(res.BaseSpent),
		Unfilled:      FormatScaled(res.Unfilled),
	}
	if res.Rested {
		out.OrderID = formatOrderID(res.OrderID)
	}
	return out
}

// OrderResponse describes one open order.
type OrderResponse struct {
	OrderID  string `json:"order_id"`
	Owner    string `json:"owner"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	ExpireAt int64  `json:"expire_at"`
}

func orderResponse(o core.Order) *OrderResponse {
	return &OrderResponse{
		OrderID:  formatOrderID(o.ID),
		Owner:    o.Owner,
		Side:     sideString(o.IsBid),
		Price:    FormatScaled(o.Price),
		Quantity: FormatScaled(o.Quantity),
		ExpireAt: o.ExpireTimestamp,
	}
}

// BatchCancelRequest cancels several orders atomically.
type BatchCancelRequest struct {
	Owner    string   `json:"owner" binding:"required"`
	OrderIDs []string `json:"order_ids" binding:"required"`
}

// CancelAllResponse lists the canceled order ids.
type CancelAllResponse struct {
	OrderIDs []string `json:"order_ids"`
}

// PriceLevelResponse is one row of level 2 depth.
type PriceLevelResponse struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

func priceLevelResponses(levels []core.PriceLevel) []PriceLevelResponse {
	out := make([]PriceLevelResponse, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, PriceLevelResponse{
			Price:    FormatScaled(lvl.Price),
			Quantity: FormatScaled(lvl.Quantity),
		})
	}
	return out
}

// MarketPriceResponse reports the best prices; a missing side is null.
type MarketPriceResponse struct {
	BestBid *string `json:"best_bid"`
	BestAsk *string `json:"best_ask"`
}

// FeesResponse reports the accrued fee pools.
type FeesResponse struct {
	BaseFees  string `json:"base_fees"`
	QuoteFees string `json:"quote_fees"`
}

// BalanceRequest moves funds in or out of the custodian.
type BalanceRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// BalanceResponse reports one account balance.
type BalanceResponse struct {
	User      string `json:"user"`
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Locked    string `json:"locked"`
}

type errorResponse struct {
	Error string `json:"error"`
}
