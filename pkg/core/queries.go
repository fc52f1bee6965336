package core

import "sort"

// PriceLevel is one rung of aggregated depth.
type PriceLevel struct {
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
}

// MarketPrice returns the best bid and best ask. This is an O(1) read off
// the tree extremes; a level whose orders have all expired but were not yet
// evicted still counts.
func (b *OrderBook) MarketPrice() (bestBid uint64, hasBid bool, bestAsk uint64, hasAsk bool) {
	bestBid, hasBid = b.bids.MaxKey()
	bestAsk, hasAsk = b.asks.MinKey()
	return
}

// Level2BidSide aggregates live bid depth within [priceLow, priceHigh],
// best price first. Expired orders are excluded from the sums; levels left
// empty by expiry are skipped.
func (b *OrderBook) Level2BidSide(priceLow, priceHigh uint64, now int64) []PriceLevel {
	var out []PriceLevel
	h, ok := b.bids.MaxLeaf()
	for ok {
		price, tick := b.bids.Leaf(h)
		if price < priceLow {
			break
		}
		if price <= priceHigh {
			if lvl, live := liveDepth(price, tick, now); live {
				out = append(out, lvl)
			}
		}
		h, ok = b.bids.PreviousLeaf(price)
	}
	return out
}

// Level2AskSide aggregates live ask depth within [priceLow, priceHigh],
// best price first.
func (b *OrderBook) Level2AskSide(priceLow, priceHigh uint64, now int64) []PriceLevel {
	var out []PriceLevel
	h, ok := b.asks.MinLeaf()
	for ok {
		price, tick := b.asks.Leaf(h)
		if price > priceHigh {
			break
		}
		if price >= priceLow {
			if lvl, live := liveDepth(price, tick, now); live {
				out = append(out, lvl)
			}
		}
		h, ok = b.asks.NextLeaf(price)
	}
	return out
}

func liveDepth(price uint64, tick *TickLevel, now int64) (PriceLevel, bool) {
	var qty uint64
	for _, o := range tick.Orders() {
		if !o.Expired(now) {
			qty += o.Quantity
		}
	}
	return PriceLevel{Price: price, Quantity: qty}, qty > 0
}

// OrderStatus returns a copy of the owner's open order by id. A live order
// belonging to someone else reads as not found, so callers learn nothing
// about other users' ids.
func (b *OrderBook) OrderStatus(owner string, orderID uint64) (Order, error) {
	price, ok := b.usrOpenOrders[owner][orderID]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	o, ok := b.tickOrder(orderID, price)
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// OpenOrders returns copies of the owner's open orders sorted by id, which
// within a side is placement order.
func (b *OrderBook) OpenOrders(owner string) []Order {
	open := b.usrOpenOrders[owner]
	if len(open) == 0 {
		return nil
	}
	out := make([]Order, 0, len(open))
	for id, price := range open {
		if o, ok := b.tickOrder(id, price); ok {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TradingFees returns the accrued fee pools in base and quote units.
func (b *OrderBook) TradingFees() (baseFees, quoteFees uint64) {
	return b.baseFees, b.quoteFees
}

// TickSize returns the price granularity.
func (b *OrderBook) TickSize() uint64 { return b.tickSize }

// LotSize returns the quantity granularity.
func (b *OrderBook) LotSize() uint64 { return b.lotSize }

// OpenOrderCount returns the number of orders resting on both sides.
func (b *OrderBook) OpenOrderCount() int { return len(b.orderOwners) }

func (b *OrderBook) tickOrder(orderID, price uint64) (*Order, bool) {
	side := b.asks
	if IsBidOrderID(orderID) {
		side = b.bids
	}
	h, ok := side.Find(price)
	if !ok {
		return nil, false
	}
	_, tick := side.Leaf(h)
	return tick.Get(orderID)
}
