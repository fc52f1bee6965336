package core

import (
	"fmt"
	"sort"

	"github.com/erain9/deepmatch/pkg/critbit"
)

// OrderBook is a price-time-priority limit order book for one market. Each
// side is a critbit tree keyed by price with a FIFO TickLevel per key. Funds
// settle against an external Custodian; the book itself holds no balances
// beyond the accrued fee pools.
//
// The book is not safe for concurrent use. Callers serialize access, one
// writer at a time.
type OrderBook struct {
	BaseAsset  string
	QuoteAsset string

	bids *critbit.Tree[*TickLevel]
	asks *critbit.Tree[*TickLevel]

	nextBidOrderID uint64
	nextAskOrderID uint64

	// usrOpenOrders maps owner -> open order id -> resting price.
	// orderOwners is the reverse id -> owner index for every open order,
	// so a cancel can tell another user's order from one that never
	// existed or already left the book.
	usrOpenOrders map[string]map[uint64]uint64
	orderOwners   map[uint64]string

	tickSize        uint64
	lotSize         uint64
	takerFeeRate    uint64
	makerRebateRate uint64

	baseFees  uint64
	quoteFees uint64

	custodian Custodian
	events    EventSink
}

// Params configures a new order book.
type Params struct {
	BaseAsset  string
	QuoteAsset string

	// TickSize and LotSize are the price and quantity granularities.
	TickSize uint64
	LotSize  uint64

	// TakerFeeRate and MakerRebateRate are FloatScaling-scaled fractions.
	// The rebate must not exceed the fee or matching would mint money.
	TakerFeeRate    uint64
	MakerRebateRate uint64
}

// Option tweaks order book construction.
type Option func(*OrderBook)

// WithEventSink routes book lifecycle events to sink instead of discarding
// them.
func WithEventSink(sink EventSink) Option {
	return func(b *OrderBook) { b.events = sink }
}

// NewOrderBook builds an empty book settling against the given custodian.
func NewOrderBook(p Params, custodian Custodian, opts ...Option) (*OrderBook, error) {
	if p.BaseAsset == "" || p.QuoteAsset == "" || p.BaseAsset == p.QuoteAsset {
		return nil, fmt.Errorf("invalid asset pair %q/%q", p.BaseAsset, p.QuoteAsset)
	}
	if p.TickSize == 0 {
		return nil, fmt.Errorf("tick size must be positive")
	}
	if p.LotSize == 0 {
		return nil, fmt.Errorf("lot size must be positive")
	}
	if p.MakerRebateRate > p.TakerFeeRate {
		return nil, fmt.Errorf("maker rebate rate %d exceeds taker fee rate %d", p.MakerRebateRate, p.TakerFeeRate)
	}
	if custodian == nil {
		return nil, fmt.Errorf("custodian is required")
	}

	b := &OrderBook{
		BaseAsset:       p.BaseAsset,
		QuoteAsset:      p.QuoteAsset,
		bids:            critbit.New[*TickLevel](),
		asks:            critbit.New[*TickLevel](),
		nextAskOrderID:  MinAskOrderID,
		usrOpenOrders:   make(map[string]map[uint64]uint64),
		orderOwners:     make(map[uint64]string),
		tickSize:        p.TickSize,
		lotSize:         p.LotSize,
		takerFeeRate:    p.TakerFeeRate,
		makerRebateRate: p.MakerRebateRate,
		custodian:       custodian,
		events:          nopSink{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// PlaceResult reports what a placement did. QuoteSpent and QuoteReceived are
// the taker's quote flows including commission; BaseSpent is an ask taker's
// base outlay including commission. Unfilled is the quantity neither filled
// nor rested.
type PlaceResult struct {
	OrderID       uint64
	Rested        bool
	BaseFilled    uint64
	QuoteSpent    uint64
	QuoteReceived uint64
	BaseSpent     uint64
	Unfilled      uint64
}

// PlaceLimitOrder matches an incoming limit order against the opposite side
// and rests the remainder according to the restriction. Validation failures
// and restriction aborts leave the book and custodian completely unchanged.
func (b *OrderBook) PlaceLimitOrder(owner string, price, quantity uint64, isBid bool, expireTimestamp int64, restriction Restriction, now int64) (*PlaceResult, error) {
	if price == 0 || price%b.tickSize != 0 {
		return nil, ErrInvalidPrice
	}
	if quantity == 0 || quantity%b.lotSize != 0 {
		return nil, ErrInvalidQuantity
	}
	if expireTimestamp <= now {
		return nil, ErrInvalidExpiry
	}
	if !restriction.valid() {
		return nil, ErrInvalidRestriction
	}

	var plan *matchPlan
	if isBid {
		plan = b.planBid(quantity, price, now)
	} else {
		plan = b.planAsk(quantity, price, now)
	}
	remaining := quantity - plan.baseFilled

	switch restriction {
	case PostOrAbort:
		if plan.baseFilled > 0 {
			return nil, ErrPostOrAbort
		}
	case FillOrKill:
		if remaining > 0 {
			return nil, ErrFillOrKill
		}
	}
	rest := remaining > 0 && (restriction == NoRestriction || restriction == PostOrAbort)

	// Funds check against the full plan before any mutation.
	if isBid {
		need := plan.quoteSpent
		if rest {
			need += mulTrunc(remaining, price)
		}
		if b.custodian.AvailableBalance(owner, b.QuoteAsset) < need {
			return nil, ErrInsufficientFunds
		}
	} else {
		need := plan.baseSpent
		if rest {
			need += remaining
		}
		if b.custodian.AvailableBalance(owner, b.BaseAsset) < need {
			return nil, ErrInsufficientFunds
		}
	}

	b.applyPlan(owner, plan, now, isBid)

	res := &PlaceResult{
		BaseFilled:    plan.baseFilled,
		QuoteSpent:    plan.quoteSpent,
		QuoteReceived: plan.quoteReceived,
		BaseSpent:     plan.baseSpent,
	}
	if rest {
		res.OrderID = b.injectLimitOrder(owner, price, remaining, isBid, expireTimestamp, now)
		res.Rested = true
	} else {
		res.Unfilled = remaining
	}
	return res, nil
}

// PlaceMarketOrder matches a base quantity at any price on the opposite side
// and returns the unfilled remainder without resting it.
func (b *OrderBook) PlaceMarketOrder(owner string, quantity uint64, isBid bool, now int64) (*PlaceResult, error) {
	if quantity == 0 || quantity%b.lotSize != 0 {
		return nil, ErrInvalidQuantity
	}

	var plan *matchPlan
	if isBid {
		plan = b.planBid(quantity, MaxPrice, now)
		if b.custodian.AvailableBalance(owner, b.QuoteAsset) < plan.quoteSpent {
			return nil, ErrInsufficientFunds
		}
	} else {
		plan = b.planAsk(quantity, MinPrice, now)
		if b.custodian.AvailableBalance(owner, b.BaseAsset) < plan.baseSpent {
			return nil, ErrInsufficientFunds
		}
	}

	b.applyPlan(owner, plan, now, isBid)
	return &PlaceResult{
		BaseFilled:    plan.baseFilled,
		QuoteSpent:    plan.quoteSpent,
		QuoteReceived: plan.quoteReceived,
		BaseSpent:     plan.baseSpent,
		Unfilled:      quantity - plan.baseFilled,
	}, nil
}

// PlaceMarketOrderWithQuote buys base with a quote budget instead of a base
// quantity. Fills stop at the largest lot-aligned amount the remaining
// budget covers at the front maker's price; budget a partial lot would leave
// over is simply not spent.
func (b *OrderBook) PlaceMarketOrderWithQuote(owner string, quoteQuantity uint64, now int64) (*PlaceResult, error) {
	if quoteQuantity == 0 {
		return nil, ErrInvalidQuantity
	}

	plan := b.planBidWithQuote(quoteQuantity, MaxPrice, now)
	if b.custodian.AvailableBalance(owner, b.QuoteAsset) < plan.quoteSpent {
		return nil, ErrInsufficientFunds
	}

	b.applyPlan(owner, plan, now, true)
	return &PlaceResult{
		BaseFilled: plan.baseFilled,
		QuoteSpent: plan.quoteSpent,
	}, nil
}

// injectLimitOrder locks the maker's funds and rests the order at its tick,
// tail of the FIFO. The caller has already validated the balance.
func (b *OrderBook) injectLimitOrder(owner string, price, quantity uint64, isBid bool, expireTimestamp, now int64) uint64 {
	var id, lockedQuote uint64
	side := b.asks
	if isBid {
		lockedQuote = mulTrunc(quantity, price)
		mustSettle(b.custodian.LockBalance(owner, b.QuoteAsset, lockedQuote))
		id = b.nextBidOrderID
		b.nextBidOrderID++
		side = b.bids
	} else {
		mustSettle(b.custodian.LockBalance(owner, b.BaseAsset, quantity))
		id = b.nextAskOrderID
		b.nextAskOrderID++
	}

	o := &Order{
		ID:              id,
		Price:           price,
		Quantity:        quantity,
		IsBid:           isBid,
		Owner:           owner,
		ExpireTimestamp: expireTimestamp,
		LockedQuote:     lockedQuote,
	}

	var tick *TickLevel
	if h, ok := side.Find(price); ok {
		_, tick = side.Leaf(h)
	} else {
		tick = NewTickLevel(price)
		side.Insert(price, tick)
	}
	tick.PushBack(o)

	if b.usrOpenOrders[owner] == nil {
		b.usrOpenOrders[owner] = make(map[uint64]uint64)
	}
	b.usrOpenOrders[owner][id] = price
	b.orderOwners[id] = owner

	b.events.OrderPlaced(OrderPlacedEvent{
		OrderID:   id,
		Owner:     owner,
		IsBid:     isBid,
		Price:     price,
		Quantity:  quantity,
		ExpireTs:  expireTimestamp,
		Timestamp: now,
	})
	return id
}

// CancelOrder removes the owner's open order and unlocks its remaining
// funds. Canceling an order owned by someone else returns ErrUnauthorized;
// an unknown or already closed order returns ErrOrderNotFound.
func (b *OrderBook) CancelOrder(owner string, orderID uint64, now int64) error {
	price, ok := b.usrOpenOrders[owner][orderID]
	if !ok {
		if actual, open := b.orderOwners[orderID]; open && actual != owner {
			return ErrUnauthorized
		}
		return ErrOrderNotFound
	}
	b.removeOrder(orderID, price, CancelReasonUser, now)
	return nil
}

// BatchCancelOrders cancels a set of the owner's orders atomically: if any
// id fails validation, none are canceled.
func (b *OrderBook) BatchCancelOrders(owner string, orderIDs []uint64, now int64) error {
	seen := make(map[uint64]struct{}, len(orderIDs))
	for _, id := range orderIDs {
		if _, dup := seen[id]; dup {
			return ErrOrderNotFound
		}
		seen[id] = struct{}{}
		if _, ok := b.usrOpenOrders[owner][id]; !ok {
			if actual, open := b.orderOwners[id]; open && actual != owner {
				return ErrUnauthorized
			}
			return ErrOrderNotFound
		}
	}
	// Cancel in price order so consecutive ids at the same price reuse the
	// tick located for the first of them instead of re-running a tree find
	// per id.
	ids := make([]uint64, 0, len(orderIDs))
	ids = append(ids, orderIDs...)
	open := b.usrOpenOrders[owner]
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := open[ids[i]], open[ids[j]]
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})

	var (
		side      *critbit.Tree[*TickLevel]
		tick      *TickLevel
		tickH     uint64
		tickPrice uint64
	)
	for _, id := range ids {
		price := open[id]
		s := b.asks
		if IsBidOrderID(id) {
			s = b.bids
		}
		if tick == nil || s != side || price != tickPrice {
			h, ok := s.Find(price)
			if !ok {
				panic(fmt.Sprintf("core: indexed order %d has no tick at price %d", id, price))
			}
			side, tickH = s, h
			tickPrice, tick = s.Leaf(h)
		}
		o, ok := tick.Remove(id)
		if !ok {
			panic(fmt.Sprintf("core: indexed order %d missing from tick %d", id, price))
		}
		if tick.Empty() {
			side.Remove(tickH)
			tick = nil
		}
		b.settleCancel(o, CancelReasonUser, now)
	}
	return nil
}

// CancelAllOrders cancels every open order the owner has, in (price, id)
// order, and returns the canceled ids.
func (b *OrderBook) CancelAllOrders(owner string, now int64) []uint64 {
	open := b.usrOpenOrders[owner]
	if len(open) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(open))
	for id := range open {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := open[ids[i]], open[ids[j]]
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		b.removeOrder(id, open[id], CancelReasonUser, now)
	}
	return ids
}

// removeOrder takes a known open order off its tick, unlocks the remaining
// funds and emits a cancellation.
func (b *OrderBook) removeOrder(orderID, price uint64, reason string, now int64) {
	side := b.asks
	if IsBidOrderID(orderID) {
		side = b.bids
	}
	h, ok := side.Find(price)
	if !ok {
		panic(fmt.Sprintf("core: indexed order %d has no tick at price %d", orderID, price))
	}
	_, tick := side.Leaf(h)
	o, ok := tick.Remove(orderID)
	if !ok {
		panic(fmt.Sprintf("core: indexed order %d missing from tick %d", orderID, price))
	}
	if tick.Empty() {
		side.Remove(h)
	}
	b.settleCancel(o, reason, now)
}

// settleCancel unlocks a removed order's remaining funds and emits the
// cancellation. The order is already off its tick.
func (b *OrderBook) settleCancel(o *Order, reason string, now int64) {
	b.unindexOrder(o)

	if o.IsBid {
		mustSettle(b.custodian.UnlockBalance(o.Owner, b.QuoteAsset, o.LockedQuote))
		o.LockedQuote = 0
	} else {
		mustSettle(b.custodian.UnlockBalance(o.Owner, b.BaseAsset, o.Quantity))
	}

	b.events.OrderCanceled(OrderCanceledEvent{
		OrderID:   o.ID,
		Owner:     o.Owner,
		IsBid:     o.IsBid,
		Price:     o.Price,
		Remaining: o.Quantity,
		Reason:    reason,
		Timestamp: now,
	})
}

func (b *OrderBook) unindexOrder(o *Order) {
	delete(b.usrOpenOrders[o.Owner], o.ID)
	if len(b.usrOpenOrders[o.Owner]) == 0 {
		delete(b.usrOpenOrders, o.Owner)
	}
	delete(b.orderOwners, o.ID)
}
