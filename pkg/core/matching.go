package core

import "fmt"

// Matching runs in two phases. A plan is built from a read-only walk of the
// opposite side of the book: the ordered fills the taker would receive plus
// the expired makers the walk crossed. The caller validates restrictions and
// balances against the plan totals, and only then applies it. An operation
// that fails validation leaves the book and the custodian untouched.

type stepKind int

const (
	stepFill stepKind = iota
	stepEvict
)

// matchStep is one fill against a maker, or one lazy eviction of an expired
// maker the matching walk crossed. Commission and rebate are denominated in
// the taker's input asset: quote for bid takers, base for ask takers.
type matchStep struct {
	kind  stepKind
	price uint64
	maker *Order

	base           uint64 // filled base quantity
	quote          uint64 // base notional at the maker's price
	commission     uint64 // taker fee, rounded up
	rebate         uint64 // maker rebate, rounded down
	makerRemaining uint64
}

// matchPlan is the full outcome of matching one taker order. Steps are in
// strict price-time order. The quote totals are populated for bid takers,
// the base totals for ask takers; baseFilled for both.
type matchPlan struct {
	steps []matchStep

	baseFilled    uint64
	quoteSpent    uint64 // bid taker: notionals plus commissions
	quoteReceived uint64 // ask taker: maker notionals paid out
	baseSpent     uint64 // ask taker: filled quantity plus commissions
}

// planBid walks the ask side from the best (lowest) price upward and plans
// fills for a bid taker of the given base quantity, stopping past priceLimit.
func (b *OrderBook) planBid(quantity, priceLimit uint64, now int64) *matchPlan {
	plan := &matchPlan{}
	remaining := quantity
	h, ok := b.asks.MinLeaf()
	for ok {
		price, tick := b.asks.Leaf(h)
		if price > priceLimit {
			break
		}
		for _, maker := range tick.Orders() {
			if remaining == 0 {
				return plan
			}
			if maker.Expired(now) {
				plan.steps = append(plan.steps, matchStep{kind: stepEvict, price: price, maker: maker})
				continue
			}
			base := remaining
			if maker.Quantity < base {
				base = maker.Quantity
			}
			quote := mulTrunc(base, price)
			commission := mulCeil(quote, b.takerFeeRate)
			plan.steps = append(plan.steps, matchStep{
				kind:           stepFill,
				price:          price,
				maker:          maker,
				base:           base,
				quote:          quote,
				commission:     commission,
				rebate:         mulTrunc(quote, b.makerRebateRate),
				makerRemaining: maker.Quantity - base,
			})
			plan.baseFilled += base
			plan.quoteSpent += quote + commission
			remaining -= base
		}
		if remaining == 0 {
			break
		}
		h, ok = b.asks.NextLeaf(price)
	}
	return plan
}

// planBidWithQuote plans fills for a bid taker capped by a quote budget
// instead of a base quantity. When the budget cannot drain the maker at the
// front of the queue, the affordable base amount is derived by backing the
// commission out of the budget and flooring to a lot multiple; any budget a
// partial lot leaves over stays unspent.
func (b *OrderBook) planBidWithQuote(quoteBudget, priceLimit uint64, now int64) *matchPlan {
	plan := &matchPlan{}
	remaining := quoteBudget
	h, ok := b.asks.MinLeaf()
	for ok {
		price, tick := b.asks.Leaf(h)
		if price > priceLimit {
			break
		}
		for _, maker := range tick.Orders() {
			if remaining == 0 {
				return plan
			}
			if maker.Expired(now) {
				plan.steps = append(plan.steps, matchStep{kind: stepEvict, price: price, maker: maker})
				continue
			}
			base := maker.Quantity
			quote := mulTrunc(base, price)
			commission := mulCeil(quote, b.takerFeeRate)
			if quote+commission > remaining {
				netQuote, _ := mulDiv(remaining, FloatScaling, FloatScaling+b.takerFeeRate)
				base = divTrunc(netQuote, price)
				base -= base % b.lotSize
				if base == 0 {
					return plan
				}
				quote = mulTrunc(base, price)
				commission = mulCeil(quote, b.takerFeeRate)
			}
			plan.steps = append(plan.steps, matchStep{
				kind:           stepFill,
				price:          price,
				maker:          maker,
				base:           base,
				quote:          quote,
				commission:     commission,
				rebate:         mulTrunc(quote, b.makerRebateRate),
				makerRemaining: maker.Quantity - base,
			})
			plan.baseFilled += base
			plan.quoteSpent += quote + commission
			remaining -= quote + commission
		}
		if remaining == 0 {
			break
		}
		h, ok = b.asks.NextLeaf(price)
	}
	return plan
}

// planAsk walks the bid side from the best (highest) price downward and plans
// fills for an ask taker of the given base quantity, stopping below
// priceLimit.
func (b *OrderBook) planAsk(quantity, priceLimit uint64, now int64) *matchPlan {
	plan := &matchPlan{}
	remaining := quantity
	h, ok := b.bids.MaxLeaf()
	for ok {
		price, tick := b.bids.Leaf(h)
		if price < priceLimit {
			break
		}
		for _, maker := range tick.Orders() {
			if remaining == 0 {
				return plan
			}
			if maker.Expired(now) {
				plan.steps = append(plan.steps, matchStep{kind: stepEvict, price: price, maker: maker})
				continue
			}
			base := remaining
			if maker.Quantity < base {
				base = maker.Quantity
			}
			commission := mulCeil(base, b.takerFeeRate)
			plan.steps = append(plan.steps, matchStep{
				kind:           stepFill,
				price:          price,
				maker:          maker,
				base:           base,
				quote:          mulTrunc(base, price),
				commission:     commission,
				rebate:         mulTrunc(base, b.makerRebateRate),
				makerRemaining: maker.Quantity - base,
			})
			plan.baseFilled += base
			plan.baseSpent += base + commission
			plan.quoteReceived += mulTrunc(base, price)
			remaining -= base
		}
		if remaining == 0 {
			break
		}
		h, ok = b.bids.PreviousLeaf(price)
	}
	return plan
}

// applyBidPlan settles a validated bid plan: debits the taker's quote, pays
// makers their notional plus rebate, releases maker base to the taker and
// accrues the net commission to the quote fee pool. Mutates the ask side.
func (b *OrderBook) applyBidPlan(taker string, plan *matchPlan, now int64) {
	b.applyPlan(taker, plan, now, true)
}

// applyAskPlan settles a validated ask plan, the mirror image of
// applyBidPlan: base commissions, quote paid out of maker locks, net fee to
// the base pool. Mutates the bid side.
func (b *OrderBook) applyAskPlan(taker string, plan *matchPlan, now int64) {
	b.applyPlan(taker, plan, now, false)
}

func (b *OrderBook) applyPlan(taker string, plan *matchPlan, now int64, takerIsBid bool) {
	makerSide := b.bids
	if takerIsBid {
		makerSide = b.asks
	}

	var (
		tick      *TickLevel
		tickH     uint64
		tickPrice uint64
	)
	flush := func() {
		if tick != nil && tick.Empty() {
			makerSide.Remove(tickH)
		}
		tick = nil
	}

	for i := range plan.steps {
		s := &plan.steps[i]
		if tick == nil || tickPrice != s.price {
			flush()
			h, ok := makerSide.Find(s.price)
			if !ok {
				panic(fmt.Sprintf("core: planned tick level %d vanished", s.price))
			}
			tickH = h
			tickPrice, tick = makerSide.Leaf(h)
		}

		maker := s.maker
		if s.kind == stepEvict {
			tick.Remove(maker.ID)
			b.unindexOrder(maker)
			if takerIsBid {
				mustSettle(b.custodian.UnlockBalance(maker.Owner, b.BaseAsset, maker.Quantity))
			} else {
				mustSettle(b.custodian.UnlockBalance(maker.Owner, b.QuoteAsset, maker.LockedQuote))
				maker.LockedQuote = 0
			}
			b.events.OrderCanceled(OrderCanceledEvent{
				OrderID:   maker.ID,
				Owner:     maker.Owner,
				IsBid:     maker.IsBid,
				Price:     maker.Price,
				Remaining: maker.Quantity,
				Reason:    CancelReasonExpired,
				Timestamp: now,
			})
			continue
		}

		if takerIsBid {
			// Taker pays notional plus commission in quote, maker's locked
			// base moves to the taker, maker collects notional plus rebate.
			mustSettle(b.custodian.DecreaseAvailable(taker, b.QuoteAsset, s.quote+s.commission))
			b.custodian.IncreaseAvailable(maker.Owner, b.QuoteAsset, s.quote+s.rebate)
			mustSettle(b.custodian.DecreaseLocked(maker.Owner, b.BaseAsset, s.base))
			b.custodian.IncreaseAvailable(taker, b.BaseAsset, s.base)
			b.quoteFees += s.commission - s.rebate
		} else {
			// Taker pays quantity plus commission in base, maker's locked
			// notional moves to the taker, maker collects quantity plus
			// rebate.
			mustSettle(b.custodian.DecreaseAvailable(taker, b.BaseAsset, s.base+s.commission))
			b.custodian.IncreaseAvailable(maker.Owner, b.BaseAsset, s.base+s.rebate)
			mustSettle(b.custodian.DecreaseLocked(maker.Owner, b.QuoteAsset, s.quote))
			b.custodian.IncreaseAvailable(taker, b.QuoteAsset, s.quote)
			maker.LockedQuote -= s.quote
			b.baseFees += s.commission - s.rebate
		}

		maker.Quantity = s.makerRemaining
		if maker.Quantity == 0 {
			// The per-fill notionals truncate independently of the lock
			// taken at placement, so a drained bid can leave a locked
			// remainder behind. Return it to the maker.
			if maker.LockedQuote > 0 {
				mustSettle(b.custodian.UnlockBalance(maker.Owner, b.QuoteAsset, maker.LockedQuote))
				maker.LockedQuote = 0
			}
			tick.Remove(maker.ID)
			b.unindexOrder(maker)
		}
		b.events.OrderFilled(OrderFilledEvent{
			MakerOrderID:    maker.ID,
			MakerOwner:      maker.Owner,
			TakerOwner:      taker,
			TakerIsBid:      takerIsBid,
			Price:           s.price,
			BaseQuantity:    s.base,
			QuoteQuantity:   s.quote,
			TakerCommission: s.commission,
			MakerRebate:     s.rebate,
			MakerRemaining:  s.makerRemaining,
			Timestamp:       now,
		})
	}
	flush()
}

// mustSettle guards custodian transfers inside apply. Plans are validated
// against balances before any mutation, so a failure here means the
// custodian broke its contract.
func mustSettle(err error) {
	if err != nil {
		panic(fmt.Sprintf("core: custodian rejected a validated transfer: %v", err))
	}
}
