package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fee rates used across the fee tests: 25 bps taker, 10 bps maker rebate.
const (
	testFeeRate    = uint64(2_500_000)
	testRebateRate = uint64(1_000_000)
)

func TestImmediateOrCancelSweepsLevel(t *testing.T) {
	b, cust := newTestBook(t, 0, 0)
	cust.deposit("m1", "BASE", 100)
	cust.deposit("m2", "BASE", 50)
	cust.deposit("taker", "QUOTE", 2_000)

	_, err := b.PlaceLimitOrder("m1", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	m2, err := b.PlaceLimitOrder("m2", scaled(10), 50, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceLimitOrder("taker", scaled(10), 120, true, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)

	// 100 from the first maker, 20 from the second, nothing rests.
	assert.Equal(t, uint64(120), res.BaseFilled)
	assert.Equal(t, uint64(1_200), res.QuoteSpent)
	assert.False(t, res.Rested)
	assert.Zero(t, res.Unfilled)
	assert.Equal(t, uint64(120), cust.AvailableBalance("taker", "BASE"))
	assert.Equal(t, uint64(800), cust.AvailableBalance("taker", "QUOTE"))

	// The second maker keeps 30 on the book.
	asks := b.Level2AskSide(MinPrice, MaxPrice, testNow)
	require.Len(t, asks, 1)
	assert.Equal(t, uint64(30), asks[0].Quantity)
	o, err := b.OrderStatus("m2", m2.OrderID)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), o.Quantity)
	assert.Equal(t, uint64(30), cust.LockedBalance("m2", "BASE"))
}

func TestIOCDiscardsRemainder(t *testing.T) {
	b, cust := newTestBook(t, 0, 0)
	cust.deposit("maker", "BASE", 50)
	cust.deposit("taker", "QUOTE", 2_000)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 50, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceLimitOrder("taker", scaled(10), 120, true, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), res.BaseFilled)
	assert.Equal(t, uint64(70), res.Unfilled)
	assert.False(t, res.Rested)
	assert.Empty(t, b.OpenOrders("taker"))
}

func TestPriceTimePriority(t *testing.T) {
	sink := &recordSink{}
	b, cust := newTestBook(t, 0, 0, WithEventSink(sink))
	cust.deposit("first", "BASE", 100)
	cust.deposit("second", "BASE", 100)
	cust.deposit("cheap", "BASE", 100)
	cust.deposit("taker", "QUOTE", 10_000)

	// Same price: arrival order wins. Better price: beats both.
	_, err := b.PlaceLimitOrder("first", scaled(11), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	_, err = b.PlaceLimitOrder("second", scaled(11), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	_, err = b.PlaceLimitOrder("cheap", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceLimitOrder("taker", scaled(11), 250, true, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), res.BaseFilled)

	require.Len(t, sink.filled, 3)
	assert.Equal(t, "cheap", sink.filled[0].MakerOwner)
	assert.Equal(t, scaled(10), sink.filled[0].Price)
	assert.Equal(t, "first", sink.filled[1].MakerOwner)
	assert.Equal(t, uint64(100), sink.filled[1].BaseQuantity)
	assert.Equal(t, "second", sink.filled[2].MakerOwner)
	assert.Equal(t, uint64(50), sink.filled[2].BaseQuantity)
}

func TestBidFeesConserveValue(t *testing.T) {
	b, cust := newTestBook(t, testFeeRate, testRebateRate)
	cust.deposit("maker", "BASE", 100)
	cust.deposit("taker", "QUOTE", 1_003)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceLimitOrder("taker", scaled(10), 100, true, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)

	// Notional 1000, commission ceil(2.5)=3, rebate trunc(1.0)=1.
	assert.Equal(t, uint64(1_003), res.QuoteSpent)
	assert.Equal(t, uint64(0), cust.AvailableBalance("taker", "QUOTE"))
	assert.Equal(t, uint64(100), cust.AvailableBalance("taker", "BASE"))
	assert.Equal(t, uint64(1_001), cust.AvailableBalance("maker", "QUOTE"))
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "BASE"))

	baseFees, quoteFees := b.TradingFees()
	assert.Zero(t, baseFees)
	assert.Equal(t, uint64(2), quoteFees)

	// Taker outflow equals maker inflow plus the pool's cut.
	assert.Equal(t, res.QuoteSpent, uint64(1_001)+quoteFees)
}

func TestAskFeesChargedInBase(t *testing.T) {
	b, cust := newTestBook(t, testFeeRate, testRebateRate)
	cust.deposit("maker", "QUOTE", 1_000)
	cust.deposit("taker", "BASE", 101)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, true, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceLimitOrder("taker", scaled(10), 100, false, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)

	// Commission ceil(100*0.25%)=1 base, rebate trunc(100*0.1%)=0.
	assert.Equal(t, uint64(101), res.BaseSpent)
	assert.Equal(t, uint64(1_000), res.QuoteReceived)
	assert.Equal(t, uint64(0), cust.AvailableBalance("taker", "BASE"))
	assert.Equal(t, uint64(1_000), cust.AvailableBalance("taker", "QUOTE"))
	assert.Equal(t, uint64(100), cust.AvailableBalance("maker", "BASE"))
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "QUOTE"))

	baseFees, quoteFees := b.TradingFees()
	assert.Equal(t, uint64(1), baseFees)
	assert.Zero(t, quoteFees)
}

func TestTakerNeedsCommissionFunds(t *testing.T) {
	b, cust := newTestBook(t, testFeeRate, testRebateRate)
	cust.deposit("maker", "QUOTE", 1_000)
	cust.deposit("taker", "BASE", 100)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, true, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	// 100 base covers the fill but not the 1 unit commission.
	_, err = b.PlaceLimitOrder("taker", scaled(10), 100, false, testExpiry, ImmediateOrCancel, testNow)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Nothing moved.
	assert.Equal(t, uint64(100), cust.AvailableBalance("taker", "BASE"))
	assert.Equal(t, uint64(1_000), cust.LockedBalance("maker", "QUOTE"))
	o, err := b.OrderStatus("maker", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), o.Quantity)
}

func TestFillOrKill(t *testing.T) {
	b, cust := newTestBook(t, 0, 0)
	cust.deposit("maker", "BASE", 100)
	cust.deposit("taker", "QUOTE", 10_000)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	// 120 cannot fill in full: abort with zero state change.
	_, err = b.PlaceLimitOrder("taker", scaled(10), 120, true, testExpiry, FillOrKill, testNow)
	assert.ErrorIs(t, err, ErrFillOrKill)
	assert.Equal(t, uint64(10_000), cust.AvailableBalance("taker", "QUOTE"))
	assert.Equal(t, uint64(100), cust.LockedBalance("maker", "BASE"))

	res, err := b.PlaceLimitOrder("taker", scaled(10), 100, true, testExpiry, FillOrKill, testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.BaseFilled)
	assert.Zero(t, res.Unfilled)
}

func TestPostOrAbort(t *testing.T) {
	b, cust := newTestBook(t, 0, 0)
	cust.deposit("maker", "BASE", 100)
	cust.deposit("taker", "QUOTE", 10_000)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	// Crossing a live ask aborts.
	_, err = b.PlaceLimitOrder("taker", scaled(10), 100, true, testExpiry, PostOrAbort, testNow)
	assert.ErrorIs(t, err, ErrPostOrAbort)
	assert.Equal(t, uint64(10_000), cust.AvailableBalance("taker", "QUOTE"))

	// Below the spread it rests as a pure maker.
	res, err := b.PlaceLimitOrder("taker", scaled(9), 100, true, testExpiry, PostOrAbort, testNow)
	require.NoError(t, err)
	assert.True(t, res.Rested)
	assert.Zero(t, res.BaseFilled)
}

func TestPostOrAbortEvictsExpiredCrossers(t *testing.T) {
	sink := &recordSink{}
	b, cust := newTestBook(t, 0, 0, WithEventSink(sink))
	cust.deposit("maker", "BASE", 100)
	cust.deposit("taker", "QUOTE", 10_000)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, false, 2_000, NoRestriction, testNow)
	require.NoError(t, err)

	// The crossing ask has expired, so the post-only bid sees no fill: the
	// stale maker is evicted and the bid rests.
	res, err := b.PlaceLimitOrder("taker", scaled(10), 100, true, testExpiry, PostOrAbort, 5_000)
	require.NoError(t, err)
	assert.True(t, res.Rested)

	assert.Equal(t, uint64(100), cust.AvailableBalance("maker", "BASE"))
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "BASE"))
	require.Len(t, sink.canceled, 1)
	assert.Equal(t, CancelReasonExpired, sink.canceled[0].Reason)

	bestBid, hasBid, _, hasAsk := b.MarketPrice()
	assert.False(t, hasAsk)
	require.True(t, hasBid)
	assert.Equal(t, scaled(10), bestBid)
}

func TestExpiredMakerEvictedDuringMatch(t *testing.T) {
	sink := &recordSink{}
	b, cust := newTestBook(t, 0, 0, WithEventSink(sink))
	cust.deposit("stale", "BASE", 100)
	cust.deposit("live", "BASE", 100)
	cust.deposit("taker", "QUOTE", 10_000)

	_, err := b.PlaceLimitOrder("stale", scaled(10), 100, false, 2_000, NoRestriction, testNow)
	require.NoError(t, err)
	_, err = b.PlaceLimitOrder("live", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceLimitOrder("taker", scaled(10), 100, true, testExpiry, ImmediateOrCancel, 5_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.BaseFilled)

	// The expired maker never trades: funds back, not a counterparty.
	assert.Equal(t, uint64(100), cust.AvailableBalance("stale", "BASE"))
	assert.Equal(t, uint64(1_000), cust.AvailableBalance("live", "QUOTE"))
	require.Len(t, sink.filled, 1)
	assert.Equal(t, "live", sink.filled[0].MakerOwner)
	require.Len(t, sink.canceled, 1)
	assert.Equal(t, "stale", sink.canceled[0].Owner)
	assert.Equal(t, CancelReasonExpired, sink.canceled[0].Reason)
}

func TestMarketOrderDrainsSide(t *testing.T) {
	b, cust := newTestBook(t, 0, 0)
	cust.deposit("m1", "BASE", 100)
	cust.deposit("m2", "BASE", 50)
	cust.deposit("taker", "QUOTE", 10_000)

	_, err := b.PlaceLimitOrder("m1", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	_, err = b.PlaceLimitOrder("m2", scaled(12), 50, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceMarketOrder("taker", 200, true, testNow)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), res.BaseFilled)
	assert.Equal(t, uint64(50), res.Unfilled)
	assert.Equal(t, uint64(1_600), res.QuoteSpent)

	_, _, _, hasAsk := b.MarketPrice()
	assert.False(t, hasAsk)
}

func TestMarketOrderValidation(t *testing.T) {
	b, _ := newTestBook(t, 0, 0)

	_, err := b.PlaceMarketOrder("taker", 0, true, testNow)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = b.PlaceMarketOrder("taker", 105, true, testNow)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	// An empty book fills nothing and charges nothing.
	res, err := b.PlaceMarketOrder("taker", 100, true, testNow)
	require.NoError(t, err)
	assert.Zero(t, res.BaseFilled)
	assert.Equal(t, uint64(100), res.Unfilled)
}

func TestMarketOrderWithQuoteBudget(t *testing.T) {
	b, cust := newTestBook(t, testFeeRate, 0)
	cust.deposit("maker", "BASE", 100)
	cust.deposit("taker", "QUOTE", 500)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceMarketOrderWithQuote("taker", 500, testNow)
	require.NoError(t, err)

	// Net budget 500/1.0025 = 498, affording 49.8 base, floored to the lot
	// multiple 40. Cost 400 + ceil(1.0) commission = 401; 99 stays unspent.
	assert.Equal(t, uint64(40), res.BaseFilled)
	assert.Equal(t, uint64(401), res.QuoteSpent)
	assert.Equal(t, uint64(99), cust.AvailableBalance("taker", "QUOTE"))
	assert.Equal(t, uint64(40), cust.AvailableBalance("taker", "BASE"))

	o, err := b.OrderStatus("maker", MinAskOrderID)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), o.Quantity)
}

func TestMarketOrderWithQuoteDrainsMaker(t *testing.T) {
	b, cust := newTestBook(t, testFeeRate, 0)
	cust.deposit("maker", "BASE", 100)
	cust.deposit("taker", "QUOTE", 2_000)

	_, err := b.PlaceLimitOrder("maker", scaled(10), 100, false, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)

	res, err := b.PlaceMarketOrderWithQuote("taker", 2_000, testNow)
	require.NoError(t, err)

	// Draining the maker costs 1000 + ceil(2.5) = 1003; the rest of the
	// budget finds no liquidity.
	assert.Equal(t, uint64(100), res.BaseFilled)
	assert.Equal(t, uint64(1_003), res.QuoteSpent)
	assert.Equal(t, uint64(997), cust.AvailableBalance("taker", "QUOTE"))
}

func TestPartialFillThenCancelUnlocksRemainder(t *testing.T) {
	b, cust := newTestBook(t, 0, 0)
	cust.deposit("maker", "QUOTE", 1_000)
	cust.deposit("taker", "BASE", 40)

	bid, err := b.PlaceLimitOrder("maker", scaled(10), 100, true, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), cust.LockedBalance("maker", "QUOTE"))

	_, err = b.PlaceLimitOrder("taker", scaled(10), 40, false, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)

	// 400 of the lock paid out to the taker, 600 still held.
	assert.Equal(t, uint64(600), cust.LockedBalance("maker", "QUOTE"))

	require.NoError(t, b.CancelOrder("maker", bid.OrderID, testNow))
	assert.Equal(t, uint64(600), cust.AvailableBalance("maker", "QUOTE"))
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "QUOTE"))
}

// newFractionalBook allows sub-unit prices so bid notionals truncate: a half
// tick and single-unit lots make floor(qty*price) diverge from the sum of the
// per-fill floors.
func newFractionalBook(t *testing.T) (*OrderBook, *testCustodian) {
	t.Helper()
	cust := newTestCustodian()
	b, err := NewOrderBook(Params{
		BaseAsset:  "BASE",
		QuoteAsset: "QUOTE",
		TickSize:   FloatScaling / 2,
		LotSize:    1,
	}, cust)
	require.NoError(t, err)
	return b, cust
}

func TestBidLockResidualReturnedOnFinalFill(t *testing.T) {
	b, cust := newFractionalBook(t)
	cust.deposit("maker", "QUOTE", 10)
	cust.deposit("taker", "BASE", 3)

	// 3 base at 1.5 locks floor(4.5) = 4 quote, but each single-unit fill
	// moves only floor(1.5) = 1.
	price := FloatScaling + FloatScaling/2
	_, err := b.PlaceLimitOrder("maker", price, 3, true, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	require.Equal(t, uint64(4), cust.LockedBalance("maker", "QUOTE"))

	for i := 0; i < 3; i++ {
		res, err := b.PlaceLimitOrder("taker", price, 1, false, testExpiry, ImmediateOrCancel, testNow)
		require.NoError(t, err)
		require.Equal(t, uint64(1), res.BaseFilled)
	}

	// The fills moved 3 of the 4 locked; the last fill returns the rest.
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "QUOTE"))
	assert.Equal(t, uint64(7), cust.AvailableBalance("maker", "QUOTE"))
	assert.Equal(t, uint64(3), cust.AvailableBalance("maker", "BASE"))
	assert.Equal(t, uint64(3), cust.AvailableBalance("taker", "QUOTE"))
}

func TestBidLockResidualReturnedOnCancel(t *testing.T) {
	b, cust := newFractionalBook(t)
	cust.deposit("maker", "QUOTE", 10)
	cust.deposit("taker", "BASE", 2)

	price := FloatScaling + FloatScaling/2
	bid, err := b.PlaceLimitOrder("maker", price, 3, true, testExpiry, NoRestriction, testNow)
	require.NoError(t, err)
	require.Equal(t, uint64(4), cust.LockedBalance("maker", "QUOTE"))

	// Two fills debit 2, leaving 2 locked while the remaining quantity's
	// own notional floors to 1.
	for i := 0; i < 2; i++ {
		_, err := b.PlaceLimitOrder("taker", price, 1, false, testExpiry, ImmediateOrCancel, testNow)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(2), cust.LockedBalance("maker", "QUOTE"))

	// Cancel returns everything still locked, not just the floored notional.
	require.NoError(t, b.CancelOrder("maker", bid.OrderID, testNow))
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "QUOTE"))
	assert.Equal(t, uint64(8), cust.AvailableBalance("maker", "QUOTE"))
}

func TestExpiredBidEvictionReleasesFullLock(t *testing.T) {
	b, cust := newFractionalBook(t)
	cust.deposit("maker", "QUOTE", 10)
	cust.deposit("seller", "BASE", 5)

	price := FloatScaling + FloatScaling/2
	_, err := b.PlaceLimitOrder("maker", price, 3, true, int64(2_000), NoRestriction, testNow)
	require.NoError(t, err)

	// One fill before expiry, then a matching walk past the stale bid
	// evicts it and releases the tracked remainder.
	_, err = b.PlaceLimitOrder("seller", price, 1, false, testExpiry, ImmediateOrCancel, testNow)
	require.NoError(t, err)
	require.Equal(t, uint64(3), cust.LockedBalance("maker", "QUOTE"))

	_, err = b.PlaceMarketOrder("seller", 1, false, int64(3_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cust.LockedBalance("maker", "QUOTE"))
	assert.Equal(t, uint64(9), cust.AvailableBalance("maker", "QUOTE"))
}

func BenchmarkPlaceLimitOrder(b *testing.B) {
	cust := newTestCustodian()
	book, err := NewOrderBook(Params{
		BaseAsset:  "BASE",
		QuoteAsset: "QUOTE",
		TickSize:   1,
		LotSize:    1,
	}, cust)
	if err != nil {
		b.Fatal(err)
	}
	cust.deposit("maker", "BASE", ^uint64(0)/2)
	cust.deposit("taker", "QUOTE", ^uint64(0)/2)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		price := scaled(uint64(100 + i%50))
		if _, err := book.PlaceLimitOrder("maker", price, 10, false, testExpiry, NoRestriction, testNow); err != nil {
			b.Fatal(err)
		}
		if i%4 == 3 {
			if _, err := book.PlaceMarketOrder("taker", 40, true, testNow); err != nil {
				b.Fatal(err)
			}
		}
	}
}
