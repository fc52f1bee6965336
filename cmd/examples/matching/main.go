package main

import (
	"fmt"
	"time"

	"github.com/erain9/deepmatch/pkg/backend/memory"
	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/server"
)

// A walk through the matching engine: price-time priority, order
// restrictions and the fee model.
func main() {
	custodian := memory.NewCustodian()

	book, err := core.NewOrderBook(core.Params{
		BaseAsset:       "BTC",
		QuoteAsset:      "USD",
		TickSize:        core.FloatScaling / 100,
		LotSize:         core.FloatScaling / 1000,
		TakerFeeRate:    2_500_000, // 25 bps
		MakerRebateRate: 1_000_000, // 10 bps
	}, custodian)
	if err != nil {
		panic(err)
	}

	custodian.IncreaseAvailable("maker", "BTC", 100*core.FloatScaling)
	custodian.IncreaseAvailable("taker", "USD", 10_000*core.FloatScaling)

	now := time.Now().UnixMilli()
	expireAt := now + time.Hour.Milliseconds()

	fmt.Println("STEP 1: Resting sell orders at three price levels")
	fmt.Println("-------------------------------------------------")

	for _, lvl := range []struct {
		price, qty float64
	}{
		{10.00, 5},
		{10.50, 3},
		{11.00, 7},
	} {
		price := uint64(lvl.price * float64(core.FloatScaling))
		qty := uint64(lvl.qty * float64(core.FloatScaling))
		res, err := book.PlaceLimitOrder("maker", price, qty, false, expireAt, core.NoRestriction, now)
		if err != nil {
			panic(err)
		}
		fmt.Printf("Added sell order %d: %s BTC at $%s\n",
			res.OrderID, server.FormatScaled(qty), server.FormatScaled(price))
	}
	printDepth(book, now)

	fmt.Println("\nSTEP 2: A buy that takes part of the best level")
	fmt.Println("-----------------------------------------------")

	res, err := book.PlaceLimitOrder("taker", 10*core.FloatScaling, 3*core.FloatScaling, true, expireAt, core.NoRestriction, now)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Buy filled %s BTC, spent %s USD (incl. commission)\n",
		server.FormatScaled(res.BaseFilled), server.FormatScaled(res.QuoteSpent))
	printDepth(book, now)

	fmt.Println("\nSTEP 3: A buy that crosses two levels")
	fmt.Println("-------------------------------------")

	res, err = book.PlaceLimitOrder("taker", 105*core.FloatScaling/10, 6*core.FloatScaling, true, expireAt, core.NoRestriction, now)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Buy filled %s BTC, spent %s USD, %s BTC rested as order %d\n",
		server.FormatScaled(res.BaseFilled), server.FormatScaled(res.QuoteSpent),
		server.FormatScaled(6*core.FloatScaling-res.BaseFilled), res.OrderID)
	printDepth(book, now)

	fmt.Println("\nSTEP 4: Restrictions")
	fmt.Println("--------------------")

	// FILL_OR_KILL fails when the book cannot satisfy the full quantity
	_, err = book.PlaceLimitOrder("taker", 11*core.FloatScaling, 50*core.FloatScaling, true, expireAt, core.FillOrKill, now)
	fmt.Printf("FILL_OR_KILL for 50 BTC: %v\n", err)

	// POST_OR_ABORT fails when the order would trade immediately
	_, err = book.PlaceLimitOrder("taker", 11*core.FloatScaling, core.FloatScaling, true, expireAt, core.PostOrAbort, now)
	fmt.Printf("POST_OR_ABORT at $11: %v\n", err)

	// IMMEDIATE_OR_CANCEL fills what it can and rests nothing
	res, err = book.PlaceLimitOrder("taker", 11*core.FloatScaling, 50*core.FloatScaling, true, expireAt, core.ImmediateOrCancel, now)
	if err != nil {
		panic(err)
	}
	fmt.Printf("IMMEDIATE_OR_CANCEL for 50 BTC: filled %s, unfilled %s, rested=%v\n",
		server.FormatScaled(res.BaseFilled), server.FormatScaled(res.Unfilled), res.Rested)
	printDepth(book, now)

	fmt.Println("\nSTEP 5: Fees")
	fmt.Println("------------")

	baseFees, quoteFees := book.TradingFees()
	fmt.Printf("Accrued fee pools: %s BTC, %s USD\n",
		server.FormatScaled(baseFees), server.FormatScaled(quoteFees))
}

func printDepth(book *core.OrderBook, now int64) {
	fmt.Println("\nOrder book:")
	asks := book.Level2AskSide(0, 1_000*core.FloatScaling, now)
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Printf("  ASK %8s @ $%s\n",
			server.FormatScaled(asks[i].Quantity), server.FormatScaled(asks[i].Price))
	}
	bids := book.Level2BidSide(0, 1_000*core.FloatScaling, now)
	for _, lvl := range bids {
		fmt.Printf("  BID %8s @ $%s\n",
			server.FormatScaled(lvl.Quantity), server.FormatScaled(lvl.Price))
	}
	if len(asks) == 0 && len(bids) == 0 {
		fmt.Println("  (empty)")
	}
}
