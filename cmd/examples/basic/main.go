package main

import (
	"fmt"
	"time"

	"github.com/erain9/deepmatch/pkg/backend/memory"
	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/server"
)

func main() {
	custodian := memory.NewCustodian()

	book, err := core.NewOrderBook(core.Params{
		BaseAsset:  "BTC",
		QuoteAsset: "USD",
		TickSize:   core.FloatScaling / 100,  // $0.01
		LotSize:    core.FloatScaling / 1000, // 0.001 BTC
	}, custodian)
	if err != nil {
		panic(err)
	}

	// Fund both sides
	custodian.IncreaseAvailable("alice", "BTC", 10*core.FloatScaling)
	custodian.IncreaseAvailable("bob", "USD", 1_000*core.FloatScaling)

	now := time.Now().UnixMilli()
	expireAt := now + time.Hour.Milliseconds()

	// Alice rests a sell of 10 BTC at $10
	sellRes, err := book.PlaceLimitOrder("alice", 10*core.FloatScaling, 10*core.FloatScaling, false, expireAt, core.NoRestriction, now)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created sell order: %d\n", sellRes.OrderID)

	// Bob crosses with a buy of 5 BTC at $10
	buyRes, err := book.PlaceLimitOrder("bob", 10*core.FloatScaling, 5*core.FloatScaling, true, expireAt, core.NoRestriction, now)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Trade executed: buy filled %s BTC for %s USD\n",
		server.FormatScaled(buyRes.BaseFilled), server.FormatScaled(buyRes.QuoteSpent))

	// The unmatched half of the sell is still on the book
	remaining, err := book.OrderStatus("alice", sellRes.OrderID)
	if err != nil {
		panic(err)
	}

	fmt.Println("\nSummary:")
	fmt.Printf("- Sell order %d: %s BTC remaining at $%s\n",
		remaining.ID,
		server.FormatScaled(remaining.Quantity),
		server.FormatScaled(remaining.Price))
	fmt.Printf("- Alice: %s BTC available, %s BTC locked, %s USD available\n",
		server.FormatScaled(custodian.AvailableBalance("alice", "BTC")),
		server.FormatScaled(custodian.LockedBalance("alice", "BTC")),
		server.FormatScaled(custodian.AvailableBalance("alice", "USD")))
	fmt.Printf("- Bob: %s BTC available, %s USD available\n",
		server.FormatScaled(custodian.AvailableBalance("bob", "BTC")),
		server.FormatScaled(custodian.AvailableBalance("bob", "USD")))
}
