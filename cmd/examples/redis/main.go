package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisbackend "github.com/erain9/deepmatch/pkg/backend/redis"
	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/server"
)

const (
	redisAddr = "localhost:6379"
	redisDB   = 0
	prefix    = "deepmatch-example"
)

func main() {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: "", // no password set
		DB:       redisDB,
	})

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	fmt.Printf("Redis connection established: %s\n", pong)

	// Start from a clean namespace
	keys, err := client.Keys(context.Background(), prefix+":*").Result()
	if err == nil && len(keys) > 0 {
		client.Del(context.Background(), keys...)
	}

	// Balances live in Redis; the book itself stays in memory
	custodian := redisbackend.NewCustodian(client, prefix, nil)

	book, err := core.NewOrderBook(core.Params{
		BaseAsset:  "BTC",
		QuoteAsset: "USD",
		TickSize:   core.FloatScaling / 100,
		LotSize:    core.FloatScaling / 1000,
	}, custodian)
	if err != nil {
		panic(err)
	}

	custodian.IncreaseAvailable("alice", "BTC", 10*core.FloatScaling)
	custodian.IncreaseAvailable("bob", "USD", 1_000*core.FloatScaling)

	now := time.Now().UnixMilli()
	expireAt := now + time.Hour.Milliseconds()

	sellRes, err := book.PlaceLimitOrder("alice", 10*core.FloatScaling, 10*core.FloatScaling, false, expireAt, core.NoRestriction, now)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Created sell order: %d\n", sellRes.OrderID)

	buyRes, err := book.PlaceLimitOrder("bob", 10*core.FloatScaling, 5*core.FloatScaling, true, expireAt, core.NoRestriction, now)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Trade executed: buy filled %s BTC for %s USD\n",
		server.FormatScaled(buyRes.BaseFilled), server.FormatScaled(buyRes.QuoteSpent))

	// Show how the custodian stores the settled balances in Redis
	fmt.Println("\nBalances stored in Redis:")
	for _, user := range []string{"alice", "bob"} {
		for _, asset := range []string{"BTC", "USD"} {
			key := fmt.Sprintf("%s:balance:%s:%s", prefix, user, asset)
			fields, err := client.HGetAll(context.Background(), key).Result()
			if err != nil || len(fields) == 0 {
				continue
			}
			fmt.Printf("- %s: %v\n", key, fields)
		}
	}

	fmt.Println("\nSummary:")
	fmt.Printf("- Alice: %s BTC available, %s BTC locked, %s USD available\n",
		server.FormatScaled(custodian.AvailableBalance("alice", "BTC")),
		server.FormatScaled(custodian.LockedBalance("alice", "BTC")),
		server.FormatScaled(custodian.AvailableBalance("alice", "USD")))
	fmt.Printf("- Bob: %s BTC available, %s USD available\n",
		server.FormatScaled(custodian.AvailableBalance("bob", "BTC")),
		server.FormatScaled(custodian.AvailableBalance("bob", "USD")))
}
