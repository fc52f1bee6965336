package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisbackend "github.com/erain9/deepmatch/pkg/backend/redis"
	"github.com/erain9/deepmatch/pkg/core"
	"github.com/erain9/deepmatch/pkg/server"
	"github.com/erain9/deepmatch/pkg/testutil"
)

const redisAddr = "localhost:6379"

// TestRedisBackedTrading runs a funding and matching round trip against a
// live Redis, then verifies the balances through a second custodian instance
// to prove they live server-side.
func TestRedisBackedTrading(t *testing.T) {
	testutil.SkipIfRedisUnavailable(t, redisAddr)

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := fmt.Sprintf("deepmatch-test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, err := client.Keys(context.Background(), prefix+":*").Result()
		if err == nil && len(keys) > 0 {
			_ = client.Del(context.Background(), keys...).Err()
		}
	})

	custodian := redisbackend.NewCustodian(client, prefix, nil)
	manager := server.NewMarketManager(custodian)
	t.Cleanup(func() { manager.Close() })

	_, err := manager.CreateMarket(context.Background(), server.MarketConfig{
		Name:            "ETH-USD",
		BaseAsset:       "ETH",
		QuoteAsset:      "USD",
		TickSize:        core.FloatScaling / 100,
		LotSize:         core.FloatScaling / 1000,
		TakerFeeRate:    2_500_000,
		MakerRebateRate: 1_000_000,
	})
	require.NoError(t, err)
	mkt, err := manager.GetMarket(context.Background(), "ETH-USD")
	require.NoError(t, err)

	custodian.IncreaseAvailable("maker", "ETH", 5*core.FloatScaling)
	custodian.IncreaseAvailable("taker", "USD", 10_000*core.FloatScaling)

	expireAt := time.Now().Add(time.Hour).UnixMilli()
	_, err = mkt.PlaceLimitOrder(context.Background(), "maker", 2_000*core.FloatScaling, 1*core.FloatScaling, false, expireAt, core.NoRestriction)
	require.NoError(t, err)

	assert.Equal(t, uint64(4*core.FloatScaling), custodian.AvailableBalance("maker", "ETH"))
	assert.Equal(t, uint64(1*core.FloatScaling), custodian.LockedBalance("maker", "ETH"))

	res, err := mkt.PlaceMarketOrder(context.Background(), "taker", 1*core.FloatScaling, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1*core.FloatScaling), res.BaseFilled)

	// A fresh custodian on the same prefix sees the settled balances.
	verifier := redisbackend.NewCustodian(redis.NewClient(&redis.Options{Addr: redisAddr}), prefix, nil)
	assert.Equal(t, uint64(1*core.FloatScaling), verifier.AvailableBalance("taker", "ETH"))
	assert.Equal(t, uint64(0), custodian.LockedBalance("maker", "ETH"))
}
