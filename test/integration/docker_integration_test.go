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
	"github.com/erain9/deepmatch/pkg/db/queue"
	"github.com/erain9/deepmatch/pkg/messaging"
	"github.com/erain9/deepmatch/pkg/server"
	"github.com/erain9/deepmatch/pkg/testutil"
)

// TestEndToEndWithContainers spins up Redis and Kafka in Docker, wires the
// manager with the Redis custodian and the Kafka publisher, trades, and reads
// the published events back off the topic.
func TestEndToEndWithContainers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping container test in short mode")
	}

	testutil.WithTestDependencies(t, func(redisAddr, kafkaAddr string) {
		queue.SetBrokerList(kafkaAddr)
		queue.SetTopic("deepmatch-order-events")

		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		t.Cleanup(func() { _ = client.Close() })

		sender, err := queue.NewQueueMessageSender()
		require.NoError(t, err)

		prefix := fmt.Sprintf("deepmatch-e2e-%d", time.Now().UnixNano())
		custodian := redisbackend.NewCustodian(client, prefix, nil)

		manager := server.NewMarketManager(custodian, server.WithMessageSender(sender))
		t.Cleanup(func() { manager.Close() })

		consumer, err := queue.NewQueueMessageConsumer()
		require.NoError(t, err)
		t.Cleanup(func() { _ = consumer.Close() })

		events := make(chan *messaging.OrderEventMessage, 16)
		consumeCtx, stopConsumer := context.WithCancel(context.Background())
		t.Cleanup(stopConsumer)
		go func() {
			_ = consumer.ConsumeOrderEvents(consumeCtx, func(event *messaging.OrderEventMessage) error {
				events <- event
				return nil
			})
		}()
		// Let the consumer attach before producing.
		time.Sleep(2 * time.Second)

		_, err = manager.CreateMarket(context.Background(), server.MarketConfig{
			Name:            "BTC-USD",
			BaseAsset:       "BTC",
			QuoteAsset:      "USD",
			TickSize:        core.FloatScaling,
			LotSize:         core.FloatScaling / 1000,
			TakerFeeRate:    2_500_000,
			MakerRebateRate: 1_000_000,
		})
		require.NoError(t, err)
		mkt, err := manager.GetMarket(context.Background(), "BTC-USD")
		require.NoError(t, err)

		custodian.IncreaseAvailable("maker", "BTC", 2*core.FloatScaling)
		custodian.IncreaseAvailable("taker", "USD", 200_000*core.FloatScaling)

		expireAt := time.Now().Add(time.Hour).UnixMilli()
		_, err = mkt.PlaceLimitOrder(context.Background(), "maker", 50_000*core.FloatScaling, core.FloatScaling, false, expireAt, core.NoRestriction)
		require.NoError(t, err)

		res, err := mkt.PlaceMarketOrder(context.Background(), "taker", core.FloatScaling, true)
		require.NoError(t, err)
		require.Equal(t, core.FloatScaling, res.BaseFilled)

		var got []*messaging.OrderEventMessage
		deadline := time.After(30 * time.Second)
		for len(got) < 2 {
			select {
			case event := <-events:
				got = append(got, event)
			case <-deadline:
				t.Fatalf("Timed out waiting for order events, received %d", len(got))
			}
		}

		assert.Equal(t, messaging.EventOrderPlaced, got[0].Type)
		assert.Equal(t, "BTC-USD", got[0].Market)
		assert.Equal(t, "maker", got[0].Owner)

		assert.Equal(t, messaging.EventOrderFilled, got[1].Type)
		assert.Equal(t, "taker", got[1].TakerOwner)
		assert.Equal(t, core.FloatScaling, got[1].Quantity)
	})
}
