package kafka

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/erain9/deepmatch/pkg/db/queue"
	"github.com/erain9/deepmatch/pkg/messaging"
)

// SetupConsumer initializes and starts the Kafka consumer for order events.
func SetupConsumer(ctx context.Context, logger zerolog.Logger) (*queue.QueueMessageConsumer, error) {
	kafkaConsumer, err := queue.NewQueueMessageConsumer()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka consumer - continuing without Kafka support")
		return nil, err
	}

	go func() {
		logger.Info().Msg("Starting Kafka consumer")
		err := kafkaConsumer.ConsumeOrderEvents(ctx, func(msg *messaging.OrderEventMessage) error {
			logger.Info().
				Str("type", string(msg.Type)).
				Str("market", msg.Market).
				Uint64("order_id", msg.OrderID).
				Str("owner", msg.Owner).
				Bool("is_bid", msg.IsBid).
				Uint64("price", msg.Price).
				Uint64("quantity", msg.Quantity).
				Str("reason", msg.Reason).
				Msg("Received order event")
			return nil
		})
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return kafkaConsumer, nil
}
