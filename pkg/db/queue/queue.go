package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/erain9/deepmatch/pkg/messaging"
)

// Defaults used when the caller does not override them before the pool is
// initialized.
var (
	BrokerList = []string{"localhost:9092"}
	Topic      = "deepmatch-order-events"
)

const maxRetry = 5

// SetBrokerList overrides the Kafka broker address.
func SetBrokerList(brokerAddr string) {
	BrokerList = []string{brokerAddr}
}

// SetTopic overrides the Kafka topic for order events.
func SetTopic(topic string) {
	Topic = topic
}

// QueueMessageSender implements the MessageSender interface on a sarama
// synchronous producer.
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewQueueMessageSender connects a producer to the configured brokers.
func NewQueueMessageSender() (*QueueMessageSender, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(BrokerList, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &QueueMessageSender{producer: producer, topic: Topic}, nil
}

// newSenderWithProducer wires an existing producer, used by tests.
func newSenderWithProducer(producer sarama.SyncProducer, topic string) *QueueMessageSender {
	return &QueueMessageSender{producer: producer, topic: topic}
}

// SendOrderEvent publishes the event to the Kafka queue as JSON, keyed by
// order id.
func (q *QueueMessageSender) SendOrderEvent(ctx context.Context, event *messaging.OrderEventMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(event.OrderID, 10)),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := q.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

// Close closes the underlying producer.
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

var _ messaging.MessageSender = (*QueueMessageSender)(nil)

// QueueMessageConsumer reads order events back off the Kafka queue.
type QueueMessageConsumer struct {
	consumer sarama.Consumer
	topic    string
}

// NewQueueMessageConsumer connects a consumer to the configured brokers.
func NewQueueMessageConsumer() (*QueueMessageConsumer, error) {
	consumer, err := sarama.NewConsumer(BrokerList, sarama.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &QueueMessageConsumer{consumer: consumer, topic: Topic}, nil
}

// newConsumerWithClient wires an existing consumer, used by tests.
func newConsumerWithClient(consumer sarama.Consumer, topic string) *QueueMessageConsumer {
	return &QueueMessageConsumer{consumer: consumer, topic: topic}
}

// ConsumeOrderEvents reads events from partition 0 and hands each to handle.
// It blocks until the context is canceled or the partition closes; handler
// errors stop consumption and are returned.
func (c *QueueMessageConsumer) ConsumeOrderEvents(ctx context.Context, handle func(*messaging.OrderEventMessage) error) error {
	pc, err := c.consumer.ConsumePartition(c.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer pc.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case kerr, ok := <-pc.Errors():
			if !ok {
				return nil
			}
			return kerr
		case msg, ok := <-pc.Messages():
			if !ok {
				return nil
			}
			var event messaging.OrderEventMessage
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal order event: %w", err)
			}
			if err := handle(&event); err != nil {
				return err
			}
		}
	}
}

// Close closes the underlying consumer.
func (c *QueueMessageConsumer) Close() error {
	return c.consumer.Close()
}
