package messaging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erain9/deepmatch/pkg/core"
)

func TestSinkPublishesBookEvents(t *testing.T) {
	sender := NewMockMessageSender()
	sink := NewSink("SUI-USDC", sender, zerolog.Nop())

	sink.OrderPlaced(core.OrderPlacedEvent{
		OrderID: 1, Owner: "alice", IsBid: true, Price: 10, Quantity: 100, Timestamp: 42,
	})
	sink.OrderFilled(core.OrderFilledEvent{
		MakerOrderID: 1, MakerOwner: "alice", TakerOwner: "bob", TakerIsBid: false,
		Price: 10, BaseQuantity: 40, QuoteQuantity: 400, TakerCommission: 1, Timestamp: 43,
	})
	sink.OrderCanceled(core.OrderCanceledEvent{
		OrderID: 1, Owner: "alice", IsBid: true, Price: 10, Remaining: 60,
		Reason: core.CancelReasonUser, Timestamp: 44,
	})
	require.NoError(t, sink.Close())

	msgs := sender.Messages()
	require.Len(t, msgs, 3)

	assert.Equal(t, EventOrderPlaced, msgs[0].Type)
	assert.Equal(t, "SUI-USDC", msgs[0].Market)
	assert.Equal(t, uint64(100), msgs[0].Quantity)

	assert.Equal(t, EventOrderFilled, msgs[1].Type)
	assert.Equal(t, "alice", msgs[1].Owner)
	assert.Equal(t, "bob", msgs[1].TakerOwner)
	assert.True(t, msgs[1].IsBid)
	assert.Equal(t, uint64(400), msgs[1].QuoteQuantity)

	assert.Equal(t, EventOrderCanceled, msgs[2].Type)
	assert.Equal(t, uint64(60), msgs[2].Remaining)
	assert.Equal(t, core.CancelReasonUser, msgs[2].Reason)

	assert.True(t, sender.Closed())
}

func TestSinkDropsUnderBackpressure(t *testing.T) {
	sender := &blockingSender{release: make(chan struct{})}
	sink := NewSink("SUI-USDC", sender, zerolog.Nop())

	// One event is in flight, sinkBuffer more queue up, the rest drop
	// instead of blocking the caller.
	for i := 0; i < sinkBuffer+100; i++ {
		sink.OrderPlaced(core.OrderPlacedEvent{OrderID: uint64(i)})
	}
	close(sender.release)
	require.NoError(t, sink.Close())

	assert.NotEmpty(t, sender.got)
	assert.LessOrEqual(t, len(sender.got), sinkBuffer+1)
}

type blockingSender struct {
	release chan struct{}
	got     []*OrderEventMessage
}

func (b *blockingSender) SendOrderEvent(_ context.Context, msg *OrderEventMessage) error {
	<-b.release
	b.got = append(b.got, msg)
	return nil
}

func (b *blockingSender) Close() error { return nil }
