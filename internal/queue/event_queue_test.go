package queue_test

import (
	"context"
	"testing"
	"time"

	"raffle-ledger/internal/model"
	"raffle-ledger/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan queue.Delivery, timeout time.Duration) queue.Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(timeout):
		t.Fatal("timed out waiting for delivery")
	}
	return queue.Delivery{}
}

func TestMemoryEventQueue(t *testing.T) {
	t.Run("Success - publish then subscribe", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewMemoryEventQueue(4)
		require.NoError(t, q.PublishEvent(ctx, &model.LedgerEvent{Seq: 1, RaffleID: 7, Kind: model.EventRaffleCreated}))

		ch, err := q.SubscribeEvents(ctx)
		require.NoError(t, err)

		d := receive(t, ch, time.Second)
		assert.Equal(t, int64(1), d.Data.Seq)
		assert.Equal(t, int64(7), d.Data.RaffleID)
		d.Ack()
	})

	t.Run("Success - nack requeue redelivers", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewMemoryEventQueue(4)
		ch, err := q.SubscribeEvents(ctx)
		require.NoError(t, err)

		require.NoError(t, q.PublishEvent(ctx, &model.LedgerEvent{Seq: 2}))
		first := receive(t, ch, time.Second)
		first.Nack(true)

		again := receive(t, ch, time.Second)
		assert.Equal(t, int64(2), again.Data.Seq)
	})

	t.Run("Failed - publish blocks until ctx done when full", func(t *testing.T) {
		q := queue.NewMemoryEventQueue(1)
		require.NoError(t, q.PublishEvent(context.Background(), &model.LedgerEvent{Seq: 1}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := q.PublishEvent(ctx, &model.LedgerEvent{Seq: 2})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Success - subscription closes on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewMemoryEventQueue(1)
		ch, err := q.SubscribeEvents(ctx)
		require.NoError(t, err)

		cancel()
		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("subscription did not close")
		}
	})
}
