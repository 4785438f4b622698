package syncer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"raffle-ledger/internal/model"
	"raffle-ledger/internal/syncer"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() syncer.ConfirmerConfig {
	return syncer.ConfirmerConfig{
		EventWait:    300 * time.Millisecond,
		InitialDelay: 10 * time.Millisecond,
		Retries:      3,
		Spacing:      10 * time.Millisecond,
	}
}

func TestConfirmer_ConfirmsFromEvent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.append(model.EventRaffleCreated, creator, 100)
	ledger.append(model.EventTicketPurchased, buyer, 1)

	c := syncer.NewConfirmer(ledger, fastConfig())
	res := c.Submit(context.Background(), syncer.ExpectPurchase(1, buyer, 1, 2), func(ctx context.Context) (*model.RaffleResponse, error) {
		ledger.append(model.EventTicketPurchased, buyer, 2)
		return nil, nil
	})

	require.Equal(t, syncer.OutcomeConfirmed, res.Outcome)
	require.NotNil(t, res.Event)
	assert.Equal(t, int64(3), res.Event.Seq)
	assert.Equal(t, 0, res.Attempts)
	require.NotNil(t, res.Raffle)
	assert.Equal(t, int64(3), res.Raffle.SoldTickets)
}

func TestConfirmer_WaitsForLateEvent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.append(model.EventRaffleCreated, creator, 100)

	c := syncer.NewConfirmer(ledger, fastConfig())
	res := c.Submit(context.Background(), syncer.ExpectEnded(1), func(ctx context.Context) (*model.RaffleResponse, error) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			// 其他人的購票事件不應被當成確認
			ledger.append(model.EventTicketPurchased, buyer, 1)
			time.Sleep(20 * time.Millisecond)
			ledger.append(model.EventRaffleEnded, buyer, 0)
		}()
		return nil, nil
	})

	require.Equal(t, syncer.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, model.EventRaffleEnded, res.Event.Kind)
}

func TestConfirmer_IgnoresEarlierMatchingEvent(t *testing.T) {
	ledger := newFakeLedger()
	ledger.append(model.EventRaffleCreated, creator, 100)
	ledger.append(model.EventTicketPurchased, buyer, 1)

	c := syncer.NewConfirmer(ledger, fastConfig())
	start := time.Now()
	res := c.Submit(context.Background(), syncer.ExpectPurchase(1, buyer, 1, 1), func(ctx context.Context) (*model.RaffleResponse, error) {
		return nil, nil
	})

	assert.Equal(t, syncer.OutcomeUnconfirmed, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.NoError(t, res.Err)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	require.NotNil(t, res.Raffle)
	assert.Equal(t, int64(1), res.Raffle.SoldTickets)
}

func TestConfirmer_FallsBackToPolling(t *testing.T) {
	ledger := newFakeLedger()
	ledger.eventsErr = fmt.Errorf("events offline: %w", apperrors.ErrInternalServerError)

	c := syncer.NewConfirmer(ledger, fastConfig())
	res := c.Submit(context.Background(), syncer.ExpectPurchase(1, buyer, 0, 4), func(ctx context.Context) (*model.RaffleResponse, error) {
		ledger.sold(4)
		return nil, nil
	})

	assert.Equal(t, syncer.OutcomeConfirmed, res.Outcome)
	assert.Nil(t, res.Event)
	assert.Equal(t, 1, res.Attempts)
}

func TestConfirmer_ConfirmsRefund(t *testing.T) {
	ledger := newFakeLedger()
	ledger.append(model.EventRaffleCreated, creator, 100)

	c := syncer.NewConfirmer(ledger, fastConfig())
	res := c.Submit(context.Background(), syncer.ExpectRefund(1, creator), func(ctx context.Context) (*model.RaffleResponse, error) {
		// 非建立者的退款事件不算
		ledger.append(model.EventRefundClaimed, buyer, 0)
		ledger.append(model.EventRefundClaimed, creator, 0)
		return nil, nil
	})

	require.Equal(t, syncer.OutcomeConfirmed, res.Outcome)
	require.NotNil(t, res.Event)
	assert.Equal(t, int64(3), res.Event.Seq)
	assert.Equal(t, creator, res.Event.Account)
}

func TestConfirmer_RefundConfirmedByPolling(t *testing.T) {
	ledger := newFakeLedger()
	ledger.eventsErr = apperrors.ErrInternalServerError

	c := syncer.NewConfirmer(ledger, fastConfig())
	res := c.Submit(context.Background(), syncer.ExpectRefund(1, creator), func(ctx context.Context) (*model.RaffleResponse, error) {
		ledger.mu.Lock()
		ledger.raffle.RefundClaimedByCreator = true
		ledger.mu.Unlock()
		return nil, nil
	})

	assert.Equal(t, syncer.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	require.NotNil(t, res.Raffle)
	assert.True(t, res.Raffle.RefundClaimedByCreator)
}

func TestConfirmer_UserRejectedShortCircuits(t *testing.T) {
	ledger := newFakeLedger()

	c := syncer.NewConfirmer(ledger, syncer.DefaultConfirmerConfig())
	start := time.Now()
	res := c.Submit(context.Background(), syncer.ExpectEnded(1), func(ctx context.Context) (*model.RaffleResponse, error) {
		return nil, fmt.Errorf("wallet: %w", apperrors.ErrUserRejected)
	})

	assert.Equal(t, syncer.OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, apperrors.ErrUserRejected)
	assert.Less(t, time.Since(start), time.Second)

	raffleCalls, _ := ledger.calls()
	assert.Equal(t, 0, raffleCalls)
}

func TestConfirmer_FailedMutationIsNotRetried(t *testing.T) {
	ledger := newFakeLedger()

	c := syncer.NewConfirmer(ledger, fastConfig())
	calls := 0
	res := c.Submit(context.Background(), syncer.ExpectPurchase(1, buyer, 98, 5), func(ctx context.Context) (*model.RaffleResponse, error) {
		calls++
		return nil, apperrors.ErrSoldOut
	})

	assert.Equal(t, syncer.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, apperrors.ErrSoldOut)
	assert.Equal(t, 1, calls)

	raffleCalls, _ := ledger.calls()
	assert.Equal(t, 0, raffleCalls)
}

func TestConfirmer_CancelStopsPolling(t *testing.T) {
	ledger := newFakeLedger()
	ledger.eventsErr = apperrors.ErrInternalServerError

	cfg := fastConfig()
	cfg.Retries = 1000
	cfg.Spacing = 20 * time.Millisecond
	c := syncer.NewConfirmer(ledger, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	res := c.Submit(ctx, syncer.ExpectEnded(1), func(ctx context.Context) (*model.RaffleResponse, error) {
		return nil, nil
	})

	assert.Equal(t, syncer.OutcomeUnconfirmed, res.Outcome)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, res.Attempts, 1000)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "confirmed", syncer.OutcomeConfirmed.String())
	assert.Equal(t, "unconfirmed", syncer.OutcomeUnconfirmed.String())
	assert.Equal(t, "rejected", syncer.OutcomeRejected.String())
	assert.Equal(t, "failed", syncer.OutcomeFailed.String())
}
