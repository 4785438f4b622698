package syncer_test

import (
	"context"
	"errors"
	"testing"

	"raffle-ledger/internal/eventlog"
	"raffle-ledger/internal/model"
	"raffle-ledger/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const third = "0x3333333333333333333333333333333333333333"

func auditLedger() *fakeLedger {
	f := newFakeLedger()
	f.append(model.EventRaffleCreated, creator, 100)
	f.append(model.EventTicketPurchased, buyer, 2)
	f.append(model.EventTicketPurchased, third, 1)
	f.append(model.EventTicketPurchased, buyer, 3)
	f.participants = []model.ParticipantResponse{
		{Address: buyer, TicketCount: 5},
		{Address: third, TicketCount: 1},
	}
	return f
}

func TestAudit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		report, err := syncer.Audit(ctx, auditLedger(), 1)
		require.NoError(t, err)
		assert.True(t, report.OK(), report.Mismatches)
		assert.Equal(t, int64(6), report.Replayed.SoldTickets)
		assert.Equal(t, int64(4), report.Replayed.LastSeq)
	})

	t.Run("Mismatch - sold tickets", func(t *testing.T) {
		f := auditLedger()
		f.sold(7)

		report, err := syncer.Audit(ctx, f, 1)
		require.NoError(t, err)
		assert.False(t, report.OK())
		assert.Contains(t, report.Mismatches[0], "sold tickets")
	})

	t.Run("Mismatch - participant order", func(t *testing.T) {
		f := auditLedger()
		f.participants = []model.ParticipantResponse{
			{Address: third, TicketCount: 1},
			{Address: buyer, TicketCount: 5},
		}

		report, err := syncer.Audit(ctx, f, 1)
		require.NoError(t, err)
		assert.Len(t, report.Mismatches, 2)
	})

	t.Run("Failed - missing create", func(t *testing.T) {
		f := newFakeLedger()
		f.append(model.EventTicketPurchased, buyer, 1)

		_, err := syncer.Audit(ctx, f, 1)
		assert.ErrorIs(t, err, eventlog.ErrMissingCreate)
	})

	t.Run("Failed - events unavailable", func(t *testing.T) {
		f := auditLedger()
		f.eventsErr = errors.New("boom")

		_, err := syncer.Audit(ctx, f, 1)
		assert.Error(t, err)
	})
}
