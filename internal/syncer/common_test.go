package syncer_test

import (
	"context"
	"sync"
	"time"

	"raffle-ledger/internal/client"
	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/shopspring/decimal"
)

const (
	buyer   = "0x2222222222222222222222222222222222222222"
	creator = "0x1111111111111111111111111111111111111111"
)

// fakeLedger 記憶體內的帳本，只實作同步流程用到的讀取
type fakeLedger struct {
	client.Ledger

	mu              sync.Mutex
	raffle          *model.RaffleResponse
	raffleErr       error
	participants    []model.ParticipantResponse
	participantsErr error
	events          []*model.LedgerEvent
	eventsErr       error
	raffleCalls     int
	eventCalls      int
	changed         chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		raffle: &model.RaffleResponse{
			Raffle: &model.Raffle{
				ID:           1,
				Creator:      creator,
				TicketPrice:  decimal.NewFromInt(1000),
				TotalTickets: 100,
				Status:       model.RaffleStatusActive,
			},
			StatusName: "active",
		},
		changed: make(chan struct{}),
	}
}

// append 新增事件並喚醒等待中的 Events
func (f *fakeLedger) append(kind model.EventKind, account string, tickets int64) *model.LedgerEvent {
	f.mu.Lock()
	ev := &model.LedgerEvent{
		Seq:         int64(len(f.events) + 1),
		RaffleID:    1,
		Kind:        kind,
		Account:     account,
		TicketCount: tickets,
	}
	f.events = append(f.events, ev)
	if kind == model.EventTicketPurchased {
		f.raffle.SoldTickets += tickets
	}
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
	return ev
}

func (f *fakeLedger) sold(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raffle.SoldTickets = n
}

func (f *fakeLedger) calls() (raffle, events int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raffleCalls, f.eventCalls
}

func (f *fakeLedger) GetRaffleInfo(ctx context.Context, raffleID int64) (*model.RaffleResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raffleCalls++
	if f.raffleErr != nil {
		return nil, f.raffleErr
	}
	if raffleID != f.raffle.ID {
		return nil, apperrors.ErrRaffleNotFound
	}
	r := *f.raffle.Raffle
	return &model.RaffleResponse{Raffle: &r, StatusName: r.Status.String()}, nil
}

func (f *fakeLedger) GetRaffleParticipants(ctx context.Context, raffleID int64) ([]model.ParticipantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.participantsErr != nil {
		return nil, f.participantsErr
	}
	return append([]model.ParticipantResponse(nil), f.participants...), nil
}

func (f *fakeLedger) collect(after int64, limit int) *model.EventPage {
	page := &model.EventPage{Events: []*model.LedgerEvent{}, LastSeq: after}
	for _, ev := range f.events {
		if ev.Seq <= after {
			continue
		}
		if limit > 0 && len(page.Events) >= limit {
			break
		}
		page.Events = append(page.Events, ev)
		page.LastSeq = ev.Seq
	}
	return page
}

func (f *fakeLedger) Events(ctx context.Context, raffleID, after int64, limit int, wait time.Duration) (*model.EventPage, error) {
	f.mu.Lock()
	f.eventCalls++
	if f.eventsErr != nil {
		f.mu.Unlock()
		return nil, f.eventsErr
	}
	page := f.collect(after, limit)
	changed := f.changed
	f.mu.Unlock()

	if len(page.Events) > 0 || wait <= 0 {
		return page, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-changed:
	case <-timer.C:
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collect(after, limit), nil
}
