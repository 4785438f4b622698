package mocks

import (
	"context"
	"time"

	"raffle-ledger/internal/model"

	"github.com/stretchr/testify/mock"
)

type RaffleServiceMock struct {
	mock.Mock
	Clock func() time.Time
}

func NewRaffleServiceMock() *RaffleServiceMock {
	return &RaffleServiceMock{}
}

func (m *RaffleServiceMock) raffle(args mock.Arguments) (*model.Raffle, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Raffle), args.Error(1)
}

func (m *RaffleServiceMock) ids(args mock.Arguments) ([]int64, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *RaffleServiceMock) CreateRaffle(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error) {
	return m.raffle(m.Called(ctx, req))
}

func (m *RaffleServiceMock) BuyTickets(ctx context.Context, req model.BuyTicketsRequest) (*model.Raffle, error) {
	return m.raffle(m.Called(ctx, req))
}

func (m *RaffleServiceMock) EndRaffle(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID, caller))
}

func (m *RaffleServiceMock) ClaimPrize(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID, caller))
}

func (m *RaffleServiceMock) ClaimRefund(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID, caller))
}

func (m *RaffleServiceMock) GetRaffle(ctx context.Context, raffleID int64) (*model.Raffle, error) {
	return m.raffle(m.Called(ctx, raffleID))
}

func (m *RaffleServiceMock) ListRaffles(ctx context.Context, filter model.RaffleFilter) ([]*model.Raffle, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Raffle), args.Error(1)
}

func (m *RaffleServiceMock) GetParticipantTickets(ctx context.Context, raffleID int64, address string) (int64, error) {
	args := m.Called(ctx, raffleID, address)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RaffleServiceMock) GetParticipants(ctx context.Context, raffleID int64) ([]*model.ParticipantTicket, error) {
	args := m.Called(ctx, raffleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ParticipantTicket), args.Error(1)
}

func (m *RaffleServiceMock) GetUserRaffles(ctx context.Context, address string) ([]int64, error) {
	return m.ids(m.Called(ctx, address))
}

func (m *RaffleServiceMock) GetUserParticipations(ctx context.Context, address string) ([]int64, error) {
	return m.ids(m.Called(ctx, address))
}

func (m *RaffleServiceMock) TotalRaffles(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RaffleServiceMock) Events(ctx context.Context, raffleID int64, afterSeq int64, limit int) (*model.EventPage, error) {
	args := m.Called(ctx, raffleID, afterSeq, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EventPage), args.Error(1)
}

func (m *RaffleServiceMock) DrawProof(ctx context.Context, raffleID int64) (*model.DrawProof, error) {
	args := m.Called(ctx, raffleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DrawProof), args.Error(1)
}

// Now 不經過 mock 記錄，預設為系統時間
func (m *RaffleServiceMock) Now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}
