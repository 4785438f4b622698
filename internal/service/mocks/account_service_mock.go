package mocks

import (
	"context"

	"raffle-ledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type AccountServiceMock struct {
	mock.Mock
}

func NewAccountServiceMock() *AccountServiceMock {
	return &AccountServiceMock{}
}

func (m *AccountServiceMock) Balance(ctx context.Context, address string) (*model.Account, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *AccountServiceMock) Deposit(ctx context.Context, address string, amount decimal.Decimal) (*model.Account, error) {
	args := m.Called(ctx, address, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *AccountServiceMock) WithdrawCommission(ctx context.Context, caller string, amount decimal.Decimal) (*model.Account, error) {
	args := m.Called(ctx, caller, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *AccountServiceMock) TreasuryBalance(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *AccountServiceMock) IsOwner(address string) bool {
	args := m.Called(address)
	return args.Bool(0)
}
