package service

import (
	"context"
	"fmt"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/accounting"
	"raffle-ledger/internal/model"
	"raffle-ledger/internal/queue"
	"raffle-ledger/internal/repository"
	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PlatformRaffleID 不屬於任何抽獎的平台事件
const PlatformRaffleID int64 = 0

type AccountService interface {
	Balance(ctx context.Context, address string) (*model.Account, error)
	Deposit(ctx context.Context, address string, amount decimal.Decimal) (*model.Account, error)
	// WithdrawCommission amount 為零時提領全部手續費
	WithdrawCommission(ctx context.Context, caller string, amount decimal.Decimal) (*model.Account, error)
	TreasuryBalance(ctx context.Context) (decimal.Decimal, error)
	IsOwner(address string) bool
}

type AccountServiceImpl struct {
	pool       *pgxpool.Pool
	accounts   repository.AccountRepository
	events     repository.LedgerEventRepository
	eventQueue queue.EventQueue
	cfg        config.LedgerConfig
	clock      func() time.Time
	log        *zap.Logger
}

type AccountServiceOption func(*AccountServiceImpl)

// WithAccountClock 替換時間來源，測試用
func WithAccountClock(clock func() time.Time) AccountServiceOption {
	return func(s *AccountServiceImpl) {
		s.clock = clock
	}
}

func NewAccountService(
	pool *pgxpool.Pool,
	accountRepository repository.AccountRepository,
	eventRepository repository.LedgerEventRepository,
	eventQueue queue.EventQueue,
	cfg config.LedgerConfig,
	opts ...AccountServiceOption,
) AccountService {
	s := &AccountServiceImpl{
		pool:       pool,
		accounts:   accountRepository,
		events:     eventRepository,
		eventQueue: eventQueue,
		cfg:        cfg,
		clock:      time.Now,
		log:        logger.WithComponent("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AccountServiceImpl) IsOwner(address string) bool {
	if s.cfg.OwnerAddress == "" {
		return false
	}
	caller, err := normalizeAddress(address)
	if err != nil {
		return false
	}
	owner, err := normalizeAddress(s.cfg.OwnerAddress)
	if err != nil {
		return false
	}
	return caller == owner
}

func (s *AccountServiceImpl) Balance(ctx context.Context, address string) (*model.Account, error) {
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.accounts.FindByAddress(ctx, addr)
}

func (s *AccountServiceImpl) TreasuryBalance(ctx context.Context) (decimal.Decimal, error) {
	account, err := s.accounts.FindByAddress(ctx, repository.TreasuryAccount)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Deposit 開發環境直接入帳
func (s *AccountServiceImpl) Deposit(ctx context.Context, address string, amount decimal.Decimal) (*model.Account, error) {
	if !s.cfg.AllowDeposits {
		return nil, apperrors.ErrForbidden
	}
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if err := accounting.ValidateWei(amount); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.accounts.Credit(ctx, tx, addr, amount, s.clock().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("account deposit", zap.String("address", addr), zap.String("amount", amount.String()))
	return s.accounts.FindByAddress(ctx, addr)
}

func (s *AccountServiceImpl) WithdrawCommission(ctx context.Context, caller string, amount decimal.Decimal) (*model.Account, error) {
	if !s.IsOwner(caller) {
		return nil, apperrors.ErrNotOwner
	}
	owner, err := normalizeAddress(caller)
	if err != nil {
		return nil, err
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return nil, apperrors.ErrInvalidInput
	}

	now := s.clock().UTC()
	var emitted *model.LedgerEvent
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		treasury, err := s.accounts.FindByAddressWithLock(ctx, tx, repository.TreasuryAccount)
		if err != nil {
			return err
		}

		withdraw := amount
		if withdraw.IsZero() {
			withdraw = treasury.Balance
		}
		if withdraw.IsZero() || treasury.Balance.LessThan(withdraw) {
			return apperrors.ErrInsufficientFunds
		}

		if err := s.accounts.Debit(ctx, tx, repository.TreasuryAccount, withdraw, now); err != nil {
			return err
		}
		if err := s.accounts.Credit(ctx, tx, owner, withdraw, now); err != nil {
			return err
		}

		emitted, err = s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:  PlatformRaffleID,
			Kind:      model.EventCommissionWithdrawn,
			Account:   owner,
			Amount:    withdraw,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.eventQueue != nil {
		pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.eventQueue.PublishEvent(pctx, emitted); err != nil {
			s.log.Warn("publish event failed", zap.Int64("seq", emitted.Seq), zap.Error(err))
		}
	}

	s.log.Info("commission withdrawn", zap.String("owner", owner), zap.String("amount", emitted.Amount.String()))
	return s.accounts.FindByAddress(ctx, owner)
}
