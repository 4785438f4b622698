package repository

import (
	"context"
	"errors"
	"time"

	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TreasuryAccount 平台手續費帳戶
const TreasuryAccount = "treasury"

type AccountRepository interface {
	FindByAddress(ctx context.Context, address string) (*model.Account, error)

	// Transaction methods
	Credit(ctx context.Context, tx pgx.Tx, address string, amount decimal.Decimal, now time.Time) error
	Debit(ctx context.Context, tx pgx.Tx, address string, amount decimal.Decimal, now time.Time) error
	FindByAddressWithLock(ctx context.Context, tx pgx.Tx, address string) (*model.Account, error)
}

type AccountRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &AccountRepositoryImpl{
		pool: pool,
	}
}

// FindByAddress 不存在的帳戶視為餘額 0
func (r *AccountRepositoryImpl) FindByAddress(ctx context.Context, address string) (*model.Account, error) {
	return findAccount(ctx, r.pool, address, false)
}

func (r *AccountRepositoryImpl) FindByAddressWithLock(ctx context.Context, tx pgx.Tx, address string) (*model.Account, error) {
	return findAccount(ctx, tx, address, true)
}

func findAccount(ctx context.Context, q DBTX, address string, lock bool) (*model.Account, error) {
	query := `SELECT address, balance, updated_at FROM accounts WHERE address = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	var account model.Account
	err := q.QueryRow(ctx, query, address).Scan(&account.Address, &account.Balance, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Account{Address: address, Balance: decimal.Zero}, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepositoryImpl) Credit(ctx context.Context, tx pgx.Tx, address string, amount decimal.Decimal, now time.Time) error {
	if amount.IsZero() {
		return nil
	}
	if amount.IsNegative() {
		return apperrors.ErrInvalidInput
	}

	query := `
		INSERT INTO accounts (address, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.Exec(ctx, query, address, amount, now.UTC())
	return err
}

func (r *AccountRepositoryImpl) Debit(ctx context.Context, tx pgx.Tx, address string, amount decimal.Decimal, now time.Time) error {
	if amount.IsZero() {
		return nil
	}
	if amount.IsNegative() {
		return apperrors.ErrInvalidInput
	}

	// 條件式扣款：餘額不足時不更新任何列
	query := `
		UPDATE accounts
		SET balance = balance - $1, updated_at = $2
		WHERE address = $3 AND balance >= $1
	`

	result, err := tx.Exec(ctx, query, amount, now.UTC(), address)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrInsufficientFunds
	}

	return nil
}
