package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type RaffleRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Raffle, error)
	List(ctx context.Context, filter model.RaffleFilter) ([]*model.Raffle, error)
	ListIDsByCreator(ctx context.Context, creator string) ([]int64, error)
	Count(ctx context.Context) (int64, error)

	// Transaction methods
	Create(ctx context.Context, tx pgx.Tx, raffle *model.Raffle) (*model.Raffle, error)
	FindByIDWithLock(ctx context.Context, tx pgx.Tx, id int64) (*model.Raffle, error)
	AddSold(ctx context.Context, tx pgx.Tx, id int64, count int64, amount decimal.Decimal, now time.Time) error
	MarkEnded(ctx context.Context, tx pgx.Tx, id int64, winner string, endedAt time.Time, payout decimal.Decimal) error
	MarkPrizeClaimed(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, now time.Time) error
	MarkRefunded(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, now time.Time) error
}

type RaffleRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewRaffleRepository(pool *pgxpool.Pool) RaffleRepository {
	return &RaffleRepositoryImpl{
		pool: pool,
	}
}

const raffleColumns = `
	id, creator, name, description, ticket_price, total_tickets, sold_tickets,
	prize_amount, creator_profit, commission, escrow_balance, end_time,
	winner, ended_at, prize_claimed_by_winner, refund_claimed_by_creator,
	creator_profit_claimed, status, seed_commitment, seed, created_at, updated_at`

func scanRaffle(row rowScanner) (*model.Raffle, error) {
	var raffle model.Raffle
	err := row.Scan(
		&raffle.ID,
		&raffle.Creator,
		&raffle.Name,
		&raffle.Description,
		&raffle.TicketPrice,
		&raffle.TotalTickets,
		&raffle.SoldTickets,
		&raffle.PrizeAmount,
		&raffle.CreatorProfit,
		&raffle.Commission,
		&raffle.EscrowBalance,
		&raffle.EndTime,
		&raffle.Winner,
		&raffle.EndedAt,
		&raffle.PrizeClaimedByWinner,
		&raffle.RefundClaimedByCreator,
		&raffle.CreatorProfitClaimed,
		&raffle.Status,
		&raffle.SeedCommitment,
		&raffle.Seed,
		&raffle.CreatedAt,
		&raffle.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrRaffleNotFound
		}
		return nil, err
	}
	return &raffle, nil
}

func (r *RaffleRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, raffle *model.Raffle) (*model.Raffle, error) {
	query := `
		INSERT INTO raffles (
			creator, name, description, ticket_price, total_tickets, sold_tickets,
			prize_amount, creator_profit, commission, escrow_balance, end_time,
			status, seed_commitment, seed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		RETURNING ` + raffleColumns

	createdAt := raffle.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	created, err := scanRaffle(tx.QueryRow(ctx, query,
		raffle.Creator, raffle.Name, raffle.Description, raffle.TicketPrice, raffle.TotalTickets,
		raffle.PrizeAmount, raffle.CreatorProfit, raffle.Commission, raffle.EscrowBalance, raffle.EndTime,
		int16(raffle.Status), raffle.SeedCommitment, raffle.Seed, createdAt.UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("insert raffle: %w", err)
	}
	return created, nil
}

func (r *RaffleRepositoryImpl) FindByID(ctx context.Context, id int64) (*model.Raffle, error) {
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE id = $1`
	return scanRaffle(r.pool.QueryRow(ctx, query, id))
}

func (r *RaffleRepositoryImpl) FindByIDWithLock(ctx context.Context, tx pgx.Tx, id int64) (*model.Raffle, error) {
	// 同一場抽獎的所有變更在此列鎖上序列化
	query := `SELECT ` + raffleColumns + ` FROM raffles WHERE id = $1 FOR UPDATE`
	return scanRaffle(tx.QueryRow(ctx, query, id))
}

func (r *RaffleRepositoryImpl) List(ctx context.Context, filter model.RaffleFilter) ([]*model.Raffle, error) {
	filter = filter.Normalize()

	conds := []string{"id > $1"}
	args := []any{filter.StartID}

	if filter.Status != nil {
		args = append(args, int16(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ExpiringWithin > 0 {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		args = append(args, now.UTC(), now.Add(filter.ExpiringWithin).UTC())
		conds = append(conds, fmt.Sprintf("status = %d AND end_time > $%d AND end_time <= $%d",
			int16(model.RaffleStatusActive), len(args)-1, len(args)))
	}

	args = append(args, filter.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM raffles
		WHERE %s
		ORDER BY id ASC
		LIMIT $%d
	`, raffleColumns, strings.Join(conds, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raffles := make([]*model.Raffle, 0)
	for rows.Next() {
		raffle, err := scanRaffle(rows)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, raffle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return raffles, nil
}

func (r *RaffleRepositoryImpl) ListIDsByCreator(ctx context.Context, creator string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM raffles WHERE creator = $1 ORDER BY id ASC`, creator)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *RaffleRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM raffles`).Scan(&count)
	return count, err
}

func (r *RaffleRepositoryImpl) AddSold(ctx context.Context, tx pgx.Tx, id int64, count int64, amount decimal.Decimal, now time.Time) error {
	// 條件式更新：只有剩餘票數足夠才會成功
	query := `
		UPDATE raffles
		SET sold_tickets = sold_tickets + $1,
			escrow_balance = escrow_balance + $2,
			updated_at = $3
		WHERE id = $4 AND status = $5 AND sold_tickets + $1 <= total_tickets
	`

	result, err := tx.Exec(ctx, query, count, amount, now.UTC(), id, int16(model.RaffleStatusActive))
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrSoldOut
	}

	return nil
}

func (r *RaffleRepositoryImpl) MarkEnded(ctx context.Context, tx pgx.Tx, id int64, winner string, endedAt time.Time, payout decimal.Decimal) error {
	query := `
		UPDATE raffles
		SET status = $1, winner = $2, ended_at = $3,
			creator_profit_claimed = TRUE,
			escrow_balance = escrow_balance - $4,
			updated_at = $3
		WHERE id = $5 AND status = $6 AND winner IS NULL
	`

	result, err := tx.Exec(ctx, query,
		int16(model.RaffleStatusEnded), winner, endedAt.UTC(), payout, id, int16(model.RaffleStatusActive))
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrRaffleEnded
	}

	return nil
}

func (r *RaffleRepositoryImpl) MarkPrizeClaimed(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, now time.Time) error {
	query := `
		UPDATE raffles
		SET status = $1, prize_claimed_by_winner = TRUE,
			escrow_balance = escrow_balance - $2,
			updated_at = $3
		WHERE id = $4 AND status = $5
			AND NOT prize_claimed_by_winner AND NOT refund_claimed_by_creator
	`

	result, err := tx.Exec(ctx, query,
		int16(model.RaffleStatusClaimed), amount, now.UTC(), id, int16(model.RaffleStatusEnded))
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyClaimed
	}

	return nil
}

func (r *RaffleRepositoryImpl) MarkRefunded(ctx context.Context, tx pgx.Tx, id int64, amount decimal.Decimal, now time.Time) error {
	query := `
		UPDATE raffles
		SET status = $1, refund_claimed_by_creator = TRUE,
			escrow_balance = escrow_balance - $2,
			updated_at = $3
		WHERE id = $4 AND status = $5
			AND NOT prize_claimed_by_winner AND NOT refund_claimed_by_creator
	`

	result, err := tx.Exec(ctx, query,
		int16(model.RaffleStatusExpired), amount, now.UTC(), id, int16(model.RaffleStatusEnded))
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrAlreadyRefunded
	}

	return nil
}
