package repository

import (
	"context"
	"fmt"
	"time"

	"raffle-ledger/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerEventRepository 只追加的事件紀錄，沒有更新與刪除
type LedgerEventRepository interface {
	Append(ctx context.Context, tx pgx.Tx, event *model.LedgerEvent) (*model.LedgerEvent, error)
	ListByRaffle(ctx context.Context, raffleID int64, afterSeq int64, limit int) ([]*model.LedgerEvent, error)
}

type LedgerEventRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewLedgerEventRepository(pool *pgxpool.Pool) LedgerEventRepository {
	return &LedgerEventRepositoryImpl{
		pool: pool,
	}
}

func (r *LedgerEventRepositoryImpl) Append(ctx context.Context, tx pgx.Tx, event *model.LedgerEvent) (*model.LedgerEvent, error) {
	if !event.Kind.IsValid() {
		return nil, fmt.Errorf("append event: unknown kind %q", event.Kind)
	}

	query := `
		INSERT INTO ledger_events (raffle_id, kind, account, ticket_count, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq, created_at
	`

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := tx.QueryRow(ctx, query,
		event.RaffleID, string(event.Kind), event.Account, event.TicketCount, event.Amount, createdAt.UTC(),
	).Scan(&event.Seq, &event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	return event, nil
}

func (r *LedgerEventRepositoryImpl) ListByRaffle(ctx context.Context, raffleID int64, afterSeq int64, limit int) ([]*model.LedgerEvent, error) {
	query := `
		SELECT seq, raffle_id, kind, account, ticket_count, amount, created_at
		FROM ledger_events
		WHERE raffle_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, raffleID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*model.LedgerEvent, 0)
	for rows.Next() {
		var ev model.LedgerEvent
		err := rows.Scan(
			&ev.Seq,
			&ev.RaffleID,
			&ev.Kind,
			&ev.Account,
			&ev.TicketCount,
			&ev.Amount,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
