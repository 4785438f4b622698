package repository

import (
	"context"
	"errors"
	"time"

	"raffle-ledger/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ParticipantRepository interface {
	ListByRaffle(ctx context.Context, raffleID int64) ([]*model.ParticipantTicket, error)
	FindTickets(ctx context.Context, raffleID int64, participant string) (int64, error)
	ListRaffleIDsByParticipant(ctx context.Context, participant string) ([]int64, error)

	// Transaction methods
	Upsert(ctx context.Context, tx pgx.Tx, raffleID int64, participant string, count int64, seq int64, now time.Time) error
	ListByRaffleTx(ctx context.Context, tx pgx.Tx, raffleID int64) ([]*model.ParticipantTicket, error)
}

type ParticipantRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) ParticipantRepository {
	return &ParticipantRepositoryImpl{
		pool: pool,
	}
}

// Upsert 累加票數；首次購買時記下 seq，之後不再改變
func (r *ParticipantRepositoryImpl) Upsert(ctx context.Context, tx pgx.Tx, raffleID int64, participant string, count int64, seq int64, now time.Time) error {
	query := `
		INSERT INTO participant_tickets (raffle_id, participant, ticket_count, first_purchase_seq, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (raffle_id, participant) DO UPDATE
		SET ticket_count = participant_tickets.ticket_count + EXCLUDED.ticket_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := tx.Exec(ctx, query, raffleID, participant, count, seq, now.UTC())
	return err
}

func (r *ParticipantRepositoryImpl) ListByRaffle(ctx context.Context, raffleID int64) ([]*model.ParticipantTicket, error) {
	return listParticipants(ctx, r.pool, raffleID)
}

func (r *ParticipantRepositoryImpl) ListByRaffleTx(ctx context.Context, tx pgx.Tx, raffleID int64) ([]*model.ParticipantTicket, error) {
	return listParticipants(ctx, tx, raffleID)
}

func listParticipants(ctx context.Context, q DBTX, raffleID int64) ([]*model.ParticipantTicket, error) {
	query := `
		SELECT raffle_id, participant, ticket_count, first_purchase_seq, created_at, updated_at
		FROM participant_tickets
		WHERE raffle_id = $1
		ORDER BY first_purchase_seq ASC
	`

	rows, err := q.Query(ctx, query, raffleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]*model.ParticipantTicket, 0)
	for rows.Next() {
		var p model.ParticipantTicket
		err := rows.Scan(
			&p.RaffleID,
			&p.Participant,
			&p.TicketCount,
			&p.FirstPurchaseSeq,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return participants, nil
}

// FindTickets 未購票者回傳 0
func (r *ParticipantRepositoryImpl) FindTickets(ctx context.Context, raffleID int64, participant string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT ticket_count FROM participant_tickets WHERE raffle_id = $1 AND participant = $2`,
		raffleID, participant,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (r *ParticipantRepositoryImpl) ListRaffleIDsByParticipant(ctx context.Context, participant string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT raffle_id FROM participant_tickets WHERE participant = $1 ORDER BY raffle_id ASC`,
		participant,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
