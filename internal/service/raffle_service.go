package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/accounting"
	"raffle-ledger/internal/cache"
	"raffle-ledger/internal/draw"
	"raffle-ledger/internal/model"
	"raffle-ledger/internal/queue"
	"raffle-ledger/internal/repository"
	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/display"
	"raffle-ledger/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultEventLimit = 100
	MaxEventLimit     = 500

	publishTimeout = 2 * time.Second
)

type RaffleService interface {
	// 狀態轉換
	CreateRaffle(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error)
	BuyTickets(ctx context.Context, req model.BuyTicketsRequest) (*model.Raffle, error)
	EndRaffle(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error)
	ClaimPrize(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error)
	ClaimRefund(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error)

	// 查詢
	GetRaffle(ctx context.Context, raffleID int64) (*model.Raffle, error)
	ListRaffles(ctx context.Context, filter model.RaffleFilter) ([]*model.Raffle, error)
	GetParticipantTickets(ctx context.Context, raffleID int64, address string) (int64, error)
	GetParticipants(ctx context.Context, raffleID int64) ([]*model.ParticipantTicket, error)
	GetUserRaffles(ctx context.Context, address string) ([]int64, error)
	GetUserParticipations(ctx context.Context, address string) ([]int64, error)
	TotalRaffles(ctx context.Context) (int64, error)
	Events(ctx context.Context, raffleID int64, afterSeq int64, limit int) (*model.EventPage, error)
	DrawProof(ctx context.Context, raffleID int64) (*model.DrawProof, error)

	Now() time.Time
}

type RaffleServiceImpl struct {
	pool             *pgxpool.Pool
	raffles          repository.RaffleRepository
	participants     repository.ParticipantRepository
	events           repository.LedgerEventRepository
	accounts         repository.AccountRepository
	inventoryManager cache.RaffleInventoryManager
	eventQueue       queue.EventQueue
	cfg              config.LedgerConfig
	clock            func() time.Time
	log              *zap.Logger
}

type RaffleServiceOption func(*RaffleServiceImpl)

// WithClock 替換時間來源，測試用
func WithClock(clock func() time.Time) RaffleServiceOption {
	return func(s *RaffleServiceImpl) {
		s.clock = clock
	}
}

// NewRaffleService inventoryManager 與 eventQueue 可為 nil
func NewRaffleService(
	pool *pgxpool.Pool,
	raffleRepository repository.RaffleRepository,
	participantRepository repository.ParticipantRepository,
	eventRepository repository.LedgerEventRepository,
	accountRepository repository.AccountRepository,
	inventoryManager cache.RaffleInventoryManager,
	eventQueue queue.EventQueue,
	cfg config.LedgerConfig,
	opts ...RaffleServiceOption,
) RaffleService {
	if cfg.ClaimWindow <= 0 {
		cfg.ClaimWindow = config.DefaultClaimWindow
	}
	s := &RaffleServiceImpl{
		pool:             pool,
		raffles:          raffleRepository,
		participants:     participantRepository,
		events:           eventRepository,
		accounts:         accountRepository,
		inventoryManager: inventoryManager,
		eventQueue:       eventQueue,
		cfg:              cfg,
		clock:            time.Now,
		log:              logger.WithComponent("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RaffleServiceImpl) Now() time.Time {
	return s.clock().UTC()
}

func normalizeAddress(address string) (string, error) {
	addr, err := display.NormalizeAddress(address)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return addr, nil
}

// requireValue 附帶金額不足即失敗；實際只扣所需金額
func requireValue(value, required decimal.Decimal) error {
	if value.LessThan(required) {
		return fmt.Errorf("%w: value %s below required %s", apperrors.ErrInsufficientFunds, value, required)
	}
	return nil
}

func (s *RaffleServiceImpl) CreateRaffle(ctx context.Context, req model.CreateRaffleRequest) (*model.Raffle, error) {
	creator, err := normalizeAddress(req.Creator)
	if err != nil {
		return nil, err
	}
	if req.Name == "" || req.TotalTickets < model.MinTotalTickets ||
		req.DurationSeconds <= 0 || req.DurationSeconds > model.MaxDurationSeconds {
		return nil, apperrors.ErrInvalidInput
	}
	if err := accounting.ValidateWei(req.TicketPrice); err != nil {
		return nil, fmt.Errorf("%w: ticket price: %v", apperrors.ErrInvalidInput, err)
	}

	split := accounting.Compute(req.TicketPrice, req.TotalTickets)
	if err := requireValue(req.Value, split.TotalCreationCost); err != nil {
		return nil, err
	}

	seed, commitment, err := draw.NewSeed()
	if err != nil {
		return nil, err
	}

	now := s.Now()
	raffle := &model.Raffle{
		Creator:        creator,
		Name:           req.Name,
		Description:    req.Description,
		TicketPrice:    req.TicketPrice,
		TotalTickets:   req.TotalTickets,
		PrizeAmount:    split.PrizeAmount,
		CreatorProfit:  split.CreatorProfit,
		Commission:     split.Commission,
		EscrowBalance:  split.TotalVolume,
		EndTime:        now.Add(time.Duration(req.DurationSeconds) * time.Second),
		Status:         model.RaffleStatusActive,
		SeedCommitment: commitment,
		Seed:           seed,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var created *model.Raffle
	var emitted []*model.LedgerEvent

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// 1. 創建者支付票池總額 + 手續費
		if err := s.accounts.Debit(ctx, tx, creator, split.TotalCreationCost, now); err != nil {
			return err
		}
		if err := s.accounts.Credit(ctx, tx, repository.TreasuryAccount, split.Commission, now); err != nil {
			return err
		}

		// 2. 寫入抽獎，票池總額進入託管
		created, err = s.raffles.Create(ctx, tx, raffle)
		if err != nil {
			return err
		}

		// 3. 追加事件
		ev, err := s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:    created.ID,
			Kind:        model.EventRaffleCreated,
			Account:     creator,
			TicketCount: created.TotalTickets,
			Amount:      split.TotalCreationCost,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.inventoryManager != nil {
		if err := s.inventoryManager.WarmUp(ctx, created); err != nil {
			s.log.Warn("inventory warm up failed", zap.Int64("raffle_id", created.ID), zap.Error(err))
		}
	}
	s.publish(emitted...)

	s.log.Info("raffle created",
		zap.Int64("raffle_id", created.ID),
		zap.String("creator", creator),
		zap.Int64("total_tickets", created.TotalTickets),
		zap.String("ticket_price", created.TicketPrice.String()))

	return created, nil
}

func (s *RaffleServiceImpl) BuyTickets(ctx context.Context, req model.BuyTicketsRequest) (*model.Raffle, error) {
	buyer, err := normalizeAddress(req.Buyer)
	if err != nil {
		return nil, err
	}
	if req.Count <= 0 || req.RaffleID <= 0 {
		return nil, apperrors.ErrInvalidInput
	}

	now := s.Now()

	// 1. Redis 前置閘門：快取命中時直接擋下明顯失敗的請求
	reserved, cacheMiss, err := s.reserve(ctx, req.RaffleID, buyer, req.Count, now)
	if err != nil {
		return nil, err
	}

	var raffle *model.Raffle
	var emitted []*model.LedgerEvent

	// 2. 資料庫交易：列鎖 + 條件式更新，確保不超賣
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		raffle, err = s.raffles.FindByIDWithLock(ctx, tx, req.RaffleID)
		if err != nil {
			return err
		}
		if err := raffle.CheckBuy(now, buyer, req.Count); err != nil {
			return err
		}

		cost := accounting.TicketCost(raffle.TicketPrice, req.Count)
		if err := requireValue(req.Value, cost); err != nil {
			return err
		}
		if err := s.accounts.Debit(ctx, tx, buyer, cost, now); err != nil {
			return err
		}
		if err := s.raffles.AddSold(ctx, tx, raffle.ID, req.Count, cost, now); err != nil {
			return err
		}

		ev, err := s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:    raffle.ID,
			Kind:        model.EventTicketPurchased,
			Account:     buyer,
			TicketCount: req.Count,
			Amount:      cost,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)

		if err := s.participants.Upsert(ctx, tx, raffle.ID, buyer, req.Count, ev.Seq, now); err != nil {
			return err
		}

		raffle.SoldTickets += req.Count
		raffle.EscrowBalance = raffle.EscrowBalance.Add(cost)
		raffle.UpdatedAt = now
		return nil
	})
	if err != nil {
		if reserved {
			// 交易失敗，歸還預留：使用 Background 確保一定執行
			if rerr := s.inventoryManager.Release(context.Background(), req.RaffleID, buyer, req.Count); rerr != nil {
				s.log.Error("inventory release failed", zap.Int64("raffle_id", req.RaffleID), zap.Error(rerr))
			}
		}
		return nil, err
	}

	if cacheMiss {
		if err := s.inventoryManager.WarmUp(ctx, raffle); err != nil {
			s.log.Warn("inventory warm up failed", zap.Int64("raffle_id", raffle.ID), zap.Error(err))
		}
	}
	s.publish(emitted...)

	return raffle, nil
}

// reserve 回傳是否已預留、快取是否未命中。快取故障不影響購票，由資料庫裁決
func (s *RaffleServiceImpl) reserve(ctx context.Context, raffleID int64, buyer string, count int64, now time.Time) (bool, bool, error) {
	if s.inventoryManager == nil {
		return false, false, nil
	}

	err := s.inventoryManager.Reserve(ctx, raffleID, buyer, count, now)
	switch {
	case err == nil:
		return true, false, nil
	case errors.Is(err, apperrors.ErrRaffleNotFound):
		return false, true, nil
	case errors.Is(err, apperrors.ErrSoldOut),
		errors.Is(err, apperrors.ErrRaffleEnded),
		errors.Is(err, apperrors.ErrCreatorCannotBuy),
		errors.Is(err, apperrors.ErrInvalidInput):
		return false, false, err
	default:
		s.log.Warn("inventory reserve failed, falling back to database",
			zap.Int64("raffle_id", raffleID), zap.Error(err))
		return false, false, nil
	}
}

func (s *RaffleServiceImpl) EndRaffle(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error) {
	caller, err := normalizeAddress(caller)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var raffle *model.Raffle
	var emitted []*model.LedgerEvent

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		raffle, err = s.raffles.FindByIDWithLock(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if err := raffle.CheckEnd(now, caller); err != nil {
			return err
		}

		// 1. 依首次購票順序開獎
		participants, err := s.participants.ListByRaffleTx(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		entries := drawEntries(participants)
		result, err := draw.Run(raffle.Seed, raffle.ID, entries)
		if err != nil {
			return err
		}

		// 2. 創建者取回票款與 5% 利潤，託管只留下獎金
		proceeds := accounting.TicketCost(raffle.TicketPrice, raffle.SoldTickets)
		payout := raffle.CreatorProfit.Add(proceeds)
		if err := s.raffles.MarkEnded(ctx, tx, raffle.ID, result.Winner, now, payout); err != nil {
			return err
		}
		if err := s.accounts.Credit(ctx, tx, raffle.Creator, payout, now); err != nil {
			return err
		}

		// 3. 追加事件
		ended, err := s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:    raffle.ID,
			Kind:        model.EventRaffleEnded,
			Account:     result.Winner,
			TicketCount: int64(result.WinningTicket),
			Amount:      raffle.PrizeAmount,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		profit, err := s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:  raffle.ID,
			Kind:      model.EventCreatorProfitClaimed,
			Account:   raffle.Creator,
			Amount:    payout,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ended, profit)

		winner := result.Winner
		endedAt := now
		raffle.Status = model.RaffleStatusEnded
		raffle.Winner = &winner
		raffle.EndedAt = &endedAt
		raffle.CreatorProfitClaimed = true
		raffle.EscrowBalance = raffle.EscrowBalance.Sub(payout)
		raffle.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.inventoryManager != nil {
		if err := s.inventoryManager.Close(ctx, raffle.ID); err != nil {
			s.log.Warn("inventory close failed", zap.Int64("raffle_id", raffle.ID), zap.Error(err))
		}
	}
	s.publish(emitted...)

	s.log.Info("raffle ended",
		zap.Int64("raffle_id", raffle.ID),
		zap.String("winner", *raffle.Winner),
		zap.Int64("sold_tickets", raffle.SoldTickets))

	return raffle, nil
}

func (s *RaffleServiceImpl) ClaimPrize(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error) {
	caller, err := normalizeAddress(caller)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var raffle *model.Raffle
	var emitted []*model.LedgerEvent

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		raffle, err = s.raffles.FindByIDWithLock(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if err := raffle.CheckClaimPrize(caller); err != nil {
			return err
		}

		if err := s.raffles.MarkPrizeClaimed(ctx, tx, raffle.ID, raffle.PrizeAmount, now); err != nil {
			return err
		}
		if err := s.accounts.Credit(ctx, tx, caller, raffle.PrizeAmount, now); err != nil {
			return err
		}

		ev, err := s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:  raffle.ID,
			Kind:      model.EventPrizeClaimed,
			Account:   caller,
			Amount:    raffle.PrizeAmount,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)

		raffle.Status = model.RaffleStatusClaimed
		raffle.PrizeClaimedByWinner = true
		raffle.EscrowBalance = raffle.EscrowBalance.Sub(raffle.PrizeAmount)
		raffle.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(emitted...)
	return raffle, nil
}

func (s *RaffleServiceImpl) ClaimRefund(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error) {
	caller, err := normalizeAddress(caller)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	var raffle *model.Raffle
	var emitted []*model.LedgerEvent

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		raffle, err = s.raffles.FindByIDWithLock(ctx, tx, raffleID)
		if err != nil {
			return err
		}
		if err := raffle.CheckRefund(now, caller, s.cfg.ClaimWindow); err != nil {
			return err
		}

		if err := s.raffles.MarkRefunded(ctx, tx, raffle.ID, raffle.PrizeAmount, now); err != nil {
			return err
		}
		if err := s.accounts.Credit(ctx, tx, caller, raffle.PrizeAmount, now); err != nil {
			return err
		}

		ev, err := s.events.Append(ctx, tx, &model.LedgerEvent{
			RaffleID:  raffle.ID,
			Kind:      model.EventRefundClaimed,
			Account:   caller,
			Amount:    raffle.PrizeAmount,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		emitted = append(emitted, ev)

		raffle.Status = model.RaffleStatusExpired
		raffle.RefundClaimedByCreator = true
		raffle.EscrowBalance = raffle.EscrowBalance.Sub(raffle.PrizeAmount)
		raffle.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(emitted...)
	return raffle, nil
}

// publish 交易提交後才推送；失敗只記錄，事件仍可由資料庫查回
func (s *RaffleServiceImpl) publish(events ...*model.LedgerEvent) {
	if s.eventQueue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	for _, ev := range events {
		if err := s.eventQueue.PublishEvent(ctx, ev); err != nil {
			s.log.Warn("publish event failed",
				zap.Int64("raffle_id", ev.RaffleID),
				zap.Int64("seq", ev.Seq),
				zap.Error(err))
		}
	}
}

func drawEntries(participants []*model.ParticipantTicket) []draw.Entry {
	entries := make([]draw.Entry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, draw.Entry{Address: p.Participant, Tickets: p.TicketCount})
	}
	return entries
}

func (s *RaffleServiceImpl) GetRaffle(ctx context.Context, raffleID int64) (*model.Raffle, error) {
	return s.raffles.FindByID(ctx, raffleID)
}

func (s *RaffleServiceImpl) ListRaffles(ctx context.Context, filter model.RaffleFilter) ([]*model.Raffle, error) {
	if filter.Now.IsZero() {
		filter.Now = s.Now()
	}
	return s.raffles.List(ctx, filter)
}

func (s *RaffleServiceImpl) GetParticipantTickets(ctx context.Context, raffleID int64, address string) (int64, error) {
	addr, err := normalizeAddress(address)
	if err != nil {
		return 0, err
	}
	if _, err := s.raffles.FindByID(ctx, raffleID); err != nil {
		return 0, err
	}
	return s.participants.FindTickets(ctx, raffleID, addr)
}

func (s *RaffleServiceImpl) GetParticipants(ctx context.Context, raffleID int64) ([]*model.ParticipantTicket, error) {
	if _, err := s.raffles.FindByID(ctx, raffleID); err != nil {
		return nil, err
	}
	return s.participants.ListByRaffle(ctx, raffleID)
}

func (s *RaffleServiceImpl) GetUserRaffles(ctx context.Context, address string) ([]int64, error) {
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.raffles.ListIDsByCreator(ctx, addr)
}

func (s *RaffleServiceImpl) GetUserParticipations(ctx context.Context, address string) ([]int64, error) {
	addr, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.participants.ListRaffleIDsByParticipant(ctx, addr)
}

func (s *RaffleServiceImpl) TotalRaffles(ctx context.Context) (int64, error) {
	return s.raffles.Count(ctx)
}

func (s *RaffleServiceImpl) Events(ctx context.Context, raffleID int64, afterSeq int64, limit int) (*model.EventPage, error) {
	if afterSeq < 0 {
		afterSeq = 0
	}
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	if _, err := s.raffles.FindByID(ctx, raffleID); err != nil {
		return nil, err
	}

	events, err := s.events.ListByRaffle(ctx, raffleID, afterSeq, limit)
	if err != nil {
		return nil, err
	}

	if events == nil {
		events = []*model.LedgerEvent{}
	}
	page := &model.EventPage{Events: events, LastSeq: afterSeq}
	if n := len(events); n > 0 {
		page.LastSeq = events[n-1].Seq
	}
	return page, nil
}

// DrawProof 開獎前只公開承諾值，開獎後附上種子與重算結果
func (s *RaffleServiceImpl) DrawProof(ctx context.Context, raffleID int64) (*model.DrawProof, error) {
	raffle, err := s.raffles.FindByID(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	participants, err := s.participants.ListByRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	proof := &model.DrawProof{
		RaffleID:       raffle.ID,
		SeedCommitment: model.EncodeHex(raffle.SeedCommitment),
		SoldTickets:    raffle.SoldTickets,
		Entries:        make([]model.DrawEntry, 0, len(participants)),
	}
	for _, p := range participants {
		proof.Entries = append(proof.Entries, model.DrawEntry{Address: p.Participant, Tickets: p.TicketCount})
	}

	if raffle.Status == model.RaffleStatusActive || raffle.Winner == nil {
		return proof, nil
	}

	result, err := draw.Verify(raffle.Seed, raffle.SeedCommitment, raffle.ID, raffle.SoldTickets, drawEntries(participants), *raffle.Winner)
	if err != nil {
		s.log.Error("draw proof does not verify", zap.Int64("raffle_id", raffle.ID), zap.Error(err))
		return nil, apperrors.ErrInternalServerError
	}
	ticket := result.WinningTicket
	proof.Seed = model.EncodeHex(raffle.Seed)
	proof.WinningTicket = &ticket
	proof.Winner = raffle.Winner
	return proof, nil
}
