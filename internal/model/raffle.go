package model

import (
	"time"

	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/shopspring/decimal"
)

// RaffleStatus 抽獎狀態，數值與合約 ABI 的 uint8 對齊
type RaffleStatus uint8

const (
	RaffleStatusActive RaffleStatus = iota
	RaffleStatusEnded
	RaffleStatusClaimed
	RaffleStatusExpired
)

func (s RaffleStatus) String() string {
	switch s {
	case RaffleStatusActive:
		return "active"
	case RaffleStatusEnded:
		return "ended"
	case RaffleStatusClaimed:
		return "claimed"
	case RaffleStatusExpired:
		return "expired"
	}
	return "unknown"
}

// IsValid 驗證狀態是否有效
func (s RaffleStatus) IsValid() bool {
	switch s {
	case RaffleStatusActive, RaffleStatusEnded, RaffleStatusClaimed, RaffleStatusExpired:
		return true
	}
	return false
}

// ParseRaffleStatus 解析狀態名稱
func ParseRaffleStatus(name string) (RaffleStatus, bool) {
	for _, s := range []RaffleStatus{RaffleStatusActive, RaffleStatusEnded, RaffleStatusClaimed, RaffleStatusExpired} {
		if s.String() == name {
			return s, true
		}
	}
	return 0, false
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
func (s RaffleStatus) CanTransitionTo(target RaffleStatus) bool {
	transitions := map[RaffleStatus][]RaffleStatus{
		RaffleStatusActive:  {RaffleStatusEnded},
		RaffleStatusEnded:   {RaffleStatusClaimed, RaffleStatusExpired},
		RaffleStatusClaimed: {},
		RaffleStatusExpired: {},
	}

	for _, status := range transitions[s] {
		if status == target {
			return true
		}
	}
	return false
}

// MinTotalTickets 一場抽獎至少要有的票數
const MinTotalTickets = 2

// MaxDurationSeconds 抽獎期限上限（十年），避免換算成 time.Duration 時溢位
const MaxDurationSeconds int64 = 10 * 365 * 24 * 60 * 60

// Raffle 抽獎模型。金額皆為整數 wei
type Raffle struct {
	ID                     int64           `json:"id" db:"id"`
	Creator                string          `json:"creator" db:"creator"`
	Name                   string          `json:"name" db:"name"`
	Description            string          `json:"description" db:"description"`
	TicketPrice            decimal.Decimal `json:"ticket_price" db:"ticket_price"`
	TotalTickets           int64           `json:"total_tickets" db:"total_tickets"`
	SoldTickets            int64           `json:"sold_tickets" db:"sold_tickets"`
	PrizeAmount            decimal.Decimal `json:"prize_amount" db:"prize_amount"`
	CreatorProfit          decimal.Decimal `json:"creator_profit" db:"creator_profit"`
	Commission             decimal.Decimal `json:"commission" db:"commission"`
	EscrowBalance          decimal.Decimal `json:"escrow_balance" db:"escrow_balance"`
	EndTime                time.Time       `json:"end_time" db:"end_time"`
	Winner                 *string         `json:"winner,omitempty" db:"winner"`
	EndedAt                *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	PrizeClaimedByWinner   bool            `json:"prize_claimed_by_winner" db:"prize_claimed_by_winner"`
	RefundClaimedByCreator bool            `json:"refund_claimed_by_creator" db:"refund_claimed_by_creator"`
	CreatorProfitClaimed   bool            `json:"creator_profit_claimed" db:"creator_profit_claimed"`
	Status                 RaffleStatus    `json:"status" db:"status"`
	SeedCommitment         []byte          `json:"-" db:"seed_commitment"`
	Seed                   []byte          `json:"-" db:"seed"`
	CreatedAt              time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at" db:"updated_at"`
}

// RemainingTickets 剩餘可售票數
func (r *Raffle) RemainingTickets() int64 {
	return r.TotalTickets - r.SoldTickets
}

// IsSoldOut 是否已售完
func (r *Raffle) IsSoldOut() bool {
	return r.SoldTickets >= r.TotalTickets
}

// HasExpired 是否已過截止時間
func (r *Raffle) HasExpired(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// ClosedWithoutSales 截止時一張票都沒賣出：沒有任何可執行的轉換，只供顯示
func (r *Raffle) ClosedWithoutSales(now time.Time) bool {
	return r.Status == RaffleStatusActive && r.SoldTickets == 0 && r.HasExpired(now)
}

// IsAvailable 檢查是否仍可購票
func (r *Raffle) IsAvailable(now time.Time) bool {
	return r.Status == RaffleStatusActive && !r.HasExpired(now) && !r.IsSoldOut()
}

// IsExpiringSoon 進行中且將在 window 內截止
func (r *Raffle) IsExpiringSoon(now time.Time, window time.Duration) bool {
	return r.Status == RaffleStatusActive && r.EndTime.After(now) && !r.EndTime.After(now.Add(window))
}

// CheckBuy 購票前置條件
func (r *Raffle) CheckBuy(now time.Time, buyer string, count int64) error {
	if count <= 0 {
		return apperrors.ErrInvalidInput
	}
	if r.Status != RaffleStatusActive || r.HasExpired(now) {
		return apperrors.ErrRaffleEnded
	}
	if buyer == r.Creator {
		return apperrors.ErrCreatorCannotBuy
	}
	if r.SoldTickets+count > r.TotalTickets {
		return apperrors.ErrSoldOut
	}
	return nil
}

// CheckEnd 結束抽獎前置條件：只有創建者，且已截止或已售完，且至少賣出一張
func (r *Raffle) CheckEnd(now time.Time, caller string) error {
	if caller != r.Creator {
		return apperrors.ErrNotCreator
	}
	if r.Status != RaffleStatusActive {
		return apperrors.ErrRaffleEnded
	}
	if !r.HasExpired(now) && !r.IsSoldOut() {
		return apperrors.ErrRaffleStillOpen
	}
	if r.SoldTickets == 0 {
		return apperrors.ErrNoParticipants
	}
	return nil
}

// CheckClaimPrize 領獎前置條件
func (r *Raffle) CheckClaimPrize(caller string) error {
	if r.Status == RaffleStatusActive || r.Winner == nil {
		return apperrors.ErrNotEnded
	}
	if caller != *r.Winner {
		return apperrors.ErrNotWinner
	}
	if r.PrizeClaimedByWinner {
		return apperrors.ErrAlreadyClaimed
	}
	if r.RefundClaimedByCreator || r.Status != RaffleStatusEnded {
		return apperrors.ErrAlreadyRefunded
	}
	return nil
}

// ClaimDeadline 得獎者領獎截止時間
func (r *Raffle) ClaimDeadline(window time.Duration) (time.Time, bool) {
	if r.EndedAt == nil {
		return time.Time{}, false
	}
	return r.EndedAt.Add(window), true
}

// CheckRefund 退款前置條件：得獎者逾期未領，創建者取回獎金
func (r *Raffle) CheckRefund(now time.Time, caller string, window time.Duration) error {
	if caller != r.Creator {
		return apperrors.ErrNotCreator
	}
	if r.Status == RaffleStatusActive {
		return apperrors.ErrNotEnded
	}
	if r.RefundClaimedByCreator {
		return apperrors.ErrAlreadyRefunded
	}
	if r.PrizeClaimedByWinner {
		return apperrors.ErrAlreadyClaimed
	}
	deadline, ok := r.ClaimDeadline(window)
	if !ok || now.Before(deadline) {
		return apperrors.ErrNotExpiredYet
	}
	return nil
}

// ParticipantTicket 參與者在某場抽獎持有的票數，只增不減
type ParticipantTicket struct {
	RaffleID         int64     `json:"raffle_id" db:"raffle_id"`
	Participant      string    `json:"participant" db:"participant"`
	TicketCount      int64     `json:"ticket_count" db:"ticket_count"`
	FirstPurchaseSeq int64     `json:"first_purchase_seq" db:"first_purchase_seq"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// RaffleFilter 列表查詢條件。StartID 為游標，只回傳 id 大於它的抽獎
type RaffleFilter struct {
	StartID        int64
	Limit          int
	Status         *RaffleStatus
	ExpiringWithin time.Duration // >0 時只列出進行中且將在此區間內截止者
	Now            time.Time
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize 套用預設與上限
func (f RaffleFilter) Normalize() RaffleFilter {
	if f.StartID < 0 {
		f.StartID = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}
