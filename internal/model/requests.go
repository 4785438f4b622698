package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// CreateRaffleRequest 建立抽獎請求。金額為 wei 字串
type CreateRaffleRequest struct {
	Creator         string          `json:"-"`
	Name            string          `json:"name" binding:"required,max=200"`
	Description     string          `json:"description" binding:"max=2000"`
	TicketPrice     decimal.Decimal `json:"ticket_price"`
	TotalTickets    int64           `json:"total_tickets" binding:"required,min=2"`
	DurationSeconds int64           `json:"duration_seconds" binding:"required,min=1,max=315360000"`
	Value           decimal.Decimal `json:"value"`
}

// BuyTicketsRequest 購票請求
type BuyTicketsRequest struct {
	RaffleID int64           `json:"-"`
	Buyer    string          `json:"-"`
	Count    int64           `json:"count" binding:"required,min=1"`
	Value    decimal.Decimal `json:"value"`
}

// DepositRequest 儲值請求
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// WithdrawCommissionRequest 提領手續費；amount 為零或省略時提領全部
type WithdrawCommissionRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RaffleResponse 抽獎回應，附帶顯示用欄位
type RaffleResponse struct {
	*Raffle
	StatusName         string `json:"status_name"`
	RemainingTickets   int64  `json:"remaining_tickets"`
	ClosedWithoutSales bool   `json:"closed_without_sales"`
	SeedCommitment     string `json:"seed_commitment"`
}

// NewRaffleResponse 以 now 計算顯示狀態
func NewRaffleResponse(r *Raffle, now time.Time) *RaffleResponse {
	return &RaffleResponse{
		Raffle:             r,
		StatusName:         r.Status.String(),
		RemainingTickets:   r.RemainingTickets(),
		ClosedWithoutSales: r.ClosedWithoutSales(now),
		SeedCommitment:     EncodeHex(r.SeedCommitment),
	}
}

// ParticipantResponse 參與者與票數
type ParticipantResponse struct {
	Address     string `json:"address"`
	TicketCount int64  `json:"ticket_count"`
	Username    string `json:"username"`
}

// DrawProof 開獎驗證資料。Seed 只在開獎後公開
type DrawProof struct {
	RaffleID       int64       `json:"raffle_id"`
	SeedCommitment string      `json:"seed_commitment"`
	Seed           string      `json:"seed,omitempty"`
	SoldTickets    int64       `json:"sold_tickets"`
	Entries        []DrawEntry `json:"entries"`
	WinningTicket  *uint64     `json:"winning_ticket,omitempty"`
	Winner         *string     `json:"winner,omitempty"`
}

// DrawEntry 開獎名單，依首次購票順序排列
type DrawEntry struct {
	Address string `json:"address"`
	Tickets int64  `json:"tickets"`
}

// Account 帳戶餘額
type Account struct {
	Address   string          `json:"address" db:"address"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// NetworkInfo 帳本所在網路
type NetworkInfo struct {
	ChainID int64 `json:"chain_id"`
}

// EncodeHex 0x 前綴十六進位，空值回傳空字串
func EncodeHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}
