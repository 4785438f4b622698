package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind 帳本事件種類
type EventKind string

const (
	EventRaffleCreated        EventKind = "RaffleCreated"
	EventTicketPurchased      EventKind = "TicketPurchased"
	EventRaffleEnded          EventKind = "RaffleEnded"
	EventPrizeClaimed         EventKind = "PrizeClaimed"
	EventRefundClaimed        EventKind = "RefundClaimed"
	EventCreatorProfitClaimed EventKind = "CreatorProfitClaimed"
	EventCommissionWithdrawn  EventKind = "CommissionWithdrawn"
)

func (k EventKind) IsValid() bool {
	switch k {
	case EventRaffleCreated, EventTicketPurchased, EventRaffleEnded, EventPrizeClaimed,
		EventRefundClaimed, EventCreatorProfitClaimed, EventCommissionWithdrawn:
		return true
	}
	return false
}

// LedgerEvent 只追加的事件紀錄，依 Seq 排序。寫入後不可變更
type LedgerEvent struct {
	Seq         int64           `json:"seq" db:"seq"`
	RaffleID    int64           `json:"raffle_id" db:"raffle_id"`
	Kind        EventKind       `json:"kind" db:"kind"`
	Account     string          `json:"account" db:"account"`
	TicketCount int64           `json:"ticket_count" db:"ticket_count"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// EventPage 事件分頁結果
type EventPage struct {
	Events  []*LedgerEvent `json:"events"`
	LastSeq int64          `json:"last_seq"`
}
