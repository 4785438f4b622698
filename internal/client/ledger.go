// Package client 帳本的客戶端：可注入的 Ledger 介面、HTTP 實作與請求簽署
package client

import (
	"context"
	"time"

	"raffle-ledger/internal/model"

	"github.com/shopspring/decimal"
)

// CreateRaffleParams 建立抽獎參數，Value 為附帶金額（wei）
type CreateRaffleParams struct {
	Name            string
	Description     string
	TicketPrice     decimal.Decimal
	TotalTickets    int64
	DurationSeconds int64
	Value           decimal.Decimal
}

// Ledger 帳本操作。呼叫端以 ctx 傳入取消與逾時，實作不持有全域狀態
type Ledger interface {
	CreateRaffle(ctx context.Context, params CreateRaffleParams) (*model.RaffleResponse, error)
	BuyTickets(ctx context.Context, raffleID, count int64, value decimal.Decimal) (*model.RaffleResponse, error)
	EndRaffle(ctx context.Context, raffleID int64) (*model.RaffleResponse, error)
	ClaimPrize(ctx context.Context, raffleID int64) (*model.RaffleResponse, error)
	ClaimRefund(ctx context.Context, raffleID int64) (*model.RaffleResponse, error)

	GetRaffleInfo(ctx context.Context, raffleID int64) (*model.RaffleResponse, error)
	GetParticipantTickets(ctx context.Context, raffleID int64, address string) (int64, error)
	GetRaffleParticipants(ctx context.Context, raffleID int64) ([]model.ParticipantResponse, error)
	GetUserRaffles(ctx context.Context, address string) ([]int64, error)
	GetUserParticipations(ctx context.Context, address string) ([]int64, error)
	GetTotalRaffles(ctx context.Context) (int64, error)
	// Events wait>0 時伺服器最多等待該時間才回傳空結果
	Events(ctx context.Context, raffleID, after int64, limit int, wait time.Duration) (*model.EventPage, error)
	ChainID(ctx context.Context) (int64, error)

	// Account 目前授權者的地址，未設定授權者時為空字串
	Account() string
}
