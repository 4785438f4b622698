package client

import (
	"context"

	"raffle-ledger/internal/model"
	"raffle-ledger/pkg/logger"

	"go.uber.org/zap"
)

// View 顯示用的讀取介面：參與者、票數、使用者列表與活動紀錄讀取失敗時回傳空值，
// 抽獎本身的讀取仍回傳錯誤
type View struct {
	ledger Ledger
	log    *zap.Logger
}

func NewView(ledger Ledger) *View {
	return &View{ledger: ledger, log: logger.WithComponent("client")}
}

func (v *View) Raffle(ctx context.Context, raffleID int64) (*model.RaffleResponse, error) {
	return v.ledger.GetRaffleInfo(ctx, raffleID)
}

func (v *View) Participants(ctx context.Context, raffleID int64) []model.ParticipantResponse {
	participants, err := v.ledger.GetRaffleParticipants(ctx, raffleID)
	if err != nil {
		v.log.Warn("participants unavailable", zap.Int64("raffle_id", raffleID), zap.Error(err))
		return []model.ParticipantResponse{}
	}
	if participants == nil {
		return []model.ParticipantResponse{}
	}
	return participants
}

func (v *View) Tickets(ctx context.Context, raffleID int64, address string) int64 {
	count, err := v.ledger.GetParticipantTickets(ctx, raffleID, address)
	if err != nil {
		v.log.Warn("ticket count unavailable", zap.Int64("raffle_id", raffleID), zap.String("address", address), zap.Error(err))
		return 0
	}
	return count
}

func (v *View) UserRaffles(ctx context.Context, address string) []int64 {
	return v.ids(ctx, "user raffles", address, v.ledger.GetUserRaffles)
}

func (v *View) UserParticipations(ctx context.Context, address string) []int64 {
	return v.ids(ctx, "user participations", address, v.ledger.GetUserParticipations)
}

func (v *View) ids(ctx context.Context, what, address string, fn func(context.Context, string) ([]int64, error)) []int64 {
	ids, err := fn(ctx, address)
	if err != nil {
		v.log.Warn(what+" unavailable", zap.String("address", address), zap.Error(err))
		return []int64{}
	}
	if ids == nil {
		return []int64{}
	}
	return ids
}

func (v *View) TotalRaffles(ctx context.Context) int64 {
	total, err := v.ledger.GetTotalRaffles(ctx)
	if err != nil {
		v.log.Warn("total raffles unavailable", zap.Error(err))
		return 0
	}
	return total
}

// Activity after 之後的事件，失敗時回傳空頁且游標不前進
func (v *View) Activity(ctx context.Context, raffleID, after int64, limit int) *model.EventPage {
	page, err := v.ledger.Events(ctx, raffleID, after, limit, 0)
	if err != nil {
		v.log.Warn("activity unavailable", zap.Int64("raffle_id", raffleID), zap.Error(err))
		return &model.EventPage{Events: []*model.LedgerEvent{}, LastSeq: after}
	}
	return page
}
