// Package syncer 讓客戶端與帳本保持同步：定時刷新抽獎詳情，並在寫入後確認預期的狀態變化
package syncer

import (
	"context"
	"time"

	"raffle-ledger/internal/client"
	"raffle-ledger/internal/model"
	"raffle-ledger/pkg/logger"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second
	maxActivity         = 100
)

// Snapshot 一次刷新的結果。Err 只在抽獎本身讀取失敗時設定
type Snapshot struct {
	Raffle       *model.RaffleResponse
	Participants []model.ParticipantResponse
	Activity     []*model.LedgerEvent
	LastSeq      int64
	FetchedAt    time.Time
	Err          error
}

// Watcher 定時刷新單一抽獎，生命週期由 Run 的 ctx 決定
type Watcher struct {
	view     *client.View
	raffleID int64
	interval time.Duration
	onUpdate func(Snapshot)
	trigger  chan struct{}
	log      *zap.Logger

	activity []*model.LedgerEvent
	lastSeq  int64
}

func NewWatcher(ledger client.Ledger, raffleID int64, interval time.Duration, onUpdate func(Snapshot)) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		view:     client.NewView(ledger),
		raffleID: raffleID,
		interval: interval,
		onUpdate: onUpdate,
		trigger:  make(chan struct{}, 1),
		log:      logger.WithComponent("syncer").With(zap.Int64("raffle_id", raffleID)),
	}
}

// Trigger 要求立即刷新，例如畫面重新取得焦點；多次呼叫會合併
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run 立即刷新一次，之後每個 interval 或 Trigger 時刷新，直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.refresh(ctx)
		case <-w.trigger:
			w.refresh(ctx)
			ticker.Reset(w.interval)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	snap := Snapshot{FetchedAt: time.Now()}

	raffle, err := w.view.Raffle(ctx, w.raffleID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Warn("refresh raffle failed", zap.Error(err))
		snap.Err = err
		snap.LastSeq = w.lastSeq
		w.emit(snap)
		return
	}
	snap.Raffle = raffle
	snap.Participants = w.view.Participants(ctx, w.raffleID)

	page := w.view.Activity(ctx, w.raffleID, w.lastSeq, 0)
	w.activity = append(w.activity, page.Events...)
	if n := len(w.activity); n > maxActivity {
		w.activity = w.activity[n-maxActivity:]
	}
	w.lastSeq = page.LastSeq

	snap.Activity = append([]*model.LedgerEvent(nil), w.activity...)
	snap.LastSeq = w.lastSeq
	w.emit(snap)
}

func (w *Watcher) emit(snap Snapshot) {
	if w.onUpdate != nil {
		w.onUpdate(snap)
	}
}
