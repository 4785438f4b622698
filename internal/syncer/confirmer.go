package syncer

import (
	"context"
	"errors"
	"strings"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/client"
	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/logger"

	"go.uber.org/zap"
)

// Outcome 寫入後的確認結果
type Outcome int

const (
	// OutcomeConfirmed 在帳本上觀察到預期的變化
	OutcomeConfirmed Outcome = iota
	// OutcomeUnconfirmed 重試用盡仍未觀察到，只能作為顯示用的樂觀確認，下次刷新以帳本為準
	OutcomeUnconfirmed
	// OutcomeRejected 使用者拒絕授權，不做任何輪詢
	OutcomeRejected
	// OutcomeFailed 帳本拒絕了這次寫入
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeUnconfirmed:
		return "unconfirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Expectation 寫入後預期出現的事件與狀態
type Expectation struct {
	RaffleID int64
	Kind     model.EventKind
	Account  string // 空字串表示不限帳戶
	Reached  func(*model.RaffleResponse) bool
}

func (e Expectation) matches(ev *model.LedgerEvent) bool {
	if ev.RaffleID != e.RaffleID || ev.Kind != e.Kind {
		return false
	}
	return e.Account == "" || strings.EqualFold(ev.Account, e.Account)
}

// ExpectPurchase soldBefore 為送出前看到的已售票數
func ExpectPurchase(raffleID int64, buyer string, soldBefore, count int64) Expectation {
	return Expectation{
		RaffleID: raffleID,
		Kind:     model.EventTicketPurchased,
		Account:  buyer,
		Reached: func(r *model.RaffleResponse) bool {
			return r.SoldTickets >= soldBefore+count
		},
	}
}

func ExpectEnded(raffleID int64) Expectation {
	return Expectation{
		RaffleID: raffleID,
		Kind:     model.EventRaffleEnded,
		Reached: func(r *model.RaffleResponse) bool {
			return r.Status != model.RaffleStatusActive
		},
	}
}

func ExpectPrizeClaimed(raffleID int64, winner string) Expectation {
	return Expectation{
		RaffleID: raffleID,
		Kind:     model.EventPrizeClaimed,
		Account:  winner,
		Reached: func(r *model.RaffleResponse) bool {
			return r.PrizeClaimedByWinner
		},
	}
}

func ExpectRefund(raffleID int64, creator string) Expectation {
	return Expectation{
		RaffleID: raffleID,
		Kind:     model.EventRefundClaimed,
		Account:  creator,
		Reached: func(r *model.RaffleResponse) bool {
			return r.RefundClaimedByCreator
		},
	}
}

// Result Attempts 為退回輪詢時查詢抽獎的次數
type Result struct {
	Outcome  Outcome
	Raffle   *model.RaffleResponse
	Event    *model.LedgerEvent
	Attempts int
	Err      error
}

type ConfirmerConfig struct {
	EventWait    time.Duration // 等待事件的總時間，0 表示直接輪詢
	InitialDelay time.Duration
	Retries      int
	Spacing      time.Duration
}

func DefaultConfirmerConfig() ConfirmerConfig {
	return ConfirmerConfig{
		EventWait:    25 * time.Second,
		InitialDelay: 3 * time.Second,
		Retries:      10,
		Spacing:      2 * time.Second,
	}
}

func ConfirmerConfigFrom(cfg config.ClientConfig) ConfirmerConfig {
	c := DefaultConfirmerConfig()
	if cfg.EventWait > 0 {
		c.EventWait = cfg.EventWait
	}
	if cfg.ConfirmDelay > 0 {
		c.InitialDelay = cfg.ConfirmDelay
	}
	if cfg.ConfirmRetries > 0 {
		c.Retries = cfg.ConfirmRetries
	}
	if cfg.ConfirmSpacing > 0 {
		c.Spacing = cfg.ConfirmSpacing
	}
	return c
}

const cursorPageSize = 500

// Confirmer 寫入後先等待事件紀錄，逾時才退回有上限的輪詢
type Confirmer struct {
	ledger client.Ledger
	cfg    ConfirmerConfig
	log    *zap.Logger
}

func NewConfirmer(ledger client.Ledger, cfg ConfirmerConfig) *Confirmer {
	return &Confirmer{ledger: ledger, cfg: cfg, log: logger.WithComponent("syncer")}
}

// Submit 送出寫入並等待 exp。寫入失敗時原樣回傳錯誤，不重試
func (c *Confirmer) Submit(ctx context.Context, exp Expectation, mutate func(context.Context) (*model.RaffleResponse, error)) Result {
	cursor, cursorOK := c.latestSeq(ctx, exp.RaffleID)

	if _, err := mutate(ctx); err != nil {
		if errors.Is(err, apperrors.ErrUserRejected) {
			return Result{Outcome: OutcomeRejected, Err: err}
		}
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if !cursorOK {
		return c.poll(ctx, exp)
	}
	return c.Await(ctx, exp, cursor)
}

// Await 等待 afterSeq 之後出現符合 exp 的事件，逾時退回輪詢
func (c *Confirmer) Await(ctx context.Context, exp Expectation, afterSeq int64) Result {
	if ev, ok := c.waitForEvent(ctx, exp, afterSeq); ok {
		res := Result{Outcome: OutcomeConfirmed, Event: ev}
		if raffle, err := c.ledger.GetRaffleInfo(ctx, exp.RaffleID); err == nil {
			res.Raffle = raffle
		}
		return res
	}
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeUnconfirmed, Err: err}
	}
	return c.poll(ctx, exp)
}

func (c *Confirmer) latestSeq(ctx context.Context, raffleID int64) (int64, bool) {
	var cursor int64
	for {
		page, err := c.ledger.Events(ctx, raffleID, cursor, cursorPageSize, 0)
		if err != nil {
			c.log.Warn("event cursor unavailable", zap.Int64("raffle_id", raffleID), zap.Error(err))
			return 0, false
		}
		cursor = page.LastSeq
		if len(page.Events) < cursorPageSize {
			return cursor, true
		}
	}
}

func (c *Confirmer) waitForEvent(ctx context.Context, exp Expectation, cursor int64) (*model.LedgerEvent, bool) {
	if c.cfg.EventWait <= 0 {
		return nil, false
	}
	deadline := time.Now().Add(c.cfg.EventWait)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		page, err := c.ledger.Events(ctx, exp.RaffleID, cursor, 0, remaining)
		if err != nil {
			c.log.Warn("event wait failed, falling back to polling", zap.Int64("raffle_id", exp.RaffleID), zap.Error(err))
			return nil, false
		}
		if len(page.Events) == 0 {
			return nil, false
		}
		for _, ev := range page.Events {
			if exp.matches(ev) {
				return ev, true
			}
		}
		cursor = page.LastSeq
	}
}

func (c *Confirmer) poll(ctx context.Context, exp Expectation) Result {
	res := Result{Outcome: OutcomeUnconfirmed}
	if !sleep(ctx, c.cfg.InitialDelay) {
		res.Err = ctx.Err()
		return res
	}

	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		res.Attempts = attempt
		raffle, err := c.ledger.GetRaffleInfo(ctx, exp.RaffleID)
		if err == nil {
			res.Raffle = raffle
			if exp.Reached != nil && exp.Reached(raffle) {
				res.Outcome = OutcomeConfirmed
				return res
			}
		}
		if attempt < c.cfg.Retries && !sleep(ctx, c.cfg.Spacing) {
			res.Err = ctx.Err()
			return res
		}
	}

	c.log.Info("confirmation retries exhausted",
		zap.Int64("raffle_id", exp.RaffleID),
		zap.String("kind", string(exp.Kind)),
		zap.Int("attempts", res.Attempts))
	return res
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
