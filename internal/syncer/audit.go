package syncer

import (
	"context"
	"fmt"
	"strings"

	"raffle-ledger/internal/client"
	"raffle-ledger/internal/eventlog"
	"raffle-ledger/internal/model"
)

// AuditReport 由事件紀錄重建的狀態與帳本回報值的比對結果
type AuditReport struct {
	RaffleID   int64
	Replayed   *eventlog.State
	Reported   *model.RaffleResponse
	Mismatches []string
}

// OK 沒有任何不一致
func (r *AuditReport) OK() bool {
	return len(r.Mismatches) == 0
}

// Audit 讀取整段事件紀錄重播，再與帳本回報的售票數與參與者比對。
// 讀取失敗回傳 error；資料不一致記在 Mismatches
func Audit(ctx context.Context, ledger client.Ledger, raffleID int64) (*AuditReport, error) {
	events, err := allEvents(ctx, ledger, raffleID)
	if err != nil {
		return nil, err
	}
	state, err := eventlog.Replay(events)
	if err != nil {
		return nil, fmt.Errorf("replay raffle %d: %w", raffleID, err)
	}

	reported, err := ledger.GetRaffleInfo(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	participants, err := ledger.GetRaffleParticipants(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{RaffleID: raffleID, Replayed: state, Reported: reported}
	if state.TotalTickets != reported.TotalTickets {
		report.addf("total tickets: replayed %d, reported %d", state.TotalTickets, reported.TotalTickets)
	}
	if state.SoldTickets != reported.SoldTickets {
		report.addf("sold tickets: replayed %d, reported %d", state.SoldTickets, reported.SoldTickets)
	}

	replayed := state.Participants()
	if len(replayed) != len(participants) {
		report.addf("participants: replayed %d, reported %d", len(replayed), len(participants))
		return report, nil
	}
	// 參與者順序即開獎順序，必須完全一致
	for i, p := range replayed {
		got := participants[i]
		if !strings.EqualFold(p.Participant, got.Address) || p.TicketCount != got.TicketCount {
			report.addf("participant %d: replayed %s x%d, reported %s x%d",
				i, p.Participant, p.TicketCount, got.Address, got.TicketCount)
		}
	}
	return report, nil
}

func (r *AuditReport) addf(format string, args ...interface{}) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}

func allEvents(ctx context.Context, ledger client.Ledger, raffleID int64) ([]*model.LedgerEvent, error) {
	var (
		events []*model.LedgerEvent
		cursor int64
	)
	for {
		page, err := ledger.Events(ctx, raffleID, cursor, cursorPageSize, 0)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		cursor = page.LastSeq
		if len(page.Events) < cursorPageSize {
			break
		}
	}
	events = eventlog.FilterRaffle(events, raffleID)
	eventlog.SortBySeq(events)
	return events, nil
}
