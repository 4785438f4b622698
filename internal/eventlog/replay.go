// Package eventlog rebuilds raffle ticket state from the ledger event log.
package eventlog

import (
	"errors"
	"fmt"
	"sort"

	"raffle-ledger/internal/model"
)

var (
	ErrMissingCreate = errors.New("eventlog: RaffleCreated event missing")
	ErrOutOfOrder    = errors.New("eventlog: events out of sequence order")
	ErrOversold      = errors.New("eventlog: purchases exceed total tickets")
)

// State is what a replay reconstructs.
type State struct {
	RaffleID     int64
	TotalTickets int64
	SoldTickets  int64
	Tickets      map[string]int64
	Order        []string // participants by first purchase
	LastSeq      int64
}

// Participants returns ticket holders in first-purchase order.
func (s *State) Participants() []model.ParticipantTicket {
	out := make([]model.ParticipantTicket, 0, len(s.Order))
	for _, p := range s.Order {
		out = append(out, model.ParticipantTicket{
			RaffleID:    s.RaffleID,
			Participant: p,
			TicketCount: s.Tickets[p],
		})
	}
	return out
}

// Replay folds the events of a single raffle. totalTickets of the
// RaffleCreated event is carried in its TicketCount field.
func Replay(events []*model.LedgerEvent) (*State, error) {
	var state *State

	for _, ev := range events {
		if state != nil && ev.Seq <= state.LastSeq {
			return nil, fmt.Errorf("%w: seq %d after %d", ErrOutOfOrder, ev.Seq, state.LastSeq)
		}

		switch ev.Kind {
		case model.EventRaffleCreated:
			state = &State{
				RaffleID:     ev.RaffleID,
				TotalTickets: ev.TicketCount,
				Tickets:      make(map[string]int64),
			}
		case model.EventTicketPurchased:
			if state == nil {
				return nil, ErrMissingCreate
			}
			if _, ok := state.Tickets[ev.Account]; !ok {
				state.Order = append(state.Order, ev.Account)
			}
			state.Tickets[ev.Account] += ev.TicketCount
			state.SoldTickets += ev.TicketCount
			if state.SoldTickets > state.TotalTickets {
				return nil, ErrOversold
			}
		default:
			if state == nil {
				return nil, ErrMissingCreate
			}
		}
		state.LastSeq = ev.Seq
	}

	if state == nil {
		return nil, ErrMissingCreate
	}
	return state, nil
}

// SortBySeq orders events ascending by sequence number in place.
func SortBySeq(events []*model.LedgerEvent) {
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
}

// FilterRaffle keeps the events of one raffle.
func FilterRaffle(events []*model.LedgerEvent, raffleID int64) []*model.LedgerEvent {
	out := make([]*model.LedgerEvent, 0, len(events))
	for _, ev := range events {
		if ev.RaffleID == raffleID {
			out = append(out, ev)
		}
	}
	return out
}
