// Package notify fans committed ledger events out to in-process subscribers.
package notify

import (
	"sync"

	"raffle-ledger/internal/model"
)

// AllRaffles subscribes to every raffle.
const AllRaffles int64 = 0

type Hub struct {
	mu         sync.RWMutex
	subs       map[int64]map[*Subscription]struct{}
	bufferSize int
	dropped    uint64
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Hub{
		subs:       make(map[int64]map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

type Subscription struct {
	C        <-chan *model.LedgerEvent
	ch       chan *model.LedgerEvent
	raffleID int64
	hub      *Hub
	once     sync.Once
}

// Subscribe registers for events of raffleID, or every raffle with AllRaffles.
func (h *Hub) Subscribe(raffleID int64) *Subscription {
	ch := make(chan *model.LedgerEvent, h.bufferSize)
	sub := &Subscription{C: ch, ch: ch, raffleID: raffleID, hub: h}

	h.mu.Lock()
	if h.subs[raffleID] == nil {
		h.subs[raffleID] = make(map[*Subscription]struct{})
	}
	h.subs[raffleID][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Close unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		delete(h.subs[s.raffleID], s)
		if len(h.subs[s.raffleID]) == 0 {
			delete(h.subs, s.raffleID)
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// Publish never blocks. A subscriber whose buffer is full misses the event
// and has to catch up from the event log by sequence number.
func (h *Hub) Publish(event *model.LedgerEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := []int64{event.RaffleID}
	if event.RaffleID != AllRaffles {
		targets = append(targets, AllRaffles)
	}

	delivered := 0
	for _, id := range targets {
		for sub := range h.subs[id] {
			select {
			case sub.ch <- event:
				delivered++
			default:
				h.dropped++
			}
		}
	}
	return delivered
}

// Subscribers counts live subscriptions for raffleID.
func (h *Hub) Subscribers(raffleID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[raffleID])
}

// Dropped counts events not delivered to full subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
