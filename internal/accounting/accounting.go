// Package accounting computes the fixed monetary split of a raffle.
//
// All amounts are integer wei. Percentages are applied with truncating
// integer division, the same way the contract computes x*3/100.
package accounting

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	CommissionPercent    = 3
	CreatorProfitPercent = 5
)

var (
	hundred = decimal.NewFromInt(100)

	ErrNonIntegerAmount = errors.New("amount must be a whole number of wei")
	ErrNonPositive      = errors.New("amount must be positive")
)

// Split is the money layout of one raffle.
type Split struct {
	TotalVolume       decimal.Decimal `json:"total_volume"`
	Commission        decimal.Decimal `json:"commission"`
	CreatorProfit     decimal.Decimal `json:"creator_profit"`
	PrizeAmount       decimal.Decimal `json:"prize_amount"`
	TotalCreationCost decimal.Decimal `json:"total_creation_cost"`
}

// ValidateWei reports whether v is a positive whole number of wei.
func ValidateWei(v decimal.Decimal) error {
	if !v.IsInteger() {
		return ErrNonIntegerAmount
	}
	if !v.IsPositive() {
		return ErrNonPositive
	}
	return nil
}

// Compute derives the split from the ticket price (wei) and ticket count.
// prizeAmount is volume minus creator profit so the two always add up to volume.
func Compute(ticketPrice decimal.Decimal, totalTickets int64) Split {
	volume := ticketPrice.Mul(decimal.NewFromInt(totalTickets)).Truncate(0)
	commission := percentOf(volume, CommissionPercent)
	profit := percentOf(volume, CreatorProfitPercent)

	return Split{
		TotalVolume:       volume,
		Commission:        commission,
		CreatorProfit:     profit,
		PrizeAmount:       volume.Sub(profit),
		TotalCreationCost: volume.Add(commission),
	}
}

// TicketCost is the payment required for count tickets.
func TicketCost(ticketPrice decimal.Decimal, count int64) decimal.Decimal {
	return ticketPrice.Mul(decimal.NewFromInt(count)).Truncate(0)
}

func percentOf(amount decimal.Decimal, percent int64) decimal.Decimal {
	q, _ := amount.Mul(decimal.NewFromInt(percent)).QuoRem(hundred, 0)
	return q
}
