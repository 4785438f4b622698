// Package draw implements the commit-reveal weighted winner draw.
//
// At creation the ledger keeps a secret 32-byte seed and publishes
// keccak256(seed). At the end of the raffle the winning ticket index is
// keccak256(seed || raffleID || soldTickets || entriesDigest) mod soldTickets,
// where the entries are the participants in first-purchase order, each
// owning TicketCount consecutive ticket indexes. Once the seed is revealed
// anyone can recompute the result with Verify.
package draw

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const SeedSize = 32

var (
	ErrNoEntries           = errors.New("draw: no entries")
	ErrInvalidSeed         = errors.New("draw: seed does not match commitment")
	ErrTicketCountMismatch = errors.New("draw: entries do not add up to sold tickets")
)

// Entry is one participant's block of tickets.
type Entry struct {
	Address string
	Tickets int64
}

// Result of a draw.
type Result struct {
	WinningTicket uint64
	Winner        string
}

// NewSeed draws a fresh secret seed and its public commitment.
func NewSeed() (seed []byte, commitment []byte, err error) {
	seed = make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, fmt.Errorf("read seed: %w", err)
	}
	return seed, Commit(seed), nil
}

// Commit returns keccak256(seed).
func Commit(seed []byte) []byte {
	return crypto.Keccak256(seed)
}

// CheckSeed reports whether seed opens commitment.
func CheckSeed(seed, commitment []byte) error {
	if len(seed) != SeedSize || !bytes.Equal(Commit(seed), commitment) {
		return ErrInvalidSeed
	}
	return nil
}

// EntriesDigest binds the draw to the exact participant layout.
func EntriesDigest(entries []Entry) []byte {
	var buf bytes.Buffer
	var n [8]byte
	for _, e := range entries {
		buf.Write(common.HexToAddress(e.Address).Bytes())
		binary.BigEndian.PutUint64(n[:], uint64(e.Tickets))
		buf.Write(n[:])
	}
	return crypto.Keccak256(buf.Bytes())
}

// WinningTicket computes the winning ticket index in [0, soldTickets).
func WinningTicket(seed []byte, raffleID int64, entries []Entry) (uint64, error) {
	sold := totalTickets(entries)
	if sold <= 0 {
		return 0, ErrNoEntries
	}

	var id, count [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(raffleID))
	binary.BigEndian.PutUint64(count[:], uint64(sold))

	h := crypto.Keccak256(seed, id[:], count[:], EntriesDigest(entries))
	r := new(big.Int).SetBytes(h)
	r.Mod(r, big.NewInt(sold))
	return r.Uint64(), nil
}

// Pick maps a ticket index onto the owning entry.
func Pick(entries []Entry, ticket uint64) (string, error) {
	var cursor uint64
	for _, e := range entries {
		if e.Tickets <= 0 {
			continue
		}
		cursor += uint64(e.Tickets)
		if ticket < cursor {
			return e.Address, nil
		}
	}
	return "", ErrNoEntries
}

// Run performs the draw.
func Run(seed []byte, raffleID int64, entries []Entry) (Result, error) {
	ticket, err := WinningTicket(seed, raffleID, entries)
	if err != nil {
		return Result{}, err
	}
	winner, err := Pick(entries, ticket)
	if err != nil {
		return Result{}, err
	}
	return Result{WinningTicket: ticket, Winner: winner}, nil
}

// Verify recomputes a published draw.
func Verify(seed, commitment []byte, raffleID int64, soldTickets int64, entries []Entry, winner string) (Result, error) {
	if err := CheckSeed(seed, commitment); err != nil {
		return Result{}, err
	}
	if totalTickets(entries) != soldTickets {
		return Result{}, ErrTicketCountMismatch
	}
	res, err := Run(seed, raffleID, entries)
	if err != nil {
		return Result{}, err
	}
	if !common.IsHexAddress(winner) || common.HexToAddress(winner) != common.HexToAddress(res.Winner) {
		return res, fmt.Errorf("draw: recomputed winner %s, published %s", res.Winner, winner)
	}
	return res, nil
}

func totalTickets(entries []Entry) int64 {
	var sum int64
	for _, e := range entries {
		if e.Tickets > 0 {
			sum += e.Tickets
		}
	}
	return sum
}
