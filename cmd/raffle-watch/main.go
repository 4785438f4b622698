package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/client"
	"raffle-ledger/internal/model"
	"raffle-ledger/internal/syncer"
	"raffle-ledger/pkg/display"
	"raffle-ledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	raffleID := flag.Int64("raffle", 0, "raffle id to watch")
	buy := flag.Int64("buy", 0, "buy this many tickets before watching")
	once := flag.Bool("once", false, "print a single snapshot and exit")
	audit := flag.Bool("audit", false, "replay the event log and compare it with the reported raffle")
	flag.Parse()

	log := logger.WithComponent("raffle-watch")
	defer logger.Sync()

	if *raffleID <= 0 {
		fmt.Fprintln(os.Stderr, "usage: raffle-watch -raffle <id> [-buy n] [-audit] [-once]")
		os.Exit(2)
	}

	cfg := config.LoadClientConfig()

	var opts []client.Option
	if key := os.Getenv("LEDGER_PRIVATE_KEY"); key != "" {
		signer, err := client.NewKeyAuthorizerFromHex(key)
		if err != nil {
			log.Fatal("invalid LEDGER_PRIVATE_KEY", zap.Error(err))
		}
		opts = append(opts, client.WithAuthorizer(signer))
	}

	ledger, err := client.NewHTTPLedger(cfg, opts...)
	if err != nil {
		log.Fatal("ledger client not configured", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *buy > 0 {
		if err := buyTickets(ctx, ledger, cfg, *raffleID, *buy); err != nil {
			log.Error("buy tickets", zap.Error(err))
			os.Exit(1)
		}
	}

	if *audit {
		report, err := syncer.Audit(ctx, ledger, *raffleID)
		if err != nil {
			log.Error("audit", zap.Error(err))
			os.Exit(1)
		}
		printAudit(report)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := syncer.NewWatcher(ledger, *raffleID, cfg.PollInterval, func(s syncer.Snapshot) {
		printSnapshot(s)
		if *once {
			cancel()
		}
	})
	if err := w.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("watcher stopped", zap.Error(err))
	}
}

func buyTickets(ctx context.Context, ledger *client.HTTPLedger, cfg config.ClientConfig, raffleID, count int64) error {
	if ledger.Account() == "" {
		return errors.New("LEDGER_PRIVATE_KEY is required to buy tickets")
	}

	raffle, err := ledger.GetRaffleInfo(ctx, raffleID)
	if err != nil {
		return err
	}
	value := raffle.TicketPrice.Mul(decimal.NewFromInt(count))
	fmt.Printf("buying %d ticket(s) for %s ETH as %s\n", count, display.FormatEther(value), display.ShortAddress(ledger.Account()))

	confirmer := syncer.NewConfirmer(ledger, syncer.ConfirmerConfigFrom(cfg))
	exp := syncer.ExpectPurchase(raffleID, ledger.Account(), raffle.SoldTickets, count)
	res := confirmer.Submit(ctx, exp, func(ctx context.Context) (*model.RaffleResponse, error) {
		return ledger.BuyTickets(ctx, raffleID, count, value)
	})

	fmt.Printf("purchase %s", res.Outcome)
	if res.Event != nil {
		fmt.Printf(" (seq %d)", res.Event.Seq)
	}
	fmt.Println()
	if res.Outcome == syncer.OutcomeFailed || res.Outcome == syncer.OutcomeRejected {
		return res.Err
	}
	return nil
}

func printSnapshot(s syncer.Snapshot) {
	ts := s.FetchedAt.Local().Format(time.TimeOnly)
	if s.Err != nil {
		fmt.Printf("[%s] unable to load raffle: %v\n", ts, s.Err)
		return
	}

	r := s.Raffle
	fmt.Printf("[%s] #%d %s  %s\n", ts, r.ID, display.TruncateText(r.Name, 40), r.StatusName)
	fmt.Printf("  tickets %d/%d  price %s ETH  prize %s ETH  %s\n",
		r.SoldTickets, r.TotalTickets,
		display.FormatEther(r.TicketPrice),
		display.FormatEther(r.PrizeAmount),
		display.FormatTimeRemaining(r.EndTime, s.FetchedAt))
	if r.Winner != nil {
		fmt.Printf("  winner %s (%s)\n", display.ShortAddress(*r.Winner), display.GenerateUsername(*r.Winner))
	}
	for _, p := range s.Participants {
		fmt.Printf("  %-22s %s  x%d\n", p.Username, display.ShortAddress(p.Address), p.TicketCount)
	}
	if n := len(s.Activity); n > 0 {
		last := s.Activity[n-1]
		fmt.Printf("  last event #%d %s by %s\n", last.Seq, last.Kind, display.ShortAddress(last.Account))
	}
}

func printAudit(r *syncer.AuditReport) {
	if r.OK() {
		fmt.Printf("audit ok: %d sold across %d participant(s), last seq %d\n",
			r.Replayed.SoldTickets, len(r.Replayed.Order), r.Replayed.LastSeq)
		return
	}
	fmt.Printf("audit found %d mismatch(es):\n", len(r.Mismatches))
	for _, m := range r.Mismatches {
		fmt.Printf("  %s\n", m)
	}
}
