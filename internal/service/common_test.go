package service_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/cache"
	"raffle-ledger/internal/database"
	"raffle-ledger/internal/model"
	"raffle-ledger/internal/queue"
	"raffle-ledger/internal/repository"
	"raffle-ledger/internal/service"
	"raffle-ledger/internal/testutil"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	creatorAddr = "0x1111111111111111111111111111111111111111"
	buyerAddr   = "0x2222222222222222222222222222222222222222"
	otherAddr   = "0x3333333333333333333333333333333333333333"
	ownerAddr   = "0x00000000000000000000000000000000000000AA"
)

var (
	testDB  *pgxpool.Pool
	testRdb *redis.Client

	oneEther   = decimal.RequireFromString("1000000000000000000")
	ticketWei  = decimal.RequireFromString("10000000000000000")
	largeFunds = oneEther.Mul(decimal.NewFromInt(100))
)

func TestMain(m *testing.M) {
	db, rdb, cleanup, err := testutil.Setup()
	if err != nil {
		log.Printf("Skipping service integration tests: %v", err)
		os.Exit(0)
	}
	testDB = db
	testRdb = rdb

	code := m.Run()
	cleanup()
	os.Exit(code)
}

// testClock 可手動推進的時間來源
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	raffles  service.RaffleService
	accounts service.AccountService
	queue    queue.EventQueue
	clock    *testClock
	cfg      config.LedgerConfig
}

func setupTestWithTruncate(t *testing.T, withInventory bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, database.Truncate(ctx, testDB))
	require.NoError(t, testRdb.FlushDB(ctx).Err())

	cfg := config.LoadTestConfig().Ledger
	clock := newTestClock()
	eventQueue := queue.NewMemoryEventQueue(1024)

	var inventory cache.RaffleInventoryManager
	if withInventory {
		inventory = cache.NewRaffleInventoryManager(testRdb)
	}

	raffleRepo := repository.NewRaffleRepository(testDB)
	participantRepo := repository.NewParticipantRepository(testDB)
	eventRepo := repository.NewLedgerEventRepository(testDB)
	accountRepo := repository.NewAccountRepository(testDB)

	return &testEnv{
		raffles: service.NewRaffleService(testDB, raffleRepo, participantRepo, eventRepo, accountRepo,
			inventory, eventQueue, cfg, service.WithClock(clock.Now)),
		accounts: service.NewAccountService(testDB, accountRepo, eventRepo, eventQueue, cfg,
			service.WithAccountClock(clock.Now)),
		queue:    eventQueue,
		clock:    clock,
		cfg:      cfg,
	}
}

func (e *testEnv) fund(t *testing.T, address string, amount decimal.Decimal) {
	t.Helper()
	_, err := e.accounts.Deposit(context.Background(), address, amount)
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, address string) decimal.Decimal {
	t.Helper()
	account, err := e.accounts.Balance(context.Background(), address)
	require.NoError(t, err)
	return account.Balance
}

// createTestRaffle 以 0.01 ETH 一張建立抽獎，創建者預先儲值
func (e *testEnv) createTestRaffle(t *testing.T, totalTickets int64, duration time.Duration) *model.Raffle {
	t.Helper()
	e.fund(t, creatorAddr, largeFunds)

	raffle, err := e.raffles.CreateRaffle(context.Background(), model.CreateRaffleRequest{
		Creator:         creatorAddr,
		Name:            "Weekend Raffle",
		TicketPrice:     ticketWei,
		TotalTickets:    totalTickets,
		DurationSeconds: int64(duration / time.Second),
		Value:           largeFunds,
	})
	require.NoError(t, err)
	return raffle
}

func (e *testEnv) buy(ctx context.Context, raffleID int64, buyer string, count int64) (*model.Raffle, error) {
	return e.raffles.BuyTickets(ctx, model.BuyTicketsRequest{
		RaffleID: raffleID,
		Buyer:    buyer,
		Count:    count,
		Value:    ticketWei.Mul(decimal.NewFromInt(count)),
	})
}
