package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/cache"
	"raffle-ledger/internal/database"
	"raffle-ledger/internal/handler"
	"raffle-ledger/internal/notify"
	"raffle-ledger/internal/queue"
	"raffle-ledger/internal/repository"
	"raffle-ledger/internal/service"
	"raffle-ledger/internal/worker"
	"raffle-ledger/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.LoadConfig()
	log := logger.WithComponent("main")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.InitDatabase(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	var inventory cache.RaffleInventoryManager
	var eventQueue queue.EventQueue
	var authOpts []handler.AuthenticatorOption

	rdb, err := database.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		// 沒有 Redis 時仍可運作：購票直接走資料庫，事件只在本機扇出
		log.Warn("redis unavailable, running without inventory gate", zap.Error(err))
		eventQueue = queue.NewMemoryEventQueue(cfg.Events.BufferSize)
	} else {
		defer rdb.Close()
		inventory = cache.NewRaffleInventoryManager(rdb)
		authOpts = append(authOpts, handler.WithSignatureGuard(cache.NewRedisSignatureGuard(rdb)))
		eventQueue, err = newEventQueue(ctx, cfg.Events, rdb)
		if err != nil {
			log.Fatal("failed to initialize event queue", zap.Error(err))
		}
	}

	raffleRepo := repository.NewRaffleRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	eventRepo := repository.NewLedgerEventRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)

	raffleService := service.NewRaffleService(pool, raffleRepo, participantRepo, eventRepo, accountRepo, inventory, eventQueue, cfg.Ledger)
	accountService := service.NewAccountService(pool, accountRepo, eventRepo, eventQueue, cfg.Ledger)

	hub := notify.NewHub(cfg.Events.BufferSize)
	eventWorker := worker.NewEventWorker(eventQueue, hub)
	if err := eventWorker.Start(ctx); err != nil {
		log.Fatal("failed to start event worker", zap.Error(err))
	}

	router := handler.NewRouter(handler.RouterDeps{
		Raffles:       raffleService,
		Accounts:      accountService,
		Hub:           hub,
		Authenticator: handler.NewAuthenticator(cfg.Ledger, nil, authOpts...),
		ChainID:       cfg.Ledger.ChainID,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// 收到訊號時結束長輪詢與 SSE 連線
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ledger listening",
			zap.String("addr", srv.Addr),
			zap.Int64("chain_id", cfg.Ledger.ChainID),
			zap.Bool("require_signatures", cfg.Ledger.RequireSignatures))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		eventWorker.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return
	}
	log.Info("server stopped")
}

// newEventQueue 每個實例使用自己的消費群組，未設定時以主機名稱區分
func newEventQueue(ctx context.Context, cfg config.EventsConfig, rdb *redis.Client) (queue.EventQueue, error) {
	if !cfg.UseRedisStream {
		return queue.NewMemoryEventQueue(cfg.BufferSize), nil
	}

	group := cfg.ConsumerGroup
	if group == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "local"
		}
		group = queue.DefaultConsumerGroup + ":" + host
	}
	return queue.NewRedisStreamEventQueue(ctx, rdb, "", &queue.RedisStreamEventQueueConfig{GroupName: group})
}
