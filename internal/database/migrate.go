package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"raffle-ledger/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate 依檔名順序執行所有遷移腳本，腳本本身須可重複執行
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log := logger.WithComponent("migrate")

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrationFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		log.Info("Applied migration", zap.String("file", name))
	}
	return nil
}

// Truncate 清空所有帳本資料表，僅供測試使用
func Truncate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE ledger_events, participant_tickets, raffles, accounts RESTART IDENTITY CASCADE`)
	return err
}
