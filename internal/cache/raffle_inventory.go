package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/redis/go-redis/v9"
)

// RaffleInventoryManager 以 Redis 做為購票的前置閘門。資料庫仍是最終裁決者，
// 快取沒有資料時呼叫端應直接交給資料庫處理
type RaffleInventoryManager interface {
	// 預熱：把剩餘票數、創建者與截止時間寫入 Redis
	WarmUp(ctx context.Context, raffle *model.Raffle) error
	// 獲取：剩餘票數
	GetRemaining(ctx context.Context, raffleID int64) (int64, error)
	// 預留：原子地檢查並扣減剩餘票數
	Reserve(ctx context.Context, raffleID int64, buyer string, count int64, now time.Time) error
	// 釋放：交易失敗時歸還預留的票數
	Release(ctx context.Context, raffleID int64, buyer string, count int64) error
	// 關閉：抽獎結束後移除快取
	Close(ctx context.Context, raffleID int64) error
}

type RaffleInventoryManagerImpl struct {
	client *redis.Client
}

func NewRaffleInventoryManager(client *redis.Client) RaffleInventoryManager {
	return &RaffleInventoryManagerImpl{
		client: client,
	}
}

// 剩餘票數 key
func (m *RaffleInventoryManagerImpl) infoKey(raffleID int64) string {
	return fmt.Sprintf("raffle:%d:inventory", raffleID)
}

// 購票者預留紀錄 key
func (m *RaffleInventoryManagerImpl) buyersKey(raffleID int64) string {
	return fmt.Sprintf("raffle:%d:buyers", raffleID)
}

// 快取保留到截止後一天
const inventoryTTLAfterEnd = 24 * time.Hour

func (m *RaffleInventoryManagerImpl) WarmUp(ctx context.Context, raffle *model.Raffle) error {
	key := m.infoKey(raffle.ID)
	expireAt := raffle.EndTime.Add(inventoryTTLAfterEnd)

	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"remaining": raffle.RemainingTickets(),
		"creator":   raffle.Creator,
		"end_time":  raffle.EndTime.UnixMicro(),
	})
	pipe.ExpireAt(ctx, key, expireAt)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RaffleInventoryManagerImpl) GetRemaining(ctx context.Context, raffleID int64) (int64, error) {
	val, err := m.client.HGet(ctx, m.infoKey(raffleID), "remaining").Int64()
	if errors.Is(err, redis.Nil) {
		return -1, apperrors.ErrRaffleNotFound
	}
	return val, err
}

/*
預留票數 (Lua 腳本確保原子性)，檢查順序與資料庫端相同：
 1. 截止時間
 2. 創建者不得購買
 3. 剩餘票數
*/
var reserveScript = redis.NewScript(`
	local info_key = KEYS[1]
	local buyers_key = KEYS[2]

	local buyer = ARGV[1]
	local request_qty = tonumber(ARGV[2])
	local now = tonumber(ARGV[3]) -- 微秒，與資料庫 timestamptz 精度相同

	local info = redis.call('HMGET', info_key, 'remaining', 'creator', 'end_time')
	local remaining = info[1]
	local creator = info[2]
	local end_time = info[3]

	-- 未預熱
	if not remaining or not creator or not end_time then
		return -3
	end

	if now >= tonumber(end_time) then
		return -4
	end

	if creator == buyer then
		return -5
	end

	if tonumber(remaining) < request_qty then
		return -1
	end

	redis.call('HINCRBY', info_key, 'remaining', -request_qty)
	redis.call('HINCRBY', buyers_key, buyer, request_qty)
	local ttl = redis.call('TTL', info_key)
	if ttl > 0 then
		redis.call('EXPIRE', buyers_key, ttl)
	end

	return 1
`)

func (m *RaffleInventoryManagerImpl) Reserve(ctx context.Context, raffleID int64, buyer string, count int64, now time.Time) error {
	if count <= 0 {
		return apperrors.ErrInvalidInput
	}

	keys := []string{m.infoKey(raffleID), m.buyersKey(raffleID)}
	code, err := reserveScript.Run(ctx, m.client, keys, buyer, count, now.UnixMicro()).Int64()
	if err != nil {
		return err
	}

	switch code {
	case 1:
		return nil
	case -1:
		return apperrors.ErrSoldOut
	case -3:
		return apperrors.ErrRaffleNotFound
	case -4:
		return apperrors.ErrRaffleEnded
	case -5:
		return apperrors.ErrCreatorCannotBuy
	default:
		return fmt.Errorf("reserve: unexpected result %d", code)
	}
}

// 只在快取仍存在時歸還，避免重建出不完整的 hash
var releaseScript = redis.NewScript(`
	local info_key = KEYS[1]
	local buyers_key = KEYS[2]
	local buyer = ARGV[1]
	local qty = tonumber(ARGV[2])

	if redis.call('EXISTS', info_key) == 0 then
		return 0
	end

	redis.call('HINCRBY', info_key, 'remaining', qty)
	local left = redis.call('HINCRBY', buyers_key, buyer, -qty)
	if left <= 0 then
		redis.call('HDEL', buyers_key, buyer)
	end
	return 1
`)

func (m *RaffleInventoryManagerImpl) Release(ctx context.Context, raffleID int64, buyer string, count int64) error {
	keys := []string{m.infoKey(raffleID), m.buyersKey(raffleID)}
	return releaseScript.Run(ctx, m.client, keys, buyer, count).Err()
}

func (m *RaffleInventoryManagerImpl) Close(ctx context.Context, raffleID int64) error {
	return m.client.Del(ctx, m.infoKey(raffleID), m.buyersKey(raffleID)).Err()
}
