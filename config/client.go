package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/joho/godotenv"
)

// ClientConfig 客戶端連線帳本所需設定
type ClientConfig struct {
	Endpoint string
	ChainID  int64

	PollInterval   time.Duration // 詳情頁定時刷新間隔
	ConfirmDelay   time.Duration // 送出交易後第一次檢查前的等待
	ConfirmRetries int           // 輪詢確認最大次數
	ConfirmSpacing time.Duration // 每次輪詢確認的間隔
	EventWait      time.Duration // 事件 long-poll 等待時間
	RequestTimeout time.Duration
}

var placeholderEndpoints = []string{
	"your_ledger_endpoint_here",
	"your_contract_address_here",
	"changeme",
	"todo",
}

func LoadClientConfig() ClientConfig {
	_ = godotenv.Load()

	chainID, err := strconv.ParseInt(getEnv("LEDGER_CHAIN_ID", "0"), 10, 64)
	if err != nil {
		chainID = 0
	}
	retries, err := strconv.Atoi(getEnv("LEDGER_CONFIRM_RETRIES", "10"))
	if err != nil {
		retries = 10
	}

	return ClientConfig{
		Endpoint:       strings.TrimSpace(getEnv("LEDGER_ENDPOINT", "")),
		ChainID:        chainID,
		PollInterval:   getDuration("LEDGER_POLL_INTERVAL", 5*time.Second),
		ConfirmDelay:   getDuration("LEDGER_CONFIRM_DELAY", 3*time.Second),
		ConfirmRetries: retries,
		ConfirmSpacing: getDuration("LEDGER_CONFIRM_SPACING", 2*time.Second),
		EventWait:      getDuration("LEDGER_EVENT_WAIT", 25*time.Second),
		RequestTimeout: getDuration("LEDGER_REQUEST_TIMEOUT", 30*time.Second),
	}
}

// Validate 在發出任何呼叫前檢查端點與鏈 ID
func (c ClientConfig) Validate() error {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: ledger endpoint is empty", apperrors.ErrNotConfigured)
	}
	lower := strings.ToLower(endpoint)
	for _, p := range placeholderEndpoints {
		if strings.Contains(lower, p) {
			return fmt.Errorf("%w: ledger endpoint %q is a placeholder", apperrors.ErrNotConfigured, endpoint)
		}
	}
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("%w: ledger endpoint %q must be an http(s) url", apperrors.ErrNotConfigured, endpoint)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("%w: chain id is not set", apperrors.ErrNotConfigured)
	}
	return nil
}
