package config

import (
	"testing"
	"time"

	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/stretchr/testify/assert"
)

func TestClientConfig_Validate(t *testing.T) {
	valid := ClientConfig{Endpoint: "http://localhost:8080", ChainID: 11155111}
	assert.NoError(t, valid.Validate())

	cases := map[string]ClientConfig{
		"empty endpoint":  {Endpoint: "  ", ChainID: 1},
		"placeholder":     {Endpoint: "https://your_ledger_endpoint_here", ChainID: 1},
		"not http":        {Endpoint: "ws://localhost:8080", ChainID: 1},
		"missing chainID": {Endpoint: "http://localhost:8080"},
	}
	for name, cfg := range cases {
		t.Run("Failed - "+name, func(t *testing.T) {
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrNotConfigured)
		})
	}
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("LEDGER_ENDPOINT", " http://ledger.local ")
	t.Setenv("LEDGER_CHAIN_ID", "31337")
	t.Setenv("LEDGER_CONFIRM_RETRIES", "4")
	t.Setenv("LEDGER_POLL_INTERVAL", "2s")

	cfg := LoadClientConfig()
	assert.Equal(t, "http://ledger.local", cfg.Endpoint)
	assert.Equal(t, int64(31337), cfg.ChainID)
	assert.Equal(t, 4, cfg.ConfirmRetries)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 25*time.Second, cfg.EventWait)
	assert.NoError(t, cfg.Validate())
}
