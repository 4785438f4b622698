package handler_test

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/auth"
	"raffle-ledger/internal/handler"
	"raffle-ledger/internal/notify"
	"raffle-ledger/internal/service/mocks"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var (
	InvalidJSON = `{"invalid": json}`

	creatorAddr = "0x1111111111111111111111111111111111111111"
	buyerAddr   = "0x2222222222222222222222222222222222222222"
	fixedNow    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

type testEnv struct {
	router   *gin.Engine
	raffles  *mocks.RaffleServiceMock
	accounts *mocks.AccountServiceMock
	hub      *notify.Hub
}

func setupTestRouter(t *testing.T, requireSignatures bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		raffles:  mocks.NewRaffleServiceMock(),
		accounts: mocks.NewAccountServiceMock(),
		hub:      notify.NewHub(8),
	}
	env.raffles.Clock = func() time.Time { return fixedNow }

	cfg := config.LedgerConfig{
		ChainID:           11155111,
		RequireSignatures: requireSignatures,
		SignatureMaxAge:   5 * time.Minute,
	}
	env.router = handler.NewRouter(handler.RouterDeps{
		Raffles:       env.raffles,
		Accounts:      env.accounts,
		Hub:           env.hub,
		Authenticator: handler.NewAuthenticator(cfg, func() time.Time { return fixedNow }),
		ChainID:       cfg.ChainID,
	})
	return env
}

// create JSON request body
func createJSONRequest(data interface{}) *bytes.Buffer {
	if s, ok := data.(string); ok {
		return bytes.NewBufferString(s)
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return bytes.NewBuffer([]byte(""))
	}
	return bytes.NewBuffer(jsonData)
}

// create HTTP request with JSON body
func createJSONHTTPRequest(method, url string, data interface{}) *http.Request {
	req, err := http.NewRequest(method, url, createJSONRequest(data))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// asAccount 不需簽章時只帶地址 header
func asAccount(req *http.Request, address string) *http.Request {
	req.Header.Set(auth.HeaderAddress, address)
	return req
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// signedRequest 以 key 簽署請求
func signedRequest(t *testing.T, key *ecdsa.PrivateKey, method, path string, body []byte, ts time.Time) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	sig, err := auth.Sign(key, auth.Message(method, path, body, ts.Unix()))
	require.NoError(t, err)

	req.Header.Set(auth.HeaderAddress, auth.AddressOf(key))
	req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set(auth.HeaderSignature, hexutil.Encode(sig))
	return req
}

func decodeJSON(t *testing.T, body *bytes.Buffer, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Bytes(), out))
}
