package client

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"raffle-ledger/internal/auth"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Authorization 一次寫入請求的簽章
type Authorization struct {
	Account   string
	Timestamp int64
	Signature string
}

// Authorizer 代表使用者授權寫入請求。使用者拒絕時回傳 apperrors.ErrUserRejected
type Authorizer interface {
	Account() string
	Authorize(ctx context.Context, method, path string, body []byte) (*Authorization, error)
}

// KeyAuthorizer 以本地私鑰自動簽署
type KeyAuthorizer struct {
	key     *ecdsa.PrivateKey
	account string
	clock   func() time.Time

	mu     sync.Mutex
	lastTS int64
}

func NewKeyAuthorizer(key *ecdsa.PrivateKey) *KeyAuthorizer {
	return &KeyAuthorizer{key: key, account: auth.AddressOf(key), clock: time.Now}
}

// NewKeyAuthorizerFromHex 讀取十六進位私鑰，可帶 0x 前綴
func NewKeyAuthorizerFromHex(hexKey string) (*KeyAuthorizer, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}
	return NewKeyAuthorizer(key), nil
}

func (a *KeyAuthorizer) Account() string {
	return a.account
}

func (a *KeyAuthorizer) Authorize(ctx context.Context, method, path string, body []byte) (*Authorization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ts := a.nextTimestamp()
	sig, err := auth.Sign(a.key, auth.Message(method, path, body, ts))
	if err != nil {
		return nil, err
	}
	return &Authorization{Account: a.account, Timestamp: ts, Signature: hexutil.Encode(sig)}, nil
}

// nextTimestamp 嚴格遞增，同一秒內的相同請求不會被伺服器當成重放
func (a *KeyAuthorizer) nextTimestamp() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts := a.clock().Unix()
	if ts <= a.lastTS {
		ts = a.lastTS + 1
	}
	a.lastTS = ts
	return ts
}

// PromptAuthorizer 每次簽署前詢問使用者，approve 回傳 false 視為拒絕
type PromptAuthorizer struct {
	Signer  Authorizer
	Approve func(ctx context.Context, method, path string) bool
}

func (p *PromptAuthorizer) Account() string {
	return p.Signer.Account()
}

func (p *PromptAuthorizer) Authorize(ctx context.Context, method, path string, body []byte) (*Authorization, error) {
	if p.Approve != nil && !p.Approve(ctx, method, path) {
		return nil, apperrors.ErrUserRejected
	}
	return p.Signer.Authorize(ctx, method, path, body)
}
