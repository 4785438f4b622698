// Package auth signs and verifies ledger requests with Ethereum personal
// signatures (EIP-191). The signed message is
//
//	METHOD \n PATH \n keccak256(body) \n UNIX_TIMESTAMP
package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	HeaderAddress   = "X-Account-Address"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

var (
	ErrMalformedSignature = errors.New("auth: malformed signature")
	ErrSignerMismatch     = errors.New("auth: signature does not match account")
	ErrStaleTimestamp     = errors.New("auth: timestamp outside allowed window")
)

// Message builds the bytes a client signs for one request.
func Message(method, path string, body []byte, timestamp int64) []byte {
	return []byte(strings.Join([]string{
		strings.ToUpper(method),
		path,
		hexutil.Encode(crypto.Keccak256(body)),
		strconv.FormatInt(timestamp, 10),
	}, "\n"))
}

// Sign returns a 65-byte signature with V in {27, 28}, as wallets produce.
func Sign(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that produced sig over msg.
func Recover(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrMalformedSignature
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that address signed msg.
func Verify(address string, msg []byte, sigHex string) error {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	signer, err := Recover(msg, sig)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(address) || signer != common.HexToAddress(address) {
		return ErrSignerMismatch
	}
	return nil
}

// CheckTimestamp accepts timestamps within maxAge of now in either direction.
func CheckTimestamp(raw string, now time.Time, maxAge time.Duration) (int64, error) {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStaleTimestamp, err)
	}
	diff := now.Sub(time.Unix(ts, 0))
	if diff < 0 {
		diff = -diff
	}
	if diff > maxAge {
		return 0, ErrStaleTimestamp
	}
	return ts, nil
}

// ReplayKey identifies one signed request of address. It is derived from the
// signed message, not the signature bytes, so a re-encoded signature of the
// same message maps to the same key.
func ReplayKey(address string, msg []byte) string {
	return hexutil.Encode(crypto.Keccak256([]byte(strings.ToLower(address)), msg))
}

// AddressOf derives the checksummed account address of key.
func AddressOf(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}
