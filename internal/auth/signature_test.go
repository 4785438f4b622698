package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := AddressOf(key)

	msg := Message("post", "/api/v1/raffles/1/tickets", []byte(`{"count":2}`), 1700000000)
	sig, err := Sign(key, msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.GreaterOrEqual(t, sig[64], byte(27))

	t.Run("Success", func(t *testing.T) {
		assert.NoError(t, Verify(address, msg, hexutil.Encode(sig)))
	})

	t.Run("Success - LowercaseAddress", func(t *testing.T) {
		assert.NoError(t, Verify(strings.ToLower(address), msg, hexutil.Encode(sig)))
	})

	t.Run("Failed - TamperedBody", func(t *testing.T) {
		other := Message("POST", "/api/v1/raffles/1/tickets", []byte(`{"count":3}`), 1700000000)
		assert.ErrorIs(t, Verify(address, other, hexutil.Encode(sig)), ErrSignerMismatch)
	})

	t.Run("Failed - OtherAccount", func(t *testing.T) {
		otherKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		assert.ErrorIs(t, Verify(AddressOf(otherKey), msg, hexutil.Encode(sig)), ErrSignerMismatch)
	})

	t.Run("Failed - Malformed", func(t *testing.T) {
		assert.ErrorIs(t, Verify(address, msg, "0x1234"), ErrMalformedSignature)
		assert.ErrorIs(t, Verify(address, msg, "zz"), ErrMalformedSignature)
	})
}

func TestMessage(t *testing.T) {
	a := Message("POST", "/x", []byte("body"), 1)
	b := Message("post", "/x", []byte("body"), 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Message("POST", "/x", []byte("body"), 2))
	assert.NotEqual(t, a, Message("POST", "/y", []byte("body"), 1))
}

func TestCheckTimestamp(t *testing.T) {
	now := time.Unix(1700000000, 0)

	ts, err := CheckTimestamp("1700000010", now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000010), ts)

	_, err = CheckTimestamp("1699999000", now, time.Minute)
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	_, err = CheckTimestamp("abc", now, time.Minute)
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestReplayKey(t *testing.T) {
	msg := Message("POST", "/x", []byte("body"), 1)
	addr := "0xAbCdEf0000000000000000000000000000000001"

	assert.Equal(t, ReplayKey(addr, msg), ReplayKey(strings.ToLower(addr), msg))
	assert.NotEqual(t, ReplayKey(addr, msg), ReplayKey(addr, Message("POST", "/x", []byte("body"), 2)))
	assert.NotEqual(t, ReplayKey(addr, msg), ReplayKey("0x0000000000000000000000000000000000000002", msg))
}
