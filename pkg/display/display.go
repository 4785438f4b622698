// Package display 提供帳戶與金額的顯示格式
package display

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var ErrInvalidAddress = errors.New("invalid address")

var adjectives = []string{
	"cool", "smart", "brave", "quick", "wise", "bold",
	"calm", "kind", "fair", "true", "pure", "bright",
	"dark", "wild", "free", "fast", "slow", "deep",
	"lucky", "swift", "noble", "sharp", "fierce", "gentle",
}

var nouns = []string{
	"trader", "holder", "player", "gamer", "user", "fan",
	"expert", "master", "pro", "star", "hero", "legend",
	"winner", "champ", "king", "queen", "lord", "sage",
	"wizard", "knight", "hunter", "warrior", "guardian", "pilot",
}

// simpleHash 32 位元滾動雜湊，溢位時環繞
func simpleHash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// GenerateUsername 由地址推導固定的暱稱，例如 slow_lord_2903
func GenerateUsername(address string) string {
	addr := strings.ToLower(address)
	tail := ""
	if len(addr) > 10 {
		tail = addr[10:]
	}

	h1 := simpleHash(addr)
	h2 := simpleHash(tail)

	adjective := adjectives[h1%int64(len(adjectives))]
	noun := nouns[h2%int64(len(nouns))]
	return fmt.Sprintf("%s_%s_%04d", adjective, noun, (h1+h2)%9999)
}

// ShortAddress 0x1234...abcd
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// IsValidAddress 20 位元組十六進位地址
func IsValidAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// NormalizeAddress 轉為 EIP-55 校驗格式
func NormalizeAddress(address string) (string, error) {
	if !IsValidAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// FormatTimeRemaining 距離 endTime 的剩餘時間
func FormatTimeRemaining(endTime, now time.Time) string {
	diff := endTime.Sub(now)
	if diff <= 0 {
		return "Ended"
	}

	days := int64(diff / (24 * time.Hour))
	hours := int64(diff%(24*time.Hour)) / int64(time.Hour)
	minutes := int64(diff%time.Hour) / int64(time.Minute)

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatEther wei 轉為 ETH 字串
func FormatEther(wei decimal.Decimal) string {
	return wei.Shift(-etherDecimals).String()
}

// ParseEther ETH 字串轉為 wei，超過 18 位小數視為錯誤
func ParseEther(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ether %q: %w", s, err)
	}
	wei := v.Shift(etherDecimals)
	if !wei.IsInteger() {
		return decimal.Zero, fmt.Errorf("parse ether %q: more than %d decimals", s, etherDecimals)
	}
	return wei, nil
}

// TruncateText 超過 maxLength 以 ... 截斷
func TruncateText(text string, maxLength int) string {
	r := []rune(text)
	if len(r) <= maxLength {
		return text
	}
	return string(r[:maxLength]) + "..."
}
