package apperrors

import "errors"

var (
	ErrRaffleNotFound      = errors.New("raffle not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInternalServerError = errors.New("internal server error")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSoldOut           = errors.New("raffle sold out")
	ErrRaffleEnded       = errors.New("raffle has ended")
	ErrRaffleStillOpen   = errors.New("raffle is still open")
	ErrNotCreator        = errors.New("caller is not the raffle creator")
	ErrCreatorCannotBuy  = errors.New("creator cannot buy tickets in own raffle")
	ErrNotWinner         = errors.New("caller is not the winner")
	ErrAlreadyClaimed    = errors.New("prize already claimed")
	ErrAlreadyRefunded   = errors.New("refund already claimed")
	ErrNoParticipants    = errors.New("raffle has no participants")
	ErrNotEnded          = errors.New("raffle has not ended")
	ErrNotExpiredYet     = errors.New("claim window has not elapsed")

	ErrUnauthorized = errors.New("unauthorized")
	ErrNotOwner     = errors.New("caller is not the ledger owner")
	ErrForbidden    = errors.New("operation not permitted")

	ErrNotConfigured   = errors.New("ledger is not configured")
	ErrNetworkMismatch = errors.New("client is on the wrong network")
	ErrUserRejected    = errors.New("user rejected the request")
)

// codes 錯誤的穩定字串代碼，HTTP 回應與客戶端共用
var codes = map[error]string{
	ErrRaffleNotFound:      "RAFFLE_NOT_FOUND",
	ErrInvalidInput:        "INVALID_INPUT",
	ErrInternalServerError: "INTERNAL",
	ErrInsufficientFunds:   "INSUFFICIENT_FUNDS",
	ErrSoldOut:             "SOLD_OUT",
	ErrRaffleEnded:         "RAFFLE_ENDED",
	ErrRaffleStillOpen:     "RAFFLE_STILL_OPEN",
	ErrNotCreator:          "NOT_CREATOR",
	ErrCreatorCannotBuy:    "CREATOR_CANNOT_BUY",
	ErrNotWinner:           "NOT_WINNER",
	ErrAlreadyClaimed:      "ALREADY_CLAIMED",
	ErrAlreadyRefunded:     "ALREADY_REFUNDED",
	ErrNoParticipants:      "NO_PARTICIPANTS",
	ErrNotEnded:            "NOT_ENDED",
	ErrNotExpiredYet:       "NOT_EXPIRED_YET",
	ErrUnauthorized:        "UNAUTHORIZED",
	ErrNotOwner:            "NOT_OWNER",
	ErrForbidden:           "FORBIDDEN",
	ErrNotConfigured:       "NOT_CONFIGURED",
	ErrNetworkMismatch:     "NETWORK_MISMATCH",
	ErrUserRejected:        "USER_REJECTED",
}

// Code 回傳 err 鏈中第一個已知錯誤的代碼，未知錯誤回傳 INTERNAL
func Code(err error) string {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return codes[ErrInternalServerError]
}

// FromCode 將代碼還原為對應的錯誤
func FromCode(code string) (error, bool) {
	for sentinel, c := range codes {
		if c == code {
			return sentinel, true
		}
	}
	return nil, false
}
