package handler

import (
	"bytes"
	"io"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/auth"
	"raffle-ledger/internal/cache"
	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/display"
	"raffle-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDKey = "request_id"
	accountKey   = "account"

	HeaderRequestID = "X-Request-ID"
)

// RequestLogger 取代 gin 預設 logger，每個請求帶 request_id
func RequestLogger() gin.HandlerFunc {
	log := logger.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if account := c.GetString(accountKey); account != "" {
			fields = append(fields, zap.String("account", account))
		}
		if c.Writer.Status() >= 500 {
			log.Error("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

// Authenticator 驗證呼叫者身分
type Authenticator struct {
	cfg   config.LedgerConfig
	clock func() time.Time
	guard cache.SignatureGuard
}

type AuthenticatorOption func(*Authenticator)

// WithSignatureGuard 指定已用簽章的紀錄位置，多實例部署時用 Redis
func WithSignatureGuard(guard cache.SignatureGuard) AuthenticatorOption {
	return func(a *Authenticator) {
		a.guard = guard
	}
}

func NewAuthenticator(cfg config.LedgerConfig, clock func() time.Time, opts ...AuthenticatorOption) *Authenticator {
	if clock == nil {
		clock = time.Now
	}
	if cfg.SignatureMaxAge <= 0 {
		cfg.SignatureMaxAge = 5 * time.Minute
	}
	a := &Authenticator{cfg: cfg, clock: clock}
	for _, opt := range opts {
		opt(a)
	}
	if a.guard == nil {
		a.guard = cache.NewMemorySignatureGuard(clock)
	}
	return a
}

// Middleware 需要簽章時驗證 EIP-191 簽章，通過後把帳戶地址放進 context
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		address, err := display.NormalizeAddress(c.GetHeader(auth.HeaderAddress))
		if err != nil {
			handleError(c, apperrors.ErrUnauthorized, "Authenticate")
			return
		}

		if a.cfg.RequireSignatures {
			ts, err := auth.CheckTimestamp(c.GetHeader(auth.HeaderTimestamp), a.clock(), a.cfg.SignatureMaxAge)
			if err != nil {
				handleError(c, apperrors.ErrUnauthorized, "Authenticate")
				return
			}

			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				handleError(c, apperrors.ErrInvalidInput, "Authenticate")
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))

			msg := auth.Message(c.Request.Method, c.Request.URL.Path, body, ts)
			if err := auth.Verify(address, msg, c.GetHeader(auth.HeaderSignature)); err != nil {
				logger.WithComponent("handler").Warn("signature rejected",
					zap.String("account", address), zap.Error(err))
				handleError(c, apperrors.ErrUnauthorized, "Authenticate")
				return
			}

			// 時間戳在前後 SignatureMaxAge 內都有效，紀錄要保留兩倍長
			fresh, err := a.guard.Claim(c.Request.Context(), auth.ReplayKey(address, msg), 2*a.cfg.SignatureMaxAge)
			if err != nil {
				handleError(c, err, "Authenticate")
				return
			}
			if !fresh {
				logger.WithComponent("handler").Warn("signature replayed", zap.String("account", address))
				handleError(c, apperrors.ErrUnauthorized, "Authenticate")
				return
			}
		}

		c.Set(accountKey, address)
		c.Next()
	}
}

// callerFrom 取出已驗證的帳戶
func callerFrom(c *gin.Context) string {
	return c.GetString(accountKey)
}
