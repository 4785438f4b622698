package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"raffle-ledger/config"
	"raffle-ledger/internal/auth"
	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// APIError 帳本回傳的錯誤，可用 errors.Is 比對 apperrors 中的錯誤
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger: %s (%d %s)", e.Message, e.StatusCode, e.Code)
}

func (e *APIError) Unwrap() error {
	return e.err
}

type HTTPLedger struct {
	base           *url.URL
	chainID        int64
	requestTimeout time.Duration
	httpClient     *http.Client
	authorizer     Authorizer
	log            *zap.Logger

	mu             sync.Mutex
	networkChecked bool
}

type Option func(*HTTPLedger)

func WithHTTPClient(c *http.Client) Option {
	return func(l *HTTPLedger) {
		l.httpClient = c
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(l *HTTPLedger) {
		l.authorizer = a
	}
}

// NewHTTPLedger 設定未通過檢查時回傳 apperrors.ErrNotConfigured，不會發出任何請求
func NewHTTPLedger(cfg config.ClientConfig, opts ...Option) (*HTTPLedger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrNotConfigured, err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	l := &HTTPLedger{
		base:           base,
		chainID:        cfg.ChainID,
		requestTimeout: cfg.RequestTimeout,
		httpClient:     &http.Client{},
		log:            logger.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *HTTPLedger) Account() string {
	if l.authorizer == nil {
		return ""
	}
	return l.authorizer.Account()
}

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	signed bool
	wait   time.Duration
}

func (l *HTTPLedger) do(ctx context.Context, r request, out interface{}) error {
	u := l.base.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, l.requestTimeout+r.wait)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if r.signed {
		if l.authorizer == nil {
			return fmt.Errorf("%w: no authorizer configured", apperrors.ErrUnauthorized)
		}
		authz, err := l.authorizer.Authorize(ctx, r.method, u.Path, payload)
		if err != nil {
			return err
		}
		req.Header.Set(auth.HeaderAddress, authz.Account)
		req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(authz.Timestamp, 10))
		req.Header.Set(auth.HeaderSignature, authz.Signature)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", r.method, r.path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", r.method, r.path, err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(data, &body)

	apiErr := &APIError{StatusCode: status, Code: body.Code, Message: body.Error, err: apperrors.ErrInternalServerError}
	if sentinel, ok := apperrors.FromCode(body.Code); ok {
		apiErr.err = sentinel
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// ensureNetwork 第一次寫入前確認帳本所在網路，成功後不再檢查
func (l *HTTPLedger) ensureNetwork(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.networkChecked {
		return nil
	}

	id, err := l.ChainID(ctx)
	if err != nil {
		return err
	}
	if id != l.chainID {
		return fmt.Errorf("%w: ledger is on chain %d, client expects %d", apperrors.ErrNetworkMismatch, id, l.chainID)
	}
	l.networkChecked = true
	return nil
}

func (l *HTTPLedger) mutate(ctx context.Context, path string, body interface{}) (*model.RaffleResponse, error) {
	if err := l.ensureNetwork(ctx); err != nil {
		return nil, err
	}
	var out model.RaffleResponse
	if err := l.do(ctx, request{method: http.MethodPost, path: path, body: body, signed: true}, &out); err != nil {
		if errors.Is(err, apperrors.ErrUserRejected) {
			l.log.Info("request rejected by user", zap.String("path", path))
		}
		return nil, err
	}
	return &out, nil
}

func (l *HTTPLedger) CreateRaffle(ctx context.Context, params CreateRaffleParams) (*model.RaffleResponse, error) {
	return l.mutate(ctx, "/api/v1/raffles", model.CreateRaffleRequest{
		Name:            params.Name,
		Description:     params.Description,
		TicketPrice:     params.TicketPrice,
		TotalTickets:    params.TotalTickets,
		DurationSeconds: params.DurationSeconds,
		Value:           params.Value,
	})
}

func (l *HTTPLedger) BuyTickets(ctx context.Context, raffleID, count int64, value decimal.Decimal) (*model.RaffleResponse, error) {
	return l.mutate(ctx, fmt.Sprintf("/api/v1/raffles/%d/tickets", raffleID), model.BuyTicketsRequest{
		Count: count,
		Value: value,
	})
}

func (l *HTTPLedger) EndRaffle(ctx context.Context, raffleID int64) (*model.RaffleResponse, error) {
	return l.mutate(ctx, fmt.Sprintf("/api/v1/raffles/%d/end", raffleID), nil)
}

func (l *HTTPLedger) ClaimPrize(ctx context.Context, raffleID int64) (*model.RaffleResponse, error) {
	return l.mutate(ctx, fmt.Sprintf("/api/v1/raffles/%d/claim-prize", raffleID), nil)
}

func (l *HTTPLedger) ClaimRefund(ctx context.Context, raffleID int64) (*model.RaffleResponse, error) {
	return l.mutate(ctx, fmt.Sprintf("/api/v1/raffles/%d/claim-refund", raffleID), nil)
}

func (l *HTTPLedger) GetRaffleInfo(ctx context.Context, raffleID int64) (*model.RaffleResponse, error) {
	var out model.RaffleResponse
	if err := l.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/api/v1/raffles/%d", raffleID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *HTTPLedger) GetParticipantTickets(ctx context.Context, raffleID int64, address string) (int64, error) {
	var out struct {
		TicketCount int64 `json:"ticket_count"`
	}
	path := fmt.Sprintf("/api/v1/raffles/%d/participants/%s", raffleID, url.PathEscape(address))
	if err := l.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return 0, err
	}
	return out.TicketCount, nil
}

func (l *HTTPLedger) GetRaffleParticipants(ctx context.Context, raffleID int64) ([]model.ParticipantResponse, error) {
	var out []model.ParticipantResponse
	if err := l.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/api/v1/raffles/%d/participants", raffleID)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *HTTPLedger) userRaffleIDs(ctx context.Context, address, kind string) ([]int64, error) {
	var out struct {
		RaffleIDs []int64 `json:"raffle_ids"`
	}
	path := fmt.Sprintf("/api/v1/users/%s/%s", url.PathEscape(address), kind)
	if err := l.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return out.RaffleIDs, nil
}

func (l *HTTPLedger) GetUserRaffles(ctx context.Context, address string) ([]int64, error) {
	return l.userRaffleIDs(ctx, address, "raffles")
}

func (l *HTTPLedger) GetUserParticipations(ctx context.Context, address string) ([]int64, error) {
	return l.userRaffleIDs(ctx, address, "participations")
}

func (l *HTTPLedger) GetTotalRaffles(ctx context.Context) (int64, error) {
	var out struct {
		Total int64 `json:"total"`
	}
	if err := l.do(ctx, request{method: http.MethodGet, path: "/api/v1/stats/total-raffles"}, &out); err != nil {
		return 0, err
	}
	return out.Total, nil
}

func (l *HTTPLedger) Events(ctx context.Context, raffleID, after int64, limit int, wait time.Duration) (*model.EventPage, error) {
	query := url.Values{}
	if after > 0 {
		query.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if wait > 0 {
		seconds := int(wait / time.Second)
		if seconds == 0 {
			seconds = 1
		}
		query.Set("wait", strconv.Itoa(seconds))
	}

	var out model.EventPage
	r := request{method: http.MethodGet, path: fmt.Sprintf("/api/v1/raffles/%d/events", raffleID), query: query, wait: wait}
	if err := l.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *HTTPLedger) ChainID(ctx context.Context) (int64, error) {
	var out model.NetworkInfo
	if err := l.do(ctx, request{method: http.MethodGet, path: "/api/v1/network"}, &out); err != nil {
		return 0, err
	}
	return out.ChainID, nil
}
