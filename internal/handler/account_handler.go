package handler

import (
	"net/http"

	"raffle-ledger/internal/model"
	"raffle-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	service service.AccountService
	chainID int64
}

func NewAccountHandler(service service.AccountService, chainID int64) *AccountHandler {
	return &AccountHandler{service: service, chainID: chainID}
}

func (h *AccountHandler) RegisterRoutes(r *gin.Engine, authenticate gin.HandlerFunc) {
	router := r.Group("/api/v1")
	{
		router.GET("network", h.GetNetwork)
		router.GET("accounts/:address", h.GetAccount)
		router.GET("admin/treasury", h.GetTreasury)
	}

	mutating := r.Group("/api/v1", authenticate)
	{
		mutating.POST("accounts/:address/deposit", h.Deposit)
		mutating.POST("admin/withdraw-commission", h.WithdrawCommission)
	}
}

func (h *AccountHandler) GetNetwork(c *gin.Context) {
	handleSuccess(c, model.NetworkInfo{ChainID: h.chainID}, http.StatusOK)
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.service.Balance(c, c.Param("address"))
	if err != nil {
		handleError(c, err, "GetAccount")
		return
	}

	handleSuccess(c, account, http.StatusOK)
}

// TreasuryResponse 平台累積的手續費
type TreasuryResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

func (h *AccountHandler) GetTreasury(c *gin.Context) {
	balance, err := h.service.TreasuryBalance(c)
	if err != nil {
		handleError(c, err, "GetTreasury")
		return
	}

	handleSuccess(c, TreasuryResponse{Balance: balance}, http.StatusOK)
}

// Deposit 開發用儲值，任何已驗證的呼叫者都能為指定地址入帳
func (h *AccountHandler) Deposit(c *gin.Context) {
	var req model.DepositRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	account, err := h.service.Deposit(c, c.Param("address"), req.Amount)
	if err != nil {
		handleError(c, err, "Deposit")
		return
	}

	handleSuccess(c, account, http.StatusOK)
}

func (h *AccountHandler) WithdrawCommission(c *gin.Context) {
	var req model.WithdrawCommissionRequest
	if err := BindJson(c, &req); err != nil {
		return
	}

	account, err := h.service.WithdrawCommission(c, callerFrom(c), req.Amount)
	if err != nil {
		handleError(c, err, "WithdrawCommission")
		return
	}

	handleSuccess(c, account, http.StatusOK)
}
