package handler

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse 錯誤回應格式，code 供客戶端還原成對應錯誤
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func BindJson(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  apperrors.Code(apperrors.ErrInvalidInput),
		})
		return err
	}
	return nil
}

func BindQuery(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request format",
			Code:  apperrors.Code(apperrors.ErrInvalidInput),
		})
		return err
	}
	return nil
}

// ParamInt64 解析路徑中的正整數 id
func ParamInt64(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.ErrInvalidInput
	}
	return v, nil
}

// errorStatus 錯誤與 HTTP 狀態碼的對應；domain 錯誤以 warn 記錄
var errorStatus = []struct {
	err    error
	status int
	msg    string
}{
	{apperrors.ErrRaffleNotFound, http.StatusNotFound, "Raffle not found"},
	{apperrors.ErrInvalidInput, http.StatusBadRequest, "Invalid input"},
	{apperrors.ErrInsufficientFunds, http.StatusPaymentRequired, "Insufficient funds"},
	{apperrors.ErrSoldOut, http.StatusConflict, "Raffle sold out"},
	{apperrors.ErrRaffleEnded, http.StatusConflict, "Raffle has ended"},
	{apperrors.ErrRaffleStillOpen, http.StatusConflict, "Raffle is still open"},
	{apperrors.ErrNoParticipants, http.StatusConflict, "Raffle has no participants"},
	{apperrors.ErrNotEnded, http.StatusConflict, "Raffle has not ended"},
	{apperrors.ErrAlreadyClaimed, http.StatusConflict, "Prize already claimed"},
	{apperrors.ErrAlreadyRefunded, http.StatusConflict, "Refund already claimed"},
	{apperrors.ErrNotExpiredYet, http.StatusConflict, "Claim window has not elapsed"},
	{apperrors.ErrNotCreator, http.StatusForbidden, "Caller is not the creator"},
	{apperrors.ErrNotWinner, http.StatusForbidden, "Caller is not the winner"},
	{apperrors.ErrCreatorCannotBuy, http.StatusForbidden, "Creator cannot buy tickets"},
	{apperrors.ErrNotOwner, http.StatusForbidden, "Caller is not the owner"},
	{apperrors.ErrForbidden, http.StatusForbidden, "Operation not permitted"},
	{apperrors.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
}

// handleError 依錯誤類型回應對應的狀態碼
func handleError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(
		zap.String("operation", operation),
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.Error(err),
	)

	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			log.Warn(e.msg)
			c.AbortWithStatusJSON(e.status, ErrorResponse{Error: e.msg, Code: apperrors.Code(e.err)})
			return
		}
	}

	log.Error("Unexpected error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error",
		Code:  apperrors.Code(apperrors.ErrInternalServerError),
	})
}

func handleSuccess(c *gin.Context, data interface{}, statusCode int) {
	if data != nil {
		c.JSON(statusCode, data)
	} else {
		c.Status(statusCode)
	}
}
