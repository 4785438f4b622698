package handler

import (
	"context"
	"net/http"
	"time"

	"raffle-ledger/internal/model"
	"raffle-ledger/internal/service"
	apperrors "raffle-ledger/pkg/app_errors"
	"raffle-ledger/pkg/display"

	"github.com/gin-gonic/gin"
)

// ExpiringWindow 「即將截止」的範圍
const ExpiringWindow = 24 * time.Hour

type RaffleHandler struct {
	service service.RaffleService
}

func NewRaffleHandler(service service.RaffleService) *RaffleHandler {
	return &RaffleHandler{service: service}
}

func (h *RaffleHandler) RegisterRoutes(r *gin.Engine, authenticate gin.HandlerFunc) {
	router := r.Group("/api/v1")
	{
		router.GET("raffles", h.ListRaffles)
		router.GET("raffles/:id", h.GetRaffle)
		router.GET("raffles/:id/participants", h.GetParticipants)
		router.GET("raffles/:id/participants/:address", h.GetParticipantTickets)
		router.GET("raffles/:id/draw", h.GetDrawProof)
		router.GET("users/:address/raffles", h.GetUserRaffles)
		router.GET("users/:address/participations", h.GetUserParticipations)
		router.GET("stats/total-raffles", h.GetTotalRaffles)
	}

	mutating := r.Group("/api/v1", authenticate)
	{
		mutating.POST("raffles", h.CreateRaffle)
		mutating.POST("raffles/:id/tickets", h.BuyTickets)
		mutating.POST("raffles/:id/end", h.EndRaffle)
		mutating.POST("raffles/:id/claim-prize", h.ClaimPrize)
		mutating.POST("raffles/:id/claim-refund", h.ClaimRefund)
	}
}

func (h *RaffleHandler) respond(c *gin.Context, raffle *model.Raffle, statusCode int) {
	handleSuccess(c, model.NewRaffleResponse(raffle, h.service.Now()), statusCode)
}

func (h *RaffleHandler) CreateRaffle(c *gin.Context) {
	var req model.CreateRaffleRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	req.Creator = callerFrom(c)

	created, err := h.service.CreateRaffle(c, req)
	if err != nil {
		handleError(c, err, "CreateRaffle")
		return
	}

	h.respond(c, created, http.StatusCreated)
}

func (h *RaffleHandler) BuyTickets(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "BuyTickets")
		return
	}

	var req model.BuyTicketsRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	req.RaffleID = id
	req.Buyer = callerFrom(c)

	raffle, err := h.service.BuyTickets(c, req)
	if err != nil {
		handleError(c, err, "BuyTickets")
		return
	}

	h.respond(c, raffle, http.StatusOK)
}

func (h *RaffleHandler) EndRaffle(c *gin.Context) {
	h.transition(c, "EndRaffle", h.service.EndRaffle)
}

func (h *RaffleHandler) ClaimPrize(c *gin.Context) {
	h.transition(c, "ClaimPrize", h.service.ClaimPrize)
}

func (h *RaffleHandler) ClaimRefund(c *gin.Context) {
	h.transition(c, "ClaimRefund", h.service.ClaimRefund)
}

// transitionFunc 只需 raffle id 與呼叫者的狀態轉換
type transitionFunc func(ctx context.Context, raffleID int64, caller string) (*model.Raffle, error)

func (h *RaffleHandler) transition(c *gin.Context, operation string, fn transitionFunc) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, operation)
		return
	}

	raffle, err := fn(c, id, callerFrom(c))
	if err != nil {
		handleError(c, err, operation)
		return
	}

	h.respond(c, raffle, http.StatusOK)
}

func (h *RaffleHandler) GetRaffle(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "GetRaffle")
		return
	}

	raffle, err := h.service.GetRaffle(c, id)
	if err != nil {
		handleError(c, err, "GetRaffle")
		return
	}

	h.respond(c, raffle, http.StatusOK)
}

type listRafflesQuery struct {
	StartID  int64  `form:"start_id" binding:"omitempty,min=0"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status"`
	Expiring bool   `form:"expiring"`
}

// RaffleListResponse 分頁列表；NextStartID 為下一頁游標
type RaffleListResponse struct {
	Raffles     []*model.RaffleResponse `json:"raffles"`
	NextStartID int64                   `json:"next_start_id"`
}

func (h *RaffleHandler) ListRaffles(c *gin.Context) {
	var q listRafflesQuery
	if err := BindQuery(c, &q); err != nil {
		return
	}

	filter := model.RaffleFilter{StartID: q.StartID, Limit: q.Limit}
	if q.Status != "" {
		status, ok := model.ParseRaffleStatus(q.Status)
		if !ok {
			handleError(c, apperrors.ErrInvalidInput, "ListRaffles")
			return
		}
		filter.Status = &status
	}
	if q.Expiring {
		filter.ExpiringWithin = ExpiringWindow
	}

	raffles, err := h.service.ListRaffles(c, filter)
	if err != nil {
		handleError(c, err, "ListRaffles")
		return
	}

	now := h.service.Now()
	resp := RaffleListResponse{
		Raffles:     make([]*model.RaffleResponse, 0, len(raffles)),
		NextStartID: q.StartID,
	}
	for _, r := range raffles {
		resp.Raffles = append(resp.Raffles, model.NewRaffleResponse(r, now))
		resp.NextStartID = r.ID
	}

	handleSuccess(c, resp, http.StatusOK)
}

func (h *RaffleHandler) GetParticipants(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "GetParticipants")
		return
	}

	participants, err := h.service.GetParticipants(c, id)
	if err != nil {
		handleError(c, err, "GetParticipants")
		return
	}

	resp := make([]model.ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, model.ParticipantResponse{
			Address:     p.Participant,
			TicketCount: p.TicketCount,
			Username:    display.GenerateUsername(p.Participant),
		})
	}

	handleSuccess(c, resp, http.StatusOK)
}

// ParticipantTicketsResponse 某參與者在某場抽獎的票數
type ParticipantTicketsResponse struct {
	RaffleID    int64  `json:"raffle_id"`
	Address     string `json:"address"`
	TicketCount int64  `json:"ticket_count"`
}

func (h *RaffleHandler) GetParticipantTickets(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "GetParticipantTickets")
		return
	}
	address := c.Param("address")

	count, err := h.service.GetParticipantTickets(c, id, address)
	if err != nil {
		handleError(c, err, "GetParticipantTickets")
		return
	}

	handleSuccess(c, ParticipantTicketsResponse{RaffleID: id, Address: address, TicketCount: count}, http.StatusOK)
}

func (h *RaffleHandler) GetDrawProof(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "GetDrawProof")
		return
	}

	proof, err := h.service.DrawProof(c, id)
	if err != nil {
		handleError(c, err, "GetDrawProof")
		return
	}

	handleSuccess(c, proof, http.StatusOK)
}

// RaffleIDsResponse 使用者相關的抽獎 id
type RaffleIDsResponse struct {
	Address   string  `json:"address"`
	RaffleIDs []int64 `json:"raffle_ids"`
}

func (h *RaffleHandler) GetUserRaffles(c *gin.Context) {
	h.userRaffleIDs(c, "GetUserRaffles", h.service.GetUserRaffles)
}

func (h *RaffleHandler) GetUserParticipations(c *gin.Context) {
	h.userRaffleIDs(c, "GetUserParticipations", h.service.GetUserParticipations)
}

func (h *RaffleHandler) userRaffleIDs(c *gin.Context, operation string, fn func(context.Context, string) ([]int64, error)) {
	address := c.Param("address")
	ids, err := fn(c, address)
	if err != nil {
		handleError(c, err, operation)
		return
	}
	if ids == nil {
		ids = []int64{}
	}

	handleSuccess(c, RaffleIDsResponse{Address: address, RaffleIDs: ids}, http.StatusOK)
}

// TotalRafflesResponse 抽獎總數
type TotalRafflesResponse struct {
	Total int64 `json:"total"`
}

func (h *RaffleHandler) GetTotalRaffles(c *gin.Context) {
	total, err := h.service.TotalRaffles(c)
	if err != nil {
		handleError(c, err, "GetTotalRaffles")
		return
	}

	handleSuccess(c, TotalRafflesResponse{Total: total}, http.StatusOK)
}
