package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"raffle-ledger/internal/model"
	"raffle-ledger/internal/notify"
	"raffle-ledger/internal/service"
	"raffle-ledger/pkg/logger"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// MaxLongPollWait 長輪詢最長等待時間
	MaxLongPollWait   = 30 * time.Second
	streamKeepAlive   = 15 * time.Second
	streamBacklogPage = 200
)

type EventHandler struct {
	service   service.RaffleService
	hub       *notify.Hub
	keepAlive time.Duration
}

// NewEventHandler hub 為 nil 時不等待也不提供串流，只回傳目前的事件
func NewEventHandler(service service.RaffleService, hub *notify.Hub) *EventHandler {
	return &EventHandler{service: service, hub: hub, keepAlive: streamKeepAlive}
}

func (h *EventHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1")
	{
		router.GET("raffles/:id/events", h.GetEvents)
		router.GET("raffles/:id/events/stream", h.StreamEvents)
	}
}

type eventsQuery struct {
	After int64 `form:"after" binding:"omitempty,min=0"`
	Limit int   `form:"limit" binding:"omitempty,min=1,max=500"`
	Wait  int   `form:"wait" binding:"omitempty,min=0"` // 秒
}

// GetEvents 依序號查詢事件；沒有新事件且 wait>0 時長輪詢
func (h *EventHandler) GetEvents(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "GetEvents")
		return
	}
	var q eventsQuery
	if err := BindQuery(c, &q); err != nil {
		return
	}

	page, err := h.service.Events(c, id, q.After, q.Limit)
	if err != nil {
		handleError(c, err, "GetEvents")
		return
	}

	wait := min(time.Duration(q.Wait)*time.Second, MaxLongPollWait)
	if len(page.Events) > 0 || wait <= 0 || h.hub == nil {
		handleSuccess(c, page, http.StatusOK)
		return
	}

	sub := h.hub.Subscribe(id)
	defer sub.Close()

	// 訂閱後再查一次，補上查詢與訂閱之間提交的事件
	page, err = h.service.Events(c, id, q.After, q.Limit)
	if err != nil {
		handleError(c, err, "GetEvents")
		return
	}
	if len(page.Events) > 0 {
		handleSuccess(c, page, http.StatusOK)
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-sub.C:
	case <-timer.C:
		handleSuccess(c, page, http.StatusOK)
		return
	case <-c.Request.Context().Done():
		return
	}

	page, err = h.service.Events(c, id, q.After, q.Limit)
	if err != nil {
		handleError(c, err, "GetEvents")
		return
	}
	handleSuccess(c, page, http.StatusOK)
}

func toSSE(ev *model.LedgerEvent) sse.Event {
	return sse.Event{
		Id:    strconv.FormatInt(ev.Seq, 10),
		Event: string(ev.Kind),
		Data:  ev,
	}
}

// StreamEvents 以 SSE 推送事件；先補送 after（或 Last-Event-ID）之後的事件。
// hub 的通知只用來喚醒，實際送出的事件一律從事件紀錄依序號讀取
func (h *EventHandler) StreamEvents(c *gin.Context) {
	id, err := ParamInt64(c, "id")
	if err != nil {
		handleError(c, err, "StreamEvents")
		return
	}
	if h.hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "event stream disabled"})
		return
	}

	after, _ := strconv.ParseInt(c.Query("after"), 10, 64)
	if lastID, err := strconv.ParseInt(c.GetHeader("Last-Event-ID"), 10, 64); err == nil && lastID > after {
		after = lastID
	}

	sub := h.hub.Subscribe(id)
	defer sub.Close()

	backlog, after, err := h.readLog(c, id, after)
	if err != nil {
		handleError(c, err, "StreamEvents")
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	log := logger.WithComponent("handler").With(zap.String("operation", "StreamEvents"), zap.Int64("raffle_id", id))
	c.Stream(func(w io.Writer) bool {
		if len(backlog) > 0 {
			ev := backlog[0]
			backlog = backlog[1:]
			c.Render(-1, toSSE(ev))
			return true
		}

		select {
		case _, ok := <-sub.C:
			if !ok || !drain(sub.C) {
				return false
			}
			var err error
			backlog, after, err = h.readLog(c, id, after)
			if err != nil {
				log.Error("read event log failed", zap.Int64("after", after), zap.Error(err))
				return false
			}
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"last_seq": after})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// readLog 讀出 after 之後的全部事件，回傳事件與新的游標
func (h *EventHandler) readLog(c *gin.Context, raffleID, after int64) ([]*model.LedgerEvent, int64, error) {
	var events []*model.LedgerEvent
	for {
		page, err := h.service.Events(c, raffleID, after, streamBacklogPage)
		if err != nil {
			return nil, after, err
		}
		events = append(events, page.Events...)
		if page.LastSeq > after {
			after = page.LastSeq
		}
		if len(page.Events) < streamBacklogPage {
			return events, after, nil
		}
	}
}

// drain 合併已排隊的通知；訂閱已關閉時回傳 false
func drain(ch <-chan *model.LedgerEvent) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
