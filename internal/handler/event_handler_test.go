package handler_test

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"raffle-ledger/internal/model"
	apperrors "raffle-ledger/pkg/app_errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testEvent(raffleID, seq int64, kind model.EventKind) *model.LedgerEvent {
	return &model.LedgerEvent{
		Seq:         seq,
		RaffleID:    raffleID,
		Kind:        kind,
		Account:     buyerAddr,
		TicketCount: 1,
		Amount:      decimal.NewFromInt(1000),
		CreatedAt:   fixedNow,
	}
}

func emptyPage(after int64) *model.EventPage {
	return &model.EventPage{Events: []*model.LedgerEvent{}, LastSeq: after}
}

// waitForSubscriber 等到長輪詢或串流完成訂閱
func waitForSubscriber(env *testEnv, raffleID int64) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.hub.Subscribers(raffleID) > 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestGetEvents(t *testing.T) {
	t.Run("Success - Immediate", func(t *testing.T) {
		env := setupTestRouter(t, false)

		page := &model.EventPage{
			Events:  []*model.LedgerEvent{testEvent(1, 4, model.EventTicketPurchased)},
			LastSeq: 4,
		}
		env.raffles.On("Events", mock.Anything, int64(1), int64(3), 0).Return(page, nil).Once()

		req, _ := http.NewRequest("GET", "/api/v1/raffles/1/events?after=3&wait=10", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp model.EventPage
		decodeJSON(t, w.Body, &resp)
		assert.Equal(t, int64(4), resp.LastSeq)
		require.Len(t, resp.Events, 1)
		assert.Equal(t, model.EventTicketPurchased, resp.Events[0].Kind)
		env.raffles.AssertExpectations(t)
	})

	t.Run("Success - LongPollWakesOnEvent", func(t *testing.T) {
		env := setupTestRouter(t, false)

		fresh := testEvent(1, 6, model.EventTicketPurchased)
		env.raffles.On("Events", mock.Anything, int64(1), int64(5), 0).Return(emptyPage(5), nil).Twice()
		env.raffles.On("Events", mock.Anything, int64(1), int64(5), 0).
			Return(&model.EventPage{Events: []*model.LedgerEvent{fresh}, LastSeq: 6}, nil).Once()

		go func() {
			if waitForSubscriber(env, 1) {
				env.hub.Publish(fresh)
			}
		}()

		start := time.Now()
		req, _ := http.NewRequest("GET", "/api/v1/raffles/1/events?after=5&wait=10", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Less(t, time.Since(start), 5*time.Second)
		var resp model.EventPage
		decodeJSON(t, w.Body, &resp)
		require.Len(t, resp.Events, 1)
		assert.Equal(t, int64(6), resp.Events[0].Seq)
		env.raffles.AssertExpectations(t)
	})

	t.Run("Success - LongPollTimesOut", func(t *testing.T) {
		env := setupTestRouter(t, false)

		env.raffles.On("Events", mock.Anything, int64(1), int64(0), 0).Return(emptyPage(0), nil).Twice()

		start := time.Now()
		req, _ := http.NewRequest("GET", "/api/v1/raffles/1/events?wait=1", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
		var resp model.EventPage
		decodeJSON(t, w.Body, &resp)
		assert.Empty(t, resp.Events)
		assert.Equal(t, 0, env.hub.Subscribers(1))
		env.raffles.AssertExpectations(t)
	})

	t.Run("Failed - ErrRaffleNotFound", func(t *testing.T) {
		env := setupTestRouter(t, false)

		env.raffles.On("Events", mock.Anything, int64(9), int64(0), 0).Return(nil, apperrors.ErrRaffleNotFound).Once()

		req, _ := http.NewRequest("GET", "/api/v1/raffles/9/events", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Failed - InvalidLimit", func(t *testing.T) {
		env := setupTestRouter(t, false)

		req, _ := http.NewRequest("GET", "/api/v1/raffles/1/events?limit=9999", nil)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env.raffles.AssertNotCalled(t, "Events")
	})
}

// readSSE 讀取串流直到收到 n 筆事件
func readSSE(t *testing.T, body io.Reader, n int, onBlank func(ids []string)) (ids, kinds []string) {
	t.Helper()
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			ids = append(ids, strings.TrimSpace(strings.TrimPrefix(line, "id:")))
		case strings.HasPrefix(line, "event:"):
			kind := strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			if kind != "ping" {
				kinds = append(kinds, kind)
			}
		case line == "" && onBlank != nil:
			onBlank(ids)
		}
		if len(kinds) == n {
			break
		}
	}
	return ids, kinds
}

func openStream(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStreamEvents(t *testing.T) {
	env := setupTestRouter(t, false)

	backlog := &model.EventPage{
		Events: []*model.LedgerEvent{
			testEvent(2, 1, model.EventRaffleCreated),
			testEvent(2, 2, model.EventTicketPurchased),
		},
		LastSeq: 2,
	}
	env.raffles.On("Events", mock.Anything, int64(2), int64(0), 200).Return(backlog, nil).Once()
	env.raffles.On("Events", mock.Anything, int64(2), int64(2), 200).Return(&model.EventPage{
		Events:  []*model.LedgerEvent{testEvent(2, 3, model.EventRaffleEnded)},
		LastSeq: 3,
	}, nil).Once()
	env.raffles.On("Events", mock.Anything, int64(2), int64(3), 200).Return(emptyPage(3), nil).Maybe()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := openStream(t, ctx, srv.URL+"/api/v1/raffles/2/events/stream")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	published := false
	ids, kinds := readSSE(t, resp.Body, 3, func(ids []string) {
		if len(ids) != 2 || published {
			return
		}
		// 補送完成後推送一筆重複與一筆新事件；送出的內容以事件紀錄為準
		published = true
		require.True(t, waitForSubscriber(env, 2))
		env.hub.Publish(testEvent(2, 2, model.EventTicketPurchased))
		env.hub.Publish(testEvent(2, 3, model.EventRaffleEnded))
	})

	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, []string{"RaffleCreated", "TicketPurchased", "RaffleEnded"}, kinds)
	env.raffles.AssertExpectations(t)
}

func TestStreamEvents_CatchesUpAfterDroppedNotifications(t *testing.T) {
	env := setupTestRouter(t, false)

	const total = 12
	committed := &model.EventPage{LastSeq: total}
	for seq := int64(1); seq <= total; seq++ {
		committed.Events = append(committed.Events, testEvent(3, seq, model.EventTicketPurchased))
	}
	env.raffles.On("Events", mock.Anything, int64(3), int64(0), 200).Return(emptyPage(0), nil).Once()
	env.raffles.On("Events", mock.Anything, int64(3), int64(0), 200).Return(committed, nil).Once()
	env.raffles.On("Events", mock.Anything, int64(3), int64(total), 200).Return(emptyPage(total), nil).Maybe()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// hub 緩衝只有 8 筆，12 筆提交一次湧入時會有通知被丟棄
	go func() {
		if !waitForSubscriber(env, 3) {
			return
		}
		for _, ev := range committed.Events {
			env.hub.Publish(ev)
		}
	}()

	resp := openStream(t, ctx, srv.URL+"/api/v1/raffles/3/events/stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ids, _ := readSSE(t, resp.Body, total, nil)

	want := make([]string, 0, total)
	for seq := 1; seq <= total; seq++ {
		want = append(want, strconv.Itoa(seq))
	}
	assert.Equal(t, want, ids)
}
