package queue

import (
	"context"

	"raffle-ledger/internal/model"
)

type Delivery struct {
	Data *model.LedgerEvent
	Ack  func()
	Nack func(requeue bool)
}

// EventQueue 交易提交後的帳本事件扇出佇列
type EventQueue interface {
	// 發送事件到隊列
	PublishEvent(ctx context.Context, event *model.LedgerEvent) error
	// 訂閱事件隊列
	SubscribeEvents(ctx context.Context) (<-chan Delivery, error)
}

type MemoryEventQueue struct {
	// 使用 Go channel 來模擬 MQ 隊列
	ch chan *model.LedgerEvent
}

func NewMemoryEventQueue(bufferSize int) EventQueue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &MemoryEventQueue{
		ch: make(chan *model.LedgerEvent, bufferSize),
	}
}

func (q *MemoryEventQueue) PublishEvent(ctx context.Context, event *model.LedgerEvent) error {
	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryEventQueue) SubscribeEvents(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-q.ch:
				if !ok {
					return
				}

				d := Delivery{
					Data: event,
					Ack:  func() {},
					Nack: func(requeue bool) {
						if !requeue {
							return
						}
						// 重回隊列；隊列已滿時放棄，事件仍可從資料庫查回
						select {
						case q.ch <- event:
						default:
						}
					},
				}

				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
