package worker

import (
	"context"

	"raffle-ledger/internal/notify"
	"raffle-ledger/internal/queue"
	"raffle-ledger/pkg/logger"

	"go.uber.org/zap"
)

type EventWorker interface {
	// 訂閱事件隊列並推送給訂閱者
	Start(ctx context.Context) error
	// 等待消費迴圈結束
	Wait()
}

type EventWorkerImpl struct {
	queue queue.EventQueue
	hub   *notify.Hub
	done  chan struct{}
}

func NewEventWorker(queue queue.EventQueue, hub *notify.Hub) EventWorker {
	return &EventWorkerImpl{
		queue: queue,
		hub:   hub,
		done:  make(chan struct{}),
	}
}

func (w *EventWorkerImpl) Start(ctx context.Context) error {
	msgs, err := w.queue.SubscribeEvents(ctx)
	if err != nil {
		close(w.done)
		return err
	}

	log := logger.WithComponent("worker")

	go func() {
		defer close(w.done)
		for msg := range msgs {
			if msg.Data == nil || !msg.Data.Kind.IsValid() {
				log.Warn("discard malformed event")
				msg.Nack(false)
				continue
			}

			delivered := w.hub.Publish(msg.Data)
			log.Debug("event fanned out",
				zap.Int64("raffle_id", msg.Data.RaffleID),
				zap.Int64("seq", msg.Data.Seq),
				zap.String("kind", string(msg.Data.Kind)),
				zap.Int("subscribers", delivered))
			msg.Ack()
		}
	}()
	return nil
}

func (w *EventWorkerImpl) Wait() {
	<-w.done
}
