package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/port"
)

const eventWriteTimeout = 5 * time.Second

// StartEventWorkers drains queue into recorder with count workers. The
// returned WaitGroup completes once the queue is closed and drained.
func StartEventWorkers(count int, queue <-chan domain.TransactionEvent, recorder port.EventRecorder, logger *zap.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			eventWorkerLoop(id, queue, recorder, logger)
		}(i)
	}
	return &wg
}

func eventWorkerLoop(id int, queue <-chan domain.TransactionEvent, recorder port.EventRecorder, logger *zap.Logger) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)

		if err := recorder.RecordEvent(ctx, event); err != nil {
			logger.Error("record transaction event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("transaction_id", event.TransactionID),
				zap.Error(err),
			)
		} else {
			logger.Debug("recorded transaction event",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.String("type", string(event.Type)),
			)
		}

		cancel()
	}
}
