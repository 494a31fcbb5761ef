// File: internal/service/events.go
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// EventRecorder persists batches of grant events.
type EventRecorder interface {
	RecordGrantEvents(ctx context.Context, events []schemas.GrantEvent) error
}

const (
	eventBatchSize    = 50
	eventBatchTimeout = 2 * time.Second
)

// StartGrantEventConsumer launches a goroutine that reads grant events and
// persists them in batches. It manages its lifecycle using the provided
// WaitGroup and drains the channel once it is closed.
func StartGrantEventConsumer(ctx context.Context, wg *sync.WaitGroup, events <-chan schemas.GrantEvent, rec EventRecorder, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Starting grant event consumer.")
		defer logger.Debug("Grant event consumer shut down.")

		batch := make([]schemas.GrantEvent, 0, eventBatchSize)
		ticker := time.NewTicker(eventBatchTimeout)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			// Persistence outlives the request context so shutdown still flushes.
			persistCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := rec.RecordGrantEvents(persistCtx, batch); err != nil {
				logger.Error("Failed to persist grant events. Data may be lost.", zap.Error(err), zap.Int("batch_size", len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					flush()
					return
				}
				batch = append(batch, ev)
				if len(batch) >= eventBatchSize {
					flush()
					ticker.Reset(eventBatchTimeout)
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				logger.Warn("Grant event consumer context canceled, draining remaining events.")
				drainEvents(events, &batch)
				flush()
				return
			}
		}
	}()
}

// drainEvents reads whatever is buffered without blocking.
func drainEvents(events <-chan schemas.GrantEvent, batch *[]schemas.GrantEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}
