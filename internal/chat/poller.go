// File: internal/chat/poller.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/backend"
)

var (
	ErrJobFailed  = errors.New("agent job failed")
	ErrJobTimeout = errors.New("agent job did not complete in time")
)

// JobAPI is the asynchronous request/poll protocol of the agent runtime.
type JobAPI interface {
	SubmitTalk(ctx context.Context, req schemas.TalkRequest) (schemas.JobHandle, error)
	PollTalk(ctx context.Context, requestID string) (schemas.JobStatus, error)
}

// Poller waits for a submitted job to reach a terminal state.
type Poller struct {
	api      JobAPI
	interval time.Duration
	budget   time.Duration
	logger   *zap.Logger
}

func NewPoller(api JobAPI, interval, budget time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	return &Poller{api: api, interval: interval, budget: budget, logger: logger.Named("poller")}
}

// Wait polls requestID every interval until the job completes, fails, or the
// budget runs out. Transient poll errors are logged and retried on the next
// tick; a 404 means the job is gone and ends the wait.
func (p *Poller) Wait(ctx context.Context, requestID string) (schemas.JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.budget)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return schemas.JobStatus{}, fmt.Errorf("%s: %w", requestID, ErrJobTimeout)
			}
			return schemas.JobStatus{}, ctx.Err()
		case <-ticker.C:
		}

		status, err := p.api.PollTalk(ctx, requestID)
		if err != nil {
			if backend.IsStatus(err, http.StatusNotFound) {
				return schemas.JobStatus{}, fmt.Errorf("%s: %w: %w", requestID, ErrJobFailed, err)
			}
			if ctx.Err() == nil {
				p.logger.Debug("Poll attempt failed.", zap.String("request_id", requestID), zap.Error(err))
			}
			continue
		}

		switch status.Status {
		case schemas.JobCompleted:
			return status, nil
		case schemas.JobFailed:
			return status, fmt.Errorf("%s: %w: %s", requestID, ErrJobFailed, status.Error)
		}
	}
}
