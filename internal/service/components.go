// File: internal/service/components.go
package service

import (
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/backend"
	"github.com/a0x-labs/agentdeck/internal/chain"
	"github.com/a0x-labs/agentdeck/internal/observability"
	"github.com/a0x-labs/agentdeck/internal/store"
)

const shutdownWait = 10 * time.Second

// Components holds every long-lived service the dashboard server needs and
// owns their shutdown order.
type Components struct {
	Backend  *backend.Client
	Chain    *chain.Reader
	Sessions *access.SessionVerifier
	Notifier *access.Notifier
	Store    *store.Store
	Mirror   schemas.TranscriptMirror
	Registry *Registry
	DBPool   *pgxpool.Pool

	events     chan schemas.GrantEvent
	consumerWG *sync.WaitGroup
}

// Shutdown releases components in dependency order: stop accepting grant
// events, flush them, let pending creator-link calls finish, close the pool.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.events != nil {
		close(c.events)
		c.events = nil
	}
	if c.consumerWG != nil {
		if !timedWait(c.consumerWG.Wait, shutdownWait) {
			logger.Warn("Grant event consumer did not finish in time.")
		}
	}

	if c.Notifier != nil {
		if !timedWait(c.Notifier.Wait, shutdownWait) {
			logger.Warn("Creator address notifications still pending at shutdown.")
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.", zap.Bool("database", c.DBPool != nil))
}

// timedWait runs wait and reports whether it returned within timeout.
func timedWait(wait func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
