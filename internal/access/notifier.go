// File: internal/access/notifier.go
package access

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// CreatorLinker records a wallet as the creator address of an agent.
type CreatorLinker interface {
	SendCreatorAddress(ctx context.Context, agentID, wallet string, mode schemas.AuthMode) error
}

// Notifier sends the creator-address link once per (agent, wallet, mode)
// for the life of the process. Sends are fire-and-forget: failures are
// logged and never affect the access decision.
type Notifier struct {
	linker  CreatorLinker
	timeout time.Duration
	logger  *zap.Logger

	mu   sync.Mutex
	sent map[string]struct{}
	wg   sync.WaitGroup
}

// NewNotifier creates a Notifier. A non-positive timeout leaves sends unbounded.
func NewNotifier(linker CreatorLinker, timeout time.Duration, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		linker:  linker,
		timeout: timeout,
		logger:  logger.Named("creator_link"),
		sent:    make(map[string]struct{}),
	}
}

// Link schedules the notification unless it was already sent. It reports
// whether a send was scheduled.
func (n *Notifier) Link(agentID, wallet string, mode schemas.AuthMode) bool {
	if agentID == "" || wallet == "" || !mode.IsSocial() {
		return false
	}
	key := agentID + "|" + string(mode) + "|" + wallet

	n.mu.Lock()
	if _, ok := n.sent[key]; ok {
		n.mu.Unlock()
		return false
	}
	n.sent[key] = struct{}{}
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx := context.Background()
		if n.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, n.timeout)
			defer cancel()
		}
		if err := n.linker.SendCreatorAddress(ctx, agentID, wallet, mode); err != nil {
			n.logger.Warn("Failed to link creator address.",
				zap.String("agent_id", agentID),
				zap.String("mode", string(mode)),
				zap.Error(err))
			return
		}
		n.logger.Info("Linked creator address.", zap.String("agent_id", agentID), zap.String("mode", string(mode)))
	}()
	return true
}

// Wait blocks until every scheduled send has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
