// File: internal/access/gate.go
package access

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/config"
)

// AgentSource loads the records the gate decides on.
type AgentSource interface {
	GetAgent(ctx context.Context, handle string) (*schemas.Agent, error)
	GetPersonality(ctx context.Context, handle string) (*schemas.Personality, error)
}

// ClaimSource resolves the session identity of the current caller.
type ClaimSource interface {
	Claim(ctx context.Context) (schemas.IdentityClaim, error)
}

// ClaimFunc adapts a function to ClaimSource.
type ClaimFunc func(ctx context.Context) (schemas.IdentityClaim, error)

// Claim implements ClaimSource.
func (f ClaimFunc) Claim(ctx context.Context) (schemas.IdentityClaim, error) { return f(ctx) }

// StaticClaim is a ClaimSource that always returns the same claim.
func StaticClaim(c schemas.IdentityClaim) ClaimSource {
	return ClaimFunc(func(context.Context) (schemas.IdentityClaim, error) { return c, nil })
}

// Snapshot is everything a settled gate knows.
type Snapshot struct {
	Outcome     Outcome
	Agent       *schemas.Agent
	Personality *schemas.Personality
	Claim       schemas.IdentityClaim
}

// Gate is the access controller for one dashboard mount. It settles exactly
// once; later calls to Settle return the cached snapshot.
type Gate struct {
	handle   string
	mode     schemas.AuthMode
	agents   AgentSource
	claims   ClaimSource
	notifier *Notifier
	cfg      config.AccessConfig
	logger   *zap.Logger

	once     sync.Once
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewGate creates a gate for handle in the given auth mode. notifier may be nil.
func NewGate(handle string, mode schemas.AuthMode, agents AgentSource, claims ClaimSource, notifier *Notifier, cfg config.AccessConfig, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		handle:   handle,
		mode:     mode,
		agents:   agents,
		claims:   claims,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("access_gate").With(zap.String("handle", handle), zap.String("mode", string(mode))),
		snapshot: Snapshot{Outcome: Outcome{State: StateChecking, Mode: mode}},
	}
}

// Handle returns the agent handle the gate guards.
func (g *Gate) Handle() string { return g.handle }

// Mode returns the auth mode the gate evaluates.
func (g *Gate) Mode() schemas.AuthMode { return g.mode }

// Settle loads the agent, the personality and the session claim concurrently
// and evaluates once all three resolved or the settle timeout elapsed.
// Fetch failures degrade to missing data.
func (g *Gate) Settle(ctx context.Context) Snapshot {
	g.once.Do(func() {
		snap := g.settle(ctx)
		g.mu.Lock()
		g.snapshot = snap
		g.mu.Unlock()
	})
	return g.Current()
}

// Current returns the last known snapshot without blocking.
func (g *Gate) Current() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot
}

// HasAccess recomputes the ownership decision for rendering. It does not
// change the settled outcome.
func (g *Gate) HasAccess(agent *schemas.Agent, claim schemas.IdentityClaim) bool {
	return HasAccess(g.mode, agent, claim)
}

func (g *Gate) settle(ctx context.Context) Snapshot {
	if g.cfg.SettleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.SettleTimeout)
		defer cancel()
	}

	var (
		agent       *schemas.Agent
		personality *schemas.Personality
		claim       schemas.IdentityClaim
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		a, err := g.agents.GetAgent(egCtx, g.handle)
		if err != nil {
			g.logFetch("agent", err)
			return nil
		}
		agent = a
		return nil
	})
	eg.Go(func() error {
		p, err := g.agents.GetPersonality(egCtx, g.handle)
		if err != nil {
			g.logFetch("personality", err)
			return nil
		}
		personality = p
		return nil
	})
	eg.Go(func() error {
		if g.claims == nil {
			return nil
		}
		c, err := g.claims.Claim(egCtx)
		if err != nil {
			g.logFetch("session", err)
			return nil
		}
		claim = c
		return nil
	})
	_ = eg.Wait()

	if ctx.Err() != nil {
		g.logger.Warn("Access gate settled on timeout; missing sources count as absent.", zap.Error(ctx.Err()))
	}

	outcome := Evaluate(g.mode, g.handle, agent, claim)
	switch outcome.State {
	case StateGranted:
		g.logger.Debug("Access granted.")
		if g.mode.IsSocial() && agent != nil && agent.ID != "" && claim.WalletAddress != "" && g.notifier != nil {
			g.notifier.Link(agent.ID, claim.WalletAddress, g.mode)
		}
	default:
		g.logger.Info("Access not granted.", zap.String("state", string(outcome.State)), zap.Error(outcome.Err))
	}

	return Snapshot{Outcome: outcome, Agent: agent, Personality: personality, Claim: claim}
}

func (g *Gate) logFetch(what string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		g.logger.Warn("Gate source did not resolve in time.", zap.String("source", what), zap.Error(err))
		return
	}
	g.logger.Info("Gate source unavailable; treating as absent.", zap.String("source", what), zap.Error(err))
}
