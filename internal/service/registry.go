// File: internal/service/registry.go
package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/chain"
	"github.com/a0x-labs/agentdeck/internal/chat"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/grants"
	"github.com/a0x-labs/agentdeck/internal/knowledgegraph"
)

// Upstream is every call the dashboard makes against the upstream API.
// *backend.Client satisfies it.
type Upstream interface {
	access.AgentSource
	access.CreatorLinker
	knowledgegraph.Backend
	grants.Backend
	chat.JobAPI
	GetConversations(ctx context.Context, agentID string) (*schemas.ConversationsByPlatform, error)
}

// BalanceReader reads the agent wallet's token balances.
type BalanceReader interface {
	Balances(ctx context.Context, wallet string) (chain.Balances, error)
}

// Dashboard is the per-agent state shared by every request for that handle.
type Dashboard struct {
	Handle    string
	Knowledge *knowledgegraph.Manager

	mu        sync.Mutex
	workbench *grants.Workbench
	balances  *chain.Balances
}

// Registry hands out per-agent dashboards and per-user chat sessions.
type Registry struct {
	upstream Upstream
	balances BalanceReader
	mirror   schemas.TranscriptMirror
	notifier *access.Notifier
	events   chan<- schemas.GrantEvent
	cfg      config.Interface
	logger   *zap.Logger

	mu         sync.Mutex
	dashboards map[string]*Dashboard
	chats      map[string]*chat.Orchestrator
}

// RegistryDeps are the collaborators of a Registry. Balances, Mirror,
// Notifier and Events may be nil.
type RegistryDeps struct {
	Upstream Upstream
	Balances BalanceReader
	Mirror   schemas.TranscriptMirror
	Notifier *access.Notifier
	Events   chan<- schemas.GrantEvent
}

func NewRegistry(deps RegistryDeps, cfg config.Interface, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		upstream:   deps.Upstream,
		balances:   deps.Balances,
		mirror:     deps.Mirror,
		notifier:   deps.Notifier,
		events:     deps.Events,
		cfg:        cfg,
		logger:     logger.Named("registry"),
		dashboards: make(map[string]*Dashboard),
		chats:      make(map[string]*chat.Orchestrator),
	}
}

// Upstream exposes the upstream client for pass-through reads.
func (r *Registry) Upstream() Upstream { return r.upstream }

// NewGate creates the access gate for one dashboard request.
func (r *Registry) NewGate(handle string, mode schemas.AuthMode, claims access.ClaimSource) *access.Gate {
	return access.NewGate(handle, mode, r.upstream, claims, r.notifier, r.cfg.Access(), r.logger)
}

// Dashboard returns the state for handle, creating it on first use.
func (r *Registry) Dashboard(handle string) *Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dashboards[handle]
	if !ok {
		d = &Dashboard{
			Handle:    handle,
			Knowledge: knowledgegraph.NewManager(handle, r.upstream, knowledgegraph.DefaultOptions(), r.logger),
		}
		r.dashboards[handle] = d
	}
	return d
}

// Sync returns the dashboard for agent with its knowledge canvas and, once
// built, its grant workbench brought up to date.
func (r *Registry) Sync(handle string, agent *schemas.Agent) *Dashboard {
	d := r.Dashboard(handle)
	if agent == nil {
		return d
	}
	d.Knowledge.SetAgent(agent)

	d.mu.Lock()
	w := d.workbench
	d.mu.Unlock()
	if w != nil {
		w.Reload(agent)
	}
	return d
}

// Grants returns the grant workbench for agent, built on first use.
func (r *Registry) Grants(handle string, agent *schemas.Agent) (*grants.Workbench, error) {
	d := r.Dashboard(handle)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workbench != nil {
		return d.workbench, nil
	}
	w, err := grants.NewWorkbench(agent, r.upstream, r.cfg.Grants(), r.logger,
		grants.WithPaidHook(func(context.Context) { r.invalidateBalances(d) }),
		grants.WithEventHook(r.publish),
	)
	if err != nil {
		return nil, err
	}
	d.workbench = w
	return w, nil
}

// Balances returns the agent wallet balances, cached until a grant is paid.
func (r *Registry) Balances(ctx context.Context, handle string, agent *schemas.Agent) (chain.Balances, error) {
	d := r.Dashboard(handle)
	d.mu.Lock()
	if d.balances != nil {
		b := *d.balances
		d.mu.Unlock()
		return b, nil
	}
	d.mu.Unlock()

	wallet := ""
	if agent != nil {
		wallet = agent.Wallet.WalletAddress
	}
	if r.balances == nil {
		return chain.Balances{Wallet: wallet}, nil
	}
	b, err := r.balances.Balances(ctx, wallet)
	if err != nil {
		return b, err
	}
	d.mu.Lock()
	d.balances = &b
	d.mu.Unlock()
	return b, nil
}

func (r *Registry) invalidateBalances(d *Dashboard) {
	d.mu.Lock()
	d.balances = nil
	d.mu.Unlock()
}

// Chat returns the conversation between wallet and agent, restoring its
// transcript from the mirror on first use.
func (r *Registry) Chat(ctx context.Context, handle string, agent *schemas.Agent, wallet string) *chat.Orchestrator {
	wallet = strings.ToLower(wallet)
	key := handle + "|" + wallet

	r.mu.Lock()
	o, ok := r.chats[key]
	r.mu.Unlock()
	if ok {
		return o
	}

	d := r.Dashboard(handle)
	p := chat.Params{Handle: handle, UserAddress: wallet}
	if agent != nil {
		p.AgentID = agent.ID
		p.AgentName = agent.Name
		p.MirrorKey = agent.ID + ":" + wallet
	}
	opts := []chat.Option{chat.WithRefetch(func(ctx context.Context) { _ = d.Knowledge.Refetch(ctx) })}
	if r.mirror != nil {
		opts = append(opts, chat.WithMirror(r.mirror))
	}
	created := chat.NewOrchestrator(p, r.upstream, r.cfg.Chat(), r.logger, opts...)

	r.mu.Lock()
	if existing, ok := r.chats[key]; ok {
		r.mu.Unlock()
		return existing
	}
	r.chats[key] = created
	r.mu.Unlock()

	created.Restore(ctx)
	return created
}

func (r *Registry) publish(_ context.Context, ev schemas.GrantEvent) {
	r.logger.Info("Grant updated.",
		zap.String("agent_id", ev.AgentID),
		zap.String("grant_id", ev.GrantID),
		zap.String("op", ev.Op),
		zap.String("status", string(ev.Status)),
		zap.Float64("amount", ev.Amount))
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("Grant event buffer full; dropping event.", zap.String("grant_id", ev.GrantID))
	}
}
